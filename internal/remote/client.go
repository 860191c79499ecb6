package remote

import (
	"context"
	"encoding/json"
	"net"
	"time"

	"github.com/jmgilman/go/errors"

	"github.com/leonardcser/readthrough/internal/cache"
)

const dialTimeout = 500 * time.Millisecond

// Client implements cache.API over a Unix socket. Each call uses its own
// connection, bounded by the context's deadline.
type Client struct {
	socketPath string
}

var _ cache.API = (*Client)(nil)

func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// Ping checks that a daemon is listening.
func (c *Client) Ping(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	return conn.Close()
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, errors.WithContext(errors.Wrap(err, errors.CodeUnavailable, "cache daemon unreachable"), "socket", c.socketPath)
	}
	return conn, nil
}

func (c *Client) roundTrip(ctx context.Context, req Request) (Response, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	var resp Response
	err = json.NewEncoder(conn).Encode(&req)
	if err == nil {
		err = json.NewDecoder(conn).Decode(&resp)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return Response{}, errors.Wrap(err, errors.CodeTimeout, req.Op+" timed out")
		}
		return Response{}, errors.Wrap(err, errors.CodeNetwork, req.Op+" failed")
	}
	if !resp.OK {
		return Response{}, remoteError(resp.Error)
	}
	return resp, nil
}

// remoteError rebuilds the server-side error with its code.
func remoteError(e *errors.ErrorResponse) error {
	if e == nil {
		return errors.New(errors.CodeUnknown, "request failed")
	}
	err := errors.New(errors.ErrorCode(e.Code), e.Message)
	if len(e.Context) > 0 {
		return errors.WithContextMap(err, e.Context)
	}
	return err
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (c *Client) GetKey(ctx context.Context, key string) (cache.Entry, error) {
	resp, err := c.roundTrip(ctx, Request{Op: OpGet, Key: key})
	if err != nil {
		return cache.Entry{}, err
	}
	return entryOf(resp), nil
}

func (c *Client) SetKey(ctx context.Context, key, value string) (cache.Entry, error) {
	resp, err := c.roundTrip(ctx, Request{Op: OpSet, Key: key, Value: value})
	if err != nil {
		return cache.Entry{}, err
	}
	return entryOf(resp), nil
}

func (c *Client) DeleteKey(ctx context.Context, key string) (cache.Entry, bool, error) {
	resp, err := c.roundTrip(ctx, Request{Op: OpDelete, Key: key})
	if err != nil {
		return cache.Entry{}, false, err
	}
	if !resp.Found {
		return cache.Entry{}, false, nil
	}
	return entryOf(resp), true, nil
}

func (c *Client) GetKeys(ctx context.Context) ([]string, error) {
	resp, err := c.roundTrip(ctx, Request{Op: OpKeys})
	if err != nil {
		return nil, err
	}
	if resp.Keys == nil {
		return []string{}, nil
	}
	return resp.Keys, nil
}

func (c *Client) PurgeCache(ctx context.Context) (int, error) {
	resp, err := c.roundTrip(ctx, Request{Op: OpPurge})
	if err != nil {
		return 0, err
	}
	return resp.Count, nil
}

func entryOf(resp Response) cache.Entry {
	if resp.Entry == nil {
		return cache.Entry{}
	}
	return *resp.Entry
}
