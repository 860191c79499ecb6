package remote

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net"
	"sync"

	"github.com/jmgilman/go/errors"
	"github.com/rs/zerolog"

	"github.com/leonardcser/readthrough/internal/cache"
)

// Server answers protocol requests against a cache.API.
type Server struct {
	api cache.API
	log zerolog.Logger
}

func NewServer(api cache.API, log zerolog.Logger) *Server {
	return &Server{api: api, log: log}
}

// Serve accepts connections on l until ctx is done, then closes l and waits
// for open connections to finish.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = l.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil || stderrors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Warn().Err(err).Msg("accept failed")
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)
	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			return
		}
		if err := enc.Encode(s.dispatch(ctx, req)); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, req Request) Response {
	switch req.Op {
	case OpGet:
		entry, err := s.api.GetKey(ctx, req.Key)
		if err != nil {
			return failure(err)
		}
		return Response{OK: true, Entry: &entry, Found: true}
	case OpSet:
		entry, err := s.api.SetKey(ctx, req.Key, req.Value)
		if err != nil {
			return failure(err)
		}
		return Response{OK: true, Entry: &entry, Found: true}
	case OpDelete:
		entry, found, err := s.api.DeleteKey(ctx, req.Key)
		if err != nil {
			return failure(err)
		}
		if !found {
			return Response{OK: true}
		}
		return Response{OK: true, Entry: &entry, Found: true}
	case OpKeys:
		keys, err := s.api.GetKeys(ctx)
		if err != nil {
			return failure(err)
		}
		return Response{OK: true, Keys: keys, Count: len(keys)}
	case OpPurge:
		n, err := s.api.PurgeCache(ctx)
		if err != nil {
			return failure(err)
		}
		return Response{OK: true, Count: n}
	default:
		return failure(errors.Newf(errors.CodeInvalidInput, "unknown op %q", req.Op))
	}
}

func failure(err error) Response {
	return Response{OK: false, Error: errors.ToJSON(err)}
}
