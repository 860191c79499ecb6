package tools_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leonardcser/readthrough/internal/cache"
	"github.com/leonardcser/readthrough/internal/store/boltstore"
	"github.com/leonardcser/readthrough/internal/tools"
)

func newEngine(t *testing.T) *cache.Engine {
	t.Helper()
	d, err := boltstore.Open(filepath.Join(t.TempDir(), "cache.bbolt"), boltstore.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	e, err := cache.New(context.Background(), d, cache.Options{
		Values: cache.ValueFunc(func(_ context.Context, key string) (string, error) {
			return "generated:" + key, nil
		}),
	})
	require.NoError(t, err)
	return e
}

func call(t *testing.T, h tools.Handler, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	res, err := h(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, res.Content, 1)
	switch c := res.Content[0].(type) {
	case mcp.TextContent:
		return c.Text
	case *mcp.TextContent:
		return c.Text
	}
	t.Fatalf("unexpected content %T", res.Content[0])
	return ""
}

func TestGetGeneratesAndSetOverwrites(t *testing.T) {
	e := newEngine(t)

	res := call(t, tools.GetHandler(e), map[string]any{"key": "k"})
	require.False(t, res.IsError, text(t, res))
	var got cache.Entry
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &got))
	assert.Equal(t, "generated:k", got.Value)

	res = call(t, tools.SetHandler(e), map[string]any{"key": "k", "value": "mine"})
	require.False(t, res.IsError)

	res = call(t, tools.GetHandler(e), map[string]any{"key": "k"})
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &got))
	assert.Equal(t, "mine", got.Value)
}

func TestRequiredArguments(t *testing.T) {
	e := newEngine(t)
	for name, h := range map[string]tools.Handler{
		"get":    tools.GetHandler(e),
		"set":    tools.SetHandler(e),
		"delete": tools.DeleteHandler(e),
	} {
		t.Run(name, func(t *testing.T) {
			res := call(t, h, map[string]any{})
			assert.True(t, res.IsError)
		})
	}

	res := call(t, tools.SetHandler(e), map[string]any{"key": "k"})
	assert.True(t, res.IsError)
}

func TestDeleteKeysAndPurge(t *testing.T) {
	e := newEngine(t)
	for _, k := range []string{"a", "b"} {
		res := call(t, tools.SetHandler(e), map[string]any{"key": k, "value": "v"})
		require.False(t, res.IsError)
	}

	res := call(t, tools.KeysHandler(e), nil)
	var keys []string
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &keys))
	assert.ElementsMatch(t, []string{"a", "b"}, keys)

	res = call(t, tools.DeleteHandler(e), map[string]any{"key": "a"})
	require.False(t, res.IsError)
	res = call(t, tools.DeleteHandler(e), map[string]any{"key": "a"})
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "key not found")

	res = call(t, tools.PurgeHandler(e), nil)
	assert.JSONEq(t, `{"deleted":1}`, text(t, res))

	res = call(t, tools.KeysHandler(e), nil)
	assert.JSONEq(t, `[]`, text(t, res))
}

func TestEngineErrorsBecomeToolErrors(t *testing.T) {
	res := call(t, tools.GetHandler(newEngine(t)), map[string]any{"key": ""})
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "INVALID_INPUT")
}

func TestRegister(t *testing.T) {
	s := server.NewMCPServer("test", "0.0.0", server.WithToolCapabilities(false))
	tools.Register(s, newEngine(t))
	msg := s.HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	b, err := json.Marshal(msg)
	require.NoError(t, err)
	var resp struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(b, &resp))
	var names []string
	for _, tool := range resp.Result.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"cache-get", "cache-set", "cache-delete", "cache-keys", "cache-purge"}, names)
}
