// Package tools exposes the cache operations as MCP tools.
package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/leonardcser/readthrough/internal/cache"
)

// Handler is the signature mcp-go expects for tool handlers.
type Handler = func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)

// Register adds every cache tool to s.
func Register(s *server.MCPServer, api cache.API) {
	s.AddTool(mcp.NewTool("cache-get",
		mcp.WithDescription(multiline(
			"Returns the cached entry for a key, generating a new value when the key is missing or stale",
			"\nUsage notes:",
			"- Keys that are http(s) URLs are fetched and summarized when the daemon runs with web values",
			`- Keys prefixed with "search:" run a web search for the rest of the key`,
			"- The result is the entry as JSON with _id, value and updated",
		)),
		mcp.WithString("key", mcp.Required(), mcp.Description("The cache key")),
	), GetHandler(api))

	s.AddTool(mcp.NewTool("cache-set",
		mcp.WithDescription("Stores a value under a key and returns the written entry as JSON"),
		mcp.WithString("key", mcp.Required(), mcp.Description("The cache key")),
		mcp.WithString("value", mcp.Required(), mcp.Description("The value to store")),
	), SetHandler(api))

	s.AddTool(mcp.NewTool("cache-delete",
		mcp.WithDescription("Removes a key and returns the removed entry as JSON"),
		mcp.WithString("key", mcp.Required(), mcp.Description("The cache key")),
	), DeleteHandler(api))

	s.AddTool(mcp.NewTool("cache-keys",
		mcp.WithDescription("Lists every stored key as a JSON array, fresh or not"),
	), KeysHandler(api))

	s.AddTool(mcp.NewTool("cache-purge",
		mcp.WithDescription("Removes every entry and returns how many were deleted"),
	), PurgeHandler(api))
}

// GetHandler returns the handler for "cache-get".
func GetHandler(api cache.API) Handler {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireString("key")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		entry, err := api.GetKey(ctx, key)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(entry)
	}
}

// SetHandler returns the handler for "cache-set".
func SetHandler(api cache.API) Handler {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireString("key")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		value, err := req.RequireString("value")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		entry, err := api.SetKey(ctx, key, value)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(entry)
	}
}

// DeleteHandler returns the handler for "cache-delete".
func DeleteHandler(api cache.API) Handler {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireString("key")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		entry, found, err := api.DeleteKey(ctx, key)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if !found {
			return mcp.NewToolResultError("key not found: " + key), nil
		}
		return jsonResult(entry)
	}
}

// KeysHandler returns the handler for "cache-keys".
func KeysHandler(api cache.API) Handler {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		keys, err := api.GetKeys(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(keys)
	}
}

// PurgeHandler returns the handler for "cache-purge".
func PurgeHandler(api cache.API) Handler {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		n, err := api.PurgeCache(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]int{"deleted": n})
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

// multiline joins lines with newlines for tool descriptions.
func multiline(lines ...string) string { return strings.Join(lines, "\n") }
