// Package remote carries the cache API over a Unix domain socket so that a
// single daemon can own the store file while other processes use it.
//
// The protocol is JSON lines: one Request, one Response, repeated for as
// long as the client keeps the connection open.
package remote

import (
	"github.com/jmgilman/go/errors"

	"github.com/leonardcser/readthrough/internal/cache"
)

// Operation names.
const (
	OpGet    = "get"
	OpSet    = "set"
	OpDelete = "delete"
	OpKeys   = "keys"
	OpPurge  = "purge"
)

type Request struct {
	Op    string `json:"op"`
	Key   string `json:"key,omitempty"`
	Value string `json:"value,omitempty"`
}

type Response struct {
	OK    bool                  `json:"ok"`
	Entry *cache.Entry          `json:"entry,omitempty"`
	Found bool                  `json:"found,omitempty"`
	Keys  []string              `json:"keys,omitempty"`
	Count int                   `json:"count,omitempty"`
	Error *errors.ErrorResponse `json:"error,omitempty"`
}
