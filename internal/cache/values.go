package cache

import (
	"context"
	"math/rand/v2"
	"strconv"
)

// ValueFactory produces the value stored for a key on a miss.
type ValueFactory interface {
	Value(ctx context.Context, key string) (string, error)
}

// ValueFunc adapts a function to ValueFactory.
type ValueFunc func(ctx context.Context, key string) (string, error)

func (f ValueFunc) Value(ctx context.Context, key string) (string, error) { return f(ctx, key) }

// RandomValue fills misses with a random decimal in [0, 1), formatted like
// "0.7213...". It ignores the key.
var RandomValue ValueFactory = ValueFunc(func(context.Context, string) (string, error) {
	return strconv.FormatFloat(rand.Float64(), 'f', -1, 64), nil
})
