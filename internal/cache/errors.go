package cache

import (
	"context"

	"github.com/jmgilman/go/errors"
)

// Error codes specific to the cache. Store failures use errors.CodeDatabase
// and deadlines use errors.CodeTimeout.
const (
	CodeInitialization  errors.ErrorCode = "INITIALIZATION_FAILED"
	CodeValueGeneration errors.ErrorCode = "VALUE_GENERATION_FAILED"
)

// storeError classifies a failed store call.
func storeError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.WithContext(errors.Wrap(err, errors.CodeTimeout, op+" timed out"), "operation", op)
	}
	return errors.WithContext(errors.Wrap(err, errors.CodeDatabase, op+" failed"), "operation", op)
}

func invalidKey() error {
	return errors.New(errors.CodeInvalidInput, "key must not be empty")
}

// IsTimeout reports whether err is a store call that ran out of time.
func IsTimeout(err error) bool { return errors.GetCode(err) == errors.CodeTimeout }

// IsStoreError reports whether err is a failed store call.
func IsStoreError(err error) bool { return errors.GetCode(err) == errors.CodeDatabase }

// IsInitialization reports whether err comes from resolving the collection.
func IsInitialization(err error) bool { return errors.GetCode(err) == CodeInitialization }
