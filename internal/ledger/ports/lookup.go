package ports

import (
	"context"
	"errors"
	"fmt"

	dErrors "copyright/pkg/domain-errors"
	"copyright/pkg/platform/sentinel"
)

// Lookup reads key from col and translates store sentinels into coded errors:
// an unknown key becomes CodeNotFound naming what was looked up, any other
// failure becomes CodeUnavailable.
func Lookup[K ~string, T any](ctx context.Context, col Collection[K, T], key K, what string) (*T, error) {
	record, err := col.Get(ctx, key)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, fmt.Sprintf("%s not found: %s", what, string(key)))
		}
		return nil, StoreFailure(err, "read "+what)
	}
	return record, nil
}

// StoreFailure wraps an infrastructure error from a registry call. Coded
// errors (timeouts from the unit of work, for instance) pass through unchanged.
func StoreFailure(err error, op string) error {
	if err == nil {
		return nil
	}
	var coded *dErrors.Error
	if errors.As(err, &coded) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeUnavailable, "registry failed to "+op)
}
