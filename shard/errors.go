package shard

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a record id has no live version.
	ErrNotFound = errors.New("shard: record not found")

	// ErrShardNotFound is returned when a shard database does not exist.
	ErrShardNotFound = errors.New("shard: shard not found")

	// ErrCorrupt is returned when stored data fails an integrity check.
	// Once raised the store refuses further operations until reopened.
	ErrCorrupt = errors.New("shard: corrupt data")

	// ErrClosed is returned for operations on a closed store.
	ErrClosed = errors.New("shard: store closed")

	// ErrNotFinite is returned when an input vector contains NaN or Inf.
	ErrNotFinite = errors.New("shard: vector component is not finite")
)

// DimensionError reports a vector whose length does not match the shard's
// fixed dimension.
type DimensionError struct {
	Want int
	Got  int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("shard: dimension mismatch: want %d, got %d", e.Want, e.Got)
}
