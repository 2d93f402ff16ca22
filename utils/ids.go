package utils

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator returns a fresh identifier on every call.
type IDGenerator func() string

func NewUUID() string {
	return uuid.New().String()
}

// SequentialIDs returns an IDGenerator yielding prefix1, prefix2, ...
// Used where deterministic ids are needed.
func SequentialIDs(prefix string) IDGenerator {
	var n atomic.Int64
	return func() string {
		return prefix + strconv.FormatInt(n.Add(1), 10)
	}
}
