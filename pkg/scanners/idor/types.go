package idor

import (
	"errors"
	"fmt"

	"github.com/twmb/murmur3"
)

var (
	// ErrInvalidJSON is returned when a response body cannot be parsed as a single JSON value.
	ErrInvalidJSON = errors.New("invalid JSON")
	// ErrPrettify is returned when a parsed value cannot be re-serialized.
	ErrPrettify = errors.New("failed to prettify JSON response data")
	// ErrOperatorInput is returned when the operator gate cannot read the next line.
	ErrOperatorInput = errors.New("failed to read input")
)

// AccessRecord is what the enumerator remembers about one index.
type AccessRecord struct {
	Index       int64
	StatusCode  int
	Fingerprint string
}

// AccessTracker remembers the first index at which each response fingerprint was seen.
// The enumerator is sequential, so no locking is needed.
type AccessTracker struct {
	firstSeen map[string]int64
	last      *AccessRecord
}

func NewAccessTracker() *AccessTracker {
	return &AccessTracker{
		firstSeen: make(map[string]int64),
	}
}

// Record stores the probe and returns the earlier index with the same fingerprint, if any.
func (a *AccessTracker) Record(index int64, statusCode int, fingerprint string) (int64, bool) {
	a.last = &AccessRecord{Index: index, StatusCode: statusCode, Fingerprint: fingerprint}

	if first, ok := a.firstSeen[fingerprint]; ok {
		return first, true
	}
	a.firstSeen[fingerprint] = index
	return 0, false
}

// Last returns the most recent record, or nil before the first probe.
func (a *AccessTracker) Last() *AccessRecord {
	return a.last
}

// Distinct is the number of different response bodies seen so far.
func (a *AccessTracker) Distinct() int {
	return len(a.firstSeen)
}

// Fingerprint hashes a (compacted) body with 32-bit murmur3.
func Fingerprint(body []byte) string {
	return fmt.Sprintf("%08x", murmur3.Sum32(body))
}
