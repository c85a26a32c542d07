// Package ids mints request correlation ids. Domain rows use UUIDs.
package ids

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// maxIncoming bounds ids accepted from clients.
const maxIncoming = 128

// New returns a ULID; ids minted in the same millisecond still sort in
// issue order.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// FromClient returns incoming when it is usable as a correlation id and a
// fresh id otherwise.
func FromClient(incoming string) string {
	if incoming == "" || len(incoming) > maxIncoming {
		return New()
	}
	for _, r := range incoming {
		if r < 0x21 || r > 0x7e {
			return New()
		}
	}
	return incoming
}
