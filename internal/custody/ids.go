package custody

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// IDGen assigns order ids.
type IDGen interface {
	NewID(t time.Time) string
}

// ulidGen issues monotonic ULIDs so ids created in the same millisecond
// still sort in creation order.
type ulidGen struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func newULIDGen() *ulidGen {
	return &ulidGen{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (g *ulidGen) NewID(t time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), g.entropy).String()
}
