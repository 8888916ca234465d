package fileid

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ReplyFilePrefix starts the name of every stored reply file.
const ReplyFilePrefix = "Malan-Ai"

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// New returns a lowercase, time ordered ULID.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return strings.ToLower(ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String())
}

// ReplyFileName returns a unique file name for a stored reply.
func ReplyFileName() string {
	return ReplyFilePrefix + "-" + New() + ".txt"
}
