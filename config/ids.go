package config

import (
	"math/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewTaskID returns a monotonic, lexically sortable opaque task identifier.
// ULIDs give us roughly-ordered ids without a round trip to the registry,
// which is useful for cheap time-range sweeps in the Scheduler (§4.8).
func NewTaskID() string {
	return strings.ToLower(ulid.Make().String())
}

// NewWorkspaceID is the same shape as NewTaskID but kept distinct; it names
// the scratch workspaces of synchronous edit operations, which have no
// task-id. Pipeline task workspaces are named after their task-id (§4.6.9).
func NewWorkspaceID() string {
	return NewTaskID()
}

// RandomTrailer returns a short random lowercase-alphanumeric string, used
// for ephemeral per-request correlation ids (distinct from task/artifact
// identifiers, which use NewTaskID).
func RandomTrailer(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyz0123456789"
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	res := make([]byte, length)
	for i := 0; i < length; i++ {
		res[i] = charset[r.Intn(len(charset))]
	}
	return string(res)
}

const safeFilenameChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_-."

// SanitizeFilename strips path separators, control characters and any
// non-portable character from a user-supplied filename, per §4.6.5. It is
// idempotent: SanitizeFilename(SanitizeFilename(s)) == SanitizeFilename(s).
func SanitizeFilename(name string) string {
	// Strip any path component first; we only ever want the leaf name.
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if strings.ContainsRune(safeFilenameChars, r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}

	out := b.String()
	out = strings.TrimLeft(out, ".")
	if out == "" {
		out = "file"
	}
	return out
}
