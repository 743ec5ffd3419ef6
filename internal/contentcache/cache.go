package contentcache

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/eliasantony/recallr-api/internal/postid"
)

// DefaultTTL is how long a cached extraction result is considered fresh.
const DefaultTTL = 24 * time.Hour

// Cache is a file-backed TTL cache mapping a URL fingerprint to the last
// successful pipeline result for that URL. Entries are overwritten in place;
// stale entries are never purged, only ignored.
type Cache struct {
	Dir string
	TTL time.Duration

	// now is a test seam.
	now func() time.Time
}

type envelope struct {
	WrittenAt time.Time       `json:"written_at"`
	Payload   json.RawMessage `json:"payload"`
}

func New(dir string) *Cache {
	return &Cache{Dir: dir, TTL: DefaultTTL, now: time.Now}
}

func (c *Cache) path(url string) string {
	return filepath.Join(c.Dir, postid.Fingerprint(url)+".json")
}

// Read returns the cached payload for url if a fresh entry exists.
// Missing, stale and corrupt entries all read as a miss, never an error.
func (c *Cache) Read(url string) (json.RawMessage, bool) {
	raw, err := os.ReadFile(c.path(url))
	if err != nil {
		return nil, false
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		slog.Warn("content cache entry corrupt, treating as miss", "path", c.path(url), "error", err)
		return nil, false
	}
	if len(env.Payload) == 0 {
		return nil, false
	}

	if c.now().Sub(env.WrittenAt) >= c.TTL {
		return nil, false
	}
	return env.Payload, true
}

// Write unconditionally overwrites the entry for url.
func (c *Cache) Write(url string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	env := envelope{WrittenAt: c.now(), Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(c.path(url), data, 0o644)
}
