// Package availability decides which providers are usable from local credential presence.
package availability

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/content-orchestrator/internal/types"
)

// DefaultTTL is how long a snapshot is reused before credentials are re-read
const DefaultTTL = 60 * time.Second

// CredentialLookup returns the configured credential for a provider, or ""
type CredentialLookup func(provider types.ProviderID) string

// EnvCredentials looks credentials up in environment variables
func EnvCredentials(envVars map[types.ProviderID]string) CredentialLookup {
	return func(provider types.ProviderID) string {
		name, ok := envVars[provider]
		if !ok {
			return ""
		}
		return os.Getenv(name)
	}
}

// StaticCredentials is a fixed credential map, mostly for tests
func StaticCredentials(creds map[types.ProviderID]string) CredentialLookup {
	return func(provider types.ProviderID) string {
		return creds[provider]
	}
}

// Snapshot is a point-in-time view of usable providers
type Snapshot struct {
	Usable    map[types.ProviderID]bool `json:"usable"`
	CheckedAt time.Time                 `json:"checked_at"`
}

// IsAvailable reports whether a provider has credentials
func (s Snapshot) IsAvailable(provider types.ProviderID) bool {
	return s.Usable[provider]
}

// Available lists usable providers sorted by name
func (s Snapshot) Available() []types.ProviderID {
	var out []types.ProviderID
	for p, ok := range s.Usable {
		if ok {
			out = append(out, p)
		}
	}
	types.SortProviders(out)
	return out
}

// Any reports whether at least one provider is usable
func (s Snapshot) Any() bool {
	for _, ok := range s.Usable {
		if ok {
			return true
		}
	}
	return false
}

// Detector caches credential presence for a TTL window. It never performs network I/O.
type Detector struct {
	providers []types.ProviderID
	lookup    CredentialLookup
	ttl       time.Duration
	now       func() time.Time
	logger    *logrus.Logger

	mu       sync.Mutex
	snapshot Snapshot
	valid    bool
}

// Option configures a Detector
type Option func(*Detector)

// WithTTL overrides the cache window
func WithTTL(ttl time.Duration) Option {
	return func(d *Detector) {
		if ttl > 0 {
			d.ttl = ttl
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(d *Detector) {
		d.now = now
	}
}

// NewDetector creates a detector over the given providers
func NewDetector(providers []types.ProviderID, lookup CredentialLookup, logger *logrus.Logger, opts ...Option) *Detector {
	d := &Detector{
		providers: append([]types.ProviderID(nil), providers...),
		lookup:    lookup,
		ttl:       DefaultTTL,
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Get returns the cached snapshot, refreshing it when the TTL has elapsed
func (d *Detector) Get() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if d.valid && now.Sub(d.snapshot.CheckedAt) < d.ttl {
		return d.snapshot.clone()
	}

	usable := make(map[types.ProviderID]bool, len(d.providers))
	for _, p := range d.providers {
		usable[p] = strings.TrimSpace(d.lookup(p)) != ""
	}
	d.snapshot = Snapshot{Usable: usable, CheckedAt: now}
	d.valid = true

	if d.logger != nil {
		d.logger.WithFields(logrus.Fields{
			"available": d.snapshot.Available(),
			"ttl":       d.ttl.String(),
		}).Debug("Provider availability refreshed")
	}

	return d.snapshot.clone()
}

// Invalidate forces the next Get to re-read credentials
func (d *Detector) Invalidate() {
	d.mu.Lock()
	d.valid = false
	d.mu.Unlock()
}

func (s Snapshot) clone() Snapshot {
	usable := make(map[types.ProviderID]bool, len(s.Usable))
	for k, v := range s.Usable {
		usable[k] = v
	}
	return Snapshot{Usable: usable, CheckedAt: s.CheckedAt}
}
