package models

import (
	"strings"
	"sync"

	"feed-aggregator/internal/metadata"
)

// Update interval sentinels (minutes).
const (
	IntervalNever   = -1 // never auto-update
	IntervalDefault = 0  // use the configured default
)

// Subscription is a persistent fetchable source: a feed URL, a local file
// or a command starting with '|'. It is owned by exactly one node.
type Subscription struct {
	NodeID  string `json:"node_id"`
	Source  string `json:"source"`
	HTMLURL string `json:"html_url,omitempty"`
	Title   string `json:"title,omitempty"`

	// UpdateInterval in minutes; IntervalNever disables automatic updates,
	// IntervalDefault defers to DefaultInterval or the global default.
	UpdateInterval int `json:"update_interval"`

	// DefaultInterval may be set from the feed's own ttl or
	// syn:updatePeriod information.
	DefaultInterval int `json:"default_interval"`

	LastPoll        int64 `json:"last_poll"`
	LastFaviconPoll int64 `json:"last_favicon_poll"`

	// Conditional GET state.
	ETag         string `json:"etag,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
	Cookies      string `json:"-"`

	Username  string `json:"-"`
	Password  string `json:"-"`
	NoProxy   bool   `json:"no_proxy,omitempty"`
	FilterCmd string `json:"filter_cmd,omitempty"`

	// Available is cleared on permanent fetch or parse failure.
	Available bool `json:"available"`

	Metadata metadata.List `json:"-"`

	mu          sync.Mutex
	parseErrors strings.Builder
	updating    bool
}

// IsCommand reports whether the source is an external command.
func (s *Subscription) IsCommand() bool {
	return strings.HasPrefix(s.Source, "|")
}

// AddParseError appends a human-readable error line to the subscription's
// error buffer.
func (s *Subscription) AddParseError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parseErrors.WriteString(msg)
	s.parseErrors.WriteString("\n")
}

// ParseErrors returns the accumulated parse error text.
func (s *Subscription) ParseErrors() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.parseErrors.String()
}

// ResetParseErrors clears the error buffer before a new parse run.
func (s *Subscription) ResetParseErrors() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parseErrors.Reset()
}

// BeginUpdate marks the subscription as updating. It returns false when an
// update is already in flight, so a node never has two concurrent merges.
func (s *Subscription) BeginUpdate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updating {
		return false
	}
	s.updating = true
	return true
}

// EndUpdate clears the updating flag.
func (s *Subscription) EndUpdate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updating = false
}

// Updating reports whether an update is in flight.
func (s *Subscription) Updating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updating
}

// SetDefaultInterval records the interval suggested by the feed.
func (s *Subscription) SetDefaultInterval(minutes int) {
	if minutes != 0 {
		s.DefaultInterval = minutes
	}
}

// EffectiveInterval resolves the polling interval in minutes, falling back
// to the feed-suggested interval and then the given global default.
// IntervalNever disables polling.
func (s *Subscription) EffectiveInterval(globalDefault int) int {
	if s.UpdateInterval == IntervalNever {
		return IntervalNever
	}
	if s.UpdateInterval > 0 {
		return s.UpdateInterval
	}
	if s.DefaultInterval != 0 {
		return s.DefaultInterval
	}
	return globalDefault
}
