package models

import (
	"feed-aggregator/internal/metadata"
)

// Feed is the header information of one parse run. It is re-derived from
// every fetch; only title, homepage URL and metadata outlive the parse by
// being merged into the subscription.
type Feed struct {
	Title       string `json:"title"`
	HTMLURL     string `json:"html_url"`
	ImageURL    string `json:"image_url,omitempty"`
	Description string `json:"description,omitempty"`
	Generator   string `json:"generator,omitempty"`

	// Time is the feed-level timestamp (pubDate / updated); items without
	// an own time inherit it.
	Time int64 `json:"time"`

	// DefaultInterval is an update interval in minutes that the processor
	// copies into the subscription when non-zero. The bundled parsers leave
	// it 0: ttl and syn:updatePeriod go straight to
	// Subscription.SetDefaultInterval.
	DefaultInterval int `json:"default_interval"`

	Metadata metadata.List `json:"-"`
}

// SetTitle stores the feed title; the first occurrence wins.
func (f *Feed) SetTitle(title string) {
	if f.Title == "" && title != "" {
		f.Title = title
	}
}

// OverrideTitle replaces a previously parsed title. Namespaced handlers
// (e.g. dc:title) take precedence over the format-native tag.
func (f *Feed) OverrideTitle(title string) {
	if title != "" {
		f.Title = title
	}
}

// SetHTMLURL stores the homepage URL; the first occurrence wins.
func (f *Feed) SetHTMLURL(url string) {
	if f.HTMLURL == "" && url != "" {
		f.HTMLURL = url
	}
}
