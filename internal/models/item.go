package models

import (
	"feed-aggregator/internal/metadata"
)

// Item is a single article belonging to exactly one node.
type Item struct {
	// ID is assigned by the store on first insert and never changes.
	ID     int64  `json:"id"`
	NodeID string `json:"node_id"`

	Title  string `json:"title"`
	Source string `json:"source"`

	// GUID is the free-form identifier supplied by the feed; ValidGUID is
	// true only when the feed supplied it explicitly.
	GUID      string `json:"guid,omitempty"`
	ValidGUID bool   `json:"valid_guid"`

	// Description holds HTML. XHTML sources are wrapped in a
	// <div xmlns="http://www.w3.org/1999/xhtml"> wrapper.
	Description string `json:"description,omitempty"`

	// Time is a UNIX timestamp; 0 after parsing means unknown and inherits
	// the feed time.
	Time int64 `json:"time"`

	Read    bool `json:"read"`
	New     bool `json:"new"`
	Updated bool `json:"updated"`
	Popup   bool `json:"popup"`
	Flagged bool `json:"flagged"`

	// Real source of items quoted from another feed.
	RealSourceURL   string `json:"real_source_url,omitempty"`
	RealSourceTitle string `json:"real_source_title,omitempty"`

	HasEnclosure bool `json:"has_enclosure"`

	Metadata metadata.List `json:"-"`
}

// NewItem returns an item with the defaults of a freshly parsed article.
// Description stays empty here; the parse context owns the precedence
// rules for filling it.
func NewItem() *Item {
	return &Item{New: true}
}
