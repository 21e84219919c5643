// Package parsers implements feed format detection, the per-format
// parsers and the namespace handler registry.
package parsers

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"feed-aggregator/internal/models"
	"feed-aggregator/internal/uri"
)

// Description precedence within one parse: once a description was set from
// a higher-precedence source it may not be replaced by a lower one.
const (
	descPrioNone    = 0
	descPrioSummary = 1 // <description> / <summary>
	descPrioContent = 2 // Atom <content>
	descPrioEncoded = 3 // content:encoded
)

// Context carries the state of one parse run. It is not safe for
// concurrent use; every fetch result gets its own context.
type Context struct {
	Feed         *models.Feed
	Subscription *models.Subscription

	// Item is the item currently being parsed; Tmp is its scratch space,
	// discarded when the item is finished.
	Item *models.Item
	Tmp  map[string]string

	Items []*models.Item

	descPrio int
	logger   zerolog.Logger
}

// NewContext creates a parse context for the given subscription.
func NewContext(sub *models.Subscription, logger zerolog.Logger) *Context {
	return &Context{
		Feed:         &models.Feed{},
		Subscription: sub,
		logger:       logger.With().Str("component", "parser").Logger(),
	}
}

// Error records a recoverable parse problem. Parsing always continues; the
// message ends up in the subscription's error buffer.
func (c *Context) Error(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	c.logger.Debug().Str("source", c.Subscription.Source).Msg(msg)
	c.Subscription.AddParseError(msg)
}

// BeginItem starts a fresh item with its scratch dictionary.
func (c *Context) BeginItem() *models.Item {
	c.Item = models.NewItem()
	c.Item.NodeID = c.Subscription.NodeID
	c.Tmp = make(map[string]string)
	c.descPrio = descPrioNone
	return c.Item
}

// SetItemDescription applies the description precedence rules for the
// current item.
func (c *Context) SetItemDescription(desc string, prio int) {
	if desc == "" || prio <= c.descPrio {
		return
	}
	c.Item.Description = desc
	c.descPrio = prio
}

// SetItemTitle stores the item title; the first occurrence wins.
func (c *Context) SetItemTitle(title string) {
	if c.Item.Title == "" && title != "" {
		c.Item.Title = title
	}
}

// SetItemSource stores the item link; the first occurrence wins.
func (c *Context) SetItemSource(src string) {
	if c.Item.Source == "" && src != "" {
		c.Item.Source = src
	}
}

// SetItemTime stores the item timestamp when the value parsed to something
// usable.
func (c *Context) SetItemTime(t int64) {
	if t != 0 {
		c.Item.Time = t
	}
}

// FinishItem normalizes the current item and appends it to the result
// list. Synthetic identity is computed before feed-time inheritance so
// that dateless items keep a stable id across fetches.
func (c *Context) FinishItem() {
	item := c.Item
	if item == nil {
		return
	}

	if item.GUID == "" && item.Source == "" {
		item.GUID = syntheticID(item)
	}
	if item.Time == 0 && c.Feed.Time > 0 {
		item.Time = c.Feed.Time
	}
	c.Items = append(c.Items, item)
	c.Item = nil
	c.Tmp = nil
	c.descPrio = descPrioNone
}

// syntheticID derives a stable identifier from title, time and a
// description prefix for items that carry neither GUID nor link.
func syntheticID(item *models.Item) string {
	desc := item.Description
	if len(desc) > 128 {
		desc = desc[:128]
	}
	content := fmt.Sprintf("%s|%d|%s", item.Title, item.Time, desc)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(content)).String()
}

// AddEnclosure resolves the URL against the feed homepage when it has no
// scheme and records it as enclosure metadata.
func (c *Context) AddEnclosure(url string) {
	url = strings.TrimSpace(url)
	if url == "" {
		return
	}

	if !strings.Contains(url, "://") && strings.Contains(c.Feed.HTMLURL, "://") {
		url = uri.BuildURL(url, c.Feed.HTMLURL)
	}

	c.Item.Metadata.Append("enclosure", url)
	c.Item.HasEnclosure = true
}
