package parsers

import (
	"fmt"

	"github.com/antchfx/xmlquery"
	"github.com/rs/zerolog"

	"feed-aggregator/internal/xmlutil"
)

// FetchFunc downloads a URL synchronously. The blogChannel handler uses it
// for nested OPML fetches; the update engine provides the implementation.
type FetchFunc func(url string) ([]byte, error)

// FormatParser is one feed format driver. CheckFormat must be cheap; the
// first parser claiming the document root wins.
type FormatParser interface {
	Name() string
	CheckFormat(root *xmlquery.Node) bool
	Parse(ctx *Context, root *xmlquery.Node)
}

// Dispatcher selects and runs the right format parser for raw feed bytes.
type Dispatcher struct {
	parsers []FormatParser
	logger  zerolog.Logger
}

// NewDispatcher creates a dispatcher with all supported formats. Order
// matters: the Atom 1.0 check is namespace-qualified and must run before
// the lax Atom 0.3 check.
func NewDispatcher(logger zerolog.Logger, fetch FetchFunc) *Dispatcher {
	registry := NewRegistry(defaultHandlers(fetch)...)

	return &Dispatcher{
		parsers: []FormatParser{
			newRSSParser(registry),
			newAtom10Parser(registry),
			newAtom03Parser(registry),
			newCDFParser(),
			newOPMLParser(),
		},
		logger: logger.With().Str("component", "feed_dispatcher").Logger(),
	}
}

// Parse turns raw bytes into a populated context. Parse errors inside a
// recognized format are recoverable and recorded in the subscription; an
// error return means no format could be detected at all.
func (d *Dispatcher) Parse(ctx *Context, data []byte) error {
	doc, err := xmlutil.Parse(data)
	if err != nil {
		ctx.Error("XML error while reading feed: %v", err)
		return fmt.Errorf("feed not parseable: %w", err)
	}

	root := xmlutil.Root(doc)
	if root == nil {
		ctx.Error("Empty document!")
		return fmt.Errorf("feed has no root element")
	}

	for _, p := range d.parsers {
		if !p.CheckFormat(root) {
			continue
		}

		d.logger.Debug().
			Str("format", p.Name()).
			Str("source", ctx.Subscription.Source).
			Msg("Feed format detected")
		p.Parse(ctx, root)

		d.logger.Debug().
			Str("format", p.Name()).
			Int("items", len(ctx.Items)).
			Str("title", ctx.Feed.Title).
			Msg("Feed parsed")
		return nil
	}

	ctx.Error("Could not determine feed format!")
	return fmt.Errorf("unsupported feed format")
}

// defaultHandlers builds the namespace handler set shared by the RSS and
// Atom parsers.
func defaultHandlers(fetch FetchFunc) []*NsHandler {
	return []*NsHandler{
		newDCHandler(),
		newContentHandler(),
		newSlashHandler(),
		newSynHandler(),
		newAdminHandler(),
		newAgHandler(),
		newCCHandler(),
		newBlogChannelHandler(fetch),
		newFMHandler(),
		newMediaHandler(),
		newPhotoHandler(),
		newWfwHandler(),
		newTrackbackHandler(),
		newGeoRSSHandler(),
	}
}
