// Package subscription drives the lifecycle of one subscription refresh:
// fetched bytes in, parsed, merged and persisted items out.
package subscription

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"feed-aggregator/internal/merge"
	"feed-aggregator/internal/metadata"
	"feed-aggregator/internal/models"
	"feed-aggregator/internal/parsers"
	"feed-aggregator/internal/store"
	"feed-aggregator/internal/update"
)

// ProcessOptions modify how a fetch result is applied.
type ProcessOptions struct {
	// ResetTitle replaces the user-visible title with the feed's own.
	ResetTitle bool
}

// Result summarizes one applied refresh.
type Result struct {
	NewItems     int
	UpdatedItems int
	NotModified  bool
}

// Processor applies finished update requests to subscriptions.
type Processor struct {
	store      *store.ItemStore
	dispatcher *parsers.Dispatcher
	merger     *merge.Merger
	maxItems   int
	logger     zerolog.Logger
}

// NewProcessor wires the parse, merge and persistence stages together.
func NewProcessor(st *store.ItemStore, dispatcher *parsers.Dispatcher, maxItems int, logger zerolog.Logger) *Processor {
	return &Processor{
		store:      st,
		dispatcher: dispatcher,
		merger:     merge.New(logger),
		maxItems:   maxItems,
		logger:     logger.With().Str("component", "subscription").Logger(),
	}
}

// BuildRequest creates the update request for a subscription refresh,
// carrying its conditional-GET state, credentials and filter.
func BuildRequest(sub *models.Subscription, priority update.Priority, cb update.Callback) *update.Request {
	r := update.NewRequest(sub.Source, cb)
	r.Priority = priority
	r.FilterCmd = sub.FilterCmd
	r.UserData = sub.NodeID
	r.State = update.State{
		ETag:         sub.ETag,
		LastModified: sub.LastModified,
		Cookies:      sub.Cookies,
		LastPoll:     sub.LastPoll,
	}
	r.Options = update.Options{
		Username: sub.Username,
		Password: sub.Password,
		NoProxy:  sub.NoProxy,
	}
	return r
}

// Process applies a finished fetch. It never runs concurrently for one
// node; the caller holds the subscription's updating flag and this method
// releases it.
func (p *Processor) Process(sub *models.Subscription, r *update.Request, opts ProcessOptions) (*Result, error) {
	defer sub.EndUpdate()

	sub.LastPoll = time.Now().Unix()

	if r.HTTPStatus == 304 {
		// unchanged; the conditional state stays valid
		sub.Available = true
		p.logger.Debug().Str("node_id", sub.NodeID).Msg("Feed not modified")
		return &Result{NotModified: true}, nil
	}

	switch r.ReturnCode {
	case update.ResultOK:
	case update.ErrAuthFailed:
		sub.Available = false
		return nil, fmt.Errorf("authentication failed for %q", sub.Source)
	case update.ErrFilter:
		sub.Available = false
		sub.AddParseError(fmt.Sprintf("Filter command failed: %s", r.FilterErrors))
		return nil, fmt.Errorf("filter failed for %q: %s", sub.Source, r.FilterErrors)
	default:
		sub.Available = false
		return nil, fmt.Errorf("download of %q failed: %s", sub.Source, r.ReturnCode)
	}

	if len(r.Data) == 0 {
		sub.Available = false
		return nil, fmt.Errorf("empty response for %q (HTTP %d)", sub.Source, r.HTTPStatus)
	}

	sub.ResetParseErrors()
	// feed metadata is re-derived from every parse
	sub.Metadata = metadata.List{}

	ctx := parsers.NewContext(sub, p.logger)
	if err := p.dispatcher.Parse(ctx, r.Data); err != nil {
		sub.Available = false
		update.ParseFailuresTotal.Inc()
		return nil, fmt.Errorf("parsing %q failed: %w", sub.Source, err)
	}

	sub.Available = true
	sub.ETag = r.State.ETag
	sub.LastModified = r.State.LastModified

	// the feed header only outlives the parse through the subscription
	ctx.Feed.Metadata.ForEach(sub.Metadata.Append)

	if ctx.Feed.HTMLURL != "" {
		sub.HTMLURL = ctx.Feed.HTMLURL
	}
	if sub.Title == "" || opts.ResetTitle {
		if ctx.Feed.Title != "" {
			sub.Title = ctx.Feed.Title
		}
	}
	if ctx.Feed.DefaultInterval != 0 {
		sub.DefaultInterval = ctx.Feed.DefaultInterval
	}

	result, err := p.mergeAndStore(sub, ctx)
	if err != nil {
		return nil, err
	}

	p.logger.Info().
		Str("node_id", sub.NodeID).
		Str("title", sub.Title).
		Int("new_items", result.NewItems).
		Int("updated_items", result.UpdatedItems).
		Msg("Subscription updated")

	return result, nil
}

func (p *Processor) mergeAndStore(sub *models.Subscription, ctx *parsers.Context) (*Result, error) {
	existing, err := p.store.LoadItemSet(sub.NodeID)
	if err != nil {
		// a failing bulk load fails the whole refresh
		return nil, fmt.Errorf("loading itemset for %q failed: %w", sub.NodeID, err)
	}

	merged := p.merger.Merge(existing, ctx.Items)

	for _, item := range merged.New {
		if err := p.store.SaveItem(item); err != nil {
			// single item failures skip that item
			p.logger.Error().Err(err).Str("title", item.Title).Msg("Failed to store new item")
		}
	}
	for _, item := range merged.Updated {
		if err := p.store.SaveItem(item); err != nil {
			p.logger.Error().Err(err).Int64("item_id", item.ID).Msg("Failed to store updated item")
		}
	}

	if err := p.store.TrimNode(sub.NodeID, p.maxItems); err != nil {
		p.logger.Error().Err(err).Str("node_id", sub.NodeID).Msg("Failed to trim itemset")
	}

	return &Result{
		NewItems:     len(merged.New),
		UpdatedItems: len(merged.Updated),
	}, nil
}
