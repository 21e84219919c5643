// Package engine wires the store, the update manager, the parsers and the
// scheduler into the aggregation facade used by the daemon and its API.
package engine

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"feed-aggregator/internal/config"
	"feed-aggregator/internal/models"
	"feed-aggregator/internal/parsers"
	"feed-aggregator/internal/scheduler"
	"feed-aggregator/internal/store"
	"feed-aggregator/internal/subscription"
	"feed-aggregator/internal/update"
)

// UpdateFlags modify a triggered refresh.
type UpdateFlags int

const (
	// FlagPriorityHigh queues the fetch on the user-priority queue.
	FlagPriorityHigh UpdateFlags = 1 << iota
	// FlagResetTitle resets the subscription title to the feed's own.
	FlagResetTitle
)

// SubscribeOptions carries the optional attributes of a new subscription.
type SubscribeOptions struct {
	Title          string
	UpdateInterval int
	FilterCmd      string
	Username       string
	Password       string
	NoProxy        bool
}

// UpdateListener is notified after every applied refresh.
type UpdateListener func(nodeID string, result *subscription.Result, err error)

// Engine is the aggregation core facade.
type Engine struct {
	cfg    *config.Config
	logger zerolog.Logger

	store     *store.ItemStore
	updates   *update.Manager
	processor *subscription.Processor
	sched     *scheduler.Scheduler

	mu   sync.RWMutex
	subs map[string]*models.Subscription

	listenerMu sync.RWMutex
	listener   UpdateListener

	feedListPath string
}

// New builds an engine from the configuration. Start must be called before
// use.
func New(cfg *config.Config, logger zerolog.Logger) (*Engine, error) {
	st, err := store.Open(cfg.Database.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open item store: %w", err)
	}

	updates := update.NewManager(update.Config{
		Concurrency:   cfg.Update.Concurrency,
		Timeout:       cfg.Network.Timeout,
		UserAgent:     cfg.Network.UserAgent,
		ProxyURL:      proxyURL(cfg),
		EnableRetries: cfg.Update.EnableRetries,
	}, logger)

	dispatcher := parsers.NewDispatcher(logger, updates.Fetch)

	return &Engine{
		cfg:          cfg,
		logger:       logger.With().Str("component", "engine").Logger(),
		store:        st,
		updates:      updates,
		processor:    subscription.NewProcessor(st, dispatcher, cfg.Update.MaxItems, logger),
		sched:        scheduler.New(logger),
		subs:         make(map[string]*models.Subscription),
		feedListPath: filepath.Join(filepath.Dir(cfg.Database.Path), "feedlist.opml"),
	}, nil
}

func newNodeID() string {
	return uuid.New().String()
}

func proxyURL(cfg *config.Config) string {
	if cfg.Network.ProxyHost == "" {
		return ""
	}
	auth := ""
	if cfg.Network.ProxyUser != "" {
		auth = cfg.Network.ProxyUser + ":" + cfg.Network.ProxyPassword + "@"
	}
	return fmt.Sprintf("http://%s%s:%d", auth, cfg.Network.ProxyHost, cfg.Network.ProxyPort)
}

// Start brings up workers and scheduling and restores the persisted feed
// list.
func (e *Engine) Start() error {
	e.updates.Start()
	e.sched.Start()

	if err := e.loadFeedList(); err != nil {
		e.logger.Warn().Err(err).Msg("Could not restore feed list")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, sub := range e.subs {
		e.scheduleSubscription(sub)
	}

	e.logger.Info().Int("subscriptions", len(e.subs)).Msg("Engine started")
	return nil
}

// Stop persists the feed list and shuts everything down.
func (e *Engine) Stop() {
	if err := e.saveFeedList(); err != nil {
		e.logger.Error().Err(err).Msg("Could not save feed list")
	}

	e.sched.Stop()
	e.updates.Stop()
	if err := e.store.Close(); err != nil {
		e.logger.Error().Err(err).Msg("Could not close item store")
	}
	e.logger.Info().Msg("Engine stopped")
}

// OnUpdated registers the listener notified after each refresh.
func (e *Engine) OnUpdated(listener UpdateListener) {
	e.listenerMu.Lock()
	defer e.listenerMu.Unlock()
	e.listener = listener
}

func (e *Engine) notify(nodeID string, result *subscription.Result, err error) {
	e.listenerMu.RLock()
	listener := e.listener
	e.listenerMu.RUnlock()
	if listener != nil {
		listener(nodeID, result, err)
	}
}

// Subscribe adds a new subscription and triggers its first fetch at high
// priority.
func (e *Engine) Subscribe(source string, opts SubscribeOptions) (string, error) {
	if source == "" {
		return "", fmt.Errorf("subscription source cannot be empty")
	}

	sub := &models.Subscription{
		NodeID:         newNodeID(),
		Source:         source,
		Title:          opts.Title,
		UpdateInterval: opts.UpdateInterval,
		FilterCmd:      opts.FilterCmd,
		Username:       opts.Username,
		Password:       opts.Password,
		NoProxy:        opts.NoProxy,
		Available:      true,
	}

	e.mu.Lock()
	e.subs[sub.NodeID] = sub
	e.mu.Unlock()

	e.scheduleSubscription(sub)

	if err := e.Update(sub.NodeID, FlagPriorityHigh); err != nil {
		e.logger.Warn().Err(err).Str("node_id", sub.NodeID).Msg("Initial update failed to queue")
	}

	if err := e.saveFeedList(); err != nil {
		e.logger.Error().Err(err).Msg("Could not save feed list")
	}

	e.logger.Info().Str("node_id", sub.NodeID).Str("source", source).Msg("Subscription added")
	return sub.NodeID, nil
}

// Unsubscribe removes a subscription and all its items.
func (e *Engine) Unsubscribe(nodeID string) error {
	e.mu.Lock()
	sub, ok := e.subs[nodeID]
	if ok {
		delete(e.subs, nodeID)
	}
	e.mu.Unlock()

	if !ok {
		return fmt.Errorf("unknown node %q", nodeID)
	}

	e.sched.Remove(nodeID)
	if err := e.store.RemoveItemSet(nodeID); err != nil {
		return err
	}

	if err := e.saveFeedList(); err != nil {
		e.logger.Error().Err(err).Msg("Could not save feed list")
	}

	e.logger.Info().Str("node_id", nodeID).Str("source", sub.Source).Msg("Subscription removed")
	return nil
}

// Subscription returns a subscription by node id.
func (e *Engine) Subscription(nodeID string) (*models.Subscription, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	sub, ok := e.subs[nodeID]
	return sub, ok
}

// Subscriptions lists all subscriptions.
func (e *Engine) Subscriptions() []*models.Subscription {
	e.mu.RLock()
	defer e.mu.RUnlock()
	subs := make([]*models.Subscription, 0, len(e.subs))
	for _, sub := range e.subs {
		subs = append(subs, sub)
	}
	return subs
}

// Update queues a refresh of one node. A node has at most one in-flight
// update; concurrent triggers are ignored.
func (e *Engine) Update(nodeID string, flags UpdateFlags) error {
	sub, ok := e.Subscription(nodeID)
	if !ok {
		return fmt.Errorf("unknown node %q", nodeID)
	}

	if !sub.BeginUpdate() {
		e.logger.Debug().Str("node_id", nodeID).Msg("Update already in flight")
		return nil
	}

	priority := update.PriorityNormal
	if flags&FlagPriorityHigh != 0 {
		priority = update.PriorityHigh
	}
	opts := subscription.ProcessOptions{ResetTitle: flags&FlagResetTitle != 0}

	r := subscription.BuildRequest(sub, priority, func(req *update.Request) {
		result, err := e.processor.Process(sub, req, opts)
		if err != nil {
			e.logger.Warn().Err(err).Str("node_id", nodeID).Msg("Refresh failed")
		} else if result.NewItems > 0 || result.UpdatedItems > 0 {
			// the feed may have announced a different interval
			e.scheduleSubscription(sub)
		}
		e.notify(nodeID, result, err)
	})

	e.updates.Enqueue(r)
	return nil
}

// UpdateAll queues a refresh for every subscription.
func (e *Engine) UpdateAll(flags UpdateFlags) {
	for _, sub := range e.Subscriptions() {
		if err := e.Update(sub.NodeID, flags); err != nil {
			e.logger.Warn().Err(err).Str("node_id", sub.NodeID).Msg("Failed to queue update")
		}
	}
}

// scheduleSubscription applies the effective polling interval of one node.
func (e *Engine) scheduleSubscription(sub *models.Subscription) {
	interval := sub.EffectiveInterval(e.cfg.Update.DefaultInterval)
	if interval == models.IntervalNever {
		e.sched.Remove(sub.NodeID)
		return
	}

	nodeID := sub.NodeID
	err := e.sched.Schedule(nodeID, time.Duration(interval)*time.Minute, func() {
		if err := e.Update(nodeID, 0); err != nil {
			e.logger.Warn().Err(err).Str("node_id", nodeID).Msg("Scheduled update failed")
		}
	})
	if err != nil {
		e.logger.Warn().Err(err).Str("node_id", sub.NodeID).Msg("Could not schedule subscription")
	}
}

// SetOnline flips the global online gate.
func (e *Engine) SetOnline(online bool) {
	e.updates.SetOnline(online)
}

// Online reports the online gate.
func (e *Engine) Online() bool {
	return e.updates.Online()
}

// LoadItemSet returns the stored items of a node.
func (e *Engine) LoadItemSet(nodeID string) ([]*models.Item, error) {
	return e.store.LoadItemSet(nodeID)
}

// LoadItem returns one item by id, or nil.
func (e *Engine) LoadItem(id int64) (*models.Item, error) {
	return e.store.LoadItem(id)
}

// MarkAllRead marks every item of a node as read.
func (e *Engine) MarkAllRead(nodeID string) error { return e.store.MarkAllRead(nodeID) }

// MarkAllUpdated clears the updated flags of a node.
func (e *Engine) MarkAllUpdated(nodeID string) error { return e.store.MarkAllUpdated(nodeID) }

// MarkAllOld clears the new flags of a node.
func (e *Engine) MarkAllOld(nodeID string) error { return e.store.MarkAllOld(nodeID) }

// MarkAllPopup clears the popup flags of a node.
func (e *Engine) MarkAllPopup(nodeID string) error { return e.store.MarkAllPopup(nodeID) }

// SaveItem persists per-item state changes (read, flagged, popup) made by
// collaborators.
func (e *Engine) SaveItem(item *models.Item) error { return e.store.SaveItem(item) }

// RemoveItem deletes one item.
func (e *Engine) RemoveItem(id int64) error { return e.store.RemoveItem(id) }

// RemoveItemSet deletes all items of a node.
func (e *Engine) RemoveItemSet(nodeID string) error { return e.store.RemoveItemSet(nodeID) }

// UnreadCount returns the unread item count of a node.
func (e *Engine) UnreadCount(nodeID string) (int, error) { return e.store.UnreadCount(nodeID) }

// StorePing verifies the database connection, used by health checks.
func (e *Engine) StorePing() error { return e.store.Ping() }
