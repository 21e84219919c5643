package update

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultConcurrency = 4
	normalPollTimeout  = 5 * time.Second
	resultTickInterval = 100 * time.Millisecond

	// Retry backoff: base delay (tripled per retry by RetryDelay), upper
	// bound, retry limit.
	retryBaseDelay = 30 * time.Second
	retryMaxDelay  = 10 * time.Minute
	maxRetries     = 3
)

// Config carries the update engine settings.
type Config struct {
	Concurrency   int
	Timeout       time.Duration
	UserAgent     string
	ProxyURL      string
	EnableRetries bool
}

// Manager owns the request queues, the worker pool, the online gate and
// the result dispatch loop.
type Manager struct {
	cfg    Config
	client *httpClient
	logger zerolog.Logger

	high    *requestQueue
	normal  *requestQueue
	results *requestQueue

	onlineMu   sync.Mutex
	onlineCond *sync.Cond
	online     bool

	stopCh  chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewManager creates an update manager. Workers start with Start.
func NewManager(cfg Config, logger zerolog.Logger) *Manager {
	if cfg.Concurrency < 2 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "feed-aggregator/1.0"
	}

	m := &Manager{
		cfg:     cfg,
		logger:  logger.With().Str("component", "update_manager").Logger(),
		high:    newRequestQueue(),
		normal:  newRequestQueue(),
		results: newRequestQueue(),
		online:  true,
		stopCh:  make(chan struct{}),
	}
	m.onlineCond = sync.NewCond(&m.onlineMu)
	m.client = newHTTPClient(cfg.Timeout, cfg.UserAgent, cfg.ProxyURL, logger)
	return m
}

// Start launches the worker pool and the result dispatcher. Worker 0 is
// reserved for the high priority queue; the others drain high priority
// first and block on the normal queue with a short timeout so they can
// recheck.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		m.logger.Warn().Msg("Update manager is already running")
		return
	}
	m.running = true

	for i := 0; i < m.cfg.Concurrency; i++ {
		m.wg.Add(1)
		go m.worker(i, i == 0)
	}

	m.wg.Add(1)
	go m.dispatchResults()

	m.logger.Info().
		Int("worker_count", m.cfg.Concurrency).
		Bool("retries_enabled", m.cfg.EnableRetries).
		Msg("Update manager started")
}

// Stop shuts down workers and the dispatcher. Queued requests are dropped.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.running = false

	m.stopped.Do(func() { close(m.stopCh) })
	m.high.Close()
	m.normal.Close()
	m.results.Close()

	// wake anything blocked on the offline gate
	m.onlineMu.Lock()
	m.onlineCond.Broadcast()
	m.onlineMu.Unlock()

	m.wg.Wait()
	m.logger.Info().Msg("Update manager stopped")
}

// Enqueue moves a request to Pending and queues it by priority.
func (m *Manager) Enqueue(r *Request) {
	r.setState(StatePending)
	if r.Priority == PriorityHigh {
		m.high.Push(r)
	} else {
		m.normal.Push(r)
	}
	queueLength.WithLabelValues("high").Set(float64(m.high.Len()))
	queueLength.WithLabelValues("normal").Set(float64(m.normal.Len()))

	m.logger.Debug().
		Str("source", r.Source).
		Bool("high_priority", r.Priority == PriorityHigh).
		Msg("Request queued")
}

// SetOnline flips the online gate. Going online wakes all blocked workers.
func (m *Manager) SetOnline(online bool) {
	m.onlineMu.Lock()
	defer m.onlineMu.Unlock()
	if m.online == online {
		return
	}
	m.online = online
	if online {
		m.onlineCond.Broadcast()
	}
	m.logger.Info().Bool("online", online).Msg("Online mode changed")
}

// Online reports the state of the online gate.
func (m *Manager) Online() bool {
	m.onlineMu.Lock()
	defer m.onlineMu.Unlock()
	return m.online
}

// waitOnline blocks the calling worker while offline.
func (m *Manager) waitOnline() {
	m.onlineMu.Lock()
	defer m.onlineMu.Unlock()
	for !m.online {
		select {
		case <-m.stopCh:
			return
		default:
		}
		m.onlineCond.Wait()
	}
}

func (m *Manager) worker(id int, highOnly bool) {
	defer m.wg.Done()

	logger := m.logger.With().Int("worker_id", id).Logger()
	logger.Debug().Msg("Worker started")
	defer logger.Debug().Msg("Worker stopped")

	for {
		select {
		case <-m.stopCh:
			return
		default:
		}

		// no fetches begin while offline
		m.waitOnline()

		var r *Request
		if highOnly {
			r = m.high.Pop()
		} else {
			if r = m.high.TryPop(); r == nil {
				r = m.normal.PopTimeout(normalPollTimeout)
			}
		}
		if r == nil {
			select {
			case <-m.stopCh:
				return
			default:
				continue
			}
		}

		// the gate may have closed while this worker waited on a queue
		m.waitOnline()
		select {
		case <-m.stopCh:
			return
		default:
		}

		r.setState(StateProcessing)

		if r.Cancelled() {
			logger.Debug().Str("source", r.Source).Msg("Dropping cancelled request")
			continue
		}

		logger.Debug().Str("source", r.Source).Msg("Processing request")
		m.execute(r)
		m.results.Push(r)
	}
}

// execute runs one fetch attempt synchronously on the worker.
func (m *Manager) execute(r *Request) {
	switch {
	case strings.HasPrefix(r.Source, "|"):
		execCommand(r, m.cfg.Timeout, m.logger)
	case strings.Contains(r.Source, "://") && !strings.HasPrefix(r.Source, "file://"):
		m.client.download(r)
	default:
		loadFile(r)
	}

	if len(r.Data) > 0 && r.FilterCmd != "" {
		applyFilter(r, m.cfg.Timeout, m.logger)
	}

	fetchesTotal.WithLabelValues(r.ReturnCode.String()).Inc()
	if r.HTTPStatus == 304 {
		notModifiedTotal.Inc()
	}
}

// dispatchResults drains the result queue on a timer and runs callbacks on
// this single goroutine, so callers never need per-callback locking.
func (m *Manager) dispatchResults() {
	defer m.wg.Done()

	ticker := time.NewTicker(resultTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			for {
				r := m.results.TryPop()
				if r == nil {
					break
				}
				m.finishRequest(r)
			}
		}
	}
}

func (m *Manager) finishRequest(r *Request) {
	r.setState(StateFinished)

	// abandoned requests (e.g. after feed deletion) are dropped silently
	if r.Cancelled() {
		m.logger.Debug().Str("source", r.Source).Msg("Freeing cancelled request")
		return
	}

	if r.ReturnCode.Retriable() && r.AllowRetries && m.cfg.EnableRetries {
		if r.Retries() < maxRetries {
			m.scheduleRetry(r)
			return
		}
		m.logger.Debug().Str("source", r.Source).Msg("Retry count exceeded")
	}

	if cb := r.takeCallback(); cb != nil {
		cb(r)
	}
}

// scheduleRetry requeues the request after the backoff delay. A
// cancellation observed at requeue time frees the request instead.
func (m *Manager) scheduleRetry(r *Request) {
	delay := RetryDelay(r.Retries())
	attempt := r.incRetries()
	retriesTotal.Inc()

	m.logger.Info().
		Str("source", r.Source).
		Int("attempt", attempt).
		Dur("delay", delay).
		Msg("Retrying download")

	r.resetResult()
	time.AfterFunc(delay, func() {
		if r.Cancelled() {
			m.logger.Debug().Str("source", r.Source).Msg("Freeing cancelled retry")
			return
		}
		select {
		case <-m.stopCh:
			return
		default:
			m.Enqueue(r)
		}
	})
}

// RetryDelay returns the backoff before retry number n (0-based): the base
// delay tripled per previous retry, bounded by the maximum.
func RetryDelay(n int) time.Duration {
	delay := retryBaseDelay
	for i := 0; i < n; i++ {
		delay *= 3
		if delay > retryMaxDelay {
			return retryMaxDelay
		}
	}
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}

// Fetch downloads a URL synchronously with the manager's client. Namespace
// handlers performing nested fetches (blogChannel) call it during the
// parse; in the engine the parse runs in the request callback on the
// result dispatch goroutine, not on a fetch worker.
func (m *Manager) Fetch(url string) ([]byte, error) {
	r := NewRequest(url, nil)
	r.AllowRetries = false
	m.client.download(r)

	if r.ReturnCode != ResultOK {
		return nil, fmt.Errorf("download failed: %s", r.ReturnCode)
	}
	if r.HTTPStatus >= 400 {
		return nil, fmt.Errorf("download failed: HTTP %d", r.HTTPStatus)
	}
	return r.Data, nil
}
