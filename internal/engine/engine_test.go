package engine

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feed-aggregator/internal/config"
	"feed-aggregator/internal/models"
	"feed-aggregator/internal/subscription"
)

const testFeed = `<rss version="2.0">
  <channel>
    <title>Engine Test Feed</title>
    <link>http://example.com/</link>
    <item><title>one</title><guid isPermaLink="false">g1</guid></item>
    <item><title>two</title><guid isPermaLink="false">g2</guid></item>
  </channel>
</rss>`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Environment: "development",
		LogLevel:    "disabled",
		Database:    config.DBConfig{Path: filepath.Join(dir, "test.db")},
		Update: config.UpdateConfig{
			Concurrency:     2,
			DefaultInterval: 60,
			MaxItems:        100,
			EnableRetries:   false,
		},
		Network: config.NetworkConfig{Timeout: 5 * time.Second},
	}
}

func testEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := New(testConfig(t), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, eng.Start())
	t.Cleanup(eng.Stop)
	return eng
}

func waitForUpdate(t *testing.T, eng *Engine) chan *subscription.Result {
	t.Helper()
	done := make(chan *subscription.Result, 8)
	eng.OnUpdated(func(nodeID string, result *subscription.Result, err error) {
		done <- result
	})
	return done
}

func TestSubscribeFetchesAndStoresItems(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testFeed))
	}))
	defer server.Close()

	eng := testEngine(t)
	done := waitForUpdate(t, eng)

	nodeID, err := eng.Subscribe(server.URL, SubscribeOptions{})
	require.NoError(t, err)

	select {
	case result := <-done:
		require.NotNil(t, result)
		assert.Equal(t, 2, result.NewItems)
	case <-time.After(10 * time.Second):
		t.Fatal("no update callback")
	}

	items, err := eng.LoadItemSet(nodeID)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	count, err := eng.UnreadCount(nodeID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	sub, ok := eng.Subscription(nodeID)
	require.True(t, ok)
	assert.Equal(t, "Engine Test Feed", sub.Title)
	assert.True(t, sub.Available)
}

func TestSecondFetchInsertsNothing(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(testFeed))
	}))
	defer server.Close()

	eng := testEngine(t)
	done := waitForUpdate(t, eng)

	nodeID, err := eng.Subscribe(server.URL, SubscribeOptions{})
	require.NoError(t, err)
	first := <-done
	require.Equal(t, 2, first.NewItems)

	// mark one read, then refresh the same bytes
	items, err := eng.LoadItemSet(nodeID)
	require.NoError(t, err)
	items[0].Read = true
	require.NoError(t, eng.SaveItem(items[0]))

	require.NoError(t, eng.Update(nodeID, FlagPriorityHigh))
	second := <-done
	assert.Equal(t, 0, second.NewItems, "identical bytes must merge to zero new items")

	count, err := eng.UnreadCount(nodeID)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "read state untouched by the merge")
}

func TestMarkAllReadAndUnreadInvariant(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testFeed))
	}))
	defer server.Close()

	eng := testEngine(t)
	done := waitForUpdate(t, eng)

	nodeID, err := eng.Subscribe(server.URL, SubscribeOptions{})
	require.NoError(t, err)
	<-done

	require.NoError(t, eng.MarkAllRead(nodeID))

	count, err := eng.UnreadCount(nodeID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	items, err := eng.LoadItemSet(nodeID)
	require.NoError(t, err)
	for _, item := range items {
		assert.True(t, item.Read)
	}
}

func TestUnsubscribeRemovesItems(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testFeed))
	}))
	defer server.Close()

	eng := testEngine(t)
	done := waitForUpdate(t, eng)

	nodeID, err := eng.Subscribe(server.URL, SubscribeOptions{})
	require.NoError(t, err)
	<-done

	require.NoError(t, eng.Unsubscribe(nodeID))

	items, err := eng.LoadItemSet(nodeID)
	require.NoError(t, err)
	assert.Empty(t, items)

	_, ok := eng.Subscription(nodeID)
	assert.False(t, ok)
}

func TestUpdateUnknownNode(t *testing.T) {
	eng := testEngine(t)
	assert.Error(t, eng.Update("no-such-node", 0))
}

func TestFeedListRoundTrip(t *testing.T) {
	cfg := testConfig(t)

	eng, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, eng.Start())

	sub := &models.Subscription{
		NodeID:       "node-42",
		Source:       "http://example.com/feed.xml",
		HTMLURL:      "http://example.com/",
		Title:        "Kept Feed",
		ETag:         `"abc"`,
		LastModified: "Fri, 03 Dec 2012 01:38:34 GMT",
		LastPoll:     1354495114,
		Available:    true,
	}
	eng.mu.Lock()
	eng.subs[sub.NodeID] = sub
	eng.mu.Unlock()

	eng.Stop()

	restored, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, restored.Start())
	defer restored.Stop()

	got, ok := restored.Subscription("node-42")
	require.True(t, ok)
	assert.Equal(t, "http://example.com/feed.xml", got.Source)
	assert.Equal(t, "Kept Feed", got.Title)
	assert.Equal(t, `"abc"`, got.ETag, "conditional GET state survives restarts")
	assert.Equal(t, "Fri, 03 Dec 2012 01:38:34 GMT", got.LastModified)
	assert.Equal(t, int64(1354495114), got.LastPoll)
}
