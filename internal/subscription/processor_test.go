package subscription

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feed-aggregator/internal/models"
	"feed-aggregator/internal/parsers"
	"feed-aggregator/internal/store"
	"feed-aggregator/internal/update"
)

const feedBody = `<rss version="2.0">
  <channel>
    <title>Processor Feed</title>
    <link>http://example.com/</link>
    <ttl>30</ttl>
    <item><title>a</title><guid isPermaLink="false">a</guid></item>
  </channel>
</rss>`

func testProcessor(t *testing.T) *Processor {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	dispatcher := parsers.NewDispatcher(zerolog.Nop(), nil)
	return NewProcessor(st, dispatcher, 100, zerolog.Nop())
}

func testSubscription() *models.Subscription {
	sub := &models.Subscription{
		NodeID: "n1",
		Source: "http://example.com/feed.xml",
	}
	sub.BeginUpdate()
	return sub
}

func finishedRequest(sub *models.Subscription, status int, data []byte) *update.Request {
	r := BuildRequest(sub, update.PriorityNormal, nil)
	r.HTTPStatus = status
	r.Data = data
	return r
}

func TestProcessStoresItemsAndFeedInfo(t *testing.T) {
	p := testProcessor(t)
	sub := testSubscription()

	result, err := p.Process(sub, finishedRequest(sub, 200, []byte(feedBody)), ProcessOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.NewItems)
	assert.True(t, sub.Available)
	assert.Equal(t, "Processor Feed", sub.Title)
	assert.Equal(t, "http://example.com/", sub.HTMLURL)
	assert.Equal(t, 30, sub.DefaultInterval)
	assert.False(t, sub.Updating(), "the updating flag is released")
	assert.Greater(t, sub.LastPoll, int64(0))

	items, err := p.store.LoadItemSet("n1")
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestProcessPersistsFeedMetadata(t *testing.T) {
	p := testProcessor(t)
	sub := testSubscription()

	atom := []byte(`<feed xmlns="http://www.w3.org/2005/Atom">
	  <title>t</title>
	  <author><name>Alice</name></author>
	  <entry><id>e1</id><title>x</title></entry>
	</feed>`)

	_, err := p.Process(sub, finishedRequest(sub, 200, atom), ProcessOptions{})
	require.NoError(t, err)
	assert.Contains(t, sub.Metadata.Get("author"), "Alice")
}

func TestProcessDoesNotAccumulateChannelMetadata(t *testing.T) {
	p := testProcessor(t)
	sub := testSubscription()

	rss := []byte(`<rss version="2.0"><channel>
	  <title>t</title>
	  <category>tech</category>
	  <item><title>a</title><guid>g</guid></item>
	</channel></rss>`)

	_, err := p.Process(sub, finishedRequest(sub, 200, rss), ProcessOptions{})
	require.NoError(t, err)
	sub.BeginUpdate()
	_, err = p.Process(sub, finishedRequest(sub, 200, rss), ProcessOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"tech"}, sub.Metadata.All("category"))
}

func TestProcessNotModified(t *testing.T) {
	p := testProcessor(t)
	sub := testSubscription()
	sub.ETag = `"abc"`

	result, err := p.Process(sub, finishedRequest(sub, 304, nil), ProcessOptions{})
	require.NoError(t, err)

	assert.True(t, result.NotModified)
	assert.True(t, sub.Available)
	assert.Equal(t, `"abc"`, sub.ETag)

	items, err := p.store.LoadItemSet("n1")
	require.NoError(t, err)
	assert.Empty(t, items, "a 304 leaves the item store unchanged")
}

func TestProcessKeepsExistingTitle(t *testing.T) {
	p := testProcessor(t)

	sub := testSubscription()
	sub.Title = "My Custom Name"
	_, err := p.Process(sub, finishedRequest(sub, 200, []byte(feedBody)), ProcessOptions{})
	require.NoError(t, err)
	assert.Equal(t, "My Custom Name", sub.Title)

	sub.BeginUpdate()
	_, err = p.Process(sub, finishedRequest(sub, 200, []byte(feedBody)), ProcessOptions{ResetTitle: true})
	require.NoError(t, err)
	assert.Equal(t, "Processor Feed", sub.Title)
}

func TestProcessParseFailureClearsAvailable(t *testing.T) {
	p := testProcessor(t)
	sub := testSubscription()

	_, err := p.Process(sub, finishedRequest(sub, 200, []byte("<garbage/>")), ProcessOptions{})
	assert.Error(t, err)
	assert.False(t, sub.Available)
	assert.NotEmpty(t, sub.ParseErrors())
}

func TestProcessNetworkFailure(t *testing.T) {
	p := testProcessor(t)
	sub := testSubscription()

	r := BuildRequest(sub, update.PriorityNormal, nil)
	r.ReturnCode = update.ErrNetPermanent

	_, err := p.Process(sub, r, ProcessOptions{})
	assert.Error(t, err)
	assert.False(t, sub.Available)
}

func TestProcessAuthFailure(t *testing.T) {
	p := testProcessor(t)
	sub := testSubscription()

	r := BuildRequest(sub, update.PriorityNormal, nil)
	r.ReturnCode = update.ErrAuthFailed

	_, err := p.Process(sub, r, ProcessOptions{})
	assert.Error(t, err)
	assert.False(t, sub.Available)
}

func TestBuildRequestCarriesState(t *testing.T) {
	sub := &models.Subscription{
		NodeID:       "n1",
		Source:       "http://example.com/feed.xml",
		ETag:         `"e"`,
		LastModified: "lm",
		Username:     "user",
		Password:     "pass",
		FilterCmd:    "cat",
	}

	r := BuildRequest(sub, update.PriorityHigh, nil)
	assert.Equal(t, sub.Source, r.Source)
	assert.Equal(t, update.PriorityHigh, r.Priority)
	assert.Equal(t, `"e"`, r.State.ETag)
	assert.Equal(t, "lm", r.State.LastModified)
	assert.Equal(t, "user", r.Options.Username)
	assert.Equal(t, "cat", r.FilterCmd)
	assert.Equal(t, "n1", r.UserData)
}
