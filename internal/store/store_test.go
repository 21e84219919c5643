package store

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feed-aggregator/internal/models"
)

func testStore(t *testing.T) *ItemStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testItem(nodeID, guid, title string) *models.Item {
	return &models.Item{
		NodeID:    nodeID,
		Title:     title,
		Source:    "http://example.com/" + guid,
		GUID:      guid,
		ValidGUID: true,
		Time:      1354495114,
		New:       true,
	}
}

func TestInsertAssignsSequentialIDs(t *testing.T) {
	s := testStore(t)

	a := testItem("n1", "a", "first")
	b := testItem("n1", "b", "second")

	require.NoError(t, s.SaveItem(a))
	require.NoError(t, s.SaveItem(b))

	assert.Equal(t, int64(1), a.ID)
	assert.Equal(t, int64(2), b.ID)
}

func TestLoadItemSetRoundTrip(t *testing.T) {
	s := testStore(t)

	item := testItem("n1", "a", "title")
	item.Description = `<div xmlns="http://www.w3.org/1999/xhtml"><p>x</p></div>`
	item.RealSourceURL = "http://other.example.com/feed"
	item.RealSourceTitle = "Other"
	require.NoError(t, s.SaveItem(item))

	items, err := s.LoadItemSet("n1")
	require.NoError(t, err)
	require.Len(t, items, 1)

	got := items[0]
	assert.Equal(t, item.ID, got.ID)
	assert.Equal(t, "n1", got.NodeID)
	assert.Equal(t, "title", got.Title)
	assert.Equal(t, "a", got.GUID)
	assert.True(t, got.ValidGUID)
	assert.Equal(t, item.Description, got.Description)
	assert.Equal(t, item.RealSourceURL, got.RealSourceURL)
	assert.Equal(t, int64(1354495114), got.Time)
	assert.True(t, got.New)
	assert.False(t, got.Read)
}

func TestLoadItem(t *testing.T) {
	s := testStore(t)

	item := testItem("n1", "a", "title")
	require.NoError(t, s.SaveItem(item))

	got, err := s.LoadItem(item.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "title", got.Title)

	missing, err := s.LoadItem(999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUpdateItem(t *testing.T) {
	s := testStore(t)

	item := testItem("n1", "a", "title")
	require.NoError(t, s.SaveItem(item))
	id := item.ID

	item.Read = true
	item.Title = "renamed"
	require.NoError(t, s.SaveItem(item))

	assert.Equal(t, id, item.ID, "an assigned id is immutable")

	got, err := s.LoadItem(id)
	require.NoError(t, err)
	assert.True(t, got.Read)
	assert.Equal(t, "renamed", got.Title)
}

func TestUnreadCountMatchesItemset(t *testing.T) {
	s := testStore(t)

	for i, guid := range []string{"a", "b", "c"} {
		item := testItem("n1", guid, guid)
		item.Read = i == 0
		require.NoError(t, s.SaveItem(item))
	}
	require.NoError(t, s.SaveItem(testItem("n2", "x", "x")))

	count, err := s.UnreadCount("n1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// the invariant: unread count equals the unread items of the loaded set
	items, err := s.LoadItemSet("n1")
	require.NoError(t, err)
	unread := 0
	for _, item := range items {
		if !item.Read {
			unread++
		}
	}
	assert.Equal(t, count, unread)
}

func TestMarkAllRead(t *testing.T) {
	s := testStore(t)

	require.NoError(t, s.SaveItem(testItem("n1", "a", "a")))
	require.NoError(t, s.SaveItem(testItem("n1", "b", "b")))
	require.NoError(t, s.SaveItem(testItem("n2", "c", "c")))

	require.NoError(t, s.MarkAllRead("n1"))

	count, err := s.UnreadCount("n1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// other nodes are untouched
	count, err = s.UnreadCount("n2")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMarkAllOldAndUpdated(t *testing.T) {
	s := testStore(t)

	item := testItem("n1", "a", "a")
	item.Updated = true
	require.NoError(t, s.SaveItem(item))

	require.NoError(t, s.MarkAllOld("n1"))
	require.NoError(t, s.MarkAllUpdated("n1"))

	got, err := s.LoadItem(item.ID)
	require.NoError(t, err)
	assert.False(t, got.New)
	assert.False(t, got.Updated)
}

func TestRemoveItemSet(t *testing.T) {
	s := testStore(t)

	require.NoError(t, s.SaveItem(testItem("n1", "a", "a")))
	require.NoError(t, s.SaveItem(testItem("n2", "b", "b")))

	require.NoError(t, s.RemoveItemSet("n1"))

	items, err := s.LoadItemSet("n1")
	require.NoError(t, err)
	assert.Empty(t, items)

	items, err = s.LoadItemSet("n2")
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestRemoveItem(t *testing.T) {
	s := testStore(t)

	item := testItem("n1", "a", "a")
	require.NoError(t, s.SaveItem(item))
	require.NoError(t, s.RemoveItem(item.ID))

	items, err := s.LoadItemSet("n1")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestTrimNodeKeepsFlaggedItems(t *testing.T) {
	s := testStore(t)

	flagged := testItem("n1", "keep", "keep")
	flagged.Flagged = true
	flagged.Time = 1
	require.NoError(t, s.SaveItem(flagged))

	for i, guid := range []string{"a", "b", "c", "d"} {
		item := testItem("n1", guid, guid)
		item.Time = int64(100 + i)
		require.NoError(t, s.SaveItem(item))
	}

	require.NoError(t, s.TrimNode("n1", 2))

	items, err := s.LoadItemSet("n1")
	require.NoError(t, err)
	require.Len(t, items, 3)

	var guids []string
	for _, item := range items {
		guids = append(guids, item.GUID)
	}
	// the two newest unflagged items survive, the flagged one always does
	assert.Contains(t, guids, "keep")
	assert.Contains(t, guids, "d")
	assert.Contains(t, guids, "c")
}
