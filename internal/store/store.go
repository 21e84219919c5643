// Package store persists itemsets in an embedded SQLite database.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"feed-aggregator/internal/models"
)

const schemaItems = `
CREATE TABLE IF NOT EXISTS items (
	title			TEXT,
	read			INTEGER,
	new			INTEGER,
	updated			INTEGER,
	popup			INTEGER,
	marked			INTEGER,
	source			TEXT,
	source_id		TEXT,
	valid_guid		INTEGER,
	real_source_url		TEXT,
	real_source_title	TEXT,
	description		TEXT,
	date			INTEGER
);`

const schemaItemsets = `
CREATE TABLE IF NOT EXISTS itemsets (
	item_id		INTEGER,
	node_id		TEXT
);
CREATE INDEX IF NOT EXISTS itemset_idx ON itemsets (node_id);`

const itemColumns = `
items.title,
items.read,
items.new,
items.updated,
items.popup,
items.marked,
items.source,
items.source_id,
items.valid_guid,
items.real_source_url,
items.real_source_title,
items.description,
items.date,
itemsets.item_id,
itemsets.node_id`

// ItemStore provides the prepared-statement accessors over the items and
// itemsets tables. All access is serialized through one mutex; SQLite
// itself allows only one writer anyway.
type ItemStore struct {
	db     *sql.DB
	logger zerolog.Logger
	mu     sync.Mutex

	itemsetLoad        *sql.Stmt
	itemsetInsert      *sql.Stmt
	itemsetUnreadCount *sql.Stmt
	itemsetRemove      *sql.Stmt
	itemsetRemoveAll   *sql.Stmt
	markAllRead        *sql.Stmt
	markAllUpdated     *sql.Stmt
	markAllOld         *sql.Stmt
	markAllPopup       *sql.Stmt
	itemLoad           *sql.Stmt
	itemInsert         *sql.Stmt
	itemUpdate         *sql.Stmt
	itemRemove         *sql.Stmt
	itemRemoveByNode   *sql.Stmt
	maxID              *sql.Stmt
}

// Open creates or opens the database file and prepares all statements.
func Open(path string, logger zerolog.Logger) (*ItemStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &ItemStore{
		db:     db,
		logger: logger.With().Str("component", "item_store").Logger(),
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Info().Str("path", path).Msg("Item store opened")
	return s, nil
}

func (s *ItemStore) initSchema() error {
	for _, query := range []string{schemaItems, schemaItemsets} {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

func (s *ItemStore) prepareStatements() error {
	stmts := []struct {
		target **sql.Stmt
		sql    string
	}{
		{&s.itemsetLoad, "SELECT " + itemColumns + ` FROM items
			INNER JOIN itemsets ON items.ROWID = itemsets.item_id
			WHERE itemsets.node_id = ?
			ORDER BY items.date DESC, itemsets.item_id DESC`},
		{&s.itemsetInsert, "INSERT INTO itemsets (item_id,node_id) VALUES (?,?)"},
		{&s.itemsetUnreadCount, `SELECT COUNT(*) FROM items
			INNER JOIN itemsets ON items.ROWID = itemsets.item_id
			WHERE items.read = 0 AND node_id = ?`},
		{&s.itemsetRemove, "DELETE FROM itemsets WHERE item_id = ?"},
		{&s.itemsetRemoveAll, "DELETE FROM itemsets WHERE node_id = ?"},
		{&s.markAllRead, `UPDATE items SET read = 1 WHERE ROWID IN
			(SELECT item_id FROM itemsets WHERE node_id = ?)`},
		{&s.markAllUpdated, `UPDATE items SET updated = 0 WHERE ROWID IN
			(SELECT item_id FROM itemsets WHERE node_id = ?)`},
		{&s.markAllOld, `UPDATE items SET new = 0 WHERE ROWID IN
			(SELECT item_id FROM itemsets WHERE node_id = ?)`},
		{&s.markAllPopup, `UPDATE items SET popup = 0 WHERE ROWID IN
			(SELECT item_id FROM itemsets WHERE node_id = ?)`},
		{&s.itemLoad, "SELECT " + itemColumns + ` FROM items
			INNER JOIN itemsets ON items.ROWID = itemsets.item_id
			WHERE items.ROWID = ?`},
		{&s.itemInsert, `INSERT INTO items
			(title,read,new,updated,popup,marked,source,source_id,valid_guid,
			 real_source_url,real_source_title,description,date,ROWID)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`},
		{&s.itemUpdate, `UPDATE items SET
			title=?,read=?,new=?,updated=?,popup=?,marked=?,source=?,source_id=?,
			valid_guid=?,real_source_url=?,real_source_title=?,description=?,date=?
			WHERE ROWID=?`},
		{&s.itemRemove, "DELETE FROM items WHERE ROWID = ?"},
		{&s.itemRemoveByNode, `DELETE FROM items WHERE ROWID IN
			(SELECT item_id FROM itemsets WHERE node_id = ?)`},
		{&s.maxID, "SELECT COALESCE(MAX(ROWID), 0) FROM items"},
	}

	for _, st := range stmts {
		stmt, err := s.db.Prepare(st.sql)
		if err != nil {
			return fmt.Errorf("failure while preparing statement %q: %w", st.sql, err)
		}
		*st.target = stmt
	}
	return nil
}

// Ping verifies the database connection.
func (s *ItemStore) Ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Ping()
}

// Close releases the prepared statements and the database handle.
func (s *ItemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func scanItem(rows interface{ Scan(...interface{}) error }) (*models.Item, error) {
	item := &models.Item{}
	var read, isNew, updated, popup, marked, validGUID int

	err := rows.Scan(&item.Title, &read, &isNew, &updated, &popup, &marked,
		&item.Source, &item.GUID, &validGUID,
		&item.RealSourceURL, &item.RealSourceTitle,
		&item.Description, &item.Time, &item.ID, &item.NodeID)
	if err != nil {
		return nil, err
	}

	item.Read = read != 0
	item.New = isNew != 0
	item.Updated = updated != 0
	item.Popup = popup != 0
	item.Flagged = marked != 0
	item.ValidGUID = validGUID != 0
	return item, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// LoadItemSet returns all items of a node, newest first.
func (s *ItemStore) LoadItemSet(nodeID string) ([]*models.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.itemsetLoad.Query(nodeID)
	if err != nil {
		return nil, fmt.Errorf("itemset load for node %q failed: %w", nodeID, err)
	}
	defer rows.Close()

	var items []*models.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			// a single broken row must not lose the whole itemset
			s.logger.Error().Err(err).Str("node_id", nodeID).Msg("Skipping unreadable item row")
			continue
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// LoadItem returns one item by its numeric id, or nil when not found.
func (s *ItemStore) LoadItem(id int64) (*models.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := scanItem(s.itemLoad.QueryRow(id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("item load #%d failed: %w", id, err)
	}
	return item, nil
}

// SaveItem inserts a new item (assigning its id when zero) or updates the
// stored row. Insertion writes the items row and the itemsets row in one
// transaction.
func (s *ItemStore) SaveItem(item *models.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.ID != 0 {
		_, err := s.itemUpdate.Exec(
			item.Title, boolToInt(item.Read), boolToInt(item.New),
			boolToInt(item.Updated), boolToInt(item.Popup), boolToInt(item.Flagged),
			item.Source, item.GUID, boolToInt(item.ValidGUID),
			item.RealSourceURL, item.RealSourceTitle, item.Description, item.Time,
			item.ID)
		if err != nil {
			return fmt.Errorf("item update #%d failed: %w", item.ID, err)
		}
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin insert transaction: %w", err)
	}
	defer tx.Rollback()

	var maxID int64
	if err := tx.Stmt(s.maxID).QueryRow().Scan(&maxID); err != nil {
		return fmt.Errorf("item id assignment failed: %w", err)
	}
	item.ID = maxID + 1

	_, err = tx.Stmt(s.itemInsert).Exec(
		item.Title, boolToInt(item.Read), boolToInt(item.New),
		boolToInt(item.Updated), boolToInt(item.Popup), boolToInt(item.Flagged),
		item.Source, item.GUID, boolToInt(item.ValidGUID),
		item.RealSourceURL, item.RealSourceTitle, item.Description, item.Time,
		item.ID)
	if err != nil {
		item.ID = 0
		return fmt.Errorf("item insert failed: %w", err)
	}

	if _, err := tx.Stmt(s.itemsetInsert).Exec(item.ID, item.NodeID); err != nil {
		item.ID = 0
		return fmt.Errorf("itemset insert failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		item.ID = 0
		return fmt.Errorf("commit item insert: %w", err)
	}
	return nil
}

// RemoveItem deletes one item and its itemset reference.
func (s *ItemStore) RemoveItem(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin remove transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Stmt(s.itemRemove).Exec(id); err != nil {
		return fmt.Errorf("item remove #%d failed: %w", id, err)
	}
	if _, err := tx.Stmt(s.itemsetRemove).Exec(id); err != nil {
		return fmt.Errorf("itemset remove #%d failed: %w", id, err)
	}
	return tx.Commit()
}

// RemoveItemSet deletes all items of a node. Removing a node removes all
// its items.
func (s *ItemStore) RemoveItemSet(nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin remove transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Stmt(s.itemRemoveByNode).Exec(nodeID); err != nil {
		return fmt.Errorf("items remove for node %q failed: %w", nodeID, err)
	}
	if _, err := tx.Stmt(s.itemsetRemoveAll).Exec(nodeID); err != nil {
		return fmt.Errorf("itemset remove for node %q failed: %w", nodeID, err)
	}
	return tx.Commit()
}

// MarkAllRead sets read=1 on every item of the node.
func (s *ItemStore) MarkAllRead(nodeID string) error {
	return s.bulkUpdate(s.markAllRead, nodeID, "mark all read")
}

// MarkAllUpdated clears the updated flag on every item of the node.
func (s *ItemStore) MarkAllUpdated(nodeID string) error {
	return s.bulkUpdate(s.markAllUpdated, nodeID, "mark all updated")
}

// MarkAllOld clears the new flag on every item of the node.
func (s *ItemStore) MarkAllOld(nodeID string) error {
	return s.bulkUpdate(s.markAllOld, nodeID, "mark all old")
}

// MarkAllPopup clears the popup flag on every item of the node.
func (s *ItemStore) MarkAllPopup(nodeID string) error {
	return s.bulkUpdate(s.markAllPopup, nodeID, "mark all popup")
}

func (s *ItemStore) bulkUpdate(stmt *sql.Stmt, nodeID, op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := stmt.Exec(nodeID); err != nil {
		return fmt.Errorf("%s for node %q failed: %w", op, nodeID, err)
	}
	return nil
}

// UnreadCount returns the number of unread items of a node.
func (s *ItemStore) UnreadCount(nodeID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	if err := s.itemsetUnreadCount.QueryRow(nodeID).Scan(&count); err != nil {
		return 0, fmt.Errorf("unread count for node %q failed: %w", nodeID, err)
	}
	return count, nil
}

// TrimNode enforces the max-items policy: the oldest unflagged items
// beyond the limit are removed. Flagged items never count against the
// limit and are never removed.
func (s *ItemStore) TrimNode(nodeID string, maxItems int) error {
	if maxItems <= 0 {
		return nil
	}

	items, err := s.LoadItemSet(nodeID)
	if err != nil {
		return err
	}

	var unflagged []*models.Item
	for _, item := range items {
		if !item.Flagged {
			unflagged = append(unflagged, item)
		}
	}
	if len(unflagged) <= maxItems {
		return nil
	}

	// LoadItemSet returns newest first, so the tail is the oldest
	for _, item := range unflagged[maxItems:] {
		if err := s.RemoveItem(item.ID); err != nil {
			s.logger.Error().Err(err).Int64("item_id", item.ID).Msg("Failed to trim item")
		}
	}

	s.logger.Debug().
		Str("node_id", nodeID).
		Int("removed", len(unflagged)-maxItems).
		Msg("Itemset trimmed")
	return nil
}
