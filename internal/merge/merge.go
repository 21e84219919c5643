// Package merge reconciles freshly parsed items with the stored itemset
// of a node.
package merge

import (
	"strings"

	"github.com/rs/zerolog"

	"feed-aggregator/internal/models"
)

// timeTolerance is how far two item timestamps may drift apart while still
// counting as the same article for URL based matching.
const timeTolerance = int64(3600)

// Result describes the outcome of one merge run.
type Result struct {
	// Items is the merged itemset: parsed items in source order carrying
	// state copied from their stored counterparts, followed by stored
	// items the fetch no longer contains (they are never dropped here).
	Items []*models.Item

	// New are the items that had no stored counterpart.
	New []*models.Item

	// Updated are matched items whose content changed materially.
	Updated []*models.Item
}

// Merger matches items between fetches.
type Merger struct {
	logger zerolog.Logger
}

func New(logger zerolog.Logger) *Merger {
	return &Merger{logger: logger.With().Str("component", "merger").Logger()}
}

// Merge reconciles the parsed item list against the stored itemset.
// Matching rules are tried in order: valid GUID equality, plain GUID
// equality, then source URL equality combined with an equal title or a
// close timestamp. Read, flag and popup state travels from the stored item
// to the parsed one; the numeric id is preserved.
func (m *Merger) Merge(existing, parsed []*models.Item) *Result {
	result := &Result{}
	matched := make(map[*models.Item]bool, len(existing))

	for _, item := range parsed {
		old := m.findMatch(existing, matched, item)
		if old == nil {
			item.New = true
			item.Read = false
			result.New = append(result.New, item)
			result.Items = append(result.Items, item)
			continue
		}

		matched[old] = true
		item.ID = old.ID
		item.Read = old.Read
		item.Flagged = old.Flagged
		item.Popup = old.Popup
		item.New = old.New

		if contentChanged(old, item) {
			item.Updated = true
			result.Updated = append(result.Updated, item)
		} else {
			item.Updated = old.Updated
		}

		result.Items = append(result.Items, item)
	}

	// stored items missing from this fetch are retained; pruning is a
	// separate store policy
	for _, old := range existing {
		if !matched[old] {
			result.Items = append(result.Items, old)
		}
	}

	m.logger.Debug().
		Int("existing", len(existing)).
		Int("parsed", len(parsed)).
		Int("new", len(result.New)).
		Int("updated", len(result.Updated)).
		Msg("Itemset merged")

	return result
}

func (m *Merger) findMatch(existing []*models.Item, matched map[*models.Item]bool, item *models.Item) *models.Item {
	for _, old := range existing {
		if matched[old] {
			continue
		}
		if sameItem(old, item) {
			return old
		}
	}
	return nil
}

func sameItem(old, item *models.Item) bool {
	if old.ValidGUID && item.ValidGUID {
		return old.GUID == item.GUID
	}

	if old.GUID != "" && item.GUID != "" {
		return old.GUID == item.GUID
	}

	if old.Source != "" && old.Source == item.Source {
		if old.Title == item.Title {
			return true
		}
		delta := old.Time - item.Time
		if delta < 0 {
			delta = -delta
		}
		return delta <= timeTolerance
	}

	return false
}

// contentChanged reports whether the title or description differ beyond
// whitespace.
func contentChanged(old, item *models.Item) bool {
	return normalize(old.Title) != normalize(item.Title) ||
		normalize(old.Description) != normalize(item.Description)
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
