package backref

import (
	"cms-graphql/internal/contentmodel"
	"cms-graphql/internal/entry"
)

// FilterEntries returns, in input order, the entries whose fieldID value
// references targetID, either as a single link or as any element of a link
// list. The field's cardinality is inferred from the stored value's shape.
// The result is never nil.
func FilterEntries(entries []entry.Entry, fieldID, targetID string) []entry.Entry {
	return FilterEntriesWithCardinality(entries, fieldID, targetID, contentmodel.CardinalityUnknown)
}

// FilterEntriesWithCardinality is FilterEntries with a known field
// cardinality: CardinalityOne only accepts single links and CardinalityMany
// only link lists. CardinalityUnknown falls back to shape inspection.
func FilterEntriesWithCardinality(entries []entry.Entry, fieldID, targetID string, cardinality contentmodel.Cardinality) []entry.Entry {
	matched := make([]entry.Entry, 0)
	if targetID == "" {
		return matched
	}
	for _, e := range entries {
		if references(e, fieldID, targetID, cardinality) {
			matched = append(matched, e)
		}
	}
	return matched
}

func references(e entry.Entry, fieldID, targetID string, cardinality contentmodel.Cardinality) bool {
	value, ok := e.Field(fieldID)
	if !ok {
		return false
	}

	if cardinality != contentmodel.CardinalityOne {
		if items, ok := entry.IsList(value); ok {
			for _, item := range items {
				if id, ok := entry.LinkID(item); ok && id == targetID {
					return true
				}
			}
			return false
		}
	}
	if cardinality == contentmodel.CardinalityMany || !entry.IsObject(value) {
		return false
	}
	id, ok := entry.LinkID(value)
	return ok && id == targetID
}
