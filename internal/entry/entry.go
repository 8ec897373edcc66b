// Package entry defines the record shape served by the GraphQL layer: a CMS
// entry (or asset) with its sys metadata and a loosely-typed field map.
package entry

// Sys types as stored in entry metadata.
const (
	TypeEntry = "Entry"
	TypeAsset = "Asset"
	TypeLink  = "Link"
)

// Sys holds the metadata block of an entry or asset.
type Sys struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	ContentTypeID string `json:"contentTypeId,omitempty"`
	CreatedAt     string `json:"createdAt"`
	UpdatedAt     string `json:"updatedAt"`
}

// Entry is a single record. Fields is keyed by field identifier; a value may be
// a scalar, a link object, a list of link objects, or absent.
type Entry struct {
	Sys    Sys            `json:"sys"`
	Fields map[string]any `json:"fields"`
}

// Link is the typed form of a reference field value.
type Link struct {
	ID       string
	LinkType string
}

// Field returns the raw value stored under id and whether it was present.
func (e Entry) Field(id string) (any, bool) {
	if e.Fields == nil {
		return nil, false
	}
	v, ok := e.Fields[id]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// LinkID extracts sys.id from a single reference value. It accepts decoded JSON
// objects ({"sys":{"id":...}}), Link values and whole entries.
func LinkID(value any) (string, bool) {
	switch v := value.(type) {
	case Link:
		return v.ID, v.ID != ""
	case *Link:
		if v == nil {
			return "", false
		}
		return v.ID, v.ID != ""
	case Entry:
		return v.Sys.ID, v.Sys.ID != ""
	case *Entry:
		if v == nil {
			return "", false
		}
		return v.Sys.ID, v.Sys.ID != ""
	case map[string]any:
		sys, ok := v["sys"].(map[string]any)
		if !ok {
			return "", false
		}
		id, ok := sys["id"].(string)
		return id, ok
	default:
		return "", false
	}
}

// IsList reports whether value has the multi-reference shape and returns its
// elements.
func IsList(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, true
	case []map[string]any:
		out := make([]any, len(v))
		for i := range v {
			out[i] = v[i]
		}
		return out, true
	case []Link:
		out := make([]any, len(v))
		for i := range v {
			out[i] = v[i]
		}
		return out, true
	default:
		return nil, false
	}
}

// IsObject reports whether value has the single-reference (structured, non-list)
// shape.
func IsObject(value any) bool {
	switch v := value.(type) {
	case map[string]any, Link, Entry:
		return true
	case *Link:
		return v != nil
	case *Entry:
		return v != nil
	default:
		return false
	}
}

// NewLinkValue builds the decoded-JSON form of a link to id.
func NewLinkValue(linkType, id string) map[string]any {
	return map[string]any{
		"sys": map[string]any{
			"type":     TypeLink,
			"linkType": linkType,
			"id":       id,
		},
	}
}

// FromSource unwraps a resolver source value into an Entry.
func FromSource(source any) (Entry, bool) {
	switch v := source.(type) {
	case Entry:
		return v, true
	case *Entry:
		if v == nil {
			return Entry{}, false
		}
		return *v, true
	default:
		return Entry{}, false
	}
}

// StringField returns a string-valued field, or "" when absent or not a string.
func (e Entry) StringField(id string) string {
	v, _ := e.Field(id)
	s, _ := v.(string)
	return s
}
