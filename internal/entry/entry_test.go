package entry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestField(t *testing.T) {
	e := Entry{Fields: map[string]any{"title": "Hello", "empty": nil}}

	v, ok := e.Field("title")
	assert.True(t, ok)
	assert.Equal(t, "Hello", v)

	_, ok = e.Field("empty")
	assert.False(t, ok, "nil values count as absent")

	_, ok = Entry{}.Field("title")
	assert.False(t, ok)

	assert.Equal(t, "Hello", e.StringField("title"))
	assert.Equal(t, "", e.StringField("missing"))
}

func TestLinkID(t *testing.T) {
	tests := []struct {
		name  string
		value any
		id    string
		ok    bool
	}{
		{"decoded json", NewLinkValue("Entry", "a1"), "a1", true},
		{"typed link", Link{ID: "a2", LinkType: "Entry"}, "a2", true},
		{"typed link pointer", &Link{ID: "a3"}, "a3", true},
		{"nil link pointer", (*Link)(nil), "", false},
		{"entry", Entry{Sys: Sys{ID: "a4"}}, "a4", true},
		{"missing sys", map[string]any{"id": "a5"}, "", false},
		{"non string id", map[string]any{"sys": map[string]any{"id": 5}}, "", false},
		{"scalar", "a6", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := LinkID(tt.value)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.id, id)
		})
	}
}

func TestShapes(t *testing.T) {
	list, ok := IsList([]any{NewLinkValue("Entry", "a")})
	assert.True(t, ok)
	assert.Len(t, list, 1)

	list, ok = IsList([]Link{{ID: "a"}, {ID: "b"}})
	assert.True(t, ok)
	assert.Len(t, list, 2)

	_, ok = IsList(NewLinkValue("Entry", "a"))
	assert.False(t, ok)

	assert.True(t, IsObject(NewLinkValue("Entry", "a")))
	assert.True(t, IsObject(Link{ID: "a"}))
	assert.False(t, IsObject((*Entry)(nil)))
	assert.False(t, IsObject(42))
}

func TestFromSource(t *testing.T) {
	e := Entry{Sys: Sys{ID: "x"}}

	got, ok := FromSource(e)
	assert.True(t, ok)
	assert.Equal(t, "x", got.Sys.ID)

	got, ok = FromSource(&e)
	assert.True(t, ok)
	assert.Equal(t, "x", got.Sys.ID)

	_, ok = FromSource("x")
	assert.False(t, ok)
}
