package naming

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypeName(t *testing.T) {
	namer := Default()

	tests := []struct {
		id       string
		display  string
		expected string
	}{
		{"blogPost", "Blog post", "BlogPost"},
		{"author", "", "Author"},
		{"landing-page", "", "LandingPage"},
		{"x1", "3d model", "_3dModel"},
		{"asset", "Asset", "Asset_"},
		{"query", "", "Query_"},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.expected, namer.TypeName(tt.id, tt.display))
		})
	}
}

func TestTypeName_Override(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TypeOverrides["2Fp8"] = "Category"
	namer := New(cfg, nil)

	assert.Equal(t, "Category", namer.TypeName("2Fp8", "Some odd name"))
}

func TestFieldName(t *testing.T) {
	namer := Default()

	tests := []struct {
		input    string
		expected string
	}{
		{"Blog post", "blogPost"},
		{"author", "author"},
		{"HeroImage", "heroImage"},
		{"cover_image", "coverImage"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, namer.FieldName(tt.input))
		})
	}
}

func TestCollectionFieldName(t *testing.T) {
	namer := Default()

	assert.Equal(t, "posts", namer.CollectionFieldName("post"))
	assert.Equal(t, "categories", namer.CollectionFieldName("category"))
	assert.Equal(t, "newsCollection", namer.CollectionFieldName("news"))
	assert.Equal(t, "assets_", namer.CollectionFieldName("asset"))
}

func TestPluralize_Overrides(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PluralOverrides["person"] = "folks"
	namer := New(cfg, nil)

	assert.Equal(t, "folks", namer.Pluralize("person"))
	assert.Equal(t, "people", Default().Pluralize("person"))
	assert.Equal(t, "blogPosts", namer.Pluralize("blogPost"))
}

func TestBackrefNames(t *testing.T) {
	namer := Default()

	assert.Equal(t, "AuthorBackrefs", namer.BackrefsTypeName("Author"))
	assert.Equal(t, "posts__via__author", namer.BackrefFieldName("posts", "author"))
}

func TestRegisterType_Collision(t *testing.T) {
	namer := Default()

	assert.Equal(t, "Post", namer.RegisterType("post", "Post"))
	assert.Equal(t, "Post2", namer.RegisterType("post-v2", "Post"))

	namer.Reset()
	assert.Equal(t, "Post", namer.RegisterType("post-v2", "Post"))
}

func TestRegisterQuery_Collision(t *testing.T) {
	namer := Default()

	assert.Equal(t, "posts", namer.RegisterQuery("post", "posts"))
	assert.Equal(t, "posts2", namer.RegisterQuery("legacyPost", "posts"))
	assert.Equal(t, "posts3", namer.RegisterQuery("archivedPost", "posts"))
	assert.Equal(t, "Posts", namer.RegisterType("post", "Posts"), "types and query fields are separate namespaces")
}
