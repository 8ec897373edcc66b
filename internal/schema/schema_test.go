package schema

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"cms-graphql/internal/backref"
	"cms-graphql/internal/contentmodel"
	"cms-graphql/internal/entry"
	"cms-graphql/internal/entryloader"
	"cms-graphql/internal/naming"

	"github.com/graphql-go/graphql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const blogModel = `
content_types:
  - id: basePage
    fields:
      - id: url
        type: Symbol
      - id: parent
        type: Link
        link_type: Entry
        validations:
          - link_content_type: [landingPage]
  - id: author
    name: Author
    fields:
      - id: name
        type: Symbol
      - id: avatar
        type: Link
        link_type: Asset
  - id: post
    name: Post
    page: true
    fields:
      - id: title
        type: Symbol
      - id: rating
        type: Integer
      - id: publishedOn
        type: Date
      - id: tags
        type: Array
        items:
          type: Symbol
      - id: author
        type: Link
        link_type: Entry
        validations:
          - link_content_type: [author]
      - id: related
        type: Array
        items:
          type: Link
          link_type: Entry
          validations:
            - link_content_type: [post, basePage]
  - id: landingPage
    name: Landing page
    page: true
    fields:
      - id: title
        type: Symbol
`

func link(id string) map[string]any {
	return entry.NewLinkValue(entry.TypeEntry, id)
}

func newEntry(id, contentTypeID string, fields map[string]any) entry.Entry {
	return entry.Entry{
		Sys:    entry.Sys{ID: id, Type: entry.TypeEntry, ContentTypeID: contentTypeID},
		Fields: fields,
	}
}

func blogEntries() []entry.Entry {
	return []entry.Entry{
		newEntry("A1", "author", map[string]any{"name": "Ada", "avatar": entry.NewLinkValue(entry.TypeAsset, "img1")}),
		newEntry("p1", "post", map[string]any{
			"title":       "Hello",
			"url":         "/blog/hello",
			"rating":      5,
			"publishedOn": "2024-03-01",
			"tags":        []any{"go", "graphql"},
			"author":      link("A1"),
			"related":     []any{link("p2"), link("L1"), link("missing")},
			"parent":      link("L1"),
		}),
		newEntry("p2", "post", map[string]any{
			"title":   "Second",
			"url":     "/blog/second",
			"author":  link("A1"),
			"related": []any{link("p1")},
		}),
		newEntry("L1", "landingPage", map[string]any{"title": "Blog", "url": "/blog"}),
		{
			Sys: entry.Sys{ID: "img1", Type: entry.TypeAsset},
			Fields: map[string]any{
				"title": "Portrait",
				"file":  map[string]any{"url": "/assets/ada.png", "contentType": "image/png"},
			},
		},
	}
}

func buildBlog(t *testing.T, opts Options) *Result {
	t.Helper()
	parsed, err := contentmodel.Parse([]byte(blogModel))
	require.NoError(t, err)
	prepared, err := contentmodel.Prepare(parsed, naming.Default())
	require.NoError(t, err)
	result, err := Build(prepared, opts)
	require.NoError(t, err)
	return result
}

func execute(t *testing.T, result *Result, source entryloader.Source, query string) *graphql.Result {
	t.Helper()
	loader := entryloader.New(source, entryloader.Options{PageTypes: result.Model.PageTypeIDs()})
	return graphql.Do(graphql.Params{
		Schema:        result.Schema,
		RequestString: query,
		Context:       entryloader.WithLoader(context.Background(), loader),
	})
}

func assertData(t *testing.T, expected string, res *graphql.Result) {
	t.Helper()
	require.Empty(t, res.Errors)
	data, err := json.Marshal(res.Data)
	require.NoError(t, err)
	assert.JSONEq(t, expected, string(data))
}

func TestBuild_RegistersContentTypes(t *testing.T) {
	result := buildBlog(t, Options{})

	assert.Len(t, result.Registry, 3)
	assert.NotContains(t, result.Registry, contentmodel.BasePageID)
	assert.Equal(t, "LandingPage", result.Registry["landingPage"].Name())

	queryFields := result.Schema.QueryType().Fields()
	for _, name := range []string{"author", "authors", "post", "posts", "landingPage", "landingPages", "basePages", "asset", "assets", "_contentTypes"} {
		assert.Contains(t, queryFields, name)
	}
}

func TestBuild_BackrefResolutions(t *testing.T) {
	result := buildBlog(t, Options{})

	landing := result.Backrefs["landingPage"]
	require.Len(t, landing, 2)
	assert.Equal(t, "basePages__via__parent", landing[0].Backref.BackrefFieldName)
	assert.Equal(t, backref.KindBasePage, landing[0].Kind)
	assert.Equal(t, "posts__via__related", landing[1].Backref.BackrefFieldName)
	assert.Equal(t, backref.KindType, landing[1].Kind)
}

func TestBuild_UnpreparedModel(t *testing.T) {
	parsed, err := contentmodel.Parse([]byte(blogModel))
	require.NoError(t, err)

	_, err = Build(parsed, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prepare")

	_, err = Build(nil, Options{})
	require.Error(t, err)
}

func TestBuild_EmptyModel(t *testing.T) {
	result, err := Build(&contentmodel.Model{}, Options{})
	require.NoError(t, err)

	res := execute(t, result, entryloader.NewMemorySource(), `{ _contentTypes assets { title } }`)
	assertData(t, `{"_contentTypes": [], "assets": []}`, res)
}

func TestQuery_BackrefOfSingleLink(t *testing.T) {
	result := buildBlog(t, Options{})

	res := execute(t, result, entryloader.NewMemorySource(blogEntries()...), `{
		author(id: "A1") {
			name
			_backrefs { posts__via__author { title } }
		}
	}`)

	assertData(t, `{"author": {"name": "Ada", "_backrefs": {"posts__via__author": [{"title": "Hello"}, {"title": "Second"}]}}}`, res)
}

func TestQuery_BackrefsOnLandingPage(t *testing.T) {
	result := buildBlog(t, Options{})

	res := execute(t, result, entryloader.NewMemorySource(blogEntries()...), `{
		landingPage(id: "L1") {
			_backrefs {
				basePages__via__parent { url ... on Post { title } }
				posts__via__related { title }
			}
		}
	}`)

	assertData(t, `{"landingPage": {"_backrefs": {
		"basePages__via__parent": [{"url": "/blog/hello", "title": "Hello"}],
		"posts__via__related": [{"title": "Hello"}]
	}}}`, res)
}

func TestQuery_ForwardFields(t *testing.T) {
	result := buildBlog(t, Options{})

	res := execute(t, result, entryloader.NewMemorySource(blogEntries()...), `{
		post(id: "p1") {
			sys { id contentTypeId }
			title
			rating
			publishedOn
			tags
			url
			urlFolder
			author { name avatar { url contentType } }
			related { __typename sys { id } }
			parent { title }
		}
	}`)

	assertData(t, `{"post": {
		"sys": {"id": "p1", "contentTypeId": "post"},
		"title": "Hello",
		"rating": 5,
		"publishedOn": "2024-03-01",
		"tags": ["go", "graphql"],
		"url": "/blog/hello",
		"urlFolder": "/blog/",
		"author": {"name": "Ada", "avatar": {"url": "/assets/ada.png", "contentType": "image/png"}},
		"related": [
			{"__typename": "Post", "sys": {"id": "p2"}},
			{"__typename": "LandingPage", "sys": {"id": "L1"}}
		],
		"parent": {"title": "Blog"}
	}}`, res)
}

func TestQuery_LookupChecksContentType(t *testing.T) {
	result := buildBlog(t, Options{})

	res := execute(t, result, entryloader.NewMemorySource(blogEntries()...), `{
		post(id: "A1") { title }
		unknown: post(id: "nope") { title }
		asset(id: "img1") { title url }
		notAsset: asset(id: "p1") { title }
	}`)

	assertData(t, `{"post": null, "unknown": null, "asset": {"title": "Portrait", "url": "/assets/ada.png"}, "notAsset": null}`, res)
}

func TestQuery_CollectionPagination(t *testing.T) {
	result := buildBlog(t, Options{DefaultLimit: 1})

	res := execute(t, result, entryloader.NewMemorySource(blogEntries()...), `{
		first: posts { title }
		second: posts(skip: 1, limit: 5) { title }
		past: posts(skip: 10) { title }
	}`)

	assertData(t, `{"first": [{"title": "Hello"}], "second": [{"title": "Second"}], "past": []}`, res)
}

func TestQuery_NegativeLimitRejected(t *testing.T) {
	result := buildBlog(t, Options{})

	res := execute(t, result, entryloader.NewMemorySource(blogEntries()...), `{ posts(limit: -1) { title } }`)
	require.NotEmpty(t, res.Errors)
}

func TestQuery_BasePages(t *testing.T) {
	result := buildBlog(t, Options{})

	res := execute(t, result, entryloader.NewMemorySource(blogEntries()...), `{
		basePages { __typename url }
	}`)

	assertData(t, `{"basePages": [
		{"__typename": "Post", "url": "/blog/hello"},
		{"__typename": "Post", "url": "/blog/second"},
		{"__typename": "LandingPage", "url": "/blog"}
	]}`, res)
}

func TestQuery_CustomBackrefsFieldName(t *testing.T) {
	result := buildBlog(t, Options{BackrefsFieldName: "linkedFrom"})

	res := execute(t, result, entryloader.NewMemorySource(blogEntries()...), `{
		post(id: "p2") { linkedFrom { posts__via__related { title } } }
	}`)

	assertData(t, `{"post": {"linkedFrom": {"posts__via__related": [{"title": "Hello"}]}}}`, res)
}

func TestQuery_ContentTypeSummary(t *testing.T) {
	result := buildBlog(t, Options{})

	res := execute(t, result, entryloader.NewMemorySource(), `{ _contentTypes }`)
	require.Empty(t, res.Errors)

	raw, err := json.Marshal(res.Data)
	require.NoError(t, err)
	var data struct {
		ContentTypes []struct {
			ID              string `json:"id"`
			TypeName        string `json:"typeName"`
			CollectionField string `json:"collectionField"`
			Page            bool   `json:"page"`
			Backrefs        []struct {
				Field string `json:"field"`
				Kind  string `json:"kind"`
			} `json:"backrefs"`
		} `json:"_contentTypes"`
	}
	require.NoError(t, json.Unmarshal(raw, &data))

	require.Len(t, data.ContentTypes, 3)
	author := data.ContentTypes[0]
	assert.Equal(t, "author", author.ID)
	assert.Equal(t, "Author", author.TypeName)
	assert.Equal(t, "authors", author.CollectionField)
	assert.False(t, author.Page)
	require.Len(t, author.Backrefs, 1)
	assert.Equal(t, "posts__via__author", author.Backrefs[0].Field)
	assert.Equal(t, "type", author.Backrefs[0].Kind)
	assert.True(t, data.ContentTypes[1].Page)
}

type failingSource struct {
	entryloader.Source
	err error
}

func (f failingSource) EntriesByContentType(context.Context, string) ([]entry.Entry, error) {
	return nil, f.err
}

func TestQuery_BackrefLoaderErrorIsFieldError(t *testing.T) {
	result := buildBlog(t, Options{})
	source := failingSource{Source: entryloader.NewMemorySource(blogEntries()...), err: errors.New("store offline")}

	res := execute(t, result, source, `{
		author(id: "A1") { name _backrefs { posts__via__author { title } } }
	}`)

	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Message, "store offline")
	data, err := json.Marshal(res.Data)
	require.NoError(t, err)
	assert.JSONEq(t, `{"author": {"name": "Ada", "_backrefs": {"posts__via__author": null}}}`, string(data))
}

func TestQuery_MissingLoader(t *testing.T) {
	result := buildBlog(t, Options{})

	res := graphql.Do(graphql.Params{
		Schema:        result.Schema,
		RequestString: `{ posts { title } }`,
		Context:       context.Background(),
	})

	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Message, entryloader.ErrNoLoader.Error())
}
