package schema

import (
	"context"

	"cms-graphql/internal/contentmodel"
	"cms-graphql/internal/entry"
	"cms-graphql/internal/entryloader"

	"github.com/graphql-go/graphql"
)

// linkTarget is the GraphQL type of a link field and the predicate a loaded
// entry must satisfy to be returned through it.
type linkTarget struct {
	output graphql.Output
	accept func(entry.Entry) bool
}

func (b *builder) forwardField(f contentmodel.Field) *graphql.Field {
	switch f.Type {
	case contentmodel.FieldSymbol, contentmodel.FieldText:
		return b.valueField(f.ID, graphql.String)
	case contentmodel.FieldInteger:
		return b.valueField(f.ID, graphql.Int)
	case contentmodel.FieldNumber:
		return b.valueField(f.ID, graphql.Float)
	case contentmodel.FieldBoolean:
		return b.valueField(f.ID, graphql.Boolean)
	case contentmodel.FieldDate:
		return b.valueField(f.ID, b.types.DateTime)
	case contentmodel.FieldLocation:
		return b.valueField(f.ID, b.types.Location)
	case contentmodel.FieldObject:
		return b.valueField(f.ID, b.types.JSON)
	case contentmodel.FieldLink:
		target, ok := b.linkTarget(f)
		if !ok {
			return nil
		}
		return b.singleLinkField(f.ID, target)
	case contentmodel.FieldArray:
		if f.Items == nil {
			return nil
		}
		if f.Items.Type != contentmodel.FieldLink {
			return b.valueField(f.ID, graphql.NewList(graphql.String))
		}
		target, ok := b.linkTarget(f)
		if !ok {
			return nil
		}
		return b.multiLinkField(f.ID, target)
	default:
		return nil
	}
}

func (b *builder) valueField(id string, output graphql.Output) *graphql.Field {
	return &graphql.Field{
		Type: output,
		Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			e, ok := entry.FromSource(p.Source)
			if !ok {
				return nil, nil
			}
			v, _ := e.Field(id)
			return v, nil
		},
	}
}

func (b *builder) linkTarget(f contentmodel.Field) (linkTarget, bool) {
	if f.IsAssetLink() {
		return linkTarget{
			output: b.types.Asset,
			accept: func(e entry.Entry) bool { return e.Sys.Type == entry.TypeAsset },
		}, true
	}
	if !f.IsEntryLink() {
		return linkTarget{}, false
	}

	targets := f.LinkContentTypes()
	if len(targets) == 1 {
		id := targets[0]
		if obj, ok := b.registry[id]; ok {
			return linkTarget{output: obj, accept: contentTypeIn(map[string]bool{id: true})}, true
		}
		if id == contentmodel.BasePageID {
			return linkTarget{output: b.types.BasePage, accept: contentTypeIn(b.pageTypeSet())}, true
		}
	}

	allowed := b.contentTypeIDs()
	if len(targets) > 0 {
		allowed = map[string]bool{}
		for _, id := range targets {
			if id == contentmodel.BasePageID {
				for page := range b.pageTypeSet() {
					allowed[page] = true
				}
				continue
			}
			if _, ok := b.registry[id]; ok {
				allowed[id] = true
			}
		}
	}
	return linkTarget{output: b.types.Entry, accept: contentTypeIn(allowed)}, true
}

func (b *builder) pageTypeSet() map[string]bool {
	pages := map[string]bool{}
	for _, id := range b.model.PageTypeIDs() {
		if _, ok := b.registry[id]; ok {
			pages[id] = true
		}
	}
	return pages
}

// contentTypeIn only admits entries whose object type exists in this schema;
// anything else would fail abstract type resolution.
func contentTypeIn(ids map[string]bool) func(entry.Entry) bool {
	return func(e entry.Entry) bool {
		return e.Sys.Type != entry.TypeAsset && ids[e.Sys.ContentTypeID]
	}
}

func (b *builder) singleLinkField(id string, target linkTarget) *graphql.Field {
	return &graphql.Field{
		Type: target.output,
		Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			e, ok := entry.FromSource(p.Source)
			if !ok {
				return nil, nil
			}
			raw, _ := e.Field(id)
			linkID, ok := entry.LinkID(raw)
			if !ok {
				return nil, nil
			}
			ctx := p.Context
			return func() (interface{}, error) {
				linked, found, err := getLinked(ctx, linkID, target)
				if err != nil || !found {
					return nil, err
				}
				return linked, nil
			}, nil
		},
	}
}

func (b *builder) multiLinkField(id string, target linkTarget) *graphql.Field {
	return &graphql.Field{
		Type: graphql.NewList(target.output),
		Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			e, ok := entry.FromSource(p.Source)
			if !ok {
				return nil, nil
			}
			raw, _ := e.Field(id)
			items, ok := entry.IsList(raw)
			if !ok {
				return nil, nil
			}
			ctx := p.Context
			return func() (interface{}, error) {
				out := make([]entry.Entry, 0, len(items))
				for _, item := range items {
					linkID, ok := entry.LinkID(item)
					if !ok {
						continue
					}
					linked, found, err := getLinked(ctx, linkID, target)
					if err != nil {
						return nil, err
					}
					if found {
						out = append(out, linked)
					}
				}
				return out, nil
			}, nil
		},
	}
}

// getLinked loads a linked entry; unresolvable links and entries of the wrong
// type are reported as not found.
func getLinked(ctx context.Context, id string, target linkTarget) (entry.Entry, bool, error) {
	reader, ok := entryloader.FromContext(ctx)
	if !ok {
		return entry.Entry{}, false, entryloader.ErrNoLoader
	}
	linked, found, err := reader.Get(ctx, id)
	if err != nil || !found {
		return entry.Entry{}, false, err
	}
	if !target.accept(linked) {
		return entry.Entry{}, false, nil
	}
	return linked, true, nil
}
