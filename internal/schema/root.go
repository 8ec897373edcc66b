package schema

import (
	"context"
	"fmt"

	"cms-graphql/internal/contentmodel"
	"cms-graphql/internal/entry"
	"cms-graphql/internal/entryloader"

	"github.com/graphql-go/graphql"
)

func (b *builder) queryFields() graphql.Fields {
	fields := graphql.Fields{}

	for i := range b.model.ContentTypes {
		ct := &b.model.ContentTypes[i]
		obj, ok := b.registry[ct.ID]
		if !ok {
			continue
		}
		contentTypeID := ct.ID
		fields[ct.Names.Field] = &graphql.Field{
			Type:        obj,
			Description: fmt.Sprintf("Look up a single %s by id.", ct.Names.Type),
			Args:        idArgs(),
			Resolve: b.byIDResolver(func(e entry.Entry) bool {
				return e.Sys.Type != entry.TypeAsset && e.Sys.ContentTypeID == contentTypeID
			}),
		}
		fields[ct.Names.CollectionField] = &graphql.Field{
			Type:        graphql.NewList(obj),
			Description: fmt.Sprintf("List %s entries in creation order.", ct.Names.Type),
			Args:        b.pageArgs(),
			Resolve: b.listResolver(func(ctx context.Context, reader entryloader.Reader) ([]entry.Entry, error) {
				return reader.QueryAll(ctx, contentTypeID)
			}),
		}
	}

	if len(b.model.PageTypeIDs()) > 0 {
		fields["basePages"] = &graphql.Field{
			Type:        graphql.NewList(b.types.BasePage),
			Description: "List entries of every page type.",
			Args:        b.pageArgs(),
			Resolve: b.listResolver(func(ctx context.Context, reader entryloader.Reader) ([]entry.Entry, error) {
				return reader.QueryBasePages(ctx, contentmodel.BasePageID)
			}),
		}
	}

	fields["asset"] = &graphql.Field{
		Type:        b.types.Asset,
		Description: "Look up a single asset by id.",
		Args:        idArgs(),
		Resolve: b.byIDResolver(func(e entry.Entry) bool {
			return e.Sys.Type == entry.TypeAsset
		}),
	}
	fields["assets"] = &graphql.Field{
		Type:        graphql.NewList(b.types.Asset),
		Description: "List assets.",
		Args:        b.pageArgs(),
		Resolve: b.listResolver(func(ctx context.Context, reader entryloader.Reader) ([]entry.Entry, error) {
			return reader.Assets(ctx)
		}),
	}

	summary := b.contentTypeSummary()
	fields["_contentTypes"] = &graphql.Field{
		Type:        b.types.JSON,
		Description: "The content types served by this schema and their backrefs.",
		Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			return summary, nil
		},
	}

	return fields
}

func idArgs() graphql.FieldConfigArgument {
	return graphql.FieldConfigArgument{
		"id": &graphql.ArgumentConfig{
			Type: graphql.NewNonNull(graphql.ID),
		},
	}
}

func (b *builder) pageArgs() graphql.FieldConfigArgument {
	return graphql.FieldConfigArgument{
		"skip": &graphql.ArgumentConfig{
			Type:         b.types.NonNegativeInt,
			DefaultValue: 0,
		},
		"limit": &graphql.ArgumentConfig{
			Type:        b.types.NonNegativeInt,
			Description: fmt.Sprintf("Maximum number of results (default %d, max %d).", b.opts.DefaultLimit, b.opts.MaxLimit),
		},
	}
}

func (b *builder) byIDResolver(accept func(entry.Entry) bool) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		id, _ := p.Args["id"].(string)
		if id == "" {
			return nil, nil
		}
		reader, ok := entryloader.FromContext(p.Context)
		if !ok {
			return nil, entryloader.ErrNoLoader
		}
		e, found, err := reader.Get(p.Context, id)
		if err != nil {
			return nil, err
		}
		if !found || !accept(e) {
			return nil, nil
		}
		return e, nil
	}
}

type listFunc func(ctx context.Context, reader entryloader.Reader) ([]entry.Entry, error)

func (b *builder) listResolver(list listFunc) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		skip, _ := optionalIntArg(p.Args, "skip")
		limit, ok := optionalIntArg(p.Args, "limit")
		if !ok {
			limit = b.opts.DefaultLimit
		}
		if limit > b.opts.MaxLimit {
			limit = b.opts.MaxLimit
		}
		reader, ok := entryloader.FromContext(p.Context)
		if !ok {
			return nil, entryloader.ErrNoLoader
		}
		entries, err := list(p.Context, reader)
		if err != nil {
			return nil, err
		}
		return paginate(entries, skip, limit), nil
	}
}

func paginate(entries []entry.Entry, skip, limit int) []entry.Entry {
	if skip >= len(entries) {
		return []entry.Entry{}
	}
	end := len(entries)
	if skip+limit < end {
		end = skip + limit
	}
	return entries[skip:end]
}

func optionalIntArg(args map[string]interface{}, key string) (int, bool) {
	if args == nil {
		return 0, false
	}
	value, ok := args[key]
	if !ok || value == nil {
		return 0, false
	}
	intValue, ok := value.(int)
	if !ok || intValue < 0 {
		return 0, false
	}
	return intValue, true
}

func (b *builder) contentTypeSummary() []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(b.registry))
	for i := range b.model.ContentTypes {
		ct := &b.model.ContentTypes[i]
		if _, ok := b.registry[ct.ID]; !ok {
			continue
		}
		resolutions := b.resolutions[ct.ID]
		backrefs := make([]map[string]interface{}, 0, len(resolutions))
		for _, res := range resolutions {
			br := res.Backref
			backrefs = append(backrefs, map[string]interface{}{
				"field":             br.BackrefFieldName,
				"sourceContentType": br.CtID,
				"sourceField":       br.FieldID,
				"cardinality":       string(br.Cardinality),
				"kind":              string(res.Kind),
			})
		}
		out = append(out, map[string]interface{}{
			"id":              ct.ID,
			"typeName":        ct.Names.Type,
			"queryField":      ct.Names.Field,
			"collectionField": ct.Names.CollectionField,
			"page":            ct.Page,
			"backrefs":        backrefs,
		})
	}
	return out
}
