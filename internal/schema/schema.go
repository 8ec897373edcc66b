// Package schema assembles an executable GraphQL schema from a prepared
// content model.
package schema

import (
	"fmt"
	"log/slog"

	"cms-graphql/internal/backref"
	"cms-graphql/internal/basetypes"
	"cms-graphql/internal/contentmodel"
	"cms-graphql/internal/entry"
	"cms-graphql/internal/naming"

	"github.com/graphql-go/graphql"
)

const (
	// DefaultBackrefsFieldName is the object field exposing a content type's backrefs.
	DefaultBackrefsFieldName = "_backrefs"
	// DefaultListLimit caps collection queries that do not pass a limit.
	DefaultListLimit = 100
	// DefaultMaxListLimit is the largest limit a client may request.
	DefaultMaxListLimit = 1000
)

// Options tunes schema assembly.
type Options struct {
	BackrefsFieldName string
	DefaultLimit      int
	MaxLimit          int
	Logger            *slog.Logger
}

// Result is a built schema plus the intermediate artifacts callers inspect.
type Result struct {
	Schema   graphql.Schema
	Registry backref.TypeRegistry
	// Backrefs holds, per content type id, how each declared backref was
	// materialized.
	Backrefs map[string][]backref.Resolution
	Model    *contentmodel.Model
}

type builder struct {
	model    *contentmodel.Model
	opts     Options
	logger   *slog.Logger
	types    *basetypes.Set
	namer    *naming.Namer
	registry backref.TypeRegistry
	backrefs map[string]*graphql.Object

	resolutions map[string][]backref.Resolution
}

// Build assembles the schema for a model returned by contentmodel.Prepare.
func Build(model *contentmodel.Model, opts Options) (*Result, error) {
	if model == nil {
		return nil, fmt.Errorf("content model is nil")
	}
	opts = withDefaults(opts)

	b := &builder{
		model:    model,
		opts:     opts,
		logger:   opts.Logger,
		types:    basetypes.NewSet(),
		namer:    naming.Default(),
		registry: backref.TypeRegistry{},
		backrefs: map[string]*graphql.Object{},
	}

	for i := range model.ContentTypes {
		ct := &model.ContentTypes[i]
		if ct.ID == contentmodel.BasePageID {
			continue
		}
		if ct.Names.Type == "" {
			return nil, fmt.Errorf("content type %q has no GraphQL name; prepare the model first", ct.ID)
		}
		b.registry[ct.ID] = b.objectType(ct)
	}

	brBuilder := &backref.Builder{BasePage: b.types.BasePage, Logger: b.logger}
	b.resolutions = make(map[string][]backref.Resolution, len(b.registry))
	for i := range model.ContentTypes {
		ct := &model.ContentTypes[i]
		if _, ok := b.registry[ct.ID]; !ok {
			continue
		}
		b.resolutions[ct.ID] = brBuilder.Resolve(ct, b.registry)
		if obj := brBuilder.BuildType(ct, b.registry); obj != nil {
			b.backrefs[ct.ID] = obj
		}
	}

	types := make([]graphql.Type, 0, len(b.registry)+2)
	types = append(types, b.types.EntrySys, b.types.AssetSys)
	for i := range model.ContentTypes {
		if obj, ok := b.registry[model.ContentTypes[i].ID]; ok {
			types = append(types, obj)
		}
	}

	schema, err := graphql.NewSchema(graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{
			Name:   "Query",
			Fields: b.queryFields(),
		}),
		Types: types,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build GraphQL schema: %w", err)
	}

	return &Result{
		Schema:   schema,
		Registry: b.registry,
		Backrefs: b.resolutions,
		Model:    model,
	}, nil
}

func withDefaults(opts Options) Options {
	if opts.BackrefsFieldName == "" {
		opts.BackrefsFieldName = DefaultBackrefsFieldName
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = DefaultListLimit
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = DefaultMaxListLimit
	}
	if opts.DefaultLimit > opts.MaxLimit {
		opts.DefaultLimit = opts.MaxLimit
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return opts
}

// objectType creates the content type's object. Fields are built lazily so
// link fields can reference types registered later.
func (b *builder) objectType(ct *contentmodel.ContentType) *graphql.Object {
	interfaces := []*graphql.Interface{b.types.Entry}
	if ct.Page {
		interfaces = append(interfaces, b.types.BasePage)
	}
	contentTypeID := ct.ID
	return graphql.NewObject(graphql.ObjectConfig{
		Name:        ct.Names.Type,
		Description: ct.Description,
		Interfaces:  interfaces,
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			return b.objectFields(ct)
		}),
		IsTypeOf: func(p graphql.IsTypeOfParams) bool {
			e, ok := entry.FromSource(p.Value)
			return ok && e.Sys.Type != entry.TypeAsset && e.Sys.ContentTypeID == contentTypeID
		},
	})
}

func (b *builder) objectFields(ct *contentmodel.ContentType) graphql.Fields {
	fields := graphql.Fields{
		"sys": b.types.SysField(b.types.EntrySys),
	}
	reserved := map[string]bool{"sys": true, b.opts.BackrefsFieldName: true}
	if ct.Page {
		for name, field := range b.types.PageFields() {
			fields[name] = field
			reserved[name] = true
		}
	}

	for _, f := range ct.Fields {
		name := b.namer.FieldName(f.ID)
		if name == "" || reserved[name] {
			continue
		}
		if _, exists := fields[name]; exists {
			b.logger.Warn("skipping content type field with conflicting GraphQL name",
				slog.String("content_type", ct.ID),
				slog.String("field", f.ID),
				slog.String("graphql_name", name),
			)
			continue
		}
		field := b.forwardField(f)
		if field == nil {
			continue
		}
		fields[name] = field
	}

	if obj, ok := b.backrefs[ct.ID]; ok {
		fields[b.opts.BackrefsFieldName] = &graphql.Field{
			Type:        graphql.NewNonNull(obj),
			Description: "Entries linking to this entry.",
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				e, ok := entry.FromSource(p.Source)
				if !ok {
					return nil, nil
				}
				return e.Sys.ID, nil
			},
		}
	}
	return fields
}

func (b *builder) contentTypeIDs() map[string]bool {
	ids := make(map[string]bool, len(b.registry))
	for id := range b.registry {
		ids[id] = true
	}
	return ids
}
