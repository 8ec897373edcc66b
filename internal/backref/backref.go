// Package backref builds the reverse-relation fields of a content type: for
// every declared backref it exposes the entries of another content type whose
// link field points at the current entry.
package backref

import (
	"context"
	"log/slog"

	"cms-graphql/internal/contentmodel"
	"cms-graphql/internal/entry"
	"cms-graphql/internal/entryloader"

	"github.com/graphql-go/graphql"
	"go.opentelemetry.io/otel/attribute"
)

// Loader is the data access a backref resolver needs.
type Loader interface {
	QueryAll(ctx context.Context, contentTypeID string) ([]entry.Entry, error)
	QueryBasePages(ctx context.Context, contentTypeID string) ([]entry.Entry, error)
}

// TypeRegistry maps content type ids to their built object types.
type TypeRegistry map[string]*graphql.Object

// Kind tells how a backref was materialized.
type Kind string

const (
	// KindType lists entries of one concrete content type.
	KindType Kind = "type"
	// KindBasePage lists entries of any page type.
	KindBasePage Kind = "basePage"
	// KindSkipped means the source content type is unknown; no field is built.
	KindSkipped Kind = "skipped"
)

// Resolution is the build decision for one declared backref.
type Resolution struct {
	Backref contentmodel.Backref
	Kind    Kind
	Type    graphql.Output
}

// Builder builds backref fields. BasePage is the shared page interface used
// for backrefs whose source is the base page sentinel.
type Builder struct {
	BasePage *graphql.Interface
	Logger   *slog.Logger
}

// Resolve decides, in declaration order, how each of the content type's
// backrefs is materialized against registry.
func (b *Builder) Resolve(ct *contentmodel.ContentType, registry TypeRegistry) []Resolution {
	out := make([]Resolution, 0, len(ct.Backrefs))
	for _, br := range ct.Backrefs {
		res := Resolution{Backref: br, Kind: KindSkipped}
		if obj, ok := registry[br.CtID]; ok && obj != nil {
			res.Kind = KindType
			res.Type = obj
		} else if br.CtID == contentmodel.BasePageID && b.BasePage != nil {
			res.Kind = KindBasePage
			res.Type = b.BasePage
		}
		out = append(out, res)
	}
	return out
}

// Fields returns the materializable backref fields of ct. Backrefs whose
// source content type is unknown are skipped.
func (b *Builder) Fields(ct *contentmodel.ContentType, registry TypeRegistry) graphql.Fields {
	fields := graphql.Fields{}
	for _, res := range b.Resolve(ct, registry) {
		br := res.Backref
		switch res.Kind {
		case KindType:
			fields[br.BackrefFieldName] = b.field(res, queryAll)
		case KindBasePage:
			fields[br.BackrefFieldName] = b.field(res, queryBasePages)
		default:
			b.logger().Debug("skipping backref with unknown source content type",
				slog.String("content_type", ct.ID),
				slog.String("backref", br.BackrefFieldName),
				slog.String("source_content_type", br.CtID),
			)
		}
	}
	return fields
}

// BuildType returns the backrefs object type of ct, or nil when no backref
// can be materialized.
func (b *Builder) BuildType(ct *contentmodel.ContentType, registry TypeRegistry) *graphql.Object {
	fields := b.Fields(ct, registry)
	if len(fields) == 0 {
		return nil
	}
	return graphql.NewObject(graphql.ObjectConfig{
		Name:        ct.Names.BackrefsType,
		Description: "Entries that link to this " + ct.Names.Type + ".",
		Fields:      fields,
	})
}

type queryFunc func(ctx context.Context, loader Loader, contentTypeID string) ([]entry.Entry, error)

func queryAll(ctx context.Context, loader Loader, contentTypeID string) ([]entry.Entry, error) {
	return loader.QueryAll(ctx, contentTypeID)
}

func queryBasePages(ctx context.Context, loader Loader, contentTypeID string) ([]entry.Entry, error) {
	return loader.QueryBasePages(ctx, contentTypeID)
}

func (b *Builder) field(res Resolution, query queryFunc) *graphql.Field {
	br := res.Backref
	return &graphql.Field{
		Type: graphql.NewList(res.Type),
		Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			targetID, ok := sourceID(p.Source)
			if !ok {
				return []entry.Entry{}, nil
			}
			ctx := p.Context
			return func() (interface{}, error) {
				reader, ok := entryloader.FromContext(ctx)
				if !ok {
					return nil, entryloader.ErrNoLoader
				}
				ctx, span := startResolverSpan(ctx, "graphql.backref",
					attribute.String("graphql.backref.field", br.BackrefFieldName),
					attribute.String("graphql.backref.source_content_type", br.CtID),
				)
				defer span.End()

				candidates, err := query(ctx, reader, br.CtID)
				if err != nil {
					finishResolverSpan(span, err, 0, 0)
					return nil, err
				}
				matched := FilterEntriesWithCardinality(candidates, br.FieldID, targetID, br.Cardinality)
				finishResolverSpan(span, nil, len(candidates), len(matched))
				return matched, nil
			}, nil
		},
	}
}

// sourceID accepts the entry id the parent field resolved to, or the entry itself.
func sourceID(source interface{}) (string, bool) {
	if id, ok := source.(string); ok {
		return id, id != ""
	}
	if e, ok := entry.FromSource(source); ok {
		return e.Sys.ID, e.Sys.ID != ""
	}
	return "", false
}

func (b *Builder) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.Default()
	}
	return b.Logger
}
