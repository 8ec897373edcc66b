// Package basetypes defines the GraphQL types every generated schema shares:
// sys metadata, assets, locations and the Entry and BasePage interfaces.
//
// graphql-go types are bound to a single schema, so each schema build gets a
// fresh Set from NewSet.
package basetypes

import (
	"path"
	"strings"

	"cms-graphql/internal/entry"
	"cms-graphql/internal/scalars"

	"github.com/graphql-go/graphql"
)

// Set is one schema's instance of the shared types.
type Set struct {
	Sys      *graphql.Interface
	AssetSys *graphql.Object
	EntrySys *graphql.Object
	Asset    *graphql.Object
	Location *graphql.Object
	Entry    *graphql.Interface
	BasePage *graphql.Interface

	JSON           *graphql.Scalar
	DateTime       *graphql.Scalar
	NonNegativeInt *graphql.Scalar
}

// NewSet builds the shared types.
func NewSet() *Set {
	s := &Set{
		JSON:           scalars.JSON(),
		DateTime:       scalars.DateTime(),
		NonNegativeInt: scalars.NonNegativeInt(),
	}

	s.Sys = graphql.NewInterface(graphql.InterfaceConfig{
		Name:        "Sys",
		Description: "Metadata common to entries and assets.",
		Fields:      sysFields(),
	})

	assetSysFields := sysFields()
	s.AssetSys = graphql.NewObject(graphql.ObjectConfig{
		Name:       "AssetSys",
		Interfaces: []*graphql.Interface{s.Sys},
		Fields:     assetSysFields,
		IsTypeOf: func(p graphql.IsTypeOfParams) bool {
			sys, ok := p.Value.(entry.Sys)
			return ok && sys.Type == entry.TypeAsset
		},
	})

	entrySysFields := sysFields()
	entrySysFields["contentTypeId"] = &graphql.Field{
		Type: graphql.NewNonNull(graphql.String),
		Resolve: resolveSys(func(sys entry.Sys) interface{} {
			return sys.ContentTypeID
		}),
	}
	s.EntrySys = graphql.NewObject(graphql.ObjectConfig{
		Name:       "EntrySys",
		Interfaces: []*graphql.Interface{s.Sys},
		Fields:     entrySysFields,
		IsTypeOf: func(p graphql.IsTypeOfParams) bool {
			sys, ok := p.Value.(entry.Sys)
			return ok && sys.Type != entry.TypeAsset
		},
	})

	s.Asset = graphql.NewObject(graphql.ObjectConfig{
		Name: "Asset",
		Fields: graphql.Fields{
			"sys":         s.SysField(s.AssetSys),
			"title":       stringField("title"),
			"description": stringField("description"),
			"url": &graphql.Field{
				Type:    graphql.String,
				Resolve: resolveFile("url"),
			},
			"contentType": &graphql.Field{
				Type:    graphql.String,
				Resolve: resolveFile("contentType"),
			},
		},
		IsTypeOf: func(p graphql.IsTypeOfParams) bool {
			e, ok := entry.FromSource(p.Value)
			return ok && e.Sys.Type == entry.TypeAsset
		},
	})

	s.Location = graphql.NewObject(graphql.ObjectConfig{
		Name: "Location",
		Fields: graphql.Fields{
			"lon": coordinateField("lon"),
			"lat": coordinateField("lat"),
		},
	})

	s.Entry = graphql.NewInterface(graphql.InterfaceConfig{
		Name:        "Entry",
		Description: "Any entry, regardless of content type.",
		Fields: graphql.Fields{
			"sys": s.SysField(s.EntrySys),
		},
	})

	s.BasePage = graphql.NewInterface(graphql.InterfaceConfig{
		Name:        "BasePage",
		Description: "An entry that is published as a page.",
		Fields: graphql.Fields{
			"sys":       s.SysField(s.EntrySys),
			"urlFolder": &graphql.Field{Type: graphql.String},
			"url":       &graphql.Field{Type: graphql.String},
		},
	})

	return s
}

// SysField exposes an entry's sys block as the given sys type.
func (s *Set) SysField(sysType *graphql.Object) *graphql.Field {
	return &graphql.Field{
		Type: graphql.NewNonNull(sysType),
		Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			e, ok := entry.FromSource(p.Source)
			if !ok {
				return nil, nil
			}
			return e.Sys, nil
		},
	}
}

// PageFields returns the BasePage field implementations for a page type.
func (s *Set) PageFields() graphql.Fields {
	return graphql.Fields{
		"url": stringField("url"),
		"urlFolder": &graphql.Field{
			Type: graphql.String,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				e, ok := entry.FromSource(p.Source)
				if !ok {
					return nil, nil
				}
				return URLFolder(e), nil
			},
		},
	}
}

// URLFolder is the explicit urlFolder field, or the parent path of url.
func URLFolder(e entry.Entry) string {
	if folder := e.StringField("urlFolder"); folder != "" {
		return folder
	}
	url := e.StringField("url")
	if url == "" {
		return ""
	}
	dir := path.Dir("/" + strings.TrimPrefix(url, "/"))
	if dir == "/" {
		return "/"
	}
	return dir + "/"
}

func sysFields() graphql.Fields {
	return graphql.Fields{
		"id": &graphql.Field{
			Type:    graphql.NewNonNull(graphql.ID),
			Resolve: resolveSys(func(sys entry.Sys) interface{} { return sys.ID }),
		},
		"type": &graphql.Field{
			Type:    graphql.NewNonNull(graphql.String),
			Resolve: resolveSys(func(sys entry.Sys) interface{} { return sys.Type }),
		},
		"createdAt": &graphql.Field{
			Type:    graphql.String,
			Resolve: resolveSys(func(sys entry.Sys) interface{} { return sys.CreatedAt }),
		},
		"updatedAt": &graphql.Field{
			Type:    graphql.String,
			Resolve: resolveSys(func(sys entry.Sys) interface{} { return sys.UpdatedAt }),
		},
	}
}

func resolveSys(get func(entry.Sys) interface{}) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		switch sys := p.Source.(type) {
		case entry.Sys:
			return get(sys), nil
		case *entry.Sys:
			if sys != nil {
				return get(*sys), nil
			}
		}
		return nil, nil
	}
}

func stringField(id string) *graphql.Field {
	return &graphql.Field{
		Type: graphql.String,
		Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			e, ok := entry.FromSource(p.Source)
			if !ok {
				return nil, nil
			}
			v, ok := e.Field(id)
			if !ok {
				return nil, nil
			}
			return v, nil
		},
	}
}

func resolveFile(key string) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		e, ok := entry.FromSource(p.Source)
		if !ok {
			return nil, nil
		}
		file, ok := e.Fields["file"].(map[string]any)
		if !ok {
			return nil, nil
		}
		return file[key], nil
	}
}

func coordinateField(key string) *graphql.Field {
	return &graphql.Field{
		Type: graphql.Float,
		Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			loc, ok := p.Source.(map[string]any)
			if !ok {
				return nil, nil
			}
			return loc[key], nil
		},
	}
}
