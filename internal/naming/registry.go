package naming

import (
	"log/slog"
	"strconv"

	"github.com/jinzhu/inflection"
)

// Pluralize returns the collection form of a field name. Words whose plural
// equals the singular ("news", "series") get a "Collection" suffix so the
// collection field never shadows the single-entry field.
func (n *Namer) Pluralize(word string) string {
	if override := n.config.PluralOverrides[word]; override != "" {
		return override
	}
	if plural := inflection.Plural(word); plural != word {
		return plural
	}
	return word + "Collection"
}

// registry hands out unique names within one namespace of a schema build.
// The first content type to claim a name keeps it; later claimants get the
// lowest free numeric suffix starting at 2.
type registry struct {
	kind   string
	owners map[string]string
}

func newRegistry(kind string) *registry {
	return &registry{kind: kind, owners: map[string]string{}}
}

func (r *registry) claim(name, contentTypeID string, logger *slog.Logger) string {
	if _, taken := r.owners[name]; !taken {
		r.owners[name] = contentTypeID
		return name
	}
	resolved := name
	for i := 2; ; i++ {
		resolved = name + strconv.Itoa(i)
		if _, taken := r.owners[resolved]; !taken {
			break
		}
	}
	r.owners[resolved] = contentTypeID
	logger.Warn("GraphQL name already taken, suffixed",
		slog.String("kind", r.kind),
		slog.String("name", name),
		slog.String("owner", r.owners[name]),
		slog.String("content_type", contentTypeID),
		slog.String("renamed", resolved))
	return resolved
}
