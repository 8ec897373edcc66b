package naming

import (
	"log/slog"
	"strings"
	"unicode"
)

// BackrefViaSeparator joins the source collection name and the source field
// id in derived back-reference field names, e.g. "posts__via__author".
const BackrefViaSeparator = "__via__"

// Namer provides all name transformation functions for converting content
// model names to GraphQL names.
type Namer struct {
	config  Config
	logger  *slog.Logger
	types   *registry
	queries *registry
}

// New creates a Namer with the given configuration
func New(cfg Config, logger *slog.Logger) *Namer {
	if logger == nil {
		logger = slog.Default()
	}
	n := &Namer{config: cfg, logger: logger}
	n.Reset()
	return n
}

// Default returns a Namer with default configuration
func Default() *Namer {
	return New(DefaultConfig(), nil)
}

// Config returns the naming configuration.
func (n *Namer) Config() Config {
	return n.config
}

// Reset forgets every registered name so the namer can serve a new build.
func (n *Namer) Reset() {
	n.types = newRegistry("type")
	n.queries = newRegistry("query_field")
}

// TypeName converts a content type to its GraphQL object type name (PascalCase).
// Example: ("blogPost", "Blog post") -> "BlogPost"
func (n *Namer) TypeName(contentTypeID, displayName string) string {
	if override, ok := n.config.TypeOverrides[contentTypeID]; ok && override != "" {
		return override
	}
	source := displayName
	if strings.TrimSpace(source) == "" {
		source = contentTypeID
	}
	name := toPascalCase(source)
	if isReservedTypeName(name) {
		safeName := name + "_"
		n.logger.Warn("GraphQL name conflicts with reserved word, auto-suffixed",
			slog.String("original", name),
			slog.String("renamed", safeName),
		)
		return safeName
	}
	return name
}

// FieldName converts a display name or identifier to a GraphQL field name (camelCase).
// Example: "Blog post" -> "blogPost"
func (n *Namer) FieldName(name string) string {
	return toCamelCase(name)
}

// QueryFieldName returns the single-entry root query field for a content type.
func (n *Namer) QueryFieldName(typeName string) string {
	return n.validateField(lowerFirst(typeName))
}

// CollectionFieldName returns the root collection query field for a content type.
// Example: "blogPost" -> "blogPosts"
func (n *Namer) CollectionFieldName(fieldName string) string {
	return n.validateField(n.Pluralize(fieldName))
}

// BackrefsTypeName returns the name of the generated object type grouping a
// content type's back-reference fields.
func (n *Namer) BackrefsTypeName(typeName string) string {
	return typeName + "Backrefs"
}

// BackrefFieldName names the reverse relation exposed on a link target.
// Example: ("posts", "author") -> "posts__via__author"
func (n *Namer) BackrefFieldName(sourceCollectionField, fieldID string) string {
	return sourceCollectionField + BackrefViaSeparator + fieldID
}

// RegisterType claims a type name for a content type and returns the name
// it may use.
func (n *Namer) RegisterType(contentTypeID, typeName string) string {
	return n.types.claim(typeName, contentTypeID, n.logger)
}

// RegisterQuery claims a root query field name for a content type.
func (n *Namer) RegisterQuery(contentTypeID, fieldName string) string {
	return n.queries.claim(fieldName, contentTypeID, n.logger)
}

func (n *Namer) validateField(name string) string {
	if isReservedFieldName(name) {
		safeName := name + "_"
		n.logger.Warn("GraphQL name conflicts with reserved word, auto-suffixed",
			slog.String("original", name),
			slog.String("renamed", safeName),
		)
		return safeName
	}
	return name
}

// words splits on any non-alphanumeric rune, keeping existing inner casing.
func words(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func toPascalCase(s string) string {
	parts := words(s)
	for i, part := range parts {
		parts[i] = upperFirst(part)
	}
	return safeLeading(strings.Join(parts, ""))
}

func toCamelCase(s string) string {
	parts := words(s)
	for i, part := range parts {
		if i == 0 {
			parts[i] = lowerFirst(part)
			continue
		}
		parts[i] = upperFirst(part)
	}
	return safeLeading(strings.Join(parts, ""))
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// safeLeading prefixes names starting with a digit, which GraphQL rejects.
func safeLeading(s string) string {
	if s != "" && s[0] >= '0' && s[0] <= '9' {
		return "_" + s
	}
	return s
}
