// Package naming turns content model ids and display names into GraphQL type
// and field names. It pluralizes collection fields, steers clear of reserved
// names and suffixes duplicates.
package naming

// Config customizes generated names. Keys are content type ids or singular
// field names as written in the content model.
type Config struct {
	// PluralOverrides replaces the inflected plural of a field name,
	// e.g. {"person": "people", "news": "newsItems"}.
	PluralOverrides map[string]string `mapstructure:"plural_overrides"`

	// TypeOverrides pins the GraphQL type name of a content type.
	TypeOverrides map[string]string `mapstructure:"type_overrides"`
}

func DefaultConfig() Config {
	return Config{
		PluralOverrides: map[string]string{},
		TypeOverrides:   map[string]string{},
	}
}
