package naming

import "strings"

// reservedTypeNames contains GraphQL keywords, built-in scalars and the shared
// types every generated schema already defines.
var reservedTypeNames = map[string]bool{
	"query":        true,
	"mutation":     true,
	"subscription": true,
	"schema":       true,

	"int":     true,
	"float":   true,
	"string":  true,
	"boolean": true,
	"id":      true,

	"sys":      true,
	"assetsys": true,
	"entrysys": true,
	"asset":    true,
	"entry":    true,
	"basepage": true,
	"location": true,
	"json":     true,
}

// reservedFieldNames are root query fields owned by the schema assembler.
var reservedFieldNames = map[string]bool{
	"asset":         true,
	"assets":        true,
	"basepages":     true,
	"_contenttypes": true,
}

func isReservedTypeName(name string) bool {
	lowerName := strings.ToLower(name)
	if strings.HasPrefix(lowerName, "__") {
		return true
	}
	if reservedTypeNames[lowerName] {
		return true
	}
	return strings.HasSuffix(lowerName, "backrefs")
}

func isReservedFieldName(name string) bool {
	lowerName := strings.ToLower(name)
	if strings.HasPrefix(lowerName, "__") {
		return true
	}
	return reservedFieldNames[lowerName]
}

// IsReservedTypeName reports whether name clashes with a built-in or shared
// schema type.
func IsReservedTypeName(name string) bool {
	return isReservedTypeName(name)
}
