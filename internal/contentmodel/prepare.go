package contentmodel

import (
	"fmt"

	"cms-graphql/internal/naming"
)

type backrefKey struct {
	ctID    string
	fieldID string
}

// Prepare validates the model and returns a copy ready for schema assembly:
// GraphQL names are assigned, omitted fields dropped, back-references derived
// from entry link validations, and shared base page fields copied onto every
// page type. The input model is not modified.
func Prepare(m *Model, namer *naming.Namer) (*Model, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid content model: %w", err)
	}
	if namer == nil {
		namer = naming.Default()
	}

	out := &Model{
		ContentTypes: make([]ContentType, 0, len(m.ContentTypes)),
		fingerprint:  m.fingerprint,
	}
	for _, ct := range m.ContentTypes {
		out.ContentTypes = append(out.ContentTypes, cloneContentType(ct))
	}

	for i := range out.ContentTypes {
		ct := &out.ContentTypes[i]
		ct.Fields = withoutOmitted(ct.Fields)
		ct.Names = assignNames(ct, namer)
	}

	deriveBackrefs(out)
	inheritBasePageFields(out)
	return out, nil
}

func cloneContentType(ct ContentType) ContentType {
	clone := ct
	clone.Fields = append([]Field(nil), ct.Fields...)
	clone.Backrefs = append([]Backref(nil), ct.Backrefs...)
	return clone
}

func withoutOmitted(fields []Field) []Field {
	kept := fields[:0]
	for _, f := range fields {
		if !f.Omitted {
			kept = append(kept, f)
		}
	}
	return kept
}

func assignNames(ct *ContentType, namer *naming.Namer) Names {
	if ct.ID == BasePageID {
		// Abstract: only the collection name is used, as a backref prefix.
		return Names{
			Field:           BasePageID,
			CollectionField: namer.Pluralize(BasePageID),
		}
	}
	typeName := namer.RegisterType(ct.ID, namer.TypeName(ct.ID, ct.Name))
	fieldName := namer.RegisterQuery(ct.ID, namer.QueryFieldName(typeName))
	collection := namer.RegisterQuery(ct.ID, namer.CollectionFieldName(fieldName))
	return Names{
		Type:            typeName,
		Field:           fieldName,
		CollectionField: collection,
		BackrefsType:    namer.BackrefsTypeName(typeName),
	}
}

// deriveBackrefs walks every entry link field and records the reverse relation
// on each content type the field may point at. A "basePage" link target fans
// out to every page type. Explicit backrefs from the file are kept first.
func deriveBackrefs(m *Model) {
	index := make(map[string]int, len(m.ContentTypes))
	seen := make(map[string]map[backrefKey]bool, len(m.ContentTypes))
	for i, ct := range m.ContentTypes {
		index[ct.ID] = i
		seen[ct.ID] = make(map[backrefKey]bool)
		for j, br := range ct.Backrefs {
			seen[ct.ID][backrefKey{br.CtID, br.FieldID}] = true
			if br.Cardinality == CardinalityUnknown {
				m.ContentTypes[i].Backrefs[j].Cardinality = explicitCardinality(m, br)
			}
		}
	}
	pageIDs := m.PageTypeIDs()

	for _, source := range m.ContentTypes {
		for _, field := range source.Fields {
			if !field.IsEntryLink() {
				continue
			}
			for _, target := range expandTargets(field.LinkContentTypes(), pageIDs) {
				i, ok := index[target]
				if !ok || target == BasePageID {
					continue
				}
				key := backrefKey{source.ID, field.ID}
				if seen[target][key] {
					continue
				}
				seen[target][key] = true
				m.ContentTypes[i].Backrefs = append(m.ContentTypes[i].Backrefs, Backref{
					CtID:             source.ID,
					FieldID:          field.ID,
					BackrefFieldName: source.Names.CollectionField + naming.BackrefViaSeparator + field.ID,
					Cardinality:      field.Cardinality(),
				})
			}
		}
	}
}

func expandTargets(targets, pageIDs []string) []string {
	var out []string
	for _, target := range targets {
		if target == BasePageID {
			out = append(out, pageIDs...)
			continue
		}
		out = append(out, target)
	}
	return out
}

func explicitCardinality(m *Model, br Backref) Cardinality {
	source, ok := m.ContentType(br.CtID)
	if !ok {
		return CardinalityUnknown
	}
	field, ok := source.Field(br.FieldID)
	if !ok {
		return CardinalityUnknown
	}
	return field.Cardinality()
}

// inheritBasePageFields copies the abstract base page's fields onto every page
// type that does not declare a field with the same id.
func inheritBasePageFields(m *Model) {
	base, ok := m.ContentType(BasePageID)
	if !ok {
		return
	}
	shared := append([]Field(nil), base.Fields...)
	for i := range m.ContentTypes {
		ct := &m.ContentTypes[i]
		if !ct.Page || ct.ID == BasePageID {
			continue
		}
		for _, f := range shared {
			if !ct.hasField(f.ID) {
				ct.Fields = append(ct.Fields, f)
			}
		}
	}
}
