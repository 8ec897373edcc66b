// Package contentmodel loads and prepares the CMS content model: content types,
// their fields, and the back-references derived from link fields.
package contentmodel

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// BasePageID is the reserved content type id meaning "any page-like type".
// A content type declared with this id is abstract: its fields are shared by
// every page type and no object type is generated for it.
const BasePageID = "basePage"

// FieldType is the content model type of a field.
type FieldType string

// Supported field types.
const (
	FieldSymbol   FieldType = "Symbol"
	FieldText     FieldType = "Text"
	FieldInteger  FieldType = "Integer"
	FieldNumber   FieldType = "Number"
	FieldBoolean  FieldType = "Boolean"
	FieldDate     FieldType = "Date"
	FieldLocation FieldType = "Location"
	FieldObject   FieldType = "Object"
	FieldLink     FieldType = "Link"
	FieldArray    FieldType = "Array"
)

// Link targets.
const (
	LinkEntry = "Entry"
	LinkAsset = "Asset"
)

var knownFieldTypes = map[FieldType]bool{
	FieldSymbol:   true,
	FieldText:     true,
	FieldInteger:  true,
	FieldNumber:   true,
	FieldBoolean:  true,
	FieldDate:     true,
	FieldLocation: true,
	FieldObject:   true,
	FieldLink:     true,
	FieldArray:    true,
}

// Cardinality tells whether a reference field holds one link or a list of links.
type Cardinality string

const (
	// CardinalityUnknown defers to structural inspection of the stored value.
	CardinalityUnknown Cardinality = ""
	CardinalityOne     Cardinality = "one"
	CardinalityMany    Cardinality = "many"
)

// Validation mirrors the subset of CMS field validations the schema cares about.
type Validation struct {
	LinkContentType []string `yaml:"link_content_type,omitempty"`
}

// Items describes the element type of an Array field.
type Items struct {
	Type        FieldType    `yaml:"type"`
	LinkType    string       `yaml:"link_type,omitempty"`
	Validations []Validation `yaml:"validations,omitempty"`
}

// Field is a single content type field.
type Field struct {
	ID          string       `yaml:"id"`
	Name        string       `yaml:"name,omitempty"`
	Type        FieldType    `yaml:"type"`
	LinkType    string       `yaml:"link_type,omitempty"`
	Items       *Items       `yaml:"items,omitempty"`
	Validations []Validation `yaml:"validations,omitempty"`
	Required    bool         `yaml:"required,omitempty"`
	Omitted     bool         `yaml:"omitted,omitempty"`
}

// Backref declares that entries of CtID may reference the owning content type
// via their field FieldID; the relation is exposed as BackrefFieldName.
type Backref struct {
	CtID             string      `yaml:"ct_id"`
	FieldID          string      `yaml:"field_id"`
	BackrefFieldName string      `yaml:"backref_field_name"`
	Cardinality      Cardinality `yaml:"cardinality,omitempty"`
}

// Names holds the generated GraphQL names of a content type.
type Names struct {
	Type            string
	Field           string
	CollectionField string
	BackrefsType    string
}

// ContentType describes one class of entries.
type ContentType struct {
	ID           string    `yaml:"id"`
	Name         string    `yaml:"name,omitempty"`
	Description  string    `yaml:"description,omitempty"`
	DisplayField string    `yaml:"display_field,omitempty"`
	Page         bool      `yaml:"page,omitempty"`
	Fields       []Field   `yaml:"fields"`
	Backrefs     []Backref `yaml:"backrefs,omitempty"`

	Names Names `yaml:"-"`
}

// Model is the full set of content types.
type Model struct {
	ContentTypes []ContentType `yaml:"content_types"`

	fingerprint string
}

// Load reads and parses a content model file (YAML or JSON).
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read content model %q: %w", path, err)
	}
	model, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse content model %q: %w", path, err)
	}
	return model, nil
}

// Parse decodes a content model document. Unknown keys are rejected.
func Parse(data []byte) (*Model, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var model Model
	if err := dec.Decode(&model); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	model.fingerprint = FingerprintBytes(data)
	return &model, nil
}

// FingerprintBytes hashes raw content model bytes.
func FingerprintBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Fingerprint identifies the source document the model was parsed from.
func (m *Model) Fingerprint() string {
	return m.fingerprint
}

// ContentType looks up a content type by id.
func (m *Model) ContentType(id string) (*ContentType, bool) {
	for i := range m.ContentTypes {
		if m.ContentTypes[i].ID == id {
			return &m.ContentTypes[i], true
		}
	}
	return nil, false
}

// PageTypeIDs returns the ids of page-like content types in declaration order.
func (m *Model) PageTypeIDs() []string {
	var ids []string
	for _, ct := range m.ContentTypes {
		if ct.Page && ct.ID != BasePageID {
			ids = append(ids, ct.ID)
		}
	}
	return ids
}

// Validate checks structural consistency of the model.
func (m *Model) Validate() error {
	var errs []error
	seen := make(map[string]bool, len(m.ContentTypes))
	sharedURL := false
	if base, ok := m.ContentType(BasePageID); ok {
		sharedURL = base.hasField("url")
	}
	for _, ct := range m.ContentTypes {
		if ct.Page && ct.ID != BasePageID && !sharedURL && !ct.hasField("url") {
			errs = append(errs, fmt.Errorf("page content type %q must declare a url field", ct.ID))
		}
		if ct.ID == "" {
			errs = append(errs, errors.New("content type with empty id"))
			continue
		}
		if seen[ct.ID] {
			errs = append(errs, fmt.Errorf("duplicate content type id %q", ct.ID))
		}
		seen[ct.ID] = true

		fieldIDs := make(map[string]bool, len(ct.Fields))
		for _, f := range ct.Fields {
			if err := f.validate(); err != nil {
				errs = append(errs, fmt.Errorf("content type %q: %w", ct.ID, err))
			}
			if fieldIDs[f.ID] {
				errs = append(errs, fmt.Errorf("content type %q: duplicate field id %q", ct.ID, f.ID))
			}
			fieldIDs[f.ID] = true
		}
		for _, br := range ct.Backrefs {
			if br.CtID == "" || br.FieldID == "" || br.BackrefFieldName == "" {
				errs = append(errs, fmt.Errorf("content type %q: backref requires ct_id, field_id and backref_field_name", ct.ID))
			}
		}
	}
	return errors.Join(errs...)
}

func (ct *ContentType) hasField(id string) bool {
	for _, f := range ct.Fields {
		if f.ID == id {
			return true
		}
	}
	return false
}

// Field looks up a field by id.
func (ct *ContentType) Field(id string) (Field, bool) {
	for _, f := range ct.Fields {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}

func (f Field) validate() error {
	if f.ID == "" {
		return errors.New("field with empty id")
	}
	if !knownFieldTypes[f.Type] {
		return fmt.Errorf("field %q: unknown type %q", f.ID, f.Type)
	}
	switch f.Type {
	case FieldLink:
		if f.LinkType != LinkEntry && f.LinkType != LinkAsset {
			return fmt.Errorf("field %q: link_type must be Entry or Asset", f.ID)
		}
	case FieldArray:
		if f.Items == nil {
			return fmt.Errorf("field %q: array requires items", f.ID)
		}
		if f.Items.Type == FieldLink && f.Items.LinkType != LinkEntry && f.Items.LinkType != LinkAsset {
			return fmt.Errorf("field %q: items link_type must be Entry or Asset", f.ID)
		}
		if f.Items.Type != FieldLink && f.Items.Type != FieldSymbol {
			return fmt.Errorf("field %q: unsupported items type %q", f.ID, f.Items.Type)
		}
	}
	return nil
}

// IsEntryLink reports whether the field references entries (single or list).
func (f Field) IsEntryLink() bool {
	switch f.Type {
	case FieldLink:
		return f.LinkType == LinkEntry
	case FieldArray:
		return f.Items != nil && f.Items.Type == FieldLink && f.Items.LinkType == LinkEntry
	}
	return false
}

// IsAssetLink reports whether the field references assets (single or list).
func (f Field) IsAssetLink() bool {
	switch f.Type {
	case FieldLink:
		return f.LinkType == LinkAsset
	case FieldArray:
		return f.Items != nil && f.Items.Type == FieldLink && f.Items.LinkType == LinkAsset
	}
	return false
}

// Cardinality returns the reference cardinality of a link field.
func (f Field) Cardinality() Cardinality {
	switch {
	case f.Type == FieldLink:
		return CardinalityOne
	case f.Type == FieldArray && f.Items != nil && f.Items.Type == FieldLink:
		return CardinalityMany
	}
	return CardinalityUnknown
}

// LinkContentTypes returns the content type ids an entry link field is
// restricted to, in declaration order.
func (f Field) LinkContentTypes() []string {
	validations := f.Validations
	if f.Type == FieldArray && f.Items != nil {
		validations = f.Items.Validations
	}
	var out []string
	seen := make(map[string]bool)
	for _, v := range validations {
		for _, id := range v.LinkContentType {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}
