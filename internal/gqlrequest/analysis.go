// Package gqlrequest decodes GraphQL HTTP payloads and derives the request
// metadata used for limits, logging, tracing, and metrics.
package gqlrequest

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/graphql-go/graphql/language/source"
)

// DefaultBackrefsFieldName matches the schema's default backrefs wrapper field.
const DefaultBackrefsFieldName = "_backrefs"

// Analysis stores parsed and derived GraphQL request metadata.
type Analysis struct {
	Envelope               Envelope
	RequestedOperationName string

	Document  *ast.Document
	Fragments map[string]*ast.FragmentDefinition
	Operation *ast.OperationDefinition

	OperationName string
	OperationType string

	FieldCount     int
	SelectionDepth int
	VariableCount  int
	// BackrefCount is the number of backref fields selected. Each one scans
	// every candidate entry of its source content type.
	BackrefCount int

	CanonicalOperation string
	OperationHash      string

	DecodeError     error
	ParseError      error
	SelectionError  error
	CanonicalizeErr error
}

// Analyzer holds the schema-dependent analysis settings.
type Analyzer struct {
	// BackrefsFieldName is the wrapper field whose children are backrefs.
	BackrefsFieldName string
}

// AnalyzeRequest decodes and analyzes a GraphQL request payload.
func (a Analyzer) AnalyzeRequest(r *http.Request) *Analysis {
	envelope, err := DecodeEnvelope(r)
	analysis := a.AnalyzeEnvelope(envelope)
	if err != nil {
		analysis.DecodeError = err
	}
	return analysis
}

// AnalyzeEnvelope analyzes with the default backrefs field name.
func AnalyzeEnvelope(env Envelope) *Analysis {
	return Analyzer{}.AnalyzeEnvelope(env)
}

// AnalyzeEnvelope parses and analyzes a normalized request envelope.
func (a Analyzer) AnalyzeEnvelope(env Envelope) *Analysis {
	analysis := &Analysis{
		Envelope:               env,
		RequestedOperationName: env.OperationName,
		Fragments:              map[string]*ast.FragmentDefinition{},
	}

	if strings.TrimSpace(env.Query) == "" {
		return analysis
	}

	doc, err := parser.Parse(parser.ParseParams{
		Source: source.NewSource(&source.Source{
			Body: []byte(env.Query),
			Name: "graphql",
		}),
	})
	if err != nil {
		analysis.ParseError = err
		return analysis
	}

	analysis.Document = doc
	analysis.Fragments = buildFragmentMap(doc)

	op, err := selectOperation(doc, env.OperationName)
	if err != nil {
		analysis.SelectionError = err
		return analysis
	}

	analysis.Operation = op
	analysis.OperationName = effectiveOperationName(op)
	analysis.OperationType = string(op.Operation)
	analysis.VariableCount = len(op.VariableDefinitions)

	w := &selectionWalker{
		fragments:    analysis.Fragments,
		backrefsName: a.backrefsFieldName(),
		visited:      map[string]bool{},
		inFlight:     map[string]bool{},
	}
	analysis.SelectionDepth = w.walk(op.SelectionSet, 1, false)
	analysis.FieldCount = w.fields
	analysis.BackrefCount = w.backrefs

	canonical, hash, err := canonicalOperationAndHash(op, analysis.Fragments)
	if err != nil {
		analysis.CanonicalizeErr = err
		return analysis
	}
	analysis.CanonicalOperation = canonical
	analysis.OperationHash = hash

	return analysis
}

func (a Analyzer) backrefsFieldName() string {
	if a.BackrefsFieldName == "" {
		return DefaultBackrefsFieldName
	}
	return a.BackrefsFieldName
}

// Err returns the first decode, parse, or operation selection failure.
func (a *Analysis) Err() error {
	if a == nil {
		return nil
	}
	return errors.Join(a.DecodeError, a.ParseError, a.SelectionError)
}

func buildFragmentMap(doc *ast.Document) map[string]*ast.FragmentDefinition {
	fragments := map[string]*ast.FragmentDefinition{}
	if doc == nil {
		return fragments
	}
	for _, def := range doc.Definitions {
		fragment, ok := def.(*ast.FragmentDefinition)
		if !ok || fragment == nil || fragment.Name == nil || fragment.Name.Value == "" {
			continue
		}
		fragments[fragment.Name.Value] = fragment
	}
	return fragments
}

func selectOperation(doc *ast.Document, operationName string) (*ast.OperationDefinition, error) {
	if doc == nil {
		return nil, fmt.Errorf("document is nil")
	}

	var operations []*ast.OperationDefinition
	for _, def := range doc.Definitions {
		if op, ok := def.(*ast.OperationDefinition); ok && op != nil {
			operations = append(operations, op)
		}
	}

	if operationName != "" {
		for _, op := range operations {
			if op.Name != nil && op.Name.Value == operationName {
				return op, nil
			}
		}
		return nil, fmt.Errorf("unknown operation named %q", operationName)
	}

	switch len(operations) {
	case 0:
		return nil, fmt.Errorf("request does not include an operation")
	case 1:
		return operations[0], nil
	default:
		return nil, fmt.Errorf("operationName is required when request has multiple operations")
	}
}

// selectionWalker counts fields and nesting depth. Fragment spreads are
// expanded once; cycles are cut.
type selectionWalker struct {
	fragments    map[string]*ast.FragmentDefinition
	backrefsName string
	visited      map[string]bool
	inFlight     map[string]bool

	fields   int
	backrefs int
}

func (w *selectionWalker) walk(set *ast.SelectionSet, depth int, underBackrefs bool) int {
	if set == nil {
		return depth - 1
	}

	maxDepth := depth
	deeper := func(d int) {
		if d > maxDepth {
			maxDepth = d
		}
	}
	for _, selection := range set.Selections {
		switch sel := selection.(type) {
		case *ast.Field:
			w.fields++
			name := ""
			if sel.Name != nil {
				name = sel.Name.Value
			}
			if underBackrefs && name != "__typename" {
				w.backrefs++
			}
			if sel.SelectionSet != nil {
				deeper(w.walk(sel.SelectionSet, depth+1, name == w.backrefsName))
			}
		case *ast.InlineFragment:
			deeper(w.walk(sel.SelectionSet, depth, underBackrefs))
		case *ast.FragmentSpread:
			name := ""
			if sel.Name != nil {
				name = sel.Name.Value
			}
			if name == "" || w.inFlight[name] || w.visited[name] {
				continue
			}
			fragment, ok := w.fragments[name]
			if !ok || fragment == nil {
				continue
			}
			w.inFlight[name] = true
			w.visited[name] = true
			deeper(w.walk(fragment.SelectionSet, depth, underBackrefs))
			delete(w.inFlight, name)
		}
	}
	return maxDepth
}
