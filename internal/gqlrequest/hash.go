package gqlrequest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strconv"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/printer"
)

const anonymousOperationName = "<anonymous>"

// canonicalOperationAndHash prints op followed by the fragments it reaches,
// sorted by name, and hashes the result together with the operation name.
// Whitespace, comments and sibling operations do not affect the hash.
func canonicalOperationAndHash(op *ast.OperationDefinition, fragments map[string]*ast.FragmentDefinition) (string, string, error) {
	if op == nil {
		return "", "", fmt.Errorf("operation is nil")
	}

	doc := &ast.Document{Definitions: []ast.Node{op}}
	for _, name := range fragmentClosure(op.SelectionSet, fragments) {
		fragment := fragments[name]
		if fragment == nil {
			return "", "", fmt.Errorf("fragment %q not found", name)
		}
		doc.Definitions = append(doc.Definitions, fragment)
	}

	canonical, ok := printer.Print(ast.NewDocument(doc)).(string)
	if !ok {
		return "", "", fmt.Errorf("printer returned a non-string document")
	}
	return canonical, operationDigest(canonical, effectiveOperationName(op)), nil
}

// fragmentClosure returns the sorted names of every fragment spread reachable
// from root, following spreads inside fragments. Unknown names are included
// so the caller can report them.
func fragmentClosure(root *ast.SelectionSet, fragments map[string]*ast.FragmentDefinition) []string {
	seen := map[string]bool{}
	pending := []*ast.SelectionSet{root}
	for len(pending) > 0 {
		set := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		if set == nil {
			continue
		}
		for _, selection := range set.Selections {
			switch sel := selection.(type) {
			case *ast.Field:
				pending = append(pending, sel.SelectionSet)
			case *ast.InlineFragment:
				pending = append(pending, sel.SelectionSet)
			case *ast.FragmentSpread:
				if sel.Name == nil || sel.Name.Value == "" || seen[sel.Name.Value] {
					continue
				}
				seen[sel.Name.Value] = true
				if fragment := fragments[sel.Name.Value]; fragment != nil {
					pending = append(pending, fragment.SelectionSet)
				}
			}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func effectiveOperationName(op *ast.OperationDefinition) string {
	if op == nil || op.Name == nil || op.Name.Value == "" {
		return anonymousOperationName
	}
	return op.Name.Value
}

// operationDigest hashes length-prefixed parts, so ("ab","c") and ("a","bc")
// produce different digests.
func operationDigest(parts ...string) string {
	h := sha256.New()
	for _, part := range parts {
		h.Write([]byte(strconv.Itoa(len(part))))
		h.Write([]byte{':'})
		h.Write([]byte(part))
		h.Write([]byte{'|'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
