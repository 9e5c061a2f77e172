package gql

import (
	"bytes"
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
	"github.com/vektah/gqlparser/v2/parser"
)

// Document is a built graph request: the text and its variables.
type Document struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// Validate checks that doc is syntactically valid query text.
func Validate(doc string) error {
	if _, err := parser.ParseQuery(&ast.Source{Name: "document", Input: doc}); err != nil {
		return fmt.Errorf("invalid graph document: %w", err)
	}
	return nil
}

// Format pretty-prints doc.
func Format(doc string) (string, error) {
	parsed, err := parser.ParseQuery(&ast.Source{Name: "document", Input: doc})
	if err != nil {
		return "", fmt.Errorf("invalid graph document: %w", err)
	}
	var buf bytes.Buffer
	formatter.NewFormatter(&buf, formatter.WithIndent("  ")).FormatQueryDocument(parsed)
	return buf.String(), nil
}
