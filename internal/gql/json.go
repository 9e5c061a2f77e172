package gql

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// ParseFieldSetJSON decodes a field-set written as JSON. Arrays list
// selections (strings are leaves, objects contribute nested selections);
// object members map a field name to its non-empty child selection.
// Member order is preserved. Numeric-looking member names are rejected
// because they cannot be told apart from list positions.
func ParseFieldSetJSON(data []byte) (FieldSet, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decode field set: %w", err)
	}
	fs, err := decodeSelection(dec, tok, "")
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &MalformedFieldSetError{Reason: "trailing data after field set"}
	}
	return fs, nil
}

func decodeSelection(dec *json.Decoder, tok json.Token, path string) (FieldSet, error) {
	delim, ok := tok.(json.Delim)
	if !ok {
		return nil, &MalformedFieldSetError{Path: path, Reason: fmt.Sprintf("scalar %v where a selection is required", tok)}
	}
	switch delim {
	case '[':
		return decodeList(dec, path)
	case '{':
		return decodeObject(dec, path)
	default:
		return nil, &MalformedFieldSetError{Path: path, Reason: fmt.Sprintf("unexpected %v", delim)}
	}
}

func decodeList(dec *json.Decoder, path string) (FieldSet, error) {
	var out FieldSet
	for i := 0; dec.More(); i++ {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode field set: %w", err)
		}
		at := fmt.Sprintf("%s[%d]", path, i)
		switch v := tok.(type) {
		case string:
			out = append(out, Field{Name: v})
		case json.Delim:
			if v != '{' {
				return nil, &MalformedFieldSetError{Path: at, Reason: "list entries must be field names or objects"}
			}
			obj, err := decodeObject(dec, path)
			if err != nil {
				return nil, err
			}
			out = append(out, obj...)
		default:
			return nil, &MalformedFieldSetError{Path: at, Reason: fmt.Sprintf("list entry %v is not a field name", v)}
		}
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("decode field set: %w", err)
	}
	return out, nil
}

func decodeObject(dec *json.Decoder, path string) (FieldSet, error) {
	var out FieldSet
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode field set: %w", err)
		}
		name, _ := tok.(string)
		at := joinPath(path, name)
		if _, err := strconv.Atoi(name); err == nil {
			return nil, &MalformedFieldSetError{Path: at, Reason: "numeric member name is ambiguous with a list index"}
		}
		next, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode field set: %w", err)
		}
		children, err := decodeSelection(dec, next, at)
		if err != nil {
			return nil, err
		}
		if len(children) == 0 {
			return nil, &MalformedFieldSetError{Path: at, Reason: "nested selection is empty"}
		}
		out = append(out, Field{Name: name, Children: children, object: true})
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("decode field set: %w", err)
	}
	return out, nil
}
