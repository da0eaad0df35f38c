package store

import (
	"encoding/json"
	"fmt"
	"strings"
)

// docPath splits a path into the document it lives in and the field inside that document.
type docPath struct {
	collection string
	id         string
	field      []string
}

func (p docPath) key() string {
	return p.collection + "/" + p.id
}

func (p docPath) String() string {
	if len(p.field) == 0 {
		return p.key()
	}
	return p.key() + "/" + strings.Join(p.field, "/")
}

func parsePath(path string) (docPath, error) {
	segs := splitSegments(path)
	if len(segs) < 2 {
		return docPath{}, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return docPath{collection: segs[0], id: segs[1], field: segs[2:]}, nil
}

func splitSegments(path string) []string {
	raw := strings.Split(strings.Trim(path, "/"), "/")
	segs := raw[:0]
	for _, s := range raw {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// normalize turns any Go value into the generic JSON tree form (maps, slices, float64, ...).
func normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("normalize value: %w", err)
	}
	return out, nil
}

func decodeTree(doc []byte) (any, error) {
	if len(doc) == 0 {
		return nil, nil
	}
	var tree any
	if err := json.Unmarshal(doc, &tree); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return tree, nil
}

// encodeTree returns nil for an empty tree so the document is deleted.
func encodeTree(tree any) ([]byte, error) {
	if tree == nil {
		return nil, nil
	}
	if m, ok := tree.(map[string]any); ok && len(m) == 0 {
		return nil, nil
	}
	return json.Marshal(tree)
}

func getIn(tree any, field []string) any {
	cur := tree
	for _, seg := range field {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[seg]
	}
	return cur
}

// setIn writes v at field, creating intermediate objects. A nil v removes the field.
func setIn(tree any, field []string, v any) any {
	if len(field) == 0 {
		return v
	}
	m, ok := tree.(map[string]any)
	if !ok || m == nil {
		if v == nil {
			return tree
		}
		m = make(map[string]any)
	}
	if len(field) == 1 && v == nil {
		delete(m, field[0])
		return m
	}
	m[field[0]] = setIn(m[field[0]], field[1:], v)
	return m
}

func extract(doc []byte, field []string) (json.RawMessage, error) {
	if len(doc) == 0 {
		return nil, nil
	}
	if len(field) == 0 {
		return json.RawMessage(doc), nil
	}
	tree, err := decodeTree(doc)
	if err != nil {
		return nil, err
	}
	val := getIn(tree, field)
	if val == nil {
		return nil, nil
	}
	raw, err := json.Marshal(val)
	if err != nil {
		return nil, fmt.Errorf("encode field: %w", err)
	}
	return raw, nil
}
