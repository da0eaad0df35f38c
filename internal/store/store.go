package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAbort is returned from a TxFunc to leave the value untouched.
	ErrAbort = errors.New("store: transaction aborted")
	// ErrInvalidPath is returned for paths without a collection and document id.
	ErrInvalidPath = errors.New("store: invalid path")
	// ErrConflict is returned when a transaction keeps losing to concurrent writers.
	ErrConflict = errors.New("store: transaction conflict")
)

// Snapshot is the value found at a path together with the revision of its document.
type Snapshot struct {
	Path     string
	Revision int64
	Value    json.RawMessage
}

// Exists reports whether the path held a value.
func (s Snapshot) Exists() bool {
	return len(s.Value) > 0 && !bytes.Equal(s.Value, []byte("null"))
}

// Decode unmarshals the value into v. Absent values leave v untouched.
func (s Snapshot) Decode(v any) error {
	if !s.Exists() {
		return nil
	}
	if err := json.Unmarshal(s.Value, v); err != nil {
		return fmt.Errorf("decode %s: %w", s.Path, err)
	}
	return nil
}

// TxFunc receives the current value at a path (nil when absent) and returns the value to store.
// It may be invoked more than once when the transaction retries.
type TxFunc func(current json.RawMessage) (any, error)

// Store is a path-addressed JSON document store with change notification.
type Store interface {
	Get(ctx context.Context, path string) (Snapshot, error)
	Subscribe(ctx context.Context, path string, fn func(Snapshot)) (func(), error)
	Set(ctx context.Context, path string, value any) error
	Update(ctx context.Context, path string, fields map[string]any) error
	Transact(ctx context.Context, path string, fn TxFunc) (Snapshot, bool, error)
	List(ctx context.Context, collection string) ([]Snapshot, error)
}

// Join builds a path from segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// backend is the per-document primitive both implementations provide.
type backend interface {
	read(ctx context.Context, p docPath) ([]byte, int64, error)
	// commit applies fn to the current document atomically. On error the current document is returned.
	commit(ctx context.Context, p docPath, fn func(cur []byte) ([]byte, error)) ([]byte, int64, error)
	watch(ctx context.Context, p docPath, fn func(doc []byte, rev int64)) (func(), error)
	list(ctx context.Context, collection string) ([]docRecord, error)
}

type docRecord struct {
	id  string
	doc []byte
	rev int64
}

// engine implements Store on top of a backend.
type engine struct {
	b backend
}

func (e engine) Get(ctx context.Context, path string) (Snapshot, error) {
	p, err := parsePath(path)
	if err != nil {
		return Snapshot{}, err
	}
	doc, rev, err := e.b.read(ctx, p)
	if err != nil {
		return Snapshot{}, fmt.Errorf("get %s: %w", path, err)
	}
	val, err := extract(doc, p.field)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Path: p.String(), Revision: rev, Value: val}, nil
}

func (e engine) Subscribe(ctx context.Context, path string, fn func(Snapshot)) (func(), error) {
	p, err := parsePath(path)
	if err != nil {
		return nil, err
	}
	var (
		last      json.RawMessage
		delivered bool
	)
	return e.b.watch(ctx, p, func(doc []byte, rev int64) {
		val, err := extract(doc, p.field)
		if err != nil {
			return
		}
		// Field subscriptions only fire when the field itself changed.
		if len(p.field) > 0 && delivered && bytes.Equal(val, last) {
			return
		}
		last, delivered = val, true
		fn(Snapshot{Path: p.String(), Revision: rev, Value: val})
	})
}

func (e engine) Set(ctx context.Context, path string, value any) error {
	p, err := parsePath(path)
	if err != nil {
		return err
	}
	norm, err := normalize(value)
	if err != nil {
		return err
	}
	_, _, err = e.b.commit(ctx, p, func(cur []byte) ([]byte, error) {
		tree, err := decodeTree(cur)
		if err != nil {
			return nil, err
		}
		return encodeTree(setIn(tree, p.field, norm))
	})
	if err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	return nil
}

func (e engine) Update(ctx context.Context, path string, fields map[string]any) error {
	p, err := parsePath(path)
	if err != nil {
		return err
	}
	type change struct {
		field []string
		value any
	}
	changes := make([]change, 0, len(fields))
	for k, v := range fields {
		norm, err := normalize(v)
		if err != nil {
			return err
		}
		rel := splitSegments(k)
		if len(rel) == 0 {
			return fmt.Errorf("%w: empty field in update of %s", ErrInvalidPath, path)
		}
		field := append(append([]string{}, p.field...), rel...)
		changes = append(changes, change{field: field, value: norm})
	}
	_, _, err = e.b.commit(ctx, p, func(cur []byte) ([]byte, error) {
		tree, err := decodeTree(cur)
		if err != nil {
			return nil, err
		}
		for _, c := range changes {
			tree = setIn(tree, c.field, c.value)
		}
		return encodeTree(tree)
	})
	if err != nil {
		return fmt.Errorf("update %s: %w", path, err)
	}
	return nil
}

func (e engine) Transact(ctx context.Context, path string, fn TxFunc) (Snapshot, bool, error) {
	p, err := parsePath(path)
	if err != nil {
		return Snapshot{}, false, err
	}
	doc, rev, err := e.b.commit(ctx, p, func(cur []byte) ([]byte, error) {
		tree, err := decodeTree(cur)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(getIn(tree, p.field))
		if err != nil {
			return nil, err
		}
		if bytes.Equal(val, []byte("null")) {
			val = nil
		}
		next, err := fn(val)
		if err != nil {
			return nil, err
		}
		norm, err := normalize(next)
		if err != nil {
			return nil, err
		}
		return encodeTree(setIn(tree, p.field, norm))
	})
	committed := err == nil
	if errors.Is(err, ErrAbort) {
		err = nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}
	val, xerr := extract(doc, p.field)
	if xerr != nil {
		return Snapshot{}, committed, xerr
	}
	return Snapshot{Path: p.String(), Revision: rev, Value: val}, committed, nil
}

func (e engine) List(ctx context.Context, collection string) ([]Snapshot, error) {
	collection = strings.Trim(collection, "/")
	if collection == "" || strings.Contains(collection, "/") {
		return nil, fmt.Errorf("%w: %q is not a collection", ErrInvalidPath, collection)
	}
	records, err := e.b.list(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	out := make([]Snapshot, 0, len(records))
	for _, r := range records {
		if len(r.doc) == 0 {
			continue
		}
		out = append(out, Snapshot{Path: Join(collection, r.id), Revision: r.rev, Value: r.doc})
	}
	return out, nil
}
