// Package store is the document store contract used by the protocol core:
// per-table create/update/delete/select_one/select_all/select_where over
// CBOR documents, with ids allocated by the store when left empty.
package store

import (
	"bytes"
	"context"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	ErrNotFound      = errors.New("document not found")
	ErrAlreadyExists = errors.New("document already exists")
)

// Backend persists raw documents per table. Implementations must be safe
// for concurrent use.
type Backend interface {
	Create(ctx context.Context, table, id string, doc []byte) error
	Update(ctx context.Context, table, id string, doc []byte) error
	Delete(ctx context.Context, table, id string) error
	Get(ctx context.Context, table, id string) ([]byte, error)
	All(ctx context.Context, table string) ([][]byte, error)
}

// Entity is implemented by every stored model.
type Entity interface {
	EntityID() string
	SetEntityID(id string)
}

// Document constrains E so that *E is an Entity.
type Document[E any] interface {
	*E
	Entity
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	// deterministic encoding keeps field comparison in SelectWhere byte-exact
	if encMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(err)
	}
	if decMode, err = (cbor.DecOptions{}).DecMode(); err != nil {
		panic(err)
	}
}

// Table is a typed view over one backend table.
type Table[E any, P Document[E]] struct {
	name    string
	backend Backend
}

// NewTable binds a table name to a backend.
func NewTable[E any, P Document[E]](backend Backend, name string) *Table[E, P] {
	return &Table[E, P]{name: name, backend: backend}
}

// Name returns the table name.
func (t *Table[E, P]) Name() string { return t.name }

// Create stores e, allocating an id when e has none. The stored copy is returned.
func (t *Table[E, P]) Create(ctx context.Context, e *E) (*E, error) {
	p := P(e)
	if p.EntityID() == "" {
		p.SetEntityID(uuid.NewString())
	}
	doc, err := encMode.Marshal(e)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s/%s", t.name, p.EntityID())
	}
	if err := t.backend.Create(ctx, t.name, p.EntityID(), doc); err != nil {
		return nil, errors.Wrapf(err, "create %s/%s", t.name, p.EntityID())
	}
	return e, nil
}

// Update replaces an existing document.
func (t *Table[E, P]) Update(ctx context.Context, e *E) error {
	p := P(e)
	doc, err := encMode.Marshal(e)
	if err != nil {
		return errors.Wrapf(err, "encode %s/%s", t.name, p.EntityID())
	}
	if err := t.backend.Update(ctx, t.name, p.EntityID(), doc); err != nil {
		return errors.Wrapf(err, "update %s/%s", t.name, p.EntityID())
	}
	return nil
}

// Upsert updates e, creating it when it does not exist yet.
func (t *Table[E, P]) Upsert(ctx context.Context, e *E) error {
	err := t.Update(ctx, e)
	if errors.Is(err, ErrNotFound) {
		_, err = t.Create(ctx, e)
	}
	return err
}

// Delete removes the document with the given id.
func (t *Table[E, P]) Delete(ctx context.Context, id string) error {
	if err := t.backend.Delete(ctx, t.name, id); err != nil {
		return errors.Wrapf(err, "delete %s/%s", t.name, id)
	}
	return nil
}

// SelectOne loads one document; ErrNotFound when missing.
func (t *Table[E, P]) SelectOne(ctx context.Context, id string) (*E, error) {
	doc, err := t.backend.Get(ctx, t.name, id)
	if err != nil {
		return nil, errors.Wrapf(err, "select %s/%s", t.name, id)
	}
	e := new(E)
	if err := decMode.Unmarshal(doc, e); err != nil {
		return nil, errors.Wrapf(err, "decode %s/%s", t.name, id)
	}
	return e, nil
}

// SelectAll loads every document of the table.
func (t *Table[E, P]) SelectAll(ctx context.Context) ([]*E, error) {
	docs, err := t.backend.All(ctx, t.name)
	if err != nil {
		return nil, errors.Wrapf(err, "select all %s", t.name)
	}
	out := make([]*E, 0, len(docs))
	for _, doc := range docs {
		e := new(E)
		if err := decMode.Unmarshal(doc, e); err != nil {
			return nil, errors.Wrapf(err, "decode %s", t.name)
		}
		out = append(out, e)
	}
	return out, nil
}

// SelectWhere returns the documents whose top-level field equals value.
// Field names are the JSON tags of the model; value may be any encodable
// value, structs included.
func (t *Table[E, P]) SelectWhere(ctx context.Context, field string, value interface{}) ([]*E, error) {
	want, err := encMode.Marshal(value)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s filter %s", t.name, field)
	}
	docs, err := t.backend.All(ctx, t.name)
	if err != nil {
		return nil, errors.Wrapf(err, "select %s where %s", t.name, field)
	}
	var out []*E
	for _, doc := range docs {
		var fields map[string]cbor.RawMessage
		if err := decMode.Unmarshal(doc, &fields); err != nil {
			return nil, errors.Wrapf(err, "decode %s", t.name)
		}
		raw, ok := fields[field]
		if !ok || !bytes.Equal(raw, want) {
			continue
		}
		e := new(E)
		if err := decMode.Unmarshal(doc, e); err != nil {
			return nil, errors.Wrapf(err, "decode %s", t.name)
		}
		out = append(out, e)
	}
	return out, nil
}
