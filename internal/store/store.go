// Package store is the document-store port the matcher persists through,
// with in-memory, Redis, PostgreSQL and DynamoDB implementations.
//
// Documents are JSON objects addressed by (collection, id). Every document
// carries a version assigned on insert; a Delete mutation may name the version
// it expects, which turns it into a compare-and-delete inside AtomicBatch.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("store: document not found")

	// ErrConflict is returned when an AtomicBatch precondition fails. No
	// mutation of the batch has been applied.
	ErrConflict = errors.New("store: precondition failed")

	// ErrUnavailable wraps backend failures (network, driver, timeouts).
	ErrUnavailable = errors.New("store: unavailable")
)

// Operator is a field comparison understood by QueryByField.
type Operator string

const (
	OpEqual         Operator = "=="
	OpNotEqual      Operator = "!="
	OpArrayContains Operator = "array-contains"
)

// Document is a stored JSON object.
type Document struct {
	ID      string
	Version int64
	Data    json.RawMessage
}

// Decode unmarshals the document body into v.
func (d Document) Decode(v any) error {
	if err := json.Unmarshal(d.Data, v); err != nil {
		return fmt.Errorf("store: decode %s: %w", d.ID, err)
	}
	return nil
}

// MutationKind selects what a Mutation does.
type MutationKind int

const (
	MutationInsert MutationKind = iota + 1
	MutationDelete
)

// Mutation is one write inside an AtomicBatch.
type Mutation struct {
	Kind       MutationKind
	Collection string
	ID         string // optional for inserts; a new id is generated when empty
	Data       any    // inserts only; marshalled to JSON

	// ExpectVersion guards a delete: the batch fails with ErrConflict unless
	// the document exists at exactly this version. Zero deletes
	// unconditionally and tolerates a missing document.
	ExpectVersion int64
}

// Insert builds an insert mutation.
func Insert(collection, id string, data any) Mutation {
	return Mutation{Kind: MutationInsert, Collection: collection, ID: id, Data: data}
}

// Delete builds an unconditional delete mutation.
func Delete(collection, id string) Mutation {
	return Mutation{Kind: MutationDelete, Collection: collection, ID: id}
}

// Consume builds a delete that only succeeds if the document is still at
// version.
func Consume(collection, id string, version int64) Mutation {
	return Mutation{Kind: MutationDelete, Collection: collection, ID: id, ExpectVersion: version}
}

// Store is the set of primitives the matcher needs from a document database.
type Store interface {
	// QueryByField returns all documents of collection whose field satisfies
	// op against value.
	QueryByField(ctx context.Context, collection, field string, op Operator, value any) ([]Document, error)

	// Insert stores data under a new id and returns it.
	Insert(ctx context.Context, collection string, data any) (string, error)

	// DeleteByID removes a document. Deleting a missing document returns
	// ErrNotFound.
	DeleteByID(ctx context.Context, collection, id string) error

	// AtomicBatch applies all mutations or none of them.
	AtomicBatch(ctx context.Context, mutations []Mutation) error
}

// NewID returns a fresh document id.
func NewID() string {
	return uuid.NewString()
}

// encode marshals a document body, rejecting anything that is not a JSON
// object.
func encode(data any) (json.RawMessage, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("store: encode: %w", err)
	}
	if len(raw) == 0 || raw[0] != '{' {
		return nil, fmt.Errorf("store: encode: document must be a JSON object")
	}
	return raw, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}
