package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

type memoryDoc struct {
	version int64
	seq     int64
	data    json.RawMessage
}

// Memory is an in-process Store. Query results come back in insertion order,
// which keeps matching outcomes deterministic in tests.
type Memory struct {
	mu          sync.Mutex
	collections map[string]map[string]*memoryDoc
	seq         int64
	nextVersion int64

	// FailNext, when set, is returned (and cleared) by the next call that
	// touches the store. Tests use it to simulate an outage.
	FailNext error
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{collections: make(map[string]map[string]*memoryDoc)}
}

func (m *Memory) takeFailure() error {
	err := m.FailNext
	m.FailNext = nil
	if err != nil {
		return unavailable("memory", err)
	}
	return nil
}

// QueryByField implements Store.
func (m *Memory) QueryByField(ctx context.Context, collection, field string, op Operator, value any) ([]Document, error) {
	filter, err := newFieldFilter(field, op, value)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}

	type hit struct {
		doc Document
		seq int64
	}
	var hits []hit
	for id, d := range m.collections[collection] {
		ok, err := filter.match(d.data)
		if err != nil {
			return nil, fmt.Errorf("store: memory query %s/%s: %w", collection, id, err)
		}
		if ok {
			hits = append(hits, hit{Document{ID: id, Version: d.version, Data: d.data}, d.seq})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].seq < hits[j].seq })

	docs := make([]Document, len(hits))
	for i, h := range hits {
		docs[i] = h.doc
	}
	return docs, nil
}

// Insert implements Store.
func (m *Memory) Insert(ctx context.Context, collection string, data any) (string, error) {
	raw, err := encode(data)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return "", err
	}

	id := NewID()
	m.put(collection, id, raw)
	return id, nil
}

// DeleteByID implements Store.
func (m *Memory) DeleteByID(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}

	if _, ok := m.collections[collection][id]; !ok {
		return ErrNotFound
	}
	delete(m.collections[collection], id)
	return nil
}

// AtomicBatch implements Store. All preconditions are checked before any
// mutation is applied.
func (m *Memory) AtomicBatch(ctx context.Context, mutations []Mutation) error {
	encoded := make([]json.RawMessage, len(mutations))
	for i, op := range mutations {
		if op.Kind == MutationInsert {
			raw, err := encode(op.Data)
			if err != nil {
				return err
			}
			encoded[i] = raw
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}

	for _, op := range mutations {
		switch op.Kind {
		case MutationInsert:
			if op.ID != "" {
				if _, exists := m.collections[op.Collection][op.ID]; exists {
					return fmt.Errorf("%w: %s/%s already exists", ErrConflict, op.Collection, op.ID)
				}
			}
		case MutationDelete:
			if op.ExpectVersion == 0 {
				continue
			}
			d, ok := m.collections[op.Collection][op.ID]
			if !ok || d.version != op.ExpectVersion {
				return fmt.Errorf("%w: %s/%s is not at version %d", ErrConflict, op.Collection, op.ID, op.ExpectVersion)
			}
		default:
			return fmt.Errorf("store: unknown mutation kind %d", op.Kind)
		}
	}

	for i, op := range mutations {
		switch op.Kind {
		case MutationInsert:
			id := op.ID
			if id == "" {
				id = NewID()
			}
			m.put(op.Collection, id, encoded[i])
		case MutationDelete:
			delete(m.collections[op.Collection], op.ID)
		}
	}
	return nil
}

// Len returns the number of documents in a collection.
func (m *Memory) Len(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.collections[collection])
}

// put must be called with m.mu held.
func (m *Memory) put(collection, id string, raw json.RawMessage) {
	if m.collections[collection] == nil {
		m.collections[collection] = make(map[string]*memoryDoc)
	}
	m.seq++
	m.nextVersion++
	m.collections[collection][id] = &memoryDoc{version: m.nextVersion, seq: m.seq, data: raw}
}
