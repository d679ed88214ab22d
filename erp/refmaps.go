package erp

import (
	"context"
	"fmt"
)

// RefMaps carries the persisted-id lookups a phase needs: status names
// and transaction-type names. Loaded once at phase start and passed
// explicitly; nothing here survives beyond one phase invocation.
type RefMaps struct {
	statusIDByName map[string]string
	statusNameByID map[string]string
	typeIDByName   map[string]string
	typeNameByID   map[string]string
}

// LoadRefMaps reads the status and transaction-type list records.
func LoadRefMaps(ctx context.Context, store Store, limit int) (*RefMaps, error) {
	maps := &RefMaps{
		statusIDByName: map[string]string{},
		statusNameByID: map[string]string{},
		typeIDByName:   map[string]string{},
		typeNameByID:   map[string]string{},
	}

	statuses, err := store.Search(ctx, "transactionstatus", nil, []string{"internalid", "name"}, limit)
	if err != nil {
		return nil, fmt.Errorf("load transaction statuses: %w", err)
	}
	for _, row := range statuses {
		id := row.Get("internalid")
		name := row.Get("name")
		if id == "" || name == "" {
			continue
		}
		maps.statusIDByName[name] = id
		maps.statusNameByID[id] = name
	}

	types, err := store.Search(ctx, "transactiontype", nil, []string{"internalid", "name"}, limit)
	if err != nil {
		return nil, fmt.Errorf("load transaction types: %w", err)
	}
	for _, row := range types {
		id := row.Get("internalid")
		name := row.Get("name")
		if id == "" || name == "" {
			continue
		}
		maps.typeIDByName[name] = id
		maps.typeNameByID[id] = name
	}

	return maps, nil
}

// StatusName resolves a persisted status id to its canonical name.
// Values that already look like names pass through unchanged.
func (m *RefMaps) StatusName(value string) string {
	if m == nil {
		return value
	}
	if name, ok := m.statusNameByID[value]; ok {
		return name
	}
	return value
}

func (m *RefMaps) StatusID(name string) (string, bool) {
	if m == nil {
		return "", false
	}
	id, ok := m.statusIDByName[name]
	return id, ok
}

func (m *RefMaps) TypeName(value string) string {
	if m == nil {
		return value
	}
	if name, ok := m.typeNameByID[value]; ok {
		return name
	}
	return value
}

func (m *RefMaps) TypeID(name string) (string, bool) {
	if m == nil {
		return "", false
	}
	id, ok := m.typeIDByName[name]
	return id, ok
}
