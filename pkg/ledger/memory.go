package ledger

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process Ledger. It backs the tests of every package that
// consumes a Ledger; runs always use the Postgres one.
type Memory struct {
	mu      sync.RWMutex
	entries map[entryKey]Entry
	order   []entryKey
}

// NewMemory returns an empty ledger, optionally seeded with entries.
func NewMemory(seed ...Entry) *Memory {
	m := &Memory{entries: make(map[entryKey]Entry)}
	for _, e := range seed {
		m.put(e)
	}
	return m
}

func (m *Memory) put(e Entry) {
	k := e.key()
	if _, ok := m.entries[k]; !ok {
		m.order = append(m.order, k)
	}
	m.entries[k] = e
}

// Destinations implements Reader.
func (m *Memory) Destinations(_ context.Context, tenantID string, mapping Mapping) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]string)
	for k, e := range m.entries {
		if k.tenant == tenantID && k.sourceTable == mapping.SourceTable && k.destTable == mapping.DestTable {
			out[k.sourceKey] = e.DestKeyValue
		}
	}
	return out, nil
}

// Replace implements Ledger.
func (m *Memory) Replace(_ context.Context, entries []Entry) error {
	if err := ValidateAll(entries); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		m.put(e)
	}
	return nil
}

// Lookup implements Ledger.
func (m *Memory) Lookup(_ context.Context, tenantID, sourceTable, sourceKey string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Entry
	for _, k := range m.order {
		if k.tenant == tenantID && k.sourceTable == sourceTable && k.sourceKey == sourceKey {
			out = append(out, m.entries[k])
		}
	}
	return out, nil
}

// Counts implements Ledger.
func (m *Memory) Counts(_ context.Context, tenantID string) ([]Count, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type pair struct{ src, dst string }
	agg := make(map[pair]*Count)
	for k, e := range m.entries {
		if k.tenant != tenantID {
			continue
		}
		p := pair{k.sourceTable, k.destTable}
		c, ok := agg[p]
		if !ok {
			c = &Count{SourceTable: p.src, DestTable: p.dst}
			agg[p] = c
		}
		c.Entries++
		if e.MigratedAt.After(c.LastMigrated) {
			c.LastMigrated = e.MigratedAt
		}
	}

	out := make([]Count, 0, len(agg))
	for _, c := range agg {
		out = append(out, *c)
	}
	sortCounts(out)
	return out, nil
}

// Len returns the number of active mappings across all tenants.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func sortCounts(counts []Count) {
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].SourceTable != counts[j].SourceTable {
			return counts[i].SourceTable < counts[j].SourceTable
		}
		return counts[i].DestTable < counts[j].DestTable
	})
}
