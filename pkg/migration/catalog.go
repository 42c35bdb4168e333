package migration

import (
	"github.com/vicentefritzen/petsys-migracao/pkg/store"
	"github.com/vicentefritzen/petsys-migracao/pkg/textnorm"
)

// catalogMatcher maps legacy descriptions onto a destination reference table.
// An exact folded name wins; otherwise the best ratio at or above minScore,
// the lowest id winning ties.
type catalogMatcher struct {
	items    []store.CatalogItem
	folded   []string
	exact    map[string]int
	minScore float64
}

func newCatalogMatcher(items []store.CatalogItem, minScore float64) *catalogMatcher {
	m := &catalogMatcher{
		items:    items,
		folded:   make([]string, len(items)),
		exact:    make(map[string]int, len(items)),
		minScore: minScore,
	}
	for i, it := range items {
		key := textnorm.Fold(it.Name)
		m.folded[i] = key
		if _, taken := m.exact[key]; !taken {
			m.exact[key] = i
		}
	}
	return m
}

// match returns the catalogue entry for name.
func (m *catalogMatcher) match(name string) (store.CatalogItem, bool) {
	key := textnorm.Fold(name)
	if key == "" {
		return store.CatalogItem{}, false
	}
	if i, ok := m.exact[key]; ok {
		return m.items[i], true
	}

	best, bestScore := -1, 0.0
	for i, candidate := range m.folded {
		if score := textnorm.Ratio(key, candidate); score >= m.minScore && score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return store.CatalogItem{}, false
	}
	return m.items[best], true
}
