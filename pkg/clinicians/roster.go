// Package clinicians resolves free-text author names from legacy clinical notes
// to clinicians registered in the destination system.
package clinicians

import (
	"sort"

	"github.com/vicentefritzen/petsys-migracao/pkg/textnorm"
)

// Clinician is a user of the destination system who can own records.
type Clinician struct {
	ID   string
	Name string
}

// Roster is an immutable, name-ordered list of clinicians.
//
// The order is part of the contract: when two clinicians score the same
// against a name, the one that comes first here wins.
type Roster struct {
	entries []Clinician
	// upper-cased name -> index of first entry with that name
	exact map[string]int
}

// NewRoster copies cs and sorts it by upper-cased name, then by ID.
func NewRoster(cs []Clinician) *Roster {
	entries := make([]Clinician, len(cs))
	copy(entries, cs)
	sort.SliceStable(entries, func(i, j int) bool {
		ni, nj := textnorm.Upper(entries[i].Name), textnorm.Upper(entries[j].Name)
		if ni != nj {
			return ni < nj
		}
		return entries[i].ID < entries[j].ID
	})

	r := &Roster{
		entries: entries,
		exact:   make(map[string]int, len(entries)),
	}
	for i, c := range entries {
		key := textnorm.Upper(c.Name)
		if key == "" {
			continue
		}
		if _, seen := r.exact[key]; !seen {
			r.exact[key] = i
		}
	}
	return r
}

// Len returns the number of clinicians.
func (r *Roster) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

// All returns a copy of the roster in match order.
func (r *Roster) All() []Clinician {
	if r == nil {
		return nil
	}
	out := make([]Clinician, len(r.entries))
	copy(out, r.entries)
	return out
}

// Lookup finds a clinician whose name equals name ignoring case and
// surrounding or repeated whitespace.
func (r *Roster) Lookup(name string) (Clinician, bool) {
	if r == nil {
		return Clinician{}, false
	}
	i, ok := r.exact[textnorm.Upper(name)]
	if !ok {
		return Clinician{}, false
	}
	return r.entries[i], true
}

// ByID finds a clinician by destination id.
func (r *Roster) ByID(id string) (Clinician, bool) {
	if r == nil {
		return Clinician{}, false
	}
	for _, c := range r.entries {
		if c.ID == id {
			return c, true
		}
	}
	return Clinician{}, false
}
