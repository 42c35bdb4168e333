// Package notes reconstructs individual clinical entries from the single
// free-text field the legacy system used for a pet's whole history.
//
// A blob looks like:
//
//	[10/03/2025 10:47:25 - RECEITA]: Amoxicilina 250mg ...
//	[10/03/2025 10:54:05 - DRA. JULIANA]: Paciente apresentou ...
//
// Tokenize splits it into entries, a Classifier tags each entry by its
// author, and a Resolver assigns every entry a destination clinician.
package notes

import "time"

// Category is the kind of record an entry becomes in the destination.
type Category string

const (
	CategoryClinicalNote Category = "CLINICAL_NOTE"
	CategoryPrescription Category = "PRESCRIPTION"
	CategoryLabResult    Category = "LAB_RESULT"
)

// Entry is one timestamped, author-attributed fragment of a blob.
type Entry struct {
	Timestamp time.Time
	Author    string
	Body      string
	// Category is empty until the entry is classified.
	Category Category
}

// Resolution records how an entry got its clinician.
type Resolution string

const (
	// ResolutionMatched: the author name matched a clinician.
	ResolutionMatched Resolution = "matched"
	// ResolutionUnmatched: the author name matched nobody; fallback used.
	ResolutionUnmatched Resolution = "unmatched"
	// ResolutionInherited: a prescription took the clinician of an earlier entry.
	ResolutionInherited Resolution = "inherited"
	// ResolutionOrphan: a prescription with no qualifying earlier entry; fallback used.
	ResolutionOrphan Resolution = "orphan"
	// ResolutionLabDefault: a lab result assigned to the fallback clinician.
	ResolutionLabDefault Resolution = "lab_default"
)

// UsedFallback reports whether the fallback clinician was assigned.
func (r Resolution) UsedFallback() bool {
	switch r {
	case ResolutionUnmatched, ResolutionOrphan, ResolutionLabDefault:
		return true
	default:
		return false
	}
}

// ResolvedEntry is an Entry with its clinician attached.
type ResolvedEntry struct {
	Entry
	ClinicianID string
	Resolution  Resolution
}
