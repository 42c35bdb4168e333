package migration

import (
	"github.com/vicentefritzen/petsys-migracao/pkg/report"
)

// Skip reasons recorded in run stats.
const (
	ReasonAlreadyMigrated = "already_migrated"
	ReasonMissingPet      = "missing_pet"
	ReasonMissingOwner    = "missing_owner"
	ReasonMissingVaccine  = "missing_vaccine"
	ReasonParseError      = "parse_error"
	ReasonEmpty           = "empty"
)

// NotesStats summarizes a notes run.
type NotesStats struct {
	DryRun bool

	Blobs               int
	Entries             int
	ClinicalNotes       int
	Prescriptions       int
	LabResults          int
	AlreadyMigrated     int
	MissingPet          int
	Empty               int
	ParseErrors         int
	MalformedHeaders    int
	ClinicianNotFound   int
	OrphanPrescriptions int
	FallbackUsed        int
	Migrated            int
	Persisted           int
	Chunks              int

	Skipped []report.SkippedItem
}

// Counters returns the stats in report order.
func (s *NotesStats) Counters() []report.Counter {
	return []report.Counter{
		{Name: "blobs", Value: s.Blobs},
		{Name: "entries", Value: s.Entries},
		{Name: "clinical_notes", Value: s.ClinicalNotes},
		{Name: "prescriptions", Value: s.Prescriptions},
		{Name: "lab_results", Value: s.LabResults},
		{Name: "already_migrated", Value: s.AlreadyMigrated},
		{Name: "missing_pet", Value: s.MissingPet},
		{Name: "empty", Value: s.Empty},
		{Name: "parse_errors", Value: s.ParseErrors},
		{Name: "malformed_headers", Value: s.MalformedHeaders},
		{Name: "clinician_not_found", Value: s.ClinicianNotFound},
		{Name: "orphan_prescriptions", Value: s.OrphanPrescriptions},
		{Name: "fallback_used", Value: s.FallbackUsed},
		{Name: "migrated", Value: s.Migrated},
		{Name: "persisted", Value: s.Persisted},
		{Name: "chunks", Value: s.Chunks},
	}
}

// CounterMap returns the counters keyed by name.
func (s *NotesStats) CounterMap() map[string]int {
	return counterMap(s.Counters())
}

func (s *NotesStats) skip(blobID, petID int64, reason, detail string) {
	s.Skipped = append(s.Skipped, reportSkip(blobID, petID, reason, detail))
}

// WeightsStats summarizes a weights run.
type WeightsStats struct {
	DryRun bool

	Rows       int
	Inserted   int
	Updated    int
	MissingPet int
	Converted  int
	Clamped    int
	Persisted  int
	Chunks     int

	Skipped []report.SkippedItem
}

// Counters returns the stats in report order.
func (s *WeightsStats) Counters() []report.Counter {
	return []report.Counter{
		{Name: "rows", Value: s.Rows},
		{Name: "inserted", Value: s.Inserted},
		{Name: "updated", Value: s.Updated},
		{Name: "missing_pet", Value: s.MissingPet},
		{Name: "converted_from_grams", Value: s.Converted},
		{Name: "clamped", Value: s.Clamped},
		{Name: "persisted", Value: s.Persisted},
		{Name: "chunks", Value: s.Chunks},
	}
}

// CounterMap returns the counters keyed by name.
func (s *WeightsStats) CounterMap() map[string]int {
	return counterMap(s.Counters())
}

// ClientsStats summarizes a clients run.
type ClientsStats struct {
	DryRun bool

	Rows             int
	Inserted         int
	Updated          int
	MergedByDocument int
	Persisted        int
	Chunks           int

	Skipped []report.SkippedItem
}

// Counters returns the stats in report order.
func (s *ClientsStats) Counters() []report.Counter {
	return []report.Counter{
		{Name: "rows", Value: s.Rows},
		{Name: "inserted", Value: s.Inserted},
		{Name: "updated", Value: s.Updated},
		{Name: "merged_by_document", Value: s.MergedByDocument},
		{Name: "persisted", Value: s.Persisted},
		{Name: "chunks", Value: s.Chunks},
	}
}

// CounterMap returns the counters keyed by name.
func (s *ClientsStats) CounterMap() map[string]int {
	return counterMap(s.Counters())
}

// PetsStats summarizes a pets run.
type PetsStats struct {
	DryRun bool

	Rows           int
	Inserted       int
	Updated        int
	MissingOwner   int
	BreedUnmatched int
	ColorUnmatched int
	NotesTruncated int
	Persisted      int
	Chunks         int

	Skipped []report.SkippedItem
}

// Counters returns the stats in report order.
func (s *PetsStats) Counters() []report.Counter {
	return []report.Counter{
		{Name: "rows", Value: s.Rows},
		{Name: "inserted", Value: s.Inserted},
		{Name: "updated", Value: s.Updated},
		{Name: "missing_owner", Value: s.MissingOwner},
		{Name: "breed_unmatched", Value: s.BreedUnmatched},
		{Name: "color_unmatched", Value: s.ColorUnmatched},
		{Name: "notes_truncated", Value: s.NotesTruncated},
		{Name: "persisted", Value: s.Persisted},
		{Name: "chunks", Value: s.Chunks},
	}
}

// CounterMap returns the counters keyed by name.
func (s *PetsStats) CounterMap() map[string]int {
	return counterMap(s.Counters())
}

// VaccinesStats summarizes a vaccines run.
type VaccinesStats struct {
	DryRun bool

	Rows         int
	Inserted     int
	Updated      int
	MergedByName int
	Empty        int
	Persisted    int
	Chunks       int

	Skipped []report.SkippedItem
}

// Counters returns the stats in report order.
func (s *VaccinesStats) Counters() []report.Counter {
	return []report.Counter{
		{Name: "rows", Value: s.Rows},
		{Name: "inserted", Value: s.Inserted},
		{Name: "updated", Value: s.Updated},
		{Name: "merged_by_name", Value: s.MergedByName},
		{Name: "empty", Value: s.Empty},
		{Name: "persisted", Value: s.Persisted},
		{Name: "chunks", Value: s.Chunks},
	}
}

// CounterMap returns the counters keyed by name.
func (s *VaccinesStats) CounterMap() map[string]int {
	return counterMap(s.Counters())
}

// VaccinationsStats summarizes a vaccinations run.
type VaccinationsStats struct {
	DryRun bool

	Rows           int
	Inserted       int
	Updated        int
	Applied        int
	MissingPet     int
	MissingVaccine int
	Persisted      int
	Chunks         int

	Skipped []report.SkippedItem
}

// Counters returns the stats in report order.
func (s *VaccinationsStats) Counters() []report.Counter {
	return []report.Counter{
		{Name: "rows", Value: s.Rows},
		{Name: "inserted", Value: s.Inserted},
		{Name: "updated", Value: s.Updated},
		{Name: "applied", Value: s.Applied},
		{Name: "missing_pet", Value: s.MissingPet},
		{Name: "missing_vaccine", Value: s.MissingVaccine},
		{Name: "persisted", Value: s.Persisted},
		{Name: "chunks", Value: s.Chunks},
	}
}

// CounterMap returns the counters keyed by name.
func (s *VaccinationsStats) CounterMap() map[string]int {
	return counterMap(s.Counters())
}

func counterMap(cs []report.Counter) map[string]int {
	out := make(map[string]int, len(cs))
	for _, c := range cs {
		out[c.Name] = c.Value
	}
	return out
}

func reportSkip(sourceID, petID int64, reason, detail string) report.SkippedItem {
	return report.SkippedItem{SourceID: sourceID, PetID: petID, Reason: reason, Detail: detail}
}
