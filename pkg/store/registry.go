package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	migerrors "github.com/vicentefritzen/petsys-migracao/pkg/errors"
	"github.com/vicentefritzen/petsys-migracao/pkg/ledger"
)

// Person types of a client.
const (
	PersonNatural = "F"
	PersonLegal   = "J"
)

// Client is a pet owner.
type Client struct {
	RecordID     uuid.UUID
	TenantID     string
	Name         string
	Document     string // CPF or CNPJ, "" when unknown
	PersonType   string
	Email        string
	Phone1       string // "" stores NULL
	Phone2       string // "" stores NULL
	Street       string
	StreetNo     int
	Complement   string // "" stores NULL
	District     string
	PostalCode   string
	CityID       int // 0 stores NULL
	Notes        string // "" stores NULL
	Active       bool
	RegisteredAt time.Time
}

// Pet is an animal owned by a client.
type Pet struct {
	RecordID     uuid.UUID
	TenantID     string
	OwnerID      string
	Name         string
	SpeciesID    int
	BreedID      int // 0 stores NULL
	SexID        int
	SizeID       int
	ColorID      int       // 0 stores NULL
	BornOn       time.Time // zero stores NULL
	Notes        string    // "" stores NULL
	Active       bool
	RegisteredAt time.Time
}

// Vaccine is an entry of the tenant's vaccine catalogue.
type Vaccine struct {
	RecordID      uuid.UUID
	TenantID      string
	Name          string
	SpeciesID     int
	Frequency     int
	PeriodID      int
	PurchasePrice float64
	SalePrice     float64
	Active        bool
}

// Vaccination is one scheduled or applied dose.
type Vaccination struct {
	RecordID   uuid.UUID
	TenantID   string
	PetID      string
	VaccineID  string
	BatchCode  string    // "" stores NULL
	Laboratory string    // "" stores NULL
	DueAt      time.Time // zero stores NULL
	AppliedAt  time.Time // zero stores NULL; a dose is applied once it has a date
}

// Applied reports whether the dose was given.
func (v Vaccination) Applied() bool {
	return !v.AppliedAt.IsZero()
}

// Batch is one chunk of an upsert stage. Inserts carry new ids, Updates reuse
// an id already in the destination. It is written atomically with Ledger.
type Batch[T any] struct {
	Inserts []T
	Updates []T
	Ledger  []ledger.Entry
}

// Len is the number of destination rows in the batch, ledger excluded.
func (b Batch[T]) Len() int {
	return len(b.Inserts) + len(b.Updates)
}

func (b Batch[T]) validate(check func(T) error) error {
	for _, group := range [][]T{b.Inserts, b.Updates} {
		for _, r := range group {
			if err := check(r); err != nil {
				return err
			}
		}
	}
	return ledger.ValidateAll(b.Ledger)
}

// Batches of the registry stages.
type (
	ClientsBatch      = Batch[Client]
	PetsBatch         = Batch[Pet]
	VaccinesBatch     = Batch[Vaccine]
	VaccinationsBatch = Batch[Vaccination]
)

func (c Client) validate() error {
	if err := requireFields("client", c.RecordID, c.TenantID); err != nil {
		return err
	}
	if c.PersonType != PersonNatural && c.PersonType != PersonLegal {
		return fmt.Errorf("%w: client %s has person type %q", migerrors.ErrValidation, c.RecordID, c.PersonType)
	}
	return nil
}

func (p Pet) validate() error {
	if err := requireFields("pet", p.RecordID, p.TenantID, p.OwnerID, p.Name); err != nil {
		return err
	}
	if len([]rune(p.Notes)) > MaxPetNotes {
		return fmt.Errorf("%w: pet %s notes exceed %d characters", migerrors.ErrValidation, p.RecordID, MaxPetNotes)
	}
	return nil
}

func (v Vaccine) validate() error {
	return requireFields("vaccine", v.RecordID, v.TenantID, v.Name)
}

func (v Vaccination) validate() error {
	return requireFields("vaccination", v.RecordID, v.TenantID, v.PetID, v.VaccineID)
}

// MaxPetNotes is the length of pets.notes.
const MaxPetNotes = 500

func clientRow(c Client) []any {
	return []any{
		c.RecordID.String(), c.TenantID, c.Name, c.Document, c.PersonType, c.Email,
		nullString(c.Phone1), nullString(c.Phone2), c.Street, c.StreetNo, nullString(c.Complement),
		c.District, c.PostalCode, nullInt(c.CityID), nullString(c.Notes), c.Active, c.RegisteredAt,
	}
}

func petRow(p Pet) []any {
	return []any{
		p.RecordID.String(), p.TenantID, p.OwnerID, p.Name, p.SpeciesID, nullInt(p.BreedID),
		p.SexID, p.SizeID, nullInt(p.ColorID), nullTime(p.BornOn), nullString(p.Notes), p.Active, p.RegisteredAt,
	}
}

func vaccineRow(v Vaccine) []any {
	return []any{
		v.RecordID.String(), v.TenantID, v.Name, v.SpeciesID, v.Frequency, v.PeriodID,
		v.PurchasePrice, v.SalePrice, v.Active,
	}
}

func vaccinationRow(v Vaccination) []any {
	return []any{
		v.RecordID.String(), v.TenantID, v.PetID, v.VaccineID, nullString(v.BatchCode),
		nullString(v.Laboratory), nullTime(v.DueAt), nullTime(v.AppliedAt), v.Applied(),
	}
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullInt(n int) *int {
	if n == 0 {
		return nil
	}
	return &n
}
