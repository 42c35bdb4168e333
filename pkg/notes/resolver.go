package notes

import (
	"fmt"

	"github.com/vicentefritzen/petsys-migracao/pkg/clinicians"
	migerrors "github.com/vicentefritzen/petsys-migracao/pkg/errors"
	"github.com/vicentefritzen/petsys-migracao/pkg/logging"
)

// LabAttribution selects who owns LAB_RESULT entries.
type LabAttribution string

const (
	// LabAttributionFallback assigns every lab result to the fallback clinician.
	LabAttributionFallback LabAttribution = "fallback"
	// LabAttributionName resolves the lab author like a clinical note.
	LabAttributionName LabAttribution = "name"
)

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	// FallbackClinicianID is assigned whenever nothing better is found. Required.
	FallbackClinicianID string
	// Attributor handles prescriptions. Defaults to LookbackAttributor.
	Attributor Attributor
	// LabAttribution defaults to LabAttributionFallback.
	LabAttribution LabAttribution
}

// Resolver assigns a clinician to every entry of a blob.
type Resolver struct {
	matcher    clinicians.Matcher
	fallbackID string
	attributor Attributor
	lab        LabAttribution
	logger     logging.Logger
}

// NewResolver creates a Resolver.
func NewResolver(matcher clinicians.Matcher, cfg ResolverConfig, logger logging.Logger) (*Resolver, error) {
	if matcher == nil {
		return nil, fmt.Errorf("resolver requires a clinician matcher: %w", migerrors.ErrConfiguration)
	}
	if cfg.FallbackClinicianID == "" {
		return nil, fmt.Errorf("resolver requires a fallback clinician: %w", migerrors.ErrConfiguration)
	}
	if cfg.Attributor == nil {
		cfg.Attributor = LookbackAttributor{}
	}
	switch cfg.LabAttribution {
	case "":
		cfg.LabAttribution = LabAttributionFallback
	case LabAttributionFallback, LabAttributionName:
	default:
		return nil, fmt.Errorf("unknown lab attribution %q: %w", cfg.LabAttribution, migerrors.ErrValidation)
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Resolver{
		matcher:    matcher,
		fallbackID: cfg.FallbackClinicianID,
		attributor: cfg.Attributor,
		lab:        cfg.LabAttribution,
		logger:     logger,
	}, nil
}

// FallbackClinicianID returns the configured fallback.
func (r *Resolver) FallbackClinicianID() string {
	return r.fallbackID
}

// Resolve assigns clinicians to classified entries. entries must be in
// ascending timestamp order, as returned by Tokenize; otherwise ErrOutOfOrder
// is returned and nothing is resolved.
func (r *Resolver) Resolve(entries []Entry) ([]ResolvedEntry, error) {
	for i := 1; i < len(entries); i++ {
		if entries[i].Timestamp.Before(entries[i-1].Timestamp) {
			return nil, fmt.Errorf("entry %d at %s precedes entry %d at %s: %w",
				i, entries[i].Timestamp.Format(TimestampLayout),
				i-1, entries[i-1].Timestamp.Format(TimestampLayout),
				migerrors.ErrOutOfOrder)
		}
	}

	resolved := make([]ResolvedEntry, 0, len(entries))
	for _, e := range entries {
		resolved = append(resolved, r.resolveOne(resolved, e))
	}
	return resolved, nil
}

func (r *Resolver) resolveOne(history []ResolvedEntry, e Entry) ResolvedEntry {
	out := ResolvedEntry{Entry: e}

	switch {
	case e.Category == CategoryPrescription:
		if id, ok := r.attributor.Attribute(history, e); ok {
			out.ClinicianID, out.Resolution = id, ResolutionInherited
			return out
		}
		r.logger.Debug("Prescription without earlier clinician, using fallback",
			logging.F("timestamp", e.Timestamp))
		out.ClinicianID, out.Resolution = r.fallbackID, ResolutionOrphan

	case e.Category == CategoryLabResult && r.lab == LabAttributionFallback:
		out.ClinicianID, out.Resolution = r.fallbackID, ResolutionLabDefault

	default:
		if m, ok := r.matcher.Match(e.Author); ok {
			if m.Kind == clinicians.MatchKindApproximate {
				r.logger.Debug("Approximate clinician match",
					logging.F("author", e.Author),
					logging.F("clinician", m.Name),
					logging.F("score", m.Score))
			}
			out.ClinicianID, out.Resolution = m.ID, ResolutionMatched
			return out
		}
		r.logger.Warn("Clinician not found, using fallback",
			logging.F("author", e.Author))
		out.ClinicianID, out.Resolution = r.fallbackID, ResolutionUnmatched
	}
	return out
}
