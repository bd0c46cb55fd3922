package sessions

import "fmt"

// IsOrphaned reports whether a non-terminal record has lost its control target.
// Orphaned records must be treated as expired, never resumed blindly.
func IsOrphaned(rec *Record, alive func(pid int) bool) bool {
	if rec.Status.Terminal() {
		return false
	}
	return !alive(rec.ControlTargetPID)
}

// PruneReport lists what Prune removed, by reason.
type PruneReport struct {
	Terminal []string `json:"terminal"`
	Orphaned []string `json:"orphaned"`

	// Profiles are the throwaway browser profiles of the removed records.
	Profiles []string `json:"-"`
}

// Total returns the number of removed records.
func (r PruneReport) Total() int {
	return len(r.Terminal) + len(r.Orphaned)
}

// Prune deletes terminal records and records whose control target is gone.
func (s *Store) Prune(alive func(pid int) bool) (PruneReport, error) {
	var report PruneReport
	recs, err := s.List()
	if err != nil {
		return report, err
	}

	for _, rec := range recs {
		var bucket *[]string
		switch {
		case rec.Status.Terminal():
			bucket = &report.Terminal
		case IsOrphaned(rec, alive):
			bucket = &report.Orphaned
		default:
			continue
		}
		if err := s.Delete(rec.SessionID); err != nil {
			return report, fmt.Errorf("prune: %w", err)
		}
		*bucket = append(*bucket, rec.SessionID)
		if rec.ProfileDir != "" {
			report.Profiles = append(report.Profiles, rec.ProfileDir)
		}
	}

	if report.Total() > 0 {
		s.logger.WithField("terminal", len(report.Terminal)).
			WithField("orphaned", len(report.Orphaned)).
			Info("Pruned session records")
	}
	return report, nil
}
