package engine

import (
	"strings"
	"time"

	"github.com/SMohammed-suhail/ClinicCare/internal/models"
)

type FilterQuery struct {
	// Status matches exactly; empty or "all" imposes no constraint.
	Status string
	// Date matches records whose appointment date falls on the same
	// calendar day.
	Date *time.Time
	// Name is a case-insensitive substring match.
	Name string
}

// Filter applies the query to the records with AND semantics, keeping
// the input order.
func Filter(records []models.PatientRecord, query FilterQuery) []models.PatientRecord {
	name := strings.ToLower(strings.TrimSpace(query.Name))
	var out []models.PatientRecord
	for _, record := range records {
		if query.Status != "" && query.Status != "all" && record.Status != query.Status {
			continue
		}
		if query.Date != nil && !sameCalendarDay(record.AppointmentDate, *query.Date) {
			continue
		}
		if name != "" && !strings.Contains(strings.ToLower(record.Name), name) {
			continue
		}
		out = append(out, record)
	}
	return out
}

// FilterSnapshot runs Filter over the engine's current snapshot.
func (e *Engine) FilterSnapshot(query FilterQuery) []models.PatientRecord {
	return Filter(e.Snapshot(), query)
}
