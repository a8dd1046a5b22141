package engine

import (
	"time"

	"github.com/SMohammed-suhail/ClinicCare/internal/models"
)

// assignToken returns the next day-scoped queue token: the number of
// records created on the same calendar day as now, plus one. This is a
// best-effort read-then-write scheme; two concurrent registrations can
// observe the same count and receive the same token, and the first
// writer wins silently.
func assignToken(records []models.PatientRecord, now time.Time) int {
	count := 0
	for _, record := range records {
		if sameCalendarDay(record.CreatedAt, now) {
			count++
		}
	}
	return count + 1
}

func sameCalendarDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
