// Package engine owns the patient-record lifecycle rules: day-scoped
// token assignment, the status state machine, role-gated mutation
// validation, and the derived aggregates over the live record snapshot.
//
// The engine never trusts local writes: every precondition is checked
// against the most recent subscription snapshot, the mutation is issued
// to the record store, and the change becomes visible only when the
// subscription delivers the next snapshot.
package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/SMohammed-suhail/ClinicCare/internal/models"
	"github.com/SMohammed-suhail/ClinicCare/internal/store"
)

type Engine struct {
	records store.RecordStore
	now     func() time.Time

	mu       sync.RWMutex
	snapshot []models.PatientRecord
}

type Options struct {
	// Now overrides the clock, used by tests.
	Now func() time.Time
}

func New(records store.RecordStore, options Options) *Engine {
	now := options.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{records: records, now: now}
}

// Apply replaces the engine's view of the record set with a fresh
// subscription snapshot. Snapshots arrive ordered by created_at
// descending and are replaced wholesale, never patched.
func (e *Engine) Apply(records []models.PatientRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.snapshot = records
}

// Snapshot returns a copy of the current record set in subscription order.
func (e *Engine) Snapshot() []models.PatientRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.PatientRecord, len(e.snapshot))
	copy(out, e.snapshot)
	return out
}

func (e *Engine) lookup(recordID string) (models.PatientRecord, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, record := range e.snapshot {
		if record.ID == recordID {
			return record, true
		}
	}
	return models.PatientRecord{}, false
}

type RegisterInput struct {
	RequestID       string
	Name            string
	Age             int
	Phone           string
	Symptoms        string
	AppointmentDate time.Time
}

// RegisterPatient creates a waiting record with the next same-day token.
// Receptionist only.
func (e *Engine) RegisterPatient(ctx context.Context, principal models.UserProfile, input RegisterInput) (models.PatientRecord, error) {
	if principal.Role != models.RoleReceptionist {
		return models.PatientRecord{}, fmt.Errorf("%w: registration requires the receptionist role", ErrAuthorization)
	}

	input.Name = strings.TrimSpace(input.Name)
	input.Phone = strings.TrimSpace(input.Phone)
	input.Symptoms = strings.TrimSpace(input.Symptoms)
	if input.Name == "" {
		return models.PatientRecord{}, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if input.Age <= 0 {
		return models.PatientRecord{}, fmt.Errorf("%w: age must be a positive number", ErrValidation)
	}
	if input.Phone == "" {
		return models.PatientRecord{}, fmt.Errorf("%w: phone is required", ErrValidation)
	}
	if input.Symptoms == "" {
		return models.PatientRecord{}, fmt.Errorf("%w: symptoms are required", ErrValidation)
	}

	now := e.now()
	appointment := input.AppointmentDate
	if appointment.IsZero() {
		appointment = now
	}

	record, _, err := e.records.CreateRecord(ctx, store.CreateRecordInput{
		RequestID:       input.RequestID,
		Name:            input.Name,
		Age:             input.Age,
		Phone:           input.Phone,
		Symptoms:        input.Symptoms,
		TokenNumber:     assignToken(e.Snapshot(), now),
		CreatedAt:       now,
		AppointmentDate: appointment,
	})
	if err != nil {
		return models.PatientRecord{}, err
	}
	return record, nil
}

// CompleteConsultation sets the prescription and moves the record to
// completed. Doctor only; rejects blank prescriptions without touching
// the store.
func (e *Engine) CompleteConsultation(ctx context.Context, principal models.UserProfile, recordID, prescription string) (models.PatientRecord, error) {
	if principal.Role != models.RoleDoctor {
		return models.PatientRecord{}, fmt.Errorf("%w: completing a consultation requires the doctor role", ErrAuthorization)
	}

	prescription = strings.TrimSpace(prescription)
	if prescription == "" {
		return models.PatientRecord{}, fmt.Errorf("%w: prescription must not be empty", ErrValidation)
	}

	record, found := e.lookup(recordID)
	if !found {
		return models.PatientRecord{}, ErrNotFound
	}
	if !ValidTransition(record.Status, models.StatusCompleted) {
		return models.PatientRecord{}, fmt.Errorf("%w: consultation is already completed", ErrValidation)
	}

	status := models.StatusCompleted
	consultedAt := e.now()
	updated, err := e.records.UpdateRecord(ctx, recordID, store.UpdateRecordFields{
		Status:       &status,
		Prescription: &prescription,
		ConsultedAt:  &consultedAt,
	})
	if err != nil {
		return models.PatientRecord{}, err
	}
	return updated, nil
}

// GenerateBill records the bill amount and marks it paid, exactly once,
// on a completed record. Receptionist only.
func (e *Engine) GenerateBill(ctx context.Context, principal models.UserProfile, recordID, amount string) (models.PatientRecord, error) {
	if principal.Role != models.RoleReceptionist {
		return models.PatientRecord{}, fmt.Errorf("%w: billing requires the receptionist role", ErrAuthorization)
	}

	record, found := e.lookup(recordID)
	if !found {
		return models.PatientRecord{}, ErrNotFound
	}
	if record.Status != models.StatusCompleted {
		return models.PatientRecord{}, fmt.Errorf("%w: bill can only be generated for a completed consultation", ErrValidation)
	}
	if record.BillPaid {
		return models.PatientRecord{}, fmt.Errorf("%w: bill is already paid", ErrValidation)
	}

	parsed, err := strconv.ParseFloat(strings.TrimSpace(amount), 64)
	if err != nil || parsed < 0 {
		return models.PatientRecord{}, fmt.Errorf("%w: bill amount must be a non-negative number", ErrValidation)
	}

	paid := true
	billedAt := e.now()
	updated, err := e.records.UpdateRecord(ctx, recordID, store.UpdateRecordFields{
		BillAmount: &parsed,
		BillPaid:   &paid,
		BilledAt:   &billedAt,
	})
	if err != nil {
		return models.PatientRecord{}, err
	}
	return updated, nil
}

// DeletePatient removes a record permanently, at any status.
// Receptionist only.
func (e *Engine) DeletePatient(ctx context.Context, principal models.UserProfile, recordID string) error {
	if principal.Role != models.RoleReceptionist {
		return fmt.Errorf("%w: deleting a patient requires the receptionist role", ErrAuthorization)
	}
	if _, found := e.lookup(recordID); !found {
		return ErrNotFound
	}
	return e.records.DeleteRecord(ctx, recordID)
}

type Aggregates struct {
	TotalCount     int     `json:"total_count"`
	WaitingCount   int     `json:"waiting_count"`
	CompletedCount int     `json:"completed_count"`
	TotalRevenue   float64 `json:"total_revenue"`
}

// Aggregates recomputes the dashboard counters from the current snapshot.
// Nothing is cached; the numbers can never diverge from the records.
func (e *Engine) Aggregates() Aggregates {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var agg Aggregates
	agg.TotalCount = len(e.snapshot)
	for _, record := range e.snapshot {
		switch record.Status {
		case models.StatusWaiting:
			agg.WaitingCount++
		case models.StatusCompleted:
			agg.CompletedCount++
		}
		if record.BillPaid && record.BillAmount != nil {
			agg.TotalRevenue += *record.BillAmount
		}
	}
	return agg
}
