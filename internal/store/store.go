package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/SMohammed-suhail/ClinicCare/internal/models"
)

type CreateRecordInput struct {
	RequestID       string
	Name            string
	Age             int
	Phone           string
	Symptoms        string
	TokenNumber     int
	CreatedAt       time.Time
	AppointmentDate time.Time
}

// UpdateRecordFields is a partial update: nil fields are left untouched.
type UpdateRecordFields struct {
	Status       *string
	Prescription *string
	ConsultedAt  *time.Time
	BillAmount   *float64
	BillPaid     *bool
	BilledAt     *time.Time
}

type RecordStore interface {
	CreateRecord(ctx context.Context, input CreateRecordInput) (models.PatientRecord, bool, error)
	UpdateRecord(ctx context.Context, recordID string, fields UpdateRecordFields) (models.PatientRecord, error)
	DeleteRecord(ctx context.Context, recordID string) error
	ListRecords(ctx context.Context) ([]models.PatientRecord, error)
	ListOutboxEvents(ctx context.Context, after time.Time, afterID string, limit int) ([]OutboxEvent, error)
}

type SignUpInput struct {
	Email    string
	Password string
	Name     string
	Role     string
}

type LoginResult struct {
	Profile models.UserProfile
	Session models.Session
}

type IdentityStore interface {
	SignUp(ctx context.Context, input SignUpInput) (LoginResult, error)
	Login(ctx context.Context, email, password string) (LoginResult, error)
	GetSession(ctx context.Context, sessionID string) (models.Session, models.UserProfile, error)
	DeleteSession(ctx context.Context, sessionID string) error
	GetProfile(ctx context.Context, userID string) (models.UserProfile, error)
}

type OutboxEvent struct {
	EventID   string          `json:"event_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
