package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/SMohammed-suhail/ClinicCare/internal/models"
	"github.com/SMohammed-suhail/ClinicCare/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

const recordColumns = `record_id, request_id, name, age, phone, symptoms, token_number, status,
	prescription, bill_amount, bill_paid, created_at, appointment_date, consulted_at, billed_at`

type Store struct {
	pool       *pgxpool.Pool
	sessionTTL time.Duration
}

type Options struct {
	SessionTTL time.Duration
}

func NewStore(pool *pgxpool.Pool, options Options) *Store {
	ttl := options.SessionTTL
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &Store{pool: pool, sessionTTL: ttl}
}

func (s *Store) CreateRecord(ctx context.Context, input store.CreateRecordInput) (models.PatientRecord, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.PatientRecord{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if input.RequestID != "" {
		existing, found, findErr := findRecordByRequestID(ctx, tx, input.RequestID)
		if findErr != nil {
			err = findErr
			return models.PatientRecord{}, false, err
		}
		if found {
			if err = tx.Commit(ctx); err != nil {
				return models.PatientRecord{}, false, err
			}
			return existing, false, nil
		}
	}

	recordID := uuid.NewString()
	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	appointment := input.AppointmentDate
	if appointment.IsZero() {
		appointment = createdAt
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO patients (
			record_id, request_id, name, age, phone, symptoms, token_number,
			status, bill_paid, created_at, appointment_date
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING `+recordColumns+`
	`, recordID, nullIfEmpty(input.RequestID), input.Name, input.Age, input.Phone, input.Symptoms,
		input.TokenNumber, models.StatusWaiting, false, createdAt, appointment)

	var record models.PatientRecord
	if record, err = scanRecord(row); err != nil {
		return models.PatientRecord{}, false, err
	}

	if err = insertOutboxEvent(ctx, tx, "patient.created", record); err != nil {
		return models.PatientRecord{}, false, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.PatientRecord{}, false, err
	}
	return record, true, nil
}

func (s *Store) UpdateRecord(ctx context.Context, recordID string, fields store.UpdateRecordFields) (models.PatientRecord, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.PatientRecord{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	assignments, args := buildAssignments(fields)
	if len(assignments) == 0 {
		err = errors.New("no fields to update")
		return models.PatientRecord{}, err
	}
	args = append(args, recordID)

	query := fmt.Sprintf(`
		UPDATE patients
		SET %s
		WHERE record_id = $%d
		RETURNING %s
	`, strings.Join(assignments, ", "), len(args), recordColumns)

	row := tx.QueryRow(ctx, query, args...)
	var record models.PatientRecord
	if record, err = scanRecord(row); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrRecordNotFound
		}
		return models.PatientRecord{}, err
	}

	if err = insertOutboxEvent(ctx, tx, "patient.updated", record); err != nil {
		return models.PatientRecord{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.PatientRecord{}, err
	}
	return record, nil
}

func (s *Store) DeleteRecord(ctx context.Context, recordID string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	tag, err := tx.Exec(ctx, `DELETE FROM patients WHERE record_id = $1`, recordID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		err = store.ErrRecordNotFound
		return err
	}

	if err = insertOutboxEvent(ctx, tx, "patient.deleted", models.PatientRecord{ID: recordID}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ListRecords returns every record ordered by created_at descending, the
// order the subscription contract promises.
func (s *Store) ListRecords(ctx context.Context) ([]models.PatientRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+recordColumns+`
		FROM patients
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.PatientRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) ListOutboxEvents(ctx context.Context, after time.Time, afterID string, limit int) ([]store.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, type, payload_json, created_at
		FROM outbox_events
		WHERE (created_at, event_id) > ($1, $2)
		ORDER BY created_at ASC, event_id ASC
		LIMIT $3
	`, after, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.OutboxEvent
	for rows.Next() {
		var event store.OutboxEvent
		if err := rows.Scan(&event.EventID, &event.Type, &event.Payload, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Store) SignUp(ctx context.Context, input store.SignUpInput) (store.LoginResult, error) {
	var result store.LoginResult

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return store.LoginResult{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return store.LoginResult{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var exists bool
	row := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE lower(email) = lower($1))`, input.Email)
	if err = row.Scan(&exists); err != nil {
		return store.LoginResult{}, err
	}
	if exists {
		err = store.ErrDuplicateEmail
		return store.LoginResult{}, err
	}

	userID := uuid.NewString()
	row = tx.QueryRow(ctx, `
		INSERT INTO users (user_id, email, name, role, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING user_id, email, name, role, created_at
	`, userID, input.Email, input.Name, input.Role, string(hash), time.Now().UTC())
	if err = row.Scan(&result.Profile.UserID, &result.Profile.Email, &result.Profile.Name, &result.Profile.Role, &result.Profile.CreatedAt); err != nil {
		return store.LoginResult{}, err
	}

	result.Session, err = createSession(ctx, tx, userID, time.Now().UTC().Add(s.sessionTTL))
	if err != nil {
		return store.LoginResult{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return store.LoginResult{}, err
	}
	return result, nil
}

func (s *Store) Login(ctx context.Context, email, password string) (store.LoginResult, error) {
	var result store.LoginResult
	var passwordHash string
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, email, name, role, password_hash, created_at
		FROM users
		WHERE lower(email) = lower($1)
	`, email)
	if err := row.Scan(&result.Profile.UserID, &result.Profile.Email, &result.Profile.Name, &result.Profile.Role, &passwordHash, &result.Profile.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.LoginResult{}, store.ErrInvalidCredentials
		}
		return store.LoginResult{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
		return store.LoginResult{}, store.ErrInvalidCredentials
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return store.LoginResult{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	result.Session, err = createSession(ctx, tx, result.Profile.UserID, time.Now().UTC().Add(s.sessionTTL))
	if err != nil {
		return store.LoginResult{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return store.LoginResult{}, err
	}
	return result, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (models.Session, models.UserProfile, error) {
	var session models.Session
	var profile models.UserProfile
	row := s.pool.QueryRow(ctx, `
		SELECT s.session_id, s.user_id, s.expires_at,
		       u.user_id, u.email, u.name, u.role, u.created_at
		FROM sessions s
		JOIN users u ON u.user_id = s.user_id
		WHERE s.session_id = $1 AND s.expires_at > NOW()
	`, sessionID)
	if err := row.Scan(&session.SessionID, &session.UserID, &session.ExpiresAt,
		&profile.UserID, &profile.Email, &profile.Name, &profile.Role, &profile.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Session{}, models.UserProfile{}, store.ErrSessionNotFound
		}
		return models.Session{}, models.UserProfile{}, err
	}
	return session, profile, nil
}

func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE session_id = $1`, sessionID)
	return err
}

func (s *Store) GetProfile(ctx context.Context, userID string) (models.UserProfile, error) {
	var profile models.UserProfile
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, email, name, role, created_at
		FROM users
		WHERE user_id = $1
	`, userID)
	if err := row.Scan(&profile.UserID, &profile.Email, &profile.Name, &profile.Role, &profile.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.UserProfile{}, store.ErrProfileNotFound
		}
		return models.UserProfile{}, err
	}
	return profile, nil
}

func createSession(ctx context.Context, tx pgx.Tx, userID string, expiresAt time.Time) (models.Session, error) {
	var session models.Session
	row := tx.QueryRow(ctx, `
		INSERT INTO sessions (session_id, user_id, expires_at)
		VALUES ($1, $2, $3)
		RETURNING session_id, user_id, expires_at
	`, uuid.NewString(), userID, expiresAt)
	if err := row.Scan(&session.SessionID, &session.UserID, &session.ExpiresAt); err != nil {
		return models.Session{}, err
	}
	return session, nil
}

func findRecordByRequestID(ctx context.Context, tx pgx.Tx, requestID string) (models.PatientRecord, bool, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM patients
		WHERE request_id = $1
	`, requestID)
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.PatientRecord{}, false, nil
		}
		return models.PatientRecord{}, false, err
	}
	return record, true, nil
}

func buildAssignments(fields store.UpdateRecordFields) ([]string, []interface{}) {
	var assignments []string
	var args []interface{}
	add := func(column string, value interface{}) {
		args = append(args, value)
		assignments = append(assignments, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if fields.Status != nil {
		add("status", *fields.Status)
	}
	if fields.Prescription != nil {
		add("prescription", *fields.Prescription)
	}
	if fields.ConsultedAt != nil {
		add("consulted_at", *fields.ConsultedAt)
	}
	if fields.BillAmount != nil {
		add("bill_amount", *fields.BillAmount)
	}
	if fields.BillPaid != nil {
		add("bill_paid", *fields.BillPaid)
	}
	if fields.BilledAt != nil {
		add("billed_at", *fields.BilledAt)
	}
	return assignments, args
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (models.PatientRecord, error) {
	var record models.PatientRecord
	var requestIDNull sql.NullString
	var prescriptionNull sql.NullString
	var billAmountNull sql.NullFloat64
	var consultedAtNull sql.NullTime
	var billedAtNull sql.NullTime
	if err := row.Scan(&record.ID, &requestIDNull, &record.Name, &record.Age, &record.Phone,
		&record.Symptoms, &record.TokenNumber, &record.Status, &prescriptionNull,
		&billAmountNull, &record.BillPaid, &record.CreatedAt, &record.AppointmentDate,
		&consultedAtNull, &billedAtNull); err != nil {
		return models.PatientRecord{}, err
	}
	if requestIDNull.Valid {
		record.RequestID = requestIDNull.String
	}
	if prescriptionNull.Valid {
		record.Prescription = prescriptionNull.String
	}
	if billAmountNull.Valid {
		record.BillAmount = &billAmountNull.Float64
	}
	record.ConsultedAt = nullTimePtr(consultedAtNull)
	record.BilledAt = nullTimePtr(billedAtNull)
	return record, nil
}

func insertOutboxEvent(ctx context.Context, tx pgx.Tx, eventType string, record models.PatientRecord) error {
	payloadJSON, err := json.Marshal(record)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, type, payload_json, created_at)
		VALUES ($1, $2, $3, $4)
	`, uuid.NewString(), eventType, payloadJSON, time.Now().UTC())
	return err
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time
	return &t
}
