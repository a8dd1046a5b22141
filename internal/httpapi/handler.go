package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/SMohammed-suhail/ClinicCare/internal/engine"
	"github.com/SMohammed-suhail/ClinicCare/internal/models"
	"github.com/SMohammed-suhail/ClinicCare/internal/store"

	"github.com/google/uuid"
)

type Handler struct {
	engine   *engine.Engine
	identity store.IdentityStore
	guard    *engine.ActionGuard
}

func NewHandler(eng *engine.Engine, identity store.IdentityStore) *Handler {
	return &Handler{
		engine:   eng,
		identity: identity,
		guard:    engine.NewActionGuard(),
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/auth/signup", h.handleSignUp)
	mux.HandleFunc("/api/auth/login", h.handleLogin)
	mux.HandleFunc("/api/auth/logout", h.handleLogout)
	mux.HandleFunc("/api/auth/me", h.handleMe)
	mux.HandleFunc("/api/patients", h.handlePatients)
	mux.HandleFunc("/api/patients/", h.handlePatientActions)
	mux.HandleFunc("/api/stats", h.handleStats)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	SessionID string             `json:"session_id"`
	ExpiresAt string             `json:"expires_at"`
	Profile   models.UserProfile `json:"profile"`
}

func (h *Handler) handleSignUp(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req signUpRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	req.Role = strings.TrimSpace(req.Role)

	if req.Email == "" || req.Password == "" || req.Name == "" || req.Role == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email, password, name, and role are required")
		return
	}
	if req.Role != models.RoleDoctor && req.Role != models.RoleReceptionist {
		writeError(w, http.StatusBadRequest, "invalid_request", "role must be doctor or receptionist")
		return
	}

	result, err := h.identity.SignUp(r.Context(), store.SignUpInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Role:     req.Role,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			writeError(w, http.StatusConflict, "duplicate_email", "email already registered")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		SessionID: result.Session.SessionID,
		ExpiresAt: result.Session.ExpiresAt.Format(time.RFC3339),
		Profile:   result.Profile,
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)

	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	result, err := h.identity.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, store.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		SessionID: result.Session.SessionID,
		ExpiresAt: result.Session.ExpiresAt.Format(time.RFC3339),
		Profile:   result.Profile,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	sessionID := SessionIDFromRequest(r)
	if sessionID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}
	if err := h.identity.DeleteSession(r.Context(), sessionID); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}
	writeJSON(w, http.StatusOK, principal)
}

type registerPatientRequest struct {
	RequestID       string `json:"request_id"`
	Name            string `json:"name"`
	Age             int    `json:"age"`
	Phone           string `json:"phone"`
	Symptoms        string `json:"symptoms"`
	AppointmentDate string `json:"appointment_date"`
}

func (h *Handler) handlePatients(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleRegisterPatient(w, r)
	case http.MethodGet:
		h.handleListPatients(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleRegisterPatient(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req registerPatientRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.RequestID = strings.TrimSpace(req.RequestID)
	if req.RequestID != "" && !isValidUUID(req.RequestID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "request_id must be a UUID when provided")
		return
	}

	var appointment time.Time
	if raw := strings.TrimSpace(req.AppointmentDate); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "appointment_date must be an RFC3339 timestamp")
			return
		}
		appointment = parsed
	}

	guardKey := "register:" + req.RequestID
	if req.RequestID != "" {
		if !h.guard.TryBegin(guardKey) {
			writeError(w, http.StatusConflict, "action_pending", "registration already in progress")
			return
		}
		defer h.guard.End(guardKey)
	}

	record, err := h.engine.RegisterPatient(r.Context(), principal, engine.RegisterInput{
		RequestID:       req.RequestID,
		Name:            req.Name,
		Age:             req.Age,
		Phone:           req.Phone,
		Symptoms:        req.Symptoms,
		AppointmentDate: appointment,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *Handler) handleListPatients(w http.ResponseWriter, r *http.Request) {
	if _, ok := requirePrincipal(w, r); !ok {
		return
	}

	query := engine.FilterQuery{
		Status: strings.TrimSpace(r.URL.Query().Get("status")),
		Name:   strings.TrimSpace(r.URL.Query().Get("name")),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
			return
		}
		query.Date = &parsed
	}

	records := h.engine.FilterSnapshot(query)
	if records == nil {
		records = []models.PatientRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := requirePrincipal(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Aggregates())
}

type completeRequest struct {
	Prescription string `json:"prescription"`
}

type billRequest struct {
	Amount string `json:"amount"`
}

func (h *Handler) handlePatientActions(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/patients/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	recordID := parts[0]
	if !isValidUUID(recordID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "patient id must be a UUID")
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodDelete:
		h.handleDeletePatient(w, r, recordID)
	case len(parts) == 3 && parts[1] == "actions" && r.Method == http.MethodPost:
		switch parts[2] {
		case "complete":
			h.handleCompleteConsultation(w, r, recordID)
		case "bill":
			h.handleGenerateBill(w, r, recordID)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleCompleteConsultation(w http.ResponseWriter, r *http.Request, recordID string) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req completeRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	guardKey := "complete:" + recordID
	if !h.guard.TryBegin(guardKey) {
		writeError(w, http.StatusConflict, "action_pending", "completion already in progress")
		return
	}
	defer h.guard.End(guardKey)

	record, err := h.engine.CompleteConsultation(r.Context(), principal, recordID, req.Prescription)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *Handler) handleGenerateBill(w http.ResponseWriter, r *http.Request, recordID string) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req billRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	guardKey := "bill:" + recordID
	if !h.guard.TryBegin(guardKey) {
		writeError(w, http.StatusConflict, "action_pending", "billing already in progress")
		return
	}
	defer h.guard.End(guardKey)

	record, err := h.engine.GenerateBill(r.Context(), principal, recordID, req.Amount)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *Handler) handleDeletePatient(w http.ResponseWriter, r *http.Request, recordID string) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	guardKey := "delete:" + recordID
	if !h.guard.TryBegin(guardKey) {
		writeError(w, http.StatusConflict, "action_pending", "deletion already in progress")
		return
	}
	defer h.guard.End(guardKey)

	if err := h.engine.DeletePatient(r.Context(), principal, recordID); err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeRequest(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, engine.ErrValidation):
		return http.StatusBadRequest, "invalid_request", err.Error()
	case errors.Is(err, engine.ErrAuthorization):
		return http.StatusForbidden, "access_denied", err.Error()
	case errors.Is(err, engine.ErrNotFound), errors.Is(err, store.ErrRecordNotFound):
		return http.StatusNotFound, "patient_not_found", "patient record not found"
	default:
		return http.StatusInternalServerError, "store_error", "store operation failed"
	}
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: responseError{Code: code, Message: message}})
}

type errorResponse struct {
	Error responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
