package models

import "time"

type PatientRecord struct {
	ID              string     `json:"id"`
	RequestID       string     `json:"request_id,omitempty"`
	Name            string     `json:"name"`
	Age             int        `json:"age"`
	Phone           string     `json:"phone"`
	Symptoms        string     `json:"symptoms"`
	TokenNumber     int        `json:"token_number"`
	Status          string     `json:"status"`
	Prescription    string     `json:"prescription,omitempty"`
	BillAmount      *float64   `json:"bill_amount,omitempty"`
	BillPaid        bool       `json:"bill_paid"`
	CreatedAt       time.Time  `json:"created_at"`
	AppointmentDate time.Time  `json:"appointment_date"`
	ConsultedAt     *time.Time `json:"consulted_at,omitempty"`
	BilledAt        *time.Time `json:"billed_at,omitempty"`
}

const (
	StatusWaiting    = "waiting"
	StatusConsulting = "consulting"
	StatusCompleted  = "completed"
)
