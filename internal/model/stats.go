package model

import "github.com/google/uuid"

// Stats is the dashboard summary. Admins see platform totals, doctors and
// clinics see their own bookings.
type Stats struct {
	Scope          string                       `json:"scope"`
	OwnerID        *uuid.UUID                   `json:"owner_id,omitempty"`
	UsersByRole    map[Role]int64               `json:"users_by_role,omitempty"`
	Appointments   map[BookingStatus]int64      `json:"appointments"`
	ClinicBookings map[BookingStatus]int64      `json:"clinic_bookings"`
	Prescriptions  map[PrescriptionStatus]int64 `json:"prescriptions,omitempty"`
	RevenueCents   int64                        `json:"revenue_cents"`
}

// StatusCount is a grouped count row.
type StatusCount struct {
	Status string `db:"status"`
	Count  int64  `db:"count"`
}
