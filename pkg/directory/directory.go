// Package directory validates driver identities and resolves a driver from a
// phone number (phone login). Phone matching is digit-normalized and keyed on
// the last ten digits so formatting and country-code variations all resolve
// to the same driver.
package directory

import (
	"context"

	"driver-support-chat/pkg/models"
)

// Directory is the external identity collaborator consulted before a session
// may be created.
type Directory interface {
	// Validate reports whether the driver id is registered.
	Validate(ctx context.Context, driverID string) (bool, error)

	// FindByPhone returns the driver linked to a phone number, or
	// models.ErrNotFound.
	FindByPhone(ctx context.Context, phone string) (models.Driver, error)

	// Register adds or updates a driver record.
	Register(ctx context.Context, driver models.Driver) error
}

// NormalizePhone strips everything but digits.
func NormalizePhone(phone string) string {
	out := make([]byte, 0, len(phone))
	for i := 0; i < len(phone); i++ {
		if phone[i] >= '0' && phone[i] <= '9' {
			out = append(out, phone[i])
		}
	}
	return string(out)
}

// PhoneKeyDigits reduces a phone number to the last ten digits used as the
// lookup key. Returns "" when the number has no digits at all.
func PhoneKeyDigits(phone string) string {
	digits := NormalizePhone(phone)
	if len(digits) > 10 {
		digits = digits[len(digits)-10:]
	}
	return digits
}
