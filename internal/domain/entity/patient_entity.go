package entity

import (
	"time"
)

// Account carries the identity part of a patient: the login handle,
// contact email, bcrypt hash and the activity/staff flags.
type Account struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	IsActive     bool
	IsStaff      bool
	DateJoined   time.Time
}

// Patient is the aggregate root for the accounts domain.
// Username is immutable once created; only Phone and Address change afterwards.
type Patient struct {
	Account
	Phone     string
	Address   string
	UpdatedAt time.Time
}

// ContactUpdate holds the optional fields of a profile update.
// A nil field keeps the stored value.
type ContactUpdate struct {
	Phone   *string
	Address *string
}

// IsEmpty reports whether the update carries no field at all.
func (u ContactUpdate) IsEmpty() bool {
	return u.Phone == nil && u.Address == nil
}

// ApplyContactUpdate merges u into p and returns the fields whose value changed,
// keyed by field name with the new value.
func (p *Patient) ApplyContactUpdate(u ContactUpdate) map[string]string {
	changes := map[string]string{}
	if u.Phone != nil && *u.Phone != p.Phone {
		p.Phone = *u.Phone
		changes["phone"] = p.Phone
	}
	if u.Address != nil && *u.Address != p.Address {
		p.Address = *u.Address
		changes["address"] = p.Address
	}
	return changes
}

// CanAuthenticate reports whether the account may log in or use issued tokens.
func (p *Patient) CanAuthenticate() bool {
	return p != nil && p.IsActive
}
