package model

import (
	"strings"
	"time"
)

// User is a person known to the system. Records are synced from the identity
// provider on each authenticated request.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	StudentID   string    `json:"studentId"`
	IsAdmin     bool      `json:"isAdmin"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Roles.
const (
	RoleAdmin     = "admin"
	RoleRequestor = "requestor"
)

// ValidRole reports whether role is known.
func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleRequestor
}

// DeriveStudentID computes the student ID shown on reports. Admins get
// "ADMIN - {FIRSTNAME}"; everyone else gets the upper-cased segment after the
// last dot of the email local part (jdelacruz.k11223344@umak.edu.ph gives
// K11223344).
func DeriveStudentID(email, displayName string, isAdmin bool) string {
	if isAdmin {
		first := strings.ToUpper(firstWord(displayName))
		if first == "" {
			first = strings.ToUpper(localPart(email))
		}
		return "ADMIN - " + first
	}

	local := localPart(email)
	if i := strings.LastIndex(local, "."); i >= 0 && i < len(local)-1 {
		local = local[i+1:]
	}
	return strings.ToUpper(local)
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func localPart(email string) string {
	if i := strings.Index(email, "@"); i >= 0 {
		return email[:i]
	}
	return email
}
