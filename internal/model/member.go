package model

import "time"

// Member roles.  STAFF can schedule sessions, grant credits and manage
// rosters; MEMBER can book and manage their own reservations.
const (
	RoleMember = "MEMBER"
	RoleStaff  = "STAFF"
)

// Member is a registered studio member.  Only the password hash is stored.
//
// Fields:
//  ID           – primary key identifier.
//  Email        – unique login email.
//  PasswordHash – bcrypt hash of the member's password.
//  FirstName    – given name.
//  LastName     – family name.
//  Role         – MEMBER or STAFF.
//  CreatedAt    – creation timestamp.
//  UpdatedAt    – last update timestamp.
type Member struct {
	ID           uint64    // members.id
	Email        string    // members.email
	PasswordHash string    // members.password_hash
	FirstName    string    // members.first_name
	LastName     string    // members.last_name
	Role         string    // members.role
	CreatedAt    time.Time // members.created_at
	UpdatedAt    time.Time // members.updated_at
}
