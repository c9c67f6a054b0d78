package models

import (
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role is the single role a user holds. Only the constants below are valid.
type Role string

const (
	RoleAdmin                Role = "admin"
	RoleSeniorDoctor         Role = "senior_doctor"
	RoleConsultingDoctor     Role = "consulting_doctor"
	RoleFrontDeskCoordinator Role = "front_desk_coordinator"
	RoleJrDoctor             Role = "jr_doctor"
)

// Roles lists every known role.
var Roles = []Role{
	RoleAdmin,
	RoleSeniorDoctor,
	RoleConsultingDoctor,
	RoleFrontDeskCoordinator,
	RoleJrDoctor,
}

// ParseRole returns the role named by s. Spelling variants such as "jr-doctor" are rejected.
func ParseRole(s string) (Role, error) {
	r := Role(strings.TrimSpace(s))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleSeniorDoctor, RoleConsultingDoctor, RoleFrontDeskCoordinator, RoleJrDoctor:
		return true
	}
	return false
}

// IsDoctor reports whether a patient can be assigned to a user of this role.
func (r Role) IsDoctor() bool {
	return r == RoleSeniorDoctor || r == RoleConsultingDoctor
}

type User struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	FullName       string             `bson:"fullName" json:"fullName"`
	Email          string             `bson:"email" json:"email"`
	Password       string             `bson:"password" json:"-"` // bcrypt hash, never serialized
	Role           Role               `bson:"role" json:"role"`
	Phone          string             `bson:"phone,omitempty" json:"phone,omitempty"`
	Specialization string             `bson:"specialization,omitempty" json:"specialization,omitempty"`
	IsActive       bool               `bson:"isActive" json:"isActive"`

	// Only meaningful for consulting doctors.
	AssignedSeniorDoctor *primitive.ObjectID `bson:"assignedSeniorDoctor,omitempty" json:"assignedSeniorDoctor,omitempty"`
	// Only meaningful for senior doctors.
	AssignedConsultingDoctors []primitive.ObjectID `bson:"assignedConsultingDoctors,omitempty" json:"assignedConsultingDoctors,omitempty"`

	CreatedAt time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time  `bson:"updatedAt" json:"updatedAt"`
	LastLogin *time.Time `bson:"lastLogin,omitempty" json:"lastLogin,omitempty"`
}

// NormalizeEmail is the canonical form used for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HasConsultingDoctor reports whether id is in the senior doctor's consulting set.
func (u User) HasConsultingDoctor(id primitive.ObjectID) bool {
	for _, c := range u.AssignedConsultingDoctors {
		if c == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers never share slices or pointers with the store.
func (u User) Clone() User {
	if u.AssignedSeniorDoctor != nil {
		s := *u.AssignedSeniorDoctor
		u.AssignedSeniorDoctor = &s
	}
	if u.AssignedConsultingDoctors != nil {
		u.AssignedConsultingDoctors = append([]primitive.ObjectID(nil), u.AssignedConsultingDoctors...)
	}
	if u.LastLogin != nil {
		t := *u.LastLogin
		u.LastLogin = &t
	}
	return u
}
