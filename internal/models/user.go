package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type UserRole string

const (
	RoleStudent    UserRole = "student"
	RoleTeacher    UserRole = "teacher"
	RoleParent     UserRole = "parent"
	RoleStaff      UserRole = "staff"
	RoleSuperAdmin UserRole = "super_admin"
)

func (r UserRole) IsValid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleParent, RoleStaff, RoleSuperAdmin:
		return true
	}
	return false
}

// Display returns the human-readable role name used in notification bodies.
func (r UserRole) Display() string {
	switch r {
	case RoleStudent:
		return "Student"
	case RoleTeacher:
		return "Teacher"
	case RoleParent:
		return "Parent"
	case RoleStaff:
		return "Staff"
	case RoleSuperAdmin:
		return "Super Admin"
	}
	return string(r)
}

func (r UserRole) String() string {
	return string(r)
}

type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Email        string             `bson:"email" json:"email"`
	PasswordHash string             `bson:"password_hash" json:"-"`
	FullName     string             `bson:"full_name" json:"full_name"`
	Role         UserRole           `bson:"role" json:"role"`
	Phone        string             `bson:"phone,omitempty" json:"phone,omitempty"`
	IsActive     bool               `bson:"is_active" json:"is_active"`

	CreatedAt   time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `bson:"updated_at" json:"updated_at"`
	LastLoginAt *time.Time `bson:"last_login_at,omitempty" json:"last_login_at,omitempty"`
}
