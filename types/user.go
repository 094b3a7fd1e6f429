package types

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Roles form a closed enumeration used by route-level authorization.
const (
	RoleUser      = "user"
	RoleGuide     = "guide"
	RoleLeadGuide = "lead-guide"
	RoleAdmin     = "admin"
)

// UserRoles are the accepted role values.
var UserRoles = []string{RoleUser, RoleGuide, RoleLeadGuide, RoleAdmin}

// User represents an account in the system.
type User struct {
	// ID is the unique identifier of the user.
	ID bson.ObjectID `json:"id" bson:"_id,omitempty"`

	// Name is the user's display name.
	Name string `json:"name" bson:"name"`

	// Email is the unique, lowercased login address.
	Email string `json:"email" bson:"email"`

	// Photo is the profile image file name.
	Photo string `json:"photo,omitempty" bson:"photo,omitempty"`

	// Role is the authorization level (user, guide, lead-guide, admin).
	Role string `json:"role" bson:"role"`

	// Password stores the bcrypt hash. Hidden from the default projection
	// and never serialized.
	Password string `json:"-" bson:"password,omitempty"`

	// PasswordChangedAt invalidates credentials issued before it.
	PasswordChangedAt time.Time `json:"-" bson:"passwordChangedAt,omitempty"`

	// PasswordResetToken holds the sha256 of the outstanding reset token.
	PasswordResetToken string `json:"-" bson:"passwordResetToken,omitempty"`

	// PasswordResetExpires bounds the reset token's validity.
	PasswordResetExpires time.Time `json:"-" bson:"passwordResetExpires,omitempty"`

	// Active is false for soft-deleted accounts, which are excluded from
	// all queries.
	Active *bool `json:"-" bson:"active,omitempty"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// ChangedPasswordAfter reports whether the password changed after the given
// credential issuance time.
func (u User) ChangedPasswordAfter(issuedAt time.Time) bool {
	if u.PasswordChangedAt.IsZero() {
		return false
	}
	// JWT iat has second precision; compare at the same granularity.
	return u.PasswordChangedAt.Truncate(time.Second).After(issuedAt.Truncate(time.Second))
}

// UserSchema declares validation and query rules for users.
var UserSchema = Schema{
	Collection: "users",
	Required: map[string]string{
		"name":     "Please tell us your name",
		"email":    "Email address is required",
		"password": "Please enter a password",
	},
	Rules: map[string]FieldRule{
		"name":     ruleMatches(`^[a-zA-Z\s]+$`, "User name must only contain alphabetic characters and spaces"),
		"email":    ruleMatches(`^[^@\s]+@[^@\s]+\.[^@\s]+$`, "Please enter a valid email"),
		"role":     ruleEnum("Role is either user, guide, lead-guide or admin", UserRoles...),
		"password": ruleMinLen(8, "Password must be at least 8 characters"),
	},
	Defaults: map[string]func() any{
		"photo":     func() any { return "default.jpg" },
		"role":      func() any { return RoleUser },
		"active":    func() any { return true },
		"createdAt": func() any { return time.Now().UTC() },
	},
	Filterable: map[string]bool{
		"name": true, "email": true, "role": true,
	},
	Numeric: map[string]bool{},
	Refs:    map[string]bool{},
	Times:   map[string]bool{"createdAt": true},
	Hidden:  []string{"password", "passwordChangedAt", "passwordResetToken", "passwordResetExpires"},
}
