package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRole is returned when a role string is neither job_seeker nor employer.
	ErrInvalidRole = errors.New("invalid role")
	// ErrInvalidUser is returned when a user record received from the backend is malformed.
	ErrInvalidUser = errors.New("invalid user record")
	// ErrInvalidPatch is returned when a profile update fails validation.
	ErrInvalidPatch = errors.New("invalid profile update")
)

// Role is the marketplace side a user signed up for. It is assigned by the
// backend at first login and never changes afterwards.
type Role string

const (
	RoleJobSeeker Role = "job_seeker"
	RoleEmployer  Role = "employer"
)

// ParseRole converts a role string into a Role.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleJobSeeker, RoleEmployer:
		return r, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleJobSeeker || r == RoleEmployer
}

func (r Role) String() string {
	return string(r)
}

// User is the authenticated identity as returned by the backend.
type User struct {
	UserID   string  `json:"user_id"           validate:"required"`
	Email    string  `json:"email"             validate:"required,email"`
	Name     string  `json:"name"`
	Picture  *string `json:"picture,omitempty"`
	UserType Role    `json:"user_type"         validate:"required,oneof=job_seeker employer"`

	Phone           *string  `json:"phone,omitempty"`
	Profession      *string  `json:"profession,omitempty"`
	Skills          []string `json:"skills,omitempty"`
	ExperienceYears *int     `json:"experience_years,omitempty"`
	Bio             *string  `json:"bio,omitempty"`
	City            *string  `json:"city,omitempty"`
	Area            *string  `json:"area,omitempty"`
	Latitude        *float64 `json:"latitude,omitempty"`
	Longitude       *float64 `json:"longitude,omitempty"`

	// CreatedAt is kept verbatim; the backend does not always emit RFC 3339.
	CreatedAt string `json:"created_at,omitempty"`
}

// Clone returns a deep copy of u.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}

	c := *u
	if u.Skills != nil {
		c.Skills = append([]string(nil), u.Skills...)
	}

	return &c
}

// UserPatch holds the fields of a partial user update. Nil fields are left
// untouched by Apply. Identity fields (user id, email, role) are not patchable.
type UserPatch struct {
	Name            *string   `json:"name,omitempty"`
	Picture         *string   `json:"picture,omitempty"`
	Phone           *string   `json:"phone,omitempty"`
	Profession      *string   `json:"profession,omitempty"`
	Skills          *[]string `json:"skills,omitempty"`
	ExperienceYears *int      `json:"experience_years,omitempty" validate:"omitempty,min=0,max=80"`
	Bio             *string   `json:"bio,omitempty"              validate:"omitempty,max=2000"`
	City            *string   `json:"city,omitempty"`
	Area            *string   `json:"area,omitempty"`
	Latitude        *float64  `json:"latitude,omitempty"         validate:"omitempty,min=-90,max=90"`
	Longitude       *float64  `json:"longitude,omitempty"        validate:"omitempty,min=-180,max=180"`
}

// Empty reports whether the patch carries no fields.
func (p UserPatch) Empty() bool {
	return p == UserPatch{}
}

// Apply merges the set fields of p into a copy of u and returns it.
func (p UserPatch) Apply(u *User) *User {
	out := u.Clone()

	setString(&out.Name, p.Name)
	setPtr(&out.Picture, p.Picture)
	setPtr(&out.Phone, p.Phone)
	setPtr(&out.Profession, p.Profession)
	setPtr(&out.ExperienceYears, p.ExperienceYears)
	setPtr(&out.Bio, p.Bio)
	setPtr(&out.City, p.City)
	setPtr(&out.Area, p.Area)
	setPtr(&out.Latitude, p.Latitude)
	setPtr(&out.Longitude, p.Longitude)

	if p.Skills != nil {
		out.Skills = append([]string(nil), (*p.Skills)...)
	}

	return out
}

// PatchFromUser builds a patch carrying every profile field of u. It is used
// to fold an authoritative server response into the cached record.
func PatchFromUser(u *User) UserPatch {
	p := UserPatch{
		Name:            &u.Name,
		Picture:         u.Picture,
		Phone:           u.Phone,
		Profession:      u.Profession,
		ExperienceYears: u.ExperienceYears,
		Bio:             u.Bio,
		City:            u.City,
		Area:            u.Area,
		Latitude:        u.Latitude,
		Longitude:       u.Longitude,
	}

	if u.Skills != nil {
		skills := append([]string(nil), u.Skills...)
		p.Skills = &skills
	}

	return p
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setPtr[T any](dst **T, src *T) {
	if src != nil {
		v := *src
		*dst = &v
	}
}
