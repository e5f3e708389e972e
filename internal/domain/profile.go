package domain

import (
	"time"

	"github.com/cryptoshelf/shelfsync/internal/color"
)

// Role represents the principal's permission level.
type Role string

const (
	// RoleAdmin may edit the catalog and moderate shelves.
	RoleAdmin Role = "admin"
	// RoleUser is a regular collector.
	RoleUser Role = "user"
)

// Principal is the identity the sync layer acts on behalf of.
type Principal struct {
	ID     string `json:"id"`
	Handle string `json:"handle"`
	Role   Role   `json:"role"`
}

// IsAdmin reports whether the principal may run admin commands.
func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// Profile is the public identity behind a shelf.
type Profile struct {
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	ID            string    `json:"id" validate:"required"`
	Handle        string    `json:"handle" validate:"required,max=40"`
	AvatarURL     string    `json:"avatar_url,omitempty" validate:"omitempty,url"`
	TwitterHandle string    `json:"twitter_handle,omitempty" validate:"omitempty,max=15"`
	Role          Role      `json:"role" validate:"omitempty,oneof=admin user"`
	IsVerified    bool      `json:"is_verified"`
	IsHidden      bool      `json:"is_hidden"`
}

// Key identifies the profile.
func (p Profile) Key() string { return p.ID }

// Verified reports the effective verification badge: an explicit flag or a
// linked twitter handle.
func (p Profile) Verified() bool {
	return p.IsVerified || p.TwitterHandle != ""
}

// Owner returns the summary joined onto shelves.
func (p Profile) Owner() Owner {
	handle := p.Handle
	if handle == "" {
		handle = DefaultHandle
	}
	o := Owner{
		ID:            p.ID,
		Handle:        handle,
		AvatarURL:     p.AvatarURL,
		TwitterHandle: p.TwitterHandle,
		IsVerified:    p.Verified(),
		IsHidden:      p.IsHidden,
	}
	if o.AvatarURL == "" {
		o.AvatarColor = color.ForOwner(p.ID)
	}
	return o
}

// Principal returns the identity this profile acts as.
func (p Profile) Principal() Principal {
	role := p.Role
	if role == "" {
		role = RoleUser
	}
	return Principal{ID: p.ID, Handle: p.Handle, Role: role}
}

// DeviceProfile builds the profile created on first launch for a device identity.
func DeviceProfile(deviceID string) Profile {
	suffix := deviceID
	if len(suffix) > 8 {
		suffix = suffix[len(suffix)-8:]
	}
	return Profile{
		ID:        deviceID,
		Handle:    "user_" + suffix,
		AvatarURL: "https://api.dicebear.com/7.x/avataaars/svg?seed=" + deviceID,
		Role:      RoleUser,
	}
}
