package coordinator

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/cryptoshelf/shelfsync/internal/color"
	"github.com/cryptoshelf/shelfsync/internal/domain"
	domainerrors "github.com/cryptoshelf/shelfsync/internal/errors"
	"github.com/cryptoshelf/shelfsync/internal/gateway"
)

const (
	maxHandle  = 40
	maxTwitter = 15
)

// UpdateProfile patches a profile. Users may edit their own profile; admins
// may edit any, which is how moderation hides or verifies owners. The owner
// summary on every cached shelf of that user changes at once.
func (c *Coordinator) UpdateProfile(ctx context.Context, userID string, patch gateway.ProfilePatch) *Pending {
	p, err := c.principal()
	if err != nil {
		return c.reject("update_profile", err)
	}
	if userID == "" {
		return c.reject("update_profile", domainerrors.Validation("user id is required"))
	}
	if userID != p.ID && !p.IsAdmin() {
		return c.reject("update_profile", domainerrors.Forbidden("profile belongs to another user"))
	}
	if (patch.IsHidden != nil || patch.IsVerified != nil) && !p.IsAdmin() {
		return c.reject("update_profile", domainerrors.Forbidden("admin role required"))
	}
	patch = trimPatch(patch)
	if err := checkPatch(patch); err != nil {
		return c.reject("update_profile", err)
	}

	if !c.cache.Alive() {
		return c.reject("update_profile", nil)
	}
	for _, s := range c.cache.Shelves.All() {
		if s.OwnerID != userID {
			continue
		}
		c.cache.Shelves.Update(s.ID, func(cur domain.Shelf, exists bool) (domain.Shelf, bool) {
			if !exists {
				return cur, false
			}
			cur.Owner = patchOwner(cur.Owner, patch)
			return cur, true
		})
	}
	if userID == p.ID && patch.Handle != nil {
		p.Handle = *patch.Handle
		c.cache.SetCurrentUser(p)
	}

	return c.submit(ctx, "profile:"+userID, "update_profile", func(ctx context.Context) (string, error) {
		return userID, c.remote.UpdateProfile(ctx, userID, patch)
	})
}

func trimPatch(p gateway.ProfilePatch) gateway.ProfilePatch {
	trim := func(v *string) *string {
		if v == nil {
			return nil
		}
		s := strings.TrimSpace(*v)
		return &s
	}
	p.Handle = trim(p.Handle)
	p.AvatarURL = trim(p.AvatarURL)
	p.TwitterHandle = trim(p.TwitterHandle)
	if p.TwitterHandle != nil {
		h := strings.TrimPrefix(*p.TwitterHandle, "@")
		p.TwitterHandle = &h
	}
	return p
}

func checkPatch(p gateway.ProfilePatch) error {
	fields := map[string]string{}
	if p.Handle != nil {
		switch n := utf8.RuneCountInString(*p.Handle); {
		case n == 0:
			fields["handle"] = "is required"
		case n > maxHandle:
			fields["handle"] = "must not exceed 40 characters"
		}
	}
	if p.TwitterHandle != nil && utf8.RuneCountInString(*p.TwitterHandle) > maxTwitter {
		fields["twitter_handle"] = "must not exceed 15 characters"
	}
	if len(fields) > 0 {
		return domainerrors.ValidationWithDetails("validation failed", fields)
	}
	return nil
}

func patchOwner(o domain.Owner, p gateway.ProfilePatch) domain.Owner {
	if p.Handle != nil {
		o.Handle = *p.Handle
	}
	if p.AvatarURL != nil {
		o.AvatarURL = *p.AvatarURL
		o.AvatarColor = ""
		if o.AvatarURL == "" {
			o.AvatarColor = color.ForOwner(o.ID)
		}
	}
	if p.TwitterHandle != nil {
		o.TwitterHandle = *p.TwitterHandle
	}
	if p.IsVerified != nil {
		o.IsVerified = *p.IsVerified
	}
	if o.TwitterHandle != "" {
		o.IsVerified = true
	}
	if p.IsHidden != nil {
		o.IsHidden = *p.IsHidden
	}
	return o
}
