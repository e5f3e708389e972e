package gateway

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"github.com/cryptoshelf/shelfsync/internal/domain"
	domainerrors "github.com/cryptoshelf/shelfsync/internal/errors"
	"github.com/cryptoshelf/shelfsync/internal/normalize"
	"github.com/cryptoshelf/shelfsync/internal/store"
)

// Profile returns one profile. A confirmed miss returns (nil, true).
func (g *Gateway) Profile(ctx context.Context, userID string) (*domain.Profile, bool) {
	ctx, span := g.start(ctx, "profile", attribute.String("user_id", userID))
	row, err := g.store.FetchOne(ctx, store.TableProfiles, store.Filter{"id": userID})
	if errors.Is(err, store.ErrNotFound) {
		end(span, nil)
		return nil, true
	}
	end(span, err)
	if err != nil {
		g.readFailed(ctx, "fetch profile", err, "user_id", userID)
		return nil, false
	}
	p, ok := normalize.Profile(row)
	if !ok {
		return nil, true
	}
	return &p, true
}

// Profiles lists every profile, newest first. Moderation screens use it, so
// hidden profiles are included.
func (g *Gateway) Profiles(ctx context.Context) ([]domain.Profile, bool) {
	rows, err := g.fetchAll(ctx, store.TableProfiles, store.Query{OrderBy: "created_at", Desc: true})
	if err != nil {
		g.readFailed(ctx, "fetch profiles", err)
		return nil, false
	}
	out := make([]domain.Profile, 0, len(rows))
	for _, r := range rows {
		if p, ok := normalize.Profile(r); ok {
			out = append(out, p)
		}
	}
	return out, true
}

// SaveProfile upserts a profile by id.
func (g *Gateway) SaveProfile(ctx context.Context, p domain.Profile) (domain.Profile, error) {
	if p.ID == "" {
		return domain.Profile{}, domainerrors.Validation("profile id is required")
	}
	ctx, span := g.start(ctx, "save_profile", attribute.String("user_id", p.ID))
	change, err := g.store.Upsert(ctx, store.TableProfiles, normalize.ProfileRow(p), nil)
	end(span, err)
	if err != nil {
		return domain.Profile{}, g.writeFailed(ctx, "save profile", err, "user_id", p.ID)
	}
	saved, _ := normalize.Profile(change.Row)
	return saved, nil
}

// ProfilePatch lists the profile fields to change. Nil fields are left
// alone.
type ProfilePatch struct {
	Handle        *string
	AvatarURL     *string
	TwitterHandle *string
	IsVerified    *bool
	IsHidden      *bool
}

func (p ProfilePatch) row() store.Row {
	row := store.Row{}
	putString := func(col string, v *string) {
		if v == nil {
			return
		}
		if *v == "" {
			row[col] = nil
			return
		}
		row[col] = *v
	}
	putString("handle", p.Handle)
	putString("avatar_url", p.AvatarURL)
	putString("twitter_handle", p.TwitterHandle)
	if p.IsVerified != nil {
		row["is_verified"] = *p.IsVerified
	}
	if p.IsHidden != nil {
		row["is_hidden"] = *p.IsHidden
	}
	return row
}

// Apply returns to with the patch applied.
func (p ProfilePatch) Apply(to domain.Profile) domain.Profile {
	if p.Handle != nil {
		to.Handle = *p.Handle
	}
	if p.AvatarURL != nil {
		to.AvatarURL = *p.AvatarURL
	}
	if p.TwitterHandle != nil {
		to.TwitterHandle = *p.TwitterHandle
	}
	if p.IsVerified != nil {
		to.IsVerified = *p.IsVerified
	}
	if p.IsHidden != nil {
		to.IsHidden = *p.IsHidden
	}
	return to
}

// UpdateProfile patches an existing profile.
func (g *Gateway) UpdateProfile(ctx context.Context, userID string, patch ProfilePatch) error {
	row := patch.row()
	if len(row) == 0 {
		return nil
	}
	ctx, span := g.start(ctx, "update_profile", attribute.String("user_id", userID))
	rows, err := g.store.Update(ctx, store.TableProfiles, store.Filter{"id": userID}, row)
	if err == nil && len(rows) == 0 {
		err = domainerrors.NotFoundf("profile %s not found", userID)
	}
	end(span, err)
	if err != nil {
		return g.writeFailed(ctx, "update profile", err, "user_id", userID)
	}
	return nil
}

// EnsureProfile returns the stored profile for p.ID, creating it from p when
// none exists.
func (g *Gateway) EnsureProfile(ctx context.Context, p domain.Profile) (domain.Profile, error) {
	existing, known := g.Profile(ctx, p.ID)
	if !known {
		return domain.Profile{}, domainerrors.Unavailablef("fetch profile %s", p.ID)
	}
	if existing != nil {
		return *existing, nil
	}
	return g.SaveProfile(ctx, p)
}
