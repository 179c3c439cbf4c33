package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/lyrebirdhq/linescribe/db/models"
	"github.com/lyrebirdhq/linescribe/line"
)

// PlaceholderName is stored when the platform profile lookup fails. Profile
// enrichment failure must never block message persistence.
const PlaceholderName = "Unknown User"

// IdentityStore is the slice of the store the resolver needs.
type IdentityStore interface {
	FindIdentityByLineID(ctx context.Context, lineID string) (*models.Identity, error)
	CreateIdentity(ctx context.Context, identity *models.Identity) error
	UpdateIdentityProfile(ctx context.Context, identityID, displayName, avatarURL string) error
}

// ProfileFetcher looks up a platform user profile. Failures are non-fatal.
type ProfileFetcher interface {
	GetProfile(ctx context.Context, userID string) (line.Profile, error)
}

// ResolveOptions control a single resolution.
type ResolveOptions struct {
	// Kind of identity to create when none exists (user/group/room).
	Kind string
	// ForceProfile re-fetches the profile and updates the stored name and
	// avatar even when the identity already exists (follow events).
	ForceProfile bool
}

// Resolver implements get-or-create semantics for conversational identities.
// It is idempotent under concurrent invocation for the same platform id: a
// per-key critical section covers the check-then-create window, and a
// duplicate-key create (another process won the race) falls back to a
// re-fetch.
type Resolver struct {
	store    IdentityStore
	profiles ProfileFetcher
	timezone string
	log      *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewResolver(store IdentityStore, profiles ProfileFetcher, timezone string, log *slog.Logger) (*Resolver, error) {
	if store == nil {
		return nil, fmt.Errorf("nil store")
	}
	if strings.TrimSpace(timezone) == "" {
		timezone = models.DefaultTimezone
	}
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		store:    store,
		profiles: profiles,
		timezone: timezone,
		log:      log,
		locks:    make(map[string]*sync.Mutex),
	}, nil
}

func (r *Resolver) Resolve(ctx context.Context, lineID string, opts ResolveOptions) (*models.Identity, error) {
	lineID = strings.TrimSpace(lineID)
	if lineID == "" {
		return nil, fmt.Errorf("line id is required")
	}

	identity, err := r.store.FindIdentityByLineID(ctx, lineID)
	if err == nil {
		if opts.ForceProfile {
			r.refreshProfile(ctx, identity)
		}
		return identity, nil
	}
	if !errors.Is(err, ErrIdentityNotFound) {
		return nil, err
	}

	lock := r.lockFor(lineID)
	lock.Lock()
	defer lock.Unlock()

	// Another resolution may have created the row while we waited.
	identity, err = r.store.FindIdentityByLineID(ctx, lineID)
	if err == nil {
		if opts.ForceProfile {
			r.refreshProfile(ctx, identity)
		}
		return identity, nil
	}
	if !errors.Is(err, ErrIdentityNotFound) {
		return nil, err
	}

	kind := strings.TrimSpace(opts.Kind)
	if kind == "" {
		kind = models.IdentityKindUser
	}

	displayName := ""
	avatarURL := ""
	if kind == models.IdentityKindUser {
		displayName, avatarURL = r.fetchProfile(ctx, lineID)
	}

	created := &models.Identity{
		LineID:      lineID,
		Kind:        kind,
		DisplayName: displayName,
		AvatarURL:   avatarURL,
		Timezone:    r.timezone,
	}
	err = r.store.CreateIdentity(ctx, created)
	if err == nil {
		r.log.Info("identity_created", "line_id", lineID, "kind", kind)
		return created, nil
	}
	if errors.Is(err, ErrDuplicateLineID) {
		// Lost a cross-process race; exactly one row exists, fetch it.
		return r.store.FindIdentityByLineID(ctx, lineID)
	}
	return nil, err
}

// fetchProfile returns the enriched display name and avatar, or the
// placeholder name when the platform lookup fails.
func (r *Resolver) fetchProfile(ctx context.Context, lineID string) (string, string) {
	if r.profiles == nil {
		return PlaceholderName, ""
	}
	profile, err := r.profiles.GetProfile(ctx, lineID)
	if err != nil {
		r.log.Warn("profile_fetch_failed", "line_id", lineID, "error", err.Error())
		return PlaceholderName, ""
	}
	return profile.DisplayName, profile.PictureURL
}

func (r *Resolver) refreshProfile(ctx context.Context, identity *models.Identity) {
	if r.profiles == nil || identity.Kind != models.IdentityKindUser {
		return
	}
	profile, err := r.profiles.GetProfile(ctx, identity.LineID)
	if err != nil {
		r.log.Warn("profile_fetch_failed", "line_id", identity.LineID, "error", err.Error())
		return
	}
	if err := r.store.UpdateIdentityProfile(ctx, identity.ID, profile.DisplayName, profile.PictureURL); err != nil {
		r.log.Warn("profile_update_failed", "line_id", identity.LineID, "error", err.Error())
		return
	}
	if profile.DisplayName != "" {
		identity.DisplayName = profile.DisplayName
	}
	if profile.PictureURL != "" {
		identity.AvatarURL = profile.PictureURL
	}
}

func (r *Resolver) lockFor(lineID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[lineID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[lineID] = lock
	}
	return lock
}
