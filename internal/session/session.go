// ABOUTME: Session store: persists the authenticated identity across restarts
// ABOUTME: Single source of truth for "who is logged in"; tolerates corrupt data

package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/scpnet/scpnet-client/internal/clearance"
	"github.com/scpnet/scpnet-client/internal/store"
)

// sessionKey is the localstore key holding the current session.
const sessionKey = "scpnet.session"

// Record is the persisted session: the authenticated user plus the access
// token for the backend (remote token, or a locally minted JWT in local mode).
type Record struct {
	UserID      string           `json:"user_id"`
	Email       string           `json:"email"`
	Name        string           `json:"name"`
	Clearance   clearance.Level  `json:"clearance"`
	SuperAdmin  bool             `json:"super_admin"`
	Title       string           `json:"title,omitempty"`
	Department  string           `json:"department,omitempty"`
	Site        string           `json:"site,omitempty"`
	AvatarURL   string           `json:"avatar_url,omitempty"`
	Simulated   *clearance.Level `json:"simulated,omitempty"`
	AccessToken string           `json:"access_token,omitempty"`
	SavedAt     time.Time        `json:"saved_at"`
}

// User reconstructs the user object from the session record.
func (r *Record) User() *store.User {
	return &store.User{
		ID:         r.UserID,
		Email:      r.Email,
		Name:       r.Name,
		Clearance:  r.Clearance,
		SuperAdmin: r.SuperAdmin,
		Approved:   true, // approval is re-checked at login, not cached here
		Title:      r.Title,
		Department: r.Department,
		Site:       r.Site,
		AvatarURL:  r.AvatarURL,
		Simulated:  r.Simulated,
	}
}

// Store persists the current session in the local key-value store.
type Store struct {
	kv     store.KVStore
	logger *slog.Logger
}

// NewStore creates a session store backed by the given key-value store.
func NewStore(kv store.KVStore) *Store {
	return &Store{
		kv:     kv,
		logger: slog.Default().With("component", "session"),
	}
}

// Save persists the session record for the given user and token.
func (s *Store) Save(ctx context.Context, user *store.User, accessToken string) error {
	rec := Record{
		UserID:      user.ID,
		Email:       user.Email,
		Name:        user.Name,
		Clearance:   user.Clearance,
		SuperAdmin:  user.SuperAdmin,
		Title:       user.Title,
		Department:  user.Department,
		Site:        user.Site,
		AvatarURL:   user.AvatarURL,
		Simulated:   user.Simulated,
		AccessToken: accessToken,
		SavedAt:     time.Now().UTC(),
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	if err := s.kv.SetValue(ctx, sessionKey, data); err != nil {
		return err
	}

	s.logger.Debug("session saved", "user_id", user.ID)
	return nil
}

// Current returns the stored session, or nil when no session exists.
// Malformed stored data is treated as no session, never an error.
func (s *Store) Current(ctx context.Context) *Record {
	data, err := s.kv.GetValue(ctx, sessionKey)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Debug("session read failed", "error", err)
		}
		return nil
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		s.logger.Warn("discarding malformed session data", "error", err)
		return nil
	}
	if rec.UserID == "" {
		return nil
	}

	return &rec
}

// Clear removes the stored session. Clearing an absent session succeeds, so
// logout is idempotent.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.DeleteValue(ctx, sessionKey); err != nil {
		return err
	}
	s.logger.Debug("session cleared")
	return nil
}
