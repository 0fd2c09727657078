// ABOUTME: Personnel directory mutations: profile edits, clearance changes, termination
// ABOUTME: Enforces the owner/admin policy and the degraded local-write path

package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/scpnet/scpnet-client/internal/remote"
	"github.com/scpnet/scpnet-client/internal/store"
)

// ApplyScope says where a mutation landed.
type ApplyScope string

const (
	// ApplyRemote: the backend accepted the write; the mirror was updated too.
	ApplyRemote ApplyScope = "remote"
	// ApplyLocal: the write exists only in the local mirror and is visibly
	// not propagated.
	ApplyLocal ApplyScope = "local"
)

// UpdatePersonnel applies changes to a personnel record. The owning user may
// edit profile fields (title, department, site, avatar, name); a user with
// real clearance >= 5 may edit any field, including clearance and approval.
// When the backend rejects or is unreachable, the write degrades to the
// local mirror and the returned scope says so.
func (a *Adapter) UpdatePersonnel(ctx context.Context, updated *store.User) (ApplyScope, error) {
	actor := a.CurrentUser(ctx)
	if actor == nil {
		return "", ErrAuthRejected
	}

	target, err := a.store.GetUser(ctx, updated.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", err
	}

	admin := actor.Clearance.IsAdmin()
	if !admin {
		if actor.ID != updated.ID {
			return "", fmt.Errorf("%w: clearance 5 required to edit other personnel", ErrNotAuthorized)
		}
		if target == nil {
			return "", store.ErrNotFound
		}
		// Owners touch profile fields only; authorization fields stay put.
		updated = profileOnly(target, updated)
	}
	if !updated.Clearance.Valid() {
		return "", fmt.Errorf("%w: invalid clearance %d", ErrNotAuthorized, int(updated.Clearance))
	}
	forceSuperAdmin(updated)

	scope := ApplyLocal
	if a.remote != nil {
		rec := a.sessions.Current(ctx)
		err := a.remote.UpsertPersonnel(ctx, rec.AccessToken, updated)
		switch {
		case err == nil:
			scope = ApplyRemote
		case errors.Is(err, remote.ErrUnavailable), errors.Is(err, remote.ErrPermissionDenied):
			a.logger.Warn("personnel write degraded to local mirror", "user_id", updated.ID, "error", err)
		default:
			return "", err
		}
	}

	if target == nil {
		err = a.store.CreateUser(ctx, updated)
	} else {
		updated.PasswordHash = target.PasswordHash
		err = a.store.UpdateUser(ctx, updated)
	}
	if err != nil {
		return "", fmt.Errorf("updating local record: %w", err)
	}

	a.logger.Info("personnel updated", "user_id", updated.ID, "scope", string(scope))
	return scope, nil
}

// profileOnly copies editable profile fields from edit onto a copy of base.
func profileOnly(base, edit *store.User) *store.User {
	out := *base
	out.Name = edit.Name
	out.Title = edit.Title
	out.Department = edit.Department
	out.Site = edit.Site
	out.AvatarURL = edit.AvatarURL
	return &out
}

// Terminate deletes a personnel record. Admin only. Unlike profile writes,
// deletion never degrades: a backend policy refusal (including a silent
// zero-row delete) or an unreachable backend is a hard failure, and the
// local mirror keeps the record.
func (a *Adapter) Terminate(ctx context.Context, id string) error {
	actor := a.CurrentUser(ctx)
	if actor == nil {
		return ErrAuthRejected
	}
	if !actor.Clearance.IsAdmin() {
		return fmt.Errorf("%w: clearance 5 required for termination", ErrNotAuthorized)
	}
	if id == actor.ID {
		return fmt.Errorf("%w: cannot terminate own account", ErrNotAuthorized)
	}

	if a.remote != nil {
		rec := a.sessions.Current(ctx)
		if err := a.remote.DeletePersonnel(ctx, rec.AccessToken, id); err != nil {
			return err
		}
	}

	if err := a.store.DeleteUser(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	a.logger.Info("personnel terminated", "user_id", id, "by", actor.ID)
	return nil
}

// Approve marks an account approved. Admin only. Shares the degraded-write
// behavior of UpdatePersonnel.
func (a *Adapter) Approve(ctx context.Context, id string) (ApplyScope, error) {
	actor := a.CurrentUser(ctx)
	if actor == nil {
		return "", ErrAuthRejected
	}
	if !actor.Clearance.IsAdmin() {
		return "", fmt.Errorf("%w: clearance 5 required for approval", ErrNotAuthorized)
	}

	target, err := a.store.GetUser(ctx, id)
	if err != nil {
		return "", err
	}
	target.Approved = true
	return a.UpdatePersonnel(ctx, target)
}
