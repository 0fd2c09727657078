// ABOUTME: Concrete mirrored sets for personnel, reports, and messages
// ABOUTME: Wires the backend tables and the SQLite mirror into generic sets

package mirror

import (
	"context"
	"errors"
	"log/slog"

	"github.com/scpnet/scpnet-client/internal/remote"
	"github.com/scpnet/scpnet-client/internal/store"
)

// Topic names double as broadcaster topics and log labels.
const (
	SetPersonnel = "personnel"
	SetReports   = "reports"
	SetMessages  = "messages"
)

// NewPersonnelSet mirrors the personnel directory. Pass a nil client for
// local-only mode.
func NewPersonnelSet(rc *remote.Client, st store.Store, token TokenFunc, logger *slog.Logger) *Set[*store.User] {
	var ops *RemoteOps[*store.User]
	if rc != nil {
		ops = &RemoteOps[*store.User]{
			List: rc.ListPersonnel,
			Insert: func(ctx context.Context, tok string, u *store.User) error {
				return rc.UpsertPersonnel(ctx, tok, u)
			},
			Delete: rc.DeletePersonnel,
		}
	}
	local := LocalOps[*store.User]{
		List:    st.ListUsers,
		Insert:  func(ctx context.Context, u *store.User) error { return upsertUser(ctx, st, u) },
		Delete:  func(ctx context.Context, id string) error { return notFoundOK(st.DeleteUser(ctx, id)) },
		Replace: st.ReplaceUsers,
	}
	return NewSet(SetPersonnel, ops, local, token, logger)
}

// NewReportSet mirrors the incident report archive.
func NewReportSet(rc *remote.Client, st store.Store, token TokenFunc, logger *slog.Logger) *Set[*store.Report] {
	var ops *RemoteOps[*store.Report]
	if rc != nil {
		ops = &RemoteOps[*store.Report]{
			List:   rc.ListReports,
			Insert: rc.InsertReport,
			Delete: rc.DeleteReport,
		}
	}
	local := LocalOps[*store.Report]{
		List:    st.ListReports,
		Insert:  st.CreateReport,
		Delete:  func(ctx context.Context, id string) error { return notFoundOK(st.DeleteReport(ctx, id)) },
		Replace: st.ReplaceReports,
	}
	return NewSet(SetReports, ops, local, token, logger)
}

// NewMessageSet mirrors one message channel: the broadcast channel when
// channel is empty, otherwise the direct channel for that receiver.
// Message rows are append-only so the backend delete is unbound.
func NewMessageSet(rc *remote.Client, st store.Store, token TokenFunc, logger *slog.Logger, channel string) *Set[*store.Message] {
	var ops *RemoteOps[*store.Message]
	if rc != nil {
		ops = &RemoteOps[*store.Message]{
			List: func(ctx context.Context, tok string) ([]*store.Message, error) {
				return rc.ListMessages(ctx, tok, channel)
			},
			Insert: rc.InsertMessage,
		}
	}
	local := LocalOps[*store.Message]{
		List: func(ctx context.Context) ([]*store.Message, error) {
			return st.ListMessages(ctx, channel)
		},
		Insert: st.CreateMessage,
		Delete: func(ctx context.Context, id string) error { return store.ErrNotFound },
		Replace: func(ctx context.Context, msgs []*store.Message) error {
			return st.ReplaceMessages(ctx, channel, msgs)
		},
	}
	name := SetMessages
	if channel != "" {
		name = SetMessages + ":" + channel
	}
	return NewSet(name, ops, local, token, logger)
}

// upsertUser inserts a directory row, falling back to an update when the
// email is already present. Keeps realtime redelivery idempotent for
// personnel, whose primary insert path is not OR IGNORE.
func upsertUser(ctx context.Context, st store.Store, u *store.User) error {
	err := st.CreateUser(ctx, u)
	if errors.Is(err, store.ErrDuplicateEmail) {
		return st.UpdateUser(ctx, u)
	}
	return err
}

// notFoundOK swallows missing-row errors from mirror deletes. The backend
// already confirmed the removal; an absent mirror row is the same outcome.
func notFoundOK(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}
