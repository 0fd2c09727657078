// ABOUTME: Generic remote-backed entity set with a local SQLite mirror
// ABOUTME: Reads prefer the backend and fall back to the mirror on failure

package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/scpnet/scpnet-client/internal/remote"
)

// Entity is any record a set can mirror. The ID is stable across the
// backend and the local mirror and drives realtime de-duplication.
type Entity interface {
	EntityID() string
}

// Status reports where a set's reads are currently served from.
type Status string

const (
	// StatusRemote means the last backend read succeeded.
	StatusRemote Status = "remote"
	// StatusDegraded means the backend rejected or failed the last read
	// and the set is serving the local mirror until a refresh succeeds.
	StatusDegraded Status = "degraded"
	// StatusLocalOnly means the set was built without a backend client.
	StatusLocalOnly Status = "local-only"
)

// TokenFunc yields the access token for backend calls. Returning an empty
// string sends the request with only the shared API key.
type TokenFunc func(ctx context.Context) string

// RemoteOps binds a set to its backend table. Delete may be nil for
// append-only tables.
type RemoteOps[T Entity] struct {
	List   func(ctx context.Context, token string) ([]T, error)
	Insert func(ctx context.Context, token string, item T) error
	Delete func(ctx context.Context, token, id string) error
}

// LocalOps binds a set to its mirror tables. Insert must be idempotent on
// the entity ID so realtime redelivery is harmless.
type LocalOps[T Entity] struct {
	List    func(ctx context.Context) ([]T, error)
	Insert  func(ctx context.Context, item T) error
	Delete  func(ctx context.Context, id string) error
	Replace func(ctx context.Context, items []T) error
}

// Set is one mirrored entity collection. All methods are safe for
// concurrent use.
type Set[T Entity] struct {
	name   string
	remote *RemoteOps[T]
	local  LocalOps[T]
	token  TokenFunc
	events *Broadcaster[T]
	logger *slog.Logger

	mu     sync.Mutex
	status Status
	seen   map[string]struct{}
}

// NewSet builds a mirrored set. Pass a nil RemoteOps for local-only mode;
// pass nil logger for default.
func NewSet[T Entity](name string, remoteOps *RemoteOps[T], local LocalOps[T], token TokenFunc, logger *slog.Logger) *Set[T] {
	if logger == nil {
		logger = slog.Default()
	}
	if token == nil {
		token = func(context.Context) string { return "" }
	}
	status := StatusRemote
	if remoteOps == nil {
		status = StatusLocalOnly
	}
	return &Set[T]{
		name:   name,
		remote: remoteOps,
		local:  local,
		token:  token,
		events: NewBroadcaster[T](logger),
		logger: logger.With("set", name),
		status: status,
		seen:   make(map[string]struct{}),
	}
}

// Name returns the set's topic name.
func (s *Set[T]) Name() string { return s.name }

// Status reports where reads are currently served from.
func (s *Set[T]) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Subscribe registers for change events on this set. The subscription is
// removed when ctx is cancelled or Unsubscribe is called with the returned
// ID.
func (s *Set[T]) Subscribe(ctx context.Context) (<-chan Event[T], string) {
	return s.events.Subscribe(ctx, s.name)
}

// Unsubscribe removes a subscription created by Subscribe.
func (s *Set[T]) Unsubscribe(subID string) {
	s.events.Unsubscribe(s.name, subID)
}

// Close shuts down the set's event fan-out.
func (s *Set[T]) Close() {
	s.events.Close()
}

// List returns the current records. In remote mode a successful backend
// read replaces the local mirror wholesale; an unavailable or rejected
// backend degrades the set and serves the mirror instead.
func (s *Set[T]) List(ctx context.Context) ([]T, error) {
	if s.remote == nil {
		return s.local.List(ctx)
	}

	items, err := s.remote.List(ctx, s.token(ctx))
	if err != nil {
		if !degradable(err) {
			return nil, err
		}
		s.degrade("list", err)
		return s.local.List(ctx)
	}

	s.markRemote()
	s.remember(items)
	if rerr := s.local.Replace(ctx, items); rerr != nil {
		s.logger.Warn("mirror replace failed", "error", rerr)
	}
	return items, nil
}

// Create writes a record through to the backend and the mirror. When the
// backend is unreachable or rejects the insert, the record still lands in
// the mirror so it is not lost, and the set degrades until a refresh.
func (s *Set[T]) Create(ctx context.Context, item T) error {
	if s.remote != nil {
		err := s.remote.Insert(ctx, s.token(ctx), item)
		switch {
		case err == nil:
			s.markRemote()
		case degradable(err):
			s.degrade("create", err)
		default:
			return err
		}
	}

	if err := s.local.Insert(ctx, item); err != nil {
		return fmt.Errorf("mirror insert: %w", err)
	}
	s.remember([]T{item})
	s.events.Publish(s.name, Event[T]{Type: EventInsert, Item: item}, "")
	return nil
}

// Delete removes a record from the backend and the mirror. A backend
// rejection (including a silent zero-row no-op) leaves the mirror intact
// so the caller sees the same state the backend kept.
func (s *Set[T]) Delete(ctx context.Context, item T) error {
	id := item.EntityID()
	if s.remote != nil {
		if s.remote.Delete == nil {
			return fmt.Errorf("%s: %w", s.name, remote.ErrPermissionDenied)
		}
		err := s.remote.Delete(ctx, s.token(ctx), id)
		switch {
		case err == nil:
			s.markRemote()
		case errors.Is(err, remote.ErrUnavailable):
			s.degrade("delete", err)
		default:
			return err
		}
	}

	if err := s.local.Delete(ctx, id); err != nil {
		return fmt.Errorf("mirror delete: %w", err)
	}
	s.events.Publish(s.name, Event[T]{Type: EventDelete, Item: item}, "")
	return nil
}

// Refresh re-probes the backend. On success the mirror is replaced and the
// set returns to remote status; on failure it stays or becomes degraded.
// Local-only sets are unaffected.
func (s *Set[T]) Refresh(ctx context.Context) Status {
	if s.remote == nil {
		return StatusLocalOnly
	}

	items, err := s.remote.List(ctx, s.token(ctx))
	if err != nil {
		s.degrade("refresh", err)
		return StatusDegraded
	}

	s.markRemote()
	s.remember(items)
	if rerr := s.local.Replace(ctx, items); rerr != nil {
		s.logger.Warn("mirror replace failed", "error", rerr)
	}
	return StatusRemote
}

// Ingest applies one realtime insert. Records already seen by this set
// (from a prior list, a local create, or an earlier delivery) are dropped;
// new ones land in the mirror and fan out to subscribers.
func (s *Set[T]) Ingest(ctx context.Context, item T) {
	id := item.EntityID()

	s.mu.Lock()
	if _, dup := s.seen[id]; dup {
		s.mu.Unlock()
		s.logger.Debug("duplicate realtime record dropped", "entity_id", id)
		return
	}
	s.seen[id] = struct{}{}
	s.mu.Unlock()

	if err := s.local.Insert(ctx, item); err != nil {
		s.logger.Warn("mirror insert from realtime failed", "entity_id", id, "error", err)
	}
	s.events.Publish(s.name, Event[T]{Type: EventInsert, Item: item}, "")
}

// degradable reports whether a backend error should flip the set to the
// mirror rather than surface to the caller.
func degradable(err error) bool {
	return errors.Is(err, remote.ErrUnavailable) || errors.Is(err, remote.ErrPermissionDenied)
}

func (s *Set[T]) degrade(op string, err error) {
	s.mu.Lock()
	changed := s.status != StatusDegraded
	s.status = StatusDegraded
	s.mu.Unlock()
	if changed {
		s.logger.Warn("set degraded to local mirror", "op", op, "error", err)
	}
}

func (s *Set[T]) markRemote() {
	s.mu.Lock()
	s.status = StatusRemote
	s.mu.Unlock()
}

func (s *Set[T]) remember(items []T) {
	s.mu.Lock()
	for _, it := range items {
		s.seen[it.EntityID()] = struct{}{}
	}
	s.mu.Unlock()
}
