// Package remote is the thin adapter over the hosted backend-as-a-service.
//
// The backend exposes sign-up/sign-in/sign-out, row CRUD on the personnel,
// messages, general_messages, and reports tables, object storage with public
// URLs, and a websocket channel delivering row-insert events filtered by
// table. This package wraps those surfaces with typed calls and maps every
// failure onto a small taxonomy:
//
//   - ErrUnavailable: network or server failure; callers degrade to the
//     local mirror
//   - ErrPermissionDenied: the backend's policy layer rejected the call,
//     including deletes that silently affected zero rows
//   - ErrBadCredentials: sign-in rejected
//
// Nothing here retries or falls back; degradation decisions belong to the
// mirror and identity layers.
package remote
