// Package identity is the adapter over authentication and the personnel
// directory.
//
// With a configured backend it authenticates remotely and mirrors personnel
// locally; without one (or when the backend is unreachable) it runs against
// the local registry with bcrypt-hashed passwords and locally minted session
// tokens. Policy applied here, independent of mode:
//
//   - Registration forces clearance 1 / unapproved for every address except
//     SuperAdminEmail, which is always clearance 6, super-admin, approved.
//   - Approval is re-checked on every login; an unapproved login tears down
//     any backend session it created.
//   - The super-admin is never locked out: a policy error fetching that one
//     profile synthesizes a full-access recovery identity instead of failing.
//
// Successful login persists the user to the session store; registration
// never does.
package identity
