// Package clearance implements the SCPNET access-control model.
//
// Three distinct notions of clearance exist and must never be collapsed:
//
//   - Real clearance: the persisted, authorizing value on a personnel record.
//   - Simulated clearance: a session-local preview value the super-admin may
//     set to inspect lower-privilege views. Data decisions use
//     min(real, simulated); navigation gating uses the simulated value alone.
//   - Masked clearance: a cosmetic downgrade applied to one fixed identity
//     (MaskedAdminID) whose true OMNI clearance is displayed as level 4 at
//     every rendering boundary.
//
// All functions here are pure; the package holds no state and performs no IO.
package clearance
