// ABOUTME: Pure clearance model: masking, effective level, and visibility predicates
// ABOUTME: All authorization decisions in SCPNET funnel through this package

package clearance

// Level is an ordinal security clearance, 1 (lowest) through 6 (OMNI).
type Level int

const (
	Level1 Level = 1
	Level2 Level = 2
	Level3 Level = 3
	Level4 Level = 4
	Level5 Level = 5
	Omni   Level = 6
)

// MinLevel and MaxLevel bound the valid clearance range.
const (
	MinLevel = Level1
	MaxLevel = Omni
)

// MaskedAdminID is the one account whose true clearance of 6 is always
// displayed as 4. Authorization still uses the true value; only
// presentation changes.
const MaskedAdminID = "O5-THETA"

// Valid reports whether l is within the defined clearance range.
func (l Level) Valid() bool {
	return l >= MinLevel && l <= MaxLevel
}

// IsAdmin reports whether l grants personnel-administration rights.
func (l Level) IsAdmin() bool {
	return l >= Level5
}

// IsOmni reports whether l is the top OMNI clearance, a superset of level 5.
func (l Level) IsOmni() bool {
	return l == Omni
}

// String returns the display form, e.g. "LEVEL 3" or "OMNI".
func (l Level) String() string {
	switch l {
	case Level1:
		return "LEVEL 1"
	case Level2:
		return "LEVEL 2"
	case Level3:
		return "LEVEL 3"
	case Level4:
		return "LEVEL 4"
	case Level5:
		return "LEVEL 5"
	case Omni:
		return "OMNI"
	default:
		return "UNKNOWN"
	}
}

// Subject is the minimal identity the clearance model operates on.
// Real is the persisted, authorizing clearance. Simulated, when non-nil,
// is a session-local preview value available only to the super-admin;
// it can narrow a view but never widen it.
type Subject struct {
	ID        string
	Real      Level
	Simulated *Level
	SuperUser bool
}

// Effective returns the clearance used for data-visibility decisions:
// the lower of the real and simulated values. Without a simulation it is
// simply the real clearance.
func (s Subject) Effective() Level {
	if s.Simulated != nil && *s.Simulated < s.Real {
		return *s.Simulated
	}
	return s.Real
}

// NavLevel returns the clearance used for navigation gating. Navigation is
// a presentation affordance, so the simulated value applies on its own.
func (s Subject) NavLevel() Level {
	if s.Simulated != nil {
		return *s.Simulated
	}
	return s.Real
}

// Masked returns the clearance to display for an account. The masked admin,
// whose true clearance is 6, is shown as 4 everywhere; every other account
// shows its real value. Call this at every rendering boundary; the result
// must never feed back into an authorization decision.
func Masked(id string, real Level) Level {
	if id == MaskedAdminID && real == Omni {
		return Level4
	}
	return real
}

// NavItem identifies a gated navigation destination.
type NavItem string

const (
	NavOverview  NavItem = "overview"
	NavProfile   NavItem = "profile"
	NavArchive   NavItem = "archive"
	NavReports   NavItem = "reports"
	NavComms     NavItem = "comms"
	NavTerminal  NavItem = "terminal"
	NavPersonnel NavItem = "personnel"
	NavGuide     NavItem = "guide"
)

// navMinimums maps each navigation item to the minimum clearance required.
var navMinimums = map[NavItem]Level{
	NavOverview:  Level1,
	NavProfile:   Level1,
	NavArchive:   Level2,
	NavReports:   Level2,
	NavComms:     Level3,
	NavTerminal:  Level4,
	NavPersonnel: Level5,
	NavGuide:     Level1,
}

// NavVisible reports whether a subject sees a navigation item. Unknown
// items are hidden.
func NavVisible(s Subject, item NavItem) bool {
	min, ok := navMinimums[item]
	if !ok {
		return false
	}
	return s.NavLevel() >= min
}

// ReportVisible reports whether a viewer may see a report. Authors always
// see their own reports. Admin-level viewers (real clearance >= 5) see
// everything. Otherwise the viewer's effective clearance must meet the
// author clearance captured when the report was filed. Reports above the
// viewer's clearance are invisible, not redacted.
func ReportVisible(viewer Subject, authorID string, authorClearance Level) bool {
	if viewer.ID == authorID {
		return true
	}
	if viewer.Real.IsAdmin() {
		return true
	}
	return viewer.Effective() >= authorClearance
}

// ReportDeletable reports whether a viewer may delete a report. Only the
// report's author and admin-level viewers may. Authorization uses the real
// clearance; a simulated downgrade never blocks an admin's own writes.
func ReportDeletable(viewer Subject, authorID string) bool {
	return viewer.ID == authorID || viewer.Real.IsAdmin()
}

// ContactVisible reports whether a candidate appears in a viewer's contact
// directory. Non-admin viewers only ever see admin-level personnel; admins
// see everyone but themselves.
func ContactVisible(viewer Subject, candidateID string, candidateClearance Level) bool {
	if candidateID == viewer.ID {
		return false
	}
	if viewer.Real.IsAdmin() {
		return true
	}
	return candidateClearance.IsAdmin()
}
