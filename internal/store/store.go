// ABOUTME: Store interface and data types for SCPNET local persistence
// ABOUTME: Defines User, Report, Message structs and the Store interface

package store

import (
	"context"
	"errors"
	"time"

	"github.com/scpnet/scpnet-client/internal/clearance"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmail is returned when registering an email that already exists
var ErrDuplicateEmail = errors.New("email already registered")

// User is a personnel record: identity plus authorization.
type User struct {
	ID           string
	Email        string
	Name         string
	Clearance    clearance.Level
	SuperAdmin   bool
	Approved     bool
	Title        string
	Department   string
	Site         string
	AvatarURL    string
	PasswordHash string // bcrypt, set only for local-registry accounts
	CreatedAt    time.Time

	// Simulated is a session-local preview clearance for the super-admin.
	// Never persisted to the backend.
	Simulated *clearance.Level
}

// Subject projects the user into the clearance model.
func (u *User) Subject() clearance.Subject {
	return clearance.Subject{
		ID:        u.ID,
		Real:      u.Clearance,
		Simulated: u.Simulated,
		SuperUser: u.SuperAdmin,
	}
}

// EntityID implements the mirror entity contract.
func (u *User) EntityID() string { return u.ID }

// Report type values
const (
	ReportIncident    = "INCIDENT"
	ReportObservation = "OBSERVATION"
	ReportAudit       = "AUDIT"
	ReportSecurity    = "SECURITY"
)

// Severity values for reports
const (
	SeverityLow      = "LOW"
	SeverityMedium   = "MEDIUM"
	SeverityHigh     = "HIGH"
	SeverityCritical = "CRITICAL"
)

// Report is an incident/observation record. AuthorClearance is captured at
// creation time, not looked up live, so visibility is stable even if the
// author is later promoted or terminated.
type Report struct {
	ID              string
	AuthorID        string
	AuthorName      string
	AuthorClearance clearance.Level
	Type            string // INCIDENT, OBSERVATION, AUDIT, SECURITY
	Severity        string // LOW, MEDIUM, HIGH, CRITICAL
	Title           string
	Content         string
	TargetID        string
	ImageURL        string
	CreatedAt       time.Time
	Archived        bool
}

// EntityID implements the mirror entity contract.
func (r *Report) EntityID() string { return r.ID }

// Message is a direct or broadcast chat message. Append-only; an empty
// ReceiverID means the general broadcast channel.
type Message struct {
	ID         string
	SenderID   string
	ReceiverID string
	Text       string
	ImageURL   string
	CreatedAt  time.Time
}

// EntityID implements the mirror entity contract.
func (m *Message) EntityID() string { return m.ID }

// Broadcast reports whether the message goes to the general channel.
func (m *Message) Broadcast() bool { return m.ReceiverID == "" }

// UserStore persists the local personnel registry and mirror.
type UserStore interface {
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpdateUser(ctx context.Context, user *User) error
	ListUsers(ctx context.Context) ([]*User, error)
	DeleteUser(ctx context.Context, id string) error
	ReplaceUsers(ctx context.Context, users []*User) error
}

// ReportStore persists the local report mirror.
type ReportStore interface {
	CreateReport(ctx context.Context, report *Report) error
	GetReport(ctx context.Context, id string) (*Report, error)
	ListReports(ctx context.Context) ([]*Report, error)
	DeleteReport(ctx context.Context, id string) error
	ReplaceReports(ctx context.Context, reports []*Report) error
}

// MessageStore persists the local message mirror. The channel argument is
// the receiver ID for direct messages or empty for the broadcast channel.
type MessageStore interface {
	CreateMessage(ctx context.Context, msg *Message) error
	ListMessages(ctx context.Context, channel string) ([]*Message, error)
	ReplaceMessages(ctx context.Context, channel string, msgs []*Message) error
}

// KVStore is the process-wide key to JSON-string mapping used for the
// session cache and other small persisted state. Readers tolerate missing
// keys and malformed values.
type KVStore interface {
	SetValue(ctx context.Context, key string, value []byte) error
	GetValue(ctx context.Context, key string) ([]byte, error)
	DeleteValue(ctx context.Context, key string) error
}

// Store is the full local persistence surface.
type Store interface {
	UserStore
	ReportStore
	MessageStore
	KVStore

	// Close releases any resources held by the store
	Close() error
}
