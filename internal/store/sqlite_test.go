// ABOUTME: Tests for the SQLite mirror store
// ABOUTME: Covers user, report, and message CRUD plus replace semantics

package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scpnet/scpnet-client/internal/clearance"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		s.Close()
	})

	return s
}

func testUser(id string, level clearance.Level) *User {
	return &User{
		ID:        id,
		Email:     id + "@site19.scp",
		Name:      "Agent " + id,
		Clearance: level,
		Approved:  true,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestStore_CreateUser(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	user := testUser("u1", clearance.Level2)
	user.Title = "Field Agent"
	user.Department = "Mobile Task Forces"
	require.NoError(t, s.CreateUser(ctx, user))

	got, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1@site19.scp", got.Email)
	assert.Equal(t, clearance.Level2, got.Clearance)
	assert.Equal(t, "Field Agent", got.Title)
	assert.True(t, got.Approved)
}

func TestStore_CreateUser_DuplicateEmail(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, testUser("u1", clearance.Level1)))

	dup := testUser("u2", clearance.Level1)
	dup.Email = "u1@site19.scp"
	err := s.CreateUser(ctx, dup)
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestStore_GetUserByEmail_CaseInsensitive(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	user := testUser("u1", clearance.Level3)
	user.Email = "Agent.One@Site19.SCP"
	require.NoError(t, s.CreateUser(ctx, user))

	got, err := s.GetUserByEmail(ctx, "agent.one@site19.scp")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)
}

func TestStore_GetUser_NotFound(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.GetUser(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_UpdateUser(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	user := testUser("u1", clearance.Level1)
	require.NoError(t, s.CreateUser(ctx, user))

	user.Clearance = clearance.Level4
	user.Approved = true
	user.Site = "Site-19"
	require.NoError(t, s.UpdateUser(ctx, user))

	got, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, clearance.Level4, got.Clearance)
	assert.Equal(t, "Site-19", got.Site)
}

func TestStore_UpdateUser_NotFound(t *testing.T) {
	s := setupTestStore(t)

	err := s.UpdateUser(context.Background(), testUser("ghost", clearance.Level1))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_DeleteUser(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, testUser("u1", clearance.Level1)))
	require.NoError(t, s.DeleteUser(ctx, "u1"))

	_, err := s.GetUser(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.DeleteUser(ctx, "u1"), ErrNotFound)
}

func TestStore_ReplaceUsers_KeepsRegistryRows(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	// Local-registry account with a password hash survives mirror refreshes.
	local := testUser("local", clearance.Level1)
	local.Email = "local@site19.scp"
	local.PasswordHash = "$2a$10$fakehash"
	require.NoError(t, s.CreateUser(ctx, local))

	// Mirrored account gets replaced.
	stale := testUser("stale", clearance.Level2)
	require.NoError(t, s.CreateUser(ctx, stale))

	fresh := []*User{testUser("fresh", clearance.Level3)}
	require.NoError(t, s.ReplaceUsers(ctx, fresh))

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)

	ids := []string{users[0].ID, users[1].ID}
	assert.Contains(t, ids, "local")
	assert.Contains(t, ids, "fresh")
}

func testReport(id string, authorID string, level clearance.Level) *Report {
	return &Report{
		ID:              id,
		AuthorID:        authorID,
		AuthorName:      "Agent " + authorID,
		AuthorClearance: level,
		Type:            ReportIncident,
		Severity:        SeverityMedium,
		Title:           "Containment breach",
		Content:         "Subject breached primary containment at 0300.",
		CreatedAt:       time.Now().UTC().Truncate(time.Second),
	}
}

func TestStore_Report_RoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	report := testReport("r1", "u1", clearance.Level3)
	require.NoError(t, s.CreateReport(ctx, report))

	got, err := s.GetReport(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, clearance.Level3, got.AuthorClearance)
	assert.Equal(t, ReportIncident, got.Type)
	assert.Equal(t, report.CreatedAt, got.CreatedAt)

	// Appears exactly once in the listing.
	reports, err := s.ListReports(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "r1", reports[0].ID)
}

func TestStore_CreateReport_DuplicateIDIgnored(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	report := testReport("r1", "u1", clearance.Level3)
	require.NoError(t, s.CreateReport(ctx, report))
	require.NoError(t, s.CreateReport(ctx, report))

	reports, err := s.ListReports(ctx)
	require.NoError(t, err)
	assert.Len(t, reports, 1)
}

func TestStore_ListReports_NewestFirst(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		report := testReport(fmt.Sprintf("r%d", i), "u1", clearance.Level2)
		report.CreatedAt = time.Date(2026, 1, 1+i, 0, 0, 0, 0, time.UTC)
		require.NoError(t, s.CreateReport(ctx, report))
	}

	reports, err := s.ListReports(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 3)
	assert.Equal(t, "r2", reports[0].ID)
	assert.Equal(t, "r0", reports[2].ID)
}

func TestStore_DeleteReport_NotFound(t *testing.T) {
	s := setupTestStore(t)

	err := s.DeleteReport(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ReplaceReports(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateReport(ctx, testReport("stale", "u1", clearance.Level1)))

	fresh := []*Report{
		testReport("r1", "u2", clearance.Level2),
		testReport("r2", "u3", clearance.Level5),
	}
	require.NoError(t, s.ReplaceReports(ctx, fresh))

	reports, err := s.ListReports(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 2)

	_, err = s.GetReport(ctx, "stale")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Messages_ChannelSeparation(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	broadcast := &Message{ID: "m1", SenderID: "u1", Text: "site-wide notice", CreatedAt: time.Now().UTC()}
	direct := &Message{ID: "m2", SenderID: "u1", ReceiverID: "u2", Text: "psst", CreatedAt: time.Now().UTC()}
	require.NoError(t, s.CreateMessage(ctx, broadcast))
	require.NoError(t, s.CreateMessage(ctx, direct))

	general, err := s.ListMessages(ctx, "")
	require.NoError(t, err)
	require.Len(t, general, 1)
	assert.Equal(t, "m1", general[0].ID)
	assert.True(t, general[0].Broadcast())

	dm, err := s.ListMessages(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, dm, 1)
	assert.Equal(t, "m2", dm[0].ID)
}

func TestStore_CreateMessage_DuplicateIDIgnored(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	msg := &Message{ID: "m1", SenderID: "u1", Text: "hello", CreatedAt: time.Now().UTC()}
	require.NoError(t, s.CreateMessage(ctx, msg))
	require.NoError(t, s.CreateMessage(ctx, msg))

	msgs, err := s.ListMessages(ctx, "")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestStore_ReplaceMessages_ScopedToChannel(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateMessage(ctx, &Message{ID: "m1", SenderID: "u1", Text: "general", CreatedAt: time.Now().UTC()}))
	require.NoError(t, s.CreateMessage(ctx, &Message{ID: "m2", SenderID: "u1", ReceiverID: "u2", Text: "dm", CreatedAt: time.Now().UTC()}))

	require.NoError(t, s.ReplaceMessages(ctx, "", []*Message{
		{ID: "m3", SenderID: "u3", Text: "fresh general", CreatedAt: time.Now().UTC()},
	}))

	general, err := s.ListMessages(ctx, "")
	require.NoError(t, err)
	require.Len(t, general, 1)
	assert.Equal(t, "m3", general[0].ID)

	// The direct channel is untouched.
	dm, err := s.ListMessages(ctx, "u2")
	require.NoError(t, err)
	assert.Len(t, dm, 1)
}

func TestStore_KV(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.GetValue(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SetValue(ctx, "session", []byte(`{"id":"u1"}`)))
	got, err := s.GetValue(ctx, "session")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"id":"u1"}`), got)

	// Overwrite replaces.
	require.NoError(t, s.SetValue(ctx, "session", []byte(`{"id":"u2"}`)))
	got, err = s.GetValue(ctx, "session")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"id":"u2"}`), got)

	// Delete is idempotent.
	require.NoError(t, s.DeleteValue(ctx, "session"))
	require.NoError(t, s.DeleteValue(ctx, "session"))
	_, err = s.GetValue(ctx, "session")
	assert.ErrorIs(t, err, ErrNotFound)
}
