// ABOUTME: Unit tests for the identity adapter in local and remote modes
// ABOUTME: Covers registration policy, approval gates, admin forcing, and recovery

package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scpnet/scpnet-client/internal/clearance"
	"github.com/scpnet/scpnet-client/internal/remote"
	"github.com/scpnet/scpnet-client/internal/session"
	"github.com/scpnet/scpnet-client/internal/store"
)

func setupLocalAdapter(t *testing.T) (*Adapter, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	sessions := session.NewStore(st)
	issuer := session.NewTokenIssuer([]byte("test-secret"))
	return New(nil, st, sessions, issuer), st
}

func TestRegister_SuperAdminEmail(t *testing.T) {
	// Scenario A: the fixed admin email is approved at clearance 6 immediately.
	a, st := setupLocalAdapter(t)
	ctx := context.Background()

	require.NoError(t, a.Register(ctx, SuperAdminEmail, "Overseer", "secret", 0))

	user, err := st.GetUserByEmail(ctx, SuperAdminEmail)
	require.NoError(t, err)
	assert.Equal(t, clearance.Omni, user.Clearance)
	assert.True(t, user.SuperAdmin)
	assert.True(t, user.Approved)
}

func TestRegister_RequestedClearanceDiscarded(t *testing.T) {
	// Scenario B: a requested level 4 lands at clearance 1, unapproved.
	a, st := setupLocalAdapter(t)
	ctx := context.Background()

	require.NoError(t, a.Register(ctx, "agent@site19.scp", "Agent", "secret", clearance.Level4))

	user, err := st.GetUserByEmail(ctx, "agent@site19.scp")
	require.NoError(t, err)
	assert.Equal(t, clearance.Level1, user.Clearance)
	assert.False(t, user.Approved)
	assert.False(t, user.SuperAdmin)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	a, _ := setupLocalAdapter(t)
	ctx := context.Background()

	require.NoError(t, a.Register(ctx, "agent@site19.scp", "Agent", "secret", 0))
	err := a.Register(ctx, "agent@site19.scp", "Imposter", "other", 0)
	assert.ErrorIs(t, err, store.ErrDuplicateEmail)
}

func TestRegister_NeverTouchesSession(t *testing.T) {
	a, _ := setupLocalAdapter(t)
	ctx := context.Background()

	require.NoError(t, a.Register(ctx, "agent@site19.scp", "Agent", "secret", 0))
	assert.Nil(t, a.CurrentUser(ctx))
}

func TestLogin_Local_ApprovalGate(t *testing.T) {
	// Scenario C: unapproved logins fail with an awaiting-approval result.
	a, _ := setupLocalAdapter(t)
	ctx := context.Background()

	require.NoError(t, a.Register(ctx, "agent@site19.scp", "Agent", "secret", 0))

	_, err := a.Login(ctx, "agent@site19.scp", "secret")
	assert.ErrorIs(t, err, ErrAwaitingApproval)
	assert.Nil(t, a.CurrentUser(ctx))
}

func TestLogin_Local_Success(t *testing.T) {
	a, st := setupLocalAdapter(t)
	ctx := context.Background()

	require.NoError(t, a.Register(ctx, "agent@site19.scp", "Agent", "secret", 0))
	user, err := st.GetUserByEmail(ctx, "agent@site19.scp")
	require.NoError(t, err)
	user.Approved = true
	require.NoError(t, st.UpdateUser(ctx, user))

	got, err := a.Login(ctx, "agent@site19.scp", "secret")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	// Session persisted with a verifiable local token.
	current := a.CurrentUser(ctx)
	require.NotNil(t, current)
	assert.Equal(t, user.ID, current.ID)
}

func TestLogin_Local_WrongPassword(t *testing.T) {
	a, _ := setupLocalAdapter(t)
	ctx := context.Background()

	require.NoError(t, a.Register(ctx, SuperAdminEmail, "Overseer", "secret", 0))

	_, err := a.Login(ctx, SuperAdminEmail, "wrong")
	assert.ErrorIs(t, err, ErrAuthRejected)

	_, err = a.Login(ctx, "nobody@site19.scp", "whatever")
	assert.ErrorIs(t, err, ErrAuthRejected)
}

func TestLogin_ForcesSuperAdmin(t *testing.T) {
	// Stored values are overridden for the fixed admin email on every login.
	a, st := setupLocalAdapter(t)
	ctx := context.Background()

	require.NoError(t, a.Register(ctx, SuperAdminEmail, "Overseer", "secret", 0))
	user, err := st.GetUserByEmail(ctx, SuperAdminEmail)
	require.NoError(t, err)
	user.Clearance = clearance.Level2
	user.SuperAdmin = false
	require.NoError(t, st.UpdateUser(ctx, user))

	got, err := a.Login(ctx, SuperAdminEmail, "secret")
	require.NoError(t, err)
	assert.Equal(t, clearance.Omni, got.Clearance)
	assert.True(t, got.SuperAdmin)
}

func TestLogout_Idempotent(t *testing.T) {
	a, st := setupLocalAdapter(t)
	ctx := context.Background()

	require.NoError(t, a.Register(ctx, SuperAdminEmail, "Overseer", "secret", 0))
	_, err := a.Login(ctx, SuperAdminEmail, "secret")
	require.NoError(t, err)
	_ = st

	require.NoError(t, a.Logout(ctx))
	assert.Nil(t, a.CurrentUser(ctx))

	require.NoError(t, a.Logout(ctx))
	assert.Nil(t, a.CurrentUser(ctx))
}

func TestRefreshSession_LocalExpiry(t *testing.T) {
	a, st := setupLocalAdapter(t)
	ctx := context.Background()

	sessions := session.NewStore(st)
	user := &store.User{ID: "u1", Email: "a@b.c", Name: "A", Clearance: clearance.Level1}
	require.NoError(t, sessions.Save(ctx, user, "garbage-token"))

	got, err := a.RefreshSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, got, "invalid token clears the session")
	assert.Nil(t, a.CurrentUser(ctx))
}

// fakeBackend is a minimal hosted-backend stand-in.
type fakeBackend struct {
	personnel      map[string]map[string]any // id -> row
	denyProfile    bool
	signedOut      int
	validCreds     map[string]string // email -> password
	authUserIDs    map[string]string // email -> id
	rejectValidate bool
}

func (f *fakeBackend) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	// Go 1.21's ServeMux has no method patterns; dispatch on r.Method here.
	byMethod := func(handlers map[string]http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if h, ok := handlers[r.Method]; ok {
				h(w, r)
				return
			}
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}

	mux.HandleFunc("/auth/v1/signup", byMethod(map[string]http.HandlerFunc{http.MethodPost: func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		id := "auth-" + body["email"]
		f.authUserIDs[body["email"]] = id
		f.validCreds[body["email"]] = body["password"]
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-" + id,
			"user":         map[string]string{"id": id, "email": body["email"]},
		})
	}}))

	mux.HandleFunc("/auth/v1/token", byMethod(map[string]http.HandlerFunc{http.MethodPost: func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if f.validCreds[body["email"]] != body["password"] {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"message": "Invalid login credentials"})
			return
		}
		id := f.authUserIDs[body["email"]]
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-" + id,
			"user":         map[string]string{"id": id, "email": body["email"]},
		})
	}}))

	mux.HandleFunc("/auth/v1/logout", byMethod(map[string]http.HandlerFunc{http.MethodPost: func(w http.ResponseWriter, r *http.Request) {
		f.signedOut++
		w.WriteHeader(http.StatusNoContent)
	}}))

	mux.HandleFunc("/auth/v1/user", byMethod(map[string]http.HandlerFunc{http.MethodGet: func(w http.ResponseWriter, r *http.Request) {
		if f.rejectValidate {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "whoever"})
	}}))

	mux.HandleFunc("/rest/v1/personnel", byMethod(map[string]http.HandlerFunc{http.MethodGet: func(w http.ResponseWriter, r *http.Request) {
		if f.denyProfile {
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]string{"message": "infinite recursion detected in policy"})
			return
		}
		idFilter := strings.TrimPrefix(r.URL.Query().Get("id"), "eq.")
		var rows []map[string]any
		for id, row := range f.personnel {
			if idFilter == "" || id == idFilter {
				rows = append(rows, row)
			}
		}
		if rows == nil {
			rows = []map[string]any{}
		}
		json.NewEncoder(w).Encode(rows)
	}, http.MethodPost: func(w http.ResponseWriter, r *http.Request) {
		var rows []map[string]any
		json.NewDecoder(r.Body).Decode(&rows)
		for _, row := range rows {
			f.personnel[row["id"].(string)] = row
		}
		w.WriteHeader(http.StatusCreated)
	}}))

	return mux
}

func setupRemoteAdapter(t *testing.T) (*Adapter, *fakeBackend, *store.SQLiteStore) {
	t.Helper()

	fb := &fakeBackend{
		personnel:   map[string]map[string]any{},
		validCreds:  map[string]string{},
		authUserIDs: map[string]string{},
	}
	srv := httptest.NewServer(fb.handler(t))
	t.Cleanup(srv.Close)

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	rc := remote.New(srv.URL, "anon-key")
	sessions := session.NewStore(st)
	issuer := session.NewTokenIssuer([]byte("test-secret"))
	return New(rc, st, sessions, issuer), fb, st
}

func TestRemote_RegisterAndLogin(t *testing.T) {
	a, fb, _ := setupRemoteAdapter(t)
	ctx := context.Background()

	require.NoError(t, a.Register(ctx, "agent@site19.scp", "Agent", "secret", clearance.Level3))

	// Registration wrote the personnel row with forced values.
	row := fb.personnel["auth-agent@site19.scp"]
	require.NotNil(t, row)
	assert.Equal(t, float64(1), row["clearance"])
	assert.Equal(t, false, row["is_approved"])

	// Unapproved: login rejected and the backend session signed out.
	_, err := a.Login(ctx, "agent@site19.scp", "secret")
	assert.ErrorIs(t, err, ErrAwaitingApproval)
	assert.Equal(t, 1, fb.signedOut)

	// Approve server-side and retry.
	row["is_approved"] = true
	user, err := a.Login(ctx, "agent@site19.scp", "secret")
	require.NoError(t, err)
	assert.Equal(t, "auth-agent@site19.scp", user.ID)
}

func TestRemote_AdminRecoveryIdentity(t *testing.T) {
	a, fb, _ := setupRemoteAdapter(t)
	ctx := context.Background()

	require.NoError(t, a.Register(ctx, SuperAdminEmail, "Overseer", "secret", 0))
	fb.denyProfile = true

	// Policy error on the profile fetch must not lock the admin out.
	user, err := a.Login(ctx, SuperAdminEmail, "secret")
	require.NoError(t, err)
	assert.Equal(t, clearance.Omni, user.Clearance)
	assert.True(t, user.SuperAdmin)
}

func TestRemote_ProfilePolicyError_OthersFailHard(t *testing.T) {
	a, fb, _ := setupRemoteAdapter(t)
	ctx := context.Background()

	require.NoError(t, a.Register(ctx, "agent@site19.scp", "Agent", "secret", 0))
	fb.denyProfile = true

	_, err := a.Login(ctx, "agent@site19.scp", "secret")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAwaitingApproval)
}

func TestRemote_RefreshSession_Revoked(t *testing.T) {
	a, fb, _ := setupRemoteAdapter(t)
	ctx := context.Background()

	require.NoError(t, a.Register(ctx, SuperAdminEmail, "Overseer", "secret", 0))
	_, err := a.Login(ctx, SuperAdminEmail, "secret")
	require.NoError(t, err)

	fb.rejectValidate = true
	user, err := a.RefreshSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, user, "revoked session must be cleared")
	assert.Nil(t, a.CurrentUser(ctx))
}

func TestSetSimulatedClearance(t *testing.T) {
	a, st := setupLocalAdapter(t)
	ctx := context.Background()

	require.NoError(t, a.Register(ctx, SuperAdminEmail, "Overseer", "secret", 0))
	_, err := a.Login(ctx, SuperAdminEmail, "secret")
	require.NoError(t, err)

	sim := clearance.Level2
	require.NoError(t, a.SetSimulatedClearance(ctx, &sim))

	user := a.CurrentUser(ctx)
	require.NotNil(t, user)
	require.NotNil(t, user.Simulated)
	assert.Equal(t, clearance.Level2, user.Subject().Effective())
	assert.Equal(t, clearance.Omni, user.Clearance, "real clearance untouched")

	// Clearing the simulation restores the full view.
	require.NoError(t, a.SetSimulatedClearance(ctx, nil))
	assert.Nil(t, a.CurrentUser(ctx).Simulated)

	// Non-super-admins cannot simulate.
	require.NoError(t, a.Register(ctx, "agent@site19.scp", "Agent", "secret", 0))
	agent, err := st.GetUserByEmail(ctx, "agent@site19.scp")
	require.NoError(t, err)
	agent.Approved = true
	require.NoError(t, st.UpdateUser(ctx, agent))
	_, err = a.Login(ctx, "agent@site19.scp", "secret")
	require.NoError(t, err)

	err = a.SetSimulatedClearance(ctx, &sim)
	assert.ErrorIs(t, err, ErrNotAuthorized)
}
