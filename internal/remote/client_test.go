// ABOUTME: Unit tests for the backend client using httptest servers
// ABOUTME: Covers auth flows, table CRUD, error taxonomy, and delete row counts

package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scpnet/scpnet-client/internal/clearance"
	"github.com/scpnet/scpnet-client/internal/store"
)

func TestClient_SignIn(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/v1/token", r.URL.Path)
		require.Equal(t, "password", r.URL.Query().Get("grant_type"))
		require.Equal(t, "anon-key", r.Header.Get("apikey"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "agent@site19.scp", body["email"])

		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-123",
			"user":         map[string]string{"id": "u1", "email": "agent@site19.scp"},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "anon-key")
	sess, err := c.SignIn(context.Background(), "agent@site19.scp", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "u1", sess.UserID)
	assert.Equal(t, "tok-123", sess.AccessToken)
}

func TestClient_SignIn_BadCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"message": "Invalid login credentials"})
	}))
	defer srv.Close()

	c := New(srv.URL, "anon-key")
	_, err := c.SignIn(context.Background(), "agent@site19.scp", "wrong")
	assert.ErrorIs(t, err, ErrBadCredentials)
}

func TestClient_Unreachable(t *testing.T) {
	// A server that is already closed behaves like a dead backend.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := New(srv.URL, "anon-key")
	_, err := c.ListReports(context.Background(), "tok")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestClient_PermissionDenied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]string{"message": "row-level security violation"})
	}))
	defer srv.Close()

	c := New(srv.URL, "anon-key")
	_, err := c.ListPersonnel(context.Background(), "tok")
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestClient_ListReports(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rest/v1/reports", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode([]map[string]any{
			{
				"id": "r1", "author_id": "u1", "author_name": "Agent One",
				"author_clearance": 4, "type": "INCIDENT", "severity": "HIGH",
				"title": "Breach", "content": "...", "created_at": "2026-08-30T12:00:00Z",
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "anon-key")
	reports, err := c.ListReports(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, clearance.Level4, reports[0].AuthorClearance)
	assert.Equal(t, store.ReportIncident, reports[0].Type)
}

func TestClient_GetPersonnel_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("[]"))
	}))
	defer srv.Close()

	c := New(srv.URL, "anon-key")
	_, err := c.GetPersonnel(context.Background(), "tok", "ghost")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestClient_DeleteReport_ZeroRowsIsPolicyFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		// Policy layer silently no-ops: success status, zero rows.
		w.Header().Set("Content-Range", "*/0")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(srv.URL, "anon-key")
	err := c.DeleteReport(context.Background(), "tok", "r1")
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestClient_DeleteReport_Affected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Range", "*/1")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(srv.URL, "anon-key")
	assert.NoError(t, c.DeleteReport(context.Background(), "tok", "r1"))
}

func TestClient_InsertMessage_TableRouting(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := New(srv.URL, "anon-key")
	ctx := context.Background()

	require.NoError(t, c.InsertMessage(ctx, "tok", &store.Message{ID: "m1", SenderID: "u1", Text: "all"}))
	require.NoError(t, c.InsertMessage(ctx, "tok", &store.Message{ID: "m2", SenderID: "u1", ReceiverID: "u2", Text: "dm"}))

	require.Len(t, paths, 2)
	assert.Equal(t, "/rest/v1/general_messages", paths[0])
	assert.Equal(t, "/rest/v1/messages", paths[1])
}

func TestClient_UploadAttachment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/storage/v1/object/attachments/scp/evidence.png", r.URL.Path)
		require.Equal(t, "image/png", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "anon-key")
	url, err := c.UploadAttachment(context.Background(), "tok", "scp/evidence.png", "image/png", []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/storage/v1/object/public/attachments/scp/evidence.png", url)
}

func TestRowsAffected(t *testing.T) {
	tests := []struct {
		header string
		want   int64
	}{
		{"*/0", 0},
		{"*/5", 5},
		{"0-4/5", 5},
		{"", -1},
		{"garbage", -1},
	}

	for _, tt := range tests {
		resp := &http.Response{Header: http.Header{}}
		if tt.header != "" {
			resp.Header.Set("Content-Range", tt.header)
		}
		assert.Equal(t, tt.want, rowsAffected(resp), "header %q", tt.header)
	}
}
