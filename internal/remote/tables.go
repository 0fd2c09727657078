// ABOUTME: Typed row CRUD on the backend tables: personnel, reports, messages
// ABOUTME: Deletes verify affected-row counts so silent policy no-ops surface

package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/scpnet/scpnet-client/internal/clearance"
	"github.com/scpnet/scpnet-client/internal/store"
)

// Backend table names.
const (
	TablePersonnel       = "personnel"
	TableMessages        = "messages"
	TableGeneralMessages = "general_messages"
	TableReports         = "reports"
)

type personnelRow struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Clearance  int    `json:"clearance"`
	IsApproved bool   `json:"is_approved"`
	Title      string `json:"title,omitempty"`
	Department string `json:"department,omitempty"`
	Site       string `json:"site,omitempty"`
	AvatarURL  string `json:"avatar_url,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"`
}

func (r personnelRow) user() *store.User {
	created, _ := time.Parse(time.RFC3339, r.CreatedAt)
	return &store.User{
		ID:         r.ID,
		Email:      r.Email,
		Name:       r.Name,
		Clearance:  clearance.Level(r.Clearance),
		Approved:   r.IsApproved,
		Title:      r.Title,
		Department: r.Department,
		Site:       r.Site,
		AvatarURL:  r.AvatarURL,
		CreatedAt:  created,
	}
}

func personnelFromUser(u *store.User) personnelRow {
	return personnelRow{
		ID:         u.ID,
		Email:      u.Email,
		Name:       u.Name,
		Clearance:  int(u.Clearance),
		IsApproved: u.Approved,
		Title:      u.Title,
		Department: u.Department,
		Site:       u.Site,
		AvatarURL:  u.AvatarURL,
		CreatedAt:  u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type reportRow struct {
	ID              string `json:"id"`
	AuthorID        string `json:"author_id"`
	AuthorName      string `json:"author_name"`
	AuthorClearance int    `json:"author_clearance"`
	Type            string `json:"type"`
	Severity        string `json:"severity"`
	Title           string `json:"title"`
	Content         string `json:"content"`
	TargetID        string `json:"target_id,omitempty"`
	ImageURL        string `json:"image_url,omitempty"`
	CreatedAt       string `json:"created_at,omitempty"`
	IsArchived      bool   `json:"is_archived"`
}

func (r reportRow) report() *store.Report {
	created, _ := time.Parse(time.RFC3339, r.CreatedAt)
	return &store.Report{
		ID:              r.ID,
		AuthorID:        r.AuthorID,
		AuthorName:      r.AuthorName,
		AuthorClearance: clearance.Level(r.AuthorClearance),
		Type:            r.Type,
		Severity:        r.Severity,
		Title:           r.Title,
		Content:         r.Content,
		TargetID:        r.TargetID,
		ImageURL:        r.ImageURL,
		CreatedAt:       created,
		Archived:        r.IsArchived,
	}
}

func reportFromStore(r *store.Report) reportRow {
	return reportRow{
		ID:              r.ID,
		AuthorID:        r.AuthorID,
		AuthorName:      r.AuthorName,
		AuthorClearance: int(r.AuthorClearance),
		Type:            r.Type,
		Severity:        r.Severity,
		Title:           r.Title,
		Content:         r.Content,
		TargetID:        r.TargetID,
		ImageURL:        r.ImageURL,
		CreatedAt:       r.CreatedAt.UTC().Format(time.RFC3339),
		IsArchived:      r.Archived,
	}
}

type messageRow struct {
	ID         string `json:"id"`
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id,omitempty"`
	Text       string `json:"text"`
	ImageURL   string `json:"image_url,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"`
}

func (r messageRow) message() *store.Message {
	created, _ := time.Parse(time.RFC3339, r.CreatedAt)
	return &store.Message{
		ID:         r.ID,
		SenderID:   r.SenderID,
		ReceiverID: r.ReceiverID,
		Text:       r.Text,
		ImageURL:   r.ImageURL,
		CreatedAt:  created,
	}
}

func messageFromStore(m *store.Message) messageRow {
	return messageRow{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Text:       m.Text,
		ImageURL:   m.ImageURL,
		CreatedAt:  m.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// ListPersonnel fetches all personnel rows.
func (c *Client) ListPersonnel(ctx context.Context, token string) ([]*store.User, error) {
	var rows []personnelRow
	if err := c.do(ctx, http.MethodGet, "/rest/v1/"+TablePersonnel+"?select=*", token, nil, &rows); err != nil {
		return nil, err
	}

	users := make([]*store.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.user())
	}
	return users, nil
}

// GetPersonnel fetches one personnel row by ID.
// Returns store.ErrNotFound when the row does not exist.
func (c *Client) GetPersonnel(ctx context.Context, token, id string) (*store.User, error) {
	path := "/rest/v1/" + TablePersonnel + "?select=*&id=eq." + url.QueryEscape(id)

	var rows []personnelRow
	if err := c.do(ctx, http.MethodGet, path, token, nil, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return rows[0].user(), nil
}

// UpsertPersonnel creates or updates a personnel row.
func (c *Client) UpsertPersonnel(ctx context.Context, token string, user *store.User) error {
	headers := map[string]string{"Prefer": "resolution=merge-duplicates"}
	_, err := c.doStatus(ctx, http.MethodPost, "/rest/v1/"+TablePersonnel, token, headers, []personnelRow{personnelFromUser(user)}, nil)
	return err
}

// DeletePersonnel removes a personnel row ("termination").
// A delete the policy layer silently ignored returns ErrPermissionDenied.
func (c *Client) DeletePersonnel(ctx context.Context, token, id string) error {
	return c.deleteRow(ctx, token, TablePersonnel, id)
}

// ListReports fetches all report rows the backend lets the token see.
func (c *Client) ListReports(ctx context.Context, token string) ([]*store.Report, error) {
	var rows []reportRow
	if err := c.do(ctx, http.MethodGet, "/rest/v1/"+TableReports+"?select=*&order=created_at.desc", token, nil, &rows); err != nil {
		return nil, err
	}

	reports := make([]*store.Report, 0, len(rows))
	for _, row := range rows {
		reports = append(reports, row.report())
	}
	return reports, nil
}

// InsertReport creates a report row.
func (c *Client) InsertReport(ctx context.Context, token string, report *store.Report) error {
	return c.do(ctx, http.MethodPost, "/rest/v1/"+TableReports, token, []reportRow{reportFromStore(report)}, nil)
}

// DeleteReport removes a report row, verifying a row was actually deleted.
func (c *Client) DeleteReport(ctx context.Context, token, id string) error {
	return c.deleteRow(ctx, token, TableReports, id)
}

// ListMessages fetches one channel's messages in chronological order.
// An empty channel selects the general broadcast table.
func (c *Client) ListMessages(ctx context.Context, token, channel string) ([]*store.Message, error) {
	path := "/rest/v1/" + TableGeneralMessages + "?select=*&order=created_at.asc"
	if channel != "" {
		path = "/rest/v1/" + TableMessages + "?select=*&order=created_at.asc&receiver_id=eq." + url.QueryEscape(channel)
	}

	var rows []messageRow
	if err := c.do(ctx, http.MethodGet, path, token, nil, &rows); err != nil {
		return nil, err
	}

	msgs := make([]*store.Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, row.message())
	}
	return msgs, nil
}

// InsertMessage appends a message row to the right table.
func (c *Client) InsertMessage(ctx context.Context, token string, msg *store.Message) error {
	table := TableGeneralMessages
	if !msg.Broadcast() {
		table = TableMessages
	}
	return c.do(ctx, http.MethodPost, "/rest/v1/"+table, token, []messageRow{messageFromStore(msg)}, nil)
}

// deleteRow deletes by ID and checks the affected-row count. Backends with
// row-level policies report success with zero rows when the caller lacks
// rights; that is a policy failure, not a clean delete.
func (c *Client) deleteRow(ctx context.Context, token, table, id string) error {
	path := fmt.Sprintf("/rest/v1/%s?id=eq.%s", table, url.QueryEscape(id))
	headers := map[string]string{"Prefer": "count=exact"}

	resp, err := c.doStatus(ctx, http.MethodDelete, path, token, headers, nil, nil)
	if err != nil {
		return err
	}

	if n := rowsAffected(resp); n == 0 {
		return fmt.Errorf("%w: delete affected no rows", ErrPermissionDenied)
	}

	c.logger.Debug("deleted row", "table", table, "id", id)
	return nil
}
