// ABOUTME: Message mirror methods on SQLiteStore
// ABOUTME: Messages are append-only; no edit or delete paths exist

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateMessage appends a message to the local mirror. Inserting an ID that
// already exists is a no-op so realtime echoes do not duplicate.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *Message) error {
	query := `
		INSERT OR IGNORE INTO messages (id, sender_id, receiver_id, text, image_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		msg.ID,
		msg.SenderID,
		nullString(msg.ReceiverID),
		msg.Text,
		nullString(msg.ImageURL),
		msg.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	s.logger.Debug("created message", "id", msg.ID, "broadcast", msg.Broadcast())
	return nil
}

// ListMessages returns mirrored messages for a channel in chronological
// order. An empty channel selects the broadcast stream.
func (s *SQLiteStore) ListMessages(ctx context.Context, channel string) ([]*Message, error) {
	var rows *sql.Rows
	var err error

	if channel == "" {
		rows, err = s.db.QueryContext(ctx, messageSelect+` WHERE receiver_id IS NULL ORDER BY created_at ASC`)
	} else {
		rows, err = s.db.QueryContext(ctx, messageSelect+` WHERE receiver_id = ? ORDER BY created_at ASC`, channel)
	}
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}
	return messages, nil
}

// ReplaceMessages replaces one channel's mirror with the remote result set.
func (s *SQLiteStore) ReplaceMessages(ctx context.Context, channel string, msgs []*Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if channel == "" {
		_, err = tx.ExecContext(ctx, `DELETE FROM messages WHERE receiver_id IS NULL`)
	} else {
		_, err = tx.ExecContext(ctx, `DELETE FROM messages WHERE receiver_id = ?`, channel)
	}
	if err != nil {
		return fmt.Errorf("clearing message mirror: %w", err)
	}

	insert := `
		INSERT INTO messages (id, sender_id, receiver_id, text, image_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	for _, msg := range msgs {
		_, err := tx.ExecContext(ctx, insert,
			msg.ID,
			msg.SenderID,
			nullString(msg.ReceiverID),
			msg.Text,
			nullString(msg.ImageURL),
			msg.CreatedAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("inserting mirrored message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing message mirror: %w", err)
	}

	s.logger.Debug("replaced message mirror", "channel", channel, "count", len(msgs))
	return nil
}

const messageSelect = `
	SELECT id, sender_id, receiver_id, text, image_url, created_at
	FROM messages
`

func scanMessage(r rowScanner) (*Message, error) {
	var msg Message
	var receiverID, imageURL sql.NullString
	var createdAt string

	err := r.Scan(&msg.ID, &msg.SenderID, &receiverID, &msg.Text, &imageURL, &createdAt)
	if err != nil {
		return nil, err
	}

	msg.ReceiverID = receiverID.String
	msg.ImageURL = imageURL.String
	msg.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	return &msg, nil
}
