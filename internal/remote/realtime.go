// ABOUTME: Realtime insert-event subscription over websocket
// ABOUTME: Delivers row-insert events filtered by table; at-least-once, no total order

package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/coder/websocket"

	"github.com/scpnet/scpnet-client/internal/store"
)

// InsertEvent is one row-insert notification from the backend channel.
// Exactly one of the record fields is set, matching Table.
type InsertEvent struct {
	Table   string
	User    *store.User
	Report  *store.Report
	Message *store.Message
}

// wire frame shapes for the realtime channel
type realtimeFrame struct {
	Type   string          `json:"type"`
	Table  string          `json:"table"`
	Record json.RawMessage `json:"record"`
}

type subscribeFrame struct {
	Type   string   `json:"type"`
	Tables []string `json:"tables"`
	APIKey string   `json:"apikey"`
	Token  string   `json:"token,omitempty"`
}

// Subscription is a live realtime channel. Events arrive on Events until
// Unsubscribe is called, the context is cancelled, or the connection drops
// (which closes Events).
type Subscription struct {
	Events <-chan InsertEvent
	cancel context.CancelFunc
}

// Unsubscribe tears the subscription down. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.cancel()
}

// Subscribe opens the realtime channel and streams insert events for the
// given tables. The caller owns the returned Subscription and must call
// Unsubscribe when the consuming view goes away.
func (c *Client) Subscribe(ctx context.Context, token string, tables ...string) (*Subscription, error) {
	dialCtx, cancelDial := context.WithTimeout(ctx, 10*time.Second)
	defer cancelDial()

	conn, _, err := websocket.Dial(dialCtx, c.realtimeURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dialing realtime channel: %v", ErrUnavailable, err)
	}

	subCtx, cancel := context.WithCancel(ctx)

	join := subscribeFrame{Type: "subscribe", Tables: tables, APIKey: c.anonKey, Token: token}
	data, _ := json.Marshal(join)
	if err := conn.Write(subCtx, websocket.MessageText, data); err != nil {
		cancel()
		conn.Close(websocket.StatusInternalError, "subscribe failed")
		return nil, fmt.Errorf("%w: subscribing: %v", ErrUnavailable, err)
	}

	events := make(chan InsertEvent, 64)

	go func() {
		defer close(events)
		defer conn.Close(websocket.StatusNormalClosure, "unsubscribed")

		for {
			_, data, err := conn.Read(subCtx)
			if err != nil {
				// Cancelled or dropped; the consumer sees the channel close.
				c.logger.Debug("realtime channel closed", "error", err)
				return
			}

			var frame realtimeFrame
			if err := json.Unmarshal(data, &frame); err != nil {
				c.logger.Warn("discarding malformed realtime frame", "error", err)
				continue
			}
			if frame.Type != "insert" {
				continue
			}

			event, err := decodeInsert(frame)
			if err != nil {
				c.logger.Warn("discarding undecodable insert event", "table", frame.Table, "error", err)
				continue
			}

			select {
			case events <- event:
			case <-subCtx.Done():
				return
			}
		}
	}()

	c.logger.Debug("realtime subscription opened", "tables", tables)
	return &Subscription{Events: events, cancel: cancel}, nil
}

func decodeInsert(frame realtimeFrame) (InsertEvent, error) {
	event := InsertEvent{Table: frame.Table}

	switch frame.Table {
	case TablePersonnel:
		var row personnelRow
		if err := json.Unmarshal(frame.Record, &row); err != nil {
			return event, err
		}
		event.User = row.user()
	case TableReports:
		var row reportRow
		if err := json.Unmarshal(frame.Record, &row); err != nil {
			return event, err
		}
		event.Report = row.report()
	case TableMessages, TableGeneralMessages:
		var row messageRow
		if err := json.Unmarshal(frame.Record, &row); err != nil {
			return event, err
		}
		event.Message = row.message()
	default:
		return event, fmt.Errorf("unknown table %q", frame.Table)
	}

	return event, nil
}
