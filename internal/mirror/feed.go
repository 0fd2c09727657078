// ABOUTME: Routes realtime backend insert events into the mirrored sets
// ABOUTME: Runs until the subscription closes or the context is cancelled

package mirror

import (
	"context"
	"log/slog"

	"github.com/scpnet/scpnet-client/internal/remote"
	"github.com/scpnet/scpnet-client/internal/store"
)

// Feed consumes a realtime subscription and lands each insert in the
// matching set. Direct-message routing is optional; pass a nil resolver
// to drop direct traffic.
type Feed struct {
	personnel *Set[*store.User]
	reports   *Set[*store.Report]
	general   *Set[*store.Message]
	direct    func(receiverID string) *Set[*store.Message]
	logger    *slog.Logger
}

// NewFeed builds a feed over the given sets. Pass nil logger for default.
func NewFeed(personnel *Set[*store.User], reports *Set[*store.Report], general *Set[*store.Message], direct func(string) *Set[*store.Message], logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		personnel: personnel,
		reports:   reports,
		general:   general,
		direct:    direct,
		logger:    logger.With("component", "feed"),
	}
}

// Run pumps events from the subscription until its channel closes or ctx
// is cancelled. The subscription is torn down on return.
func (f *Feed) Run(ctx context.Context, sub *remote.Subscription) {
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events:
			if !ok {
				f.logger.Debug("realtime channel closed")
				return
			}
			f.dispatch(ctx, ev)
		}
	}
}

func (f *Feed) dispatch(ctx context.Context, ev remote.InsertEvent) {
	switch ev.Table {
	case remote.TablePersonnel:
		if f.personnel != nil && ev.User != nil {
			f.personnel.Ingest(ctx, ev.User)
		}
	case remote.TableReports:
		if f.reports != nil && ev.Report != nil {
			f.reports.Ingest(ctx, ev.Report)
		}
	case remote.TableGeneralMessages:
		if f.general != nil && ev.Message != nil {
			f.general.Ingest(ctx, ev.Message)
		}
	case remote.TableMessages:
		if f.direct != nil && ev.Message != nil {
			if set := f.direct(ev.Message.ReceiverID); set != nil {
				set.Ingest(ctx, ev.Message)
			}
		}
	default:
		f.logger.Debug("unhandled realtime table", "table", ev.Table)
	}
}
