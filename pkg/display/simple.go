package display

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"

	"github.com/0xmhha/fswatch/pkg/fswatcher"
	"github.com/0xmhha/fswatch/pkg/journal"
	"github.com/0xmhha/fswatch/pkg/monitor"
)

// simpleFormatter formats output as simple text.
type simpleFormatter struct {
	config Config
}

// FormatEvent implements Formatter.FormatEvent.
func (f *simpleFormatter) FormatEvent(w io.Writer, ev fswatcher.Event) error {
	_, err := fmt.Fprintf(w, "%s %s %s\n",
		formatTime(ev.Timestamp),
		formatChanges(ev.Changes),
		ev.Path)
	return err
}

// FormatStatus implements Formatter.FormatStatus.
func (f *simpleFormatter) FormatStatus(w io.Writer, st fswatcher.Status) error {
	_, err := fmt.Fprintf(w, "State: %s | Paths: %s | Monitors: %s | Subscriptions: %d | Events: %s\n",
		st.State,
		humanize.Comma(int64(st.Entries)),
		humanize.Comma(int64(st.Monitors)),
		st.Subscriptions,
		humanize.Comma(int64(st.Diagnostics.EventsPublished)))
	return err
}

// FormatUpdate implements Formatter.FormatUpdate.
func (f *simpleFormatter) FormatUpdate(w io.Writer, u monitor.Update) error {
	_, err := fmt.Fprintf(w, "%s events: %s (+%s) | created: %s | modified: %s | deleted: %s | paths: %d | pending: %d\n",
		formatTime(u.Timestamp),
		humanize.Comma(int64(u.Totals.Events)),
		humanize.Comma(int64(u.Delta.Events)),
		humanize.Comma(int64(u.Totals.Created)),
		humanize.Comma(int64(u.Totals.Modified)),
		humanize.Comma(int64(u.Totals.Deleted)),
		u.Status.Entries,
		u.Pending)
	return err
}

// FormatHistory implements Formatter.FormatHistory.
func (f *simpleFormatter) FormatHistory(w io.Writer, records []journal.Record) error {
	for _, rec := range records {
		if _, err := fmt.Fprintf(w, "#%d %s %s %s\n",
			rec.Seq,
			formatTime(rec.Timestamp),
			formatChanges(rec.Changes),
			rec.Path); err != nil {
			return err
		}
	}

	return nil
}
