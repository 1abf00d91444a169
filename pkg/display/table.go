package display

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/0xmhha/fswatch/pkg/fswatcher"
	"github.com/0xmhha/fswatch/pkg/journal"
	"github.com/0xmhha/fswatch/pkg/monitor"
)

// tableFormatter formats output as tables.
type tableFormatter struct {
	config Config
}

// FormatEvent implements Formatter.FormatEvent. Events are streamed, so
// each one is a single aligned line rather than a table.
func (f *tableFormatter) FormatEvent(w io.Writer, ev fswatcher.Event) error {
	_, err := fmt.Fprintf(w, "%-23s  %-8s  %s\n",
		formatTime(ev.Timestamp),
		formatChanges(ev.Changes),
		ev.Path)
	return err
}

// FormatStatus implements Formatter.FormatStatus.
func (f *tableFormatter) FormatStatus(w io.Writer, st fswatcher.Status) error {
	if err := writeHeader(w, "Watcher Status", f.config.Compact); err != nil {
		return err
	}

	d := st.Diagnostics
	rows := [][]string{
		{"ID", st.ID},
		{"State", st.State.String()},
		{"Watched Paths", humanize.Comma(int64(st.Entries))},
		{"Directory Monitors", humanize.Comma(int64(st.Monitors))},
		{"Subscriptions", humanize.Comma(int64(st.Subscriptions))},
		{"Raw Notifications", humanize.Comma(int64(d.RawNotifications))},
		{"Events Published", humanize.Comma(int64(d.EventsPublished))},
		{"Events Delivered", humanize.Comma(int64(d.EventsDelivered))},
		{"Events Discarded", humanize.Comma(int64(d.EventsDiscarded))},
		{"Overflows", humanize.Comma(int64(d.Overflows))},
		{"Low-level Errors", humanize.Comma(int64(d.LowLevelErrors))},
		{"Rehomes", humanize.Comma(int64(d.Rehomes))},
	}

	return f.writeTable(w, []string{"Metric", "Value"}, rows)
}

// FormatUpdate implements Formatter.FormatUpdate.
func (f *tableFormatter) FormatUpdate(w io.Writer, u monitor.Update) error {
	title := fmt.Sprintf("Update at %s", formatTime(u.Timestamp))
	if err := writeHeader(w, title, f.config.Compact); err != nil {
		return err
	}

	row := func(name string, total, delta uint64) []string {
		return []string{name, humanize.Comma(int64(total)), "+" + humanize.Comma(int64(delta))}
	}
	rows := [][]string{
		row("Events", u.Totals.Events, u.Delta.Events),
		row("Created", u.Totals.Created, u.Delta.Created),
		row("Modified", u.Totals.Modified, u.Delta.Modified),
		row("Deleted", u.Totals.Deleted, u.Delta.Deleted),
		row("Rewatches", u.Totals.Rewatches, u.Delta.Rewatches),
		row("Journal Errors", u.Totals.JournalErrors, u.Delta.JournalErrors),
		{"Watched Paths", humanize.Comma(int64(u.Status.Entries)), ""},
		{"Directory Monitors", humanize.Comma(int64(u.Status.Monitors)), ""},
		{"Pending Events", humanize.Comma(int64(u.Pending)), ""},
	}

	return f.writeTable(w, []string{"Metric", "Total", "Delta"}, rows)
}

// FormatHistory implements Formatter.FormatHistory.
func (f *tableFormatter) FormatHistory(w io.Writer, records []journal.Record) error {
	if err := writeHeader(w, "Event History", f.config.Compact); err != nil {
		return err
	}

	header := []string{"Seq", "Time", "Age", "Change", "Path"}

	rows := make([][]string, len(records))
	for i, rec := range records {
		rows[i] = []string{
			fmt.Sprintf("%d", rec.Seq),
			formatTime(rec.Timestamp),
			humanize.Time(rec.Timestamp),
			formatChanges(rec.Changes),
			rec.Path,
		}
	}

	return f.writeTable(w, header, rows)
}

// writeTable writes a formatted table.
func (f *tableFormatter) writeTable(w io.Writer, header []string, rows [][]string) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No data")
		return err
	}

	// Calculate column widths.
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	// Write header.
	if err := f.writeRow(w, header, widths); err != nil {
		return err
	}

	// Write separator.
	if !f.config.Compact {
		separator := make([]string, len(header))
		for i, width := range widths {
			separator[i] = strings.Repeat("-", width)
		}
		if err := f.writeRow(w, separator, widths); err != nil {
			return err
		}
	}

	// Write rows.
	for _, row := range rows {
		if err := f.writeRow(w, row, widths); err != nil {
			return err
		}
	}

	// Add spacing.
	if !f.config.Compact {
		_, err := fmt.Fprintln(w)
		return err
	}

	return nil
}

// writeRow writes a single table row.
func (f *tableFormatter) writeRow(w io.Writer, cells []string, widths []int) error {
	for i, cell := range cells {
		if i > 0 {
			if f.config.Compact {
				if _, err := fmt.Fprint(w, " "); err != nil {
					return err
				}
			} else {
				if _, err := fmt.Fprint(w, "  "); err != nil {
					return err
				}
			}
		}

		format := fmt.Sprintf("%%-%ds", widths[i])
		if _, err := fmt.Fprintf(w, format, cell); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintln(w)
	return err
}
