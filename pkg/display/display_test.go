package display

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/0xmhha/fswatch/pkg/fswatcher"
	"github.com/0xmhha/fswatch/pkg/journal"
	"github.com/0xmhha/fswatch/pkg/monitor"
)

var testTime = time.Date(2024, 5, 1, 12, 30, 45, 0, time.Local)

func testEvent() fswatcher.Event {
	return fswatcher.Event{
		Path:      "/srv/app/config.yaml",
		Changes:   []fswatcher.Change{fswatcher.Modified},
		Timestamp: testTime,
	}
}

func testStatus() fswatcher.Status {
	return fswatcher.Status{
		ID:            "3f1c2a9e-8a4e-4f8b-9d7a-0d6f5c1b2e3a",
		State:         fswatcher.StateReady,
		Monitors:      3,
		Entries:       12500,
		Subscriptions: 1,
		Diagnostics: fswatcher.Diagnostics{
			RawNotifications: 40210,
			EventsPublished:  1234,
		},
	}
}

func testRecords() []journal.Record {
	return []journal.Record{
		{Seq: 1, Path: "/srv/app/a", Changes: []fswatcher.Change{fswatcher.Created}, Timestamp: testTime},
		{Seq: 2, Path: "/srv/app/a", Changes: []fswatcher.Change{fswatcher.Deleted}, Timestamp: testTime.Add(time.Second)},
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		config Config
		want   string // Type name
	}{
		{
			name:   "default format (table)",
			config: Config{},
			want:   "*display.tableFormatter",
		},
		{
			name:   "table format",
			config: Config{Format: FormatTable},
			want:   "*display.tableFormatter",
		},
		{
			name:   "json format",
			config: Config{Format: FormatJSON},
			want:   "*display.jsonFormatter",
		},
		{
			name:   "simple format",
			config: Config{Format: FormatSimple},
			want:   "*display.simpleFormatter",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			formatter := New(tt.config)
			if formatter == nil {
				t.Fatal("New() returned nil")
			}

			got := fmt.Sprintf("%T", formatter)
			if got != tt.want {
				t.Errorf("New() type = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "table", want: FormatTable},
		{in: "JSON", want: FormatJSON},
		{in: " simple ", want: FormatSimple},
		{in: "yaml", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrUnknownFormat) {
				t.Errorf("ParseFormat(%q) error = %v, want ErrUnknownFormat", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseFormat(%q) = %v, %v, want %v", tt.in, got, err, tt.want)
		}
	}
}

func TestFormatEvent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format Format
		want   []string
	}{
		{format: FormatTable, want: []string{"2024-05-01 12:30:45.000", "MODIFIED", "/srv/app/config.yaml"}},
		{format: FormatSimple, want: []string{"2024-05-01 12:30:45.000 MODIFIED /srv/app/config.yaml"}},
		{format: FormatJSON, want: []string{`"path":"/srv/app/config.yaml"`, `"changes":["MODIFIED"]`}},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			if err := New(Config{Format: tt.format}).FormatEvent(&buf, testEvent()); err != nil {
				t.Fatalf("FormatEvent() error = %v", err)
			}

			output := buf.String()
			if strings.Count(output, "\n") != 1 {
				t.Errorf("FormatEvent() should write exactly one line, got %q", output)
			}
			for _, want := range tt.want {
				if !strings.Contains(output, want) {
					t.Errorf("FormatEvent() output missing %q:\n%s", want, output)
				}
			}
		})
	}
}

func TestTableFormatter_FormatStatus(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := New(Config{Format: FormatTable}).FormatStatus(&buf, testStatus()); err != nil {
		t.Fatalf("FormatStatus() error = %v", err)
	}

	output := buf.String()
	expected := []string{
		"Watcher Status",
		"READY",
		"Watched Paths",
		"12,500",
		"40,210",
		"1,234",
	}
	for _, exp := range expected {
		if !strings.Contains(output, exp) {
			t.Errorf("FormatStatus() output missing %q", exp)
		}
	}
}

func TestSimpleFormatter_FormatStatus(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := New(Config{Format: FormatSimple}).FormatStatus(&buf, testStatus()); err != nil {
		t.Fatalf("FormatStatus() error = %v", err)
	}

	want := "State: READY | Paths: 12,500 | Monitors: 3 | Subscriptions: 1 | Events: 1,234\n"
	if got := buf.String(); got != want {
		t.Errorf("FormatStatus() = %q, want %q", got, want)
	}
}

func TestJSONFormatter_FormatStatus(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := New(Config{Format: FormatJSON}).FormatStatus(&buf, testStatus()); err != nil {
		t.Fatalf("FormatStatus() error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("FormatStatus() produced invalid JSON: %v", err)
	}
	if decoded["state"] != "READY" {
		t.Errorf("state = %v, want READY", decoded["state"])
	}
	if decoded["entries"] != float64(12500) {
		t.Errorf("entries = %v, want 12500", decoded["entries"])
	}
}

func TestFormatUpdate(t *testing.T) {
	t.Parallel()

	u := monitor.Update{
		Timestamp: testTime,
		Totals:    monitor.Totals{Events: 1500, Created: 1000, Modified: 400, Deleted: 100},
		Delta:     monitor.Totals{Events: 25, Created: 25},
		Pending:   1200,
		Status:    testStatus(),
	}

	tests := []struct {
		format Format
		want   []string
	}{
		{format: FormatTable, want: []string{"Update at", "1,500", "+25", "Journal Errors", "Pending Events", "1,200"}},
		{format: FormatSimple, want: []string{"events: 1,500 (+25)", "created: 1,000", "paths: 12500", "pending: 1200"}},
		{format: FormatJSON, want: []string{`"totals"`, `"delta"`, `"created": 1000`, `"pending": 1200`}},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			if err := New(Config{Format: tt.format}).FormatUpdate(&buf, u); err != nil {
				t.Fatalf("FormatUpdate() error = %v", err)
			}
			for _, want := range tt.want {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("FormatUpdate() output missing %q:\n%s", want, buf.String())
				}
			}
		})
	}
}

func TestTableFormatter_FormatHistory(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := New(Config{Format: FormatTable}).FormatHistory(&buf, testRecords()); err != nil {
		t.Fatalf("FormatHistory() error = %v", err)
	}

	output := buf.String()
	for _, exp := range []string{"Event History", "Seq", "Age", "CREATED", "DELETED", "/srv/app/a", "ago"} {
		if !strings.Contains(output, exp) {
			t.Errorf("FormatHistory() output missing %q", exp)
		}
	}
}

func TestTableFormatter_FormatHistoryEmpty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := New(Config{Format: FormatTable, Compact: true}).FormatHistory(&buf, nil); err != nil {
		t.Fatalf("FormatHistory() error = %v", err)
	}

	if !strings.Contains(buf.String(), "No data") {
		t.Errorf("FormatHistory() on empty input should print No data, got %q", buf.String())
	}
}

func TestSimpleFormatter_FormatHistory(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := New(Config{Format: FormatSimple}).FormatHistory(&buf, testRecords()); err != nil {
		t.Fatalf("FormatHistory() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("FormatHistory() lines = %d, want 2", len(lines))
	}
	if !strings.HasPrefix(lines[0], "#1 ") || !strings.HasSuffix(lines[1], "DELETED /srv/app/a") {
		t.Errorf("FormatHistory() unexpected output:\n%s", buf.String())
	}
}

func TestJSONFormatter_FormatHistory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		records []journal.Record
		want    int
	}{
		{name: "records", records: testRecords(), want: 2},
		{name: "empty", records: nil, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			if err := New(Config{Format: FormatJSON, Compact: true}).FormatHistory(&buf, tt.records); err != nil {
				t.Fatalf("FormatHistory() error = %v", err)
			}

			var decoded []journal.Record
			if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
				t.Fatalf("FormatHistory() produced invalid JSON: %v", err)
			}
			if len(decoded) != tt.want {
				t.Errorf("decoded %d records, want %d", len(decoded), tt.want)
			}
		})
	}
}

func TestWriteHeader(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := writeHeader(&buf, "Title", false); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "\nTitle\n=====\n\n" {
		t.Errorf("writeHeader() = %q", buf.String())
	}

	buf.Reset()
	if err := writeHeader(&buf, "Title", true); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "Title\n" {
		t.Errorf("writeHeader(compact) = %q", buf.String())
	}
}
