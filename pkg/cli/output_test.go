package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

type jobRows struct {
	rows [][]string
}

func (j jobRows) Header() []string { return []string{"JOB_ID", "STATUS"} }
func (j jobRows) Rows() [][]string { return j.rows }

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"JSON", FormatJSON, false},
		{"csv", FormatCSV, false},
		{"junit", "", true},
	}
	for _, tt := range tests {
		got, err := ParseOutputFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseOutputFormat(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseOutputFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTextFormatter(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TextFormatter{}).FormatTo(&buf, "hello"); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "hello\n" {
		t.Errorf("got %q", buf.String())
	}

	buf.Reset()
	data := jobRows{rows: [][]string{{"job-1", "completed"}, {"job-22", "failed"}}}
	if err := (&TextFormatter{}).FormatTo(&buf, data); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %q", buf.String())
	}
	if !strings.HasPrefix(lines[0], "JOB_ID  ") || !strings.Contains(lines[2], "failed") {
		t.Errorf("unexpected table output %q", buf.String())
	}
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(FormatJSON)
	if err := f.FormatTo(&buf, map[string]int{"deleted": 3}); err != nil {
		t.Fatal(err)
	}
	var got map[string]int
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid json %q: %v", buf.String(), err)
	}
	if got["deleted"] != 3 {
		t.Errorf("got %v", got)
	}
	if !strings.Contains(buf.String(), "\n  ") {
		t.Error("expected indented output")
	}
}

func TestCSVFormatter(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(FormatCSV)
	data := jobRows{rows: [][]string{{"job-1", "completed, late"}}}
	if err := f.FormatTo(&buf, data); err != nil {
		t.Fatal(err)
	}
	want := "JOB_ID,STATUS\njob-1,\"completed, late\"\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}

	if err := f.FormatTo(&buf, "plain"); err == nil {
		t.Error("expected error for non-tabular data")
	}
}
