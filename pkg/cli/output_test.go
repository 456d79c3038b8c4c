package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/fatih/color"
)

func sampleTable() *Table {
	t := &Table{Headers: []string{"ID", "Label"}}
	t.Append("1", "Nano Banana Pro")
	t.Append("22", "Veo, 3")
	return t
}

func TestMain(m *testing.M) {
	color.NoColor = true
	m.Run()
}

func TestParseFormat(t *testing.T) {
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
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTextFormatter(t *testing.T) {
	var buf bytes.Buffer
	if err := NewFormatter(FormatText).FormatTo(&buf, sampleTable()); err != nil {
		t.Fatal(err)
	}

	want := "ID  Label\n" +
		"1   Nano Banana Pro\n" +
		"22  Veo, 3\n"
	if buf.String() != want {
		t.Errorf("output =\n%q\nwant\n%q", buf.String(), want)
	}
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	if err := NewFormatter(FormatJSON).FormatTo(&buf, sampleTable()); err != nil {
		t.Fatal(err)
	}

	var got []map[string]string
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(got) != 2 || got[1]["id"] != "22" || got[1]["label"] != "Veo, 3" {
		t.Errorf("got %v", got)
	}
}

func TestJSONFormatter_EmptyIsArray(t *testing.T) {
	var buf bytes.Buffer
	if err := (&JSONFormatter{}).FormatTo(&buf, &Table{Headers: []string{"ID"}}); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("output = %q, want []", buf.String())
	}
}

func TestCSVFormatter(t *testing.T) {
	var buf bytes.Buffer
	if err := NewFormatter(FormatCSV).FormatTo(&buf, sampleTable()); err != nil {
		t.Fatal(err)
	}

	want := "ID,Label\n1,Nano Banana Pro\n22,\"Veo, 3\"\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestStatusLines(t *testing.T) {
	var buf bytes.Buffer
	Success(&buf, "listening on %s", "0.0.0.0:8999")
	Warn(&buf, "auth disabled")
	Fail(&buf, "bad %d", 1)
	Banner(&buf, "Kiira Gateway", "v1.0.0")

	want := "✓ listening on 0.0.0.0:8999\n! auth disabled\n✗ bad 1\nKiira Gateway v1.0.0\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}
