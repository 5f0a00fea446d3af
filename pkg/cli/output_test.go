package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestTableRender(t *testing.T) {
	table := NewTable("ID", "SEVERITY", "STATE")
	table.AddRow("alert-1", "warning", "open")
	table.AddRow("alert-2-with-longer-id", "critical", "acknowledged")

	var buf bytes.Buffer
	if err := table.Render(&buf); err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header + 2 rows", len(lines))
	}

	// Columns align on the widest cell.
	if idx := strings.Index(lines[0], "SEVERITY"); idx != strings.Index(lines[1], "warning") {
		t.Errorf("severity column misaligned:\n%s", buf.String())
	}
	if !strings.HasPrefix(lines[2], "alert-2-with-longer-id") {
		t.Errorf("row order changed: %q", lines[2])
	}
	// Last column is unpadded.
	if strings.HasSuffix(lines[1], " ") {
		t.Errorf("trailing padding on row: %q", lines[1])
	}
}

func TestTableRowShapeMismatch(t *testing.T) {
	table := NewTable("A", "B")
	table.AddRow("only-a")
	table.AddRow("a", "b", "dropped")

	if table.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", table.Len())
	}

	var buf bytes.Buffer
	if err := table.Render(&buf); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if strings.Contains(buf.String(), "dropped") {
		t.Errorf("cell beyond header width survived:\n%s", buf.String())
	}
}

func TestTableEmpty(t *testing.T) {
	table := NewTable("ID")

	var buf bytes.Buffer
	if err := table.Render(&buf); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != "ID" {
		t.Errorf("empty table rendered %q, want header only", got)
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	data := []map[string]any{{"id": "alert-1", "severity": "warning"}}

	if err := WriteJSON(&buf, data); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	if !strings.Contains(buf.String(), "\n  ") {
		t.Error("output is not indented")
	}

	var decoded []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if len(decoded) != 1 || decoded[0]["id"] != "alert-1" {
		t.Errorf("roundtrip mismatch: %+v", decoded)
	}
}
