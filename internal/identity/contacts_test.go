package identity

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadVCard(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "contacts.vcf")
	content := "BEGIN:VCARD\nVERSION:3.0\nFN:Alice Smith\nTEL;TYPE=CELL:+1 410-925-6693\nEMAIL:alice@example.com\nEND:VCARD\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write vcard: %v", err)
	}

	m, err := LoadVCard(path)
	if err != nil {
		t.Fatalf("load vcard: %v", err)
	}
	if m["+1 410-925-6693"] != "Alice Smith" {
		t.Fatalf("expected phone mapped to Alice Smith, got %v", m)
	}
	if m["alice@example.com"] != "Alice Smith" {
		t.Fatalf("expected email mapped to Alice Smith, got %v", m)
	}
}

func TestLoadVCardMissingFile(t *testing.T) {
	m, err := LoadVCard(filepath.Join(t.TempDir(), "missing.vcf"))
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if len(m) != 0 {
		t.Fatalf("expected empty map, got %v", m)
	}
}

func TestLoadCSVSimple(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "contacts.csv")
	content := "name,handle\nBob Jones,+14105551234\nBob Jones,bob@example.com\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	m, err := LoadCSV(path)
	if err != nil {
		t.Fatalf("load csv: %v", err)
	}
	if m["+14105551234"] != "Bob Jones" || m["bob@example.com"] != "Bob Jones" {
		t.Fatalf("expected both handles mapped to Bob Jones, got %v", m)
	}
}

func TestLoadCSVGoogleExportShape(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "google.csv")
	content := "Name,Phone 1 - Value,E-mail 1 - Value\nCarol Lee,+14105559876,carol@example.com\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	m, err := LoadCSV(path)
	if err != nil {
		t.Fatalf("load csv: %v", err)
	}
	if m["+14105559876"] != "Carol Lee" || m["carol@example.com"] != "Carol Lee" {
		t.Fatalf("expected google export columns mapped, got %v", m)
	}
}

func TestAggregateByDisplayName(t *testing.T) {
	byHandle := map[string]string{
		"+14105551234":      "Bob Jones",
		"bob@example.com":   "Bob Jones",
		"+14105559876":      "Carol Lee",
	}
	byName := aggregateByDisplayName(byHandle)
	if len(byName["Bob Jones"]) != 2 {
		t.Fatalf("expected 2 handles for Bob Jones, got %v", byName["Bob Jones"])
	}
	if len(byName["Carol Lee"]) != 1 {
		t.Fatalf("expected 1 handle for Carol Lee, got %v", byName["Carol Lee"])
	}
}
