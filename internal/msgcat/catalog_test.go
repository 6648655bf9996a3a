package msgcat

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderEmbeddedDefaults(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := c.Render("duel.challenge_sent", map[string]any{"Opponent": "bob"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(got, "bob") {
		t.Errorf("rendered %q, want opponent name interpolated", got)
	}

	for _, key := range []string{"duel.accepted", "draw.offered", "bonus.upset", "duel.no_winner"} {
		if _, err := c.Render(key, nil); err != nil {
			t.Errorf("Render(%q): %v", key, err)
		}
	}
}

func TestRenderMissingKey(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Render("duel.does_not_exist", nil); err == nil {
		t.Error("expected an error for an unknown key")
	}
}

func TestOverrideDir(t *testing.T) {
	dir := t.TempDir()
	override := "duel:\n  accepted: \"Game on!\"\n"
	if err := os.WriteFile(filepath.Join(dir, "custom.yaml"), []byte(override), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := c.Render("duel.accepted", nil)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "Game on!" {
		t.Errorf("override not applied: %q", got)
	}

	// untouched keys keep their defaults
	if _, err := c.Render("duel.rejected", nil); err != nil {
		t.Errorf("default key lost after override: %v", err)
	}
}

func TestOverrideDuplicateKeyRejected(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.yaml", "b.yaml"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("duel:\n  accepted: \"x\"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := New(dir); err == nil {
		t.Error("expected duplicate override keys to be rejected")
	}
}
