package translation

import (
	"os"
	"path/filepath"
	"testing"
)

const catalog = `msgid ""
msgstr ""
"Content-Type: text/plain; charset=UTF-8\n"

msgid "Portfolio ready"
msgstr "Portfel gotowy"
`

func TestTranslate(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "pl", "LC_MESSAGES"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "pl", "LC_MESSAGES", "default.po"), []byte(catalog), 0o644); err != nil {
		t.Fatal(err)
	}

	Configure(dir, "PL.UTF-8")
	if got := GetLanguage(); got != "pl" {
		t.Fatalf("expected pl, got %q", got)
	}
	if got := Translate("Portfolio ready"); got != "Portfel gotowy" {
		t.Fatalf("got %q", got)
	}
	if got := Translate("Seeding portfolio"); got != "Seeding portfolio" {
		t.Fatalf("untranslated ids must pass through, got %q", got)
	}
}
