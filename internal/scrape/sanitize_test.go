package scrape

import (
	"strings"
	"testing"
)

func TestSanitizeRawPage(t *testing.T) {
	page := `<p>BANKA KOMBËTARE</p><script>alert("x")</script><a href="javascript:evil()">link</a>`

	got := SanitizeRawPage(page)
	if strings.Contains(got, "script") || strings.Contains(got, "alert") {
		t.Fatalf("script content survived: %q", got)
	}
	if strings.Contains(got, "javascript:") {
		t.Fatalf("unsafe href survived: %q", got)
	}
	if !strings.Contains(got, "BANKA KOMBËTARE") {
		t.Fatalf("visible text lost: %q", got)
	}
}

func TestSanitizeRawPage_Cap(t *testing.T) {
	page := strings.Repeat("a", rawPageCap+500)
	if got := SanitizeRawPage(page); len(got) != rawPageCap {
		t.Fatalf("expected %d bytes, got %d", rawPageCap, len(got))
	}
}

func TestSanitizeRawPage_Empty(t *testing.T) {
	if got := SanitizeRawPage(""); got != "" {
		t.Fatalf("expected empty output, got %q", got)
	}
}
