package security

import "testing"

func TestSanitize_RemovesScriptTags(t *testing.T) {
	s := NewTextSanitizer()

	got := s.Sanitize(`Lightning Bolt<script>alert("x")</script>`)
	if got != "Lightning Bolt" {
		t.Errorf("Sanitize() = %q, want %q", got, "Lightning Bolt")
	}
}

func TestSanitize_RemovesAllMarkup(t *testing.T) {
	s := NewTextSanitizer()

	got := s.Sanitize(`<b>Flying</b>, <i>vigilance</i>`)
	if got != "Flying, vigilance" {
		t.Errorf("Sanitize() = %q, want %q", got, "Flying, vigilance")
	}
}

func TestSanitize_UnescapesEntities(t *testing.T) {
	s := NewTextSanitizer()

	// カードテキストに含まれる実体参照はプレーンテキストに戻す
	got := s.Sanitize("Sword of Fire &amp; Ice")
	if got != "Sword of Fire & Ice" {
		t.Errorf("Sanitize() = %q, want %q", got, "Sword of Fire & Ice")
	}
}

func TestSanitize_TrimsWhitespace(t *testing.T) {
	s := NewTextSanitizer()

	got := s.Sanitize("  Counterspell  ")
	if got != "Counterspell" {
		t.Errorf("Sanitize() = %q, want %q", got, "Counterspell")
	}
}

func TestSanitize_EmptyInput(t *testing.T) {
	s := NewTextSanitizer()

	if got := s.Sanitize(""); got != "" {
		t.Errorf("Sanitize(\"\") = %q, want empty", got)
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	s := NewTextSanitizer()

	input := `<p>Draw a card.</p>`
	once := s.Sanitize(input)
	twice := s.Sanitize(once)
	if once != twice {
		t.Errorf("Sanitize is not idempotent: %q != %q", once, twice)
	}
}
