package tgui

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncRunes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello", 4, "hel…"},
		{"héllo wörld", 3, "hé…"},
		{"abc", 0, ""},
		{"abc", 1, "…"},
	}
	for _, tt := range tests {
		if got := TruncRunes(tt.in, tt.n); got != tt.want {
			t.Errorf("TruncRunes(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestCardEscapes(t *testing.T) {
	t.Parallel()
	got := Card("🔔 Start", "Maths <A&B>")
	if want := H("<b>🔔 Start</b>\nMaths &lt;A&amp;B&gt;"); got != want {
		t.Fatalf("Card = %q, want %q", got, want)
	}
	if got := Card("🔔 End", ""); got != "<b>🔔 End</b>" {
		t.Fatalf("empty body = %q", got)
	}
}

func TestCardBounded(t *testing.T) {
	t.Parallel()
	got := Card(strings.Repeat("t", 500), strings.Repeat("\"", 5000))
	if n := utf8.RuneCountInString(got.String()); n > 4096 {
		t.Fatalf("card is %d runes", n)
	}
}

func TestJoinHSkipsBlank(t *testing.T) {
	t.Parallel()
	if got := JoinH(" | ", Code("a"), "", I("b"), " "); got != "<code>a</code> | <i>b</i>" {
		t.Fatalf("JoinH = %q", got)
	}
}
