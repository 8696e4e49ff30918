package langdetect

import "testing"

func TestDetectISO6391(t *testing.T) {
	t.Parallel()

	if got := DetectISO6391("Regulators open an investigation into the merger of the two largest grocery chains"); got != "en" {
		t.Fatalf("expected en, got %q", got)
	}
	if got := DetectISO6391("Die Bundesregierung kündigt neue Regeln für Lebensmittelhersteller an"); got != "de" {
		t.Fatalf("expected de, got %q", got)
	}
}

func TestDetectISO6391ShortInput(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "   ", "Q3", "$10M!"} {
		if got := DetectISO6391(in); got != Undetermined {
			t.Fatalf("DetectISO6391(%q) = %q, want %q", in, got, Undetermined)
		}
	}
}
