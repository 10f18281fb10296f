package domain

import (
	"testing"
	"time"
)

func TestNormalizeSourceAliases(t *testing.T) {
	cases := map[string]Source{
		"ig":        SourceInstagram,
		" TT ":      SourceTikTok,
		"fb":        SourceFacebook,
		"wa":        SourceWhatsApp,
		"web":       SourceWebsite,
		"referral":  SourceReferral,
		"Portal":    SourcePortal,
		"billboard": SourceColdOutreach,
		"":          SourceColdOutreach,
	}

	for raw, want := range cases {
		if got := NormalizeSource(raw); got != want {
			t.Fatalf("NormalizeSource(%q): expected %q, got %q", raw, want, got)
		}
	}
}

func TestLastTouchFallsBackToCreation(t *testing.T) {
	created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	lead := Lead{CreatedAt: created}
	if !lead.LastTouch().Equal(created) {
		t.Fatalf("expected creation time, got %s", lead.LastTouch())
	}

	touched := created.Add(48 * time.Hour)
	lead.LastInteractionAt = &touched
	if !lead.LastTouch().Equal(touched) {
		t.Fatalf("expected interaction time, got %s", lead.LastTouch())
	}
}

func TestPreferencesIsEmpty(t *testing.T) {
	if !(Preferences{}).IsEmpty() {
		t.Fatal("expected zero preferences to be empty")
	}
	if (Preferences{Locations: []string{"Tulum"}}).IsEmpty() {
		t.Fatal("expected preferences with a location to be non-empty")
	}
}

func TestStatusClosed(t *testing.T) {
	for _, s := range []Status{StatusWon, StatusLost} {
		if !s.IsClosed() {
			t.Fatalf("expected %s to be closed", s)
		}
	}
	if StatusNegotiation.IsClosed() {
		t.Fatal("negotiation is not closed")
	}
}
