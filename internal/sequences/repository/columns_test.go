package repository

import "testing"

func TestPrefixed(t *testing.T) {
	got := prefixed("e", "id, lead_id,\n\tstatus")
	if got != "e.id, e.lead_id, e.status" {
		t.Fatalf("unexpected columns %q", got)
	}
}
