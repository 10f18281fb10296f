package phone

import "testing"

func TestNormalizeE164(t *testing.T) {
	cases := []struct {
		in, region, want string
	}{
		{"+1 650-253-0000", "", "+16502530000"},
		{"(650) 253-0000", "us", "+16502530000"},
		{"  ", "MX", ""},
		{"not a phone", "MX", "not a phone"},
	}

	for _, tc := range cases {
		if got := NormalizeE164(tc.in, tc.region); got != tc.want {
			t.Fatalf("NormalizeE164(%q, %q): expected %q, got %q", tc.in, tc.region, tc.want, got)
		}
	}
}
