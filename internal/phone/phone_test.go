package phone

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"already canonical", "241662345678", "241662345678"},
		{"with plus", "+241662345678", "241662345678"},
		{"with spaces and dashes", "+241 66-23-45-678", "241662345678"},
		{"legacy leading zero", "2410662345678", "241662345678"},
		{"non gabonese untouched", "33612345678", "33612345678"},
		{"empty", "", ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Normalize(c.in); got != c.want {
				t.Errorf("Normalize(%q) = %q, want %q", c.in, got, c.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"+241 066 234 5678", "241662345678", "2410662345678", "0612345678"}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestIsValidGabonNumber(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"241662345678", true},
		{"+241771234567", true},
		{"241112345678", true},
		{"2410662345678", true}, // legacy form normalizes to a valid number
		{"241362345678", false}, // 3 is not an allocated range
		{"24166234567", false},  // too short
		{"2416623456789", false},
		{"33612345678", false},
		{"", false},
	}
	for _, c := range cases {
		if got := IsValidGabonNumber(c.in); got != c.want {
			t.Errorf("IsValidGabonNumber(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestChatIDRoundTrip(t *testing.T) {
	id := ChatID("+241 66 23 45 678")
	if id != "241662345678@s.whatsapp.net" {
		t.Fatalf("ChatID = %q", id)
	}
	if got := FromChatID(id); got != "241662345678" {
		t.Errorf("FromChatID(%q) = %q", id, got)
	}
	if got := FromChatID("241662345678"); got != "241662345678" {
		t.Errorf("FromChatID without suffix = %q", got)
	}
}

func TestFormatForDisplay(t *testing.T) {
	if got := FormatForDisplay("241662345678"); got != "+241 66 234 5678" {
		t.Errorf("FormatForDisplay = %q", got)
	}
	if got := FormatForDisplay("33612345678"); got != "+33612345678" {
		t.Errorf("FormatForDisplay non-gabon = %q", got)
	}
}
