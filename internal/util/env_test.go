package util

import "testing"

func TestParseBoolEnv(t *testing.T) {
	cases := []struct {
		value string
		def   bool
		want  bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"YES", false, true},
		{"on", false, true},
		{"false", true, false},
		{"0", true, false},
		{"no", true, false},
		{"OFF", true, false},
		{"", true, true},
		{"", false, false},
		{"maybe", true, true},
		{"maybe", false, false},
		{" true ", false, true},
	}
	for _, c := range cases {
		t.Setenv("TEST_BOOL_ENV", c.value)
		if got := ParseBoolEnv("TEST_BOOL_ENV", c.def); got != c.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", c.value, c.def, got, c.want)
		}
	}
}

func TestParseIntEnv(t *testing.T) {
	cases := []struct {
		value string
		def   int
		want  int
	}{
		{"42", 0, 42},
		{"-7", 0, -7},
		{" 15 ", 0, 15},
		{"", 9, 9},
		{"abc", 9, 9},
		{"4.5", 9, 9},
	}
	for _, c := range cases {
		t.Setenv("TEST_INT_ENV", c.value)
		if got := ParseIntEnv("TEST_INT_ENV", c.def); got != c.want {
			t.Errorf("ParseIntEnv(%q, %d) = %d, want %d", c.value, c.def, got, c.want)
		}
	}
}
