package util

import "testing"

func TestParseBoolEnv(t *testing.T) {
	cases := []struct {
		value string
		def   bool
		want  bool
	}{
		{"", true, true},
		{"", false, false},
		{"true", false, true},
		{"1", false, true},
		{"YES", false, true},
		{"on", false, true},
		{"false", true, false},
		{"0", true, false},
		{"No", true, false},
		{"off", true, false},
		{"banana", true, true},
		{"banana", false, false},
		{" true ", false, true},
	}
	for _, tc := range cases {
		t.Setenv("KARABOT_TEST_BOOL", tc.value)
		if got := ParseBoolEnv("KARABOT_TEST_BOOL", tc.def); got != tc.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tc.value, tc.def, got, tc.want)
		}
	}
}

func TestGetenvDefault(t *testing.T) {
	t.Setenv("KARABOT_TEST_STR", "")
	if got := GetenvDefault("KARABOT_TEST_STR", "fallback"); got != "fallback" {
		t.Errorf("expected fallback, got %q", got)
	}
	t.Setenv("KARABOT_TEST_STR", "set")
	if got := GetenvDefault("KARABOT_TEST_STR", "fallback"); got != "set" {
		t.Errorf("expected set value, got %q", got)
	}
}
