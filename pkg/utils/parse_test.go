package utils

import "testing"

func TestParseInt(t *testing.T) {
	tests := []struct {
		s        string
		def      int
		expected int
	}{
		{"123", 0, 123},
		{"abc", 0, 0},
		{"", 10, 10},
		{"-5", 0, -5},
		{"0", 99, 0},
	}

	for _, tt := range tests {
		result := ParseInt(tt.s, tt.def)
		if result != tt.expected {
			t.Errorf("ParseInt(%q, %d) = %d, want %d", tt.s, tt.def, result, tt.expected)
		}
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		s        string
		def      bool
		expected bool
	}{
		{"true", false, true},
		{"false", true, false},
		{"1", false, true},
		{"0", true, false},
		{"invalid", true, true},
		{"", false, false},
	}

	for _, tt := range tests {
		result := ParseBool(tt.s, tt.def)
		if result != tt.expected {
			t.Errorf("ParseBool(%q, %v) = %v, want %v", tt.s, tt.def, result, tt.expected)
		}
	}
}
