package language

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"eng", "eng"},
		{"ENG", "eng"},
		{"fre\x00", "fre"},
		{" jpn ", "jpn"},
		{"\x00\x00", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.input); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestTerminology(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"fre", "fra"},
		{"GER", "deu"},
		{"chi\x00", "zho"},
		{"fra", "fra"},
		{"eng", "eng"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Terminology(tt.input); got != tt.want {
				t.Errorf("Terminology(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"eng", "English"},
		{"fre\x00", "French"},
		{"ger", "German"},
		{"jpn", "Japanese"},
		{"tur", "Turkish"},
		{"und", "Undetermined"},
		{"zxx", "No linguistic content"},
		{"", "Unknown"},
		{"x1z", "X1Z"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := DisplayName(tt.input); got != tt.want {
				t.Errorf("DisplayName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestIsEnglish(t *testing.T) {
	for _, code := range []string{"eng", "ENG", "en", "eng\x00"} {
		if !IsEnglish(code) {
			t.Errorf("IsEnglish(%q) = false", code)
		}
	}
	for _, code := range []string{"fre", "und", ""} {
		if IsEnglish(code) {
			t.Errorf("IsEnglish(%q) = true", code)
		}
	}
}
