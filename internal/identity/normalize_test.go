package identity

import "testing"

func TestRemoveDiacritics(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Jiří", "Jiri"},
		{"Novák", "Novak"},
		{"François", "Francois"},
		{"plain ascii", "plain ascii"},
		{"", ""},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			if got := RemoveDiacritics(tc.input); got != tc.expected {
				t.Errorf("RemoveDiacritics(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Jan Novák", "jan novak"},
		{"jan-novak", "jan novak"},
		{"  Élise  ", "elise"},
		{"", ""},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			if got := NormalizeName(tc.input); got != tc.expected {
				t.Errorf("NormalizeName(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		first, last string
		expected    string
	}{
		{"Jan", "Novák", "Jan Novák"},
		{"Jan", "", "Jan"},
		{"", "Novák", "Novák"},
		{"", "", ""},
	}

	for _, tc := range tests {
		if got := DisplayName(tc.first, tc.last); got != tc.expected {
			t.Errorf("DisplayName(%q, %q) = %q; want %q", tc.first, tc.last, got, tc.expected)
		}
	}
}
