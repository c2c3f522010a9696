package screenshot

import (
	"errors"
	"testing"
)

func TestNormalizeURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"example.com", "https://example.com"},
		{"  https://example.com/pricing  ", "https://example.com/pricing"},
		{"http://sub.example.co.uk", "http://sub.example.co.uk"},
		{"HTTPS://Example.com", "https://Example.com"},
		{"localhost:3000", "https://localhost:3000"},
		{"127.0.0.1:8080/x", "https://127.0.0.1:8080/x"},
	}
	for _, tc := range cases {
		got, err := NormalizeURL(tc.in)
		if err != nil {
			t.Errorf("NormalizeURL(%q): unexpected error %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("NormalizeURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeURL_Invalid(t *testing.T) {
	for _, in := range []string{"", "   ", "not a url", "ftp://example.com", "https://", "justaword"} {
		if _, err := NormalizeURL(in); !errors.Is(err, ErrInvalidURL) {
			t.Errorf("NormalizeURL(%q): expected ErrInvalidURL, got %v", in, err)
		}
	}
}
