package utils

import "testing"

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Acme Inc", "acme-inc"},
		{"  Design & Research  ", "design-research"},
		{"UPPER", "upper"},
		{"a--b", "a-b"},
		{"team 42", "team-42"},
		{"---", ""}, // random fallback, checked below
	}
	for _, tt := range tests {
		got := Slugify(tt.in)
		if tt.want == "" {
			if got == "" {
				t.Errorf("Slugify(%q) returned empty, want random fallback", tt.in)
			}
			continue
		}
		if got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRandomSlug(t *testing.T) {
	a, b := RandomSlug(), RandomSlug()
	if len(a) != 10 || len(b) != 10 {
		t.Errorf("lengths = %d, %d; want 10", len(a), len(b))
	}
	if a == b {
		t.Error("consecutive random slugs collided")
	}
}
