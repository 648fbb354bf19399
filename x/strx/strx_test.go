package strx

import "testing"

func TestCoalesce(t *testing.T) {
	if got := Coalesce("", "fallback"); got != "fallback" {
		t.Fatalf("Coalesce empty = %q", got)
	}
	if got := Coalesce("set", "fallback"); got != "set" {
		t.Fatalf("Coalesce set = %q", got)
	}
}

func TestClip(t *testing.T) {
	cases := []struct {
		s    string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello", 3, "hel"},
		{"hello", 0, ""},
		{"héllo", 2, "h"}, // é is two bytes; never split it
		{"héllo", 3, "hé"},
	}
	for _, c := range cases {
		if got := Clip(c.s, c.max); got != c.want {
			t.Fatalf("Clip(%q, %d) = %q; want %q", c.s, c.max, got, c.want)
		}
	}
}
