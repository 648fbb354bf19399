package strconvx

import "testing"

func TestItoaAtoiRoundTrip(t *testing.T) {
	for _, v := range []int{0, 7, -7, 42, -65536, 123456789} {
		s := Itoa(v)
		got, err := Atoi(s)
		if err != nil {
			t.Fatalf("Atoi(%q): %v", s, err)
		}
		if got != v {
			t.Fatalf("round trip %d -> %q -> %d", v, s, got)
		}
	}
}

func TestAtoiRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "+", "-", "9x", "--1", "1 2"} {
		if _, err := Atoi(s); err == nil {
			t.Fatalf("Atoi(%q) accepted", s)
		}
	}
}

func TestFormatIntBases(t *testing.T) {
	cases := []struct {
		v    int64
		base int
		want string
	}{
		{255, 10, "255"},
		{255, 16, "ff"},
		{-255, 16, "-ff"},
		{5, 2, "101"},
		{35, 36, "z"},
		{0, 16, "0"},
	}
	for _, c := range cases {
		if got := FormatInt(c.v, c.base); got != c.want {
			t.Fatalf("FormatInt(%d, %d) = %q; want %q", c.v, c.base, got, c.want)
		}
	}
}

func TestFormatUint(t *testing.T) {
	if got := FormatUint(0, 10); got != "0" {
		t.Fatalf("zero = %q", got)
	}
	if got := FormatUint(18446744073709551615, 10); got != "18446744073709551615" {
		t.Fatalf("max = %q", got)
	}
	if got := FormatUint(48879, 16); got != "beef" {
		t.Fatalf("hex = %q", got)
	}
}

func TestFormatFloatFixedPoint(t *testing.T) {
	cases := []struct {
		f    float64
		prec int
		want string
	}{
		{1.5, 6, "1.500000"},
		{3.14159, 2, "3.14"},
		{-2.5, 1, "-2.5"},
		{0.999, 2, "1.00"}, // rounds up across the point
		{0, 0, "0"},
		{12.0, 0, "12"},
	}
	for _, c := range cases {
		if got := FormatFloat(c.f, 'f', c.prec, 64); got != c.want {
			t.Fatalf("FormatFloat(%v, 'f', %d) = %q; want %q", c.f, c.prec, got, c.want)
		}
	}
}

func TestParseFloat(t *testing.T) {
	cases := []struct {
		s    string
		want float64
	}{
		{"2.5", 2.5},
		{"-0.25", -0.25},
		{"+3.5", 3.5},
		{"10", 10},
		{"0.5", 0.5},
	}
	for _, c := range cases {
		got, err := ParseFloat(c.s, 64)
		if err != nil {
			t.Fatalf("ParseFloat(%q): %v", c.s, err)
		}
		if got != c.want {
			t.Fatalf("ParseFloat(%q) = %v; want %v", c.s, got, c.want)
		}
	}
	for _, s := range []string{"", ".", "1.2.3", "abc", "4.5x"} {
		if _, err := ParseFloat(s, 64); err == nil {
			t.Fatalf("ParseFloat(%q) accepted", s)
		}
	}
}
