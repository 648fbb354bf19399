//go:build rp2040

package strconvx

import "rtcore-go/x/conv"

// Lean replacements with strconv signatures for the call sites this module
// has on MCU builds. Base-10 integers ride x/conv; no overflow checking in
// the parsers, and floats are fixed-point only. The fmt byte and bitSize
// arguments exist for parity and are ignored.

func Itoa(i int) string { return FormatInt(int64(i), 10) }

func FormatInt(i int64, base int) string {
	if base == 10 {
		var buf [20]byte
		return string(conv.Itoa(buf[:], i))
	}
	if i < 0 {
		return "-" + FormatUint(uint64(-i), base)
	}
	return FormatUint(uint64(i), base)
}

func FormatUint(u uint64, base int) string {
	if base < 2 || base > 36 {
		base = 10
	}
	const digits = "0123456789abcdefghijklmnopqrstuvwxyz"
	var buf [64]byte
	i := len(buf)
	for {
		i--
		buf[i] = digits[u%uint64(base)]
		u /= uint64(base)
		if u == 0 {
			break
		}
	}
	return string(buf[i:])
}

type numError struct{ s string }

func (e *numError) Error() string { return e.s }

func syntaxErr() error { return &numError{"invalid syntax"} }

func Atoi(s string) (int, error) {
	neg := false
	switch {
	case len(s) == 0:
		return 0, syntaxErr()
	case s[0] == '-':
		neg = true
		s = s[1:]
	case s[0] == '+':
		s = s[1:]
	}
	if len(s) == 0 {
		return 0, syntaxErr()
	}
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, syntaxErr()
		}
		n = n*10 + int(c-'0')
	}
	if neg {
		n = -n
	}
	return n, nil
}

// FormatFloat renders fixed-point decimal. Rounding happens on the scaled
// value, so a fraction that rounds up past .99 carries into the whole part.
func FormatFloat(f float64, _ byte, prec, _ int) string {
	if prec < 0 {
		prec = 6
	}
	neg := f < 0
	if neg {
		f = -f
	}
	upow := uint64(1)
	for i := 0; i < prec; i++ {
		upow *= 10
	}
	scaled := uint64(f*float64(upow) + 0.5)
	out := FormatUint(scaled/upow, 10)
	if prec > 0 {
		fs := FormatUint(scaled%upow, 10)
		for len(fs) < prec {
			fs = "0" + fs
		}
		out += "." + fs
	}
	if neg {
		out = "-" + out
	}
	return out
}

func ParseFloat(s string, _ int) (float64, error) {
	if len(s) == 0 {
		return 0, syntaxErr()
	}
	neg := false
	if s[0] == '+' || s[0] == '-' {
		neg = s[0] == '-'
		s = s[1:]
	}
	v := 0.0
	scale := 1.0
	dot := false
	seen := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			seen = true
			if dot {
				scale /= 10
				v += float64(c-'0') * scale
			} else {
				v = v*10 + float64(c-'0')
			}
		case c == '.' && !dot:
			dot = true
		default:
			return 0, syntaxErr()
		}
	}
	if !seen {
		return 0, syntaxErr()
	}
	if neg {
		v = -v
	}
	return v, nil
}
