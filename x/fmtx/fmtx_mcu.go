//go:build rp2040

package fmtx

import (
	"io"

	"rtcore-go/x/strconvx"
)

// Small fmt replacement for MCU builds. Verbs: %s %q %d %x %X %v %t %f and
// %%, plus precision for %s and %f. Width, flags, and the rest of the verb
// set are host-only; keep MCU format strings inside this subset.

func Sprintf(format string, a ...any) string {
	return string(appendFormat(make([]byte, 0, len(format)+16), format, a))
}

func Fprintf(w io.Writer, format string, a ...any) (int, error) {
	return w.Write(appendFormat(nil, format, a))
}

func Errorf(format string, a ...any) error {
	return &fmtError{Sprintf(format, a...)}
}

type fmtError struct{ s string }

func (e *fmtError) Error() string { return e.s }

func appendFormat(dst []byte, format string, args []any) []byte {
	ai := 0
	for i := 0; i < len(format); {
		c := format[i]
		if c != '%' {
			dst = append(dst, c)
			i++
			continue
		}
		i++
		if i < len(format) && format[i] == '%' {
			dst = append(dst, '%')
			i++
			continue
		}
		prec := -1
		if i < len(format) && format[i] == '.' {
			i++
			prec = 0
			for i < len(format) && format[i] >= '0' && format[i] <= '9' {
				prec = prec*10 + int(format[i]-'0')
				i++
			}
		}
		if i >= len(format) {
			break
		}
		verb := format[i]
		i++
		if ai >= len(args) {
			dst = append(dst, '%', verb)
			continue
		}
		dst = appendArg(dst, args[ai], verb, prec)
		ai++
	}
	return dst
}

func appendArg(dst []byte, arg any, verb byte, prec int) []byte {
	switch verb {
	case 's', 'q', 'v':
		s := stringify(arg)
		if prec >= 0 && prec < len(s) {
			s = s[:prec]
		}
		if verb == 'q' {
			return appendQuoted(dst, s)
		}
		return append(dst, s...)
	case 'd':
		return append(dst, strconvx.FormatInt(asInt64(arg), 10)...)
	case 'x', 'X':
		h := strconvx.FormatInt(asInt64(arg), 16)
		if verb == 'X' {
			return appendUpperHex(dst, h)
		}
		return append(dst, h...)
	case 'f':
		if prec < 0 {
			prec = 6
		}
		return append(dst, strconvx.FormatFloat(asFloat64(arg), 'f', prec, 64)...)
	case 't':
		if b, ok := arg.(bool); ok && b {
			return append(dst, "true"...)
		}
		return append(dst, "false"...)
	default:
		return append(dst, '%', verb)
	}
}

func stringify(arg any) string {
	switch v := arg.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case error:
		return v.Error()
	case bool:
		if v {
			return "true"
		}
		return "false"
	case int:
		return strconvx.Itoa(v)
	case int8:
		return strconvx.FormatInt(int64(v), 10)
	case int16:
		return strconvx.FormatInt(int64(v), 10)
	case int32:
		return strconvx.FormatInt(int64(v), 10)
	case int64:
		return strconvx.FormatInt(v, 10)
	case uint:
		return strconvx.FormatUint(uint64(v), 10)
	case uint8:
		return strconvx.FormatUint(uint64(v), 10)
	case uint16:
		return strconvx.FormatUint(uint64(v), 10)
	case uint32:
		return strconvx.FormatUint(uint64(v), 10)
	case uint64:
		return strconvx.FormatUint(v, 10)
	default:
		return "<?>"
	}
}

func asInt64(arg any) int64 {
	switch v := arg.(type) {
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case uint:
		return int64(v)
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		return int64(v)
	default:
		return 0
	}
}

func asFloat64(arg any) float64 {
	switch v := arg.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}

func appendQuoted(dst []byte, s string) []byte {
	dst = append(dst, '"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"', '\\':
			dst = append(dst, '\\', c)
		case '\n':
			dst = append(dst, '\\', 'n')
		case '\r':
			dst = append(dst, '\\', 'r')
		case '\t':
			dst = append(dst, '\\', 't')
		default:
			dst = append(dst, c)
		}
	}
	return append(dst, '"')
}

func appendUpperHex(dst []byte, s string) []byte {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if 'a' <= c && c <= 'f' {
			c -= 'a' - 'A'
		}
		dst = append(dst, c)
	}
	return dst
}
