//go:build !rp2040

package fmtx

import (
	"fmt"
	"io"
)

// Host builds are plain fmt. The MCU build swaps in a small formatter, so
// callers that run on both targets format through this package instead.

func Sprintf(format string, a ...any) string                    { return fmt.Sprintf(format, a...) }
func Fprintf(w io.Writer, format string, a ...any) (int, error) { return fmt.Fprintf(w, format, a...) }
func Errorf(format string, a ...any) error                      { return fmt.Errorf(format, a...) }
