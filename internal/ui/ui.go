package ui

import (
	"fmt"
	"io"
	"strings"
)

func ShowHeader(w io.Writer, title string) {
	fmt.Fprintf(w, " %s\n", strings.Repeat("─", len(title)+2))
	fmt.Fprintf(w, " %s\n", title)
	fmt.Fprintf(w, " %s\n", strings.Repeat("─", len(title)+2))
}

// ShowField prints an aligned "label: value" line.
func ShowField(w io.Writer, label, value string) {
	fmt.Fprintf(w, "  %-18s %s\n", label+":", value)
}

func ShowSuccess(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, " ✓ %s\n", fmt.Sprintf(format, args...))
}

func ShowError(w io.Writer, msg string, err error) {
	if err != nil {
		fmt.Fprintf(w, " ✗ %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(w, " ✗ %s\n", msg)
	}
}

func ShowWarning(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, " ! %s\n", fmt.Sprintf(format, args...))
}

func ShowInfo(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, " ℹ %s\n", fmt.Sprintf(format, args...))
}
