package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the casefile banner to w.
func PrintBanner(w io.Writer) {
	p := termenv.ColorProfile()
	lines := []struct {
		text  string
		color string
	}{
		{"                       __ _ _      ", "#818cf8"},
		{"   ___ __ _ ___  ___  / _(_) | ___ ", "#a78bfa"},
		{"  / __/ _` / __|/ _ \\| |_| | |/ _ \\", "#c084fc"},
		{" | (_| (_| \\__ \\  __/|  _| | |  __/", "#e879f9"},
		{"  \\___\\__,_|___/\\___||_| |_|_|\\___|", "#f472b6"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w)
}
