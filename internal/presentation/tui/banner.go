package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []struct {
	text  string
	color string
}{
	{`     _         _              `, "#34d399"},
	{`    / \   _ __| |__   ___  _ __`, "#10b981"},
	{`   / _ \ | '__| '_ \ / _ \| '__|`, "#14b8a6"},
	{`  / ___ \| |  | |_) | (_) | |   `, "#06b6d4"},
	{` /_/   \_\_|  |_.__/ \___/|_|   `, "#0ea5e9"},
}

// PrintBanner writes the arbor banner to w, colored for the terminal behind w.
// Non-terminal writers get plain text.
func PrintBanner(w io.Writer) {
	out := termenv.NewOutput(w)
	p := out.ColorProfile()

	fmt.Fprintln(w)
	for _, l := range bannerLines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w)
}
