package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"studyrag/internal/domain"
)

var (
	headingf = color.New(color.FgCyan, color.Bold).SprintfFunc()
	okf      = color.New(color.FgGreen).SprintfFunc()
	dimf     = color.New(color.Faint).SprintfFunc()
	errorf   = color.New(color.FgRed).SprintfFunc()
)

func printSources(w io.Writer, chunks []domain.Chunk) {
	if len(chunks) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, dimf("Sources:"))
	for _, c := range chunks {
		fmt.Fprintln(w, dimf("  %s  %s", c.ID(), oneLine(c.Text, 70)))
	}
}

func printScored(w io.Writer, scored []domain.ScoredChunk) {
	for i, s := range scored {
		fmt.Fprintf(w, "%s %s\n", headingf("%2d. %s", i+1, s.Chunk.ID()), okf("similarity=%.3f", s.Similarity))
		fmt.Fprintln(w, indent(s.Chunk.Text))
	}
}

func oneLine(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n]) + "…"
}

func indent(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	for i, l := range lines {
		lines[i] = "    " + l
	}
	return strings.Join(lines, "\n")
}
