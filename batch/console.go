package batch

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
)

// Console renders the human-readable blocks of a run: the header, timeframe sections and the summary.
// Per-file lines go through the logger instead.
type Console struct {
	out io.Writer
}

// NewConsole writes to out; use os.Stdout for the terminal.
func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

func (c *Console) println(s string) {
	_, _ = fmt.Fprintln(c.out, s)
}

func label(name string) string {
	return pterm.NewStyle(pterm.FgLightCyan).Sprint(fmt.Sprintf("→ %-12s", name+":"))
}

func value(v any) string {
	return pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint(v)
}

// Header prints the run configuration.
func (c *Console) Header(opts Options, input string, outputDir string) {
	indent := "none"
	if opts.Indent != nil {
		indent = strconv.Itoa(*opts.Indent)
	}
	years := "discovered per timeframe"
	if len(opts.Years) > 0 {
		parts := make([]string, len(opts.Years))
		for i, y := range opts.Years {
			parts[i] = strconv.Itoa(y)
		}
		years = strings.Join(parts, ", ")
	}
	lines := []string{
		label("Format") + value(opts.Format),
		label("Indent") + value(indent),
		label("Batch size") + value(opts.BatchSize),
		label("Timeframes") + value(strings.Join(opts.Timeframes, ", ")),
		label("Years") + value(years),
		label("Input") + value(input),
		label("Output") + value(outputDir),
	}
	c.println(pterm.DefaultBox.
		WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("Parquet to JSON")).
		WithPadding(1).
		Sprint(strings.Join(lines, "\n")))
	c.println("")
}

// Section prints the header of one timeframe.
func (c *Console) Section(timeframe string) {
	c.println(pterm.NewStyle(pterm.FgLightCyan, pterm.Bold).Sprint("Timeframe " + timeframe))
}

// Summary prints the final counters.
func (c *Console) Summary(s Summary) {
	style := pterm.NewStyle(pterm.FgGreen, pterm.Bold)
	title := "Conversion Completed"
	if !s.OK() {
		style = pterm.NewStyle(pterm.FgRed, pterm.Bold)
		title = "Conversion Finished With Failures"
	}
	lines := []string{
		label("Total") + value(s.Total),
		label("Succeeded") + value(s.Succeeded),
		label("Failed") + value(s.Failed),
		label("Skipped") + value(s.Skipped),
		label("Output dir") + value(s.OutputDir),
	}
	c.println("")
	c.println(pterm.DefaultBox.WithTitle(style.Sprint(title)).WithPadding(1).Sprint(strings.Join(lines, "\n")))
}
