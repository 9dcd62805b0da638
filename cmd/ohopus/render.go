package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"oh-opus/internal/convert"
	"oh-opus/internal/jobs"
)

// barSteps is the resolution of the overall progress bar.
const barSteps = 1000

// eventRenderer prints run events as they arrive.
type eventRenderer interface {
	Handle(event jobs.Event)
	Close()
}

func newRenderer(out io.Writer) eventRenderer {
	if isTerminal(out) {
		return newBarRenderer(out)
	}
	return newLineRenderer(out, false)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// levelColors builds the palette for log levels, plain when colour is off.
func levelColors(enabled bool) map[jobs.Level]*color.Color {
	palette := map[jobs.Level]*color.Color{
		jobs.LevelInfo:    color.New(color.Reset),
		jobs.LevelSuccess: color.New(color.FgGreen),
		jobs.LevelWarning: color.New(color.FgYellow),
		jobs.LevelError:   color.New(color.FgRed, color.Bold),
	}
	for _, c := range palette {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return palette
}

// lineRenderer writes one line per log event, for pipes and log files.
type lineRenderer struct {
	out     io.Writer
	colors  map[jobs.Level]*color.Color
	overall float64
}

func newLineRenderer(out io.Writer, colored bool) *lineRenderer {
	return &lineRenderer{out: out, colors: levelColors(colored)}
}

func (r *lineRenderer) Handle(event jobs.Event) {
	if event.Type == jobs.EventTypeProgress {
		r.overall = event.Overall
		return
	}
	if event.Terminal() {
		r.overall = event.Overall
	}
	level := event.Level
	if level == "" {
		level = terminalLevel(event)
	}
	c, ok := r.colors[level]
	if !ok {
		c = r.colors[jobs.LevelInfo]
	}
	c.Fprintf(r.out, "[%3.0f%%] %s\n", r.overall*100, event.Message)
}

func (r *lineRenderer) Close() {}

// barRenderer keeps a progress bar at the bottom of an interactive terminal
// and prints warnings and errors above it.
type barRenderer struct {
	out    io.Writer
	bar    *progressbar.ProgressBar
	colors map[jobs.Level]*color.Color
}

func newBarRenderer(out io.Writer) *barRenderer {
	bar := progressbar.NewOptions(barSteps,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription("Scanning"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
	return &barRenderer{out: out, bar: bar, colors: levelColors(true)}
}

func (r *barRenderer) Handle(event jobs.Event) {
	switch {
	case event.Type == jobs.EventTypeProgress:
		if event.File != "" {
			r.bar.Describe(event.File)
		}
		_ = r.bar.Set(int(event.Overall * barSteps))
	case event.Terminal():
		_ = r.bar.Set(int(event.Overall * barSteps))
		_ = r.bar.Finish()
		r.colors[terminalLevel(event)].Fprintln(r.out, event.Message)
	case event.Level == jobs.LevelWarning || event.Level == jobs.LevelError:
		_ = r.bar.Clear()
		r.colors[event.Level].Fprintln(r.out, event.Message)
		_ = r.bar.RenderBlank()
	}
}

func (r *barRenderer) Close() {
	_ = r.bar.Exit()
}

func terminalLevel(event jobs.Event) jobs.Level {
	switch {
	case event.Type == jobs.EventTypeError:
		return jobs.LevelError
	case event.Type == jobs.EventTypeCancelled || event.Errors > 0:
		return jobs.LevelWarning
	default:
		return jobs.LevelSuccess
	}
}

// renderSummary formats the run statistics table.
func renderSummary(c convert.Counters) string {
	ratio := "-"
	saved := "-"
	if c.InputBytes > 0 {
		ratio = fmt.Sprintf("%.1f%%", float64(c.OutputBytes)/float64(c.InputBytes)*100)
		if c.InputBytes >= c.OutputBytes {
			saved = humanize.Bytes(uint64(c.InputBytes - c.OutputBytes))
		}
	}

	rows := [][]string{
		{"Files found", fmt.Sprint(c.Total)},
		{"Converted", fmt.Sprint(c.Converted)},
		{"Skipped", fmt.Sprint(c.Skipped)},
		{"Errors", fmt.Sprint(c.Errors)},
		{"Input size", humanize.Bytes(uint64(c.InputBytes))},
		{"Output size", humanize.Bytes(uint64(c.OutputBytes))},
		{"Output/input", ratio},
		{"Space saved", saved},
		{"Elapsed", c.Elapsed.Round(100 * time.Millisecond).String()},
	}
	return renderTable([]string{"Summary", ""}, rows, []columnAlignment{alignLeft, alignRight})
}

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}
