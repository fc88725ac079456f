// Package observability provides formatted terminal output for the CLI.
package observability

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/jonathan/report-context/internal/activity"
	"github.com/jonathan/report-context/internal/audit"
	"github.com/jonathan/report-context/internal/processor"
	"github.com/jonathan/report-context/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 10
)

// Colors apply to single-line output only; boxes stay plain so padding lines up.
// The color package disables them itself when stdout is not a terminal.
var (
	goodColor  = color.New(color.FgGreen)
	badColor   = color.New(color.FgRed)
	stateColor = color.New(color.FgCyan, color.Bold)
)

// Printer handles formatted output for the CLI
type Printer struct {
	out     io.Writer
	verbose bool
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// WithVerbose returns a printer that also prints per-item progress.
func (p *Printer) WithVerbose(verbose bool) *Printer {
	return &Printer{out: p.out, verbose: verbose}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		if len([]rune(line)) > boxWidth-4 {
			line = string([]rune(line)[:boxWidth-7]) + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintProgress renders a processor event as a single line. Item events are
// only shown in verbose mode.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintProgress(event processor.ProgressEvent) {
	switch event.Kind {
	case processor.EventItem:
		if !p.verbose {
			return
		}
		mark := goodColor.Sprint("✓")
		if event.Status == types.StatusFailed {
			mark = badColor.Sprint("✗")
		}
		fmt.Fprintf(p.out, "  %s %-8d [%d/%d]\n", mark, event.ItemID, event.Done, event.Pending)
	case processor.EventFlush:
		fmt.Fprintf(p.out, "💾 %s (%s): %d/%d processed, %d of %d listed still missing\n",
			event.Message, progressPercent(event.Done, event.Pending), event.Done, event.Pending, event.Gaps, event.Total)
	case processor.EventState:
		fmt.Fprintf(p.out, "▶ %s: %s\n", stateColor.Sprint(event.State), event.Message)
	}
}

func progressPercent(done, pending int) string {
	if pending == 0 {
		return "100.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(done)*100/float64(pending))
}

// PrintSummary outputs the final state of a processing run.
func (p *Printer) PrintSummary(s processor.Summary) {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Run:        %s\n", s.RunID)
	fmt.Fprintf(&sb, "Status:     %s\n", strings.ToUpper(string(s.Status)))
	fmt.Fprintf(&sb, "Elapsed:    %s\n", s.Elapsed.Round(time.Second))
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Reports listed:    %d\n", s.Total)
	fmt.Fprintf(&sb, "Processed now:     %d of %d pending\n", s.ProcessedThisRun, s.Pending)
	fmt.Fprintf(&sb, "Succeeded:         %d\n", s.Succeeded)
	fmt.Fprintf(&sb, "Failed:            %d\n", s.Failed)

	if len(s.FailuresByKind) > 0 {
		sb.WriteString("\nFailures by kind:\n")
		for _, kind := range sortedKinds(s.FailuresByKind) {
			fmt.Fprintf(&sb, "  • %-14s %d\n", kind, s.FailuresByKind[kind])
		}
	}

	if len(s.FailureReasons) > 0 {
		sb.WriteString("\nTop failure reasons:\n")
		reasons := sortedReasons(s.FailureReasons)
		count := min(len(reasons), 3)
		for i := 0; i < count; i++ {
			fmt.Fprintf(&sb, "  • %dx %s\n", s.FailureReasons[reasons[i]], reasons[i])
		}
	}

	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Missing:  %s\n", audit.FormatRanges(s.Gaps))
	if len(s.Extra) > 0 {
		fmt.Fprintf(&sb, "Extra:    %s\n", audit.FormatRanges(s.Extra))
	}

	p.printBox("PROCESSING SUMMARY", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintAudit outputs a gap report.
func (p *Printer) PrintAudit(r audit.Report) {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Reports listed:  %d\n", r.SourceCount)
	fmt.Fprintf(&sb, "Results stored:  %d\n", r.ResultCount)
	fmt.Fprintf(&sb, "Missing (%d):    %s\n", len(r.Missing), audit.FormatRanges(r.Missing))
	fmt.Fprintf(&sb, "Extra (%d):      %s\n", len(r.Extra), audit.FormatRanges(r.Extra))
	if r.Complete() {
		sb.WriteString("\n✅ Every listed report has a result")
	} else {
		sb.WriteString("\n⚠️  Run `process` again to fill the gaps")
	}

	p.printBox("GAP AUDIT", sb.String())
}

// PrintActivity outputs band counts and the most active reports.
func (p *Printer) PrintActivity(s activity.Summary) {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Reports scored:   %d\n", s.Total)
	fmt.Fprintf(&sb, "Recently used:    %d\n", s.RecentlyUsed)
	sb.WriteString("\n")
	for _, band := range []types.ActivityBand{types.BandHigh, types.BandMedium, types.BandLow, types.BandNone} {
		fmt.Fprintf(&sb, "  %-12s %d\n", band, s.Bands[band])
	}

	if len(s.MostActive) > 0 {
		sb.WriteString("\nMost active:\n")
		count := min(len(s.MostActive), maxItemsToShow)
		for i := 0; i < count; i++ {
			r := s.MostActive[i]
			name := r.Name
			if len([]rune(name)) > 32 {
				name = string([]rune(name)[:29]) + "..."
			}
			fmt.Fprintf(&sb, "  %3d  %-6d %s\n", r.ActivityScore, r.ItemID, name)
		}
		if len(s.MostActive) > maxItemsToShow {
			fmt.Fprintf(&sb, "  ... and %d more\n", len(s.MostActive)-maxItemsToShow)
		}
	}

	p.printBox("REPORT ACTIVITY", strings.TrimSuffix(sb.String(), "\n"))
}

func sortedKinds(m map[types.FailureKind]int) []types.FailureKind {
	kinds := make([]types.FailureKind, 0, len(m))
	for k := range m {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// sortedReasons orders reasons by count descending, then text.
func sortedReasons(m map[string]int) []string {
	reasons := make([]string, 0, len(m))
	for r := range m {
		reasons = append(reasons, r)
	}
	sort.Slice(reasons, func(i, j int) bool {
		if m[reasons[i]] != m[reasons[j]] {
			return m[reasons[i]] > m[reasons[j]]
		}
		return reasons[i] < reasons[j]
	})
	return reasons
}
