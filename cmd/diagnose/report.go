package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
)

var statusColors = map[string]*color.Color{
	Pass: color.New(color.FgGreen, color.Bold),
	Fail: color.New(color.FgRed, color.Bold),
	Warn: color.New(color.FgYellow),
	Skip: color.New(color.FgCyan),
}

// PrintSummary writes the step table and the confirmed and cleared suspects.
// A suspect confirmed by any step is never listed as cleared.
func PrintSummary(w io.Writer, results []StepResult) {
	fmt.Fprintf(w, "\n%s\n  SUMMARY\n%s\n", rule, rule)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  STEP\tNAME\tSTATUS\tNOTES")
	for _, r := range results {
		status := r.Status
		if c, ok := statusColors[r.Status]; ok {
			status = c.Sprint(r.Status)
		}
		fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\n", r.Num, r.Name, status, r.Notes)
	}
	tw.Flush()

	confirmed, cleared := SuspectSets(results)
	fmt.Fprintf(w, "\n  SUSPECTS CONFIRMED: %s\n", describe(confirmed))
	fmt.Fprintf(w, "  SUSPECTS CLEARED:   %s\n\n", describe(cleared))
}

// SuspectSets collects suspect ids across steps, sorted.
func SuspectSets(results []StepResult) (confirmed, cleared []string) {
	conf := map[string]bool{}
	clr := map[string]bool{}
	for _, r := range results {
		for _, s := range r.Confirmed {
			conf[s] = true
		}
		for _, s := range r.Cleared {
			clr[s] = true
		}
	}
	for s := range conf {
		confirmed = append(confirmed, s)
	}
	for s := range clr {
		if !conf[s] {
			cleared = append(cleared, s)
		}
	}
	sort.Strings(confirmed)
	sort.Strings(cleared)
	return confirmed, cleared
}

// AnyFailed reports whether any step ended in FAIL.
func AnyFailed(results []StepResult) bool {
	for _, r := range results {
		if r.Status == Fail {
			return true
		}
	}
	return false
}

func describe(ids []string) string {
	if len(ids) == 0 {
		return "(none)"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%s (%s)", id, Suspects[id])
	}
	return strings.Join(parts, ", ")
}
