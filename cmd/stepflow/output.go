package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/rendis/stepflow/internal/pieces"
	"github.com/rendis/stepflow/internal/store"
	"github.com/rendis/stepflow/pkg/schema"
)

var (
	headerStyle  = color.New(color.FgCyan, color.Bold)
	successStyle = color.New(color.FgGreen, color.Bold)
	errorStyle   = color.New(color.FgRed, color.Bold)
	warnStyle    = color.New(color.FgYellow)
	stepStyle    = color.New(color.FgMagenta)
	mutedStyle   = color.New(color.FgHiBlack)
)

const (
	checkmark = "✓"
	xmark     = "✗"
	warnmark  = "!"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func statusMark(status schema.StepStatus) string {
	if status == schema.StepStatusFailed {
		return errorStyle.Sprint(xmark)
	}
	return successStyle.Sprint(checkmark)
}

func statusText(status schema.StepStatus) string {
	switch status {
	case schema.StepStatusSucceeded:
		return successStyle.Sprint(status)
	case schema.StepStatusFailed:
		return errorStyle.Sprint(status)
	default:
		return warnStyle.Sprint(status)
	}
}

func formatDuration(ms int64) string {
	return (time.Duration(ms) * time.Millisecond).String()
}

// printRunResult renders a run as a step tree. Loop iterations are nested
// under their loop when the in-memory result is available.
func printRunResult(w io.Writer, r *schema.RunResult) {
	title := r.RunID
	if r.FlowName != "" {
		title = fmt.Sprintf("%s (%s)", r.FlowName, r.RunID)
	}
	fmt.Fprintf(w, "%s %s %s %s\n",
		headerStyle.Sprint("run"), title, statusText(r.Status), mutedStyle.Sprint(formatDuration(r.DurationMs)))
	printSteps(w, r.Steps, 1)
	if r.Status == schema.StepStatusFailed {
		fmt.Fprintf(w, "%s %s failed: %s\n", errorStyle.Sprint(xmark), r.FailedStep, errorText(r.ErrorCode, r.ErrorMessage))
	}
}

func printSteps(w io.Writer, steps *schema.StepRecord, depth int) {
	if steps == nil {
		return
	}
	indent := strings.Repeat("  ", depth)
	for _, name := range steps.Names() {
		out, _ := steps.Get(name)
		line := fmt.Sprintf("%s%s %s", indent, statusMark(out.Status), stepStyle.Sprint(name))
		if out.Type != "" {
			line += " " + mutedStyle.Sprint(out.Type)
		}
		if out.DurationMs > 0 {
			line += " " + mutedStyle.Sprint(formatDuration(out.DurationMs))
		}
		if out.Failed() {
			line += " " + errorStyle.Sprint(errorText(out.ErrorCode, out.ErrorMessage))
		}
		fmt.Fprintln(w, line)

		if loop, ok := out.Output.(*schema.LoopOutput); ok {
			for i, iter := range loop.Iterations {
				fmt.Fprintf(w, "%s  %s\n", indent, mutedStyle.Sprintf("[%d]", i))
				printSteps(w, iter, depth+2)
			}
		}
	}
}

func errorText(code, message string) string {
	if code == "" {
		return message
	}
	return code + ": " + message
}

// printValidation lists errors then warnings. It returns true when the
// result has no errors.
func printValidation(w io.Writer, r *schema.ValidationResult) bool {
	for _, issue := range r.Errors {
		fmt.Fprintf(w, "%s %s %s %s\n", errorStyle.Sprint(xmark),
			mutedStyle.Sprintf("[%s]", issue.Stage), mutedStyle.Sprint(issue.Path), issue.Message)
	}
	for _, issue := range r.Warnings {
		fmt.Fprintf(w, "%s %s %s\n", warnStyle.Sprint(warnmark), mutedStyle.Sprint(issue.Path), issue.Message)
	}
	return r.Valid()
}

func printRunSummaries(w io.Writer, runs []*store.RunSummary) error {
	if len(runs) == 0 {
		fmt.Fprintln(w, mutedStyle.Sprint("no runs found"))
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tFLOW\tSTATUS\tSTARTED\tDURATION\tFAILED STEP")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.RunID, r.FlowName, r.Status,
			r.StartedAt.Local().Format(time.DateTime),
			formatDuration(r.DurationMs), r.FailedStep)
	}
	return tw.Flush()
}

func printJournal(w io.Writer, events []*store.StepEvent) {
	if len(events) == 0 {
		return
	}
	fmt.Fprintln(w, headerStyle.Sprint("journal"))
	for _, ev := range events {
		line := fmt.Sprintf("  %3d %s %s", ev.Sequence, statusMark(ev.Status), store.StepPath(ev.Scope, ev.Step))
		if ev.ErrorCode != "" {
			line += " " + errorStyle.Sprint(ev.ErrorCode)
		}
		fmt.Fprintf(w, "%s %s\n", line, mutedStyle.Sprint(formatDuration(ev.DurationMs)))
	}
}

func printPieces(w io.Writer, infos []pieces.PieceInfo) {
	for _, p := range infos {
		fmt.Fprintln(w, headerStyle.Sprint(p.Name))
		for _, a := range p.Actions {
			if a.Description == "" {
				fmt.Fprintf(w, "  %s\n", a.Name)
				continue
			}
			fmt.Fprintf(w, "  %s %s\n", a.Name, mutedStyle.Sprint(a.Description))
		}
	}
}
