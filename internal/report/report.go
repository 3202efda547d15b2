package report

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"imgcluster/internal/clustering"
	"imgcluster/internal/core"
	"imgcluster/internal/store"

	"github.com/charmbracelet/lipgloss"
)

// maxListedFailures caps the failure list printed under a run summary
const maxListedFailures = 10

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	labelStyle = lipgloss.NewStyle().Width(12).Foreground(lipgloss.Color("245"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// RunSummary writes a styled summary of a finished run
func RunSummary(w io.Writer, run *core.RunResult) {
	var rows []string
	row := func(label, value string) {
		rows = append(rows, labelStyle.Render(label)+value)
	}

	row("Run", run.ID)
	row("Input", run.InputDir)
	if run.DryRun {
		row("Output", dimStyle.Render("dry run, nothing copied"))
	} else {
		row("Output", run.OutputDir)
	}
	row("Parameters", fmt.Sprintf("eps=%g min_samples=%d metric=%s", run.Params.Eps, run.Params.MinSamples, run.Params.Metric))
	row("Images", fmt.Sprintf("%d", len(run.Images)))
	row("Clusters", fmt.Sprintf("%d", run.Clusters))
	row("Noise", fmt.Sprintf("%d", run.Noise))
	row("Silhouette", silhouetteText(run))
	if run.Duration > 0 {
		row("Duration", run.Duration.Round(time.Millisecond).String())
	}

	fmt.Fprintln(w, titleStyle.Render("✅ Clustering complete"))
	fmt.Fprintln(w, boxStyle.Render(strings.Join(rows, "\n")))

	if len(run.Groups) > 0 {
		fmt.Fprintln(w)
		for _, group := range run.Groups {
			line := fmt.Sprintf("  %-16s %4d", group.Name, len(group.Members))
			if score, ok := run.ClusterSilhouettes[group.Label]; ok {
				line += fmt.Sprintf("  silhouette %5.2f", score)
			}
			line += " " + bar(len(group.Members), len(run.Images))
			if group.IsNoise() {
				line = dimStyle.Render(line)
			}
			fmt.Fprintln(w, line)
		}
	}

	if len(run.Failures) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("⚠️  %d files were skipped:", len(run.Failures))))
		for i, failure := range run.Failures {
			if i == maxListedFailures {
				fmt.Fprintf(w, "   … and %d more\n", len(run.Failures)-maxListedFailures)
				break
			}
			fmt.Fprintf(w, "   • %s\n", failure.Error())
		}
	}
}

func silhouetteText(run *core.RunResult) string {
	if run.Clusters < 2 {
		return dimStyle.Render("n/a (needs at least 2 clusters)")
	}
	return fmt.Sprintf("%.3f (%s)", run.Silhouette, clustering.InterpretSilhouetteScore(run.Silhouette))
}

// bar draws a proportional bar of at most 30 cells
func bar(n, total int) string {
	if total == 0 || n == 0 {
		return ""
	}
	cells := n * 30 / total
	if cells == 0 {
		cells = 1
	}
	return strings.Repeat("█", cells)
}

// RunsTable writes the run history, newest first
func RunsTable(w io.Writer, runs []store.RunSummary) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded yet. Run 'imgcluster cluster <dir>' first.")
		return
	}

	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("📚 %d recent runs", len(runs))))
	header := fmt.Sprintf("%-8s  %-16s  %6s  %6s  %8s  %5s  %-24s", "ID", "When", "Images", "Groups", "Noise", "Eps", "Input")
	fmt.Fprintln(w, dimStyle.Render(header))

	for _, run := range runs {
		id := run.ID
		if len(id) > 8 {
			id = id[:8]
		}
		line := fmt.Sprintf("%-8s  %-16s  %6d  %6d  %8d  %5g  %-24s",
			id,
			run.CreatedAt.Local().Format("2006-01-02 15:04"),
			run.Images,
			run.Clusters,
			run.Noise,
			run.Params.Eps,
			filepath.Base(run.InputDir),
		)
		if run.DryRun {
			line += dimStyle.Render(" (dry run)")
		}
		fmt.Fprintln(w, line)
	}
}

// EpsSuggestion writes a suggested eps and a coarse view of the k-distance curve
func EpsSuggestion(w io.Writer, eps float64, kdist []float64, minSamples int) {
	fmt.Fprintln(w, titleStyle.Render("📏 eps suggestion"))
	if len(kdist) == 0 {
		fmt.Fprintln(w, "No images found, nothing to suggest.")
		return
	}

	fmt.Fprintf(w, "Distance of each image to its %d-th nearest neighbor (itself included):\n", minSamples)
	for _, pct := range []int{10, 25, 50, 75, 90, 100} {
		idx := (len(kdist) - 1) * pct / 100
		fmt.Fprintf(w, "  p%-3d %10.3f\n", pct, kdist[idx])
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, boxStyle.Render(fmt.Sprintf("Suggested --eps %.3f --min-samples %d", eps, minSamples)))
}
