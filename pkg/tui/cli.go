// Package tui provides the terminal front end: styled output, progress
// bars and the interactive comparison session.
package tui

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"

	"github.com/docdiff/docdiff/internal/model"
	"github.com/docdiff/docdiff/pkg/compare"
)

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	warning = lipgloss.Color("#FFAA00")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(warning)
	headerStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
)

// Version is printed in the session header.
var Version = "dev"

// PrintHeader prints the session banner.
func PrintHeader(w io.Writer) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render("  DOCDIFF")+mutedStyle.Render(" "+Version))
	fmt.Fprintln(w, mutedStyle.Render("  Compare documents and ask questions about the differences"))
	fmt.Fprintln(w, mutedStyle.Render("  Type :help for commands"))
	fmt.Fprintln(w)
}

// PrintResult prints a comparison result, highlighting pair headers.
func PrintResult(w io.Writer, result *compare.Result) {
	if result.Summary != nil {
		fmt.Fprintln(w, result.Summary.String())
		return
	}
	for i := range result.Report.Pairs {
		p := &result.Report.Pairs[i]
		fmt.Fprintln(w, headerStyle.Render(p.Header()))
		body := p.Body()
		if p.Identical() {
			body = successStyle.Render(body)
		}
		fmt.Fprintln(w, body)
		fmt.Fprintln(w)
	}
}

// PrintSources lists attached sources with their position.
func PrintSources(w io.Writer, paths []string, sources []*model.Source) {
	if len(sources) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("  No sources attached."))
		return
	}
	for i, src := range sources {
		detail := fmt.Sprintf("%s %s", src.Kind, src.Shape())
		if src.IsText() {
			detail = fmt.Sprintf("text, %d chars", len(src.Content))
		}
		fmt.Fprintf(w, "  %s %s %s\n",
			accentStyle.Render(fmt.Sprintf("%d.", i+1)),
			paths[i],
			mutedStyle.Render("("+detail+")"))
	}
}

// PrintWarning prints a non-fatal problem.
func PrintWarning(w io.Writer, msg string) {
	fmt.Fprintln(w, warningStyle.Render("  ! "+msg))
}

// PrintError prints a failed operation.
func PrintError(w io.Writer, err error) {
	fmt.Fprintln(w, accentStyle.Render("  ✗ "+err.Error()))
}

// PrintSuccess prints a completed operation.
func PrintSuccess(w io.Writer, msg string) {
	fmt.Fprintln(w, successStyle.Render("  ✓ "+msg))
}

// PrintMuted prints secondary information.
func PrintMuted(w io.Writer, msg string) {
	fmt.Fprintln(w, mutedStyle.Render(msg))
}

// ExpandPath strips drag-and-drop quotes and expands a leading ~.
func ExpandPath(path string) string {
	path = strings.Trim(strings.TrimSpace(path), "\"'")
	if strings.HasPrefix(path, "~") {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[1:])
	}
	return path
}

// FormatBytes renders a byte count with a binary unit.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

// FormatDuration formats a duration in a human-readable way.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

// ShowProgress creates a progress bar for loading sources.
func ShowProgress(w io.Writer, total int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(false),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}
