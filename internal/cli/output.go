package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"feedprobe/internal/client"
	"feedprobe/internal/feed"
)

// printer writes command output either as colored text and tables or as JSON
type printer struct {
	out  io.Writer
	json bool

	success func(format string, a ...interface{}) string
	warning func(format string, a ...interface{}) string
	info    func(format string, a ...interface{}) string
}

func newPrinter(out io.Writer, jsonOutput bool) *printer {
	return &printer{
		out:     out,
		json:    jsonOutput,
		success: color.New(color.FgGreen).SprintfFunc(),
		warning: color.New(color.FgYellow).SprintfFunc(),
		info:    color.New(color.FgBlue).SprintfFunc(),
	}
}

func (p *printer) Success(format string, a ...interface{}) {
	fmt.Fprintln(p.out, p.success("✅ "+format, a...))
}

func (p *printer) Warn(format string, a ...interface{}) {
	fmt.Fprintln(p.out, p.warning("⚠️  "+format, a...))
}

func (p *printer) Info(format string, a ...interface{}) {
	fmt.Fprintln(p.out, p.info(format, a...))
}

func (p *printer) Plain(format string, a ...interface{}) {
	fmt.Fprintf(p.out, format+"\n", a...)
}

// JSON writes v indented
func (p *printer) JSON(v interface{}) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Table renders rows under headers
func (p *printer) Table(headers []string, rows [][]string) error {
	table := tablewriter.NewTable(p.out)
	table.Header(headers)
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}

// Entries prints feed entries as JSON or a table
func (p *printer) Entries(entries []feed.Entry) error {
	if p.json {
		return p.JSON(entries)
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{e.ID, e.Version, strconv.FormatBool(e.Listed), formatPublished(e), formatSize(e.PackageSize)})
	}
	return p.Table([]string{"ID", "Version", "Listed", "Published", "Size"}, rows)
}

// PushResult prints the outcome of a conditional push
func (p *printer) PushResult(file string, r client.ConditionalPushResult, unlistStatus int) error {
	if p.json {
		out := struct {
			File string `json:"file"`
			client.ConditionalPushResult
			Status           int `json:"package_status"`
			UnlistStatusCode int `json:"unlist_status_code,omitempty"`
		}{file, r, r.PackageResult.StatusCode(), unlistStatus}
		return p.JSON(out)
	}

	switch {
	case r.PackageAlreadyExists:
		p.Info("📦 %s already exists, not pushed", r.Identity)
	case !r.PushAttempted:
		p.Warn("%s: existence check returned %s, not pushed", r.Identity, r.PackageResult)
	case r.PackagePushSuccessfully:
		p.Success("Pushed %s", r.Identity)
	case r.PackageResult.IsZero():
		p.Warn("%s pushed (status %d) without a visibility check", r.Identity, r.PushStatusCode)
	case r.PackageResult.NotFound():
		p.Warn("%s pushed (status %d) but never became visible", r.Identity, r.PushStatusCode)
	default:
		p.Warn("%s pushed (status %d) but the last lookup returned %s", r.Identity, r.PushStatusCode, r.PackageResult)
	}

	rows := [][]string{
		{"File", file},
		{"Package", r.Identity.String()},
		{"Already exists", strconv.FormatBool(r.PackageAlreadyExists)},
		{"Push attempted", strconv.FormatBool(r.PushAttempted)},
		{"Push status", formatStatus(r.PushStatusCode)},
		{"Time to push", formatDuration(r.TimeToPush, r.PushAttempted)},
		{"Visible", strconv.FormatBool(r.PackagePushSuccessfully)},
	}
	if r.TimeToBeAvailable != nil {
		rows = append(rows, []string{"Time to be available", r.TimeToBeAvailable.Round(time.Millisecond).String()})
	}
	rows = append(rows, []string{"Last lookup", r.PackageResult.String()})
	if unlistStatus != 0 {
		rows = append(rows, []string{"Unlist status", formatStatus(unlistStatus)})
	}
	return p.Table([]string{"Field", "Value"}, rows)
}

func formatPublished(e feed.Entry) string {
	if !e.Listed {
		return "unlisted"
	}
	if e.Published.IsZero() {
		return "-"
	}
	return e.Published.UTC().Format(time.RFC3339)
}

func formatSize(n int64) string {
	if n <= 0 {
		return "-"
	}
	if n < 1024 {
		return fmt.Sprintf("%d B", n)
	}
	return fmt.Sprintf("%.1f KiB", float64(n)/1024)
}

func formatStatus(code int) string {
	if code == 0 {
		return "-"
	}
	return strconv.Itoa(code)
}

func formatDuration(d time.Duration, set bool) string {
	if !set {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}
