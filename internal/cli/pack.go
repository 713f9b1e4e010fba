package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"feedprobe/internal/nupkg"
)

type packOptions struct {
	manifest nupkg.Manifest
	output   string
	unique   bool
}

func newPackCmd(opts *rootOptions) *cobra.Command {
	po := &packOptions{}

	cmd := &cobra.Command{
		Use:   "pack [file patterns...]",
		Short: "Build a .nupkg package",
		Long: `Build a .nupkg holding a generated .nuspec and any files matching the given
patterns. Patterns support ** globs.

--unique appends a timestamp prerelease label to the version so every run
produces a package the feed has never seen, which is what a visibility probe
needs.

Examples:
  feedprobe pack --id Probe.Package --version 1.0.0
  feedprobe pack --id Probe.Package --version 1.0.0 --unique -o out/
  feedprobe pack --id Probe.Content --version 2.0.0 "content/**/*.txt"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPack(cmd, opts, po, args)
		},
	}

	cmd.Flags().StringVar(&po.manifest.ID, "id", "", "package id (required)")
	cmd.Flags().StringVar(&po.manifest.Version, "version", "1.0.0", "package version")
	cmd.Flags().StringVar(&po.manifest.Authors, "authors", "feedprobe", "package authors")
	cmd.Flags().StringVar(&po.manifest.Description, "description", "Package generated by feedprobe", "package description")
	cmd.Flags().StringVar(&po.manifest.Title, "title", "", "package title")
	cmd.Flags().StringVar(&po.manifest.Tags, "tags", "", "space separated tags")
	cmd.Flags().StringVarP(&po.output, "output", "o", "", "output file or directory (default: current directory)")
	cmd.Flags().BoolVar(&po.unique, "unique", false, "append a timestamp prerelease label to the version")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}

func runPack(cmd *cobra.Command, opts *rootOptions, po *packOptions, patterns []string) error {
	m := po.manifest
	if po.unique {
		m.Version = uniqueVersion(m.Version, time.Now().UTC())
	}
	if err := m.Validate(); err != nil {
		return err
	}

	out := packOutputPath(po.output, m)
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	info, err := nupkg.Pack(m, patterns, out)
	if err != nil {
		return fmt.Errorf("failed to pack: %w", err)
	}

	opts.logger().Debug("package built",
		zap.String("path", info.Path),
		zap.Int64("size", info.SizeBytes))

	p := opts.printer(cmd.OutOrStdout())
	if p.json {
		return p.JSON(struct {
			ID      string `json:"id"`
			Version string `json:"version"`
			*nupkg.ArchiveInfo
		}{m.Identity().ID, m.Identity().Version, info})
	}
	p.Success("Packed %s %s", m.Identity().ID, m.Identity().Version)
	p.Plain("  File:   %s", info.Path)
	p.Plain("  Size:   %s", formatSize(info.SizeBytes))
	p.Plain("  SHA256: %s", info.SHA256)
	return nil
}

// uniqueVersion keeps the numeric part of v and replaces any prerelease label
// with one derived from now
func uniqueVersion(v string, now time.Time) string {
	core, _ := splitVersionLabel(nupkg.NormalizeVersion(v))
	return fmt.Sprintf("%s-probe.%s", core, now.Format("20060102150405"))
}

func splitVersionLabel(v string) (string, string) {
	for i, c := range v {
		if c == '-' || c == '+' {
			return v[:i], v[i:]
		}
	}
	return v, ""
}

// packOutputPath treats an empty output or an existing directory as the place
// to write the conventional file name
func packOutputPath(output string, m nupkg.Manifest) string {
	name := nupkg.FileName(m)
	if output == "" {
		return name
	}
	if isDir(output) || output[len(output)-1] == filepath.Separator || output[len(output)-1] == '/' {
		return filepath.Join(output, name)
	}
	return output
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
