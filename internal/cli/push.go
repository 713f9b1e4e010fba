package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"feedprobe/internal/client"
	"feedprobe/internal/feed"
	"feedprobe/internal/nupkg"
	"feedprobe/internal/poll"
)

type pushOptions struct {
	unlist   bool
	force    bool
	lookup   string
	interval time.Duration
	timeout  time.Duration
	parallel int
}

// pushOutcome is one file's result, printed in argument order
type pushOutcome struct {
	file   string
	result client.ConditionalPushResult
	unlist int
	err    error
}

func newPushCmd(opts *rootOptions) *cobra.Command {
	po := &pushOptions{}

	cmd := &cobra.Command{
		Use:   "push <package|glob>...",
		Short: "Push packages that are not on the feed yet",
		Long: `Push each package unless its id and version already exist on the source,
then poll until the new entry is visible and report how long that took.

Globs support ** (for example "out/**/*.nupkg").

With --unlist every package is deleted (unlisted) after the push attempt,
whatever it did, which keeps repeated probes from filling the feed.
--force skips the existence check and polling and pushes unconditionally.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPush(cmd, opts, po, args)
		},
	}

	cmd.Flags().BoolVar(&po.unlist, "unlist", false, "unlist each package after pushing")
	cmd.Flags().BoolVar(&po.force, "force", false, "push without checking for an existing entry")
	cmd.Flags().StringVar(&po.lookup, "lookup", "", "existence lookup: entry, filter or custom-filter")
	cmd.Flags().DurationVar(&po.interval, "interval", 0, "poll interval, at least 1s (default from config, 1s)")
	cmd.Flags().DurationVar(&po.timeout, "timeout", 0, "poll timeout measured from push start (default from config, 20m)")
	cmd.Flags().IntVarP(&po.parallel, "parallel", "p", 1, "packages pushed concurrently")
	return cmd
}

func runPush(cmd *cobra.Command, opts *rootOptions, po *pushOptions, patterns []string) error {
	if po.force && po.unlist {
		return fmt.Errorf("--force and --unlist cannot be combined")
	}
	if po.parallel < 1 {
		return fmt.Errorf("--parallel must be at least 1")
	}
	if cmd.Flags().Changed("interval") && po.interval < poll.DefaultInterval {
		return fmt.Errorf("--interval must be at least %s", poll.DefaultInterval)
	}
	if cmd.Flags().Changed("timeout") && po.timeout <= 0 {
		return fmt.Errorf("--timeout must be positive")
	}

	files, err := nupkg.ExpandPatterns(patterns)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no packages matched %v", patterns)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if po.interval != 0 {
		cfg.Poll.Interval = po.interval.String()
	}
	if po.timeout != 0 {
		cfg.Poll.Timeout = po.timeout.String()
	}

	clientOpts, err := lookupOption(cmd, po.lookup)
	if err != nil {
		return err
	}
	c, src, err := opts.clientFrom(cfg, clientOpts...)
	if err != nil {
		return err
	}

	p := opts.printer(cmd.OutOrStdout())
	if !p.json {
		policy := c.PollPolicy()
		p.Info("📦 Pushing %d package(s) to %s (poll every %s for up to %s)", len(files), src, policy.Interval, policy.Timeout)
	}

	outcomes := make([]pushOutcome, len(files))
	var g errgroup.Group
	g.SetLimit(po.parallel)
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			outcomes[i] = pushFile(cmd.Context(), c, src, file, po)
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, o := range outcomes {
		if o.err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", filepath.Base(o.file), o.err))
			if o.result.Identity.IsZero() {
				p.Warn("%s: %v", filepath.Base(o.file), o.err)
				continue
			}
		}
		if err := p.PushResult(o.file, o.result, o.unlist); err != nil {
			return err
		}
	}
	return errors.Join(errs...)
}

func pushFile(ctx context.Context, c *client.Client, src feed.Source, file string, po *pushOptions) pushOutcome {
	out := pushOutcome{file: file}

	f, err := os.Open(file)
	if err != nil {
		out.err = err
		return out
	}
	defer f.Close()

	ctx, cancel := client.WithPushTimeout(ctx, c.PollPolicy())
	defer cancel()

	switch {
	case po.force:
		id, err := nupkg.NewReader().GetPackageIdentity(f)
		if err != nil {
			out.err = err
			return out
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			out.err = err
			return out
		}
		start := time.Now()
		code, err := c.PushPackage(ctx, src, f)
		out.result = client.ConditionalPushResult{
			Identity:       id,
			PushAttempted:  true,
			PushStatusCode: code,
			TimeToPush:     time.Since(start),
		}
		out.err = err
		if err == nil && (code < 200 || code > 299) {
			out.err = fmt.Errorf("push rejected with status %d", code)
		}

	case po.unlist:
		result, err := c.PushAndUnlistPackageIfNotExists(ctx, src, f)
		out.result = result.ConditionalPushResult
		out.unlist = result.UnlistStatusCode
		out.err = err

	default:
		out.result, out.err = c.PushPackageIfNotExists(ctx, src, f)
	}
	return out
}
