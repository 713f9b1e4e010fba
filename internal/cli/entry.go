package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"feedprobe/internal/client"
	"feedprobe/internal/feed"
	"feedprobe/internal/nupkg"
)

func newEntryCmd(opts *rootOptions) *cobra.Command {
	var lookup string

	cmd := &cobra.Command{
		Use:   "entry <id> <version>",
		Short: "Look up a single package entry",
		Long: `Look up one package version on the source.

--lookup picks how: entry addresses Packages(Id,Version) directly, filter and
custom-filter query the collection and fail when more than one entry matches.
Without it the source's configured lookup is used.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lookupOpts, err := lookupOption(cmd, lookup)
			if err != nil {
				return err
			}

			c, src, err := opts.clientFor(lookupOpts...)
			if err != nil {
				return err
			}

			ctx, cancel := client.WithTimeout(cmd.Context())
			defer cancel()

			id := feed.Identity{ID: args[0], Version: nupkg.NormalizeVersion(args[1])}
			result, err := c.FindPackageEntry(ctx, src, id)
			if err != nil {
				return err
			}

			entry, ok := result.Data()
			if !ok {
				return fmt.Errorf("%s: %s", id, result)
			}
			return opts.printer(cmd.OutOrStdout()).Entries([]feed.Entry{entry})
		},
	}

	cmd.Flags().StringVar(&lookup, "lookup", "", "lookup strategy: entry, filter or custom-filter")
	return cmd
}

// lookupOption turns --lookup, when given, into a client option
func lookupOption(cmd *cobra.Command, value string) ([]client.Option, error) {
	if !cmd.Flags().Changed("lookup") {
		return nil, nil
	}
	l, err := client.ParseLookup(value)
	if err != nil {
		return nil, err
	}
	return []client.Option{client.WithLookup(l)}, nil
}
