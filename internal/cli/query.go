package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"feedprobe/internal/client"
	"feedprobe/internal/feed"
	"feedprobe/internal/nupkg"
	"feedprobe/internal/protocol"
)

func newQueryCmd(opts *rootOptions) *cobra.Command {
	var (
		id      string
		version string
		custom  bool
	)

	cmd := &cobra.Command{
		Use:   "query [filter]",
		Short: "Query the package collection",
		Long: `Query Packages() with an OData $filter expression.

Either pass the expression directly or build one with --id and --version.

Examples:
  feedprobe query "startswith(Id, 'Contoso.')"
  feedprobe query --id Contoso.Lib --version 1.2.0
  feedprobe query --id Contoso.Lib --version 1.2.0 --custom`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := buildFilter(args, id, version, custom)
			if err != nil {
				return err
			}

			c, src, err := opts.clientFor()
			if err != nil {
				return err
			}

			ctx, cancel := client.WithTimeout(cmd.Context())
			defer cancel()

			result, err := c.GetPackageCollection(ctx, src, filter)
			if err != nil {
				return err
			}

			f, ok := result.Data()
			if !ok {
				return fmt.Errorf("query failed: %s", result)
			}

			p := opts.printer(cmd.OutOrStdout())
			if !p.json {
				p.Info("🔍 %d entries for %q", len(f.Entries), filter)
			}
			return p.Entries(f.Entries)
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "package id to filter on")
	cmd.Flags().StringVar(&version, "version", "", "package version to filter on (requires --id)")
	cmd.Flags().BoolVar(&custom, "custom", false, "add the never-matching clause to the id/version filter")
	return cmd
}

// buildFilter returns the raw expression or one built from id and version
func buildFilter(args []string, id, version string, custom bool) (string, error) {
	if len(args) == 1 {
		if id != "" || version != "" {
			return "", fmt.Errorf("pass either a filter or --id/--version, not both")
		}
		return args[0], nil
	}
	if id == "" || version == "" {
		if id == "" && version == "" && !custom {
			return "", nil
		}
		return "", fmt.Errorf("--id and --version must be used together")
	}

	identity := feed.Identity{ID: id, Version: nupkg.NormalizeVersion(version)}
	if custom {
		return protocol.CustomFilter(identity), nil
	}
	return protocol.SimpleFilter(identity), nil
}
