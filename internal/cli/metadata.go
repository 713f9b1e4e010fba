package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"feedprobe/internal/client"
)

func newMetadataCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "metadata",
		Short: "Show the feed's service metadata",
		Long: `Fetch $metadata from the source and list the entity sets and functions it
declares.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, src, err := opts.clientFor()
			if err != nil {
				return err
			}

			ctx, cancel := client.WithTimeout(cmd.Context())
			defer cancel()

			md, err := c.GetMetadata(ctx, src)
			if err != nil {
				return err
			}

			p := opts.printer(cmd.OutOrStdout())
			if p.json {
				return p.JSON(md)
			}

			p.Info("📋 %s", src)
			return p.Table([]string{"Property", "Value"}, [][]string{
				{"DataServiceVersion", orDash(md.DataServiceVersion)},
				{"Schema", orDash(md.SchemaNamespace)},
				{"Entity sets", orDash(strings.Join(md.EntitySets, ", "))},
				{"Functions", orDash(strings.Join(md.FunctionImports, ", "))},
			})
		},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
