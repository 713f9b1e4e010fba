package cli

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"feedprobe/internal/client"
	"feedprobe/internal/feed"
	"feedprobe/internal/nupkg"
)

func newDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id> <version>",
		Aliases: []string{"unlist"},
		Short:   "Delete (unlist) a package version",
		Long: `Send DELETE for a package version. V2 feeds unlist rather than remove: the
entry stays addressable but drops out of collection queries.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, src, err := opts.clientFor()
			if err != nil {
				return err
			}

			ctx, cancel := client.WithTimeout(cmd.Context())
			defer cancel()

			id := feed.Identity{ID: args[0], Version: nupkg.NormalizeVersion(args[1])}
			code, err := c.DeletePackage(ctx, src, id)
			if err != nil {
				return err
			}

			p := opts.printer(cmd.OutOrStdout())
			if p.json {
				return p.JSON(map[string]interface{}{"identity": id, "status_code": code})
			}
			if code < 200 || code > 299 {
				return fmt.Errorf("delete %s: %d %s", id, code, http.StatusText(code))
			}
			p.Success("Unlisted %s (%d)", id, code)
			return nil
		},
	}
}
