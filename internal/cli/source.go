package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"feedprobe/internal/client"
	"feedprobe/internal/config"
	"feedprobe/internal/feed"
)

func newSourceCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "source",
		Short: "Manage feed sources",
		Long: `Manage the feeds feedprobe talks to.

A source is a feed root URL (for example https://host/api/v2) with an optional
API key and existence lookup strategy. The current source is used when no
--source flag is given.`,
	}

	cmd.AddCommand(newSourceAddCmd(opts))
	cmd.AddCommand(newSourceListCmd(opts))
	cmd.AddCommand(newSourceUseCmd(opts))
	cmd.AddCommand(newSourceRemoveCmd(opts))
	return cmd
}

func newSourceAddCmd(opts *rootOptions) *cobra.Command {
	var (
		apiKey    string
		promptKey bool
		lookup    string
	)

	cmd := &cobra.Command{
		Use:   "add <name> <url>",
		Short: "Add a feed source",
		Long: `Add a feed source.

Lookup strategies decide how the existence of a package is checked:
  entry          - GET Packages(Id='..',Version='..') (default)
  filter         - query the collection with an Id/Version filter
  custom-filter  - the same filter plus a clause that never matches

Examples:
  feedprobe source add local http://localhost:8080/api/v2
  feedprobe source add staging https://feed.example/api/v2 --prompt-key --lookup filter`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if promptKey {
				key, err := readSecret(cmd.InOrStdin(), cmd.ErrOrStderr(), "API key: ")
				if err != nil {
					return err
				}
				apiKey = key
			}
			return runSourceAdd(opts.printer(cmd.OutOrStdout()), args[0], args[1], apiKey, lookup)
		},
	}

	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key sent as X-NuGet-ApiKey")
	cmd.Flags().BoolVar(&promptKey, "prompt-key", false, "read the API key from the terminal without echo")
	cmd.Flags().StringVar(&lookup, "lookup", "", "existence lookup: entry, filter or custom-filter")
	return cmd
}

func runSourceAdd(p *printer, name, url, apiKey, lookup string) error {
	if !feed.IsHTTPURL(url) {
		return fmt.Errorf("source URL must be http or https: %s", url)
	}
	if _, err := client.ParseLookup(lookup); err != nil {
		return err
	}

	cfg, err := config.LoadCLI()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cfg.Sources[name] = config.Source{
		URL:    strings.TrimRight(url, "/"),
		APIKey: apiKey,
		Lookup: lookup,
	}

	// Set as current if it's the first one
	if cfg.Current == "" {
		cfg.Current = name
	}

	if err := config.SaveCLI(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	p.Success("Added source '%s'", name)
	p.Plain("🌐 URL: %s", cfg.Sources[name].URL)
	if cfg.Current == name {
		p.Plain("⭐ Set as current source")
	}
	if apiKey == "" {
		p.Plain("💡 No API key set; push and delete will be rejected by feeds that require one")
	}
	return nil
}

func newSourceListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSourceList(opts.printer(cmd.OutOrStdout()))
		},
	}
}

func runSourceList(p *printer) error {
	cfg, err := config.LoadCLI()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if len(cfg.Sources) == 0 {
		p.Plain("No sources configured.")
		p.Plain("Add a source with: feedprobe source add <name> <url>")
		return nil
	}

	if p.json {
		type listed struct {
			Name    string `json:"name"`
			URL     string `json:"url"`
			Lookup  string `json:"lookup"`
			HasKey  bool   `json:"has_api_key"`
			Current bool   `json:"current"`
		}
		out := make([]listed, 0, len(cfg.Sources))
		for _, name := range cfg.SourceNames() {
			s := cfg.Sources[name]
			out = append(out, listed{name, s.URL, lookupName(s.Lookup), s.APIKey != "", name == cfg.Current})
		}
		return p.JSON(out)
	}

	rows := make([][]string, 0, len(cfg.Sources))
	for _, name := range cfg.SourceNames() {
		s := cfg.Sources[name]
		marker := ""
		if name == cfg.Current {
			marker = "*"
		}
		key := "-"
		if s.APIKey != "" {
			key = "[configured]"
		}
		rows = append(rows, []string{marker, name, s.URL, lookupName(s.Lookup), key})
	}
	return p.Table([]string{"", "Name", "URL", "Lookup", "API Key"}, rows)
}

func newSourceUseCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "use <name>",
		Short: "Set the current source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSourceUse(opts.printer(cmd.OutOrStdout()), args[0])
		},
	}
}

func runSourceUse(p *printer, name string) error {
	cfg, err := config.LoadCLI()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if _, exists := cfg.Sources[name]; !exists {
		return fmt.Errorf("source '%s' not found. Use 'feedprobe source list' to see available sources", name)
	}

	cfg.Current = name
	if err := config.SaveCLI(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	p.Success("Set '%s' as current source", name)
	p.Plain("🌐 URL: %s", cfg.Sources[name].URL)
	return nil
}

func newSourceRemoveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSourceRemove(opts.printer(cmd.OutOrStdout()), args[0])
		},
	}
}

func runSourceRemove(p *printer, name string) error {
	cfg, err := config.LoadCLI()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if _, exists := cfg.Sources[name]; !exists {
		return fmt.Errorf("source '%s' not found", name)
	}

	delete(cfg.Sources, name)
	if cfg.Current == name {
		cfg.Current = ""
		p.Warn("Removed the current source; select another with 'feedprobe source use <name>'")
	}

	if err := config.SaveCLI(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	p.Success("Removed source '%s'", name)
	return nil
}

func lookupName(s string) string {
	l, err := client.ParseLookup(s)
	if err != nil {
		return s
	}
	return l.String()
}

// readSecret reads a line without echo when in is a terminal
func readSecret(in io.Reader, prompt io.Writer, label string) (string, error) {
	fmt.Fprint(prompt, label)

	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		secret, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("failed to read API key: %w", err)
		}
		return strings.TrimSpace(string(secret)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read API key: %w", err)
	}
	return strings.TrimSpace(line), nil
}
