package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pelletier/go-toml/v2"

	"feedprobe/internal/feed"
	"feedprobe/internal/poll"
)

// APIKeyEnv overrides the API key of the selected source
const APIKeyEnv = "FEEDPROBE_API_KEY"

// ErrNoSource is returned when no source is named and none is current
var ErrNoSource = errors.New("no source selected: use --source or 'feedprobe source use <name>'")

type Source struct {
	URL    string `toml:"url"`
	APIKey string `toml:"api_key,omitempty"`
	Lookup string `toml:"lookup,omitempty"` // entry, filter or custom-filter
}

// Poll holds durations as Go duration strings ("1s", "20m")
type Poll struct {
	Interval string `toml:"interval,omitempty"`
	Timeout  string `toml:"timeout,omitempty"`
}

type CLIConfig struct {
	Current string            `toml:"current"`
	Sources map[string]Source `toml:"sources"`
	Poll    Poll              `toml:"poll,omitempty"`
}

// ConfigDir returns the CLI config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".feedprobe"), nil
}

// ConfigPath returns the full path to config.toml
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// LoadCLI loads CLI configuration from ~/.feedprobe/config.toml
func LoadCLI() (CLIConfig, error) {
	configPath, err := ConfigPath()
	if err != nil {
		return CLIConfig{}, err
	}

	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		// Return empty config if file doesn't exist
		return CLIConfig{
			Sources: make(map[string]Source),
		}, nil
	}
	if err != nil {
		return CLIConfig{}, err
	}

	var config CLIConfig
	if err := toml.Unmarshal(data, &config); err != nil {
		return CLIConfig{}, err
	}

	if config.Sources == nil {
		config.Sources = make(map[string]Source)
	}

	return config, nil
}

// SaveCLI saves CLI configuration to ~/.feedprobe/config.toml
func SaveCLI(config CLIConfig) error {
	configPath, err := ConfigPath()
	if err != nil {
		return err
	}

	// Ensure config directory exists
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return err
	}

	data, err := toml.Marshal(config)
	if err != nil {
		return err
	}

	// API keys live here
	return os.WriteFile(configPath, data, 0o600)
}

// SourceNames returns the configured source names in order
func (c CLIConfig) SourceNames() []string {
	names := make([]string, 0, len(c.Sources))
	for name := range c.Sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveSource picks the named source, or the current one when name is
// empty. A raw http(s) URL is accepted as an unnamed source.
func (c CLIConfig) ResolveSource(name string) (feed.Source, Source, error) {
	if name == "" {
		name = c.Current
	}
	if name == "" {
		return feed.Source{}, Source{}, ErrNoSource
	}

	sc, ok := c.Sources[name]
	if !ok {
		if feed.IsHTTPURL(name) {
			sc = Source{URL: name}
			name = ""
		} else {
			return feed.Source{}, Source{}, fmt.Errorf("source %q not found", name)
		}
	}

	src := feed.NewSource(name, sc.URL)
	src.APIKey = sc.APIKey
	if key := os.Getenv(APIKeyEnv); key != "" {
		src.APIKey = key
	}
	return src, sc, nil
}

// Policy returns the configured poll policy, defaulting unset fields. The
// interval may be lengthened but never set below poll.DefaultInterval.
func (p Poll) Policy() (poll.Policy, error) {
	policy := poll.Default()

	if p.Interval != "" {
		d, err := time.ParseDuration(p.Interval)
		if err != nil {
			return policy, fmt.Errorf("poll.interval: %w", err)
		}
		policy.Interval = d
	}
	if p.Timeout != "" {
		d, err := time.ParseDuration(p.Timeout)
		if err != nil {
			return policy, fmt.Errorf("poll.timeout: %w", err)
		}
		policy.Timeout = d
	}

	if policy.Interval < poll.DefaultInterval {
		return poll.Default(), fmt.Errorf("poll.interval %s is below the minimum of %s", policy.Interval, poll.DefaultInterval)
	}
	if policy.Timeout <= 0 {
		return poll.Default(), errors.New("poll.timeout must be positive")
	}
	return policy, nil
}
