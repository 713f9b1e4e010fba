package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedprobe/internal/api"
	"feedprobe/internal/config"
	"feedprobe/internal/db"
	"feedprobe/internal/feed"
	"feedprobe/internal/nupkg"
)

// isolate points the CLI config at a temporary home directory
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	t.Setenv(config.APIKeyEnv, "")
	return home
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	require.NoError(t, err, "feedprobe %v\n%s", args, out)
	return out
}

func startServer(t *testing.T) (string, string) {
	t.Helper()
	s := api.NewServer(db.NewMemoryStore(), config.Config{
		JWTSecret:      "cli-test",
		StoragePath:    t.TempDir(),
		MaxPackageSize: config.DefaultMaxPackageSize,
	}, nil)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	key, err := s.Keys.GenerateKey("cli", time.Hour)
	require.NoError(t, err)
	return ts.URL + api.FeedPrefix, key
}

func TestSourceCommands(t *testing.T) {
	isolate(t)

	out := mustRun(t, "source", "add", "local", "http://localhost:8080/api/v2/", "--lookup", "filter")
	assert.Contains(t, out, "Added source 'local'")
	assert.Contains(t, out, "Set as current source")

	mustRun(t, "source", "add", "staging", "https://feed.example/api/v2", "--api-key", "secret")

	cfg, err := config.LoadCLI()
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.Current)
	assert.Equal(t, "http://localhost:8080/api/v2", cfg.Sources["local"].URL)
	assert.Equal(t, "secret", cfg.Sources["staging"].APIKey)

	out = mustRun(t, "--json", "source", "list")
	var listed []struct {
		Name    string `json:"name"`
		Lookup  string `json:"lookup"`
		HasKey  bool   `json:"has_api_key"`
		Current bool   `json:"current"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	require.Len(t, listed, 2)
	assert.Equal(t, "local", listed[0].Name)
	assert.Equal(t, "filter", listed[0].Lookup)
	assert.True(t, listed[0].Current)
	assert.True(t, listed[1].HasKey)

	mustRun(t, "source", "use", "staging")
	cfg, err = config.LoadCLI()
	require.NoError(t, err)
	assert.Equal(t, "staging", cfg.Current)

	out = mustRun(t, "source", "remove", "staging")
	assert.Contains(t, out, "Removed the current source")
	cfg, err = config.LoadCLI()
	require.NoError(t, err)
	assert.Empty(t, cfg.Current)
	assert.NotContains(t, cfg.Sources, "staging")
}

func TestSourceAddRejectsBadInput(t *testing.T) {
	isolate(t)

	_, err := run(t, "source", "add", "ftp", "ftp://example/feed")
	assert.Error(t, err)

	_, err = run(t, "source", "add", "local", "http://localhost/api/v2", "--lookup", "guess")
	assert.Error(t, err)

	_, err = run(t, "source", "use", "missing")
	assert.Error(t, err)
}

func TestCommandsNeedASource(t *testing.T) {
	isolate(t)

	_, err := run(t, "metadata")
	assert.ErrorIs(t, err, config.ErrNoSource)
}

func TestPackPushQueryDelete(t *testing.T) {
	isolate(t)
	url, key := startServer(t)
	mustRun(t, "source", "add", "local", url, "--api-key", key, "--lookup", "filter")

	outDir := filepath.Join(t.TempDir(), "out") + string(filepath.Separator)
	out := mustRun(t, "--json", "pack", "--id", "Cli.Probe", "--version", "1.0", "-o", outDir)
	var packed struct {
		ID      string `json:"id"`
		Version string `json:"version"`
		Path    string `json:"path"`
		SHA256  string `json:"sha256"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &packed))
	assert.Equal(t, "1.0.0", packed.Version)
	assert.Equal(t, filepath.Join(outDir, "cli.probe.1.0.0.nupkg"), packed.Path)
	assert.Len(t, packed.SHA256, 64)
	require.FileExists(t, packed.Path)

	type pushed struct {
		Identity      feed.Identity `json:"identity"`
		AlreadyExists bool          `json:"package_already_exists"`
		Attempted     bool          `json:"push_attempted"`
		Success       bool          `json:"package_push_successfully"`
		StatusCode    int           `json:"push_status_code"`
		Available     *int64        `json:"time_to_be_available"`
	}

	out = mustRun(t, "--json", "push", packed.Path, "--timeout", "5s")
	var first pushed
	require.NoError(t, json.Unmarshal([]byte(out), &first))
	assert.Equal(t, feed.Identity{ID: "Cli.Probe", Version: "1.0.0"}, first.Identity)
	assert.True(t, first.Attempted)
	assert.True(t, first.Success)
	assert.Equal(t, 201, first.StatusCode)
	assert.NotNil(t, first.Available)

	out = mustRun(t, "--json", "push", filepath.Join(outDir, "*.nupkg"), "--timeout", "5s")
	var second pushed
	require.NoError(t, json.Unmarshal([]byte(out), &second))
	assert.True(t, second.AlreadyExists)
	assert.False(t, second.Attempted)

	out = mustRun(t, "--json", "entry", "Cli.Probe", "1.0", "--lookup", "entry")
	var entries []feed.Entry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Listed)

	out = mustRun(t, "--json", "query", "--id", "Cli.Probe", "--version", "1.0.0")
	entries = nil
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	assert.Len(t, entries, 1)

	out = mustRun(t, "delete", "Cli.Probe", "1.0.0")
	assert.Contains(t, out, "Unlisted Cli.Probe 1.0.0")

	out = mustRun(t, "--json", "query", "startswith(Id,'Cli.')")
	entries = nil
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	assert.Empty(t, entries)

	_, err := run(t, "delete", "Cli.Probe", "9.9.9")
	assert.Error(t, err)
}

func TestPushAndUnlist(t *testing.T) {
	isolate(t)
	url, key := startServer(t)
	mustRun(t, "source", "add", "local", url, "--api-key", key)

	dir := t.TempDir()
	for _, v := range []string{"1.0.0", "1.1.0"} {
		mustRun(t, "pack", "--id", "Cli.Unlisted", "--version", v, "-o", dir)
	}

	out := mustRun(t, "push", filepath.Join(dir, "**", "*.nupkg"), "--unlist", "-p", "2", "--timeout", "5s")
	assert.Contains(t, out, "Pushed Cli.Unlisted 1.0.0")
	assert.Contains(t, out, "Pushed Cli.Unlisted 1.1.0")
	assert.Contains(t, out, "Unlist status")

	out = mustRun(t, "--json", "query", "--id", "Cli.Unlisted", "--version", "1.1.0")
	var entries []feed.Entry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	assert.Empty(t, entries)
}

func TestPushFlagValidation(t *testing.T) {
	isolate(t)

	_, err := run(t, "push", "x.nupkg", "--force", "--unlist")
	assert.ErrorContains(t, err, "cannot be combined")

	_, err = run(t, "push", "x.nupkg", "--parallel", "0")
	assert.ErrorContains(t, err, "--parallel")

	_, err = run(t, "push", filepath.Join(t.TempDir(), "*.nupkg"))
	assert.ErrorContains(t, err, "no packages matched")

	_, err = run(t, "push", "x.nupkg", "--interval", "10ms")
	assert.ErrorContains(t, err, "--interval must be at least 1s")

	_, err = run(t, "push", "x.nupkg", "--timeout", "0s")
	assert.ErrorContains(t, err, "--timeout")
}

func TestPushWithoutKeyIsRejected(t *testing.T) {
	isolate(t)
	url, _ := startServer(t)
	mustRun(t, "source", "add", "local", url)

	dir := t.TempDir()
	mustRun(t, "pack", "--id", "Cli.NoKey", "-o", dir)

	out, err := run(t, "push", filepath.Join(dir, "cli.nokey.1.0.0.nupkg"), "--force")
	assert.ErrorContains(t, err, "401")
	assert.Contains(t, out, "Cli.NoKey")
}

func TestBuildFilter(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		id      string
		version string
		custom  bool
		want    string
		wantErr bool
	}{
		{name: "raw expression", args: []string{"Id eq 'A'"}, want: "Id eq 'A'"},
		{name: "no filter", want: ""},
		{name: "simple", id: "A", version: "1.0", want: "Id eq 'A' and Version eq '1.0.0'"},
		{name: "custom", id: "A", version: "1.0.0", custom: true, want: "Id eq 'A' and Version eq '1.0.0' and not startswith(Id, '!IMPOSSIBLE!')"},
		{name: "id without version", id: "A", wantErr: true},
		{name: "custom without identity", custom: true, wantErr: true},
		{name: "both forms", args: []string{"Id eq 'A'"}, id: "A", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildFilter(tt.args, tt.id, tt.version, tt.custom)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUniqueVersion(t *testing.T) {
	now := time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)

	assert.Equal(t, "1.2.0-probe.20240305140709", uniqueVersion("1.2", now))
	assert.Equal(t, "1.2.3-probe.20240305140709", uniqueVersion("1.2.3-beta", now))
	assert.True(t, nupkg.IsValidVersion(uniqueVersion("1.0.0", now)))
}

func TestPackOutputPath(t *testing.T) {
	m := nupkg.Manifest{ID: "Probe.Out", Version: "1.0"}
	dir := t.TempDir()

	assert.Equal(t, "probe.out.1.0.0.nupkg", packOutputPath("", m))
	assert.Equal(t, filepath.Join(dir, "probe.out.1.0.0.nupkg"), packOutputPath(dir, m))
	assert.Equal(t, filepath.Join(dir, "custom.nupkg"), packOutputPath(filepath.Join(dir, "custom.nupkg"), m))
}

func TestPackUsesFilePatterns(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "content", "nested"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "content", "a.txt"), []byte("a"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "content", "nested", "b.txt"), []byte("b"), 0644))

	out := filepath.Join(dir, "probe.nupkg")
	mustRun(t, "pack", "--id", "Probe.Content", "--version", "2.0.0", "-o", out, filepath.Join(dir, "content", "**", "*.txt"))

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	m, err := nupkg.NewReader().ReadManifest(f)
	require.NoError(t, err)
	assert.Equal(t, "Probe.Content", m.ID)

	_, err = run(t, "pack", "--id", "Probe.Empty", "-o", dir, filepath.Join(dir, "*.missing"))
	assert.ErrorContains(t, err, "no files matched")

	_, err = run(t, "pack", "--version", "1.0.0")
	assert.Error(t, err, "--id is required")
}
