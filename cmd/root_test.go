package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"prompt-comparator/internal/provider"
)

func writeConfig(t *testing.T, driver string) string {
	t.Helper()
	dir := t.TempDir()
	storePath := filepath.Join(dir, "settings."+map[string]string{"file": "json", "sqlite": "db"}[driver])
	cfg := "store:\n  driver: " + driver + "\n  path: " + storePath + "\nlog:\n  level: error\n"
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--env-file", ""}, args...))
	err := root.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestRootCommand(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{name: "version flag", args: []string{"--version"}},
		{name: "help flag", args: []string{"--help"}},
		{name: "unknown command", args: []string{"compare"}, wantErr: true},
		{name: "ask without message", args: []string{"ask"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, tt.args...)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSettingsSetAndShow(t *testing.T) {
	for _, driver := range []string{"file", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			cfgPath := writeConfig(t, driver)

			out, err := runCLI(t, "--config", cfgPath, "settings", "set", "apiKey", "sk-test-1234567890")
			require.NoError(t, err)
			assert.Contains(t, out, "Saved apiKey")

			_, err = runCLI(t, "--config", cfgPath, "settings", "set", "promptNameB", "Pirate")
			require.NoError(t, err)

			out, err = runCLI(t, "--config", cfgPath, "settings", "show")
			require.NoError(t, err)
			assert.Equal(t, "****7890", gjson.Get(out, "apiKey").String())
			assert.Equal(t, "Pirate", gjson.Get(out, "promptNameB").String())
			assert.Equal(t, "Prompt A", gjson.Get(out, "promptNameA").String())

			_, err = runCLI(t, "--config", cfgPath, "settings", "set", "password", "x")
			assert.Error(t, err)
		})
	}
}

func TestModelsStaticList(t *testing.T) {
	cfgPath := writeConfig(t, "file")

	out, err := runCLI(t, "--config", cfgPath, "models", "anthropic")
	require.NoError(t, err)
	assert.Contains(t, out, "Anthropic")
	assert.Contains(t, out, "claude-opus-4-6")
	assert.NotContains(t, out, "OpenAI")

	_, err = runCLI(t, "--config", cfgPath, "models", "mistral")
	assert.ErrorIs(t, err, provider.ErrUnknownProvider)
}

func TestAskWithoutCredentialsExports(t *testing.T) {
	cfgPath := writeConfig(t, "file")
	outDir := t.TempDir()

	out, err := runCLI(t, "--config", cfgPath, "ask", "--width", "400", "--export", outDir, "hello", "there")
	require.NoError(t, err)
	assert.Contains(t, out, "Prompt A")
	assert.Contains(t, out, "API key is missing")
	assert.Contains(t, out, "Exported to")

	matches, err := filepath.Glob(filepath.Join(outDir, "Prompt_A_vs_Prompt_B_*.csv"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"hello there"`)
	assert.Contains(t, string(data), "OpenAI: API key is missing")
}

func TestAskRejectsUnknownSideTarget(t *testing.T) {
	cfgPath := writeConfig(t, "file")

	_, err := runCLI(t, "--config", cfgPath, "ask", "--side-b", "google:gpt-4o", "hi")
	assert.ErrorIs(t, err, provider.ErrUnknownModel)
}
