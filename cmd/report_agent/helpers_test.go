package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/report-context/internal/config"
)

// clearEnv hides connection settings a developer .env may have loaded.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		config.EnvMetabaseURL,
		config.EnvMetabaseAPIKey,
		config.EnvGeminiAPIKey,
		config.EnvGeminiModel,
		config.EnvDatabaseURL,
		config.EnvRedisURL,
	} {
		t.Setenv(key, "")
	}
}

// newTestCommand returns a command carrying the persistent flags, parsed
// from args, with output captured in the returned buffer. The log file is
// always redirected into a temp dir.
func newTestCommand(t *testing.T, args ...string) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	addPersistentFlags(cmd)

	args = append([]string{"--log-file", filepath.Join(t.TempDir(), "test.log")}, args...)
	require.NoError(t, cmd.ParseFlags(args))

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetContext(t.Context())
	return cmd, &out
}
