package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapString(t *testing.T) {
	text := strings.Repeat("word ", 30)
	out := WrapString(text)
	for _, line := range strings.Split(out, "\n") {
		assert.LessOrEqual(t, len(line), Wrap)
	}
	assert.Equal(t, strings.Fields(text), strings.Fields(out))
	assert.Equal(t, "", WrapString("   "))
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    uint64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{64 << 20, "64.0 MiB"},
		{3 << 30, "3.0 GiB"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatBytes(tt.n))
		})
	}
}

func TestImportEnvBindsFlags(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("DOCSTORE_CACHE_SIZE=1234\n"), 0o600))
	t.Chdir(dir)
	t.Cleanup(func() {
		os.Unsetenv("DOCSTORE_CACHE_SIZE")
		viper.Reset()
	})

	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().Int64("cache-size", 1, "")
	cmd.PersistentFlags().String("log-level", "info", "")

	ImportEnv()
	require.NoError(t, BindCommandFlags(cmd))

	assert.Equal(t, int64(1234), viper.GetInt64("cache-size"))
	assert.Equal(t, "info", viper.GetString("log-level"))
}
