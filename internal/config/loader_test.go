package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_ParsesFileAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
cluster:
  vip: "cluster.example.com"
  username: "reporter"
  timeout: 90s
report:
  output_file: "/tmp/chargeback.json"
  compress: true
`)

	var cfg Config
	require.NoError(t, cfg.Load(path, nil))

	assert.Equal(t, "cluster.example.com", cfg.Cluster.VIP)
	assert.Equal(t, "reporter", cfg.Cluster.Username)
	assert.Equal(t, "local", cfg.Cluster.Domain)
	assert.Equal(t, 90*time.Second, cfg.Cluster.Timeout)
	assert.Equal(t, "/tmp/chargeback.json", cfg.Report.OutputFile)
	assert.True(t, cfg.Report.Compress)
	assert.Equal(t, "Local", cfg.Report.Timezone)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MergesIncludes(t *testing.T) {
	dir := t.TempDir()
	inc := writeFile(t, dir, "s3.yaml", `
s3:
  bucket: "chargeback-reports"
  prefix: "daily"
`)
	path := writeFile(t, dir, "config.yaml", "include:\n  - \""+inc+"\"\ncluster:\n  vip: a\n")

	var cfg Config
	require.NoError(t, cfg.Load(path, nil))

	assert.Equal(t, "a", cfg.Cluster.VIP)
	assert.Equal(t, "chargeback-reports", cfg.S3.Bucket)
	assert.Equal(t, "daily", cfg.S3.Prefix)
}

func TestLoad_UnknownKeyFails(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", "cluster:\n  vipp: typo\n")

	var cfg Config
	err := cfg.Load(path, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLoadConfig)
}

func TestLoad_MissingFileFails(t *testing.T) {
	var cfg Config
	err := cfg.Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.ErrorIs(t, err, ErrLoadConfig)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", "cluster:\n  vip: from-file\n")
	t.Setenv("CHARGEBACK_CLUSTER_VIP", "from-env")
	t.Setenv("CHARGEBACK_CLUSTER_PASSWORD", "s3cret")

	var cfg Config
	require.NoError(t, cfg.Load(path, nil))

	assert.Equal(t, "from-env", cfg.Cluster.VIP)
	assert.Equal(t, "s3cret", cfg.Cluster.Password)
}

func TestLoad_FlagsOverrideEverything(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", "cluster:\n  vip: from-file\n  domain: corp\n")
	t.Setenv("CHARGEBACK_CLUSTER_VIP", "from-env")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.StringP("vip", "v", "", "")
	flags.StringP("domain", "d", "local", "")
	flags.StringP("outputfile", "f", "", "")
	require.NoError(t, flags.Parse([]string{"-v", "from-flag", "-f", "out.json"}))

	var cfg Config
	require.NoError(t, cfg.Load(path, flags))

	assert.Equal(t, "from-flag", cfg.Cluster.VIP)
	// unchanged flag keeps the file value
	assert.Equal(t, "corp", cfg.Cluster.Domain)
	assert.Equal(t, "out.json", cfg.Report.OutputFile)
}

func TestValidate(t *testing.T) {
	valid := Config{
		Cluster: ClusterConfig{VIP: "vip", Username: "admin", Domain: "local"},
		Report:  ReportConfig{OutputFile: "out.json", Timezone: "UTC"},
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"missing vip", func(c *Config) { c.Cluster.VIP = "" }},
		{"missing username", func(c *Config) { c.Cluster.Username = "" }},
		{"missing output", func(c *Config) { c.Report.OutputFile = "" }},
		{"negative timeout", func(c *Config) { c.Cluster.Timeout = -time.Second }},
		{"bad timezone", func(c *Config) { c.Report.Timezone = "Mars/Olympus" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrValidateConfig)
		})
	}
}
