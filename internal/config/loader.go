package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. CHARGEBACK_CLUSTER_PASSWORD.
const EnvPrefix = "CHARGEBACK"

// ErrLoadConfig indicates a failure to read or parse the YAML configuration.
var ErrLoadConfig = errors.New("config load failed")

// ErrValidateConfig indicates that the loaded configuration is invalid.
var ErrValidateConfig = errors.New("configuration validation failed")

// Config represents the merged configuration: file, environment and flags.
type Config struct {
	Include []string      `mapstructure:"include" yaml:"include,omitempty"`
	Cluster ClusterConfig `mapstructure:"cluster" yaml:"cluster"`
	Vault   VaultConfig   `mapstructure:"vault"   yaml:"vault"`
	Report  ReportConfig  `mapstructure:"report"  yaml:"report"`
	S3      S3Config      `mapstructure:"s3"      yaml:"s3"`
	Debug   bool          `mapstructure:"debug"   yaml:"debug"`
}

// ClusterConfig holds the management endpoint and the account used to log in.
type ClusterConfig struct {
	VIP                string        `mapstructure:"vip"                  yaml:"vip"`
	Username           string        `mapstructure:"username"             yaml:"username"`
	Domain             string        `mapstructure:"domain"               yaml:"domain"`
	Password           string        `mapstructure:"password"             yaml:"password,omitempty"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify"`
	Timeout            time.Duration `mapstructure:"timeout"              yaml:"timeout"`
}

// VaultConfig holds connection settings for HashiCorp Vault.
// CredentialsPath is only read when no cluster password is configured.
type VaultConfig struct {
	Address         string `mapstructure:"address"          yaml:"address"`
	RoleID          string `mapstructure:"role_id"          yaml:"role_id,omitempty"`
	ApproleName     string `mapstructure:"approle_name"     yaml:"approle_name,omitempty"`
	CredentialsPath string `mapstructure:"credentials_path" yaml:"credentials_path,omitempty"`
}

// ReportConfig contains the output options.
type ReportConfig struct {
	OutputFile   string `mapstructure:"output_file"   yaml:"output_file"`
	Timezone     string `mapstructure:"timezone"      yaml:"timezone"`
	Compress     bool   `mapstructure:"compress"      yaml:"compress"`
	MetricsFile  string `mapstructure:"metrics_file"  yaml:"metrics_file,omitempty"`
	MetadataFile string `mapstructure:"metadata_file" yaml:"metadata_file,omitempty"`
}

// S3Config describes where the finished report is uploaded. Empty Bucket disables upload.
type S3Config struct {
	Bucket          string `mapstructure:"bucket"            yaml:"bucket,omitempty"`
	Prefix          string `mapstructure:"prefix"            yaml:"prefix,omitempty"`
	Region          string `mapstructure:"region"            yaml:"region,omitempty"`
	Endpoint        string `mapstructure:"endpoint"          yaml:"endpoint,omitempty"`
	AccessKeyID     string `mapstructure:"access_key_id"     yaml:"access_key_id,omitempty"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key,omitempty"`
}

// defaults doubles as the list of keys viper must know about so that
// AutomaticEnv values reach Unmarshal.
var defaults = map[string]any{
	"include":                      []string{},
	"debug":                        false,
	"cluster.vip":                  "",
	"cluster.username":             "",
	"cluster.domain":               "local",
	"cluster.password":             "",
	"cluster.insecure_skip_verify": false,
	"cluster.timeout":              60 * time.Second,
	"vault.address":                "",
	"vault.role_id":                "",
	"vault.approle_name":           "",
	"vault.credentials_path":       "",
	"report.output_file":           "",
	"report.timezone":              "Local",
	"report.compress":              false,
	"report.metrics_file":          "",
	"report.metadata_file":         "",
	"s3.bucket":                    "",
	"s3.prefix":                    "",
	"s3.region":                    "",
	"s3.endpoint":                  "",
	"s3.access_key_id":             "",
	"s3.secret_access_key":         "",
}

// FlagKeys maps command-line flag names to configuration keys.
var FlagKeys = map[string]string{
	"vip":           "cluster.vip",
	"username":      "cluster.username",
	"domain":        "cluster.domain",
	"insecure":      "cluster.insecure_skip_verify",
	"outputfile":    "report.output_file",
	"timezone":      "report.timezone",
	"compress":      "report.compress",
	"metrics-file":  "report.metrics_file",
	"metadata-file": "report.metadata_file",
	"s3-bucket":     "s3.bucket",
	"debug":         "debug",
}

// Load reads the configuration using Viper. path may be empty, in which case
// only defaults, environment and flags are used. Included files are merged
// on top of the base file. flags may be nil.
func (c *Config) Load(path string, flags *pflag.FlagSet) error {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("%w: read base config %s: %v", ErrLoadConfig, path, err)
		}

		for _, inc := range v.GetStringSlice("include") {
			data, err := os.ReadFile(inc)
			if err != nil {
				return fmt.Errorf("%w: read include %s: %v", ErrLoadConfig, inc, err)
			}
			if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
				return fmt.Errorf("%w: merge include %s: %v", ErrLoadConfig, inc, err)
			}
		}
	}

	if flags != nil {
		for name, key := range FlagKeys {
			flag := flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return fmt.Errorf("%w: bind flag %s: %v", ErrLoadConfig, name, err)
			}
		}
	}

	if err := v.UnmarshalExact(c); err != nil {
		return fmt.Errorf("%w: unmarshal config: %v", ErrLoadConfig, err)
	}

	return nil
}

// Validate checks the fields a report run cannot do without.
// The password is checked later, once Vault had a chance to supply it.
func (c *Config) Validate() error {
	var missing []string
	if c.Cluster.VIP == "" {
		missing = append(missing, "cluster.vip (--vip)")
	}
	if c.Cluster.Username == "" {
		missing = append(missing, "cluster.username (--username)")
	}
	if c.Report.OutputFile == "" {
		missing = append(missing, "report.output_file (--outputfile)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrValidateConfig, strings.Join(missing, ", "))
	}
	if c.Cluster.Timeout < 0 {
		return fmt.Errorf("%w: cluster.timeout must not be negative", ErrValidateConfig)
	}
	if _, err := time.LoadLocation(c.Report.Timezone); err != nil {
		return fmt.Errorf("%w: report.timezone %q: %v", ErrValidateConfig, c.Report.Timezone, err)
	}
	return nil
}
