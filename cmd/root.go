package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kebairia/chargeback/internal/config"
	"github.com/kebairia/chargeback/internal/logger"
	"github.com/kebairia/chargeback/internal/operations"
)

// NewRootCmd builds the chargeback command. It is a single command: the
// report runs as soon as the flags are parsed.
func NewRootCmd() *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:   "cohesity-chargeback",
		Short: "Generate a per-source chargeback report for SQL protection groups",
		Long: `cohesity-chargeback logs in to a cluster, walks every tenant and its SQL
protection groups, sums the bytes read per source over restorable runs and
writes the result as a JSON chargeback report.

The cluster password is read from CHARGEBACK_CLUSTER_PASSWORD, the config
file, or Vault (vault.credentials_path).`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg config.Config
			if err := cfg.Load(configFile, cmd.Flags()); err != nil {
				return err
			}

			log, err := logger.Init(cfg.Debug)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer logger.Cleanup()

			if err := cfg.Validate(); err != nil {
				return err
			}

			rm := operations.NewReportManager(cfg, log)
			if err := rm.Run(cmd.Context()); err != nil {
				log.Error("chargeback report failed", "run_id", rm.RunID(), "error", err.Error())
				return err
			}
			return nil
		},
	}

	flags := rootCmd.Flags()
	flags.StringVarP(&configFile, "config", "c", "", "path to YAML config file")
	flags.StringP("vip", "v", "", "cluster VIP or host name")
	flags.StringP("username", "u", "", "username to log in with")
	flags.StringP("domain", "d", "local", "login domain")
	flags.StringP("outputfile", "f", "", "path of the JSON report to write")
	flags.Bool("insecure", false, "skip TLS certificate verification")
	flags.String("timezone", "Local", "time zone used for report timestamps")
	flags.Bool("compress", false, "also write a zstd-compressed copy of the report")
	flags.String("metrics-file", "", "write a Prometheus textfile with per-source usage")
	flags.String("metadata-file", "", "write a JSON summary of the run")
	flags.String("s3-bucket", "", "upload the report to this S3 bucket")
	flags.Bool("debug", false, "enable debug logging")

	return rootCmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		stop()
		os.Exit(1)
	}
}
