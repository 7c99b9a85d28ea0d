package operations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kebairia/chargeback/internal/chargeback"
	"github.com/kebairia/chargeback/internal/cohesity"
	"github.com/kebairia/chargeback/internal/config"
	"github.com/kebairia/chargeback/internal/logger"
	"github.com/kebairia/chargeback/internal/metrics"
	"github.com/kebairia/chargeback/internal/upload"
	"github.com/kebairia/chargeback/internal/vault"
)

// ErrNoPassword is returned when neither configuration nor Vault supplies a cluster password.
var ErrNoPassword = errors.New("no cluster password configured")

// FileUploader ships a finished artifact somewhere and returns where it went.
type FileUploader interface {
	UploadFile(ctx context.Context, filePath string) (string, error)
}

type ReportOption func(*ReportManager)

// WithUploader overrides the uploader built from the s3 section.
func WithUploader(u FileUploader) ReportOption {
	return func(rm *ReportManager) {
		rm.uploader = u
	}
}

// WithClientOption passes extra options to the cluster client.
func WithClientOption(opt cohesity.Option) ReportOption {
	return func(rm *ReportManager) {
		rm.clientOpts = append(rm.clientOpts, opt)
	}
}

// ReportManager runs one chargeback report from configuration to output files.
type ReportManager struct {
	cfg        config.Config
	log        logger.Logger
	runID      string
	uploader   FileUploader
	clientOpts []cohesity.Option
}

func NewReportManager(cfg config.Config, log logger.Logger, opts ...ReportOption) *ReportManager {
	if log == nil {
		log = logger.Global()
	}
	runID := uuid.NewString()
	rm := &ReportManager{
		cfg:   cfg,
		log:   log.With("run_id", runID),
		runID: runID,
	}
	for _, opt := range opts {
		opt(rm)
	}
	return rm
}

// RunID identifies this run in logs and metadata.
func (rm *ReportManager) RunID() string {
	return rm.runID
}

// Run authenticates, aggregates, writes the report and the optional
// artifacts. When a metadata file is configured it is written even on failure.
func (rm *ReportManager) Run(ctx context.Context) (err error) {
	meta := Metadata{
		RunID:      rm.runID,
		Cluster:    rm.cfg.Cluster.VIP,
		OutputFile: rm.cfg.Report.OutputFile,
		StartedAt:  time.Now(),
	}
	if rm.cfg.Report.MetadataFile != "" {
		defer func() {
			meta.finish(err)
			if werr := meta.Write(rm.cfg.Report.MetadataFile); werr != nil {
				rm.log.Error("write metadata failed", "path", rm.cfg.Report.MetadataFile, "error", werr.Error())
				if err == nil {
					err = werr
				}
			}
		}()
	}

	loc, err := time.LoadLocation(rm.cfg.Report.Timezone)
	if err != nil {
		return fmt.Errorf("load timezone %q: %w", rm.cfg.Report.Timezone, err)
	}

	client, err := rm.connect(ctx)
	if err != nil {
		return err
	}

	agg, stats, err := chargeback.NewAggregator(client, rm.log, loc).Run(ctx)
	meta.Stats = stats
	if err != nil {
		return fmt.Errorf("aggregate usage: %w", err)
	}

	records := chargeback.BuildReport(agg)
	if err := chargeback.WriteReport(rm.cfg.Report.OutputFile, records); err != nil {
		return err
	}
	meta.Artifacts = append(meta.Artifacts, rm.cfg.Report.OutputFile)
	rm.log.Info("report written",
		"path", rm.cfg.Report.OutputFile,
		"sources", stats.Sources,
		"tenants", stats.Tenants,
		"protection_groups", stats.ProtectionGroups,
	)

	if rm.cfg.Report.Compress {
		zstPath, err := CompressZstd(rm.cfg.Report.OutputFile)
		if err != nil {
			return fmt.Errorf("compress report: %w", err)
		}
		meta.Artifacts = append(meta.Artifacts, zstPath)
		rm.log.Info("compressed copy written", "path", zstPath)
	}

	if rm.cfg.Report.MetricsFile != "" {
		if err := rm.writeMetrics(agg); err != nil {
			return err
		}
	}

	uploader, err := rm.resolveUploader(ctx)
	if err != nil {
		return err
	}
	if uploader != nil {
		for _, artifact := range meta.Artifacts {
			uri, err := uploader.UploadFile(ctx, artifact)
			if err != nil {
				return fmt.Errorf("upload report: %w", err)
			}
			meta.Uploaded = append(meta.Uploaded, uri)
		}
	}

	return nil
}

// connect resolves credentials and returns a root-scoped session.
func (rm *ReportManager) connect(ctx context.Context) (*cohesity.Client, error) {
	username, password, err := rm.resolveCredentials(ctx)
	if err != nil {
		return nil, err
	}

	opts := []cohesity.Option{
		cohesity.WithDomain(rm.cfg.Cluster.Domain),
		cohesity.WithPassword(password),
		cohesity.WithTimeout(rm.cfg.Cluster.Timeout),
		cohesity.WithInsecureSkipVerify(rm.cfg.Cluster.InsecureSkipVerify),
		cohesity.WithLogger(rm.log),
	}
	opts = append(opts, rm.clientOpts...)

	client, err := cohesity.NewClient(rm.cfg.Cluster.VIP, username, opts...)
	if err != nil {
		return nil, err
	}
	rm.log.Info("connecting", "vip", rm.cfg.Cluster.VIP, "username", username, "domain", rm.cfg.Cluster.Domain)
	if err := client.Authenticate(ctx, ""); err != nil {
		return nil, err
	}
	return client, nil
}

// resolveCredentials prefers a configured password and falls back to Vault.
func (rm *ReportManager) resolveCredentials(ctx context.Context) (string, string, error) {
	username := rm.cfg.Cluster.Username
	if rm.cfg.Cluster.Password != "" {
		return username, rm.cfg.Cluster.Password, nil
	}
	if rm.cfg.Vault.CredentialsPath == "" {
		return "", "", fmt.Errorf("%w: set %s_CLUSTER_PASSWORD, cluster.password or vault.credentials_path",
			ErrNoPassword, config.EnvPrefix)
	}

	vaultClient, err := vault.NewClient(ctx,
		vault.WithAddress(rm.cfg.Vault.Address),
		vault.WithAppRole(rm.cfg.Vault.RoleID, rm.cfg.Vault.ApproleName),
	)
	if err != nil {
		return "", "", fmt.Errorf("vault client init: %w", err)
	}
	creds, err := vaultClient.GetClusterCredentials(ctx, rm.cfg.Vault.CredentialsPath)
	if err != nil {
		return "", "", fmt.Errorf("vault credentials: %w", err)
	}
	if creds.Username != "" {
		username = creds.Username
	}
	rm.log.Debug("cluster credentials read from vault", "path", rm.cfg.Vault.CredentialsPath)
	return username, creds.Password, nil
}

func (rm *ReportManager) writeMetrics(agg chargeback.Aggregate) error {
	m, err := metrics.NewReportMetrics(prometheus.NewRegistry())
	if err != nil {
		return err
	}
	m.Observe(agg, time.Now())
	if err := m.WriteTextfile(rm.cfg.Report.MetricsFile); err != nil {
		return err
	}
	rm.log.Info("metrics textfile written", "path", rm.cfg.Report.MetricsFile)
	return nil
}

func (rm *ReportManager) resolveUploader(ctx context.Context) (FileUploader, error) {
	if rm.uploader != nil {
		return rm.uploader, nil
	}
	if rm.cfg.S3.Bucket == "" {
		return nil, nil
	}
	u, err := upload.NewS3Uploader(ctx, rm.cfg.S3, rm.log)
	if err != nil {
		return nil, err
	}
	return u, nil
}
