package chargeback

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/kebairia/chargeback/internal/cohesity"
	"github.com/kebairia/chargeback/internal/logger"
)

// Platform is the part of the cluster session the aggregation needs.
// *cohesity.Client satisfies it.
type Platform interface {
	Authenticate(ctx context.Context, tenantID string) error
	ListTenants(ctx context.Context) ([]cohesity.Tenant, error)
	ListProtectionGroups(ctx context.Context) ([]cohesity.ProtectionGroup, error)
	ListProtectionRuns(ctx context.Context, jobID string) ([]cohesity.ProtectionRun, error)
}

var _ Platform = (*cohesity.Client)(nil)

// Record accumulates usage for one protected source.
// Everything except CumulativeBytes is fixed when the source is first seen.
type Record struct {
	TenantID            string
	TenantName          string
	ProtectionGroup     string
	CumulativeBytes     int64
	LastBackupTimestamp string
}

// Aggregate maps a source name to its Record.
type Aggregate map[string]*Record

// Stats counts what a run walked through.
type Stats struct {
	Tenants          int   `json:"tenants"`
	ProtectionGroups int   `json:"protection_groups"`
	Runs             int   `json:"runs"`
	DeletedRuns      int   `json:"deleted_runs"`
	SourceEntries    int   `json:"source_entries"`
	Sources          int   `json:"sources"`
	TotalBytes       int64 `json:"total_bytes"`
}

// Aggregator walks tenants, protection groups and runs of an authenticated session.
type Aggregator struct {
	platform Platform
	log      logger.Logger
	location *time.Location
}

// NewAggregator returns an Aggregator formatting timestamps in loc (time.Local when nil).
func NewAggregator(platform Platform, log logger.Logger, loc *time.Location) *Aggregator {
	if log == nil {
		log = logger.Global()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Aggregator{platform: platform, log: log, location: loc}
}

// Run collects per-source usage across all tenants. Any error aborts the walk;
// no partial aggregate is returned.
func (a *Aggregator) Run(ctx context.Context) (Aggregate, Stats, error) {
	var stats Stats
	agg := make(Aggregate)

	a.log.Info("collecting stats for tenants")
	tenants, err := a.platform.ListTenants(ctx)
	if err != nil {
		return nil, stats, err
	}
	tenants = slices.Clone(tenants)
	slices.SortStableFunc(tenants, func(x, y cohesity.Tenant) int {
		return cmp.Or(cmp.Compare(x.Name, y.Name), cmp.Compare(x.ID, y.ID))
	})

	for _, tenant := range tenants {
		stats.Tenants++
		a.log.Info("tenant", "name", tenant.Name, "id", tenant.ID)

		if err := a.platform.Authenticate(ctx, tenant.ID); err != nil {
			return nil, stats, fmt.Errorf("authenticate as tenant %q: %w", tenant.ID, err)
		}

		groups, err := a.platform.ListProtectionGroups(ctx)
		if err != nil {
			return nil, stats, fmt.Errorf("tenant %q: %w", tenant.ID, err)
		}
		if len(groups) == 0 {
			a.log.Debug("no protection groups", "tenant", tenant.Name)
			continue
		}

		for _, group := range groups {
			stats.ProtectionGroups++
			a.log.Info("collecting stats for protection group", "tenant", tenant.Name, "protection_group", group.Name)

			runs, err := a.platform.ListProtectionRuns(ctx, group.JobID)
			if err != nil {
				return nil, stats, fmt.Errorf("tenant %q: %w", tenant.ID, err)
			}
			for _, run := range runs {
				stats.Runs++
				if run.SnapshotsDeleted {
					stats.DeletedRuns++
					continue
				}
				if err := a.add(agg, tenant, group, run, &stats); err != nil {
					return nil, stats, err
				}
			}
		}
	}

	stats.Sources = len(agg)
	return agg, stats, nil
}

func (a *Aggregator) add(agg Aggregate, tenant cohesity.Tenant, group cohesity.ProtectionGroup, run cohesity.ProtectionRun, stats *Stats) error {
	for _, source := range run.Sources {
		stats.SourceEntries++
		rec, ok := agg[source.SourceName]
		if !ok {
			if source.StartTimeUsecs == nil {
				return &cohesity.MalformedResponseError{
					Endpoint: "protectionRuns",
					Field:    "stats.startTimeUsecs",
					Detail:   fmt.Sprintf("missing for source %q in protection group %q", source.SourceName, group.Name),
				}
			}
			rec = &Record{
				TenantID:            tenant.ID,
				TenantName:          tenant.Name,
				ProtectionGroup:     group.Name,
				LastBackupTimestamp: UsecsToTimestamp(*source.StartTimeUsecs, a.location),
			}
			agg[source.SourceName] = rec
		}
		rec.CumulativeBytes += source.BytesReadFromSource
		stats.TotalBytes += source.BytesReadFromSource
	}
	return nil
}
