package cohesity

import (
	"context"
	"fmt"
	"net/url"
)

const (
	tenantsPath          = "tenants"
	protectionGroupsPath = "data-protect/protection-groups"
	protectionRunsPath   = "protectionRuns"
)

// ListTenants returns every tenant visible to the session.
func (c *Client) ListTenants(ctx context.Context) ([]Tenant, error) {
	var raw []tenantJSON
	if err := c.Get(ctx, tenantsPath, V1, &raw); err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	tenants := make([]Tenant, 0, len(raw))
	for i, t := range raw {
		tenant, err := t.toTenant(tenantsPath, i)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, tenant)
	}
	return tenants, nil
}

// ListProtectionGroups returns the live SQL protection groups of the current
// scope. A null group list from the cluster is returned as nil.
func (c *Client) ListProtectionGroups(ctx context.Context) ([]ProtectionGroup, error) {
	query := url.Values{}
	query.Set("isDeleted", "false")
	query.Set("includeTenants", "true")
	query.Set("includeLastRunInfo", "true")
	query.Set("environments", "kSQL")

	var raw protectionGroupsJSON
	if err := c.Get(ctx, protectionGroupsPath+"?"+query.Encode(), V2, &raw); err != nil {
		return nil, fmt.Errorf("list protection groups: %w", err)
	}
	if raw.ProtectionGroups == nil {
		return nil, nil
	}
	groups := make([]ProtectionGroup, 0, len(raw.ProtectionGroups))
	for i, g := range raw.ProtectionGroups {
		group, err := g.toProtectionGroup(protectionGroupsPath, i)
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	return groups, nil
}

// ListProtectionRuns returns the restorable runs of a v1 job.
func (c *Client) ListProtectionRuns(ctx context.Context, jobID string) ([]ProtectionRun, error) {
	query := url.Values{}
	query.Set("jobId", jobID)
	query.Set("excludeNonRestoreableRuns", "true")

	var raw []protectionRunJSON
	if err := c.Get(ctx, protectionRunsPath+"?"+query.Encode(), V1, &raw); err != nil {
		return nil, fmt.Errorf("list protection runs for job %s: %w", jobID, err)
	}
	runs := make([]ProtectionRun, 0, len(raw))
	for i, r := range raw {
		run, err := r.toProtectionRun(protectionRunsPath, i)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}
