package cohesity

import (
	"fmt"
	"strings"
)

// Tenant is an organisation configured on the cluster.
type Tenant struct {
	ID   string
	Name string
}

// ProtectionGroup is a v2 protection group (a "job" in the v1 API).
type ProtectionGroup struct {
	ID    string
	Name  string
	JobID string
}

// ProtectionRun is one execution of a protection group.
type ProtectionRun struct {
	SnapshotsDeleted bool
	Sources          []SourceBackupStatus
}

// SourceBackupStatus is the outcome of one protected source within a run.
// StartTimeUsecs is nil when the cluster did not report it.
type SourceBackupStatus struct {
	SourceName          string
	BytesReadFromSource int64
	StartTimeUsecs      *int64
}

// wire formats

type tenantJSON struct {
	TenantID *string `json:"tenantId"`
	Name     *string `json:"name"`
}

type protectionGroupsJSON struct {
	ProtectionGroups []protectionGroupJSON `json:"protectionGroups"`
}

type protectionGroupJSON struct {
	ID   *string `json:"id"`
	Name *string `json:"name"`
}

type protectionRunJSON struct {
	BackupRun *backupRunJSON `json:"backupRun"`
}

type backupRunJSON struct {
	SnapshotsDeleted   *bool                     `json:"snapshotsDeleted"`
	SourceBackupStatus *[]sourceBackupStatusJSON `json:"sourceBackupStatus"`
}

type sourceBackupStatusJSON struct {
	Source *struct {
		Name *string `json:"name"`
	} `json:"source"`
	Stats *struct {
		StartTimeUsecs           *int64 `json:"startTimeUsecs"`
		TotalBytesReadFromSource *int64 `json:"totalBytesReadFromSource"`
	} `json:"stats"`
}

type accessTokenRequest struct {
	Domain   string `json:"domain"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type accessTokenResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
}

func (t tenantJSON) toTenant(endpoint string, index int) (Tenant, error) {
	if t.TenantID == nil {
		return Tenant{}, malformed(endpoint, fmt.Sprintf("[%d].tenantId", index), "missing")
	}
	if t.Name == nil {
		return Tenant{}, malformed(endpoint, fmt.Sprintf("[%d].name", index), "missing")
	}
	// tenant ids come back as "org/" or "org/sub"
	id, _, _ := strings.Cut(*t.TenantID, "/")
	return Tenant{ID: id, Name: *t.Name}, nil
}

func (g protectionGroupJSON) toProtectionGroup(endpoint string, index int) (ProtectionGroup, error) {
	if g.ID == nil {
		return ProtectionGroup{}, malformed(endpoint, fmt.Sprintf("protectionGroups[%d].id", index), "missing")
	}
	if g.Name == nil {
		return ProtectionGroup{}, malformed(endpoint, fmt.Sprintf("protectionGroups[%d].name", index), "missing")
	}
	// clusterId:clusterIncarnationId:jobId
	parts := strings.Split(*g.ID, ":")
	if len(parts) < 3 || parts[2] == "" {
		return ProtectionGroup{}, malformed(endpoint, fmt.Sprintf("protectionGroups[%d].id", index),
			fmt.Sprintf("%q is not of the form cluster:incarnation:job", *g.ID))
	}
	return ProtectionGroup{ID: *g.ID, Name: *g.Name, JobID: parts[2]}, nil
}

func (r protectionRunJSON) toProtectionRun(endpoint string, index int) (ProtectionRun, error) {
	if r.BackupRun == nil {
		return ProtectionRun{}, malformed(endpoint, fmt.Sprintf("[%d].backupRun", index), "missing")
	}
	if r.BackupRun.SnapshotsDeleted == nil {
		return ProtectionRun{}, malformed(endpoint, fmt.Sprintf("[%d].backupRun.snapshotsDeleted", index), "missing")
	}
	// sources of a deleted run are never read
	if *r.BackupRun.SnapshotsDeleted {
		return ProtectionRun{SnapshotsDeleted: true}, nil
	}
	if r.BackupRun.SourceBackupStatus == nil {
		return ProtectionRun{}, malformed(endpoint, fmt.Sprintf("[%d].backupRun.sourceBackupStatus", index), "missing")
	}
	statuses := *r.BackupRun.SourceBackupStatus
	run := ProtectionRun{Sources: make([]SourceBackupStatus, 0, len(statuses))}
	for i, s := range statuses {
		field := fmt.Sprintf("[%d].backupRun.sourceBackupStatus[%d]", index, i)
		if s.Source == nil || s.Source.Name == nil {
			return ProtectionRun{}, malformed(endpoint, field+".source.name", "missing")
		}
		if s.Stats == nil {
			return ProtectionRun{}, malformed(endpoint, field+".stats", "missing")
		}
		status := SourceBackupStatus{
			SourceName:     *s.Source.Name,
			StartTimeUsecs: s.Stats.StartTimeUsecs,
		}
		if s.Stats.TotalBytesReadFromSource != nil {
			status.BytesReadFromSource = *s.Stats.TotalBytesReadFromSource
		}
		run.Sources = append(run.Sources, status)
	}
	return run, nil
}
