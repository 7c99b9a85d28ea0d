package chargeback

import (
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const singleRecordReport = `[
    {
        "FQDN": "host1", 
        "customer": {
            "businessGroupId": null, 
            "businessGroupName": null, 
            "customerClass": "ESC", 
            "tenantId": "T1"
        }, 
        "resource": {
            "datacenter": null, 
            "datastoreUsage": {
                "size": 2, 
                "unit": "MiB"
            }, 
            "lifecycle_state": "UPDATED", 
            "serviceClass": null
        }, 
        "resourceClass": "AGENT_BASED_BACKUP", 
        "resourceId": null, 
        "resourceName": null, 
        "timestamp": "2023-11-14 22:13:20"
    }
]`

func TestSizeMiB(t *testing.T) {
	tests := []struct {
		bytes int64
		want  int64
	}{
		{0, 0},
		{10485, 0},
		{1048575, 1},
		{1048576, 1},
		{1572864, 1},
		{2097151, 2},
		{2097152, 2},
		{1042000, 0},
		{5 * 1024 * 1024 * 1024, 5120},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SizeMiB(tt.bytes), "bytes=%d", tt.bytes)
	}
}

func TestBuildReport_MapsFields(t *testing.T) {
	agg := Aggregate{
		"host1": {TenantID: "t1", TenantName: "T1", ProtectionGroup: "JobA", CumulativeBytes: 2097152, LastBackupTimestamp: "2023-11-14 22:13:20"},
	}

	records := BuildReport(agg)
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "host1", rec.FQDN)
	assert.Equal(t, "T1", rec.Customer.TenantID)
	assert.Equal(t, "ESC", rec.Customer.CustomerClass)
	assert.Nil(t, rec.Customer.BusinessGroupID)
	assert.Nil(t, rec.Customer.BusinessGroupName)
	assert.Equal(t, "AGENT_BASED_BACKUP", rec.ResourceClass)
	assert.Nil(t, rec.ResourceID)
	assert.Nil(t, rec.ResourceName)
	assert.Equal(t, "UPDATED", rec.Resource.LifecycleState)
	assert.Nil(t, rec.Resource.Datacenter)
	assert.Nil(t, rec.Resource.ServiceClass)
	assert.Equal(t, DatastoreUsage{Size: 2, Unit: "MiB"}, rec.Resource.DatastoreUsage)
	assert.Equal(t, "2023-11-14 22:13:20", rec.Timestamp)
}

func TestBuildReport_OrderedBySource(t *testing.T) {
	agg := Aggregate{
		"zeta":  {TenantName: "T"},
		"alpha": {TenantName: "T"},
		"mu":    {TenantName: "T"},
	}
	var names []string
	for _, r := range BuildReport(agg) {
		names = append(names, r.FQDN)
	}
	assert.Equal(t, []string{"alpha", "mu", "zeta"}, names)
}

func TestMarshalReport_Format(t *testing.T) {
	records := BuildReport(Aggregate{
		"host1": {TenantID: "t1", TenantName: "T1", ProtectionGroup: "JobA", CumulativeBytes: 2097152, LastBackupTimestamp: "2023-11-14 22:13:20"},
	})

	out, err := MarshalReport(records)
	require.NoError(t, err)
	assert.Equal(t, singleRecordReport, string(out))
}

func TestMarshalReport_Empty(t *testing.T) {
	out, err := MarshalReport(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(out))

	out, err = MarshalReport(BuildReport(Aggregate{}))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(out))
}

func TestMarshalReport_KeySetAndOrder(t *testing.T) {
	records := BuildReport(Aggregate{
		"a": {TenantName: "T1", LastBackupTimestamp: "x"},
		"b": {TenantName: "T2", LastBackupTimestamp: "y"},
	})
	out, err := MarshalReport(records)
	require.NoError(t, err)

	var decoded []map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &decoded))
	require.Len(t, decoded, 2)

	want := []string{"FQDN", "customer", "resource", "resourceClass", "resourceId", "resourceName", "timestamp"}
	for _, obj := range decoded {
		var keys []string
		for k := range obj {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		assert.Equal(t, want, keys)
	}

	// keys appear in sorted order at every level of the first object
	ordered := []string{
		`"FQDN":`, `"customer":`, `"businessGroupId":`, `"businessGroupName":`, `"customerClass":`, `"tenantId":`,
		`"resource":`, `"datacenter":`, `"datastoreUsage":`, `"size":`, `"unit":`, `"lifecycle_state":`, `"serviceClass":`,
		`"resourceClass":`, `"resourceId":`, `"resourceName":`, `"timestamp":`,
	}
	last := -1
	for _, key := range ordered {
		idx := strings.Index(string(out), key)
		require.Greater(t, idx, last, "key %s out of order", key)
		last = idx
	}
}

func TestMarshalReport_KeepsSpecialCharacters(t *testing.T) {
	records := BuildReport(Aggregate{
		"db<1>&co,\nx": {TenantName: "Société"},
	})
	out, err := MarshalReport(records)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"FQDN": "db<1>&co,\nx", `)
	assert.Contains(t, string(out), `"tenantId": "Soci\u00e9t\u00e9"`)

	var decoded []ReportRecord
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "db<1>&co,\nx", decoded[0].FQDN)
	assert.Equal(t, "Société", decoded[0].Customer.TenantID)
}

func TestMarshalReport_EscapesNonASCII(t *testing.T) {
	records := BuildReport(Aggregate{
		"sql-東京": {TenantName: "ünit 😀", ProtectionGroup: "pg"},
	})
	out, err := MarshalReport(records)
	require.NoError(t, err)

	for _, b := range out {
		require.Less(t, b, byte(0x80))
	}
	assert.Contains(t, string(out), `"FQDN": "sql-\u6771\u4eac", `)
	assert.Contains(t, string(out), `"tenantId": "\u00fcnit \ud83d\ude00"`)

	var decoded []ReportRecord
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "sql-東京", decoded[0].FQDN)
	assert.Equal(t, "ünit 😀", decoded[0].Customer.TenantID)
}

func TestWriteReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, os.WriteFile(path, []byte("stale content that is longer"), 0o600))

	records := BuildReport(Aggregate{
		"host1": {TenantID: "t1", TenantName: "T1", CumulativeBytes: 2097152, LastBackupTimestamp: "2023-11-14 22:13:20"},
	})
	require.NoError(t, WriteReport(path, records))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, singleRecordReport, string(data))
}

func TestWriteReport_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, WriteReport(path, BuildReport(Aggregate{})))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestWriteReport_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "report.json")
	assert.Error(t, WriteReport(path, nil))
}
