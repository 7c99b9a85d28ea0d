package chargeback

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"slices"
	"unicode/utf16"
	"unicode/utf8"
)

const (
	ResourceClass  = "AGENT_BASED_BACKUP"
	CustomerClass  = "ESC"
	LifecycleState = "UPDATED"
	UsageUnit      = "MiB"

	bytesPerMiB = 1024 * 1024
)

// Struct fields are declared in sorted key order so the encoder emits sorted keys.

// ReportRecord is one entry of the chargeback JSON array.
type ReportRecord struct {
	FQDN          string   `json:"FQDN"`
	Customer      Customer `json:"customer"`
	Resource      Resource `json:"resource"`
	ResourceClass string   `json:"resourceClass"`
	ResourceID    *string  `json:"resourceId"`
	ResourceName  *string  `json:"resourceName"`
	Timestamp     string   `json:"timestamp"`
}

type Customer struct {
	BusinessGroupID   *string `json:"businessGroupId"`
	BusinessGroupName *string `json:"businessGroupName"`
	CustomerClass     string  `json:"customerClass"`
	// TenantID carries the tenant display name, which is what consumers of the
	// report have always received.
	TenantID string `json:"tenantId"`
}

type Resource struct {
	Datacenter     *string        `json:"datacenter"`
	DatastoreUsage DatastoreUsage `json:"datastoreUsage"`
	LifecycleState string         `json:"lifecycle_state"`
	ServiceClass   *string        `json:"serviceClass"`
}

type DatastoreUsage struct {
	Size int64  `json:"size"`
	Unit string `json:"unit"`
}

// SizeMiB converts bytes to MiB rounded to two decimals, then truncated to an integer.
func SizeMiB(bytes int64) int64 {
	mib := float64(bytes) / bytesPerMiB
	return int64(math.Round(mib*100) / 100)
}

// BuildReport turns an aggregate into report records ordered by source name.
func BuildReport(agg Aggregate) []ReportRecord {
	names := make([]string, 0, len(agg))
	for name := range agg {
		names = append(names, name)
	}
	slices.Sort(names)

	records := make([]ReportRecord, 0, len(names))
	for _, name := range names {
		rec := agg[name]
		records = append(records, ReportRecord{
			FQDN: name,
			Customer: Customer{
				CustomerClass: CustomerClass,
				TenantID:      rec.TenantName,
			},
			Resource: Resource{
				DatastoreUsage: DatastoreUsage{
					Size: SizeMiB(rec.CumulativeBytes),
					Unit: UsageUnit,
				},
				LifecycleState: LifecycleState,
			},
			ResourceClass: ResourceClass,
			Timestamp:     rec.LastBackupTimestamp,
		})
	}
	return records
}

// MarshalReport encodes records as a JSON array with 4-space indentation,
// ", " between items and no trailing newline. The output is pure ASCII.
func MarshalReport(records []ReportRecord) ([]byte, error) {
	if records == nil {
		records = []ReportRecord{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(records); err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	out := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	// newlines inside strings are escaped, so every raw ",\n" is an item separator
	out = bytes.ReplaceAll(out, []byte(",\n"), []byte(", \n"))
	return escapeNonASCII(out), nil
}

// escapeNonASCII rewrites every non-ASCII rune as a lowercase \uXXXX escape,
// using a surrogate pair above the BMP. Only valid on encoder output, where
// non-ASCII bytes occur inside string literals alone.
func escapeNonASCII(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for len(data) > 0 {
		if data[0] < utf8.RuneSelf {
			out = append(out, data[0])
			data = data[1:]
			continue
		}
		r, size := utf8.DecodeRune(data)
		data = data[size:]
		if r1, r2 := utf16.EncodeRune(r); r1 != utf8.RuneError {
			out = fmt.Appendf(out, `\u%04x\u%04x`, r1, r2)
			continue
		}
		out = fmt.Appendf(out, `\u%04x`, r)
	}
	return out
}

// WriteReport writes records to path, replacing any existing file.
func WriteReport(path string, records []ReportRecord) error {
	data, err := MarshalReport(records)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file %q: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write report file %q: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close report file %q: %w", path, err)
	}
	return nil
}
