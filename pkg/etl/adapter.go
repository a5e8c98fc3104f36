package etl

import (
	"strings"
	"time"

	"github.com/vantagehq/vantage/pkg/types"
)

// sentinelDate is the "not applicable" marker used by the source dataset;
// it normalizes to null before reaching the store.
const sentinelDate = "19000101"

const dateLayout = "20060102"

// unknownEntityName is stored when a non-individual record carries no
// main entity name
const unknownEntityName = "Unknown Entity"

// Normalize converts a raw parsed record into the domain shape
func Normalize(raw types.RawRecord) types.NormalizedRecord {
	b := types.Business{
		ABN:               raw.ABN,
		ABNStatus:         raw.ABNStatus,
		ABNStatusFrom:     parseDate(raw.ABNStatusFrom),
		EntityTypeCode:    raw.EntityTypeCode,
		EntityTypeText:    raw.EntityTypeText,
		State:             optional(raw.State),
		Postcode:          optional(raw.Postcode),
		GSTStatus:         optional(raw.GSTStatus),
		GSTFromDate:       parseDate(raw.GSTFromDate),
		ACN:               optional(raw.ACN),
		RecordLastUpdated: parseDate(raw.RecordLastUpdated),
	}

	if raw.EntityTypeCode == types.EntityTypeIndividual {
		given := strings.Join(nonEmpty(raw.GivenNames), " ")
		b.GivenName = optional(given)
		b.FamilyName = optional(raw.FamilyName)
		b.EntityName = strings.Join(nonEmpty([]string{given, raw.FamilyName}), " ")
	} else {
		b.EntityName = raw.MainEntityName
		if b.EntityName == "" {
			b.EntityName = unknownEntityName
		}
	}

	names := make([]types.RawName, len(raw.OtherNames))
	copy(names, raw.OtherNames)

	return types.NormalizedRecord{Business: b, Names: names}
}

// parseDate parses a YYYYMMDD string; the sentinel and anything malformed
// become nil
func parseDate(s string) *time.Time {
	if s == "" || s == sentinelDate {
		return nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil
	}
	return &t
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nonEmpty(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
