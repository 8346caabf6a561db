package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	expirationdomain "github.com/smallbiznis/provwatch/internal/expiration/domain"
	recorddomain "github.com/smallbiznis/provwatch/internal/record/domain"
)

var analysisNow = time.Date(2026, 8, 26, 10, 30, 0, 0, time.UTC)

func payloadWithProducts(products map[string]string) string {
	body := `{"modelEntitlements": [`
	first := true
	for code, end := range products {
		if !first {
			body += ","
		}
		first = false
		if end == "" {
			body += fmt.Sprintf(`{"productCode": %q}`, code)
		} else {
			body += fmt.Sprintf(`{"productCode": %q, "endDate": %q}`, code, end)
		}
	}
	return body + `]}`
}

func analyzerRecord(id, accountID string, createdAt time.Time, products map[string]string) recorddomain.ProvisioningRecord {
	return recorddomain.ProvisioningRecord{
		ID:         id,
		Name:       "PS-" + id,
		AccountID:  accountID,
		Status:     "Completed",
		CreatedAt:  createdAt,
		RawPayload: payloadWithProducts(products),
	}
}

func groupsOf(records ...recorddomain.ProvisioningRecord) map[string][]recorddomain.ProvisioningRecord {
	return recorddomain.GroupByAccount(records)
}

func findingFor(t *testing.T, result expirationdomain.Result, recordID, productCode string) expirationdomain.ExpirationFinding {
	t.Helper()
	for _, finding := range result.Findings {
		if finding.RecordID == recordID && finding.ProductCode == productCode {
			return finding
		}
	}
	t.Fatalf("no finding for record %s product %s", recordID, productCode)
	return expirationdomain.ExpirationFinding{}
}

func TestAnalyzeTruePositive(t *testing.T) {
	groups := groupsOf(
		analyzerRecord("rec-a", "acct-1", analysisNow.AddDate(0, -2, 0), map[string]string{
			"MDL-X": "2026-09-15",
		}),
	)

	result := Analyze(groups, 3, 90, analysisNow)
	require.Len(t, result.Findings, 1)
	require.Equal(t, 1, result.Counts.Reportable)

	finding := findingFor(t, result, "rec-a", "MDL-X")
	require.Equal(t, expirationdomain.DispositionReportable, finding.Disposition)
	require.Equal(t, 19, finding.DaysUntilExpiry)
}

func TestAnalyzeExtensionWinsOverRemoval(t *testing.T) {
	// A carries X expiring in-window; B drops X; C re-adds X with a
	// later end date. X must be extended via C, not superseded via B.
	groups := groupsOf(
		analyzerRecord("rec-a", "acct-1", analysisNow.AddDate(0, -6, 0), map[string]string{
			"MDL-X": "2026-09-30",
		}),
		analyzerRecord("rec-b", "acct-1", analysisNow.AddDate(0, -4, 0), map[string]string{
			"MDL-Y": "2027-01-31",
		}),
		analyzerRecord("rec-c", "acct-1", analysisNow.AddDate(0, -2, 0), map[string]string{
			"MDL-X": "2027-06-30",
		}),
	)

	result := Analyze(groups, 3, 90, analysisNow)

	finding := findingFor(t, result, "rec-a", "MDL-X")
	require.Equal(t, expirationdomain.DispositionExtended, finding.Disposition)
	require.NotNil(t, finding.ExtendingRecordID)
	require.Equal(t, "rec-c", *finding.ExtendingRecordID)
	require.NotNil(t, finding.ExtendingEndDate)
	require.Equal(t, time.Date(2027, 6, 30, 0, 0, 0, 0, time.UTC), *finding.ExtendingEndDate)
	require.Equal(t, 1, result.Counts.Extended)
	require.Equal(t, 0, result.Counts.Superseded)
}

func TestAnalyzeExtenderIsLatestEndDateNotRecordOrder(t *testing.T) {
	// Two later records both extend X; the extender is the one holding
	// the latest end date even though it was submitted earlier.
	groups := groupsOf(
		analyzerRecord("rec-a", "acct-1", analysisNow.AddDate(0, -6, 0), map[string]string{
			"MDL-X": "2026-09-30",
		}),
		analyzerRecord("rec-b", "acct-1", analysisNow.AddDate(0, -4, 0), map[string]string{
			"MDL-X": "2027-12-31",
		}),
		analyzerRecord("rec-c", "acct-1", analysisNow.AddDate(0, -2, 0), map[string]string{
			"MDL-X": "2027-03-31",
		}),
	)

	result := Analyze(groups, 3, 90, analysisNow)

	finding := findingFor(t, result, "rec-a", "MDL-X")
	require.Equal(t, expirationdomain.DispositionExtended, finding.Disposition)
	require.Equal(t, "rec-b", *finding.ExtendingRecordID)
	require.Equal(t, time.Date(2027, 12, 31, 0, 0, 0, 0, time.UTC), *finding.ExtendingEndDate)
}

func TestAnalyzeSupersededFiltering(t *testing.T) {
	groups := groupsOf(
		analyzerRecord("rec-a", "acct-1", analysisNow.AddDate(0, -6, 0), map[string]string{
			"MDL-X": "2026-09-30",
		}),
		analyzerRecord("rec-b", "acct-1", analysisNow.AddDate(0, -2, 0), map[string]string{
			"MDL-Y": "",
		}),
	)

	result := Analyze(groups, 3, 90, analysisNow)

	finding := findingFor(t, result, "rec-a", "MDL-X")
	require.Equal(t, expirationdomain.DispositionSuperseded, finding.Disposition)
	require.Equal(t, 1, result.Counts.Superseded)
	require.Equal(t, 0, result.Counts.Reportable)
}

func TestAnalyzeUnchangedLaterRecordStaysReportable(t *testing.T) {
	// The later record still carries the same entitlement with the same
	// end date: neither extension nor removal.
	groups := groupsOf(
		analyzerRecord("rec-a", "acct-1", analysisNow.AddDate(0, -6, 0), map[string]string{
			"MDL-X": "2026-09-30",
		}),
		analyzerRecord("rec-b", "acct-1", analysisNow.AddDate(0, -2, 0), map[string]string{
			"MDL-X": "2026-09-30",
		}),
	)

	result := Analyze(groups, 3, 90, analysisNow)

	finding := findingFor(t, result, "rec-a", "MDL-X")
	require.Equal(t, expirationdomain.DispositionReportable, finding.Disposition)
}

func TestAnalyzeNonExpiringRegrantExtends(t *testing.T) {
	groups := groupsOf(
		analyzerRecord("rec-a", "acct-1", analysisNow.AddDate(0, -6, 0), map[string]string{
			"MDL-X": "2026-09-30",
		}),
		analyzerRecord("rec-b", "acct-1", analysisNow.AddDate(0, -2, 0), map[string]string{
			"MDL-X": "",
		}),
	)

	result := Analyze(groups, 3, 90, analysisNow)

	finding := findingFor(t, result, "rec-a", "MDL-X")
	require.Equal(t, expirationdomain.DispositionExtended, finding.Disposition)
	require.Equal(t, "rec-b", *finding.ExtendingRecordID)
	require.Nil(t, finding.ExtendingEndDate)
}

func TestAnalyzeWindowBounds(t *testing.T) {
	groups := groupsOf(
		analyzerRecord("rec-a", "acct-1", analysisNow.AddDate(0, -1, 0), map[string]string{
			"MDL-PAST":   "2026-08-25",
			"MDL-TODAY":  "2026-08-26",
			"MDL-EDGE":   "2026-11-24",
			"MDL-BEYOND": "2026-11-25",
		}),
	)

	result := Analyze(groups, 3, 90, analysisNow)
	require.Len(t, result.Findings, 2)
	codes := map[string]bool{}
	for _, finding := range result.Findings {
		codes[finding.ProductCode] = true
	}
	require.True(t, codes["MDL-TODAY"])
	require.True(t, codes["MDL-EDGE"])
}

func TestAnalyzeLookbackBoundary(t *testing.T) {
	cutoffCreated := analysisNow.AddDate(-3, 0, 0)

	// rec-old sits exactly at the cutoff: excluded as a subject, still
	// later-record evidence is unaffected (it is the earliest record).
	// rec-older is before the cutoff yet still supersedes nothing here.
	groups := groupsOf(
		analyzerRecord("rec-old", "acct-1", cutoffCreated, map[string]string{
			"MDL-X": "2026-09-30",
		}),
		analyzerRecord("rec-new", "acct-1", analysisNow.AddDate(0, -1, 0), map[string]string{
			"MDL-Y": "2026-09-30",
		}),
	)

	result := Analyze(groups, 3, 90, analysisNow)

	// rec-old is not a subject, but its omission of MDL-Y is irrelevant
	// (it is earlier); rec-new's finding is unaffected.
	require.Len(t, result.Findings, 1)
	require.Equal(t, "rec-new", result.Findings[0].RecordID)
	require.Equal(t, expirationdomain.DispositionReportable, result.Findings[0].Disposition)
}

func TestAnalyzeOldRecordStillServesAsEvidence(t *testing.T) {
	// The subject is in range; the extending record is out of lookback
	// range as a subject but still counts as later-record evidence.
	subjectCreated := analysisNow.AddDate(-3, 0, -10)
	evidenceCreated := analysisNow.AddDate(-3, 0, 0)

	groups := groupsOf(
		analyzerRecord("rec-subject", "acct-1", subjectCreated, map[string]string{
			"MDL-X": "2026-09-30",
		}),
		analyzerRecord("rec-evidence", "acct-1", evidenceCreated, map[string]string{
			"MDL-X": "2027-09-30",
		}),
	)

	// Lookback of 3y would exclude both as subjects; widen to 4 so the
	// subject is in range. The evidence record's own entitlement ends
	// outside the window and yields no finding of its own.
	result := Analyze(groups, 4, 90, analysisNow)
	require.Len(t, result.Findings, 1)

	finding := findingFor(t, result, "rec-subject", "MDL-X")
	require.Equal(t, expirationdomain.DispositionExtended, finding.Disposition)
	require.Equal(t, "rec-evidence", *finding.ExtendingRecordID)
}

func TestAnalyzeCreatedAtTieBrokenByRecordID(t *testing.T) {
	created := analysisNow.AddDate(0, -2, 0)
	groups := groupsOf(
		analyzerRecord("rec-b", "acct-1", created, map[string]string{
			"MDL-X": "2027-06-30",
		}),
		analyzerRecord("rec-a", "acct-1", created, map[string]string{
			"MDL-X": "2026-09-30",
		}),
	)

	// rec-a sorts before rec-b on the ID tie-break, so rec-b is the
	// later record and extends rec-a's entitlement.
	result := Analyze(groups, 3, 90, analysisNow)

	finding := findingFor(t, result, "rec-a", "MDL-X")
	require.Equal(t, expirationdomain.DispositionExtended, finding.Disposition)
	require.Equal(t, "rec-b", *finding.ExtendingRecordID)
}

func TestAnalyzeParseFailureResilience(t *testing.T) {
	broken := recorddomain.ProvisioningRecord{
		ID:         "rec-broken",
		AccountID:  "acct-1",
		CreatedAt:  analysisNow.AddDate(0, -3, 0),
		RawPayload: `{"modelEntitlements": [`,
	}
	healthy := analyzerRecord("rec-healthy", "acct-1", analysisNow.AddDate(0, -2, 0), map[string]string{
		"MDL-X": "2026-09-30",
	})

	result := Analyze(groupsOf(broken, healthy), 3, 90, analysisNow)

	require.Equal(t, 1, result.Counts.ParseFailures)
	require.Len(t, result.Findings, 1)
	finding := findingFor(t, result, "rec-healthy", "MDL-X")
	require.Equal(t, expirationdomain.DispositionReportable, finding.Disposition)
}

func TestAnalyzeBrokenLaterRecordHasEmptyProductSet(t *testing.T) {
	// A later record whose payload cannot be parsed contributes an
	// empty product set, which reads as an omission of the product.
	subject := analyzerRecord("rec-a", "acct-1", analysisNow.AddDate(0, -3, 0), map[string]string{
		"MDL-X": "2026-09-30",
	})
	broken := recorddomain.ProvisioningRecord{
		ID:         "rec-broken",
		AccountID:  "acct-1",
		CreatedAt:  analysisNow.AddDate(0, -1, 0),
		RawPayload: `{"modelEntitlements": [`,
	}

	result := Analyze(groupsOf(subject, broken), 3, 90, analysisNow)

	finding := findingFor(t, result, "rec-a", "MDL-X")
	require.Equal(t, expirationdomain.DispositionSuperseded, finding.Disposition)
}

func TestAnalyzeAccountsAreIndependent(t *testing.T) {
	groups := groupsOf(
		analyzerRecord("rec-a", "acct-1", analysisNow.AddDate(0, -3, 0), map[string]string{
			"MDL-X": "2026-09-30",
		}),
		analyzerRecord("rec-b", "acct-2", analysisNow.AddDate(0, -1, 0), map[string]string{
			"MDL-Y": "",
		}),
	)

	// acct-2's record is no "later record" for acct-1.
	result := Analyze(groups, 3, 90, analysisNow)
	finding := findingFor(t, result, "rec-a", "MDL-X")
	require.Equal(t, expirationdomain.DispositionReportable, finding.Disposition)
}

func TestAnalyzeCounts(t *testing.T) {
	groups := groupsOf(
		analyzerRecord("rec-a", "acct-1", analysisNow.AddDate(0, -3, 0), map[string]string{
			"MDL-X": "2026-09-30",
			"MDL-Z": "2030-01-01",
		}),
		analyzerRecord("rec-b", "acct-1", analysisNow.AddDate(0, -1, 0), map[string]string{
			"MDL-X": "2027-09-30",
		}),
	)

	result := Analyze(groups, 3, 90, analysisNow)
	require.Equal(t, 2, result.Counts.RecordsScanned)
	require.Equal(t, 3, result.Counts.EntitlementsScanned)
	require.Equal(t, 1, result.Counts.Extended)
	require.Equal(t, 0, result.Counts.Reportable)
	require.Equal(t, 0, result.Counts.Superseded)
}
