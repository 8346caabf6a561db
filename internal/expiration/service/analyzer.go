package service

import (
	"sort"
	"time"

	"github.com/smallbiznis/provwatch/internal/entitlement"
	expirationdomain "github.com/smallbiznis/provwatch/internal/expiration/domain"
	recorddomain "github.com/smallbiznis/provwatch/internal/record/domain"
)

// productSpan is one record's coverage of a product code: the latest
// end date among its entitlements for that code, or non-expiring when
// any of them has no end date.
type productSpan struct {
	maxEnd      *time.Time
	nonExpiring bool
}

type recordEntry struct {
	rec      recorddomain.ProvisioningRecord
	ents     []entitlement.Entitlement
	products map[string]productSpan
}

// Analyze computes the expiration finding set for every account. It is
// pure: persistence, IDs and the run ledger belong to the caller.
//
// Per account, records are ordered by CreatedAt ascending with record
// ID as the tie-break, and "later" means strictly after in that order.
// An entitlement expiring within [today, today+windowDays] is
// extended when a later record carries the same product with a
// strictly later end date (the extender is the later record holding
// the latest qualifying end date; a non-expiring re-grant always
// qualifies), superseded when extension fails and some later record
// omits the product, reportable otherwise. Extension is checked before
// removal. Records older than lookbackYears are excluded as finding
// subjects but still serve as later-record evidence.
func Analyze(groups map[string][]recorddomain.ProvisioningRecord, lookbackYears, windowDays int, now time.Time) expirationdomain.Result {
	now = now.UTC()
	today := startOfDay(now)
	windowEnd := today.AddDate(0, 0, windowDays)
	cutoff := now.AddDate(-lookbackYears, 0, 0)

	var result expirationdomain.Result

	for _, records := range groups {
		entries := buildEntries(records, &result.Counts)

		for i, entry := range entries {
			// Lookback exclusion applies to the subject only.
			if !entry.rec.CreatedAt.After(cutoff) {
				continue
			}
			for _, ent := range entry.ents {
				if ent.EndDate == nil {
					continue
				}
				endDay := startOfDay(*ent.EndDate)
				if endDay.Before(today) || endDay.After(windowEnd) {
					continue
				}

				finding := classify(entries[i+1:], entry, ent, now)
				switch finding.Disposition {
				case expirationdomain.DispositionReportable:
					result.Counts.Reportable++
				case expirationdomain.DispositionExtended:
					result.Counts.Extended++
				case expirationdomain.DispositionSuperseded:
					result.Counts.Superseded++
				}
				result.Findings = append(result.Findings, finding)
			}
		}
	}

	return result
}

// classify applies the disposition rules against the subject's later
// records. Extension wins over removal: a product re-added with a
// later date in one later record and dropped in another counts as
// extended.
func classify(later []recordEntry, entry recordEntry, ent entitlement.Entitlement, now time.Time) expirationdomain.ExpirationFinding {
	var (
		extender       *recordEntry
		extenderEnd    *time.Time
		extenderForever bool
		sawOmission    bool
	)

	for idx := range later {
		span, ok := later[idx].products[ent.ProductCode]
		if !ok {
			sawOmission = true
			continue
		}
		if span.nonExpiring {
			if !extenderForever {
				extender = &later[idx]
				extenderEnd = nil
				extenderForever = true
			}
			continue
		}
		if span.maxEnd == nil || !span.maxEnd.After(*ent.EndDate) {
			// Same entitlement carried unchanged: neither extension
			// nor omission.
			continue
		}
		if extenderForever {
			continue
		}
		if extender == nil || span.maxEnd.After(*extenderEnd) {
			extender = &later[idx]
			extenderEnd = span.maxEnd
		}
	}

	finding := expirationdomain.ExpirationFinding{
		AccountID:       entry.rec.AccountID,
		AccountName:     entry.rec.AccountName,
		RecordID:        entry.rec.ID,
		RecordName:      entry.rec.Name,
		Category:        string(ent.Category),
		ProductCode:     ent.ProductCode,
		ProductName:     ent.ProductName,
		PackageName:     ent.PackageName,
		EndDate:         ent.EndDate.UTC(),
		DaysUntilExpiry: daysUntil(now, *ent.EndDate),
	}

	switch {
	case extender != nil:
		finding.Disposition = expirationdomain.DispositionExtended
		extendingID := extender.rec.ID
		finding.ExtendingRecordID = &extendingID
		finding.ExtendingEndDate = extenderEnd
	case sawOmission:
		finding.Disposition = expirationdomain.DispositionSuperseded
	default:
		finding.Disposition = expirationdomain.DispositionReportable
	}
	return finding
}

func buildEntries(records []recorddomain.ProvisioningRecord, counts *expirationdomain.Counts) []recordEntry {
	sorted := make([]recorddomain.ProvisioningRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].ID < sorted[j].ID
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	entries := make([]recordEntry, 0, len(sorted))
	for _, rec := range sorted {
		counts.RecordsScanned++
		res := entitlement.Normalize(rec.RawPayload)
		if res.Failure != nil && res.Failure.Code != entitlement.FailureAbsentPayload {
			counts.ParseFailures++
		}
		counts.EntitlementsScanned += len(res.Entitlements)

		products := make(map[string]productSpan, len(res.Entitlements))
		for _, ent := range res.Entitlements {
			if ent.ProductCode == "" {
				continue
			}
			span := products[ent.ProductCode]
			if ent.EndDate == nil {
				span.nonExpiring = true
				span.maxEnd = nil
			} else if !span.nonExpiring && (span.maxEnd == nil || ent.EndDate.After(*span.maxEnd)) {
				end := ent.EndDate.UTC()
				span.maxEnd = &end
			}
			products[ent.ProductCode] = span
		}

		entries = append(entries, recordEntry{
			rec:      rec,
			ents:     res.Entitlements,
			products: products,
		})
	}
	return entries
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// daysUntil is the whole-day difference from the run start, truncated.
func daysUntil(now, end time.Time) int {
	return int(end.Sub(now) / (24 * time.Hour))
}
