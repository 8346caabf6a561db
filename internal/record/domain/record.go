// Package domain defines the externally-sourced provisioning record model.
package domain

import (
	"context"
	"sort"
	"time"
)

// ProvisioningRecord is an immutable point-in-time form submission
// re-fetched from the external source on every run. ID and CreatedAt
// never change across fetches.
type ProvisioningRecord struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	AccountID      string    `json:"accountId"`
	AccountName    string    `json:"accountName"`
	Status         string    `json:"status"`
	RequestAction  string    `json:"requestAction"`
	CreatedAt      time.Time `json:"createdAt"`
	LastModifiedAt time.Time `json:"lastModifiedAt"`
	RawPayload     string    `json:"rawPayload,omitempty"`
}

// Source supplies the full current record universe. Listings are
// complete, never incremental.
type Source interface {
	FetchAll(ctx context.Context) ([]ProvisioningRecord, error)
}

// GroupByAccount buckets records by AccountID and sorts each bucket by
// CreatedAt ascending, record ID as the tie-break for identical
// timestamps.
func GroupByAccount(records []ProvisioningRecord) map[string][]ProvisioningRecord {
	groups := make(map[string][]ProvisioningRecord)
	for _, rec := range records {
		groups[rec.AccountID] = append(groups[rec.AccountID], rec)
	}
	for _, group := range groups {
		sort.SliceStable(group, func(i, j int) bool {
			if group[i].CreatedAt.Equal(group[j].CreatedAt) {
				return group[i].ID < group[j].ID
			}
			return group[i].CreatedAt.Before(group[j].CreatedAt)
		})
	}
	return groups
}
