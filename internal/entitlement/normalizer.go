// Package entitlement normalizes heterogeneous record payloads into a
// canonical list of typed entitlements.
package entitlement

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Category classifies an entitlement bucket.
type Category string

const (
	CategoryModel Category = "Model"
	CategoryData  Category = "Data"
	CategoryApp   Category = "App"
)

// Entitlement is a single product grant with a validity window. An
// absent EndDate means the grant never expires.
type Entitlement struct {
	ProductCode string
	ProductName string
	PackageName string
	Category    Category
	StartDate   *time.Time
	EndDate     *time.Time
	Quantity    *int
}

// ParseFailure codes.
const (
	FailureAbsentPayload = "absent_payload"
	FailureInvalidJSON   = "invalid_json"
	FailureNotObject     = "not_object"
)

// ParseFailure is an observability note attached to a result whose
// payload could not be read. It is never an error.
type ParseFailure struct {
	Code    string
	Message string
}

// Result carries the normalized entitlements and, when the payload was
// absent or unreadable, a structured parse-failure note.
type Result struct {
	Entitlements []Entitlement
	Failure      *ParseFailure
}

// Normalize maps a raw payload into canonical entitlements. It is pure
// and total: it never returns an error, and an unreadable payload
// yields an empty list with a failure note.
func Normalize(rawPayload string) Result {
	trimmed := strings.TrimSpace(rawPayload)
	if trimmed == "" {
		return Result{Failure: &ParseFailure{
			Code:    FailureAbsentPayload,
			Message: "record carries no payload",
		}}
	}

	var root map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &root); err != nil {
		var probe interface{}
		if jsonErr := json.Unmarshal([]byte(trimmed), &probe); jsonErr != nil {
			return Result{Failure: &ParseFailure{
				Code:    FailureInvalidJSON,
				Message: err.Error(),
			}}
		}
		return Result{Failure: &ParseFailure{
			Code:    FailureNotObject,
			Message: "payload root is not a JSON object",
		}}
	}

	block := locateBlock(root)
	if block == nil {
		return Result{}
	}

	entitlements := make([]Entitlement, 0)
	for _, bucket := range buckets {
		for _, entry := range bucketEntries(block, bucket.keys) {
			entitlements = append(entitlements, mapEntry(entry, bucket.category))
		}
	}
	if len(entitlements) == 0 {
		return Result{}
	}
	return Result{Entitlements: entitlements}
}

// blockAccessor attempts one known payload location. Accessors are
// tried in order; the first that yields a block holding at least one
// bucket wins.
type blockAccessor func(root map[string]interface{}) map[string]interface{}

var blockAccessors = []blockAccessor{
	accessProvisioningDetail,
	accessRoot,
	accessEntitlementsKey,
}

func locateBlock(root map[string]interface{}) map[string]interface{} {
	for _, access := range blockAccessors {
		block := access(root)
		if hasBucket(block) {
			return block
		}
	}
	return nil
}

func accessProvisioningDetail(root map[string]interface{}) map[string]interface{} {
	for _, key := range []string{"provisioningDetail", "ProvisioningDetail", "provisioning_detail"} {
		if nested, ok := root[key].(map[string]interface{}); ok {
			return nested
		}
	}
	return nil
}

func accessRoot(root map[string]interface{}) map[string]interface{} {
	return root
}

func accessEntitlementsKey(root map[string]interface{}) map[string]interface{} {
	for _, key := range []string{"entitlements", "Entitlements"} {
		if nested, ok := root[key].(map[string]interface{}); ok {
			return nested
		}
	}
	return nil
}

func hasBucket(block map[string]interface{}) bool {
	if block == nil {
		return false
	}
	for _, bucket := range buckets {
		for _, key := range bucket.keys {
			if _, ok := block[key]; ok {
				return true
			}
		}
	}
	return false
}

type bucketSpec struct {
	category Category
	keys     []string
}

var buckets = []bucketSpec{
	{CategoryModel, []string{"modelEntitlements", "ModelEntitlements", "model_entitlements", "model"}},
	{CategoryData, []string{"dataEntitlements", "DataEntitlements", "data_entitlements", "data"}},
	{CategoryApp, []string{"appEntitlements", "AppEntitlements", "app_entitlements", "app"}},
}

func bucketEntries(block map[string]interface{}, keys []string) []map[string]interface{} {
	for _, key := range keys {
		raw, ok := block[key]
		if !ok {
			continue
		}
		list, ok := raw.([]interface{})
		if !ok {
			return nil
		}
		entries := make([]map[string]interface{}, 0, len(list))
		for _, item := range list {
			if entry, ok := item.(map[string]interface{}); ok {
				entries = append(entries, entry)
			}
		}
		return entries
	}
	return nil
}

func mapEntry(entry map[string]interface{}, category Category) Entitlement {
	return Entitlement{
		ProductCode: stringField(entry, "productCode", "ProductCode", "product_code", "code"),
		ProductName: stringField(entry, "productName", "ProductName", "product_name"),
		PackageName: stringField(entry, "packageName", "PackageName", "package_name"),
		Category:    category,
		StartDate:   dateField(entry, "startDate", "StartDate", "start_date"),
		EndDate:     dateField(entry, "endDate", "EndDate", "end_date"),
		Quantity:    intField(entry, "quantity", "Quantity", "qty"),
	}
}

// stringField returns the first alias present, even when its value is
// empty, so a blank productCode in a newer payload shape is not
// shadowed by a stale alias.
func stringField(entry map[string]interface{}, aliases ...string) string {
	for _, alias := range aliases {
		raw, ok := entry[alias]
		if !ok {
			continue
		}
		switch v := raw.(type) {
		case string:
			return strings.TrimSpace(v)
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		default:
			return ""
		}
	}
	return ""
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006/01/02",
}

func dateField(entry map[string]interface{}, aliases ...string) *time.Time {
	for _, alias := range aliases {
		raw, ok := entry[alias]
		if !ok {
			continue
		}
		value, ok := raw.(string)
		if !ok {
			return nil
		}
		value = strings.TrimSpace(value)
		if value == "" {
			return nil
		}
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, value); err == nil {
				parsed = parsed.UTC()
				return &parsed
			}
		}
		return nil
	}
	return nil
}

func intField(entry map[string]interface{}, aliases ...string) *int {
	for _, alias := range aliases {
		raw, ok := entry[alias]
		if !ok {
			continue
		}
		switch v := raw.(type) {
		case float64:
			n := int(v)
			return &n
		case string:
			parsed, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return nil
			}
			return &parsed
		default:
			return nil
		}
	}
	return nil
}
