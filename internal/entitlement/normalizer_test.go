package entitlement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNormalizeAbsentPayload(t *testing.T) {
	for _, payload := range []string{"", "   "} {
		res := Normalize(payload)
		require.Empty(t, res.Entitlements)
		require.NotNil(t, res.Failure)
		require.Equal(t, FailureAbsentPayload, res.Failure.Code)
	}
}

func TestNormalizeInvalidJSON(t *testing.T) {
	res := Normalize(`{"modelEntitlements": [`)
	require.Empty(t, res.Entitlements)
	require.NotNil(t, res.Failure)
	require.Equal(t, FailureInvalidJSON, res.Failure.Code)
}

func TestNormalizeNonObjectPayload(t *testing.T) {
	res := Normalize(`[1, 2, 3]`)
	require.Empty(t, res.Entitlements)
	require.NotNil(t, res.Failure)
	require.Equal(t, FailureNotObject, res.Failure.Code)
}

func TestNormalizeProvisioningDetailWinsOverRoot(t *testing.T) {
	res := Normalize(`{
		"provisioningDetail": {
			"modelEntitlements": [{"productCode": "MDL-1"}]
		},
		"modelEntitlements": [{"productCode": "ROOT-1"}]
	}`)
	require.Nil(t, res.Failure)
	require.Len(t, res.Entitlements, 1)
	require.Equal(t, "MDL-1", res.Entitlements[0].ProductCode)
}

func TestNormalizeRootBlock(t *testing.T) {
	res := Normalize(`{
		"modelEntitlements": [{"productCode": "MDL-1"}],
		"dataEntitlements": [{"productCode": "DAT-1"}],
		"appEntitlements": [{"productCode": "APP-1"}]
	}`)
	require.Nil(t, res.Failure)
	require.Len(t, res.Entitlements, 3)
	require.Equal(t, CategoryModel, res.Entitlements[0].Category)
	require.Equal(t, CategoryData, res.Entitlements[1].Category)
	require.Equal(t, CategoryApp, res.Entitlements[2].Category)
}

func TestNormalizeEntitlementsKeyFallback(t *testing.T) {
	res := Normalize(`{
		"entitlements": {
			"dataEntitlements": [{"productCode": "DAT-9"}]
		}
	}`)
	require.Nil(t, res.Failure)
	require.Len(t, res.Entitlements, 1)
	require.Equal(t, "DAT-9", res.Entitlements[0].ProductCode)
	require.Equal(t, CategoryData, res.Entitlements[0].Category)
}

func TestNormalizeNoBlockFound(t *testing.T) {
	res := Normalize(`{"unrelated": true}`)
	require.Nil(t, res.Failure)
	require.Empty(t, res.Entitlements)
}

func TestNormalizeMissingBucketsDefaultEmpty(t *testing.T) {
	res := Normalize(`{"appEntitlements": [{"productCode": "APP-1"}]}`)
	require.Nil(t, res.Failure)
	require.Len(t, res.Entitlements, 1)
	require.Equal(t, CategoryApp, res.Entitlements[0].Category)
}

func TestNormalizeFieldAliasesFirstPresentWins(t *testing.T) {
	res := Normalize(`{
		"modelEntitlements": [{
			"product_code": "MDL-1",
			"ProductName": "Forecast Model",
			"package_name": "Enterprise",
			"EndDate": "2026-06-30",
			"start_date": "2025-07-01",
			"qty": "3"
		}]
	}`)
	require.Nil(t, res.Failure)
	require.Len(t, res.Entitlements, 1)

	ent := res.Entitlements[0]
	require.Equal(t, "MDL-1", ent.ProductCode)
	require.Equal(t, "Forecast Model", ent.ProductName)
	require.Equal(t, "Enterprise", ent.PackageName)
	require.NotNil(t, ent.StartDate)
	require.Equal(t, time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC), *ent.StartDate)
	require.NotNil(t, ent.EndDate)
	require.Equal(t, time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC), *ent.EndDate)
	require.NotNil(t, ent.Quantity)
	require.Equal(t, 3, *ent.Quantity)
}

func TestNormalizeFirstAliasShadowsLater(t *testing.T) {
	res := Normalize(`{
		"modelEntitlements": [{
			"endDate": "",
			"end_date": "2026-06-30"
		}]
	}`)
	require.Len(t, res.Entitlements, 1)
	require.Nil(t, res.Entitlements[0].EndDate)
}

func TestNormalizeAbsentEndDateIsNonExpiring(t *testing.T) {
	res := Normalize(`{
		"dataEntitlements": [{"productCode": "DAT-1"}]
	}`)
	require.Len(t, res.Entitlements, 1)
	require.Nil(t, res.Entitlements[0].EndDate)
}

func TestNormalizeMalformedDateTreatedAbsent(t *testing.T) {
	res := Normalize(`{
		"dataEntitlements": [{"productCode": "DAT-1", "endDate": "soon"}]
	}`)
	require.Len(t, res.Entitlements, 1)
	require.Nil(t, res.Entitlements[0].EndDate)
}

func TestNormalizeRFC3339EndDate(t *testing.T) {
	res := Normalize(`{
		"appEntitlements": [{"productCode": "APP-1", "endDate": "2026-09-15T00:00:00Z"}]
	}`)
	require.Len(t, res.Entitlements, 1)
	require.NotNil(t, res.Entitlements[0].EndDate)
	require.Equal(t, time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC), *res.Entitlements[0].EndDate)
}

func TestNormalizeNumericQuantity(t *testing.T) {
	res := Normalize(`{
		"appEntitlements": [{"productCode": "APP-1", "quantity": 5}]
	}`)
	require.Len(t, res.Entitlements, 1)
	require.NotNil(t, res.Entitlements[0].Quantity)
	require.Equal(t, 5, *res.Entitlements[0].Quantity)
}
