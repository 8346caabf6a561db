package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	expirationdomain "github.com/smallbiznis/provwatch/internal/expiration/domain"
)

type findingResponse struct {
	ID                string     `json:"id"`
	RunID             string     `json:"run_id"`
	AccountID         string     `json:"account_id"`
	AccountName       string     `json:"account_name,omitempty"`
	RecordID          string     `json:"record_id"`
	RecordName        string     `json:"record_name,omitempty"`
	Category          string     `json:"category"`
	ProductCode       string     `json:"product_code"`
	ProductName       string     `json:"product_name,omitempty"`
	PackageName       string     `json:"package_name,omitempty"`
	EndDate           time.Time  `json:"end_date"`
	DaysUntilExpiry   int        `json:"days_until_expiry"`
	Disposition       string     `json:"disposition"`
	ExtendingRecordID *string    `json:"extending_record_id,omitempty"`
	ExtendingEndDate  *time.Time `json:"extending_end_date,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

type listFindingsResponse struct {
	Findings []findingResponse `json:"findings"`
}

// ListFindings returns the reportable findings of the most recent
// analysis run, soonest expiry first.
func (s *Server) ListFindings(c *gin.Context) {
	limit, err := parseOptionalLimit(c.Query("limit"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	findings, err := s.expirationSvc.ListReportable(c.Request.Context(), expirationdomain.ListFindingsRequest{
		AccountID: strings.TrimSpace(c.Query("account_id")),
		Limit:     limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := listFindingsResponse{Findings: make([]findingResponse, 0, len(findings))}
	for _, f := range findings {
		resp.Findings = append(resp.Findings, toFindingResponse(f))
	}
	c.JSON(http.StatusOK, resp)
}

func toFindingResponse(f expirationdomain.ExpirationFinding) findingResponse {
	return findingResponse{
		ID:                f.ID.String(),
		RunID:             f.RunID.String(),
		AccountID:         f.AccountID,
		AccountName:       f.AccountName,
		RecordID:          f.RecordID,
		RecordName:        f.RecordName,
		Category:          f.Category,
		ProductCode:       f.ProductCode,
		ProductName:       f.ProductName,
		PackageName:       f.PackageName,
		EndDate:           f.EndDate,
		DaysUntilExpiry:   f.DaysUntilExpiry,
		Disposition:       string(f.Disposition),
		ExtendingRecordID: f.ExtendingRecordID,
		ExtendingEndDate:  f.ExtendingEndDate,
		CreatedAt:         f.CreatedAt,
	}
}
