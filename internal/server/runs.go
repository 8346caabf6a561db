package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	runledgerdomain "github.com/smallbiznis/provwatch/internal/runledger/domain"
)

type runResponse struct {
	ID                  string     `json:"id"`
	Job                 string     `json:"job"`
	Status              string     `json:"status"`
	StartedAt           time.Time  `json:"started_at"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	RecordsScanned      int        `json:"records_scanned"`
	EntitlementsScanned int        `json:"entitlements_scanned"`
	FindingsReportable  int        `json:"findings_reportable"`
	FindingsSuperseded  int        `json:"findings_superseded"`
	FindingsExtended    int        `json:"findings_extended"`
	SnapshotsWritten    int        `json:"snapshots_written"`
	StatusChanges       int        `json:"status_changes"`
	OtherChanges        int        `json:"other_changes"`
	ParseFailures       int        `json:"parse_failures"`
	Error               *string    `json:"error,omitempty"`
}

type listRunsResponse struct {
	Runs []runResponse `json:"runs"`
}

// ListRuns returns the recent analysis run ledger, newest first.
func (s *Server) ListRuns(c *gin.Context) {
	limit, err := parseOptionalLimit(c.Query("limit"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	runs, err := s.ledgerSvc.ListRecent(c.Request.Context(), strings.TrimSpace(c.Query("job")), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := listRunsResponse{Runs: make([]runResponse, 0, len(runs))}
	for _, run := range runs {
		resp.Runs = append(resp.Runs, toRunResponse(run))
	}
	c.JSON(http.StatusOK, resp)
}

func toRunResponse(run runledgerdomain.AnalysisRun) runResponse {
	return runResponse{
		ID:                  run.ID.String(),
		Job:                 run.Job,
		Status:              string(run.Status),
		StartedAt:           run.StartedAt,
		CompletedAt:         run.CompletedAt,
		RecordsScanned:      run.RecordsScanned,
		EntitlementsScanned: run.EntitlementsScanned,
		FindingsReportable:  run.FindingsReportable,
		FindingsSuperseded:  run.FindingsSuperseded,
		FindingsExtended:    run.FindingsExtended,
		SnapshotsWritten:    run.SnapshotsWritten,
		StatusChanges:       run.StatusChanges,
		OtherChanges:        run.OtherChanges,
		ParseFailures:       run.ParseFailures,
		Error:               run.Error,
	}
}
