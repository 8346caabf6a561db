package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	snapshotdomain "github.com/smallbiznis/provwatch/internal/snapshot/domain"
)

type snapshotResponse struct {
	ID             string          `json:"id"`
	RecordID       string          `json:"record_id"`
	CapturedAt     time.Time       `json:"captured_at"`
	ChangeKind     string          `json:"change_kind"`
	Status         string          `json:"status,omitempty"`
	RequestAction  string          `json:"request_action,omitempty"`
	AccountID      string          `json:"account_id,omitempty"`
	AccountName    string          `json:"account_name,omitempty"`
	Name           string          `json:"name,omitempty"`
	LastModifiedAt *time.Time      `json:"last_modified_at,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

type listSnapshotsResponse struct {
	Snapshots []snapshotResponse `json:"snapshots"`
}

// GetRecordSnapshots returns one record's change history, most recent
// capture first.
func (s *Server) GetRecordSnapshots(c *gin.Context) {
	recordID := strings.TrimSpace(c.Param("id"))
	if recordID == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	limit, err := parseOptionalLimit(c.Query("limit"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	snapshots, err := s.snapshotSvc.History(c.Request.Context(), recordID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := listSnapshotsResponse{Snapshots: make([]snapshotResponse, 0, len(snapshots))}
	for _, snap := range snapshots {
		resp.Snapshots = append(resp.Snapshots, toSnapshotResponse(snap))
	}
	c.JSON(http.StatusOK, resp)
}

func toSnapshotResponse(snap snapshotdomain.Snapshot) snapshotResponse {
	return snapshotResponse{
		ID:             snap.ID.String(),
		RecordID:       snap.RecordID,
		CapturedAt:     snap.CapturedAt,
		ChangeKind:     string(snap.ChangeKind),
		Status:         snap.Status,
		RequestAction:  snap.RequestAction,
		AccountID:      snap.AccountID,
		AccountName:    snap.AccountName,
		Name:           snap.Name,
		LastModifiedAt: snap.LastModifiedAt,
		Payload:        json.RawMessage(snap.Payload),
	}
}
