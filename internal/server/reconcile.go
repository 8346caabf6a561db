package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TriggerReconcile kicks off one full reconciliation pass in the
// background. The job lock keeps a manual trigger from racing the
// scheduled loop; a concurrent pass defers instead of overlapping.
func (s *Server) TriggerReconcile(c *gin.Context) {
	if s.scheduler == nil {
		AbortWithError(c, ErrInternal)
		return
	}

	go func() {
		if err := s.scheduler.RunOnce(context.Background()); err != nil {
			s.log.Warn("manual reconciliation failed", zap.Error(err))
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}
