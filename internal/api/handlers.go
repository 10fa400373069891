package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	apperrors "academic360-notifications/internal/common/errors"
	"academic360-notifications/internal/models"
	"academic360-notifications/internal/notifications/service"

	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (s *Server) createNotification(c *gin.Context) {
	var in service.CreateNotificationInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{
			Code:    string(apperrors.ErrCodeValidationFailed),
			Message: "invalid json",
			Details: err.Error(),
		})
		return
	}

	res, err := s.notifications.CreateNotification(c.Request.Context(), in)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, res)
}

func (s *Server) getNotification(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, errorResponse{
			Code:    string(apperrors.ErrCodeValidationFailed),
			Message: "id must be a positive integer",
		})
		return
	}

	details, err := s.notifications.GetNotification(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

func (s *Server) listDeadLetters(c *gin.Context) {
	queueType := models.QueueType(c.Query("type"))
	if queueType != "" && !queueType.Deliverable() {
		c.JSON(http.StatusBadRequest, errorResponse{
			Code:    string(apperrors.ErrCodeValidationFailed),
			Message: "unknown queue type",
			Details: string(queueType),
		})
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			c.JSON(http.StatusBadRequest, errorResponse{
				Code:    string(apperrors.ErrCodeValidationFailed),
				Message: "limit must be between 1 and 500",
			})
			return
		}
		limit = n
	}

	items, err := s.deadLetters.ListDeadLetters(c.Request.Context(), queueType, limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if items == nil {
		items = []*models.QueueItem{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

func (s *Server) ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(s.checks))
	for name, p := range s.checks {
		if err := p.Ping(ctx); err != nil {
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}
	c.JSON(status, gin.H{"checks": results})
}

// writeError maps domain errors onto HTTP statuses.
func (s *Server) writeError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrNotificationNotFound) {
		c.JSON(http.StatusNotFound, errorResponse{
			Code:    string(apperrors.ErrCodeResourceNotFound),
			Message: err.Error(),
		})
		return
	}

	stdErr, ok := apperrors.AsStandard(err)
	if !ok {
		s.logger.Error("request failed", map[string]interface{}{"path": c.FullPath(), "error": err.Error()})
		c.JSON(http.StatusInternalServerError, errorResponse{
			Code:    string(apperrors.ErrCodeInternal),
			Message: "internal error",
		})
		return
	}

	status := http.StatusInternalServerError
	switch stdErr.Code {
	case apperrors.ErrCodeValidationFailed:
		status = http.StatusBadRequest
	case apperrors.ErrCodeWhatsappFieldConfig:
		status = http.StatusUnprocessableEntity
	case apperrors.ErrCodeResourceNotFound:
		status = http.StatusNotFound
	case apperrors.ErrCodeDatabaseConnectionFailed:
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", map[string]interface{}{
			"path":  c.FullPath(),
			"code":  stdErr.Code,
			"error": stdErr.Reason(),
		})
	}
	c.JSON(status, errorResponse{Code: string(stdErr.Code), Message: stdErr.Message, Details: stdErr.Details})
}
