package errors

import (
	"context"
	stderrors "errors"
	"time"
)

// DeliveryErrorHandler turns raw delivery errors into StandardErrors and logs
// them with the queue item they belong to.
type DeliveryErrorHandler struct {
	logger Logger
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
}

// AttemptInfo identifies a single delivery attempt.
type AttemptInfo struct {
	QueueItemID    int64
	NotificationID int64
	QueueType      string
	Attempt        int
	WorkerID       string
}

func NewDeliveryErrorHandler(logger Logger) *DeliveryErrorHandler {
	return &DeliveryErrorHandler{logger: logger}
}

// Handle classifies err, logs it and returns the normalized error.
func (h *DeliveryErrorHandler) Handle(info AttemptInfo, err error) *StandardError {
	stdErr := h.normalizeError(err)
	h.logError(info, stdErr)
	return stdErr
}

// normalizeError ensures we always have a StandardError
func (h *DeliveryErrorHandler) normalizeError(err error) *StandardError {
	if stdErr, ok := AsStandard(err); ok {
		return stdErr
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError("delivery", err)
	}
	return &StandardError{
		Code:      ErrCodeNotificationSendFailed,
		Message:   "Unexpected delivery error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func (h *DeliveryErrorHandler) logError(info AttemptInfo, stdErr *StandardError) {
	if h.logger == nil {
		return
	}
	h.logger.Error("Delivery attempt failed", map[string]interface{}{
		"queueItemId":    info.QueueItemID,
		"notificationId": info.NotificationID,
		"queueType":      info.QueueType,
		"attempt":        info.Attempt,
		"workerId":       info.WorkerID,
		"errorCode":      string(stdErr.Code),
		"message":        stdErr.Message,
		"details":        stdErr.Details,
		"retryable":      stdErr.Retryable,
		"errorCategory":  GetErrorCategory(stdErr.Code),
	})
}
