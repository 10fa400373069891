package service

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	apperrors "academic360-notifications/internal/common/errors"
	"academic360-notifications/internal/common/logger"
	"academic360-notifications/internal/models"
	"academic360-notifications/internal/notifications/queue"
	"academic360-notifications/internal/notifications/render"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

var (
	fixedTime   = time.Date(2024, 7, 1, 9, 30, 0, 0, time.UTC)
	queueCols   = []string{"id", "notification_id", "type", "retry_attempts", "is_processing", "is_dead_letter", "failed_reason", "dead_letter_at", "claimed_at", "claimed_by", "completed_at", "created_at", "updated_at"}
	eventCols   = []string{"id", "created_by_user_id", "updated_by_user_id", "email_template", "whatsapp_alert_id", "name", "description", "created_at", "updated_at"}
	userCols    = []string{"id", "name", "email", "phone", "whatsapp_number", "type", "is_active", "is_suspended", "send_staging_notifications"}
	feeTemplate = "fee-receipt"
)

type stubAlerts struct {
	alerts map[int64]*models.WhatsappAlert
	calls  int
}

func (s *stubAlerts) GetAlert(_ context.Context, id int64) (*models.WhatsappAlert, error) {
	s.calls++
	a, ok := s.alerts[id]
	if !ok {
		return nil, render.ErrAlertNotFound
	}
	return a, nil
}

func feeAlert() *models.WhatsappAlert {
	return &models.WhatsappAlert{
		ID: 1, Name: "Fee reminder", Template: "fee_reminder_v2", IsActive: true,
		Fields: []models.WhatsappField{
			{ID: 11, WhatsappAlertID: 1, Name: "amount", Sequence: 1, Flag: true, Frequency: 1},
			{ID: 12, WhatsappAlertID: 1, Name: "dueDate", Sequence: 2, Flag: false, Frequency: 1},
			{ID: 13, WhatsappAlertID: 1, Name: "ref", Sequence: 3, Flag: true, Frequency: 1},
		},
	}
}

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock, *stubAlerts) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := logger.NewTestLogger(t)
	alerts := &stubAlerts{alerts: map[int64]*models.WhatsappAlert{1: feeAlert()}}
	svc := New(db, queue.NewStore(db, queue.DefaultConfig(), log), alerts, log)
	return svc, mock, alerts
}

func i64(v int64) *int64 { return &v }

func expectEvent(mock sqlmock.Sqlmock, id int64, template *string, alertID *int64) {
	mock.ExpectQuery(`FROM notification_events WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(eventCols).
			AddRow(id, nil, nil, template, alertID, "Fee due", nil, fixedTime, fixedTime))
}

func expectEnqueue(mock sqlmock.Sqlmock, id, notificationID int64, qt models.QueueType) {
	mock.ExpectQuery(`INSERT INTO notification_queue`).
		WithArgs(notificationID, string(qt)).
		WillReturnRows(sqlmock.NewRows(queueCols).
			AddRow(id, notificationID, string(qt), 0, false, false, nil, nil, nil, nil, nil, fixedTime, fixedTime))
}

func expectContent(mock sqlmock.Sqlmock, id, notificationID int64, args ...driver.Value) {
	all := append([]driver.Value{notificationID}, args...)
	mock.ExpectQuery(`INSERT INTO notification_contents`).
		WithArgs(all...).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(id))
}

// ==========================
// CreateNotification
// ==========================

func TestCreateNotification_EmailUsesEventTemplate(t *testing.T) {
	svc, mock, _ := newTestService(t)

	expectEvent(mock, 3, &feeTemplate, nil)
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO notifications`).
		WithArgs(nil, i64(42), i64(3), "EMAIL", "FEE", "Your fee receipt is ready").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(100))
	expectContent(mock, 500, 100, i64(3), &feeTemplate, nil, "Your fee receipt is ready")
	expectEnqueue(mock, 900, 100, models.QueueEmail)
	mock.ExpectCommit()

	res, err := svc.CreateNotification(context.Background(), CreateNotificationInput{
		EventID: i64(3),
		UserID:  i64(42),
		Variant: models.VariantEmail,
		Type:    models.TypeFee,
		Message: "Your fee receipt is ready",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(100), res.NotificationID)
	assert.Equal(t, []int64{500}, res.ContentIDs)
	assert.Equal(t, []QueueItemReference{{ID: 900, Type: models.QueueEmail}}, res.QueueItems)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateNotification_WhatsappRendersFlaggedFields(t *testing.T) {
	svc, mock, alerts := newTestService(t)

	expectEvent(mock, 3, nil, i64(1))
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO notifications`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(101))
	expectContent(mock, 501, 101, i64(3), nil, i64(11), "12500")
	expectContent(mock, 502, 101, i64(3), nil, i64(13), "FEE/2024/118")
	expectEnqueue(mock, 901, 101, models.QueueWhatsapp)
	mock.ExpectCommit()

	res, err := svc.CreateNotification(context.Background(), CreateNotificationInput{
		EventID: i64(3),
		UserID:  i64(42),
		Variant: models.VariantWhatsapp,
		Type:    models.TypeFee,
		Message: "Fee reminder",
		FieldValues: map[string][]string{
			"amount":  {"12500"},
			"dueDate": {"2024-07-31"},
			"ref":     {"FEE/2024/118"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []int64{501, 502}, res.ContentIDs)
	assert.Equal(t, 1, alerts.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateNotification_EmailOnlyRendersAlertFields(t *testing.T) {
	svc, mock, alerts := newTestService(t)

	expectEvent(mock, 3, &feeTemplate, i64(1))
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO notifications`).
		WithArgs(nil, i64(42), i64(3), "EMAIL", "FEE", "Fee reminder").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(102))
	expectContent(mock, 503, 102, i64(3), nil, i64(11), "12500")
	expectContent(mock, 504, 102, i64(3), nil, i64(13), "FEE/2024/118")
	expectEnqueue(mock, 902, 102, models.QueueEmail)
	mock.ExpectCommit()

	res, err := svc.CreateNotification(context.Background(), CreateNotificationInput{
		EventID: i64(3),
		UserID:  i64(42),
		Variant: models.VariantEmail,
		Type:    models.TypeFee,
		Message: "Fee reminder",
		FieldValues: map[string][]string{
			"amount": {"12500"},
			"ref":    {"FEE/2024/118"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []int64{503, 504}, res.ContentIDs)
	assert.Equal(t, 1, alerts.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateNotification_EmailOnlyWithoutFieldValues(t *testing.T) {
	svc, mock, alerts := newTestService(t)

	expectEvent(mock, 3, &feeTemplate, i64(1))
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO notifications`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(103))
	expectContent(mock, 505, 103, i64(3), &feeTemplate, nil, "Your fee receipt is ready")
	expectEnqueue(mock, 903, 103, models.QueueEmail)
	mock.ExpectCommit()

	res, err := svc.CreateNotification(context.Background(), CreateNotificationInput{
		EventID: i64(3),
		UserID:  i64(42),
		Variant: models.VariantEmail,
		Type:    models.TypeFee,
		Message: "Your fee receipt is ready",
	})
	require.NoError(t, err)

	assert.Equal(t, []int64{505}, res.ContentIDs)
	assert.Equal(t, 1, alerts.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateNotification_EmailOnlyValidatesFieldContents(t *testing.T) {
	svc, mock, _ := newTestService(t)

	expectEvent(mock, 3, &feeTemplate, i64(1))

	_, err := svc.CreateNotification(context.Background(), CreateNotificationInput{
		EventID:  i64(3),
		UserID:   i64(42),
		Variant:  models.VariantEmail,
		Type:     models.TypeFee,
		Message:  "Fee reminder",
		Contents: []ChannelContent{{WhatsappFieldID: i64(99), Content: "x"}},
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeWhatsappFieldConfig, apperrors.Code(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateNotification_ChannelsCollapseByQueue(t *testing.T) {
	svc, mock, _ := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO notifications`).
		WithArgs(i64(8), nil, nil, "IN_APP", "ADMISSION", "Admission approved").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(102))
	expectContent(mock, 503, 102, nil, nil, nil, "Admission approved")
	expectEnqueue(mock, 902, 102, models.QueueInApp)
	expectEnqueue(mock, 903, 102, models.QueueSMS)
	mock.ExpectCommit()

	res, err := svc.CreateNotification(context.Background(), CreateNotificationInput{
		ApplicationFormID: i64(8),
		Variant:           models.VariantInApp,
		Type:              models.TypeAdmission,
		Message:           "Admission approved",
		Channels:          []models.Variant{models.VariantInApp, models.VariantOther, models.VariantSMS},
	})
	require.NoError(t, err)
	require.Len(t, res.QueueItems, 2)
	assert.Equal(t, models.QueueInApp, res.QueueItems[0].Type)
	assert.Equal(t, models.QueueSMS, res.QueueItems[1].Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateNotification_Rejected(t *testing.T) {
	tests := []struct {
		name     string
		input    CreateNotificationInput
		setup    func(sqlmock.Sqlmock)
		wantCode apperrors.ErrorCode
	}{
		{
			name:     "missing message",
			input:    CreateNotificationInput{Variant: models.VariantEmail, Type: models.TypeInfo},
			wantCode: apperrors.ErrCodeValidationFailed,
		},
		{
			name:     "blank message",
			input:    CreateNotificationInput{Variant: models.VariantEmail, Type: models.TypeInfo, Message: "   "},
			wantCode: apperrors.ErrCodeValidationFailed,
		},
		{
			name:     "unknown variant",
			input:    CreateNotificationInput{Variant: "FAX", Type: models.TypeInfo, Message: "x"},
			wantCode: apperrors.ErrCodeValidationFailed,
		},
		{
			name:     "unknown type",
			input:    CreateNotificationInput{Variant: models.VariantSMS, Type: "PROMO", Message: "x"},
			wantCode: apperrors.ErrCodeValidationFailed,
		},
		{
			name:  "missing event",
			input: CreateNotificationInput{EventID: i64(77), Variant: models.VariantSMS, Type: models.TypeInfo, Message: "x"},
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`FROM notification_events`).WithArgs(int64(77)).
					WillReturnRows(sqlmock.NewRows(eventCols))
			},
			wantCode: apperrors.ErrCodeValidationFailed,
		},
		{
			name: "flagged field without value",
			input: CreateNotificationInput{
				EventID: i64(3), Variant: models.VariantWhatsapp, Type: models.TypeFee, Message: "x",
				FieldValues: map[string][]string{"amount": {"100"}},
			},
			setup:    func(mock sqlmock.Sqlmock) { expectEvent(mock, 3, nil, i64(1)) },
			wantCode: apperrors.ErrCodeWhatsappFieldConfig,
		},
		{
			name: "content for foreign field",
			input: CreateNotificationInput{
				EventID: i64(3), Variant: models.VariantWhatsapp, Type: models.TypeFee, Message: "x",
				FieldValues: map[string][]string{"amount": {"100"}, "ref": {"r"}},
				Contents:    []ChannelContent{{WhatsappFieldID: i64(99), Content: "y"}},
			},
			setup:    func(mock sqlmock.Sqlmock) { expectEvent(mock, 3, nil, i64(1)) },
			wantCode: apperrors.ErrCodeWhatsappFieldConfig,
		},
		{
			name: "alert missing",
			input: CreateNotificationInput{
				EventID: i64(3), Variant: models.VariantWhatsapp, Type: models.TypeFee, Message: "x",
			},
			setup:    func(mock sqlmock.Sqlmock) { expectEvent(mock, 3, nil, i64(2)) },
			wantCode: apperrors.ErrCodeWhatsappFieldConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, mock, _ := newTestService(t)
			if tt.setup != nil {
				tt.setup(mock)
			}

			res, err := svc.CreateNotification(context.Background(), tt.input)
			assert.Nil(t, res)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, apperrors.Code(err))
			assert.False(t, apperrors.IsRetryable(err))

			// Nothing may be written once validation or rendering fails.
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCreateNotification_RollsBackOnInsertFailure(t *testing.T) {
	svc, mock, _ := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO notifications`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(103))
	mock.ExpectQuery(`INSERT INTO notification_contents`).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := svc.CreateNotification(context.Background(), CreateNotificationInput{
		Variant: models.VariantSMS,
		Type:    models.TypeInfo,
		Message: "Campus closed tomorrow",
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeDatabaseInsertFailed, apperrors.Code(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// LoadJob / reads
// ==========================

func TestLoadJob(t *testing.T) {
	svc, mock, _ := newTestService(t)

	mock.ExpectQuery(`FROM notifications WHERE id = \$1`).
		WithArgs(int64(101)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "application_form_id", "user_id", "notification_event_id", "variant", "type", "message", "status", "sent_at", "failed_at", "failed_reason", "created_at", "updated_at"}).
			AddRow(101, nil, 42, 3, "WHATSAPP", "FEE", "Fee reminder", "PENDING", nil, nil, nil, fixedTime, fixedTime))
	mock.ExpectQuery(`FROM notification_contents WHERE notification_id = \$1 ORDER BY id`).
		WithArgs(int64(101)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "notification_id", "notification_event_id", "email_template", "whatsapp_field_id", "content", "created_at"}).
			AddRow(501, 101, 3, nil, 11, "12500", fixedTime).
			AddRow(502, 101, 3, nil, 13, "FEE/2024/118", fixedTime))
	expectEvent(mock, 3, nil, i64(1))
	mock.ExpectQuery(`FROM users WHERE id = \$1`).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow(42, "Asha Roy", "asha@example.edu", "9000000000", "9000000001", "STUDENT", true, false, false))

	job, err := svc.LoadJob(context.Background(), &models.QueueItem{ID: 901, NotificationID: 101, Type: models.QueueWhatsapp})
	require.NoError(t, err)

	assert.Equal(t, models.StatusPending, job.Notification.Status)
	assert.Len(t, job.Contents, 2)
	require.NotNil(t, job.Event)
	require.NotNil(t, job.Alert)
	assert.Equal(t, "fee_reminder_v2", job.Alert.Template)
	require.NotNil(t, job.User)
	assert.Equal(t, "9000000001", job.User.WhatsappContact())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadJob_MissingUserLeavesUserUnset(t *testing.T) {
	svc, mock, _ := newTestService(t)

	mock.ExpectQuery(`FROM notifications WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "application_form_id", "user_id", "notification_event_id", "variant", "type", "message", "status", "sent_at", "failed_at", "failed_reason", "created_at", "updated_at"}).
			AddRow(5, nil, 404, nil, "SMS", "INFO", "hi", "PENDING", nil, nil, nil, fixedTime, fixedTime))
	mock.ExpectQuery(`FROM notification_contents`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "notification_id", "notification_event_id", "email_template", "whatsapp_field_id", "content", "created_at"}))
	mock.ExpectQuery(`FROM users WHERE id = \$1`).
		WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows(userCols))

	job, err := svc.LoadJob(context.Background(), &models.QueueItem{ID: 1, NotificationID: 5})
	require.NoError(t, err)
	assert.Nil(t, job.User)
	require.NotNil(t, job.Notification.UserID)
	assert.Equal(t, int64(404), *job.Notification.UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadJob_UserQueryErrorIsTransient(t *testing.T) {
	svc, mock, _ := newTestService(t)

	mock.ExpectQuery(`FROM notifications WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "application_form_id", "user_id", "notification_event_id", "variant", "type", "message", "status", "sent_at", "failed_at", "failed_reason", "created_at", "updated_at"}).
			AddRow(5, nil, 42, nil, "SMS", "INFO", "hi", "PENDING", nil, nil, nil, fixedTime, fixedTime))
	mock.ExpectQuery(`FROM notification_contents`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "notification_id", "notification_event_id", "email_template", "whatsapp_field_id", "content", "created_at"}))
	mock.ExpectQuery(`FROM users WHERE id = \$1`).
		WillReturnError(errors.New("connection reset"))

	_, err := svc.LoadJob(context.Background(), &models.QueueItem{ID: 1, NotificationID: 5})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeQueryExecutionFailed, apperrors.Code(err))
}

func TestGetNotification_NotFound(t *testing.T) {
	svc, mock, _ := newTestService(t)

	mock.ExpectQuery(`FROM notifications WHERE id = \$1`).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := svc.GetNotification(context.Background(), 9)
	assert.ErrorIs(t, err, ErrNotificationNotFound)
}

func TestStagingRecipients(t *testing.T) {
	svc, mock, _ := newTestService(t)

	mock.ExpectQuery(`FROM users\s+WHERE type = 'STAFF' AND send_staging_notifications = true`).
		WithArgs(500).
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow(1, "Ops", "ops@example.edu", "", "", "STAFF", true, false, true).
			AddRow(2, "Registrar", "registrar@example.edu", "9000000002", "", "STAFF", true, false, true))

	users, err := svc.StagingRecipients(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "ops@example.edu", users[0].Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}
