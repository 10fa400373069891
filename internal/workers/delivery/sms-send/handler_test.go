package smssend

import (
	"context"
	"errors"
	"strings"
	"testing"

	"academic360-notifications/internal/common/config"
	apperrors "academic360-notifications/internal/common/errors"
	"academic360-notifications/internal/common/logger"
	"academic360-notifications/internal/models"
	"academic360-notifications/internal/workers/delivery"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mock Implementations
// ==========================

type MockSNS struct {
	mock.Mock
}

func (m *MockSNS) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*sns.PublishOutput)
	return out, args.Error(1)
}

type staffDirectory struct{ users []models.User }

func (s staffDirectory) StagingRecipients(ctx context.Context, limit int) ([]models.User, error) {
	return s.users, nil
}

func newTestHandler(t *testing.T, env string, client SNSService, staff []models.User) *Handler {
	cfg := &config.Config{}
	cfg.App.Environment = env
	cfg.Notifications.Developer.Phone = "+919000000000"

	log := logger.NewTestLogger(t)
	return NewHandler(&Config{MaxLength: 1600}, delivery.NewRouter(cfg, staffDirectory{users: staff}, log), client, log)
}

func smsJob() *models.DeliveryJob {
	return &models.DeliveryJob{
		Item:         models.QueueItem{ID: 31, NotificationID: 12, Type: models.QueueSMS},
		Notification: models.Notification{ID: 12, Variant: models.VariantSMS, Type: models.TypeExam, Message: "Exam schedule published"},
		User:         &models.User{ID: 4, Phone: "+919812345678"},
	}
}

// ==========================
// Deliver
// ==========================

func TestDeliver_PublishesToUser(t *testing.T) {
	client := new(MockSNS)
	client.On("Publish", mock.Anything, mock.MatchedBy(func(in *sns.PublishInput) bool {
		return aws.ToString(in.PhoneNumber) == "+919812345678" && aws.ToString(in.Message) == "Exam schedule published"
	})).Return(&sns.PublishOutput{MessageId: aws.String("m-1")}, nil).Once()

	h := newTestHandler(t, config.EnvProduction, client, nil)
	require.NoError(t, h.Deliver(context.Background(), smsJob()))
	client.AssertExpectations(t)
}

func TestDeliver_StagingFanOut(t *testing.T) {
	client := new(MockSNS)
	client.On("Publish", mock.Anything, mock.Anything).Return(&sns.PublishOutput{}, nil).Twice()

	staff := []models.User{{ID: 1, Phone: "+911"}, {ID: 2, Phone: "+912"}}
	h := newTestHandler(t, config.EnvStaging, client, staff)

	require.NoError(t, h.Deliver(context.Background(), smsJob()))
	client.AssertNumberOfCalls(t, "Publish", 2)
}

func TestDeliver_ProviderError(t *testing.T) {
	client := new(MockSNS)
	client.On("Publish", mock.Anything, mock.Anything).Return(nil, errors.New("throttling")).Once()

	h := newTestHandler(t, config.EnvDevelopment, client, nil)
	err := h.Deliver(context.Background(), smsJob())

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeNotificationSendFailed, apperrors.Code(err))
	assert.True(t, apperrors.IsRetryable(err))
}

func TestDeliver_NonRetryable(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(job *models.DeliveryJob)
		wantCode apperrors.ErrorCode
	}{
		{
			name:     "no phone",
			mutate:   func(job *models.DeliveryJob) { job.User.Phone = "" },
			wantCode: apperrors.ErrCodeRecipientUnreachable,
		},
		{
			name:     "blank message",
			mutate:   func(job *models.DeliveryJob) { job.Notification.Message = "  " },
			wantCode: apperrors.ErrCodeValidationFailed,
		},
		{
			name: "inactive alert",
			mutate: func(job *models.DeliveryJob) {
				job.Alert = &models.WhatsappAlert{ID: 2, IsActive: false}
			},
			wantCode: apperrors.ErrCodeNotificationMasterInactive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := new(MockSNS)
			h := newTestHandler(t, config.EnvProduction, client, nil)
			job := smsJob()
			tt.mutate(job)

			err := h.Deliver(context.Background(), job)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, apperrors.Code(err))
			assert.False(t, apperrors.IsRetryable(err))
			client.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
		})
	}
}

func TestSMSText(t *testing.T) {
	job := smsJob()
	assert.Equal(t, "Exam schedule published", smsText(job, 0))

	fieldID := int64(5)
	job.Contents = []models.NotificationContent{
		{ID: 1, WhatsappFieldID: &fieldID, Content: "ignored"},
		{ID: 2, Content: " Hall ticket ready "},
	}
	assert.Equal(t, "Hall ticket ready", smsText(job, 0))

	job.Contents = nil
	job.Notification.Message = strings.Repeat("ক", 20)
	assert.Equal(t, strings.Repeat("ক", 10), smsText(job, 10))
}
