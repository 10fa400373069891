package e2e

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"academic360-notifications/internal/common/config"
	"academic360-notifications/internal/common/database"
	"academic360-notifications/internal/common/dispatcher"
	apperrors "academic360-notifications/internal/common/errors"
	commonhttp "academic360-notifications/internal/common/http"
	"academic360-notifications/internal/common/logger"
	"academic360-notifications/internal/models"
	"academic360-notifications/internal/notifications/queue"
	"academic360-notifications/internal/notifications/render"
	"academic360-notifications/internal/notifications/service"
	"academic360-notifications/internal/workers/delivery"
	inapppush "academic360-notifications/internal/workers/delivery/inapp-push"
	whatsappsend "academic360-notifications/internal/workers/delivery/whatsapp-send"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The suite needs a disposable Postgres and Redis described by the usual
// configs/config.yaml and environment; CI provides both as service
// containers (.github/workflows/ci.yml). Without E2E_ENABLED it is skipped,
// with it an unreachable backend fails the run.

type env struct {
	cfg   *config.Config
	db    *sql.DB
	rdb   *redis.Client
	store *queue.Store
	svc   *service.Service
	log   logger.Logger
}

func setup(t *testing.T) *env {
	t.Helper()
	if testing.Short() {
		t.Skip("e2e suite skipped in short mode")
	}
	if os.Getenv("E2E_ENABLED") == "" {
		t.Skip("set E2E_ENABLED=1 to run against a live Postgres and Redis")
	}

	cfg, err := config.Load()
	require.NoError(t, err, "config")
	cfg.App.Environment = config.EnvProduction

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	require.NoError(t, err, "postgres")
	t.Cleanup(func() { _ = pg.Close() })

	rc := database.NewRedis(cfg.Database.Redis)
	require.NoError(t, rc.Ping(ctx), "redis")
	t.Cleanup(func() { _ = rc.Close() })

	gdb, err := database.NewGorm(cfg.Database.Postgres, false)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(gdb))

	db := pg.GetDB()
	_, err = db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS users (
  id bigserial PRIMARY KEY,
  name varchar(255) NOT NULL,
  email varchar(255),
  phone varchar(20),
  whatsapp_number varchar(20),
  type varchar(20) NOT NULL DEFAULT 'STUDENT',
  is_active boolean NOT NULL DEFAULT true,
  is_suspended boolean NOT NULL DEFAULT false,
  send_staging_notifications boolean NOT NULL DEFAULT false
)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `TRUNCATE notification_queue, notification_contents, notifications,
  notification_events, whatsapp_fields, whatsapp_alerts, users RESTART IDENTITY CASCADE`)
	require.NoError(t, err)

	log := logger.NewTestLogger(t)
	qcfg := queue.DefaultConfig()
	qcfg.MaxRetries = 2
	qcfg.StaleAfter = time.Second
	store := queue.NewStore(db, qcfg, log)
	alerts := render.NewPostgresAlertRepository(db)

	return &env{
		cfg:   cfg,
		db:    db,
		rdb:   rc.GetClient(),
		store: store,
		svc:   service.New(db, store, alerts, log),
		log:   log,
	}
}

func (e *env) worker(taskType string, qt models.QueueType, h dispatcher.Handler, instance int) *dispatcher.Worker {
	return dispatcher.NewWorker(taskType, qt, dispatcher.Config{BatchSize: 10, RateDelay: 0},
		e.store, e.svc, h, e.log, dispatcher.WithInstance(instance))
}

func (e *env) insertUser(t *testing.T, name, phone string) int64 {
	t.Helper()
	var id int64
	err := e.db.QueryRow(`INSERT INTO users (name, phone, type) VALUES ($1, $2, 'STUDENT') RETURNING id`,
		name, phone).Scan(&id)
	require.NoError(t, err)
	return id
}

func (e *env) seedAlert(t *testing.T) (eventID, nameField, courseField int64) {
	t.Helper()
	var alertID int64
	require.NoError(t, e.db.QueryRow(`INSERT INTO whatsapp_alerts (name, template, is_active, created_at, updated_at)
VALUES ('admission_update', 'admission_update_v2', true, now(), now()) RETURNING id`).Scan(&alertID))
	require.NoError(t, e.db.QueryRow(`INSERT INTO whatsapp_fields (whatsapp_alert_id, name, sequence, flag, frequency)
VALUES ($1, 'name', 1, true, 1) RETURNING id`, alertID).Scan(&nameField))
	require.NoError(t, e.db.QueryRow(`INSERT INTO whatsapp_fields (whatsapp_alert_id, name, sequence, flag, frequency)
VALUES ($1, 'course', 2, true, 1) RETURNING id`, alertID).Scan(&courseField))
	require.NoError(t, e.db.QueryRow(`INSERT INTO notification_events (name, whatsapp_alert_id, created_at, updated_at)
VALUES ('Admission update', $1, now(), now()) RETURNING id`, alertID).Scan(&eventID))
	return eventID, nameField, courseField
}

func (e *env) notificationStatus(t *testing.T, id int64) models.NotificationStatus {
	t.Helper()
	var status string
	require.NoError(t, e.db.QueryRow(`SELECT status FROM notifications WHERE id = $1`, id).Scan(&status))
	return models.NotificationStatus(status)
}

func ptr[T any](v T) *T { return &v }

// ==================== Producer to provider ====================

func TestWhatsappAndInAppDelivery(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	var (
		mu       sync.Mutex
		requests []whatsappsend.MessageRequest
	)
	interakt := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req whatsappsend.MessageRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		mu.Lock()
		requests = append(requests, req)
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":true}`))
	}))
	defer interakt.Close()

	userID := e.insertUser(t, "Riya Sen", "+919876543210")
	eventID, nameField, courseField := e.seedAlert(t)

	res, err := e.svc.CreateNotification(ctx, service.CreateNotificationInput{
		EventID:  &eventID,
		UserID:   &userID,
		Variant:  models.VariantWhatsapp,
		Type:     models.TypeAdmission,
		Message:  "Your admission form was updated",
		Channels: []models.Variant{models.VariantWhatsapp, models.VariantInApp},
		FieldValues: map[string][]string{
			"name":   {"Riya"},
			"course": {"B.Com"},
		},
	})
	require.NoError(t, err)
	require.Len(t, res.QueueItems, 2)
	require.Len(t, res.ContentIDs, 2)

	var stored []int64
	rows, err := e.db.QueryContext(ctx, `SELECT whatsapp_field_id FROM notification_contents WHERE notification_id = $1 ORDER BY id`, res.NotificationID)
	require.NoError(t, err)
	for rows.Next() {
		var id int64
		require.NoError(t, rows.Scan(&id))
		stored = append(stored, id)
	}
	require.NoError(t, rows.Close())
	assert.Equal(t, []int64{nameField, courseField}, stored)

	router := delivery.NewRouter(e.cfg, e.svc, e.log)
	waCfg := &whatsappsend.Config{
		BaseURL:      interakt.URL,
		APIKey:       "test-key",
		CountryCode:  "+91",
		LanguageCode: "en",
		Timeout:      5 * time.Second,
	}
	wa := e.worker(whatsappsend.TaskType, models.QueueWhatsapp,
		whatsappsend.NewHandler(waCfg, router, commonhttp.NewClient(waCfg.Timeout), e.log), 0)

	psub := e.rdb.PSubscribe(ctx, inapppush.DefaultConfig().ChannelPrefix+"*")
	defer psub.Close()
	_, err = psub.Receive(ctx)
	require.NoError(t, err)

	push := inapppush.NewHandler(inapppush.DefaultConfig(), e.rdb, e.log)
	inapp := e.worker(inapppush.TaskType, models.QueueInApp, push, 0)

	n, err := wa.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = inapp.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	select {
	case msg := <-psub.Channel():
		assert.Equal(t, push.Channel(userID), msg.Channel)
		assert.Contains(t, msg.Payload, "Your admission form was updated")
	case <-time.After(5 * time.Second):
		t.Fatal("in-app message was not published")
	}

	mu.Lock()
	require.Len(t, requests, 1)
	assert.Equal(t, "9876543210", requests[0].PhoneNumber)
	assert.Equal(t, "admission_update_v2", requests[0].Template.Name)
	assert.Equal(t, []string{"Riya", "B.Com"}, requests[0].Template.BodyValues)
	mu.Unlock()

	for _, ref := range res.QueueItems {
		item, err := e.store.Get(ctx, ref.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StateCompleted, item.State(), "queue item %d", ref.ID)
	}
	assert.Equal(t, models.StatusSent, e.notificationStatus(t, res.NotificationID))
}

// ==================== Failure handling ====================

func TestRetryThenDeadLetter(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	res, err := e.svc.CreateNotification(ctx, service.CreateNotificationInput{
		Variant: models.VariantSMS,
		Type:    models.TypeInfo,
		Message: "Campus closed tomorrow",
	})
	require.NoError(t, err)
	itemID := res.QueueItems[0].ID

	flaky := dispatcher.HandlerFunc(func(ctx context.Context, job *models.DeliveryJob) error {
		return apperrors.NewProviderUnavailableError("SNS", http.StatusServiceUnavailable, "throttled")
	})
	w := e.worker("sms-send", models.QueueSMS, flaky, 0)

	_, err = w.RunOnce(ctx)
	require.NoError(t, err)
	item, err := e.store.Get(ctx, itemID)
	require.NoError(t, err)
	assert.Equal(t, models.StateIdle, item.State())
	assert.Equal(t, 1, item.RetryAttempts)
	assert.Equal(t, models.StatusPending, e.notificationStatus(t, res.NotificationID))

	_, err = w.RunOnce(ctx)
	require.NoError(t, err)
	item, err = e.store.Get(ctx, itemID)
	require.NoError(t, err)
	assert.Equal(t, models.StateDead, item.State())
	assert.Equal(t, 2, item.RetryAttempts)
	require.NotNil(t, item.FailedReason)
	assert.Contains(t, *item.FailedReason, "throttled")
	assert.Equal(t, models.StatusFailed, e.notificationStatus(t, res.NotificationID))

	dead, err := e.store.ListDeadLetters(ctx, models.QueueSMS, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, itemID, dead[0].ID)

	n, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "dead-lettered rows are never claimed again")
}

func TestNonRetryableFailureDeadLettersImmediately(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	res, err := e.svc.CreateNotification(ctx, service.CreateNotificationInput{
		Variant: models.VariantEmail,
		Type:    models.TypeFee,
		Message: "Fee receipt",
		Contents: []service.ChannelContent{
			{EmailTemplate: ptr("does-not-exist"), Content: "receipt"},
		},
	})
	require.NoError(t, err)

	rejecting := dispatcher.HandlerFunc(func(ctx context.Context, job *models.DeliveryJob) error {
		return apperrors.NewTemplateNotFoundError("does-not-exist")
	})
	_, err = e.worker("email-send", models.QueueEmail, rejecting, 0).RunOnce(ctx)
	require.NoError(t, err)

	item, err := e.store.Get(ctx, res.QueueItems[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateDead, item.State())
	assert.Equal(t, 1, item.RetryAttempts)
	assert.Equal(t, models.StatusFailed, e.notificationStatus(t, res.NotificationID))
}

// ==================== Concurrency ====================

func TestConcurrentClaimsNeverOverlap(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	const total = 40
	for i := 0; i < total; i++ {
		_, err := e.svc.CreateNotification(ctx, service.CreateNotificationInput{
			Variant: models.VariantWeb,
			Type:    models.TypeInfo,
			Message: "Timetable published",
		})
		require.NoError(t, err)
	}

	var (
		mu   sync.Mutex
		seen = map[int64]string{}
		wg   sync.WaitGroup
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			workerID := fmt.Sprintf("%s/claim-test#%d", dispatcher.ProcessID, i)
			for {
				items, err := e.store.ClaimBatch(ctx, models.QueueWeb, workerID, 3)
				if !assert.NoError(t, err) || len(items) == 0 {
					return
				}
				mu.Lock()
				for _, it := range items {
					prev, dup := seen[it.ID]
					assert.False(t, dup, "item %d claimed by %s and %s", it.ID, prev, workerID)
					seen[it.ID] = workerID
				}
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, seen, total)
}

// ==================== Staleness sweep ====================

func TestRequeueStaleReturnsAbandonedClaims(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	res, err := e.svc.CreateNotification(ctx, service.CreateNotificationInput{
		Variant: models.VariantEmail,
		Type:    models.TypeExam,
		Message: "Exam schedule",
	})
	require.NoError(t, err)
	itemID := res.QueueItems[0].ID

	claimed, err := e.store.ClaimNext(ctx, models.QueueEmail, "crashed-worker")
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, models.StateInFlight, claimed.State())

	ids, err := e.store.RequeueStale(ctx)
	require.NoError(t, err)
	assert.NotContains(t, ids, itemID, "fresh claims are left alone")

	require.Eventually(t, func() bool {
		ids, err := e.store.RequeueStale(ctx)
		return err == nil && len(ids) == 1 && ids[0] == itemID
	}, 5*time.Second, 250*time.Millisecond)

	item, err := e.store.Get(ctx, itemID)
	require.NoError(t, err)
	assert.Equal(t, models.StateIdle, item.State())
	assert.Zero(t, item.RetryAttempts)
	assert.Nil(t, item.ClaimedBy)
}
