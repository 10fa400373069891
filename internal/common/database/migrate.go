package database

import (
	"fmt"

	"academic360-notifications/internal/models"

	"gorm.io/gorm"
)

// SchemaModels are the tables owned by the notification service.
func SchemaModels() []interface{} {
	return []interface{}{
		&models.WhatsappAlert{},
		&models.WhatsappField{},
		&models.NotificationEvent{},
		&models.Notification{},
		&models.NotificationContent{},
		&models.QueueItem{},
	}
}

type foreignKey struct {
	table, column, refTable string
}

func (fk foreignKey) name() string {
	return fmt.Sprintf("fk_%s_%s", fk.table, fk.column)
}

var foreignKeys = []foreignKey{
	{"whatsapp_fields", "whatsapp_alert_id", "whatsapp_alerts"},
	{"notification_events", "whatsapp_alert_id", "whatsapp_alerts"},
	{"notifications", "notification_event_id", "notification_events"},
	{"notification_contents", "notification_id", "notifications"},
	{"notification_contents", "notification_event_id", "notification_events"},
	{"notification_contents", "whatsapp_field_id", "whatsapp_fields"},
	{"notification_queue", "notification_id", "notifications"},
}

// MigrationStatements returns the raw DDL applied after AutoMigrate. Every
// statement is idempotent.
func MigrationStatements() []string {
	stmts := []string{
		`CREATE INDEX IF NOT EXISTS idx_notification_queue_claim
  ON notification_queue (type, created_at, id)
  WHERE is_processing = false AND is_dead_letter = false AND completed_at IS NULL`,
		`CREATE INDEX IF NOT EXISTS idx_notification_queue_in_flight
  ON notification_queue (claimed_at)
  WHERE is_processing = true`,
		`CREATE INDEX IF NOT EXISTS idx_notification_queue_dead_letters
  ON notification_queue (dead_letter_at DESC)
  WHERE is_dead_letter = true`,
		`DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'ck_notification_queue_type') THEN
    ALTER TABLE notification_queue ADD CONSTRAINT ck_notification_queue_type
      CHECK (type IN ('EMAIL_QUEUE','WHATSAPP_QUEUE','SMS_QUEUE','WEB_QUEUE','IN_APP_QUEUE','DEAD_LETTER_QUEUE'));
  END IF;
END $$`,
		`DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'ck_whatsapp_fields_frequency') THEN
    ALTER TABLE whatsapp_fields ADD CONSTRAINT ck_whatsapp_fields_frequency CHECK (frequency >= 1);
  END IF;
END $$`,
	}

	for _, fk := range foreignKeys {
		stmts = append(stmts, fmt.Sprintf(`DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = '%[1]s') THEN
    ALTER TABLE %[2]s ADD CONSTRAINT %[1]s FOREIGN KEY (%[3]s) REFERENCES %[4]s(id) ON DELETE RESTRICT;
  END IF;
END $$`, fk.name(), fk.table, fk.column, fk.refTable))
	}
	return stmts
}

// Migrate creates or updates the service tables, then applies indexes and
// constraints gorm cannot express.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(SchemaModels()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	for _, stmt := range MigrationStatements() {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("apply migration statement: %w", err)
		}
	}
	return nil
}
