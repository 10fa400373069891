package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestVariantQueueType(t *testing.T) {
	tests := []struct {
		variant Variant
		want    QueueType
	}{
		{VariantWhatsapp, QueueWhatsapp},
		{VariantEmail, QueueEmail},
		{VariantWeb, QueueWeb},
		{VariantSMS, QueueSMS},
		{VariantInApp, QueueInApp},
		{VariantOther, QueueInApp},
	}

	for _, tt := range tests {
		t.Run(string(tt.variant), func(t *testing.T) {
			assert.True(t, tt.variant.Valid())
			assert.Equal(t, tt.want, tt.variant.QueueType())
			assert.True(t, tt.want.Deliverable())
		})
	}

	assert.False(t, Variant("FAX").Valid())
	assert.False(t, QueueDeadLetter.Deliverable())
}

func TestQueueItemState(t *testing.T) {
	now := time.Now()

	assert.Equal(t, StateIdle, QueueItem{}.State())
	assert.Equal(t, StateInFlight, QueueItem{IsProcessing: true}.State())
	assert.Equal(t, StateDead, QueueItem{IsDeadLetter: true, DeadLetterAt: &now}.State())
	assert.Equal(t, StateCompleted, QueueItem{CompletedAt: &now}.State())
}

func TestWhatsappFieldSlots(t *testing.T) {
	assert.Equal(t, 1, WhatsappField{Frequency: 0}.Slots())
	assert.Equal(t, 3, WhatsappField{Frequency: 3}.Slots())
}

func TestUserWhatsappContact(t *testing.T) {
	assert.Equal(t, "9000000001", User{Phone: "9000000000", WhatsappNumber: "9000000001"}.WhatsappContact())
	assert.Equal(t, "9000000000", User{Phone: "9000000000"}.WhatsappContact())
}
