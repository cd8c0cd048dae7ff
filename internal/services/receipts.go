package services

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/thereayou/cipherchat/internal/models"
)

// MergeReaders возвращает readers ∪ {uid} и признак того, что множество изменилось
func MergeReaders(readers []string, uid string) ([]string, bool) {
	merged := append([]string(nil), readers...)
	if uid == "" {
		return merged, false
	}
	for _, r := range readers {
		if r == uid {
			return merged, false
		}
	}
	return append(merged, uid), true
}

// ReceiptTracker отмечает сообщения прочитанными. Запись идет через
// атомарный ArrayUnion хранилища, поэтому одновременные отметки разных
// читателей не затирают друг друга.
type ReceiptTracker struct {
	store DocumentStore
	log   *logrus.Entry
}

func NewReceiptTracker(store DocumentStore) *ReceiptTracker {
	return &ReceiptTracker{
		store: store,
		log:   logrus.WithField("component", "receipts"),
	}
}

// MarkRead ничего не пишет, если читатель уже в списке
func (t *ReceiptTracker) MarkRead(ctx context.Context, msg models.Message, viewerUID string) ([]string, error) {
	merged, changed := MergeReaders(msg.ReadBy, viewerUID)
	if !changed {
		return merged, nil
	}

	err := t.store.ArrayUnion(ctx, CollectionMessages, msg.ID, models.MessageFieldReadBy, viewerUID)
	if err != nil {
		t.log.WithError(err).WithFields(logrus.Fields{
			"message_id": msg.ID,
			"uid":        viewerUID,
		}).Warn("Failed to mark message read")
		return msg.ReadBy, backendError("mark read", err)
	}
	return merged, nil
}
