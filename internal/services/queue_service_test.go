// internal/services/queue_service_test.go

package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"commerce-mailer/internal/models"
)

func newTestQueue(t *testing.T, db *gorm.DB, resolver ProviderResolver) *QueueService {
	t.Helper()
	// 測試不需要發送限流
	return NewQueueService(db, resolver, nil, 1000, zap.NewNop())
}

func enqueueTestMessage(t *testing.T, queue *QueueService, storeID uuid.UUID, mutate func(*models.QueuedMessage)) uuid.UUID {
	t.Helper()
	msg := &models.QueuedMessage{
		StoreID:        storeID,
		RecipientEmail: "amy@example.com",
		Subject:        "Your order",
		BodyHTML:       "<p>hi</p>",
		BodyText:       "hi",
	}
	if mutate != nil {
		mutate(msg)
	}
	id, err := queue.Enqueue(context.Background(), msg)
	require.NoError(t, err)
	return id
}

func loadMessage(t *testing.T, db *gorm.DB, id uuid.UUID) models.QueuedMessage {
	t.Helper()
	var msg models.QueuedMessage
	require.NoError(t, db.First(&msg, "id = ?", id).Error)
	return msg
}

func TestEnqueueDefaults(t *testing.T) {
	db := newTestDB(t)
	queue := newTestQueue(t, db, newStubResolver(&stubProvider{}))

	id := enqueueTestMessage(t, queue, uuid.New(), nil)

	msg := loadMessage(t, db, id)
	assert.Equal(t, models.MessageStatusPending, msg.Status)
	assert.Equal(t, 0, msg.Attempts)
	assert.WithinDuration(t, time.Now(), msg.ScheduledFor, 5*time.Second)
}

func TestDispatchSendsMessage(t *testing.T) {
	db := newTestDB(t)
	provider := &stubProvider{}
	queue := newTestQueue(t, db, newStubResolver(provider))

	id := enqueueTestMessage(t, queue, uuid.New(), nil)
	require.NoError(t, queue.Dispatch(context.Background(), id))

	msg := loadMessage(t, db, id)
	assert.Equal(t, models.MessageStatusSent, msg.Status)
	assert.Equal(t, 1, msg.Attempts)
	assert.Equal(t, "accepted", msg.ProviderResponse)
	assert.NotNil(t, msg.SentAt)
	assert.Equal(t, 1, provider.calls)
}

func TestDispatchRetriesThenSucceeds(t *testing.T) {
	db := newTestDB(t)
	provider := &stubProvider{sendErrs: []error{
		errors.New("451 try again"),
		errors.New("timeout"),
	}}
	queue := newTestQueue(t, db, newStubResolver(provider))

	id := enqueueTestMessage(t, queue, uuid.New(), nil)

	// 前兩次失敗後回到 pending
	for i := 0; i < 2; i++ {
		err := queue.Dispatch(context.Background(), id)
		require.Error(t, err)
		msg := loadMessage(t, db, id)
		assert.Equal(t, models.MessageStatusPending, msg.Status)
		assert.Equal(t, i+1, msg.Attempts)
		assert.NotEmpty(t, msg.ErrorMessage)
	}

	// 第三次成功
	require.NoError(t, queue.Dispatch(context.Background(), id))
	msg := loadMessage(t, db, id)
	assert.Equal(t, models.MessageStatusSent, msg.Status)
	assert.Equal(t, MaxDeliveryAttempts, msg.Attempts)
	assert.Empty(t, msg.ErrorMessage)
}

func TestDispatchExhaustsAttemptBudget(t *testing.T) {
	db := newTestDB(t)
	provider := &stubProvider{sendErrs: []error{
		errors.New("bounce"), errors.New("bounce"), errors.New("bounce"), errors.New("bounce"),
	}}
	queue := newTestQueue(t, db, newStubResolver(provider))

	id := enqueueTestMessage(t, queue, uuid.New(), nil)

	for i := 0; i < MaxDeliveryAttempts; i++ {
		require.Error(t, queue.Dispatch(context.Background(), id))
	}

	// 次數用盡後轉為 failed，且不再呼叫服務商
	err := queue.Dispatch(context.Background(), id)
	assert.ErrorIs(t, err, ErrAttemptsExhausted)

	msg := loadMessage(t, db, id)
	assert.Equal(t, models.MessageStatusFailed, msg.Status)
	assert.Equal(t, MaxDeliveryAttempts, msg.Attempts)
	assert.Equal(t, MaxDeliveryAttempts, provider.calls)
}

func TestDispatchSkipsHandledMessages(t *testing.T) {
	db := newTestDB(t)
	queue := newTestQueue(t, db, newStubResolver(&stubProvider{}))
	storeID := uuid.New()

	for _, status := range []models.MessageStatus{
		models.MessageStatusSent,
		models.MessageStatusCancelled,
		models.MessageStatusFailed,
	} {
		id := enqueueTestMessage(t, queue, storeID, nil)
		require.NoError(t, db.Model(&models.QueuedMessage{}).Where("id = ?", id).Update("status", status).Error)

		err := queue.Dispatch(context.Background(), id)
		assert.ErrorIs(t, err, ErrMessageAlreadyHandled, "status %s", status)
	}
}

func TestDispatchMessageNotFound(t *testing.T) {
	db := newTestDB(t)
	queue := newTestQueue(t, db, newStubResolver(&stubProvider{}))

	err := queue.Dispatch(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestDispatchConfigErrorFailsFast(t *testing.T) {
	db := newTestDB(t)
	queue := newTestQueue(t, db, &stubResolver{err: ErrNoActiveProvider})

	id := enqueueTestMessage(t, queue, uuid.New(), nil)
	err := queue.Dispatch(context.Background(), id)
	assert.ErrorIs(t, err, ErrNoActiveProvider)

	// 設定錯誤直接終結，不留在佇列裡循環
	msg := loadMessage(t, db, id)
	assert.Equal(t, models.MessageStatusFailed, msg.Status)
	assert.Contains(t, msg.ErrorMessage, "no active email provider")
}

func TestRetryResetsFailedMessage(t *testing.T) {
	db := newTestDB(t)
	provider := &stubProvider{}
	queue := newTestQueue(t, db, newStubResolver(provider))

	id := enqueueTestMessage(t, queue, uuid.New(), nil)
	require.NoError(t, db.Model(&models.QueuedMessage{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":        models.MessageStatusFailed,
		"attempts":      MaxDeliveryAttempts,
		"error_message": "exhausted",
	}).Error)

	require.NoError(t, queue.Retry(context.Background(), id))

	msg := loadMessage(t, db, id)
	assert.Equal(t, models.MessageStatusSent, msg.Status)
	assert.Equal(t, 1, msg.Attempts)
}

func TestRetryRejectsTerminalMessages(t *testing.T) {
	db := newTestDB(t)
	provider := &stubProvider{}
	queue := newTestQueue(t, db, newStubResolver(provider))
	storeID := uuid.New()

	// 已發送的郵件不可重試，不得重複發送
	sentID := enqueueTestMessage(t, queue, storeID, nil)
	require.NoError(t, queue.Dispatch(context.Background(), sentID))
	require.Equal(t, 1, provider.calls)

	err := queue.Retry(context.Background(), sentID)
	assert.ErrorIs(t, err, ErrMessageAlreadyHandled)
	assert.Equal(t, models.MessageStatusSent, loadMessage(t, db, sentID).Status)
	assert.Equal(t, 1, provider.calls)

	// 已取消的郵件不可復活
	cancelledID := enqueueTestMessage(t, queue, storeID, nil)
	require.NoError(t, db.Model(&models.QueuedMessage{}).Where("id = ?", cancelledID).
		Update("status", models.MessageStatusCancelled).Error)

	err = queue.Retry(context.Background(), cancelledID)
	assert.ErrorIs(t, err, ErrMessageAlreadyHandled)
	assert.Equal(t, models.MessageStatusCancelled, loadMessage(t, db, cancelledID).Status)
	assert.Equal(t, 1, provider.calls)

	// 處理中的郵件同樣拒絕
	sendingID := enqueueTestMessage(t, queue, storeID, nil)
	require.NoError(t, db.Model(&models.QueuedMessage{}).Where("id = ?", sendingID).
		Update("status", models.MessageStatusSending).Error)

	err = queue.Retry(context.Background(), sendingID)
	assert.ErrorIs(t, err, ErrMessageAlreadyHandled)
}

func TestRetryNotFound(t *testing.T) {
	db := newTestDB(t)
	queue := newTestQueue(t, db, newStubResolver(&stubProvider{}))

	err := queue.Retry(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestCancelPendingScope(t *testing.T) {
	db := newTestDB(t)
	queue := newTestQueue(t, db, newStubResolver(&stubProvider{}))
	storeID := uuid.New()
	cartID := uuid.New()
	otherCartID := uuid.New()

	pendingForCart := enqueueTestMessage(t, queue, storeID, func(m *models.QueuedMessage) { m.CartID = &cartID })
	pendingOtherCart := enqueueTestMessage(t, queue, storeID, func(m *models.QueuedMessage) { m.CartID = &otherCartID })
	sentForCart := enqueueTestMessage(t, queue, storeID, func(m *models.QueuedMessage) { m.CartID = &cartID })
	require.NoError(t, db.Model(&models.QueuedMessage{}).Where("id = ?", sentForCart).
		Update("status", models.MessageStatusSent).Error)

	cancelled, err := queue.CancelPending(context.Background(), storeID, &cartID, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, cancelled)

	// 只取消該購物車的 pending 郵件，已發送與其他購物車不受影響
	assert.Equal(t, models.MessageStatusCancelled, loadMessage(t, db, pendingForCart).Status)
	assert.Equal(t, models.MessageStatusPending, loadMessage(t, db, pendingOtherCart).Status)
	assert.Equal(t, models.MessageStatusSent, loadMessage(t, db, sentForCart).Status)
}

func TestProcessDueRespectsBatchAndSchedule(t *testing.T) {
	db := newTestDB(t)
	provider := &stubProvider{}
	queue := newTestQueue(t, db, newStubResolver(provider))
	storeID := uuid.New()

	past := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		offset := time.Duration(i) * time.Minute
		enqueueTestMessage(t, queue, storeID, func(m *models.QueuedMessage) {
			m.ScheduledFor = past.Add(offset)
		})
	}
	futureID := enqueueTestMessage(t, queue, storeID, func(m *models.QueuedMessage) {
		m.ScheduledFor = time.Now().Add(time.Hour)
	})

	sent, err := queue.ProcessDue(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	// 未到期的郵件不發送
	assert.Equal(t, models.MessageStatusPending, loadMessage(t, db, futureID).Status)

	sent, err = queue.ProcessDue(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
}

func TestHistoryFiltersAndPaginates(t *testing.T) {
	db := newTestDB(t)
	queue := newTestQueue(t, db, newStubResolver(&stubProvider{}))
	storeID := uuid.New()
	otherStore := uuid.New()

	for i := 0; i < 5; i++ {
		enqueueTestMessage(t, queue, storeID, func(m *models.QueuedMessage) {
			m.TemplateType = models.TemplateAbandonedCart1H
		})
	}
	enqueueTestMessage(t, queue, otherStore, nil)

	messages, total, err := queue.History(context.Background(), storeID, HistoryFilter{
		TemplateType: models.TemplateAbandonedCart1H,
		Page:         1,
		Limit:        3,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	assert.Len(t, messages, 3)

	// 其他商店的郵件不可見
	for _, m := range messages {
		assert.Equal(t, storeID, m.StoreID)
	}
}
