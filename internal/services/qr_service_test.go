package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"

	"github.com/templebooks/backend/internal/config"
)

func testQRConfig() *config.ReconciliationConfig {
	return &config.ReconciliationConfig{
		Location:     time.UTC,
		UPIPayeeVPA:  "collections@upi",
		UPIPayeeName: "Collections Desk",
		QRCodeTTL:    5 * time.Minute,
	}
}

func TestQRService_GenerateQRCode(t *testing.T) {
	redisClient, mock := redismock.NewClientMock()
	service := NewQRService(redisClient, testQRConfig())

	t.Run("stages the payment and returns a QR image", func(t *testing.T) {
		mock.Regexp().ExpectSet(`upiqr:.+`, `.+`, 5*time.Minute).SetVal("OK")

		ref, image, err := service.GenerateQRCode(context.Background(), "asha", 25000, "archana")
		assert.NoError(t, err)
		assert.NotEmpty(t, ref)
		assert.NotEmpty(t, image)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("non-positive amount", func(t *testing.T) {
		_, _, err := service.GenerateQRCode(context.Background(), "asha", 0, "")
		var vErr *ValidationError
		assert.ErrorAs(t, err, &vErr)
		assert.Equal(t, "amount", vErr.Field)
	})
}

func TestQRService_RedeemQRCode(t *testing.T) {
	redisClient, mock := redismock.NewClientMock()
	service := NewQRService(redisClient, testQRConfig())

	t.Run("redeems a staged payment once", func(t *testing.T) {
		pending := PendingPayment{
			Cashier:   "asha",
			Amount:    25000,
			Narration: "archana",
			Reference: "ref123",
			CreatedAt: time.Now().Unix(),
		}
		data, _ := json.Marshal(pending)

		mock.ExpectGet("upiqr:ref123").SetVal(string(data))
		mock.ExpectDel("upiqr:ref123").SetVal(1)

		got, err := service.RedeemQRCode(context.Background(), "ref123")
		assert.NoError(t, err)
		assert.Equal(t, pending, *got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown or expired reference", func(t *testing.T) {
		mock.ExpectGet("upiqr:stale").RedisNil()

		_, err := service.RedeemQRCode(context.Background(), "stale")
		assert.ErrorContains(t, err, "invalid or expired payment reference")
	})
}

func TestQRService_UPILink(t *testing.T) {
	service := NewQRService(nil, testQRConfig())

	link := service.upiLink(PendingPayment{Amount: 123456, Reference: "ref1", Narration: "prasad"})

	assert.Contains(t, link, "upi://pay?")
	assert.Contains(t, link, "am=1234.56")
	assert.Contains(t, link, "pa=collections%40upi")
	assert.Contains(t, link, "tr=ref1")
	assert.Contains(t, link, "tn=prasad")
	assert.Contains(t, link, "cu=INR")
}
