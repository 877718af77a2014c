package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/png"
	"net/url"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/skip2/go-qrcode"
	"github.com/templebooks/backend/internal/config"
)

// QRService stages UPI collection QR codes for Online-channel sales. The
// cashier shows the code, the payer scans it, and the POS confirms the
// payment by redeeming the staged reference before recording the sale.
type QRService struct {
	redis *redis.Client
	cfg   *config.ReconciliationConfig
}

func NewQRService(redisClient *redis.Client, cfg *config.ReconciliationConfig) *QRService {
	return &QRService{redis: redisClient, cfg: cfg}
}

// PendingPayment is a staged online collection awaiting confirmation.
type PendingPayment struct {
	Cashier   string `json:"cashier"`
	Amount    int64  `json:"amount"` // in paise
	Narration string `json:"narration,omitempty"`
	Reference string `json:"reference"`
	CreatedAt int64  `json:"createdAt"`
}

// GenerateQRCode builds a UPI deep link for the amount, stages the payment
// under a one-time reference with a TTL, and returns the reference plus the
// QR image as base64 PNG.
func (s *QRService) GenerateQRCode(ctx context.Context, cashier string, amount int64, narration string) (string, string, error) {
	if s.redis == nil {
		return "", "", fmt.Errorf("QR payments unavailable without redis")
	}
	if amount <= 0 {
		return "", "", &ValidationError{Field: "amount", Reason: "must be positive"}
	}

	pending := PendingPayment{
		Cashier:   cashier,
		Amount:    amount,
		Narration: narration,
		Reference: s.generateReference(),
		CreatedAt: time.Now().Unix(),
	}

	data, err := json.Marshal(pending)
	if err != nil {
		return "", "", err
	}
	key := fmt.Sprintf("upiqr:%s", pending.Reference)
	if err := s.redis.Set(ctx, key, data, s.cfg.QRCodeTTL).Err(); err != nil {
		return "", "", err
	}

	link := s.upiLink(pending)
	qr, err := qrcode.New(link, qrcode.Medium)
	if err != nil {
		return "", "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return "", "", err
	}

	return pending.Reference, base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// RedeemQRCode consumes a staged payment reference. A reference redeems at
// most once; expired or unknown references are rejected.
func (s *QRService) RedeemQRCode(ctx context.Context, reference string) (*PendingPayment, error) {
	if s.redis == nil {
		return nil, fmt.Errorf("QR payments unavailable without redis")
	}
	key := fmt.Sprintf("upiqr:%s", reference)

	data, err := s.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("invalid or expired payment reference")
	}
	if err != nil {
		return nil, err
	}

	var pending PendingPayment
	if err := json.Unmarshal(data, &pending); err != nil {
		return nil, err
	}

	s.redis.Del(ctx, key)
	return &pending, nil
}

// upiLink renders the upi://pay deep link. UPI amounts are rupees with two
// decimals, so the paise figure is formatted, not divided in floats.
func (s *QRService) upiLink(p PendingPayment) string {
	q := url.Values{}
	q.Set("pa", s.cfg.UPIPayeeVPA)
	q.Set("pn", s.cfg.UPIPayeeName)
	q.Set("am", fmt.Sprintf("%d.%02d", p.Amount/100, p.Amount%100))
	q.Set("cu", "INR")
	q.Set("tr", p.Reference)
	if p.Narration != "" {
		q.Set("tn", p.Narration)
	}
	return "upi://pay?" + q.Encode()
}

func (s *QRService) generateReference() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)
}
