package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/templebooks/backend/internal/services"
)

type QRHandler struct {
	service   *services.QRService
	validator *services.ValidationHelper
}

func NewQRHandler(service *services.QRService) *QRHandler {
	return &QRHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// GenerateQR stages a UPI collection QR for an online sale
// @Summary Generate payment QR
// @Description Generate a UPI collection QR code for an online-channel sale
// @Tags QR
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{amount=int64,narration=string} true "QR generation request"
// @Success 200 {object} object{reference=string,qrImage=string}
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Router /qr/generate [post]
func (h *QRHandler) GenerateQR(w http.ResponseWriter, r *http.Request) {
	cashier, ok := r.Context().Value("cashier").(string)
	if !ok || cashier == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		Amount    int64  `json:"amount" validate:"required,gt=0"`
		Narration string `json:"narration" validate:"max=200"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	reference, qrImage, err := h.service.GenerateQRCode(r.Context(), cashier, req.Amount, req.Narration)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success":   true,
		"reference": reference,
		"qrImage":   qrImage,
	})
}

// ProcessQR redeems a staged payment reference
// @Summary Redeem payment QR
// @Description Redeem a staged payment reference once the UPI payment is confirmed
// @Tags QR
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{reference=string} true "Redemption request"
// @Success 200 {object} services.PendingPayment
// @Failure 400 {object} services.ErrorResponse
// @Router /qr/process [post]
func (h *QRHandler) ProcessQR(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reference string `json:"reference" validate:"required"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	pending, err := h.service.RedeemQRCode(r.Context(), req.Reference)
	if err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"payment": pending,
	})
}
