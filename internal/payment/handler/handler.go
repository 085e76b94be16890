package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"eventpay/internal/payment/models"
	registration "eventpay/internal/registration/models"
	dErrors "eventpay/pkg/domain-errors"
	"eventpay/pkg/platform/httputil"
	request "eventpay/pkg/platform/middleware/request"
	"eventpay/pkg/requestcontext"
	"eventpay/pkg/validation"
)

// Header names used by the gateway for webhook deliveries.
const (
	HeaderSignature = "X-Razorpay-Signature"
	HeaderEventID   = "X-Razorpay-Event-Id"
)

// Orders creates gateway orders and reads their status.
type Orders interface {
	CreateOrder(ctx context.Context, in models.CreateOrderInput) (*models.OrderResult, error)
	PaymentStatus(ctx context.Context, orderID string) (*models.PaymentStatus, error)
}

// Confirmations applies payments from either confirmation channel.
type Confirmations interface {
	ConfirmDirect(ctx context.Context, in models.DirectConfirmation) (*models.ConfirmResult, error)
	HandleWebhook(ctx context.Context, body []byte, signature, eventID string) (models.WebhookOutcome, error)
}

// Registrations reads registration aggregates.
type Registrations interface {
	Registration(ctx context.Context, userID string) (*registration.Aggregate, error)
}

type Handler struct {
	orders        Orders
	confirmations Confirmations
	registrations Registrations
	logger        *slog.Logger
}

func New(orders Orders, confirmations Confirmations, registrations Registrations, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{
		orders:        orders,
		confirmations: confirmations,
		registrations: registrations,
		logger:        logger,
	}
}

// Register mounts the payment API. JSON endpoints share the regular body
// limit; the webhook reads its raw body under a larger one.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(request.BodyLimit(validation.MaxBodySize))
		r.Use(request.ContentTypeJSON)
		r.Post("/api/create-order", h.HandleCreateOrder)
		r.Post("/api/verify-payment", h.HandleVerifyPayment)
	})
	r.With(request.BodyLimit(validation.MaxWebhookBodySize)).Post("/api/webhook/razorpay", h.HandleWebhook)
	r.Get("/api/payment-status/{orderId}", h.HandlePaymentStatus)
	r.Get("/api/registrations/{userId}", h.HandleGetRegistration)
}

// HandleCreateOrder prices the selected events and opens a gateway order.
func (h *Handler) HandleCreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateOrderRequest](w, r, h.logger, requestID)
	if !ok {
		return
	}

	order, err := h.orders.CreateOrder(ctx, req.toInput())
	if err != nil {
		h.logger.ErrorContext(ctx, "create order failed", "error", err, "request_id", requestID, "user_id", req.UserID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toCreateOrderResponse(order))
}

// HandleVerifyPayment confirms a checkout callback.
func (h *Handler) HandleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[VerifyPaymentRequest](w, r, h.logger, requestID)
	if !ok {
		return
	}

	res, err := h.confirmations.ConfirmDirect(ctx, req.toConfirmation())
	if err != nil {
		var partial *models.PartialFailureError
		if errors.As(err, &partial) {
			writePartialFailure(w, partial)
			return
		}
		h.logger.WarnContext(ctx, "payment verification failed",
			"error", err,
			"request_id", requestID,
			"order_id", req.OrderID,
			"payment_id", req.PaymentID,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toVerifyPaymentResponse(res))
}

// HandleWebhook acknowledges every delivery it could authenticate, unless
// the payment could not be stored for a transient reason.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteJSON(w, http.StatusRequestEntityTooLarge, httputil.ErrorResponse{
				Error:            "payload_too_large",
				ErrorDescription: "webhook body exceeds limit",
			})
			return
		}
		h.logger.WarnContext(ctx, "failed to read webhook body", "error", err, "request_id", requestID)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "unreadable body"))
		return
	}

	sig := strings.TrimSpace(r.Header.Get(HeaderSignature))
	eventID := strings.TrimSpace(r.Header.Get(HeaderEventID))
	outcome, err := h.confirmations.HandleWebhook(ctx, body, sig, eventID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvalidSignature) {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{
			Error:            "internal_error",
			ErrorDescription: "webhook not processed, retry later",
		})
		return
	}

	httputil.WriteJSON(w, http.StatusOK, &WebhookResponse{Status: "ok", Outcome: string(outcome)})
}

// HandlePaymentStatus passes the gateway's order status through.
func (h *Handler) HandlePaymentStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if orderID == "" || len(orderID) > validation.MaxIDLength {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid order id"))
		return
	}

	status, err := h.orders.PaymentStatus(ctx, orderID)
	if err != nil {
		h.logger.WarnContext(ctx, "payment status lookup failed",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
			"order_id", orderID,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toPaymentStatusResponse(status))
}

func (h *Handler) HandleGetRegistration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := strings.TrimSpace(chi.URLParam(r, "userId"))
	if userID == "" || len(userID) > validation.MaxIDLength {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid user id"))
		return
	}

	agg, err := h.registrations.Registration(ctx, userID)
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeNotFound) {
			h.logger.ErrorContext(ctx, "registration lookup failed",
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
				"user_id", userID,
			)
		}
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toRegistrationResponse(agg))
}

func writePartialFailure(w http.ResponseWriter, partial *models.PartialFailureError) {
	status := http.StatusInternalServerError
	code := "payment_not_recorded"
	if dErrors.HasCode(partial.Err, dErrors.CodeUnavailable) {
		status = http.StatusServiceUnavailable
		code = "registration_unavailable"
	}
	httputil.WriteJSON(w, status, &PartialFailureResponse{
		Success:          false,
		Error:            code,
		ErrorDescription: "payment verified but registration was not saved",
		PaymentID:        partial.PaymentID,
		OrderID:          partial.OrderID,
		Support:          supportMessage,
	})
}
