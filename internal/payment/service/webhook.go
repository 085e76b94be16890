package service

import (
	"context"
	"time"

	"eventpay/internal/gateway"
	"eventpay/internal/gateway/signature"
	"eventpay/internal/payment/models"
	"eventpay/internal/platform/privacy"
	registration "eventpay/internal/registration/models"
	dErrors "eventpay/pkg/domain-errors"
	"eventpay/pkg/platform/tracer"
	"eventpay/pkg/requestcontext"
)

// HandleWebhook verifies and applies one webhook delivery.
//
// An invalid signature returns CodeInvalidSignature. Every other permanent
// condition is reported as an outcome so the delivery is acknowledged; only
// transient failures return an error, which makes the gateway redeliver.
func (c *Confirmer) HandleWebhook(ctx context.Context, body []byte, sig, eventID string) (outcome models.WebhookOutcome, err error) {
	ctx, span := c.tracer.Start(ctx, tracer.SpanConfirmWebhook, tracer.String("webhook.event_id", eventID))
	defer func() { span.End(err) }()
	start := time.Now()
	defer func() { c.metrics.ObserveConfirmLatency(channelWebhook, time.Since(start).Seconds()) }()

	if !signature.VerifyWebhook(body, sig, c.secrets.WebhookSecret) {
		c.metrics.IncSignatureFailure(channelWebhook)
		c.logger.WarnContext(ctx, "webhook signature rejected",
			"security_event", true,
			"request_id", requestcontext.RequestID(ctx),
			"client_ip", privacy.MaskIP(requestcontext.ClientIP(ctx)),
			"event_id", eventID,
			"body_bytes", len(body),
		)
		return "", dErrors.New(dErrors.CodeInvalidSignature, "invalid webhook signature")
	}

	evt, err := gateway.ParseWebhookEvent(body)
	if err != nil {
		return c.webhookDone(ctx, "unknown", models.WebhookRejected, "malformed payload", "error", err), nil
	}
	if evt.Event != gateway.EventPaymentCaptured {
		return c.webhookDone(ctx, evt.Event, models.WebhookIgnored, "event type not handled"), nil
	}
	payment, ok := evt.PaymentEntity()
	if !ok || payment.ID == "" || payment.OrderID == "" {
		return c.webhookDone(ctx, evt.Event, models.WebhookRejected, "payment entity missing"), nil
	}
	span.SetAttributes(
		tracer.String(tracer.AttrOrderID, payment.OrderID),
		tracer.String(tracer.AttrPaymentID, payment.ID),
	)

	if c.delivered(ctx, eventID) {
		return c.webhookDone(ctx, evt.Event, models.WebhookDuplicate, "delivery already handled",
			"event_id", eventID, "payment_id", payment.ID), nil
	}

	trusted := c.webhookEvents(ctx, span, payment)
	if trusted.UserID == "" || len(trusted.Names) == 0 {
		return c.webhookDone(ctx, evt.Event, models.WebhookRejected, "order notes carry no user or events",
			"order_id", payment.OrderID, "payment_id", payment.ID), nil
	}
	span.SetAttributes(tracer.String(tracer.AttrTrust, string(trusted.Trust)))

	res, err := c.reconciler.Reconcile(ctx, registration.Input{
		UserID:     trusted.UserID,
		UserEmail:  trusted.UserEmail,
		OrderID:    payment.OrderID,
		PaymentID:  payment.ID,
		EventNames: trusted.Names,
		Amount:     payment.Amount,
		Source:     registration.SourceWebhook,
		Trust:      trusted.Trust,
	})
	if err != nil {
		if permanentRefusal(err) {
			return c.webhookDone(ctx, evt.Event, models.WebhookRejected, "reconciliation refused payment",
				"order_id", payment.OrderID, "payment_id", payment.ID, "error", err), nil
		}
		c.metrics.IncWebhookEvent(evt.Event, "retry")
		c.logger.ErrorContext(ctx, "webhook reconciliation failed, asking for redelivery",
			"request_id", requestcontext.RequestID(ctx),
			"event_id", eventID,
			"order_id", payment.OrderID,
			"payment_id", payment.ID,
			"error", err,
		)
		return "", err
	}
	c.record(ctx, eventID)
	if res.AlreadyProcessed {
		return c.webhookDone(ctx, evt.Event, models.WebhookDuplicate, "payment already recorded",
			"order_id", payment.OrderID, "payment_id", payment.ID), nil
	}
	return c.webhookDone(ctx, evt.Event, models.WebhookProcessed, "payment recorded",
		"order_id", payment.OrderID, "payment_id", payment.ID, "user_id", trusted.UserID), nil
}

// webhookEvents recovers the registration data from the order's notes, falling
// back to the notes on the payment entity, which the gateway copies from the
// order and which are covered by the webhook signature.
func (c *Confirmer) webhookEvents(ctx context.Context, span tracer.Span, payment *gateway.Payment) models.TrustedEvents {
	notes := payment.Notes
	order, err := c.order(ctx, span, payment.OrderID)
	if err == nil && order.Notes.UserID() != "" && len(order.Notes.EventNames()) > 0 {
		notes = order.Notes
	} else {
		span.AddEvent(tracer.EventFallbackUsed)
		c.logger.InfoContext(ctx, "using payment notes for webhook",
			"order_id", payment.OrderID,
			"payment_id", payment.ID,
			"error", err,
		)
	}

	email := notes.UserEmail()
	if email == "" {
		email = payment.Email
	}
	c.metrics.IncTrustedEvents(channelWebhook, string(registration.TrustAuthoritative))
	return models.TrustedEvents{
		Names:     notes.EventNames(),
		Trust:     registration.TrustAuthoritative,
		UserID:    notes.UserID(),
		UserEmail: email,
		Amount:    payment.Amount,
	}
}

// permanentRefusal reports whether redelivering the same payload can never
// succeed. Anything else, including unclassified store errors, asks the
// gateway to retry.
func permanentRefusal(err error) bool {
	code, ok := dErrors.CodeOf(err)
	if !ok {
		return false
	}
	switch code {
	case dErrors.CodeValidation, dErrors.CodeBadRequest, dErrors.CodeInvariantViolation, dErrors.CodeForbidden:
		return true
	default:
		return false
	}
}

// delivered reports whether eventID belongs to a delivery whose payment is
// already stored. Lookup failures are treated as unknown.
func (c *Confirmer) delivered(ctx context.Context, eventID string) bool {
	if eventID == "" || c.deliveries == nil {
		return false
	}
	seen, err := c.deliveries.Seen(ctx, eventID)
	if err != nil {
		c.logger.WarnContext(ctx, "webhook delivery log unavailable", "event_id", eventID, "error", err)
		return false
	}
	return seen
}

// record runs once the payment is stored and must survive a cancelled
// request context.
func (c *Confirmer) record(ctx context.Context, eventID string) {
	if eventID == "" || c.deliveries == nil {
		return
	}
	if err := c.deliveries.Record(context.WithoutCancel(ctx), eventID); err != nil {
		c.logger.WarnContext(ctx, "failed to record webhook delivery", "event_id", eventID, "error", err)
	}
}

func (c *Confirmer) webhookDone(ctx context.Context, event string, outcome models.WebhookOutcome, msg string, attrs ...any) models.WebhookOutcome {
	c.metrics.IncWebhookEvent(event, string(outcome))
	args := append([]any{
		"request_id", requestcontext.RequestID(ctx),
		"event", event,
		"outcome", outcome,
	}, attrs...)
	level := c.logger.InfoContext
	if outcome == models.WebhookRejected {
		level = c.logger.WarnContext
	}
	level(ctx, "webhook "+msg, args...)
	return outcome
}
