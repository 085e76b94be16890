package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/cucumber/godog"

	"eventpay/internal/gateway/gatewaytest"
)

const (
	headerSignature = "X-Razorpay-Signature"
	headerEventID   = "X-Razorpay-Event-Id"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	POSTRaw(path string, body []byte, headers map[string]string) error
	GET(path string, headers map[string]string) error
	GetResponseField(field string) (any, error)
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	GetGateway() *gatewaytest.Server
	RememberOrder(alias, orderID string)
	Order(alias string) (string, error)
}

func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &paymentSteps{tc: tc}

	ctx.Step(`^user "([^"]*)" creates order "([^"]*)" for "([^"]*)"$`, steps.createOrder)
	ctx.Step(`^user "([^"]*)" confirms payment "([^"]*)" for order "([^"]*)"$`, steps.confirm)
	ctx.Step(`^user "([^"]*)" confirms payment "([^"]*)" for order "([^"]*)" claiming "([^"]*)"$`, steps.confirmClaiming)
	ctx.Step(`^user "([^"]*)" confirms payment "([^"]*)" for order "([^"]*)" with a forged signature$`, steps.confirmForged)
	ctx.Step(`^the gateway delivers the captured webhook for payment "([^"]*)" of order "([^"]*)"$`, steps.deliverWebhook)
	ctx.Step(`^the gateway redelivers the last webhook$`, steps.redeliverWebhook)
	ctx.Step(`^a webhook for payment "([^"]*)" of order "([^"]*)" arrives with a forged signature$`, steps.forgedWebhook)
	ctx.Step(`^the gateway cannot return orders$`, steps.gatewayCannotReturnOrders)
	ctx.Step(`^the gateway marks order "([^"]*)" as paid$`, steps.markPaid)
	ctx.Step(`^I check the payment status of order "([^"]*)"$`, steps.paymentStatus)

	ctx.Step(`^user "([^"]*)" should be registered for "([^"]*)"$`, steps.shouldBeRegisteredFor)
	ctx.Step(`^user "([^"]*)" should have (\d+) payments?$`, steps.shouldHavePayments)
	ctx.Step(`^user "([^"]*)" should have no registration$`, steps.shouldHaveNoRegistration)
	ctx.Step(`^the webhook outcome should be "([^"]*)"$`, steps.webhookOutcomeShouldBe)
	ctx.Step(`^the gateway should have received (\d+) order requests?$`, steps.gatewayOrderRequests)
}

type paymentSteps struct {
	tc   TestContext
	last *gatewaytest.Delivery
}

func splitList(list string) []string {
	var out []string
	for _, item := range strings.Split(list, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (s *paymentSteps) createOrder(ctx context.Context, userID, alias, events string) error {
	err := s.tc.POST("/api/create-order", map[string]any{
		"userId":     userID,
		"userEmail":  userID + "@example.com",
		"eventNames": splitList(events),
	})
	if err != nil {
		return err
	}
	if s.tc.GetLastResponseStatus() == http.StatusOK {
		id, err := s.tc.GetResponseField("id")
		if err != nil {
			return err
		}
		s.tc.RememberOrder(alias, fmt.Sprint(id))
	}
	return nil
}

func (s *paymentSteps) verify(userID, paymentID, alias, signature string, claimed []string) error {
	orderID, err := s.tc.Order(alias)
	if err != nil {
		return err
	}
	if signature == "" {
		signature = s.tc.GetGateway().CheckoutSignature(orderID, paymentID)
	}
	body := map[string]any{
		"orderId":   orderID,
		"paymentId": paymentID,
		"signature": signature,
		"userId":    userID,
	}
	if claimed != nil {
		body["eventNames"] = claimed
	}
	return s.tc.POST("/api/verify-payment", body)
}

func (s *paymentSteps) confirm(ctx context.Context, userID, paymentID, alias string) error {
	return s.verify(userID, paymentID, alias, "", nil)
}

func (s *paymentSteps) confirmClaiming(ctx context.Context, userID, paymentID, alias, events string) error {
	return s.verify(userID, paymentID, alias, "", splitList(events))
}

func (s *paymentSteps) confirmForged(ctx context.Context, userID, paymentID, alias string) error {
	return s.verify(userID, paymentID, alias, strings.Repeat("ab", 32), nil)
}

func (s *paymentSteps) sendWebhook(d gatewaytest.Delivery, sig string) error {
	return s.tc.POSTRaw("/api/webhook/razorpay", d.Body, map[string]string{
		headerSignature: sig,
		headerEventID:   d.EventID,
	})
}

func (s *paymentSteps) deliverWebhook(ctx context.Context, paymentID, alias string) error {
	orderID, err := s.tc.Order(alias)
	if err != nil {
		return err
	}
	d, err := s.tc.GetGateway().Captured(orderID, paymentID)
	if err != nil {
		return err
	}
	s.last = &d
	return s.sendWebhook(d, d.Signature)
}

func (s *paymentSteps) redeliverWebhook(ctx context.Context) error {
	if s.last == nil {
		return fmt.Errorf("no webhook delivered yet")
	}
	return s.sendWebhook(*s.last, s.last.Signature)
}

func (s *paymentSteps) forgedWebhook(ctx context.Context, paymentID, alias string) error {
	orderID, err := s.tc.Order(alias)
	if err != nil {
		return err
	}
	d, err := s.tc.GetGateway().Captured(orderID, paymentID)
	if err != nil {
		return err
	}
	return s.sendWebhook(d, strings.Repeat("cd", 32))
}

func (s *paymentSteps) gatewayCannotReturnOrders(ctx context.Context) error {
	s.tc.GetGateway().FailFetch(http.StatusServiceUnavailable)
	return nil
}

func (s *paymentSteps) markPaid(ctx context.Context, alias string) error {
	orderID, err := s.tc.Order(alias)
	if err != nil {
		return err
	}
	s.tc.GetGateway().MarkPaid(orderID)
	return nil
}

func (s *paymentSteps) paymentStatus(ctx context.Context, alias string) error {
	orderID, err := s.tc.Order(alias)
	if err != nil {
		return err
	}
	return s.tc.GET("/api/payment-status/"+orderID, nil)
}

type registration struct {
	Events   []string `json:"events"`
	Payments []struct {
		PaymentID string `json:"paymentId"`
	} `json:"payments"`
}

func (s *paymentSteps) registration(userID string) (*registration, error) {
	if err := s.tc.GET("/api/registrations/"+userID, nil); err != nil {
		return nil, err
	}
	if status := s.tc.GetLastResponseStatus(); status != http.StatusOK {
		return nil, fmt.Errorf("registration lookup returned %d: %s", status, s.tc.GetLastResponseBody())
	}
	var reg registration
	if err := json.Unmarshal(s.tc.GetLastResponseBody(), &reg); err != nil {
		return nil, err
	}
	return &reg, nil
}

func (s *paymentSteps) shouldBeRegisteredFor(ctx context.Context, userID, events string) error {
	reg, err := s.registration(userID)
	if err != nil {
		return err
	}
	want := splitList(events)
	got := slices.Clone(reg.Events)
	slices.Sort(want)
	slices.Sort(got)
	if !slices.Equal(want, got) {
		return fmt.Errorf("expected events %v but got %v", want, reg.Events)
	}
	return nil
}

func (s *paymentSteps) shouldHavePayments(ctx context.Context, userID string, n int) error {
	reg, err := s.registration(userID)
	if err != nil {
		return err
	}
	if len(reg.Payments) != n {
		return fmt.Errorf("expected %d payments but got %d", n, len(reg.Payments))
	}
	return nil
}

func (s *paymentSteps) shouldHaveNoRegistration(ctx context.Context, userID string) error {
	if err := s.tc.GET("/api/registrations/"+userID, nil); err != nil {
		return err
	}
	if status := s.tc.GetLastResponseStatus(); status != http.StatusNotFound {
		return fmt.Errorf("expected no registration, got status %d: %s", status, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *paymentSteps) webhookOutcomeShouldBe(ctx context.Context, outcome string) error {
	got, err := s.tc.GetResponseField("outcome")
	if err != nil {
		return err
	}
	if fmt.Sprint(got) != outcome {
		return fmt.Errorf("expected webhook outcome %s but got %v", outcome, got)
	}
	return nil
}

func (s *paymentSteps) gatewayOrderRequests(ctx context.Context, n int) error {
	if got := s.tc.GetGateway().CreateCalls(); got != n {
		return fmt.Errorf("expected %d order requests but gateway saw %d", n, got)
	}
	return nil
}
