package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"time"

	"eventpay/internal/catalog"
	"eventpay/internal/gateway/gatewaytest"
	"eventpay/internal/payment/cache"
	"eventpay/internal/payment/handler"
	payservice "eventpay/internal/payment/service"
	"eventpay/internal/platform/health"
	regservice "eventpay/internal/registration/service"
	"eventpay/internal/registration/store"
	httptransport "eventpay/internal/transport/http"
)

// TestContext is one scenario's world: an in-process API backed by a fake
// gateway and an empty in-memory registration store.
type TestContext struct {
	Gateway    *gatewaytest.Server
	BaseURL    string
	HTTPClient *http.Client

	server *httptest.Server
	last   lastResponse
	orders map[string]string
}

type lastResponse struct {
	status int
	header http.Header
	body   []byte
}

func NewTestContext() *TestContext {
	fake := gatewaytest.New()
	client := fake.Client()
	cat := catalog.Default()
	regStore := store.NewInMemory(nil)
	reconciler := regservice.New(regStore)

	orders := payservice.NewOrderService(cat, client,
		payservice.WithOrderCache(cache.NewMemoryOrderCache(time.Hour)),
		payservice.WithOrderReader(client),
	)
	// The confirmer gets no order cache so gateway faults reach it.
	confirmer := payservice.NewConfirmer(reconciler, client,
		payservice.Secrets{KeySecret: fake.KeySecret, WebhookSecret: fake.WebhookSecret},
		payservice.WithDeliveryLog(cache.NewMemoryDeliveryLog(time.Hour)),
		payservice.WithCatalog(cat),
		payservice.WithFetchTimeout(200*time.Millisecond),
	)

	probes := health.New("e2e")
	probes.RegisterCheck("registration_store", func(context.Context) error { return nil })
	probes.RegisterOptional("gateway", fake.Healthy)

	srv := httptest.NewServer(httptransport.NewRouter(httptransport.RouterConfig{
		Payments: handler.New(orders, confirmer, reconciler, nil),
		Health:   probes,
	}))
	return &TestContext{
		Gateway:    fake,
		BaseURL:    srv.URL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		server:     srv,
		orders:     make(map[string]string),
	}
}

func (tc *TestContext) Close() {
	tc.server.Close()
	tc.Gateway.Close()
}

func (tc *TestContext) POST(path string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s body: %w", path, err)
	}
	return tc.POSTRaw(path, data, nil)
}

// POSTRaw sends body byte for byte, which webhook steps need for signing.
func (tc *TestContext) POSTRaw(path string, body []byte, headers map[string]string) error {
	return tc.send(http.MethodPost, path, bytes.NewReader(body), headers)
}

func (tc *TestContext) GET(path string, headers map[string]string) error {
	return tc.send(http.MethodGet, path, nil, headers)
}

func (tc *TestContext) send(method, path string, body io.Reader, headers map[string]string) error {
	req, err := http.NewRequestWithContext(context.Background(), method, tc.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := tc.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s %s response: %w", method, path, err)
	}
	tc.last = lastResponse{status: resp.StatusCode, header: resp.Header, body: data}
	return nil
}

// GetResponseField resolves a dotted path such as "registeredEvents.0" or
// "support.paymentId" in the last JSON response.
func (tc *TestContext) GetResponseField(path string) (any, error) {
	var node any
	if err := json.Unmarshal(tc.last.body, &node); err != nil {
		return nil, fmt.Errorf("response is not JSON: %w", err)
	}
	for _, part := range strings.Split(path, ".") {
		switch v := node.(type) {
		case map[string]any:
			next, ok := v[part]
			if !ok {
				return nil, fmt.Errorf("field %q not found in response", path)
			}
			node = next
		case []any:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(v) {
				return nil, fmt.Errorf("field %q: no element %q", path, part)
			}
			node = v[i]
		default:
			return nil, fmt.Errorf("field %q: %q is not an object or array", path, part)
		}
	}
	return node, nil
}

func (tc *TestContext) ResponseContains(text string) bool {
	return bytes.Contains(tc.last.body, []byte(text))
}

func (tc *TestContext) GetLastResponseStatus() int { return tc.last.status }

func (tc *TestContext) GetLastResponseBody() []byte { return tc.last.body }

func (tc *TestContext) GetLastResponseHeader(name string) string {
	if tc.last.header == nil {
		return ""
	}
	return tc.last.header.Get(name)
}

func (tc *TestContext) GetGateway() *gatewaytest.Server { return tc.Gateway }

// RememberOrder binds a scenario alias like "o1" to a gateway order id.
func (tc *TestContext) RememberOrder(alias, orderID string) {
	tc.orders[alias] = orderID
}

func (tc *TestContext) Order(alias string) (string, error) {
	id, ok := tc.orders[alias]
	if !ok {
		return "", fmt.Errorf("no order named %q", alias)
	}
	return id, nil
}
