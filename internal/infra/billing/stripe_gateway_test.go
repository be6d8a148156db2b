package billing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cvperfect-server/internal/domain"

	"github.com/stripe/stripe-go/v79/webhook"
)

const testWebhookSecret = "whsec_test_secret"

type testConfig struct {
	domain.Config
	prices map[domain.PlanCode]string
}

func (c *testConfig) GetStripeSecretKey() string                { return "sk_test_123" }
func (c *testConfig) GetStripeWebhookSecret() string            { return testWebhookSecret }
func (c *testConfig) GetStripeTimeout() time.Duration           { return 2 * time.Second }
func (c *testConfig) GetStripePriceID(p domain.PlanCode) string { return c.prices[p] }

type nopLogger struct{}

func (nopLogger) Info(msg string, fields ...interface{})             {}
func (nopLogger) Error(msg string, err error, fields ...interface{}) {}
func (nopLogger) Debug(msg string, fields ...interface{})            {}
func (nopLogger) Warn(msg string, fields ...interface{})             {}

func newTestGateway(t *testing.T, handler http.HandlerFunc) *StripeGateway {
	t.Helper()
	apiURL := ""
	if handler != nil {
		srv := httptest.NewServer(handler)
		t.Cleanup(srv.Close)
		apiURL = srv.URL
	}
	cfg := &testConfig{prices: map[domain.PlanCode]string{
		domain.PlanBasic:   "price_basic",
		domain.PlanPremium: "price_premium",
	}}
	return newStripeGateway(cfg, nopLogger{}, apiURL)
}

func sign(t *testing.T, payload string) string {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
	return signed.Header
}

func TestParseWebhook_CheckoutCompleted(t *testing.T) {
	g := newTestGateway(t, nil)
	payload := `{"id":"evt_1","object":"event","created":1777000000,"type":"checkout.session.completed","data":{"object":{"id":"cs_test_1","object":"checkout.session","payment_status":"paid","amount_total":7900,"customer_email":"prefill@example.com","customer_details":{"email":"Jane@Example.com"},"customer":"cus_1","subscription":"sub_1"}}}`

	event, err := g.ParseWebhook([]byte(payload), sign(t, payload))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.Kind != domain.EventCheckoutCompleted {
		t.Fatalf("expected checkout kind, got %s", event.Kind)
	}
	if event.Reference != "cs_test_1" || !event.Paid || event.Amount != 79 {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.Email != "Jane@Example.com" {
		t.Fatalf("expected customer_details email, got %q", event.Email)
	}
	if event.CustomerID != "cus_1" || event.SubscriptionID != "sub_1" {
		t.Fatalf("unexpected ids: %+v", event)
	}
	if event.PaidAt.Unix() != 1777000000 {
		t.Fatalf("expected payment time from the event, got %v", event.PaidAt)
	}
}

func TestParseWebhook_BadSignature(t *testing.T) {
	g := newTestGateway(t, nil)
	payload := `{"id":"evt_1","object":"event","type":"checkout.session.completed","data":{"object":{}}}`

	tests := []struct {
		name string
		sig  string
	}{
		{"missing", ""},
		{"garbage", "t=1,v1=deadbeef"},
		{"other payload", sign(t, `{"id":"evt_2"}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.ParseWebhook([]byte(payload), tt.sig)
			if !errors.Is(err, domain.ErrInvalidSignature) {
				t.Fatalf("expected ErrInvalidSignature, got %v", err)
			}
		})
	}
}

func TestParseWebhook_InvoiceEvents(t *testing.T) {
	g := newTestGateway(t, nil)

	first := `{"id":"evt_2","object":"event","type":"invoice.payment_succeeded","data":{"object":{"id":"in_1","object":"invoice","billing_reason":"subscription_create","paid":true,"amount_paid":4900,"customer":"cus_1"}}}`
	event, err := g.ParseWebhook([]byte(first), sign(t, first))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.Kind != domain.EventIgnored {
		t.Fatalf("expected first invoice to be ignored, got %s", event.Kind)
	}

	renewal := `{"id":"evt_3","object":"event","created":1777000500,"type":"invoice.payment_succeeded","data":{"object":{"id":"in_2","object":"invoice","billing_reason":"subscription_cycle","paid":true,"status_transitions":{"paid_at":1777000400},"amount_paid":4900,"customer":"cus_1","customer_email":"jane@example.com","subscription":"sub_1"}}}`
	event, err = g.ParseWebhook([]byte(renewal), sign(t, renewal))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.Kind != domain.EventSubscriptionRenewed || event.Reference != "in_2" || event.Amount != 49 {
		t.Fatalf("unexpected renewal event: %+v", event)
	}
	if event.Email != "jane@example.com" || event.SubscriptionID != "sub_1" {
		t.Fatalf("unexpected renewal fields: %+v", event)
	}
	if event.PaidAt.Unix() != 1777000400 {
		t.Fatalf("expected invoice paid_at, got %v", event.PaidAt)
	}
}

func TestParseWebhook_SubscriptionDeleted(t *testing.T) {
	g := newTestGateway(t, nil)
	payload := `{"id":"evt_4","object":"event","type":"customer.subscription.deleted","data":{"object":{"id":"sub_1","object":"subscription","customer":"cus_1","current_period_end":1780000000}}}`

	event, err := g.ParseWebhook([]byte(payload), sign(t, payload))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.Kind != domain.EventSubscriptionCancelled || event.CustomerID != "cus_1" {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.PeriodEnd == nil || event.PeriodEnd.Unix() != 1780000000 {
		t.Fatalf("unexpected period end: %v", event.PeriodEnd)
	}
}

func TestParseWebhook_UnhandledType(t *testing.T) {
	g := newTestGateway(t, nil)
	payload := `{"id":"evt_5","object":"event","type":"charge.refunded","data":{"object":{"id":"ch_1"}}}`

	event, err := g.ParseWebhook([]byte(payload), sign(t, payload))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.Kind != domain.EventIgnored || event.Type != "charge.refunded" {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestVerifySession(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || !strings.HasSuffix(r.URL.Path, "/v1/checkout/sessions/cs_paid") {
			http.Error(w, `{"error":{"message":"No such checkout.session","type":"invalid_request_error"}}`, http.StatusNotFound)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk_test_123" {
			t.Errorf("unexpected authorization header %q", got)
		}
		if !strings.Contains(r.URL.RawQuery, "payment_intent") {
			t.Errorf("expected payment_intent to be expanded, query %q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_paid","object":"checkout.session","payment_status":"paid","amount_total":4900,"customer_email":"jane@example.com","customer":"cus_9","metadata":{"plan":"gold","email":"payer@example.com"},"payment_intent":{"id":"pi_1","object":"payment_intent","created":1777000100}}`))
	})

	sess, err := g.VerifySession(context.Background(), "cs_paid")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sess.Paid || sess.Amount != 49 || sess.Email != "jane@example.com" || sess.CustomerID != "cus_9" {
		t.Fatalf("unexpected session: %+v", sess)
	}
	if sess.Plan != domain.PlanGold || sess.PayerEmail != "payer@example.com" {
		t.Fatalf("expected checkout metadata, got plan=%q email=%q", sess.Plan, sess.PayerEmail)
	}
	if sess.PaidAt.Unix() != 1777000100 {
		t.Fatalf("expected payment intent time, got %v", sess.PaidAt)
	}

	_, err = g.VerifySession(context.Background(), "cs_missing")
	if !errors.Is(err, domain.ErrPaymentNotCompleted) {
		t.Fatalf("expected ErrPaymentNotCompleted for unknown session, got %v", err)
	}
}

func TestCreateCheckoutSession(t *testing.T) {
	var form map[string][]string
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("failed to parse form: %v", err)
		}
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_new","object":"checkout.session","url":"https://checkout.stripe.com/c/pay/cs_new"}`))
	})

	policy, _ := domain.ResolvePlanPolicy(domain.PlanPremium)
	sess, err := g.CreateCheckoutSession(context.Background(), domain.CheckoutRequest{
		Plan:   domain.PlanPremium,
		Email:  "jane@example.com",
		Origin: "https://cvperfect.example/",
	}, policy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.ID != "cs_new" || sess.URL == "" {
		t.Fatalf("unexpected session: %+v", sess)
	}

	get := func(key string) string {
		if v := form[key]; len(v) > 0 {
			return v[0]
		}
		return ""
	}
	if get("mode") != "subscription" {
		t.Fatalf("expected subscription mode, got %q", get("mode"))
	}
	if get("line_items[0][price]") != "price_premium" {
		t.Fatalf("unexpected price %q", get("line_items[0][price]"))
	}
	if get("metadata[plan]") != "premium" || get("customer_email") != "jane@example.com" {
		t.Fatalf("unexpected metadata: %v", form)
	}
	want := "https://cvperfect.example/success?session_id={CHECKOUT_SESSION_ID}&plan=premium"
	if get("success_url") != want {
		t.Fatalf("expected success url %q, got %q", want, get("success_url"))
	}
}

func TestCreateCheckoutSession_MissingPrice(t *testing.T) {
	g := newTestGateway(t, nil)
	policy, _ := domain.ResolvePlanPolicy(domain.PlanGold)

	_, err := g.CreateCheckoutSession(context.Background(), domain.CheckoutRequest{
		Plan:  domain.PlanGold,
		Email: "jane@example.com",
	}, policy)
	if !errors.Is(err, domain.ErrPaymentGateway) {
		t.Fatalf("expected ErrPaymentGateway, got %v", err)
	}
}
