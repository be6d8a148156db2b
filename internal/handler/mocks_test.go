package handler

import (
	"context"

	"cvperfect-server/internal/config"
	"cvperfect-server/internal/domain"
)

type mockEntitlementService struct {
	checkoutReq   domain.CheckoutRequest
	session       *domain.CheckoutSession
	payload       []byte
	signature     string
	webhookResult *domain.WebhookResult
	provisionReq  domain.ProvisionRequest
	user          *domain.User
	view          *domain.EntitlementView
	filter        domain.UserFilter
	users         []*domain.User
	err           error
}

func (m *mockEntitlementService) CreateCheckout(ctx context.Context, req domain.CheckoutRequest) (*domain.CheckoutSession, error) {
	m.checkoutReq = req
	return m.session, m.err
}

func (m *mockEntitlementService) HandleWebhook(ctx context.Context, payload []byte, signature string) (*domain.WebhookResult, error) {
	m.payload = payload
	m.signature = signature
	return m.webhookResult, m.err
}

func (m *mockEntitlementService) ProvisionFromSession(ctx context.Context, req domain.ProvisionRequest) (*domain.User, error) {
	m.provisionReq = req
	return m.user, m.err
}

func (m *mockEntitlementService) GetEntitlement(ctx context.Context, email string) (*domain.EntitlementView, error) {
	return m.view, m.err
}

func (m *mockEntitlementService) ListUsers(ctx context.Context, filter domain.UserFilter) ([]*domain.User, error) {
	m.filter = filter
	return m.users, m.err
}

type mockUsageService struct {
	decision *domain.UsageDecision
	user     *domain.User
	email    string
	err      error
}

func (m *mockUsageService) Authorize(ctx context.Context, email string) (*domain.UsageDecision, *domain.User, error) {
	m.email = email
	return m.decision, m.user, m.err
}

func (m *mockUsageService) Commit(ctx context.Context, email string) (*domain.User, error) {
	m.email = email
	return m.user, m.err
}

func (m *mockUsageService) Reset(ctx context.Context, email string) (*domain.User, error) {
	m.email = email
	return m.user, m.err
}

type mockExportService struct {
	result *domain.ExportResult
	err    error
}

func (m *mockExportService) Export(ctx context.Context, email string, format string) (*domain.ExportResult, error) {
	return m.result, m.err
}

type mockOptimizeService struct {
	req    domain.OptimizeRequest
	result *domain.OptimizeResult
	err    error
}

func (m *mockOptimizeService) Optimize(ctx context.Context, req domain.OptimizeRequest) (*domain.OptimizeResult, error) {
	m.req = req
	return m.result, m.err
}

type mockExtractor struct {
	got    []byte
	parsed *domain.ParsedCV
	err    error
}

func (m *mockExtractor) ExtractPDF(pdfBytes []byte) (*domain.ParsedCV, error) {
	m.got = pdfBytes
	return m.parsed, m.err
}

func (m *mockExtractor) JobPostingText(raw string) string {
	return raw
}

func newTestContainer() *config.Container {
	return &config.Container{
		Config: &config.AppConfig{
			FrontendOrigin: "https://cvperfect.example",
			AdminSecret:    "s3cret",
			MaxUploadSize:  1 << 20,
		},
		Logger: NewMockHandlerLogger(),
	}
}
