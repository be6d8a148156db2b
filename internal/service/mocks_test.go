package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"cvperfect-server/internal/domain"
)

type MockLogger struct {
	mu       sync.Mutex
	messages []string
}

func NewMockLogger() *MockLogger {
	return &MockLogger{
		messages: []string{},
	}
}

func (m *MockLogger) record(line string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, line)
}

func (m *MockLogger) Info(msg string, args ...interface{}) {
	m.record("INFO: " + msg)
}

func (m *MockLogger) Error(msg string, err error, args ...interface{}) {
	if err != nil {
		msg += " - " + err.Error()
	}
	m.record("ERROR: " + msg)
}

func (m *MockLogger) Debug(msg string, args ...interface{}) {
	m.record("DEBUG: " + msg)
}

func (m *MockLogger) Warn(msg string, args ...interface{}) {
	m.record("WARN: " + msg)
}

// mockUserRepo is an in-memory domain.UserRepository.
type mockUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User

	findErr   error
	upsertErr error
	// conflicts makes the next N IncrementUsage calls lose their race.
	conflicts int

	upserts    int
	increments int
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*domain.User)}
}

func (m *mockUserRepo) put(u *domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.Email = domain.NormalizeEmail(u.Email)
	m.users[u.Email] = u
}

func (m *mockUserRepo) get(email string) *domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[domain.NormalizeEmail(email)]
	if !ok {
		return nil
	}
	cp := *u
	return &cp
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	if u := m.get(email); u != nil {
		return u, nil
	}
	return nil, domain.ErrUserNotFound
}

func (m *mockUserRepo) UpsertByEmail(ctx context.Context, email string, ent domain.Entitlement, payment domain.PaymentRecord) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	if m.upsertErr != nil {
		return nil, m.upsertErr
	}
	email = domain.NormalizeEmail(email)
	paidAt := payment.PaidAt
	u := &domain.User{
		Email:           email,
		Plan:            ent.Plan,
		PlanType:        ent.PlanType,
		PlanPrice:       payment.Amount,
		UsageCount:      0,
		UsageLimit:      ent.UsageLimit,
		ExpiresAt:       ent.ExpiresAt,
		StripeSessionID: payment.Reference,
		LastPaymentAt:   &paidAt,
	}
	if payment.CustomerID != "" {
		id := payment.CustomerID
		u.StripeCustomerID = &id
	}
	if existing, ok := m.users[email]; ok {
		u.ID = existing.ID
	}
	m.users[email] = u
	cp := *u
	return &cp, nil
}

func (m *mockUserRepo) IncrementUsage(ctx context.Context, email string, expectedCount int) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflicts > 0 {
		m.conflicts--
		return nil, domain.ErrUsageConflict
	}
	u, ok := m.users[domain.NormalizeEmail(email)]
	if !ok || u.UsageCount != expectedCount {
		return nil, domain.ErrUsageConflict
	}
	u.UsageCount++
	m.increments++
	cp := *u
	return &cp, nil
}

func (m *mockUserRepo) ResetUsage(ctx context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[domain.NormalizeEmail(email)]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	u.UsageCount = 0
	cp := *u
	return &cp, nil
}

func (m *mockUserRepo) MarkCancelled(ctx context.Context, email string, expiresAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[domain.NormalizeEmail(email)]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.PlanType = domain.PlanTypeCancelled
	if expiresAt != nil {
		u.ExpiresAt = expiresAt
	}
	return nil
}

func (m *mockUserRepo) List(ctx context.Context, filter domain.UserFilter) ([]*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.User
	for _, u := range m.users {
		if filter.Plan != "" && u.Plan != filter.Plan {
			continue
		}
		cp := *u
		out = append(out, &cp)
	}
	return out, nil
}

// mockLedger is an in-memory domain.PaymentLedger.
type mockLedger struct {
	mu       sync.Mutex
	claimed  map[string]domain.ProcessedPayment
	claimErr error
	releases int
}

func newMockLedger() *mockLedger {
	return &mockLedger{claimed: make(map[string]domain.ProcessedPayment)}
}

func (m *mockLedger) Claim(ctx context.Context, payment domain.ProcessedPayment) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimErr != nil {
		return false, m.claimErr
	}
	if _, ok := m.claimed[payment.Reference]; ok {
		return false, nil
	}
	m.claimed[payment.Reference] = payment
	return true, nil
}

func (m *mockLedger) Release(ctx context.Context, reference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releases++
	delete(m.claimed, reference)
	return nil
}

func (m *mockLedger) has(reference string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.claimed[reference]
	return ok
}

// mockGateway is a scripted domain.PaymentGateway.
type mockGateway struct {
	event      *domain.PaymentEvent
	parseErr   error
	session    *domain.VerifiedSession
	sessionErr error
	emails     map[string]string

	checkoutReq    domain.CheckoutRequest
	checkoutPolicy domain.PlanPolicy
	verifyCalls    int
}

func (m *mockGateway) CreateCheckoutSession(ctx context.Context, req domain.CheckoutRequest, policy domain.PlanPolicy) (*domain.CheckoutSession, error) {
	m.checkoutReq = req
	m.checkoutPolicy = policy
	return &domain.CheckoutSession{ID: "cs_new", URL: "https://checkout.example/cs_new"}, nil
}

func (m *mockGateway) VerifySession(ctx context.Context, sessionID string) (*domain.VerifiedSession, error) {
	m.verifyCalls++
	if m.sessionErr != nil {
		return nil, m.sessionErr
	}
	return m.session, nil
}

func (m *mockGateway) ParseWebhook(payload []byte, signature string) (*domain.PaymentEvent, error) {
	if m.parseErr != nil {
		return nil, m.parseErr
	}
	cp := *m.event
	return &cp, nil
}

func (m *mockGateway) CustomerEmail(ctx context.Context, customerID string) (string, error) {
	return m.emails[customerID], nil
}

// mockGenerator answers by instruction: CV prompts get cvOut, cover letters
// get letterOut.
type mockGenerator struct {
	mu        sync.Mutex
	cvOut     string
	letterOut string
	cvErr     error
	letterErr error
	calls     int
	prompts   []string
}

func (m *mockGenerator) Generate(ctx context.Context, instruction, prompt string) (string, error) {
	m.mu.Lock()
	m.calls++
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()

	if strings.Contains(instruction, "cover letter") {
		return m.letterOut, m.letterErr
	}
	return m.cvOut, m.cvErr
}

type stubExtractor struct{}

func (stubExtractor) ExtractPDF(pdfBytes []byte) (*domain.ParsedCV, error) {
	return &domain.ParsedCV{Text: string(pdfBytes), PageCount: 1}, nil
}

func (stubExtractor) JobPostingText(raw string) string {
	return strings.TrimSpace(raw)
}

func fixedNow() time.Time {
	return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
}

func timePtr(t time.Time) *time.Time {
	return &t
}
