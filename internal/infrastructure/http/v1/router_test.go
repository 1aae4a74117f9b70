package v1

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardvault/internal/core/apperror"
	appctx "cardvault/internal/core/context"
	"cardvault/internal/core/id"
	"cardvault/internal/core/types"
	"cardvault/internal/domain/cardpool"
	"cardvault/internal/domain/cards"
	"cardvault/internal/infrastructure/http/v1/handlers"
	"cardvault/internal/infrastructure/storage/postgres"
	"cardvault/pkg/logger"
)

var (
	adminID = id.New()
	userID  = id.New()
)

type fakeValidator struct{}

func (fakeValidator) ValidateToken(token string) (*appctx.UserContext, error) {
	switch token {
	case "admin-token":
		return &appctx.UserContext{UserID: adminID.String(), Roles: []string{appctx.RoleAdmin}}, nil
	case "user-token":
		return &appctx.UserContext{UserID: userID.String(), Roles: []string{appctx.RoleUser}}, nil
	}
	return nil, errors.New("bad token")
}

type fakeCards struct {
	handlers.CardService
	issued    int
	issueErr  error
	transfers []cards.TransferRequest
	panicking bool
}

func (f *fakeCards) Issue(_ context.Context, holderID id.ID) (*cards.View, error) {
	if f.issueErr != nil {
		return nil, f.issueErr
	}
	f.issued++
	return &cards.View{
		ID:           id.New(),
		MaskedNumber: "************2620",
		HolderID:     holderID,
		Status:       cards.StatusActive,
		Balance:      types.Zero(),
		ExpiryDate:   "2029-10-31",
	}, nil
}

func (f *fakeCards) ListMine(context.Context, cards.Page, string) (*cards.List, error) {
	if f.panicking {
		panic("boom")
	}
	return &cards.List{Items: []cards.View{}, Limit: 20}, nil
}

func (f *fakeCards) Transfer(_ context.Context, req cards.TransferRequest) (*cards.TransferResult, error) {
	f.transfers = append(f.transfers, req)
	return &cards.TransferResult{
		TransferID:  id.New(),
		FromCardID:  req.FromCardID,
		ToCardID:    req.ToCardID,
		Amount:      req.Amount,
		FromBalance: types.MustMoney("10"),
	}, nil
}

type fakePool struct{ refills int }

func (p *fakePool) Stats() cardpool.Stats {
	return cardpool.Stats{Buffered: 7, Capacity: 10, LowWaterMark: 3}
}

func (p *fakePool) Refill(context.Context) (bool, error) {
	p.refills++
	return true, nil
}

type fakeStock int

func (s fakeStock) Count(context.Context) (int, error) { return int(s), nil }

type fakeIdempotency struct {
	replay    *postgres.IdempotencyReplay
	completed map[string]int
	released  []string
}

func (s *fakeIdempotency) AcquireKey(context.Context, string, string, string, string) (*postgres.IdempotencyReplay, error) {
	return s.replay, nil
}

func (s *fakeIdempotency) CompleteKey(_ context.Context, key string, status int, _ string, _ any) error {
	s.completed[key] = status
	return nil
}

func (s *fakeIdempotency) FailKey(_ context.Context, key string, status int, _ string, _ any) error {
	s.completed[key] = status
	return nil
}

func (s *fakeIdempotency) ReleaseKey(_ context.Context, key string) error {
	s.released = append(s.released, key)
	return nil
}

type failingCheck struct{}

func (failingCheck) Ready(context.Context) error { return errors.New("connection refused") }

type testServer struct {
	router *gin.Engine
	cards  *fakeCards
	pool   *fakePool
	idem   *fakeIdempotency
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	s := &testServer{
		cards: &fakeCards{},
		pool:  &fakePool{},
		idem:  &fakeIdempotency{completed: map[string]int{}},
	}
	reg := prometheus.NewRegistry()
	s.router = NewRouter(RouterConfig{
		Logger:          logger.NewNop(),
		JWTValidator:    fakeValidator{},
		Cards:           s.cards,
		Pool:            s.pool,
		PoolStock:       fakeStock(42),
		Idempotency:     s.idem,
		ReadinessChecks: map[string]handlers.ReadinessCheck{"database": failingCheck{}},
		Registerer:      reg,
		Gatherer:        reg,
	})
	return s
}

func (s *testServer) do(method, path, token, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestRouter_Health(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/health/live", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/health/ready", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "error", decode(t, w)["status"])
}

func TestRouter_RequiresToken(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/api/v1/cards", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, apperror.CodeUnauthorized, decode(t, w)["code"])

	w = s.do(http.MethodGet, "/api/v1/cards", "forged", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_RoleSeparation(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/v1/admin/cards", "user-token", `{"holderId":"`+userID.String()+`"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Zero(t, s.cards.issued)

	w = s.do(http.MethodGet, "/api/v1/cards", "admin-token", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodGet, "/api/v1/admin/pool", "user-token", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRouter_IssueCard(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/v1/admin/cards", "admin-token", `{"holderId":"`+userID.String()+`"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, "************2620", body["maskedNumber"])
	assert.Equal(t, "0.00", body["balance"])
	assert.Equal(t, "active", body["status"])
}

func TestRouter_IssueCardUnavailable(t *testing.T) {
	s := newTestServer(t)
	s.cards.issueErr = apperror.NewCardGenerationFailed(cardpool.ErrLedgerBusy)

	w := s.do(http.MethodPost, "/api/v1/admin/cards", "admin-token", `{"holderId":"`+userID.String()+`"}`,
		"Idempotency-Key", "k1")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, apperror.CodeCardGenerationFailed, decode(t, w)["code"])

	// A retryable failure frees the key instead of recording it.
	assert.Equal(t, []string{adminID.String() + "/k1"}, s.idem.released)
	assert.Empty(t, s.idem.completed)
}

func TestRouter_IssueCardValidation(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/v1/admin/cards", "admin-token", `{"holderId":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperror.CodeValidation, decode(t, w)["code"])
}

func TestRouter_Transfer(t *testing.T) {
	s := newTestServer(t)
	from, to := id.New(), id.New()

	w := s.do(http.MethodPost, "/api/v1/cards/transfer", "user-token",
		`{"fromCardId":"`+from.String()+`","toCardId":"`+to.String()+`","amount":"12.5"}`,
		"Idempotency-Key", "t-1")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, "12.50", body["amount"])
	require.Len(t, s.cards.transfers, 1)
	assert.Equal(t, from, s.cards.transfers[0].FromCardID)
	assert.Equal(t, http.StatusOK, s.idem.completed[userID.String()+"/t-1"])

	w = s.do(http.MethodPost, "/api/v1/cards/transfer", "user-token",
		`{"fromCardId":"`+from.String()+`","toCardId":"`+to.String()+`","amount":"1.001"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, s.cards.transfers, 1)
}

func TestRouter_IdempotentReplay(t *testing.T) {
	s := newTestServer(t)
	s.idem.replay = &postgres.IdempotencyReplay{
		StatusCode:  http.StatusOK,
		ContentType: "application/json",
		Body:        []byte(`{"transferId":"replayed"}`),
	}

	w := s.do(http.MethodPost, "/api/v1/cards/transfer", "user-token",
		`{"fromCardId":"`+id.New().String()+`","toCardId":"`+id.New().String()+`","amount":"1"}`,
		"Idempotency-Key", "t-1")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "true", w.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, "replayed", decode(t, w)["transferId"])
	assert.Empty(t, s.cards.transfers)
}

func TestRouter_PoolEndpoints(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/api/v1/admin/pool", "admin-token", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 7, body["buffered"])
	assert.EqualValues(t, 42, body["stored"])

	w = s.do(http.MethodPost, "/api/v1/admin/pool/fill", "admin-token", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["ran"])
	assert.Equal(t, 1, s.pool.refills)
}

func TestRouter_RecoversFromPanic(t *testing.T) {
	s := newTestServer(t)
	s.cards.panicking = true

	w := s.do(http.MethodGet, "/api/v1/cards", "user-token", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, apperror.CodeInternal, decode(t, w)["code"])
}

func TestRouter_Metrics(t *testing.T) {
	s := newTestServer(t)
	s.do(http.MethodGet, "/health/live", "", "")

	w := s.do(http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `cardvault_http_requests_total{method="GET",route="/health/live",status="200"} 1`)
}
