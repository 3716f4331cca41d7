package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/flash_settlement/internal/config"
	"github.com/congo-pay/flash_settlement/internal/logging"
)

func testConfig() config.Config {
	return config.Config{
		AppName:         "FlashSettlementTest",
		AppEnv:          "test",
		Port:            "0",
		JWTSecret:       "access-secret",
		RefreshSecret:   "refresh-secret",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
		IdempotencyTTL:  time.Minute,
		ProgramID:       "flash-settlement-test",
		ReserveLabel:    "flash_loan",
		ProfitDivisor:   100,
		SettlementRate:  100,
		SettlementBurst: 100,
		Reserves:        []config.Reserve{{Asset: "USDC", Code: "reserve:USDC", Liquidity: 1_000_000}},
	}
}

type client struct {
	t     *testing.T
	app   *fiber.App
	token string
}

func (c *client) do(method, path string, body any) (int, map[string]any) {
	c.t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if c.token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+c.token)
	}
	resp, err := c.app.Test(req, -1)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.t.Fatalf("read body: %v", err)
	}
	out := map[string]any{}
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		if err := json.Unmarshal(raw, &out); err != nil {
			c.t.Fatalf("decode %s %s: %v (%s)", method, path, err, raw)
		}
	}
	return resp.StatusCode, out
}

func (c *client) mustStatus(want int, method, path string, body any) map[string]any {
	c.t.Helper()
	status, out := c.do(method, path, body)
	if status != want {
		c.t.Fatalf("%s %s: expected %d, got %d (%v)", method, path, want, status, out)
	}
	return out
}

func (c *client) balance(code string) float64 {
	c.t.Helper()
	out := c.mustStatus(http.StatusOK, http.MethodGet, "/api/v1/accounts/"+code+"/balance", nil)
	return out["balance"].(float64)
}

func TestSettlementFlowInMemory(t *testing.T) {
	srv, err := New(context.Background(), testConfig(), nil, nil, logging.Discard())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	c := &client{t: t, app: srv.App()}

	c.mustStatus(http.StatusOK, http.MethodGet, "/healthz", nil)
	c.mustStatus(http.StatusUnauthorized, http.MethodPost, "/api/v1/settlements", map[string]any{"loan_amount": 1})

	creds := map[string]any{"handle": "desk-1", "pin": "1234", "device_id": "d1"}
	c.mustStatus(http.StatusCreated, http.MethodPost, "/api/v1/identity/register", creds)
	login := c.mustStatus(http.StatusOK, http.MethodPost, "/api/v1/auth/login", creds)
	c.token = login["access_token"].(string)

	open := func() string {
		out := c.mustStatus(http.StatusCreated, http.MethodPost, "/api/v1/accounts", map[string]any{"asset": "USDC"})
		return out["code"].(string)
	}
	funding, destination, payout := open(), open(), open()

	deposit := map[string]any{"card_number": "4111111111111111", "expiry": "12/29", "cvv": "123", "amount": 20_000, "client_tx_id": "dep-1"}
	c.mustStatus(http.StatusCreated, http.MethodPost, "/api/v1/accounts/"+funding+"/deposits", deposit)
	c.mustStatus(http.StatusOK, http.MethodPost, "/api/v1/accounts/"+funding+"/deposits", deposit)

	ctxOut := c.mustStatus(http.StatusOK, http.MethodGet, "/api/v1/settlements/context", nil)
	submission := map[string]any{
		"loan_amount":          10_000,
		"min_profit":           50,
		"reserve_account":      "reserve:USDC",
		"destination_account":  destination,
		"funding_account":      funding,
		"payout_account":       payout,
		"introspection_handle": ctxOut["introspection_handle"],
	}
	committed := c.mustStatus(http.StatusCreated, http.MethodPost, "/api/v1/settlements", submission)
	record := committed["settlement"].(map[string]any)
	if record["outcome"] != "committed" || record["profit"].(float64) != 100 || record["repay_amount"].(float64) != 10_100 {
		t.Fatalf("unexpected settlement %v", record)
	}

	if got := c.balance(funding); got != 9_800 {
		t.Fatalf("expected funding 9800, got %v", got)
	}
	if got := c.balance(destination); got != 10_000 {
		t.Fatalf("expected destination 10000, got %v", got)
	}
	if got := c.balance(payout); got != 100 {
		t.Fatalf("expected payout 100, got %v", got)
	}

	submission["min_profit"] = 500
	aborted := c.mustStatus(http.StatusConflict, http.MethodPost, "/api/v1/settlements", submission)
	if aborted["error_kind"] != "not_profitable" {
		t.Fatalf("expected not_profitable, got %v", aborted)
	}
	if got := c.balance(destination); got != 10_000 {
		t.Fatalf("aborted settlement moved funds: destination %v", got)
	}

	submission["min_profit"] = 0
	submission["introspection_handle"] = ""
	forged := c.mustStatus(http.StatusForbidden, http.MethodPost, "/api/v1/settlements", submission)
	if forged["error_kind"] != "atomicity_violation" {
		t.Fatalf("expected atomicity_violation, got %v", forged)
	}

	c.mustStatus(http.StatusOK, http.MethodGet, "/api/v1/settlements/"+record["settlement_id"].(string), nil)
	stats := c.mustStatus(http.StatusOK, http.MethodGet, "/api/v1/settlements/stats", nil)
	if stats["total"].(float64) != 3 || stats["committed"].(float64) != 1 {
		t.Fatalf("unexpected stats %v", stats)
	}

	report, err := srv.reconcile.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(report.Shortfalls) != 0 {
		t.Fatalf("reserve lost principal: %+v", report.Shortfalls)
	}

	metricsStatus, _ := c.do(http.MethodGet, "/metrics", nil)
	if metricsStatus != http.StatusOK {
		t.Fatalf("expected metrics 200, got %d", metricsStatus)
	}

	c.mustStatus(http.StatusOK, http.MethodPost, "/api/v1/auth/logout", nil)
	c.mustStatus(http.StatusUnauthorized, http.MethodGet, "/api/v1/me", nil)
}
