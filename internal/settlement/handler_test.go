package settlement

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/flash_settlement/internal/authority"
)

func setupHandlerApp(t *testing.T) (*fiber.App, *fixture) {
	t.Helper()
	svc, f, _ := newTestService(t)
	h := NewHandler(svc)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", f.caller.PrincipalID())
		return c.Next()
	})
	app.Get("/settlements/context", h.Context)
	app.Get("/settlements/stats", h.Stats)
	app.Post("/settlements", h.Execute)
	app.Get("/settlements/:settlementId", h.Get)
	return app, f
}

func postSettlement(t *testing.T, app *fiber.App, loan, minProfit uint64, handle string) (int, map[string]any) {
	t.Helper()
	body := fmt.Sprintf(`{"loan_amount":%d,"min_profit":%d,"reserve_account":%q,"destination_account":%q,
        "funding_account":%q,"payout_account":%q,"introspection_handle":%q}`,
		loan, minProfit, reserveCode, destinationCode, fundingCode, payoutCode, handle)
	req := httptest.NewRequest(fiber.MethodPost, "/settlements", strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("decode %s: %v", payload, err)
	}
	return resp.StatusCode, decoded
}

func TestHandlerExecuteCommits(t *testing.T) {
	app, _ := setupHandlerApp(t)

	status, body := postSettlement(t, app, 10_000, 50, authority.CanonicalIntrospection.String())
	if status != fiber.StatusCreated {
		t.Fatalf("expected %d got %d: %v", fiber.StatusCreated, status, body)
	}
	settlement, _ := body["settlement"].(map[string]any)
	if settlement["repay_amount"].(float64) != 10_100 {
		t.Fatalf("unexpected repay amount %v", settlement["repay_amount"])
	}

	id, _ := settlement["settlement_id"].(string)
	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/settlements/"+id, nil))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected %d got %d", fiber.StatusOK, resp.StatusCode)
	}
}

func TestHandlerExecuteErrorStatuses(t *testing.T) {
	app, _ := setupHandlerApp(t)
	canonical := authority.CanonicalIntrospection.String()

	cases := []struct {
		name      string
		loan      uint64
		minProfit uint64
		handle    string
		status    int
		kind      string
	}{
		{"not profitable", 10_000, 200, canonical, fiber.StatusConflict, KindNotProfitable},
		{"overflow", 18_446_744_073_709_551_615, 0, canonical, fiber.StatusUnprocessableEntity, KindMathOverflow},
		{"forged handle", 10_000, 0, authority.Derive("x", "y").String(), fiber.StatusForbidden, KindAtomicityViolation},
		{"missing handle", 10_000, 0, "", fiber.StatusForbidden, KindAtomicityViolation},
		{"reserve short", 5_000_000, 0, canonical, fiber.StatusBadRequest, KindTransferFailure},
	}
	for _, tc := range cases {
		status, body := postSettlement(t, app, tc.loan, tc.minProfit, tc.handle)
		if status != tc.status {
			t.Fatalf("%s: expected %d got %d: %v", tc.name, tc.status, status, body)
		}
		if body["error_kind"] != tc.kind {
			t.Fatalf("%s: expected kind %s got %v", tc.name, tc.kind, body["error_kind"])
		}
	}
}

func TestHandlerContextAndStats(t *testing.T) {
	app, f := setupHandlerApp(t)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/settlements/context", nil))
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	var ctxBody map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&ctxBody); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ctxBody["reserve_authority"] != f.program.Identity().String() {
		t.Fatalf("unexpected reserve authority %s", ctxBody["reserve_authority"])
	}
	if ctxBody["introspection_handle"] != authority.CanonicalIntrospection.String() {
		t.Fatalf("unexpected introspection handle %s", ctxBody["introspection_handle"])
	}

	postSettlement(t, app, 10_000, 0, authority.CanonicalIntrospection.String())
	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/settlements/stats", nil))
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	var stats map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats["committed"] != 1 || stats["total_profit"] != 100 {
		t.Fatalf("unexpected stats %v", stats)
	}
}
