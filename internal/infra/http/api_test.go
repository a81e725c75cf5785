package http

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

	"github.com/shopspring/decimal"

	"github.com/Spok95/factory-bot/internal/domain/materials"
	"github.com/Spok95/factory-bot/internal/domain/safety"
	"github.com/Spok95/factory-bot/internal/domain/users"
	"github.com/Spok95/factory-bot/internal/infra/idempotency"
	"github.com/Spok95/factory-bot/internal/infra/logger"
	"github.com/Spok95/factory-bot/internal/production"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeAuth map[string]*users.User

func (f fakeAuth) Authenticate(_ context.Context, login, password string) (*users.User, error) {
	u, ok := f[login]
	if !ok || password != "secret-"+login {
		return nil, users.ErrInvalidCredentials
	}
	if !u.Approved() {
		return nil, users.ErrNotApproved
	}
	return u, nil
}

var accounts = fakeAuth{
	"ana":   {ID: 1, Login: "ana", Name: "Ana", Role: users.RoleOperator, Status: users.StatusApproved},
	"chefe": {ID: 2, Login: "chefe", Name: "Chefe", Role: users.RoleAdmin, Status: users.StatusApproved},
	"novo":  {ID: 3, Login: "novo", Name: "Novo", Role: users.RoleOperator, Status: users.StatusPending},
}

func newTestServer(t *testing.T) (*httptest.Server, *production.MemStore) {
	t.Helper()
	store := production.NewMemStore()
	ctx := context.Background()
	for _, m := range []materials.Material{
		{Name: "Resina", UnitCost: d("15"), OnHand: d("500"), Unit: materials.UnitKg, MinThreshold: d("100")},
		{Name: "Solvente", UnitCost: d("8.5"), OnHand: d("300"), Unit: materials.UnitKg, MinThreshold: d("50")},
		{Name: "Pigmento", UnitCost: d("25"), OnHand: d("100"), Unit: materials.UnitKg, MinThreshold: d("90")},
	} {
		if _, err := store.Materials().Create(ctx, m); err != nil {
			t.Fatal(err)
		}
	}
	for _, l := range []struct{ ing, qty string }{{"Resina", "60"}, {"Solvente", "30"}, {"Pigmento", "10"}} {
		if err := store.Recipes().UpsertLine(ctx, "Tinta Base", l.ing, d(l.qty)); err != nil {
			t.Fatal(err)
		}
	}

	return serve(t, store), store
}

func serve(t *testing.T, store production.Store) *httptest.Server {
	t.Helper()
	svc := production.NewService(store, idempotency.NewLocal(), logger.Nop())
	tokens, err := users.NewTokens(testSecret, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	api := NewAPI(svc, accounts, tokens, logger.Nop(), time.UTC, materials.DefaultLowFactor)
	srv := httptest.NewServer(New(":0", api.Routes(), true).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func login(t *testing.T, srv *httptest.Server, who string) string {
	t.Helper()
	resp := do(t, srv, "", http.MethodPost, "/api/login", map[string]string{"login": who, "password": "secret-" + who})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login %s: %d", who, resp.StatusCode)
	}
	var out struct{ Token string }
	decodeBody(t, resp, &out)
	return out.Token
}

func do(t *testing.T, srv *httptest.Server, token, method, path string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := do(t, srv, "", http.MethodGet, "/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health = %d", resp.StatusCode)
	}
}

func TestLogin(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		login, password string
		want            int
	}{
		{"ana", "secret-ana", http.StatusOK},
		{"ana", "wrong", http.StatusUnauthorized},
		{"ghost", "secret-ghost", http.StatusUnauthorized},
		{"novo", "secret-novo", http.StatusForbidden},
	}
	for _, tt := range tests {
		resp := do(t, srv, "", http.MethodPost, "/api/login", map[string]string{"login": tt.login, "password": tt.password})
		if resp.StatusCode != tt.want {
			t.Errorf("login %s/%s = %d, want %d", tt.login, tt.password, resp.StatusCode, tt.want)
		}
	}
}

func TestAuthRequired(t *testing.T) {
	srv, _ := newTestServer(t)

	if resp := do(t, srv, "", http.MethodGet, "/api/products", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token = %d", resp.StatusCode)
	}
	if resp := do(t, srv, "garbage", http.MethodGet, "/api/products", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad token = %d", resp.StatusCode)
	}

	op := login(t, srv, "ana")
	body := map[string]any{"name": "Agua", "unit_cost": "0.01", "unit": "l"}
	if resp := do(t, srv, op, http.MethodPost, "/api/materials", body); resp.StatusCode != http.StatusForbidden {
		t.Errorf("operator creating material = %d, want 403", resp.StatusCode)
	}
	admin := login(t, srv, "chefe")
	if resp := do(t, srv, admin, http.MethodPost, "/api/materials", body); resp.StatusCode != http.StatusCreated {
		t.Errorf("admin creating material = %d", resp.StatusCode)
	}
	if resp := do(t, srv, admin, http.MethodPost, "/api/materials", body); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("duplicate material = %d, want 400", resp.StatusCode)
	}
}

func TestRecipeEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	tok := login(t, srv, "ana")

	resp := do(t, srv, tok, http.MethodGet, "/api/recipes/Tinta%20Base", nil)
	var out struct {
		Lines []struct {
			Ingredient string
			PlannedQty decimal.Decimal `json:"planned_qty"`
		}
	}
	decodeBody(t, resp, &out)
	if len(out.Lines) != 3 || out.Lines[0].Ingredient != "Resina" {
		t.Errorf("lines = %+v", out.Lines)
	}

	resp = do(t, srv, tok, http.MethodGet, "/api/recipes/Verniz", nil)
	decodeBody(t, resp, &out)
	if resp.StatusCode != http.StatusOK || len(out.Lines) != 0 {
		t.Errorf("unknown product: %d %+v", resp.StatusCode, out.Lines)
	}
}

func TestQuoteAndFinalize(t *testing.T) {
	srv, store := newTestServer(t)
	tok := login(t, srv, "ana")

	req := map[string]any{"product": "Tinta Base", "multiplier": 1, "actual": map[string]any{"Resina": "65"}}
	resp := do(t, srv, tok, http.MethodPost, "/api/batches/quote", req)
	var q struct {
		ActualCost  string `json:"actual_cost"`
		Variance    string
		Status      string
		CanFinalize bool `json:"can_finalize"`
	}
	decodeBody(t, resp, &q)
	if q.ActualCost != "1490.00" || q.Variance != "-75.00" || q.Status != "loss" || !q.CanFinalize {
		t.Errorf("quote = %+v", q)
	}

	req["request_key"] = "abc"
	resp = do(t, srv, tok, http.MethodPost, "/api/batches", req)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("finalize = %d", resp.StatusCode)
	}
	var rec struct {
		ID       int64
		Operator string
		Replayed bool
	}
	decodeBody(t, resp, &rec)
	if rec.ID != 1 || rec.Operator != "Ana" {
		t.Errorf("record = %+v", rec)
	}

	resp = do(t, srv, tok, http.MethodPost, "/api/batches", req)
	decodeBody(t, resp, &rec)
	if resp.StatusCode != http.StatusOK || !rec.Replayed || rec.ID != 1 {
		t.Errorf("replay = %d %+v", resp.StatusCode, rec)
	}

	m, _ := store.Materials().GetByName(context.Background(), "Resina")
	if !m.OnHand.Equal(d("435")) {
		t.Errorf("Resina = %s", m.OnHand)
	}
}

func TestBatchMultiplierDefaultsToOne(t *testing.T) {
	srv, store := newTestServer(t)
	tok := login(t, srv, "ana")
	req := map[string]any{"product": "Tinta Base"}

	resp := do(t, srv, tok, http.MethodPost, "/api/batches/quote", req)
	var q struct {
		Multiplier  decimal.Decimal
		PlannedCost string `json:"planned_cost"`
	}
	decodeBody(t, resp, &q)
	if resp.StatusCode != http.StatusOK || !q.Multiplier.Equal(d("1")) || q.PlannedCost != "1415.00" {
		t.Errorf("quote = %d %+v", resp.StatusCode, q)
	}

	resp = do(t, srv, tok, http.MethodPost, "/api/batches", req)
	var rec struct {
		PlannedCost string `json:"planned_cost"`
	}
	decodeBody(t, resp, &rec)
	if resp.StatusCode != http.StatusCreated || rec.PlannedCost != "1415.00" {
		t.Errorf("finalize = %d %+v", resp.StatusCode, rec)
	}
	m, _ := store.Materials().GetByName(context.Background(), "Resina")
	if !m.OnHand.Equal(d("440")) {
		t.Errorf("Resina = %s, want 440", m.OnHand)
	}

	if resp := do(t, srv, tok, http.MethodPost, "/api/batches/quote", map[string]any{"product": "Tinta Base", "multiplier": -1}); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("negative multiplier = %d, want 400", resp.StatusCode)
	}
}

func TestFinalizeErrors(t *testing.T) {
	srv, _ := newTestServer(t)
	tok := login(t, srv, "ana")

	tests := []struct {
		name string
		body any
		want int
	}{
		{"shortage", map[string]any{"product": "Tinta Base", "multiplier": 20}, http.StatusConflict},
		{"zero multiplier", map[string]any{"product": "Tinta Base", "multiplier": 0}, http.StatusBadRequest},
		{"negative actual", map[string]any{"product": "Tinta Base", "multiplier": 1, "actual": map[string]any{"Resina": -1}}, http.StatusBadRequest},
		{"unknown product", map[string]any{"product": "Verniz", "multiplier": 1}, http.StatusBadRequest},
		{"bad json", map[string]any{"produto": "x"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, srv, tok, http.MethodPost, "/api/batches", tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}

	resp := do(t, srv, tok, http.MethodPost, "/api/batches", map[string]any{"product": "Tinta Base", "multiplier": 20})
	var out struct {
		Shortages []struct{ Ingredient string }
	}
	decodeBody(t, resp, &out)
	if len(out.Shortages) != 3 {
		t.Errorf("shortages = %+v", out.Shortages)
	}
}

func TestHistoryAndReport(t *testing.T) {
	srv, _ := newTestServer(t)
	tok := login(t, srv, "ana")

	if resp := do(t, srv, tok, http.MethodPost, "/api/batches", map[string]any{"product": "Tinta Base", "multiplier": 1}); resp.StatusCode != http.StatusCreated {
		t.Fatalf("finalize = %d", resp.StatusCode)
	}

	resp := do(t, srv, tok, http.MethodGet, "/api/history", nil)
	var list []struct {
		ID          int64
		PlannedCost string `json:"planned_cost"`
	}
	decodeBody(t, resp, &list)
	if len(list) != 1 || list[0].PlannedCost != "1415.00" {
		t.Errorf("history = %+v", list)
	}

	resp = do(t, srv, tok, http.MethodGet, "/api/history/1", nil)
	var rec struct{ Items []struct{ Ingredient string } }
	decodeBody(t, resp, &rec)
	if len(rec.Items) != 3 {
		t.Errorf("items = %+v", rec.Items)
	}

	if resp := do(t, srv, tok, http.MethodGet, "/api/history/99", nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing record = %d", resp.StatusCode)
	}
	if resp := do(t, srv, tok, http.MethodGet, "/api/history/abc", nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad id = %d", resp.StatusCode)
	}

	resp = do(t, srv, tok, http.MethodGet, "/api/history/1/report.pdf", nil)
	body, _ := io.ReadAll(resp.Body)
	if resp.Header.Get("Content-Type") != "application/pdf" || !bytes.HasPrefix(body, []byte("%PDF")) {
		t.Errorf("report: %s %q", resp.Header.Get("Content-Type"), body[:min(len(body), 8)])
	}

	resp = do(t, srv, tok, http.MethodGet, "/api/history/export.xlsx", nil)
	body, _ = io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !bytes.HasPrefix(body, []byte("PK")) {
		t.Errorf("export: %d", resp.StatusCode)
	}
}

func TestAlertsAndReceive(t *testing.T) {
	srv, _ := newTestServer(t)
	op := login(t, srv, "ana")
	admin := login(t, srv, "chefe")

	// Pigmento 100 при минимуме 90: ниже 1.2 × 90 = 108
	resp := do(t, srv, op, http.MethodGet, "/api/alerts", nil)
	var alerts []struct {
		Name  string
		Level string
	}
	decodeBody(t, resp, &alerts)
	if len(alerts) != 1 || alerts[0].Name != "Pigmento" || alerts[0].Level != "low" {
		t.Errorf("alerts = %+v", alerts)
	}

	resp = do(t, srv, admin, http.MethodPost, "/api/materials/Pigmento/receive", map[string]any{"qty": "20", "note": "NF 55"})
	var m struct {
		OnHand decimal.Decimal `json:"on_hand"`
		Level  string
	}
	decodeBody(t, resp, &m)
	if resp.StatusCode != http.StatusOK || !m.OnHand.Equal(d("120")) || m.Level != "normal" {
		t.Errorf("receive = %d %+v", resp.StatusCode, m)
	}

	if resp := do(t, srv, admin, http.MethodPost, "/api/materials/Pigmento/receive", map[string]any{"qty": "-1"}); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("negative receive = %d", resp.StatusCode)
	}
	if resp := do(t, srv, admin, http.MethodPatch, "/api/materials/Nada", map[string]any{"unit_cost": "1"}); resp.StatusCode != http.StatusNotFound {
		t.Errorf("patch missing = %d", resp.StatusCode)
	}
}

func TestSafetySheet(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()
	for _, p := range []safety.Phrase{
		{Kind: safety.KindHazard, Code: "H226", Text: "Líquido e vapores inflamáveis."},
		{Kind: safety.KindPrecaution, Code: "P210", Text: "Mantenha afastado do calor."},
	} {
		if err := store.Safety().UpsertPhrase(ctx, p); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.Safety().UpsertProduct(ctx, safety.Product{Name: "Verniz", Fields: []safety.Field{{Label: "Uso", Value: "Madeira"}}}); err != nil {
		t.Fatal(err)
	}
	tok := login(t, srv, "ana")

	resp := do(t, srv, tok, http.MethodGet, "/api/safety/products", nil)
	var products []string
	decodeBody(t, resp, &products)
	if strings.Join(products, ",") != "Tinta Base,Verniz" {
		t.Errorf("products = %v", products)
	}

	resp = do(t, srv, tok, http.MethodGet, "/api/safety/phrases", nil)
	var phrases map[string][]struct{ Code string }
	decodeBody(t, resp, &phrases)
	if len(phrases["hazards"]) != 1 || phrases["precautions"][0].Code != "P210" {
		t.Errorf("phrases = %+v", phrases)
	}

	resp = do(t, srv, tok, http.MethodPost, "/api/safety/sheet", map[string]any{
		"product": "Tinta Base", "hazards": []string{"h226"}, "precautions": []string{"P210"},
	})
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !bytes.HasPrefix(body, []byte("%PDF")) {
		t.Fatalf("sheet = %d %q", resp.StatusCode, body[:min(len(body), 40)])
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "FDS_Tinta Base.pdf") {
		t.Errorf("disposition = %q", cd)
	}

	tests := []struct {
		name string
		body map[string]any
	}{
		{"unknown phrase", map[string]any{"product": "Tinta Base", "hazards": []string{"H999"}}},
		{"unknown product", map[string]any{"product": "Esmalte"}},
	}
	for _, tt := range tests {
		if resp := do(t, srv, tok, http.MethodPost, "/api/safety/sheet", tt.body); resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s = %d, want 400", tt.name, resp.StatusCode)
		}
	}
}

// hiddenMaterials теряет карточку материала сразу после прихода.
type hiddenMaterials struct{ production.MaterialStore }

func (hiddenMaterials) GetByName(context.Context, string) (*materials.Material, error) {
	return nil, nil
}

type hidingStore struct{ production.Store }

func (s hidingStore) Materials() production.MaterialStore {
	return hiddenMaterials{s.Store.Materials()}
}

func TestReceiveMaterialGone(t *testing.T) {
	_, store := newTestServer(t)
	srv := serve(t, hidingStore{store})
	admin := login(t, srv, "chefe")

	resp := do(t, srv, admin, http.MethodPost, "/api/materials/Pigmento/receive", map[string]any{"qty": "5"})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("receive = %d, want 404", resp.StatusCode)
	}
}

func TestRecipeLineAdmin(t *testing.T) {
	srv, _ := newTestServer(t)
	admin := login(t, srv, "chefe")

	resp := do(t, srv, admin, http.MethodPut, "/api/recipes/Verniz/lines", map[string]any{"ingredient": "Resina", "planned_qty": "5"})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("put line = %d", resp.StatusCode)
	}
	resp = do(t, srv, admin, http.MethodPut, "/api/recipes/Verniz/lines", map[string]any{"ingredient": "Agua", "planned_qty": "5"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown ingredient = %d", resp.StatusCode)
	}
	resp = do(t, srv, admin, http.MethodGet, "/api/products", nil)
	var products []string
	decodeBody(t, resp, &products)
	if strings.Join(products, ",") != "Tinta Base,Verniz" {
		t.Errorf("products = %v", products)
	}
	if resp := do(t, srv, admin, http.MethodDelete, "/api/recipes/Verniz/lines/Resina", nil); resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete = %d", resp.StatusCode)
	}
	if resp := do(t, srv, admin, http.MethodDelete, "/api/recipes/Verniz/lines/Resina", nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("delete again = %d", resp.StatusCode)
	}
}
