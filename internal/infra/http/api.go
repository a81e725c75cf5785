package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Spok95/factory-bot/internal/domain/costing"
	"github.com/Spok95/factory-bot/internal/domain/history"
	"github.com/Spok95/factory-bot/internal/domain/materials"
	"github.com/Spok95/factory-bot/internal/domain/safety"
	"github.com/Spok95/factory-bot/internal/domain/users"
	"github.com/Spok95/factory-bot/internal/importer"
	"github.com/Spok95/factory-bot/internal/production"
	"github.com/Spok95/factory-bot/internal/report"
)

const maxUpload = 10 << 20

// API — JSON-интерфейс к тому же сервису, что и бот.
type API struct {
	svc       *production.Service
	auth      Authenticator
	tokens    *users.Tokens
	log       *slog.Logger
	loc       *time.Location
	lowFactor decimal.Decimal
}

func NewAPI(svc *production.Service, auth Authenticator, tokens *users.Tokens, log *slog.Logger, loc *time.Location, lowFactor decimal.Decimal) *API {
	if loc == nil {
		loc = time.UTC
	}
	return &API{svc: svc, auth: auth, tokens: tokens, log: log, loc: loc, lowFactor: lowFactor}
}

func (a *API) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/login", a.login)

	mux.HandleFunc("GET /api/products", a.requireAuth(a.products))
	mux.HandleFunc("GET /api/recipes/{product}", a.requireAuth(a.recipe))
	mux.HandleFunc("PUT /api/recipes/{product}/lines", a.requireAdmin(a.putRecipeLine))
	mux.HandleFunc("DELETE /api/recipes/{product}/lines/{ingredient}", a.requireAdmin(a.deleteRecipeLine))

	mux.HandleFunc("GET /api/materials", a.requireAuth(a.listMaterials))
	mux.HandleFunc("POST /api/materials", a.requireAdmin(a.createMaterial))
	mux.HandleFunc("GET /api/materials/export.xlsx", a.requireAuth(a.exportStock))
	mux.HandleFunc("PATCH /api/materials/{name}", a.requireAdmin(a.patchMaterial))
	mux.HandleFunc("POST /api/materials/{name}/receive", a.requireAdmin(a.receive))
	mux.HandleFunc("GET /api/alerts", a.requireAuth(a.alerts))

	mux.HandleFunc("POST /api/batches/quote", a.requireAuth(a.quote))
	mux.HandleFunc("POST /api/batches", a.requireAuth(a.finalize))

	mux.HandleFunc("GET /api/history", a.requireAuth(a.history))
	mux.HandleFunc("GET /api/history/export.xlsx", a.requireAuth(a.exportHistory))
	mux.HandleFunc("GET /api/history/{id}", a.requireAuth(a.record))
	mux.HandleFunc("GET /api/history/{id}/report.pdf", a.requireAuth(a.recordPDF))

	mux.HandleFunc("GET /api/safety/products", a.requireAuth(a.safetyProducts))
	mux.HandleFunc("GET /api/safety/phrases", a.requireAuth(a.safetyPhrases))
	mux.HandleFunc("POST /api/safety/sheet", a.requireAuth(a.safetySheet))

	mux.HandleFunc("POST /api/import", a.requireAdmin(a.importWorkbook))

	return mux
}

/* auth */

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}
	u, err := a.auth.Authenticate(r.Context(), strings.TrimSpace(req.Login), req.Password)
	if err != nil {
		switch {
		case errors.Is(err, users.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, err.Error())
		case errors.Is(err, users.ErrNotApproved):
			writeError(w, http.StatusForbidden, err.Error())
		default:
			a.fail(w, "login", err)
		}
		return
	}
	token, err := a.tokens.Issue(u)
	if err != nil {
		a.fail(w, "issue token", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "name": u.Name, "role": u.Role})
}

/* recipes */

func (a *API) products(w http.ResponseWriter, r *http.Request) {
	list, err := a.svc.Products(r.Context())
	if err != nil {
		a.fail(w, "list products", err)
		return
	}
	if list == nil {
		list = []string{}
	}
	writeJSON(w, http.StatusOK, list)
}

type recipeLineDTO struct {
	Ingredient string          `json:"ingredient"`
	PlannedQty decimal.Decimal `json:"planned_qty"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	Unit       materials.Unit  `json:"unit,omitempty"`
}

func (a *API) recipe(w http.ResponseWriter, r *http.Request) {
	product := r.PathValue("product")
	lines, err := a.svc.Recipe(r.Context(), product)
	if err != nil {
		a.fail(w, "lookup recipe", err)
		return
	}
	out := make([]recipeLineDTO, 0, len(lines))
	for _, l := range lines {
		out = append(out, recipeLineDTO{Ingredient: l.Ingredient, PlannedQty: l.PlannedQty, UnitCost: l.UnitCost, Unit: l.Unit})
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product, "lines": out})
}

func (a *API) putRecipeLine(w http.ResponseWriter, r *http.Request) {
	var req recipeLineDTO
	if !decode(w, r, &req) {
		return
	}
	if err := a.svc.SetRecipeLine(r.Context(), r.PathValue("product"), req.Ingredient, req.PlannedQty); err != nil {
		a.writeServiceError(w, "set recipe line", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) deleteRecipeLine(w http.ResponseWriter, r *http.Request) {
	ok, err := a.svc.RemoveRecipeLine(r.Context(), r.PathValue("product"), r.PathValue("ingredient"))
	if err != nil {
		a.fail(w, "delete recipe line", err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "recipe line not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

/* materials */

type materialDTO struct {
	Name         string          `json:"name"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	OnHand       decimal.Decimal `json:"on_hand"`
	Unit         materials.Unit  `json:"unit"`
	MinThreshold decimal.Decimal `json:"min_threshold"`
	CASRef       string          `json:"cas_ref,omitempty"`
	HazardText   string          `json:"hazard_text,omitempty"`
	Level        materials.Level `json:"level,omitempty"`
}

func (a *API) toMaterialDTO(m materials.Material) materialDTO {
	return materialDTO{
		Name:         m.Name,
		UnitCost:     m.UnitCost,
		OnHand:       m.OnHand,
		Unit:         m.Unit,
		MinThreshold: m.MinThreshold,
		CASRef:       m.CASRef,
		HazardText:   m.HazardText,
		Level:        materials.Classify(m, a.lowFactor),
	}
}

func (a *API) listMaterials(w http.ResponseWriter, r *http.Request) {
	list, err := a.svc.Materials(r.Context())
	if err != nil {
		a.fail(w, "list materials", err)
		return
	}
	out := make([]materialDTO, 0, len(list))
	for _, m := range list {
		out = append(out, a.toMaterialDTO(m))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) createMaterial(w http.ResponseWriter, r *http.Request) {
	var req materialDTO
	if !decode(w, r, &req) {
		return
	}
	m, err := a.svc.RegisterMaterial(r.Context(), materials.Material{
		Name:         req.Name,
		UnitCost:     req.UnitCost,
		OnHand:       req.OnHand,
		Unit:         req.Unit,
		MinThreshold: req.MinThreshold,
		CASRef:       req.CASRef,
		HazardText:   req.HazardText,
	})
	if err != nil {
		a.writeServiceError(w, "create material", err)
		return
	}
	writeJSON(w, http.StatusCreated, a.toMaterialDTO(*m))
}

type materialPatchDTO struct {
	UnitCost     *decimal.Decimal `json:"unit_cost"`
	Unit         *materials.Unit  `json:"unit"`
	MinThreshold *decimal.Decimal `json:"min_threshold"`
	CASRef       *string          `json:"cas_ref"`
	HazardText   *string          `json:"hazard_text"`
}

func (a *API) patchMaterial(w http.ResponseWriter, r *http.Request) {
	var req materialPatchDTO
	if !decode(w, r, &req) {
		return
	}
	m, err := a.svc.EditMaterial(r.Context(), r.PathValue("name"), materials.Patch(req))
	if err != nil {
		a.writeServiceError(w, "update material", err)
		return
	}
	if m == nil {
		writeError(w, http.StatusNotFound, "material not found")
		return
	}
	writeJSON(w, http.StatusOK, a.toMaterialDTO(*m))
}

type receiveDTO struct {
	Qty      decimal.Decimal  `json:"qty"`
	UnitCost *decimal.Decimal `json:"unit_cost"`
	Note     string           `json:"note"`
}

func (a *API) receive(w http.ResponseWriter, r *http.Request) {
	var req receiveDTO
	if !decode(w, r, &req) {
		return
	}
	name := r.PathValue("name")
	actor := claimsFrom(r.Context()).Name
	if err := a.svc.Receive(r.Context(), actor, name, req.Qty, req.UnitCost, req.Note); err != nil {
		a.writeServiceError(w, "receive", err)
		return
	}
	m, err := a.svc.Material(r.Context(), name)
	if err != nil {
		a.fail(w, "reload material", err)
		return
	}
	if m == nil {
		writeError(w, http.StatusNotFound, "material not found")
		return
	}
	writeJSON(w, http.StatusOK, a.toMaterialDTO(*m))
}

func (a *API) alerts(w http.ResponseWriter, r *http.Request) {
	list, err := a.svc.Alerts(r.Context())
	if err != nil {
		a.fail(w, "alerts", err)
		return
	}
	out := make([]materialDTO, 0, len(list))
	for _, al := range list {
		dto := a.toMaterialDTO(al.Material)
		dto.Level = al.Level
		out = append(out, dto)
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) exportStock(w http.ResponseWriter, r *http.Request) {
	list, err := a.svc.Materials(r.Context())
	if err != nil {
		a.fail(w, "list materials", err)
		return
	}
	data, err := importer.StockXLSX(list, a.lowFactor)
	if err != nil {
		a.fail(w, "stock xlsx", err)
		return
	}
	writeFile(w, "estoque.xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

/* batches */

// batchRequest — тело quote и finalize. Без multiplier считается одна
// партия по рецептуре; явный ноль или минус отклоняется.
// Достаточность склада проверяется по большему из плана и факта,
// поэтому партию с покрытым планом может заблокировать завышенный факт.
type batchRequest struct {
	Product    string                     `json:"product"`
	Multiplier *decimal.Decimal           `json:"multiplier,omitempty"`
	Actual     map[string]decimal.Decimal `json:"actual,omitempty"`
	RequestKey string                     `json:"request_key,omitempty"`
}

func (b batchRequest) multiplier() decimal.Decimal {
	if b.Multiplier == nil {
		return decimal.NewFromInt(1)
	}
	return *b.Multiplier
}

type itemDTO struct {
	Ingredient  string          `json:"ingredient"`
	Unit        materials.Unit  `json:"unit"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	PlannedQty  decimal.Decimal `json:"planned_qty"`
	ActualQty   decimal.Decimal `json:"actual_qty"`
	PlannedCost string          `json:"planned_cost,omitempty"`
	ActualCost  string          `json:"actual_cost"`
}

type shortageDTO struct {
	Ingredient string          `json:"ingredient"`
	Unit       materials.Unit  `json:"unit"`
	Required   decimal.Decimal `json:"required"`
	OnHand     decimal.Decimal `json:"on_hand"`
	Missing    decimal.Decimal `json:"missing"`
}

func shortagesDTO(list []costing.Shortage) []shortageDTO {
	out := make([]shortageDTO, 0, len(list))
	for _, s := range list {
		out = append(out, shortageDTO{Ingredient: s.Ingredient, Unit: s.Unit, Required: s.Required, OnHand: s.OnHand, Missing: s.Missing()})
	}
	return out
}

func (a *API) quote(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !decode(w, r, &req) {
		return
	}
	q, err := a.svc.Quote(r.Context(), production.QuoteRequest{Product: req.Product, Multiplier: req.multiplier(), Actual: req.Actual})
	if err != nil {
		a.writeServiceError(w, "quote", err)
		return
	}
	items := make([]itemDTO, 0, len(q.Costing.Items))
	for _, it := range q.Costing.Items {
		items = append(items, itemDTO{
			Ingredient:  it.Ingredient,
			Unit:        it.Unit,
			UnitCost:    it.UnitCost,
			PlannedQty:  it.PlannedQty,
			ActualQty:   it.ActualQty,
			PlannedCost: costing.Money(it.PlannedCost),
			ActualCost:  costing.Money(it.ActualCost),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"product":      q.Costing.Product,
		"multiplier":   q.Costing.Multiplier,
		"items":        items,
		"planned_cost": costing.Money(q.Costing.Planned),
		"actual_cost":  costing.Money(q.Costing.Actual),
		"variance":     costing.Money(q.Costing.Variance),
		"status":       q.Costing.Status,
		"can_finalize": q.CanFinalize(),
		"shortages":    shortagesDTO(q.Shortages),
	})
}

func (a *API) finalize(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !decode(w, r, &req) {
		return
	}
	key := req.RequestKey
	if h := r.Header.Get("Idempotency-Key"); h != "" {
		key = h
	}
	res, err := a.svc.Finalize(r.Context(), production.FinalizeRequest{
		Operator:   claimsFrom(r.Context()).Name,
		Product:    req.Product,
		Multiplier: req.multiplier(),
		Actual:     req.Actual,
		RequestKey: key,
	})
	if err != nil {
		a.writeServiceError(w, "finalize", err)
		return
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, a.recordDTO(res.Record, res.Replayed))
}

/* history */

type recordDTO struct {
	ID          int64           `json:"id"`
	CreatedAt   string          `json:"created_at"`
	Operator    string          `json:"operator"`
	Product     string          `json:"product"`
	Multiplier  decimal.Decimal `json:"multiplier"`
	PlannedCost string          `json:"planned_cost"`
	ActualCost  string          `json:"actual_cost"`
	Variance    string          `json:"variance"`
	Status      costing.Status  `json:"status"`
	Items       []itemDTO       `json:"items,omitempty"`
	Replayed    bool            `json:"replayed,omitempty"`
}

func (a *API) recordDTO(rec *history.Record, replayed bool) recordDTO {
	out := recordDTO{
		ID:          rec.ID,
		CreatedAt:   rec.CreatedAt.In(a.loc).Format(time.RFC3339),
		Operator:    rec.Operator,
		Product:     rec.Product,
		Multiplier:  rec.Multiplier,
		PlannedCost: costing.Money(rec.PlannedCost),
		ActualCost:  costing.Money(rec.ActualCost),
		Variance:    costing.Money(rec.Variance),
		Status:      rec.Status,
		Replayed:    replayed,
	}
	for _, it := range rec.Items {
		out.Items = append(out.Items, itemDTO{
			Ingredient: it.Ingredient,
			Unit:       it.Unit,
			UnitCost:   it.UnitCost,
			PlannedQty: it.PlannedQty,
			ActualQty:  it.ActualQty,
			ActualCost: costing.Money(it.ActualCost()),
		})
	}
	return out
}

func (a *API) history(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)
	recs, err := a.svc.History(r.Context(), limit, offset)
	if err != nil {
		a.fail(w, "history", err)
		return
	}
	out := make([]recordDTO, 0, len(recs))
	for i := range recs {
		out = append(out, a.recordDTO(&recs[i], false))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) loadRecord(w http.ResponseWriter, r *http.Request) *history.Record {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return nil
	}
	rec, err := a.svc.Record(r.Context(), id)
	if err != nil {
		a.fail(w, "get record", err)
		return nil
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "record not found")
		return nil
	}
	return rec
}

func (a *API) record(w http.ResponseWriter, r *http.Request) {
	if rec := a.loadRecord(w, r); rec != nil {
		writeJSON(w, http.StatusOK, a.recordDTO(rec, false))
	}
}

func (a *API) recordPDF(w http.ResponseWriter, r *http.Request) {
	rec := a.loadRecord(w, r)
	if rec == nil {
		return
	}
	data, err := report.BatchPDF(rec, a.loc)
	if err != nil {
		a.fail(w, "render pdf", err)
		return
	}
	writeFile(w, report.FileName(rec), "application/pdf", data)
}

func (a *API) exportHistory(w http.ResponseWriter, r *http.Request) {
	recs, err := a.svc.History(r.Context(), queryInt(r, "limit", 500), 0)
	if err != nil {
		a.fail(w, "history", err)
		return
	}
	// в списке позиций нет, догружаем по одной записи
	for i := range recs {
		full, err := a.svc.Record(r.Context(), recs[i].ID)
		if err != nil {
			a.fail(w, "get record", err)
			return
		}
		if full != nil {
			recs[i] = *full
		}
	}
	data, err := importer.HistoryXLSX(recs, a.loc)
	if err != nil {
		a.fail(w, "history xlsx", err)
		return
	}
	writeFile(w, "historico.xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

/* safety data sheets */

type phraseDTO struct {
	Code string `json:"code"`
	Text string `json:"text"`
}

func (a *API) safetyProducts(w http.ResponseWriter, r *http.Request) {
	list, err := a.svc.SafetyProducts(r.Context())
	if err != nil {
		a.fail(w, "safety products", err)
		return
	}
	if list == nil {
		list = []string{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) safetyPhrases(w http.ResponseWriter, r *http.Request) {
	out := map[string][]phraseDTO{}
	for key, kind := range map[string]safety.Kind{"hazards": safety.KindHazard, "precautions": safety.KindPrecaution} {
		list, err := a.svc.SafetyPhrases(r.Context(), kind)
		if err != nil {
			a.fail(w, "safety phrases", err)
			return
		}
		out[key] = make([]phraseDTO, 0, len(list))
		for _, p := range list {
			out[key] = append(out[key], phraseDTO{Code: p.Code, Text: p.Text})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type safetySheetRequest struct {
	Product     string   `json:"product"`
	Hazards     []string `json:"hazards"`
	Precautions []string `json:"precautions"`
}

func (a *API) safetySheet(w http.ResponseWriter, r *http.Request) {
	var req safetySheetRequest
	if !decode(w, r, &req) {
		return
	}
	sheet, err := a.svc.SafetySheet(r.Context(), req.Product, req.Hazards, req.Precautions)
	if err != nil {
		a.writeServiceError(w, "safety sheet", err)
		return
	}
	data, err := report.SafetySheetPDF(sheet, time.Now().In(a.loc))
	if err != nil {
		a.fail(w, "render safety pdf", err)
		return
	}
	writeFile(w, report.SafetySheetFileName(sheet.Product), "application/pdf", data)
}

/* import */

func (a *API) importWorkbook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)

	var body io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		file, _, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
			return
		}
		defer func() { _ = file.Close() }()
		body = file
	}
	data, err := io.ReadAll(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "cannot read upload")
		return
	}

	actor := claimsFrom(r.Context()).Name
	sum, err := importer.Import(r.Context(), a.svc.Store(), bytes.NewReader(data), actor)
	if err != nil {
		var rowErr *importer.RowError
		if errors.As(err, &rowErr) || errors.Is(err, importer.ErrMissingSheet) || errors.Is(err, importer.ErrBadWorkbook) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		a.fail(w, "import", err)
		return
	}
	a.log.Info("workbook imported", "by", actor, "materials", sum.Materials, "lines", sum.Lines, "adjusted", sum.Adjusted)
	writeJSON(w, http.StatusOK, map[string]int{
		"materials":      sum.Materials,
		"lines":          sum.Lines,
		"products":       sum.Products,
		"adjusted":       sum.Adjusted,
		"safety_sheets":  sum.Sheets,
		"safety_phrases": sum.Phrases,
	})
}

/* helpers */

// writeServiceError: ошибки ввода и нехватка склада — ответ клиенту, остальное — 500.
func (a *API) writeServiceError(w http.ResponseWriter, op string, err error) {
	var se *production.ShortageError
	switch {
	case errors.As(err, &se):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":     err.Error(),
			"shortages": shortagesDTO(se.Shortages),
		})
	case errors.Is(err, production.ErrRequestInFlight):
		writeError(w, http.StatusConflict, err.Error())
	case production.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		a.fail(w, op, err)
	}
}

func (a *API) fail(w http.ResponseWriter, op string, err error) {
	a.log.Error("api request failed", "op", op, "err", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeFile(w http.ResponseWriter, name, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}
