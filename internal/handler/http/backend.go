package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/nutrition"
	apperrors "github.com/Mohsen-rm/Clinical-Nutrition-Platform/pkg/errors"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/pkg/httputil"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/pkg/pagination"
)

// Subscriptions is the backend subscription endpoint group.
type Subscriptions interface {
	Plans(ctx context.Context) (json.RawMessage, error)
	Create(ctx context.Context, body json.RawMessage) (json.RawMessage, error)
	Status(ctx context.Context) (json.RawMessage, error)
	Cancel(ctx context.Context, body json.RawMessage) (json.RawMessage, error)
	PaymentIntent(ctx context.Context, body json.RawMessage) (json.RawMessage, error)
}

// NutritionPlans is the backend nutrition endpoint group.
type NutritionPlans interface {
	Diseases(ctx context.Context) (json.RawMessage, error)
	Plans(ctx context.Context) (json.RawMessage, error)
	CreatePlan(ctx context.Context, body json.RawMessage) (json.RawMessage, error)
	Plan(ctx context.Context, id int) (json.RawMessage, error)
	UpdatePlan(ctx context.Context, id int, body json.RawMessage) (json.RawMessage, error)
	Calculate(ctx context.Context, body json.RawMessage) (json.RawMessage, error)
	WhatsAppMessages(ctx context.Context) (json.RawMessage, error)
	SendWhatsAppMessage(ctx context.Context, body json.RawMessage) (json.RawMessage, error)
	Demo(ctx context.Context) (json.RawMessage, error)
}

// Affiliates is the backend affiliate endpoint group.
type Affiliates interface {
	Dashboard(ctx context.Context) (json.RawMessage, error)
	Stats(ctx context.Context) (json.RawMessage, error)
	Commissions(ctx context.Context, params url.Values) (json.RawMessage, error)
	Referrals(ctx context.Context) (json.RawMessage, error)
	Payouts(ctx context.Context) (json.RawMessage, error)
	CreatePayout(ctx context.Context, body json.RawMessage) (json.RawMessage, error)
	GenerateLink(ctx context.Context) (json.RawMessage, error)
}

// SubscriptionHandler relays the subscription pages.
type SubscriptionHandler struct {
	api    Subscriptions
	logger *slog.Logger
}

// NewSubscriptionHandler creates a new subscription HTTP handler.
func NewSubscriptionHandler(api Subscriptions, logger *slog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{api: api, logger: logger}
}

// Status handles GET /subscription
func (h *SubscriptionHandler) Status(w http.ResponseWriter, r *http.Request) {
	relay(w, r, h.logger, h.api.Status)
}

// Plans handles GET /subscription/plans
func (h *SubscriptionHandler) Plans(w http.ResponseWriter, r *http.Request) {
	relay(w, r, h.logger, h.api.Plans)
}

// Create handles POST /subscription
func (h *SubscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	relayBody(w, r, h.logger, http.StatusCreated, h.api.Create)
}

// Cancel handles POST /subscription/cancel
func (h *SubscriptionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	relayBody(w, r, h.logger, http.StatusOK, h.api.Cancel)
}

// PaymentIntent handles POST /subscription/payment-intent
func (h *SubscriptionHandler) PaymentIntent(w http.ResponseWriter, r *http.Request) {
	relayBody(w, r, h.logger, http.StatusOK, h.api.PaymentIntent)
}

// NutritionHandler relays the nutrition pages and runs the local preview.
type NutritionHandler struct {
	api    NutritionPlans
	logger *slog.Logger
}

// NewNutritionHandler creates a new nutrition HTTP handler.
func NewNutritionHandler(api NutritionPlans, logger *slog.Logger) *NutritionHandler {
	return &NutritionHandler{api: api, logger: logger}
}

// Diseases handles GET /nutrition/diseases
func (h *NutritionHandler) Diseases(w http.ResponseWriter, r *http.Request) {
	relay(w, r, h.logger, h.api.Diseases)
}

// Plans handles GET /nutrition/plans
func (h *NutritionHandler) Plans(w http.ResponseWriter, r *http.Request) {
	relay(w, r, h.logger, h.api.Plans)
}

// CreatePlan handles POST /nutrition/plans
func (h *NutritionHandler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	relayBody(w, r, h.logger, http.StatusCreated, h.api.CreatePlan)
}

// Plan handles GET /nutrition/plans/{id}
func (h *NutritionHandler) Plan(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	relay(w, r, h.logger, func(ctx context.Context) (json.RawMessage, error) {
		return h.api.Plan(ctx, id)
	})
}

// UpdatePlan handles PUT /nutrition/plans/{id}
func (h *NutritionHandler) UpdatePlan(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	relayBody(w, r, h.logger, http.StatusOK, func(ctx context.Context, body json.RawMessage) (json.RawMessage, error) {
		return h.api.UpdatePlan(ctx, id, body)
	})
}

// Calculate handles POST /nutrition/calculate
func (h *NutritionHandler) Calculate(w http.ResponseWriter, r *http.Request) {
	relayBody(w, r, h.logger, http.StatusOK, h.api.Calculate)
}

// WhatsAppMessages handles GET /nutrition/whatsapp
func (h *NutritionHandler) WhatsAppMessages(w http.ResponseWriter, r *http.Request) {
	relay(w, r, h.logger, h.api.WhatsAppMessages)
}

// SendWhatsAppMessage handles POST /nutrition/whatsapp
func (h *NutritionHandler) SendWhatsAppMessage(w http.ResponseWriter, r *http.Request) {
	relayBody(w, r, h.logger, http.StatusCreated, h.api.SendWhatsAppMessage)
}

// Demo handles GET /nutrition/demo
func (h *NutritionHandler) Demo(w http.ResponseWriter, r *http.Request) {
	relay(w, r, h.logger, h.api.Demo)
}

// Preview handles POST /nutrition/preview. It computes the plan locally,
// using the backend disease list when it can be loaded and the demo list
// otherwise.
func (h *NutritionHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var in nutrition.Input
	if !decodeJSON(w, r, &in) {
		return
	}

	catalog, err := h.catalog(r)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	res, err := nutrition.NewCalculator(catalog).Calculate(in)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, res)
}

// catalog loads the backend disease list, falling back to the demo list. A
// failed refresh is returned; the session is already gone by then.
func (h *NutritionHandler) catalog(r *http.Request) (nutrition.Catalog, error) {
	raw, err := h.api.Diseases(r.Context())
	if err == nil {
		cat, perr := nutrition.ParseCatalog(raw)
		if perr == nil {
			return cat, nil
		}
		err = perr
	}
	if apperrors.Classify(err) == apperrors.KindRefresh {
		return nil, err
	}
	h.logger.WarnContext(r.Context(), "using demo disease catalog", slog.String("error", err.Error()))
	return nutrition.NewStaticCatalog(nutrition.DemoDiseases()), nil
}

// AffiliateHandler relays the affiliate pages.
type AffiliateHandler struct {
	api    Affiliates
	logger *slog.Logger
}

// NewAffiliateHandler creates a new affiliate HTTP handler.
func NewAffiliateHandler(api Affiliates, logger *slog.Logger) *AffiliateHandler {
	return &AffiliateHandler{api: api, logger: logger}
}

// Dashboard handles GET /affiliate
func (h *AffiliateHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	relay(w, r, h.logger, h.api.Dashboard)
}

// Stats handles GET /affiliate/stats
func (h *AffiliateHandler) Stats(w http.ResponseWriter, r *http.Request) {
	relay(w, r, h.logger, h.api.Stats)
}

// Referrals handles GET /affiliate/referrals
func (h *AffiliateHandler) Referrals(w http.ResponseWriter, r *http.Request) {
	relay(w, r, h.logger, h.api.Referrals)
}

// Payouts handles GET /affiliate/payouts
func (h *AffiliateHandler) Payouts(w http.ResponseWriter, r *http.Request) {
	relay(w, r, h.logger, h.api.Payouts)
}

// CreatePayout handles POST /affiliate/payouts
func (h *AffiliateHandler) CreatePayout(w http.ResponseWriter, r *http.Request) {
	relayBody(w, r, h.logger, http.StatusCreated, h.api.CreatePayout)
}

// GenerateLink handles POST /affiliate/link
func (h *AffiliateHandler) GenerateLink(w http.ResponseWriter, r *http.Request) {
	relay(w, r, h.logger, h.api.GenerateLink)
}

// Commissions handles GET /affiliate/commissions
func (h *AffiliateHandler) Commissions(w http.ResponseWriter, r *http.Request) {
	filter := url.Values{}
	if status := r.URL.Query().Get("status"); status != "" {
		filter.Set("status", status)
	}
	params := pagination.FromRequest(r).Query(filter)
	relay(w, r, h.logger, func(ctx context.Context) (json.RawMessage, error) {
		return h.api.Commissions(ctx, params)
	})
}

// relay calls a backend endpoint and passes its payload through.
func relay(w http.ResponseWriter, r *http.Request, logger *slog.Logger, call func(context.Context) (json.RawMessage, error)) {
	raw, err := call(r.Context())
	if err != nil {
		writeError(w, r, err, logger)
		return
	}
	writeRaw(w, http.StatusOK, raw)
}

// relayBody forwards the request body to a backend endpoint and answers
// with status on success.
func relayBody(w http.ResponseWriter, r *http.Request, logger *slog.Logger, status int, call func(context.Context, json.RawMessage) (json.RawMessage, error)) {
	body, ok := readRaw(w, r)
	if !ok {
		return
	}
	raw, err := call(r.Context(), body)
	if err != nil {
		writeError(w, r, err, logger)
		return
	}
	writeRaw(w, status, raw)
}
