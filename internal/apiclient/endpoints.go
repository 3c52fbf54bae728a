package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
)

// SubscriptionsAPI groups the subscription endpoints. Payloads pass through
// as raw JSON.
type SubscriptionsAPI struct{ c *Client }

// Subscriptions returns the subscription endpoint group.
func (c *Client) Subscriptions() *SubscriptionsAPI { return &SubscriptionsAPI{c: c} }

func (s *SubscriptionsAPI) Plans(ctx context.Context) (json.RawMessage, error) {
	return s.c.Raw(ctx, Request{Method: http.MethodGet, Path: "/subscriptions/plans/"})
}

func (s *SubscriptionsAPI) Create(ctx context.Context, body json.RawMessage) (json.RawMessage, error) {
	return s.c.Raw(ctx, Request{Method: http.MethodPost, Path: "/subscriptions/create/", Body: body})
}

func (s *SubscriptionsAPI) Status(ctx context.Context) (json.RawMessage, error) {
	return s.c.Raw(ctx, Request{Method: http.MethodGet, Path: "/subscriptions/status/"})
}

func (s *SubscriptionsAPI) Cancel(ctx context.Context, body json.RawMessage) (json.RawMessage, error) {
	return s.c.Raw(ctx, Request{Method: http.MethodPost, Path: "/subscriptions/cancel/", Body: body})
}

// PaymentIntent relays a payment intent request; the payment processor
// itself is never contacted by the portal.
func (s *SubscriptionsAPI) PaymentIntent(ctx context.Context, body json.RawMessage) (json.RawMessage, error) {
	return s.c.Raw(ctx, Request{Method: http.MethodPost, Path: "/subscriptions/payment-intent/", Body: body})
}

// NutritionAPI groups the nutrition endpoints.
type NutritionAPI struct{ c *Client }

// Nutrition returns the nutrition endpoint group.
func (c *Client) Nutrition() *NutritionAPI { return &NutritionAPI{c: c} }

func (n *NutritionAPI) Diseases(ctx context.Context) (json.RawMessage, error) {
	return n.c.Raw(ctx, Request{Method: http.MethodGet, Path: "/nutrition/diseases/"})
}

func (n *NutritionAPI) Plans(ctx context.Context) (json.RawMessage, error) {
	return n.c.Raw(ctx, Request{Method: http.MethodGet, Path: "/nutrition/plans/"})
}

func (n *NutritionAPI) CreatePlan(ctx context.Context, body json.RawMessage) (json.RawMessage, error) {
	return n.c.Raw(ctx, Request{Method: http.MethodPost, Path: "/nutrition/plans/", Body: body})
}

func (n *NutritionAPI) Plan(ctx context.Context, id int) (json.RawMessage, error) {
	return n.c.Raw(ctx, Request{Method: http.MethodGet, Path: planPath(id)})
}

func (n *NutritionAPI) UpdatePlan(ctx context.Context, id int, body json.RawMessage) (json.RawMessage, error) {
	return n.c.Raw(ctx, Request{Method: http.MethodPut, Path: planPath(id), Body: body})
}

func (n *NutritionAPI) Calculate(ctx context.Context, body json.RawMessage) (json.RawMessage, error) {
	return n.c.Raw(ctx, Request{Method: http.MethodPost, Path: "/nutrition/calculate/", Body: body})
}

func (n *NutritionAPI) WhatsAppMessages(ctx context.Context) (json.RawMessage, error) {
	return n.c.Raw(ctx, Request{Method: http.MethodGet, Path: "/nutrition/whatsapp/"})
}

func (n *NutritionAPI) SendWhatsAppMessage(ctx context.Context, body json.RawMessage) (json.RawMessage, error) {
	return n.c.Raw(ctx, Request{Method: http.MethodPost, Path: "/nutrition/whatsapp/", Body: body})
}

func (n *NutritionAPI) Demo(ctx context.Context) (json.RawMessage, error) {
	return n.c.Raw(ctx, Request{Method: http.MethodGet, Path: "/nutrition/demo/"})
}

func planPath(id int) string {
	return "/nutrition/plans/" + strconv.Itoa(id) + "/"
}

// AffiliatesAPI groups the affiliate program endpoints.
type AffiliatesAPI struct{ c *Client }

// Affiliates returns the affiliate endpoint group.
func (c *Client) Affiliates() *AffiliatesAPI { return &AffiliatesAPI{c: c} }

func (a *AffiliatesAPI) Stats(ctx context.Context) (json.RawMessage, error) {
	return a.c.Raw(ctx, Request{Method: http.MethodGet, Path: "/affiliates/stats/"})
}

// Commissions lists commissions; params are passed through as the query.
func (a *AffiliatesAPI) Commissions(ctx context.Context, params url.Values) (json.RawMessage, error) {
	return a.c.Raw(ctx, Request{Method: http.MethodGet, Path: "/affiliates/commissions/", Query: params})
}

func (a *AffiliatesAPI) Referrals(ctx context.Context) (json.RawMessage, error) {
	return a.c.Raw(ctx, Request{Method: http.MethodGet, Path: "/affiliates/referrals/"})
}

func (a *AffiliatesAPI) Payouts(ctx context.Context) (json.RawMessage, error) {
	return a.c.Raw(ctx, Request{Method: http.MethodGet, Path: "/affiliates/payouts/"})
}

func (a *AffiliatesAPI) CreatePayout(ctx context.Context, body json.RawMessage) (json.RawMessage, error) {
	return a.c.Raw(ctx, Request{Method: http.MethodPost, Path: "/affiliates/payouts/", Body: body})
}

func (a *AffiliatesAPI) GenerateLink(ctx context.Context) (json.RawMessage, error) {
	return a.c.Raw(ctx, Request{Method: http.MethodPost, Path: "/affiliates/generate-link/"})
}

func (a *AffiliatesAPI) Dashboard(ctx context.Context) (json.RawMessage, error) {
	return a.c.Raw(ctx, Request{Method: http.MethodGet, Path: "/affiliates/dashboard/"})
}
