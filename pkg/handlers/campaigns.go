package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot-engine/pkg/auth"
	"github.com/reviewpilot/reviewpilot-engine/pkg/models"
	"github.com/reviewpilot/reviewpilot-engine/pkg/services"
)

// CampaignHandler handles SMS campaigns and one-off texts.
type CampaignHandler struct {
	campaigns services.CampaignService
	sms       services.SmsService
	logger    *zap.Logger
}

// NewCampaignHandler creates a new campaign handler.
func NewCampaignHandler(campaigns services.CampaignService, sms services.SmsService, logger *zap.Logger) *CampaignHandler {
	return &CampaignHandler{campaigns: campaigns, sms: sms, logger: logger}
}

// RegisterRoutes registers the campaign and SMS routes on the given mux.
func (h *CampaignHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, tenantMiddleware TenantMiddleware) {
	manager := authMiddleware.RequireRole(auth.RoleManager)

	mux.HandleFunc("GET /api/businesses/{bid}/campaigns", authMiddleware.RequireAuth(tenantMiddleware(h.List)))
	mux.HandleFunc("POST /api/businesses/{bid}/campaigns", authMiddleware.RequireAuth(tenantMiddleware(manager(h.Create))))
	mux.HandleFunc("GET /api/campaigns/{cid}", authMiddleware.RequireAuth(tenantMiddleware(h.Get)))
	mux.HandleFunc("PUT /api/campaigns/{cid}", authMiddleware.RequireAuth(tenantMiddleware(manager(h.Update))))
	mux.HandleFunc("DELETE /api/campaigns/{cid}", authMiddleware.RequireAuth(tenantMiddleware(manager(h.Delete))))
	mux.HandleFunc("POST /api/campaigns/{cid}/send", authMiddleware.RequireAuth(tenantMiddleware(manager(h.Send))))
	mux.HandleFunc("GET /api/campaigns/{cid}/messages", authMiddleware.RequireAuth(tenantMiddleware(h.Messages)))
	mux.HandleFunc("GET /api/businesses/{bid}/sms/usage", authMiddleware.RequireAuth(tenantMiddleware(h.Usage)))
	mux.HandleFunc("POST /api/businesses/{bid}/sms", authMiddleware.RequireAuth(tenantMiddleware(manager(h.SendSms))))
}

type campaignRequest struct {
	Name       *string  `json:"name"`
	Message    *string  `json:"message"`
	Recipients []string `json:"recipients"`
}

func (req *campaignRequest) apply(c *models.Campaign) {
	setString(&c.Name, req.Name)
	setString(&c.Message, req.Message)
	if req.Recipients != nil {
		c.Recipients = req.Recipients
	}
}

type sendSmsRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// List handles GET /api/businesses/{bid}/campaigns
func (h *CampaignHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	businessID, ok := ParseBusinessID(w, r, h.logger)
	if !ok {
		return
	}
	list, err := h.campaigns.List(r.Context(), p.OrganizationID, businessID)
	if err != nil {
		writeServiceError(w, err, "list campaigns", h.logger)
		return
	}
	writeData(w, http.StatusOK, list, h.logger)
}

// Create handles POST /api/businesses/{bid}/campaigns
func (h *CampaignHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	businessID, ok := ParseBusinessID(w, r, h.logger)
	if !ok {
		return
	}
	var req campaignRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	c := &models.Campaign{OrganizationID: p.OrganizationID, BusinessID: businessID, CreatedBy: &p.UserID}
	req.apply(c)
	created, err := h.campaigns.Create(r.Context(), c)
	if err != nil {
		writeServiceError(w, err, "create campaign", h.logger)
		return
	}
	writeData(w, http.StatusCreated, created, h.logger)
}

// Get handles GET /api/campaigns/{cid}
func (h *CampaignHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	campaignID, ok := ParseCampaignID(w, r, h.logger)
	if !ok {
		return
	}
	c, err := h.campaigns.Get(r.Context(), p.OrganizationID, campaignID)
	if err != nil {
		writeServiceError(w, err, "get campaign", h.logger)
		return
	}
	writeData(w, http.StatusOK, c, h.logger)
}

// Update handles PUT /api/campaigns/{cid}. Only drafts can change.
func (h *CampaignHandler) Update(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	campaignID, ok := ParseCampaignID(w, r, h.logger)
	if !ok {
		return
	}
	var req campaignRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	c, err := h.campaigns.Get(r.Context(), p.OrganizationID, campaignID)
	if err != nil {
		writeServiceError(w, err, "get campaign", h.logger)
		return
	}
	req.apply(c)
	updated, err := h.campaigns.UpdateDraft(r.Context(), c)
	if err != nil {
		writeServiceError(w, err, "update campaign", h.logger)
		return
	}
	writeData(w, http.StatusOK, updated, h.logger)
}

// Delete handles DELETE /api/campaigns/{cid}
func (h *CampaignHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	campaignID, ok := ParseCampaignID(w, r, h.logger)
	if !ok {
		return
	}
	if err := h.campaigns.DeleteDraft(r.Context(), p.OrganizationID, campaignID); err != nil {
		writeServiceError(w, err, "delete campaign", h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Send handles POST /api/campaigns/{cid}/send
// Delivery continues in the background, so the response is 202 with the campaign in "sending".
func (h *CampaignHandler) Send(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	campaignID, ok := ParseCampaignID(w, r, h.logger)
	if !ok {
		return
	}
	c, err := h.campaigns.Send(r.Context(), p.OrganizationID, campaignID)
	if err != nil {
		writeServiceError(w, err, "send campaign", h.logger)
		return
	}
	writeData(w, http.StatusAccepted, c, h.logger)
}

// Messages handles GET /api/campaigns/{cid}/messages
func (h *CampaignHandler) Messages(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	campaignID, ok := ParseCampaignID(w, r, h.logger)
	if !ok {
		return
	}
	msgs, err := h.campaigns.Messages(r.Context(), p.OrganizationID, campaignID)
	if err != nil {
		writeServiceError(w, err, "list campaign messages", h.logger)
		return
	}
	writeData(w, http.StatusOK, msgs, h.logger)
}

// Usage handles GET /api/businesses/{bid}/sms/usage
// The quota belongs to the organization; the business only scopes the route.
func (h *CampaignHandler) Usage(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	if _, ok := ParseBusinessID(w, r, h.logger); !ok {
		return
	}
	usage, err := h.sms.Usage(r.Context(), p.OrganizationID)
	if err != nil {
		writeServiceError(w, err, "load sms usage", h.logger)
		return
	}
	writeData(w, http.StatusOK, usage, h.logger)
}

// SendSms handles POST /api/businesses/{bid}/sms
func (h *CampaignHandler) SendSms(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	businessID, ok := ParseBusinessID(w, r, h.logger)
	if !ok {
		return
	}
	var req sendSmsRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}
	msg, err := h.sms.Send(r.Context(), p.OrganizationID, businessID, req.To, req.Body)
	if err != nil {
		writeServiceError(w, err, "send sms", h.logger)
		return
	}
	writeData(w, http.StatusCreated, msg, h.logger)
}
