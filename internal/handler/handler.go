// Package handler содержит HTTP-обработчики API сервиса краудфандинга.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/crowdfund-system/internal/ledger"
	"github.com/mmeshcher/crowdfund-system/internal/middleware"
	"github.com/mmeshcher/crowdfund-system/internal/model"
	"github.com/mmeshcher/crowdfund-system/internal/registry"
	"github.com/mmeshcher/crowdfund-system/internal/validation"
)

// notificationsLimit ограничивает размер выборки журнала уведомлений.
const notificationsLimit = 100

// Ledger определяет контракт леджера кампаний для HTTP-обработчиков.
type Ledger interface {
	CreateCampaign(caller model.Principal, goalUnits, durationDays int64) (model.Campaign, error)
	Contribute(caller model.Principal, campaignID, amount int64) (model.Campaign, error)
	CheckUpkeep(campaignID int64) (model.Campaign, error)
	WithdrawFunds(ctx context.Context, caller model.Principal, campaignID int64) (int64, error)
	Refund(ctx context.Context, caller model.Principal, campaignID int64) (int64, error)
	PostUpdate(caller model.Principal, campaignID int64, message string) (model.Update, error)
	Campaigns() []model.Campaign
	CampaignByID(campaignID int64) (model.Campaign, error)
	CampaignCount() int64
	PledgeOf(campaignID int64, contributor model.Principal) (int64, error)
	Updates(campaignID int64) ([]model.Update, error)
	UpdateAt(campaignID, index int64) (model.Update, error)
}

// Registry определяет контракт реестра создателей кампаний.
type Registry interface {
	RegisterCreator(caller, creator model.Principal) error
	IsRegistered(principal model.Principal) bool
}

// Journal определяет контракт журнала уведомлений.
type Journal interface {
	Recent(ctx context.Context, limit int) ([]model.Notification, error)
}

// Handler агрегирует зависимости HTTP-обработчиков.
type Handler struct {
	ledger         Ledger
	registry       Registry
	journal        Journal
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	metrics        *middleware.HTTPMetrics
}

// NewHandler создаёт Handler. Журнал уведомлений может быть nil,
// тогда эндпоинт уведомлений отвечает 503.
func NewHandler(l Ledger, reg Registry, j Journal, logger *zap.Logger, auth *middleware.AuthMiddleware, metrics *middleware.HTTPMetrics) *Handler {
	return &Handler{
		ledger:         l,
		registry:       reg,
		journal:        j,
		logger:         logger,
		authMiddleware: auth,
		metrics:        metrics,
	}
}

type campaignResponse struct {
	ID           int64   `json:"id"`
	Creator      string  `json:"creator"`
	Goal         float64 `json:"goal"`
	TotalRaised  float64 `json:"total_raised"`
	State        string  `json:"state"`
	Deadline     string  `json:"deadline"`
	CreatedAt    string  `json:"created_at"`
	Backers      int     `json:"backers"`
	UpdatesCount int     `json:"updates_count"`
}

func newCampaignResponse(c model.Campaign) campaignResponse {
	return campaignResponse{
		ID:           c.ID,
		Creator:      string(c.Creator),
		Goal:         float64(c.Goal) / ledger.CentsPerUnit,
		TotalRaised:  float64(c.TotalRaised) / ledger.CentsPerUnit,
		State:        string(c.State),
		Deadline:     c.Deadline.Format(time.RFC3339),
		CreatedAt:    c.CreatedAt.Format(time.RFC3339),
		Backers:      c.Backers,
		UpdatesCount: c.Updates,
	}
}

type updateResponse struct {
	Message  string `json:"message"`
	PostedAt string `json:"posted_at"`
}

func newUpdateResponse(u model.Update) updateResponse {
	return updateResponse{
		Message:  u.Message,
		PostedAt: u.PostedAt.Format(time.RFC3339),
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

func campaignIDFromRequest(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

type registerCreatorRequest struct {
	Principal string `json:"principal"`
}

// RegisterCreator обрабатывает POST /api/creators.
// Доступно только контроллеру.
func (h *Handler) RegisterCreator(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req registerCreatorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Principal == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !validation.IsValidPrincipal(req.Principal) {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	err := h.registry.RegisterCreator(caller, model.Principal(req.Principal))
	switch {
	case errors.Is(err, registry.ErrNotController):
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	case errors.Is(err, model.ErrZeroPrincipal):
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	case err != nil:
		h.logger.Error("register creator error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type creatorResponse struct {
	Principal  string `json:"principal"`
	Registered bool   `json:"registered"`
}

// GetCreator обрабатывает GET /api/creators/{principal}.
func (h *Handler) GetCreator(w http.ResponseWriter, r *http.Request) {
	principal := chi.URLParam(r, "principal")
	if !validation.IsValidPrincipal(principal) {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	resp := creatorResponse{
		Principal:  principal,
		Registered: h.registry.IsRegistered(model.Principal(principal)),
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type createCampaignRequest struct {
	Goal         int64 `json:"goal"`
	DurationDays int64 `json:"duration_days"`
}

// CreateCampaign обрабатывает POST /api/campaigns.
func (h *Handler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req createCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	campaign, err := h.ledger.CreateCampaign(caller, req.Goal, req.DurationDays)
	switch {
	case errors.Is(err, ledger.ErrNotRegistered):
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	case errors.Is(err, ledger.ErrNegativeGoal), errors.Is(err, ledger.ErrNegativeDuration), errors.Is(err, model.ErrZeroPrincipal):
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	case err != nil:
		h.logger.Error("create campaign error", zap.Error(err), zap.String("creator", string(caller)))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusCreated, newCampaignResponse(campaign))
}

// ListCampaigns обрабатывает GET /api/campaigns.
func (h *Handler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns := h.ledger.Campaigns()
	if len(campaigns) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]campaignResponse, 0, len(campaigns))
	for _, c := range campaigns {
		resp = append(resp, newCampaignResponse(c))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type campaignCountResponse struct {
	Count int64 `json:"count"`
}

// GetCampaignCount обрабатывает GET /api/campaigns/count.
func (h *Handler) GetCampaignCount(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, campaignCountResponse{Count: h.ledger.CampaignCount()})
}

// GetCampaign обрабатывает GET /api/campaigns/{id}.
func (h *Handler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	campaignID, err := campaignIDFromRequest(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	campaign, err := h.ledger.CampaignByID(campaignID)
	if errors.Is(err, ledger.ErrCampaignNotFound) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, newCampaignResponse(campaign))
}

type contributeRequest struct {
	Amount float64 `json:"amount"`
}

// Contribute обрабатывает POST /api/campaigns/{id}/contributions.
func (h *Handler) Contribute(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	campaignID, err := campaignIDFromRequest(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req contributeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Amount <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	campaign, err := h.ledger.Contribute(caller, campaignID, int64(req.Amount*ledger.CentsPerUnit))
	switch {
	case errors.Is(err, ledger.ErrCampaignNotFound):
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	case errors.Is(err, ledger.ErrInvalidState), errors.Is(err, ledger.ErrCampaignExpired):
		http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		return
	case errors.Is(err, ledger.ErrInvalidAmount):
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	case err != nil:
		h.logger.Error("contribute error", zap.Error(err), zap.Int64("campaignID", campaignID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, newCampaignResponse(campaign))
}

// CheckUpkeep обрабатывает POST /api/campaigns/{id}/upkeep.
// Вызвать может любой аутентифицированный участник.
func (h *Handler) CheckUpkeep(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.GetPrincipalFromContext(r.Context()); !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	campaignID, err := campaignIDFromRequest(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	campaign, err := h.ledger.CheckUpkeep(campaignID)
	switch {
	case errors.Is(err, ledger.ErrCampaignNotFound):
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	case errors.Is(err, ledger.ErrInvalidState), errors.Is(err, ledger.ErrDeadlineNotReached):
		http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		return
	case err != nil:
		h.logger.Error("check upkeep error", zap.Error(err), zap.Int64("campaignID", campaignID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, newCampaignResponse(campaign))
}

type withdrawalResponse struct {
	CampaignID int64   `json:"campaign_id"`
	Withdrawn  float64 `json:"withdrawn"`
}

// Withdraw обрабатывает POST /api/campaigns/{id}/withdrawal.
// Доступно только создателю кампании.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	campaignID, err := campaignIDFromRequest(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	amount, err := h.ledger.WithdrawFunds(r.Context(), caller, campaignID)
	switch {
	case errors.Is(err, ledger.ErrCampaignNotFound):
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	case errors.Is(err, ledger.ErrNotCreator):
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	case errors.Is(err, ledger.ErrInvalidState):
		http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		return
	case errors.Is(err, ledger.ErrTransferFailed):
		h.logger.Error("withdraw transfer error", zap.Error(err), zap.Int64("campaignID", campaignID))
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	case err != nil:
		h.logger.Error("withdraw error", zap.Error(err), zap.Int64("campaignID", campaignID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := withdrawalResponse{
		CampaignID: campaignID,
		Withdrawn:  float64(amount) / ledger.CentsPerUnit,
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type refundResponse struct {
	CampaignID int64   `json:"campaign_id"`
	Refunded   float64 `json:"refunded"`
}

// Refund обрабатывает POST /api/campaigns/{id}/refund.
func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	campaignID, err := campaignIDFromRequest(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	amount, err := h.ledger.Refund(r.Context(), caller, campaignID)
	switch {
	case errors.Is(err, ledger.ErrCampaignNotFound):
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	case errors.Is(err, ledger.ErrInvalidState):
		http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		return
	case errors.Is(err, ledger.ErrNoContribution):
		http.Error(w, http.StatusText(http.StatusPaymentRequired), http.StatusPaymentRequired)
		return
	case errors.Is(err, ledger.ErrTransferFailed):
		h.logger.Error("refund transfer error", zap.Error(err), zap.Int64("campaignID", campaignID))
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	case err != nil:
		h.logger.Error("refund error", zap.Error(err), zap.Int64("campaignID", campaignID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := refundResponse{
		CampaignID: campaignID,
		Refunded:   float64(amount) / ledger.CentsPerUnit,
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type postUpdateRequest struct {
	Message string `json:"message"`
}

// PostUpdate обрабатывает POST /api/campaigns/{id}/updates.
// Доступно только создателю кампании.
func (h *Handler) PostUpdate(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	campaignID, err := campaignIDFromRequest(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req postUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	update, err := h.ledger.PostUpdate(caller, campaignID, req.Message)
	switch {
	case errors.Is(err, ledger.ErrCampaignNotFound):
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	case errors.Is(err, ledger.ErrNotCreator):
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	case errors.Is(err, ledger.ErrEmptyUpdate):
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	case errors.Is(err, ledger.ErrUpdateTooLong):
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	case err != nil:
		h.logger.Error("post update error", zap.Error(err), zap.Int64("campaignID", campaignID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusCreated, newUpdateResponse(update))
}

// ListUpdates обрабатывает GET /api/campaigns/{id}/updates.
func (h *Handler) ListUpdates(w http.ResponseWriter, r *http.Request) {
	campaignID, err := campaignIDFromRequest(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	updates, err := h.ledger.Updates(campaignID)
	if errors.Is(err, ledger.ErrCampaignNotFound) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}

	if len(updates) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]updateResponse, 0, len(updates))
	for _, u := range updates {
		resp = append(resp, newUpdateResponse(u))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// GetUpdate обрабатывает GET /api/campaigns/{id}/updates/{index}.
func (h *Handler) GetUpdate(w http.ResponseWriter, r *http.Request) {
	campaignID, err := campaignIDFromRequest(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	index, err := strconv.ParseInt(chi.URLParam(r, "index"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	update, err := h.ledger.UpdateAt(campaignID, index)
	switch {
	case errors.Is(err, ledger.ErrCampaignNotFound), errors.Is(err, ledger.ErrUpdateIndexOutOfRange):
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	case err != nil:
		h.logger.Error("get update error", zap.Error(err), zap.Int64("campaignID", campaignID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, newUpdateResponse(update))
}

type pledgeResponse struct {
	CampaignID int64   `json:"campaign_id"`
	Principal  string  `json:"principal"`
	Amount     float64 `json:"amount"`
}

// GetPledge обрабатывает GET /api/campaigns/{id}/contributions/{principal}.
func (h *Handler) GetPledge(w http.ResponseWriter, r *http.Request) {
	campaignID, err := campaignIDFromRequest(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	principal := chi.URLParam(r, "principal")
	if !validation.IsValidPrincipal(principal) {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	amount, err := h.ledger.PledgeOf(campaignID, model.Principal(principal))
	if errors.Is(err, ledger.ErrCampaignNotFound) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}

	resp := pledgeResponse{
		CampaignID: campaignID,
		Principal:  principal,
		Amount:     float64(amount) / ledger.CentsPerUnit,
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// GetNotifications обрабатывает GET /api/notifications.
// Без настроенного журнала уведомлений отвечает 503.
func (h *Handler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}

	notifications, err := h.journal.Recent(r.Context(), notificationsLimit)
	if err != nil {
		h.logger.Error("get notifications error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(notifications) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.writeJSON(w, http.StatusOK, notifications)
}
