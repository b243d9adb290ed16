package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"registration-service/internal/services"
)

// SubscriptionHandler handles subscription provisioning and lifecycle requests
type SubscriptionHandler struct {
	provisioningService *services.ProvisioningService
	lifecycleService    *services.LifecycleService
}

// NewSubscriptionHandler creates a new subscription handler
func NewSubscriptionHandler(provisioningService *services.ProvisioningService, lifecycleService *services.LifecycleService) *SubscriptionHandler {
	return &SubscriptionHandler{
		provisioningService: provisioningService,
		lifecycleService:    lifecycleService,
	}
}

// SubscribeRequest represents a direct subscribe request for an existing business
type SubscribeRequest struct {
	BusinessID string `json:"business_id" binding:"required"`
	PlanKey    string `json:"plan_key" binding:"required"`
}

// Subscribe provisions a subscription for an existing business. Trial plans
// activate immediately; paid plans return a client secret continuation.
// @Summary Subscribe a business to a plan
// @Tags subscriptions
// @Accept json
// @Produce json
// @Param request body SubscribeRequest true "Subscribe request"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Failure 502 {object} map[string]interface{}
// @Router /api/v1/subscriptions [post]
func (h *SubscriptionHandler) Subscribe(c *gin.Context) {
	var req SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request payload", err)
		return
	}

	businessID, err := uuid.Parse(req.BusinessID)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid business ID format", err)
		return
	}

	result, err := h.provisioningService.Subscribe(c.Request.Context(), businessID, req.PlanKey)
	if err != nil {
		serviceErrorResponse(c, err, "Failed to subscribe")
		return
	}

	if result.RequiresAction {
		SuccessResponse(c, http.StatusOK, "Payment confirmation required", result)
		return
	}
	SuccessResponse(c, http.StatusOK, "Subscription activated", result)
}

// ActivateRequest represents the activation payload after client-side
// payment confirmation.
type ActivateRequest struct {
	BusinessID string `json:"business_id" binding:"required"`
	IntentID   string `json:"intent_id" binding:"required"`
}

// Activate completes a paid subscription once its intent has succeeded.
// Repeating the call with the same intent is a no-op.
// @Summary Activate a subscription
// @Tags subscriptions
// @Accept json
// @Produce json
// @Param request body ActivateRequest true "Activation request"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/v1/subscriptions/activate [post]
func (h *SubscriptionHandler) Activate(c *gin.Context) {
	var req ActivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request payload", err)
		return
	}

	businessID, err := uuid.Parse(req.BusinessID)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid business ID format", err)
		return
	}

	business, err := h.provisioningService.Activate(c.Request.Context(), businessID, req.IntentID)
	if err != nil {
		serviceErrorResponse(c, err, "Failed to activate subscription")
		return
	}

	SuccessResponse(c, http.StatusOK, "Subscription activated", business)
}

// PauseRequest represents a pause request, optionally accepting a
// retention discount instead of pausing.
type PauseRequest struct {
	AcceptedOfferPct int `json:"accepted_offer_pct"`
}

// Pause pauses an active subscription, or applies a retention discount
// when the caller accepted one.
// @Summary Pause a subscription
// @Tags subscriptions
// @Accept json
// @Produce json
// @Param businessId path string true "Business ID"
// @Param request body PauseRequest false "Pause options"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/v1/subscriptions/{businessId}/pause [post]
func (h *SubscriptionHandler) Pause(c *gin.Context) {
	businessID, err := uuid.Parse(c.Param("businessId"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid business ID format", err)
		return
	}

	var req PauseRequest
	_ = c.ShouldBindJSON(&req)

	result, err := h.lifecycleService.Pause(c.Request.Context(), businessID, req.AcceptedOfferPct)
	if err != nil {
		serviceErrorResponse(c, err, "Failed to pause subscription")
		return
	}

	if result.OfferAccepted {
		SuccessResponse(c, http.StatusOK, "Retention offer applied, subscription stays active", result)
		return
	}
	SuccessResponse(c, http.StatusOK, "Subscription paused", result)
}

// Resume resumes a paused subscription on the existing payment method
// @Summary Resume a subscription
// @Tags subscriptions
// @Produce json
// @Param businessId path string true "Business ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/v1/subscriptions/{businessId}/resume [post]
func (h *SubscriptionHandler) Resume(c *gin.Context) {
	businessID, err := uuid.Parse(c.Param("businessId"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid business ID format", err)
		return
	}

	business, err := h.lifecycleService.Resume(c.Request.Context(), businessID)
	if err != nil {
		serviceErrorResponse(c, err, "Failed to resume subscription")
		return
	}

	SuccessResponse(c, http.StatusOK, "Subscription resumed", business)
}

// Cancel cancels a subscription. The business keeps serving until the
// grace window elapses; repeating the call is a no-op.
// @Summary Cancel a subscription
// @Tags subscriptions
// @Produce json
// @Param businessId path string true "Business ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/v1/subscriptions/{businessId}/cancel [post]
func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	businessID, err := uuid.Parse(c.Param("businessId"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid business ID format", err)
		return
	}

	business, err := h.lifecycleService.Cancel(c.Request.Context(), businessID)
	if err != nil {
		serviceErrorResponse(c, err, "Failed to cancel subscription")
		return
	}

	SuccessResponse(c, http.StatusOK, "Subscription canceled", business)
}

// ChangePlanRequest represents a plan change request
type ChangePlanRequest struct {
	BusinessID string `json:"business_id" binding:"required"`
	PlanKey    string `json:"plan_key" binding:"required"`
}

// ChangePlan switches a subscription to a different plan. Downgrades apply
// immediately; upgrades return a client secret for the price difference.
// @Summary Change subscription plan
// @Tags subscriptions
// @Accept json
// @Produce json
// @Param request body ChangePlanRequest true "Plan change request"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/v1/subscriptions/change-plan [post]
func (h *SubscriptionHandler) ChangePlan(c *gin.Context) {
	var req ChangePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request payload", err)
		return
	}

	businessID, err := uuid.Parse(req.BusinessID)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid business ID format", err)
		return
	}

	result, err := h.lifecycleService.ChangePlan(c.Request.Context(), businessID, req.PlanKey)
	if err != nil {
		serviceErrorResponse(c, err, "Failed to change plan")
		return
	}

	if result.Changed {
		SuccessResponse(c, http.StatusOK, "Plan changed", result)
		return
	}
	SuccessResponse(c, http.StatusOK, "Payment confirmation required", result)
}

// ConfirmChangePlanRequest represents the confirmation payload for an
// upgrade that required payment.
type ConfirmChangePlanRequest struct {
	BusinessID string `json:"business_id" binding:"required"`
	PlanKey    string `json:"plan_key" binding:"required"`
	IntentID   string `json:"intent_id" binding:"required"`
}

// ConfirmChangePlan applies an upgrade after its payment intent succeeded
// @Summary Confirm a plan change
// @Tags subscriptions
// @Accept json
// @Produce json
// @Param request body ConfirmChangePlanRequest true "Confirmation request"
// @Success 200 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/v1/subscriptions/change-plan/confirm [post]
func (h *SubscriptionHandler) ConfirmChangePlan(c *gin.Context) {
	var req ConfirmChangePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request payload", err)
		return
	}

	businessID, err := uuid.Parse(req.BusinessID)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid business ID format", err)
		return
	}

	result, err := h.lifecycleService.ConfirmPlanChange(c.Request.Context(), businessID, req.PlanKey, req.IntentID)
	if err != nil {
		serviceErrorResponse(c, err, "Failed to confirm plan change")
		return
	}

	SuccessResponse(c, http.StatusOK, "Plan changed", result)
}

// UpdatePaymentMethodRequest identifies the business changing its payment method
type UpdatePaymentMethodRequest struct {
	BusinessID string `json:"business_id" binding:"required"`
}

// UpdatePaymentMethod starts a payment method replacement. Always returns
// a fresh setup continuation, never a cached one.
// @Summary Update payment method
// @Tags subscriptions
// @Accept json
// @Produce json
// @Param request body UpdatePaymentMethodRequest true "Update request"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Failure 502 {object} map[string]interface{}
// @Router /api/v1/subscriptions/update-payment-method [post]
func (h *SubscriptionHandler) UpdatePaymentMethod(c *gin.Context) {
	var req UpdatePaymentMethodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request payload", err)
		return
	}

	businessID, err := uuid.Parse(req.BusinessID)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid business ID format", err)
		return
	}

	result, err := h.lifecycleService.UpdatePaymentMethod(c.Request.Context(), businessID)
	if err != nil {
		serviceErrorResponse(c, err, "Failed to update payment method")
		return
	}

	SuccessResponse(c, http.StatusOK, "Payment method setup created", result)
}
