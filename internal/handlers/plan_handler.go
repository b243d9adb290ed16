package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"registration-service/internal/services"
)

// PlanHandler handles subscription plan catalog HTTP requests
type PlanHandler struct {
	catalogService *services.CatalogService
}

// NewPlanHandler creates a new plan handler
func NewPlanHandler(catalogService *services.CatalogService) *PlanHandler {
	return &PlanHandler{catalogService: catalogService}
}

// ListPlans returns the plan catalog. By default only active, publicly
// listed plans are returned; admin callers can widen the view.
// @Summary List subscription plans
// @Tags plans
// @Produce json
// @Param include_inactive query bool false "Include inactive plans"
// @Param include_hidden query bool false "Include non-public plans"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/subscription-plans [get]
func (h *PlanHandler) ListPlans(c *gin.Context) {
	activeOnly := c.Query("include_inactive") != "true"
	publicOnly := c.Query("include_hidden") != "true"

	plans, err := h.catalogService.ListPlans(c.Request.Context(), activeOnly, publicOnly)
	if err != nil {
		ErrorResponse(c, http.StatusInternalServerError, "Failed to list plans", err)
		return
	}

	SuccessResponse(c, http.StatusOK, "Plans retrieved", gin.H{
		"plans": plans,
		"total": len(plans),
	})
}

// GetPlan returns a single plan by key
// @Summary Get a subscription plan
// @Tags plans
// @Produce json
// @Param key path string true "Plan key"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/v1/subscription-plans/{key} [get]
func (h *PlanHandler) GetPlan(c *gin.Context) {
	plan, err := h.catalogService.GetPlan(c.Request.Context(), c.Param("key"))
	if err != nil {
		serviceErrorResponse(c, err, "Failed to get plan")
		return
	}

	SuccessResponse(c, http.StatusOK, "Plan retrieved", plan)
}
