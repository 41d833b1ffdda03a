package order

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/pharmacart/pharmacart/internal/platform/apperr"
	"github.com/pharmacart/pharmacart/internal/platform/auth"
	"github.com/pharmacart/pharmacart/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group, policies *auth.PolicyEngine) {
	read := api.Group("", auth.Require(policies, auth.ActionRead, "orders"))
	read.GET("/orders", h.List)
	read.GET("/orders/:id", h.Get)

	checkout := api.Group("", auth.Require(policies, auth.ActionCheckout, "orders"))
	checkout.POST("/checkout", h.Checkout)

	write := api.Group("", auth.Require(policies, auth.ActionWrite, "orders"))
	write.PUT("/orders/:id/status", h.UpdateStatus)
	write.PUT("/orders/:id/tracking", h.SetTracking)

	// Manual charge retries bypass the scheduled retry job, so they are
	// restricted to admins.
	write.POST("/orders/:id/retry-payment", h.RetryPayment, auth.RequireRole(auth.RoleAdmin))
}

type checkoutRequest struct {
	CartID uuid.UUID `json:"cart_id"`
}

func (h *Handler) Checkout(c echo.Context) error {
	var req checkoutRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	if req.CartID == uuid.Nil {
		return apperr.Validation("cart_id is required").WithField("cart_id", "required")
	}
	ctx := c.Request().Context()
	o, err := h.svc.Checkout(ctx, req.CartID, auth.UserIDFromContext(ctx))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, o)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("invalid id")
	}
	ctx := c.Request().Context()
	o, err := h.svc.Get(ctx, id, auth.ActorFromContext(ctx))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	ctx := c.Request().Context()

	// Patients only see their own orders; staff may pass an owner filter
	// or none at all.
	ownerID := c.QueryParam("owner_id")
	actor := auth.ActorFromContext(ctx)
	if !actor.Staff {
		ownerID = actor.ID
	}

	items, total, err := h.svc.List(ctx, ownerID, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("invalid id")
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	o, err := h.svc.UpdateStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, o)
}

type trackingRequest struct {
	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"tracking_number"`
}

func (h *Handler) SetTracking(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("invalid id")
	}
	var req trackingRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	o, err := h.svc.SetTracking(c.Request().Context(), id, req.Carrier, req.TrackingNumber)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) RetryPayment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("invalid id")
	}
	p, err := h.svc.RetryPayment(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}
