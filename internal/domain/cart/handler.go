package cart

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/pharmacart/pharmacart/internal/platform/apperr"
	"github.com/pharmacart/pharmacart/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group, policies *auth.PolicyEngine) {
	read := api.Group("", auth.Require(policies, auth.ActionRead, "carts"))
	read.GET("/cart", h.GetOwn)
	read.GET("/carts/:id", h.Get)

	write := api.Group("", auth.Require(policies, auth.ActionWrite, "carts"))
	write.POST("/carts/:id/items", h.AddItem)
	write.PUT("/carts/:id/items/:itemId", h.UpdateItemQuantity)
	write.DELETE("/carts/:id/items/:itemId", h.RemoveItem)
	write.PUT("/carts/:id/shipping", h.SetShipping)
	write.POST("/carts/:id/recompute", h.Recompute)
}

// GetOwn resolves the caller's active cart, creating one on first use.
func (h *Handler) GetOwn(c echo.Context) error {
	ctx := c.Request().Context()
	cart, err := h.svc.GetOrCreate(ctx, auth.UserIDFromContext(ctx))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cart)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("invalid id")
	}
	ctx := c.Request().Context()
	cart, err := h.svc.Get(ctx, id, auth.ActorFromContext(ctx))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cart)
}

func (h *Handler) AddItem(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("invalid id")
	}
	var req AddItemRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	ctx := c.Request().Context()
	cart, err := h.svc.AddItem(ctx, id, req, auth.ActorFromContext(ctx), nil)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cart)
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) UpdateItemQuantity(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("invalid id")
	}
	itemID, err := uuid.Parse(c.Param("itemId"))
	if err != nil {
		return apperr.Validation("invalid item id")
	}
	var req quantityRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	ctx := c.Request().Context()
	cart, err := h.svc.UpdateItemQuantity(ctx, id, itemID, req.Quantity, auth.ActorFromContext(ctx), nil)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cart)
}

func (h *Handler) RemoveItem(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("invalid id")
	}
	itemID, err := uuid.Parse(c.Param("itemId"))
	if err != nil {
		return apperr.Validation("invalid item id")
	}
	ctx := c.Request().Context()
	cart, err := h.svc.RemoveItem(ctx, id, itemID, auth.ActorFromContext(ctx), nil)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cart)
}

type shippingRequest struct {
	Method string `json:"method"`
	State  string `json:"state"`
}

func (h *Handler) SetShipping(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("invalid id")
	}
	var req shippingRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	ctx := c.Request().Context()
	cart, err := h.svc.SetShipping(ctx, id, req.Method, req.State, auth.ActorFromContext(ctx), nil)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cart)
}

func (h *Handler) Recompute(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("invalid id")
	}
	ctx := c.Request().Context()
	cart, _, err := h.svc.Recompute(ctx, id, auth.ActorFromContext(ctx))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cart)
}
