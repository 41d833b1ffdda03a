package prescription

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
	read := api.Group("", auth.Require(policies, auth.ActionRead, "prescriptions"))
	read.GET("/prescriptions", h.List)
	read.GET("/prescriptions/:id", h.Get)
	read.GET("/prescriptions/:id/refills", h.ListRefills)

	write := api.Group("", auth.Require(policies, auth.ActionWrite, "prescriptions"))
	write.POST("/prescriptions", h.Create)

	lifecycle := api.Group("", auth.Require(policies, auth.ActionLifecycle, "prescriptions"))
	lifecycle.POST("/prescriptions/:id/start-review", h.StartReview)
	lifecycle.POST("/prescriptions/:id/verify", h.Verify)
	lifecycle.POST("/prescriptions/:id/consultation", h.CompleteConsultation)

	// Refills and cancellations are patient-initiated; the service checks
	// that the caller owns the prescription.
	request := api.Group("", auth.Require(policies, auth.ActionRequest, "prescriptions"))
	request.POST("/prescriptions/:id/refill", h.Refill)
	request.POST("/prescriptions/:id/cancel", h.Cancel)

	dispense := api.Group("", auth.Require(policies, auth.ActionDispense, "prescriptions"))
	dispense.POST("/prescriptions/:id/dispense", h.Dispense)

	audit := api.Group("", auth.Require(policies, auth.ActionAudit, "prescriptions"))
	audit.GET("/prescriptions/:id/audit-log", h.ListAuditLog)
}

func (h *Handler) Create(c echo.Context) error {
	var p Prescription
	if err := c.Bind(&p); err != nil {
		return apperr.Validation("invalid request body")
	}
	ctx := c.Request().Context()
	if err := h.svc.Create(ctx, &p, auth.UserIDFromContext(ctx)); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("invalid id")
	}
	p, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	filter := ListFilter{
		VerificationStatus: c.QueryParam("verification_status"),
		ProcessingStatus:   c.QueryParam("processing_status"),
	}
	if v := c.QueryParam("patient_id"); v != "" {
		pid, err := uuid.Parse(v)
		if err != nil {
			return apperr.Validation("invalid patient_id")
		}
		filter.PatientID = &pid
	}
	items, total, err := h.svc.List(c.Request().Context(), filter, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) StartReview(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("invalid id")
	}
	ctx := c.Request().Context()
	p, err := h.svc.StartReview(ctx, id, auth.UserIDFromContext(ctx))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

// verifyResponse reports the engine outcome alongside the prescription.
// On failure the prescription is unchanged and the issue list tells the
// pharmacist everything that blocked verification.
type verifyResponse struct {
	Prescription *Prescription `json:"prescription"`
	Result       *VerifyResult `json:"result"`
}

func (h *Handler) Verify(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("invalid id")
	}
	var req VerifyRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	ctx := c.Request().Context()
	p, result, err := h.svc.Verify(ctx, id, req, auth.UserIDFromContext(ctx))
	if err != nil {
		return err
	}
	if result != nil && !result.Success {
		return c.JSON(http.StatusUnprocessableEntity, verifyResponse{Prescription: p, Result: result})
	}
	return c.JSON(http.StatusOK, verifyResponse{Prescription: p, Result: result})
}

func (h *Handler) Dispense(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("invalid id")
	}
	var req DispenseRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	ctx := c.Request().Context()
	p, err := h.svc.Dispense(ctx, id, req, auth.UserIDFromContext(ctx))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Refill(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("invalid id")
	}
	ctx := c.Request().Context()
	refill, err := h.svc.Refill(ctx, id, auth.ActorFromContext(ctx))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, refill)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("invalid id")
	}
	var req cancelRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	ctx := c.Request().Context()
	p, err := h.svc.Cancel(ctx, id, req.Reason, auth.ActorFromContext(ctx))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) CompleteConsultation(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("invalid id")
	}
	ctx := c.Request().Context()
	p, err := h.svc.CompleteConsultation(ctx, id, auth.UserIDFromContext(ctx))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListRefills(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("invalid id")
	}
	items, err := h.svc.ListRefills(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListAuditLog(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("invalid id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAuditLog(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
