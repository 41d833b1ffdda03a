package auth

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/pharmacart/pharmacart/internal/platform/apperr"
)

// Actions evaluated by the policy engine.
const (
	ActionRead      = "read"
	ActionWrite     = "write"
	ActionLifecycle = "lifecycle"
	ActionRequest   = "request"
	ActionDispense  = "dispense"
	ActionAudit     = "audit"
	ActionCheckout  = "checkout"
)

// Policy grants roles an action on a resource. Access checks run once per
// request before dispatch; handlers contain no inline role checks.
type Policy struct {
	Resource     string   `json:"resource"`
	Action       string   `json:"action"`
	AllowedRoles []string `json:"allowed_roles"`
}

// PolicyEngine evaluates (role, action, resource) access policies with
// default deny.
type PolicyEngine struct {
	policies []Policy
}

func NewPolicyEngine(policies []Policy) *PolicyEngine {
	return &PolicyEngine{policies: policies}
}

// DefaultPolicies returns the access policy table for the pharmacy API.
func DefaultPolicies() []Policy {
	return []Policy{
		{Resource: "products", Action: ActionRead, AllowedRoles: []string{RolePatient, RolePharmacist}},
		{Resource: "products", Action: ActionWrite, AllowedRoles: []string{RoleAdmin}},
		{Resource: "prescribers", Action: ActionRead, AllowedRoles: []string{RolePharmacist}},
		{Resource: "prescribers", Action: ActionWrite, AllowedRoles: []string{RoleAdmin}},
		{Resource: "prescriptions", Action: ActionRead, AllowedRoles: []string{RolePatient, RolePharmacist}},
		{Resource: "prescriptions", Action: ActionWrite, AllowedRoles: []string{RolePatient, RolePharmacist}},
		{Resource: "prescriptions", Action: ActionLifecycle, AllowedRoles: []string{RolePharmacist}},
		{Resource: "prescriptions", Action: ActionRequest, AllowedRoles: []string{RolePatient, RolePharmacist}},
		{Resource: "prescriptions", Action: ActionDispense, AllowedRoles: []string{RolePharmacist}},
		{Resource: "prescriptions", Action: ActionAudit, AllowedRoles: []string{RolePharmacist}},
		{Resource: "carts", Action: ActionRead, AllowedRoles: []string{RolePatient, RolePharmacist}},
		{Resource: "carts", Action: ActionWrite, AllowedRoles: []string{RolePatient, RolePharmacist}},
		{Resource: "orders", Action: ActionRead, AllowedRoles: []string{RolePatient, RolePharmacist}},
		{Resource: "orders", Action: ActionCheckout, AllowedRoles: []string{RolePatient}},
		{Resource: "orders", Action: ActionWrite, AllowedRoles: []string{RolePharmacist}},
	}
}

// Decision is the result of a policy evaluation.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// Evaluate checks whether the caller's roles allow the action on the
// resource. Admins bypass the table; an unknown (resource, action) pair is
// denied.
func (e *PolicyEngine) Evaluate(ctx context.Context, action, resource string) *Decision {
	roles := RolesFromContext(ctx)

	for _, r := range roles {
		if r == RoleAdmin {
			return &Decision{Allowed: true, Reason: "admin role"}
		}
	}

	for _, policy := range e.policies {
		if policy.Resource != resource || policy.Action != action {
			continue
		}
		for _, allowed := range policy.AllowedRoles {
			for _, r := range roles {
				if r == allowed {
					return &Decision{Allowed: true, Reason: "policy match"}
				}
			}
		}
		return &Decision{Allowed: false, Reason: "insufficient role for " + action + " on " + resource}
	}

	return &Decision{Allowed: false, Reason: "no policy for " + action + " on " + resource}
}

// Require returns middleware enforcing the policy for an action on a resource.
func Require(engine *PolicyEngine, action, resource string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			decision := engine.Evaluate(c.Request().Context(), action, resource)
			if !decision.Allowed {
				return apperr.Authorization("%s", decision.Reason)
			}
			return next(c)
		}
	}
}
