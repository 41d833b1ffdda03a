package auth

import (
	"context"
	"testing"
)

func ctxWithRoles(roles ...string) context.Context {
	return context.WithValue(context.Background(), UserRolesKey, roles)
}

func TestEvaluate_PolicyMatch(t *testing.T) {
	engine := NewPolicyEngine(DefaultPolicies())

	d := engine.Evaluate(ctxWithRoles(RolePharmacist), ActionLifecycle, "prescriptions")
	if !d.Allowed {
		t.Errorf("expected pharmacist to pass lifecycle on prescriptions: %s", d.Reason)
	}

	d = engine.Evaluate(ctxWithRoles(RolePatient), ActionLifecycle, "prescriptions")
	if d.Allowed {
		t.Error("expected patient to be denied lifecycle on prescriptions")
	}
}

func TestEvaluate_AdminBypass(t *testing.T) {
	engine := NewPolicyEngine(DefaultPolicies())

	d := engine.Evaluate(ctxWithRoles(RoleAdmin), ActionDispense, "prescriptions")
	if !d.Allowed {
		t.Errorf("expected admin bypass: %s", d.Reason)
	}
}

func TestEvaluate_DefaultDeny(t *testing.T) {
	engine := NewPolicyEngine(DefaultPolicies())

	d := engine.Evaluate(ctxWithRoles(RolePharmacist), "purge", "prescriptions")
	if d.Allowed {
		t.Error("expected unknown action to be denied")
	}

	d = engine.Evaluate(ctxWithRoles(RolePharmacist), ActionRead, "invoices")
	if d.Allowed {
		t.Error("expected unknown resource to be denied")
	}
}

func TestEvaluate_NoRoles(t *testing.T) {
	engine := NewPolicyEngine(DefaultPolicies())

	d := engine.Evaluate(context.Background(), ActionRead, "products")
	if d.Allowed {
		t.Error("expected request without roles to be denied")
	}
}

func TestEvaluate_RequestIsPatientAccessible(t *testing.T) {
	engine := NewPolicyEngine(DefaultPolicies())

	if d := engine.Evaluate(ctxWithRoles(RolePatient), ActionRequest, "prescriptions"); !d.Allowed {
		t.Errorf("expected patient to pass request on prescriptions: %s", d.Reason)
	}
	if d := engine.Evaluate(ctxWithRoles(RolePharmacist), ActionRequest, "prescriptions"); !d.Allowed {
		t.Errorf("expected pharmacist to pass request on prescriptions: %s", d.Reason)
	}
}

func TestActorFromContext(t *testing.T) {
	ctx := context.WithValue(ctxWithRoles(RolePatient), UserIDKey, "patient-1")
	a := ActorFromContext(ctx)
	if a.ID != "patient-1" || a.Staff {
		t.Errorf("actor = %+v, want patient-1 non-staff", a)
	}

	ctx = context.WithValue(ctxWithRoles(RolePharmacist), UserIDKey, "rph-1")
	if a := ActorFromContext(ctx); !a.Staff {
		t.Error("pharmacist should be staff")
	}
	ctx = context.WithValue(ctxWithRoles(RoleAdmin), UserIDKey, "admin-1")
	if a := ActorFromContext(ctx); !a.Staff {
		t.Error("admin should be staff")
	}
}

func TestEvaluate_CheckoutIsPatientOnly(t *testing.T) {
	engine := NewPolicyEngine(DefaultPolicies())

	if d := engine.Evaluate(ctxWithRoles(RolePatient), ActionCheckout, "orders"); !d.Allowed {
		t.Errorf("expected patient to pass checkout: %s", d.Reason)
	}
	if d := engine.Evaluate(ctxWithRoles(RolePharmacist), ActionCheckout, "orders"); d.Allowed {
		t.Error("expected pharmacist to be denied checkout")
	}
}
