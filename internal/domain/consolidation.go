package domain

import "fmt"

// ConsolidationPlan describes how an anonymous cart folds into a user cart:
// quantity bumps for product matches, reparents for everything else, and the
// anonymous cart's deletion. Versions of both carts are captured at planning
// time and must be re-validated inside the transaction that applies the plan.
type ConsolidationPlan struct {
	UserCartID  string
	AnonCartID  string
	UserVersion int64
	AnonVersion int64
	Bumps       []QuantityBump
	Reparents   []string
	Warnings    []string
}

// QuantityBump merges an anonymous line into an existing user line. The new
// total is re-derived from the user line's unit price, never by summing the
// two line totals, so diverged price snapshots cannot introduce drift.
type QuantityBump struct {
	DetailID        string
	NewQuantity     int
	TotalPriceCents int64
}

// Empty reports whether applying the plan would change any line. The
// anonymous cart is still discarded for a non-empty anonymous cart whose
// lines were all skipped, so Empty only short-circuits pure no-ops.
func (p ConsolidationPlan) Empty() bool {
	return len(p.Bumps) == 0 && len(p.Reparents) == 0
}

// PlanConsolidation computes the merge of anonCart into userCart.
//
// ACTIVE anonymous lines merge additively into the ACTIVE user line for the
// same product, or reparent unchanged when the user cart has none. Lines in
// PENDING or SAVED state reparent unchanged, keeping their identity and
// status. DELETED, EXPIRED and ABANDONED lines stay behind and vanish with
// the anonymous cart.
//
// Duplicate ACTIVE lines for one product are a data-integrity defect; the
// first line in order is canonical, later ones are reported as warnings and
// never summed twice.
func PlanConsolidation(userCart, anonCart *Cart) ConsolidationPlan {
	plan := ConsolidationPlan{
		UserCartID:  userCart.ID,
		AnonCartID:  anonCart.ID,
		UserVersion: userCart.VersionNo,
		AnonVersion: anonCart.VersionNo,
	}

	canonical := make(map[string]*CartDetail, len(userCart.Details))
	for i := range userCart.Details {
		d := &userCart.Details[i]
		if d.Status != StatusActive {
			continue
		}
		if _, dup := canonical[d.ProductID]; dup {
			plan.Warnings = append(plan.Warnings, fmt.Sprintf("duplicate ACTIVE line for product %s in user cart %s (detail %s ignored)", d.ProductID, userCart.ID, d.ID))
			continue
		}
		canonical[d.ProductID] = d
	}

	// Tracks quantities already bumped so a second pathological ACTIVE
	// anonymous line for the same product is skipped, not double-counted.
	merged := make(map[string]bool)

	for i := range anonCart.Details {
		d := &anonCart.Details[i]
		switch d.Status {
		case StatusActive:
		case StatusPending, StatusSaved:
			plan.Reparents = append(plan.Reparents, d.ID)
			continue
		default:
			continue
		}

		if merged[d.ProductID] {
			plan.Warnings = append(plan.Warnings, fmt.Sprintf("duplicate ACTIVE line for product %s in anonymous cart %s (detail %s ignored)", d.ProductID, anonCart.ID, d.ID))
			continue
		}

		target, ok := canonical[d.ProductID]
		if !ok {
			plan.Reparents = append(plan.Reparents, d.ID)
			merged[d.ProductID] = true
			continue
		}

		newQty := target.Quantity + d.Quantity
		plan.Bumps = append(plan.Bumps, QuantityBump{
			DetailID:        target.ID,
			NewQuantity:     newQty,
			TotalPriceCents: target.UnitPriceCents * int64(newQty),
		})
		merged[d.ProductID] = true
	}

	return plan
}
