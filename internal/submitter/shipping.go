package submitter

import (
	"context"
	"fmt"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"storefront/internal/coordinator"
	"storefront/internal/events"
	"storefront/internal/metrics"
	"storefront/internal/session"
)

const resourceShipping = "shippingMethods"

var ignoreServerID = cmpopts.IgnoreFields(session.ShippingMethod{}, "ID")

// SameShippingMethod reports whether a and b describe the same method,
// ignoring server IDs.
func SameShippingMethod(a, b session.ShippingMethod) bool {
	return cmp.Equal(a, b, ignoreServerID)
}

// DiffShipping compares the current selection against the last saved
// snapshot and returns at most one operation per slot: create for a newly
// selected method, update for a modified one, delete for a deselected one.
// Payloads are session.ShippingMethod values.
func DiffShipping(prior, current session.ShippingState) []BatchOperation {
	var ops []BatchOperation
	for _, slot := range session.ShippingSlots {
		before, after := prior.Get(slot), current.Get(slot)
		switch {
		case before == nil && after == nil:
		case after == nil:
			if before.ID == "" {
				continue
			}
			ops = append(ops, BatchOperation{Kind: OpDelete, Resource: resourceShipping, Slot: string(slot), Target: before.ID})
		case before == nil || before.ID == "":
			m := *after
			m.ID = ""
			ops = append(ops, BatchOperation{Kind: OpCreate, Resource: resourceShipping, Slot: string(slot), Payload: m})
		case !SameShippingMethod(*before, *after):
			m := *after
			m.ID = before.ID
			ops = append(ops, BatchOperation{Kind: OpUpdate, Resource: resourceShipping, Slot: string(slot), Target: before.ID, Payload: m})
		}
	}
	return ops
}

// ShippingChange is the applied result of one shipping operation. Method is
// nil for deletes.
type ShippingChange struct {
	Slot   session.ShippingSlot    `json:"slot"`
	Kind   OpKind                  `json:"kind"`
	Method *session.ShippingMethod `json:"method,omitempty"`
}

// ShippingOutcome is the resolution of a reconciliation. Saved is the new
// saved snapshot and is only set on success.
type ShippingOutcome struct {
	Success bool
	Err     error
	Saved   session.ShippingState
	Changes []ShippingChange
}

// ApplyShippingChanges returns prior with changes applied.
func ApplyShippingChanges(prior session.ShippingState, changes []ShippingChange) session.ShippingState {
	saved := prior.Clone()
	for _, c := range changes {
		var m *session.ShippingMethod
		if c.Method != nil {
			cp := *c.Method
			m = &cp
		}
		_ = saved.Set(c.Slot, m)
	}
	return saved
}

// ReconcileShipping brings the remote shipping methods of listingID in line
// with current. When nothing changed it resolves successfully before
// returning, without any remote call.
func (s *Submitter) ReconcileShipping(ctx context.Context, sessionID, listingID string, prior, current session.ShippingState, done func(ShippingOutcome)) (*coordinator.Run[ShippingChange], error) {
	planned := DiffShipping(prior, current)
	if len(planned) > 0 && s.cfg.API == nil {
		return nil, ErrNoAPI
	}

	ops := make([]coordinator.Op[ShippingChange], len(planned))
	for i, op := range planned {
		ops[i] = s.shippingOp(listingID, op)
	}

	return launch(ctx, s, batch{
		kind:      metrics.EventShippingReconcile,
		sessionID: sessionID,
		event:     events.ShippingUpdate(sessionID),
		items:     len(ops),
	}, ops, func(out coordinator.Outcome[ShippingChange]) any {
		res := ShippingOutcome{Success: out.Success, Err: out.Err, Changes: out.Payload}
		if out.Success {
			res.Saved = ApplyShippingChanges(prior, out.Payload)
		}
		if done != nil {
			done(res)
		}
		return res.Saved
	}), nil
}

func (s *Submitter) shippingOp(listingID string, op BatchOperation) coordinator.Op[ShippingChange] {
	slot := session.ShippingSlot(op.Slot)
	return func(ctx context.Context) (ShippingChange, error) {
		ctx, cancel := s.opContext(ctx)
		defer cancel()

		change := ShippingChange{Slot: slot, Kind: op.Kind}
		switch op.Kind {
		case OpCreate, OpUpdate:
			m, ok := op.Payload.(session.ShippingMethod)
			if !ok {
				return change, fmt.Errorf("%s shipping %s: payload is %T", op.Kind, slot, op.Payload)
			}
			var err error
			if op.Kind == OpCreate {
				m, err = s.cfg.API.CreateShippingMethod(ctx, listingID, m)
			} else {
				m, err = s.cfg.API.UpdateShippingMethod(ctx, listingID, m)
			}
			if err != nil {
				return change, fmt.Errorf("%s shipping %s: %w", op.Kind, slot, err)
			}
			change.Method = &m
		case OpDelete:
			if err := s.cfg.API.DeleteShippingMethod(ctx, op.Target); err != nil {
				return change, fmt.Errorf("delete shipping %s: %w", slot, err)
			}
		default:
			return change, fmt.Errorf("unknown operation %q", op.Kind)
		}
		return change, nil
	}
}
