package session

import "fmt"

// ShippingSlot names one of the three shipping method positions.
type ShippingSlot string

const (
	ShippingStandard ShippingSlot = "standard"
	ShippingCustom   ShippingSlot = "custom"
	ShippingPickup   ShippingSlot = "pickup"
)

// ShippingSlots lists the slots in reconciliation order.
var ShippingSlots = []ShippingSlot{ShippingStandard, ShippingCustom, ShippingPickup}

// ShippingMethod is one shipping option of a listing. ID is assigned by the
// REST API on create.
type ShippingMethod struct {
	ID         string `json:"id,omitempty"`
	Carrier    string `json:"carrier" validate:"required,max=64"`
	Service    string `json:"service,omitempty" validate:"max=64"`
	PriceCents int64  `json:"price_cents" validate:"gte=0"`
	Currency   string `json:"currency" validate:"required,len=3"`
	MinDays    int    `json:"min_days,omitempty" validate:"gte=0"`
	MaxDays    int    `json:"max_days,omitempty" validate:"omitempty,gtefield=MinDays"`
	Notes      string `json:"notes,omitempty" validate:"max=500"`
}

// ShippingState holds each slot's method; nil means absent or deselected.
type ShippingState struct {
	Standard *ShippingMethod `json:"standard,omitempty"`
	Custom   *ShippingMethod `json:"custom,omitempty"`
	Pickup   *ShippingMethod `json:"pickup,omitempty"`
}

// Get returns the method in slot, or nil.
func (s ShippingState) Get(slot ShippingSlot) *ShippingMethod {
	switch slot {
	case ShippingStandard:
		return s.Standard
	case ShippingCustom:
		return s.Custom
	case ShippingPickup:
		return s.Pickup
	default:
		return nil
	}
}

// Set stores m in slot; nil deselects it.
func (s *ShippingState) Set(slot ShippingSlot, m *ShippingMethod) error {
	switch slot {
	case ShippingStandard:
		s.Standard = m
	case ShippingCustom:
		s.Custom = m
	case ShippingPickup:
		s.Pickup = m
	default:
		return fmt.Errorf("unknown shipping slot %q", slot)
	}
	return nil
}

// Clone deep-copies the state.
func (s ShippingState) Clone() ShippingState {
	cp := func(m *ShippingMethod) *ShippingMethod {
		if m == nil {
			return nil
		}
		c := *m
		return &c
	}
	return ShippingState{Standard: cp(s.Standard), Custom: cp(s.Custom), Pickup: cp(s.Pickup)}
}
