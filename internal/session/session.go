// Package session holds the state of one listing edit: photo slots, the
// committed photo keys, shipping methods and variant groups. A session is
// owned by its caller; the submitter only ever reads snapshots.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"storefront/internal/pipeline"
)

// MaxSlots is the number of photos a listing can hold.
const MaxSlots = 4

var (
	ErrSlotsFull    = errors.New("all photo slots are in use")
	ErrSlotNotFound = errors.New("photo slot not found")
)

type SlotStatus string

const (
	SlotPending SlotStatus = "pending"
	SlotReady   SlotStatus = "ready"
	SlotFailed  SlotStatus = "failed"
)

// AssetSlot binds one normalized photo to a position in the listing.
type AssetSlot struct {
	Index  int                       `json:"index"`
	Status SlotStatus                `json:"status"`
	Name   string                    `json:"name,omitempty"`
	Asset  *pipeline.NormalizedAsset `json:"asset,omitempty"`
	Key    string                    `json:"key,omitempty"`
	Error  string                    `json:"error,omitempty"`
}

// EditSession is one listing being edited.
type EditSession struct {
	ID            string         `json:"id"`
	OwnerID       string         `json:"owner_id"`
	Category      string         `json:"category"`
	Slots         []AssetSlot    `json:"slots"`
	PhotoKeys     []string       `json:"photo_keys"`
	Shipping      ShippingState  `json:"shipping"`
	ShippingSaved ShippingState  `json:"shipping_saved"`
	Variants      []VariantGroup `json:"variants"`
	VariantIDs    []string       `json:"variant_ids"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// New starts an empty session with a random ID.
func New(ownerID, category string) *EditSession {
	return &EditSession{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Category:  category,
		Slots:     []AssetSlot{},
		PhotoKeys: []string{},
		UpdatedAt: time.Now().UTC(),
	}
}

func (s *EditSession) touch() { s.UpdatedAt = time.Now().UTC() }

// AddSlot appends a pending slot and returns its index.
func (s *EditSession) AddSlot(name string) (int, error) {
	if len(s.Slots) >= MaxSlots {
		return 0, ErrSlotsFull
	}
	i := len(s.Slots)
	s.Slots = append(s.Slots, AssetSlot{Index: i, Status: SlotPending, Name: name})
	s.touch()
	return i, nil
}

// FreeSlots returns how many slots can still be added.
func (s *EditSession) FreeSlots() int {
	return MaxSlots - len(s.Slots)
}

func (s *EditSession) slot(i int) (*AssetSlot, error) {
	if i < 0 || i >= len(s.Slots) {
		return nil, fmt.Errorf("%w: %d", ErrSlotNotFound, i)
	}
	return &s.Slots[i], nil
}

// SetReady stores a normalized asset in slot i.
func (s *EditSession) SetReady(i int, asset *pipeline.NormalizedAsset) error {
	sl, err := s.slot(i)
	if err != nil {
		return err
	}
	sl.Status = SlotReady
	sl.Asset = asset
	sl.Error = ""
	s.touch()
	return nil
}

// SetFailed marks slot i failed. Sibling slots are untouched.
func (s *EditSession) SetFailed(i int, cause error) error {
	sl, err := s.slot(i)
	if err != nil {
		return err
	}
	sl.Status = SlotFailed
	sl.Asset = nil
	if cause != nil {
		sl.Error = cause.Error()
	}
	s.touch()
	return nil
}

// RemoveSlot deletes slot i and shifts the later slots down so indices stay
// contiguous from 0 in their original relative order.
func (s *EditSession) RemoveSlot(i int) error {
	if _, err := s.slot(i); err != nil {
		return err
	}
	s.Slots = CompactSlots(s.Slots, i)
	s.touch()
	return nil
}

// CompactSlots returns slots without index i, renumbered from 0. The input
// slice is not modified.
func CompactSlots(slots []AssetSlot, i int) []AssetSlot {
	out := make([]AssetSlot, 0, len(slots))
	for j, sl := range slots {
		if j == i {
			continue
		}
		sl.Index = len(out)
		out = append(out, sl)
	}
	return out
}

// ReadyAssets returns the assets of ready slots in slot order.
func (s *EditSession) ReadyAssets() []*pipeline.NormalizedAsset {
	var out []*pipeline.NormalizedAsset
	for _, sl := range s.Slots {
		if sl.Status == SlotReady && sl.Asset != nil {
			out = append(out, sl.Asset)
		}
	}
	return out
}

// CommitPhotoKeys replaces the committed photo keys. keys[i] is the key
// uploaded for assets[i]; each slot still holding one of those assets gets
// its key, and every other slot loses any key it had. Slots added, removed
// or re-prepared while the upload ran are matched by asset, not position.
func (s *EditSession) CommitPhotoKeys(assets []*pipeline.NormalizedAsset, keys []string) {
	s.PhotoKeys = append([]string{}, keys...)
	used := make([]bool, len(assets))
	for i := range s.Slots {
		sl := &s.Slots[i]
		sl.Key = ""
		if sl.Status != SlotReady || sl.Asset == nil {
			continue
		}
		for j, a := range assets {
			if !used[j] && a == sl.Asset && j < len(keys) {
				used[j] = true
				sl.Key = keys[j]
				break
			}
		}
	}
	s.touch()
}

// CommitShipping records the saved shipping snapshot returned by a
// successful reconciliation and adopts its server IDs.
func (s *EditSession) CommitShipping(saved ShippingState) {
	s.ShippingSaved = saved.Clone()
	s.Shipping = saved.Clone()
	s.touch()
}

// CommitVariants stores the posted groups and their server IDs.
func (s *EditSession) CommitVariants(groups []VariantGroup, ids []string) {
	s.Variants = cloneGroups(groups)
	s.VariantIDs = append([]string{}, ids...)
	s.touch()
}

// Snapshot returns a copy the caller can hand to the submitter. Assets are
// shared since they are immutable.
func (s *EditSession) Snapshot() EditSession {
	c := *s
	c.Slots = append([]AssetSlot{}, s.Slots...)
	c.PhotoKeys = append([]string{}, s.PhotoKeys...)
	c.Shipping = s.Shipping.Clone()
	c.ShippingSaved = s.ShippingSaved.Clone()
	c.Variants = cloneGroups(s.Variants)
	c.VariantIDs = append([]string{}, s.VariantIDs...)
	return c
}
