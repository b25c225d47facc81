package submitter

import (
	"context"
	"fmt"

	"storefront/internal/coordinator"
	"storefront/internal/events"
	"storefront/internal/metrics"
	"storefront/internal/session"
)

// PostVariants creates one variant per group. groups must already be
// cleaned (see session.CleanVariantGroups). On success done receives the
// server-assigned IDs in group order.
func (s *Submitter) PostVariants(ctx context.Context, sessionID, listingID string, groups []session.VariantGroup, done func(coordinator.Outcome[string])) (*coordinator.Run[string], error) {
	if len(groups) > 0 && s.cfg.API == nil {
		return nil, ErrNoAPI
	}

	ops := make([]coordinator.Op[string], len(groups))
	for i, g := range groups {
		ops[i] = func(ctx context.Context) (string, error) {
			ctx, cancel := s.opContext(ctx)
			defer cancel()
			id, err := s.cfg.API.CreateVariant(ctx, listingID, g)
			if err != nil {
				return "", fmt.Errorf("post variant %q: %w", g.Name, err)
			}
			return id, nil
		}
	}

	return launch(ctx, s, batch{
		kind:      metrics.EventVariantsPost,
		sessionID: sessionID,
		event:     events.VariantsPosted(sessionID),
		items:     len(ops),
	}, ops, func(out coordinator.Outcome[string]) any {
		if done != nil {
			done(out)
		}
		return out.Payload
	}), nil
}
