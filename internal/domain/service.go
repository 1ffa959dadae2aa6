// Package domain holds the activity deduplication model, the resolution
// workflows and the store contracts they depend on.
package domain

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
)

// MaxBulkDelete caps the number of ids accepted by DeleteActivities.
const MaxBulkDelete = 500

// ActivityService exposes the owner-scoped bulk operations on activities.
type ActivityService struct {
	store ActivityStore
}

// NewActivityService constructs an ActivityService.
func NewActivityService(store ActivityStore) *ActivityService {
	return &ActivityService{store: store}
}

// DeleteActivities removes the caller's activities among ids and returns how
// many rows were deleted. Ids owned by someone else are silently ignored.
func (s *ActivityService) DeleteActivities(ctx context.Context, ownerID string, ids []int64) (int64, error) {
	if strings.TrimSpace(ownerID) == "" {
		return 0, eris.Wrap(ErrInvalidInput, "owner id is required")
	}
	if len(ids) == 0 {
		return 0, eris.Wrap(ErrInvalidInput, "activity ids are required")
	}
	if len(ids) > MaxBulkDelete {
		return 0, eris.Wrapf(ErrInvalidInput, "at most %d activity ids per request", MaxBulkDelete)
	}

	seen := make(map[int64]struct{}, len(ids))
	unique := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			return 0, eris.Wrapf(ErrInvalidInput, "activity id %d must be positive", id)
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	return s.store.DeleteMany(ctx, ownerID, unique)
}
