package core

import (
	"context"
	"errors"
	"fmt"
)

// CanView is the Access Gate predicate.
func CanView(requester Identity, m ContentMetadata) bool {
	switch m.Status {
	case Published:
		return true
	case Reviewing, Hidden:
		return requester.Owns(m) || requester.CanReview()
	case Deleted:
		return requester.Owns(m) || requester.IsStaff()
	case Rejected, Draft:
		return requester.Owns(m)
	default:
		return false
	}
}

// GetContentMetadataDetails returns the content if the requester may see it.
// Content which the requester may not see is reported as ErrContentNotFound, so its existence is not leaked.
func (c *CoreDB) GetContentMetadataDetails(ctx context.Context, requester Identity, ref ContentRef) (*ContentDetails, error) {

	if !ref.Type.Valid() {
		return nil, ErrContentTypeUnknown
	}

	meta, err := c.ContentDB.GetMetadata(ctx, ref)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrContentNotFound
		}
		return nil, fmt.Errorf("get metadata of %s: %w", ref, err)
	}

	if !CanView(requester, meta) {
		return nil, ErrContentNotFound
	}

	details, err := c.ContentDB.GetDetails(ctx, ref)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrContentNotFound
		}
		return nil, fmt.Errorf("get details of %s: %w", ref, err)
	}
	if details.HTML == "" {
		details.HTML = c.render(details.Body)
	}
	return details, nil
}
