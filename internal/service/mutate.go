package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/iliyamo/grouptrip/internal/model"
	"github.com/iliyamo/grouptrip/internal/repository"
)

// DefaultCASAttempts bounds the optimistic retry loop around group
// writes.
const DefaultCASAttempts = 5

// errUnchanged lets a mutation report that the stored group already
// has the desired state and no write is needed.
var errUnchanged = errors.New("group unchanged")

// mutateGroup is the read-modify-write loop every group change goes
// through: load at a version, apply fn, save only if nobody wrote in
// between.  fn runs again on a fresh copy after each lost race.  Errors
// from fn end the loop at once and leave the stored group untouched.
func mutateGroup(ctx context.Context, groups *repository.GroupRepo, id string, attempts int, fn func(*model.Group) error) (*model.Group, error) {
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		g, err := groups.Load(ctx, id)
		if err != nil {
			return nil, translate(err)
		}
		if err := fn(g); err != nil {
			if errors.Is(err, errUnchanged) {
				return g, nil
			}
			return nil, translate(err)
		}
		err = groups.Save(ctx, g)
		if err == nil {
			return g, nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, withKind(ErrConflict, fmt.Errorf("group %s kept changing after %d attempts", id, attempts))
}
