package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/iliyamo/grouptrip/internal/kvstore"
	"github.com/iliyamo/grouptrip/internal/model"
)

// GroupRepo loads and saves Group aggregates.  Saves are optimistic:
// Save succeeds only if nobody wrote the group since it was loaded.
type GroupRepo struct {
	store    kvstore.Store
	attempts int
}

// NewGroupRepo returns a GroupRepo over store.
func NewGroupRepo(store kvstore.Store) *GroupRepo {
	return &GroupRepo{store: store, attempts: DefaultAttempts}
}

// Create persists a new group and appends it to the global index.  It
// fails with ErrConflict if the ID is already taken.
func (r *GroupRepo) Create(ctx context.Context, g *model.Group) error {
	ver, err := swapJSON(ctx, r.store, groupKey(g.ID), g, 0)
	if err != nil {
		return err
	}
	g.Version = ver
	if err := appendID(ctx, r.store, groupsListKey, g.ID, r.attempts); err != nil {
		return fmt.Errorf("index group %s: %w", g.ID, err)
	}
	return nil
}

// Load returns the group with id, stamped with its store version.
func (r *GroupRepo) Load(ctx context.Context, id string) (*model.Group, error) {
	var g model.Group
	ver, err := loadJSON(ctx, r.store, groupKey(id), &g)
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, ErrGroupNotFound
	}
	if err != nil {
		return nil, err
	}
	g.Version = ver
	return &g, nil
}

// Save writes g back if it is still at g.Version and advances the
// version on success.  A lost race yields ErrConflict.
func (r *GroupRepo) Save(ctx context.Context, g *model.Group) error {
	if g.Version == 0 {
		return fmt.Errorf("save group %s: not loaded from the store", g.ID)
	}
	ver, err := swapJSON(ctx, r.store, groupKey(g.ID), g, g.Version)
	if err != nil {
		return err
	}
	g.Version = ver
	return nil
}

// ListAll returns every indexed group in creation order.  IDs whose
// record is gone are skipped.
func (r *GroupRepo) ListAll(ctx context.Context) ([]model.Group, error) {
	ids, err := loadIDs(ctx, r.store, groupsListKey)
	if err != nil || len(ids) == 0 {
		return []model.Group{}, err
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = groupKey(id)
	}
	vals, err := r.store.MGet(ctx, keys)
	if err != nil {
		return nil, err
	}
	groups := make([]model.Group, 0, len(vals))
	for i, v := range vals {
		if v == nil {
			continue
		}
		var g model.Group
		if err := json.Unmarshal(v, &g); err != nil {
			return nil, fmt.Errorf("decode %s: %w", keys[i], err)
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// ListOpen returns groups still open with nominal slots left.
func (r *GroupRepo) ListOpen(ctx context.Context) ([]model.Group, error) {
	return r.filter(ctx, func(g *model.Group) bool { return g.IsOpenForListing() })
}

// ListByOrganizer returns the groups userID created.
func (r *GroupRepo) ListByOrganizer(ctx context.Context, userID string) ([]model.Group, error) {
	return r.filter(ctx, func(g *model.Group) bool { return g.OrganizerID == userID })
}

// ListByMember returns every group userID belongs to, organizer or not.
func (r *GroupRepo) ListByMember(ctx context.Context, userID string) ([]model.Group, error) {
	return r.filter(ctx, func(g *model.Group) bool { return g.HasMember(userID) })
}

// ListFull returns full groups, most recently completed first.
func (r *GroupRepo) ListFull(ctx context.Context) ([]model.Group, error) {
	groups, err := r.filter(ctx, func(g *model.Group) bool { return g.Status == model.GroupFull })
	if err != nil {
		return nil, err
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return completedOrCreated(&groups[i]).After(completedOrCreated(&groups[j]))
	})
	return groups, nil
}

// DeleteAll removes every group record and the index.  It scans by
// prefix rather than trusting the index so orphans go too.
func (r *GroupRepo) DeleteAll(ctx context.Context) (int, error) {
	entries, err := r.store.ScanPrefix(ctx, groupPrefix)
	if err != nil {
		return 0, err
	}
	n, err := r.store.MDel(ctx, keysOf(entries))
	if err != nil {
		return 0, err
	}
	if _, err := r.store.MDel(ctx, []string{groupsListKey}); err != nil {
		return n, err
	}
	return n, nil
}

func (r *GroupRepo) filter(ctx context.Context, keep func(*model.Group) bool) ([]model.Group, error) {
	all, err := r.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Group, 0, len(all))
	for i := range all {
		if keep(&all[i]) {
			out = append(out, all[i])
		}
	}
	return out, nil
}

func completedOrCreated(g *model.Group) time.Time {
	if g.CompletedAt != nil {
		return *g.CompletedAt
	}
	return g.CreatedAt
}
