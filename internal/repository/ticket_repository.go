package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/iliyamo/grouptrip/internal/kvstore"
	"github.com/iliyamo/grouptrip/internal/model"
)

// TicketRepo stores the tickets issued to one member of one group as a
// single list.  A list is written once; later writers get the existing
// list back instead of replacing it.
type TicketRepo struct {
	store kvstore.Store
}

// NewTicketRepo returns a TicketRepo over store.
func NewTicketRepo(store kvstore.Store) *TicketRepo { return &TicketRepo{store: store} }

// Get returns the member's tickets for a group, or an empty list.
func (r *TicketRepo) Get(ctx context.Context, userID, groupID string) ([]model.Ticket, error) {
	var tickets []model.Ticket
	if _, err := loadJSON(ctx, r.store, ticketsKey(userID, groupID), &tickets); err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return []model.Ticket{}, nil
		}
		return nil, err
	}
	return tickets, nil
}

// CreateOnce stores tickets unless the member already has some for the
// group.  It returns the tickets now on record and whether they are the
// ones just written.
func (r *TicketRepo) CreateOnce(ctx context.Context, userID, groupID string, tickets []model.Ticket) ([]model.Ticket, bool, error) {
	_, err := swapJSON(ctx, r.store, ticketsKey(userID, groupID), tickets, 0)
	if err == nil {
		return tickets, true, nil
	}
	if !errors.Is(err, kvstore.ErrVersionConflict) {
		return nil, false, err
	}
	existing, err := r.Get(ctx, userID, groupID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// ListForUser returns every ticket the user holds across groups.
func (r *TicketRepo) ListForUser(ctx context.Context, userID string) ([]model.Ticket, error) {
	entries, err := r.store.ScanPrefix(ctx, userTicketsPrefix(userID))
	if err != nil {
		return nil, err
	}
	out := []model.Ticket{}
	for _, e := range entries {
		var tickets []model.Ticket
		if err := json.Unmarshal(e.Value, &tickets); err != nil {
			return nil, fmt.Errorf("decode %s: %w", e.Key, err)
		}
		out = append(out, tickets...)
	}
	return out, nil
}

// DeleteAll removes every stored ticket list and returns how many
// tickets they held.
func (r *TicketRepo) DeleteAll(ctx context.Context) (int, error) {
	entries, err := r.store.ScanPrefix(ctx, ticketsPrefix)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		var tickets []model.Ticket
		if json.Unmarshal(e.Value, &tickets) == nil {
			n += len(tickets)
		}
	}
	if _, err := r.store.MDel(ctx, keysOf(entries)); err != nil {
		return 0, err
	}
	return n, nil
}
