package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/grouptrip/internal/kvstore"
	"github.com/iliyamo/grouptrip/internal/model"
)

// BookingRepo is the per-user booking ledger.  Bookings are appended,
// never removed individually; only their status moves forward.
type BookingRepo struct {
	store    kvstore.Store
	attempts int
}

// NewBookingRepo returns a BookingRepo over store.
func NewBookingRepo(store kvstore.Store) *BookingRepo {
	return &BookingRepo{store: store, attempts: DefaultAttempts}
}

// Append stores b and adds it to its user's list.
func (r *BookingRepo) Append(ctx context.Context, b *model.Booking) error {
	if b.ID == "" || b.UserID == "" {
		return fmt.Errorf("append booking: id and user id required")
	}
	if _, err := swapJSON(ctx, r.store, bookingKey(b.ID), b, 0); err != nil {
		return fmt.Errorf("store booking %s: %w", b.ID, err)
	}
	if err := appendID(ctx, r.store, userBookingsKey(b.UserID), b.ID, r.attempts); err != nil {
		return fmt.Errorf("index booking %s: %w", b.ID, err)
	}
	return nil
}

// Get returns one booking.
func (r *BookingRepo) Get(ctx context.Context, id string) (*model.Booking, error) {
	var b model.Booking
	if _, err := loadJSON(ctx, r.store, bookingKey(id), &b); err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return &b, nil
}

// ListForUser returns the user's bookings in the order they were made.
func (r *BookingRepo) ListForUser(ctx context.Context, userID string) ([]model.Booking, error) {
	ids, err := loadIDs(ctx, r.store, userBookingsKey(userID))
	if err != nil || len(ids) == 0 {
		return []model.Booking{}, err
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = bookingKey(id)
	}
	vals, err := r.store.MGet(ctx, keys)
	if err != nil {
		return nil, err
	}
	out := make([]model.Booking, 0, len(vals))
	for i, v := range vals {
		if v == nil {
			continue
		}
		var b model.Booking
		if err := json.Unmarshal(v, &b); err != nil {
			return nil, fmt.Errorf("decode %s: %w", keys[i], err)
		}
		out = append(out, b)
	}
	return out, nil
}

// UpdateStatusForGroup moves every booking the user holds for groupID to
// status and returns how many changed.  Bookings already at or past
// status are left alone, which makes repeated calls harmless.
func (r *BookingRepo) UpdateStatusForGroup(ctx context.Context, userID, groupID string, status model.BookingStatus, now time.Time) (int, error) {
	if !status.Valid() {
		return 0, fmt.Errorf("unknown booking status %q", status)
	}
	ids, err := loadIDs(ctx, r.store, userBookingsKey(userID))
	if err != nil {
		return 0, err
	}
	changed := 0
	for _, id := range ids {
		err := retryOnConflict(r.attempts, func() error {
			var b model.Booking
			ver, err := loadJSON(ctx, r.store, bookingKey(id), &b)
			if err != nil {
				return err
			}
			if b.GroupID != groupID || !b.Status.Precedes(status) {
				return nil
			}
			at := now.UTC()
			b.Status = status
			b.StatusUpdatedAt = &at
			if _, err := swapJSON(ctx, r.store, bookingKey(id), &b, ver); err != nil {
				return err
			}
			changed++
			return nil
		})
		if errors.Is(err, kvstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return changed, fmt.Errorf("update booking %s: %w", id, err)
		}
	}
	return changed, nil
}

// DeleteAll removes every booking and every user booking list.
func (r *BookingRepo) DeleteAll(ctx context.Context) (int, error) {
	entries, err := r.store.ScanPrefix(ctx, bookingPrefix)
	if err != nil {
		return 0, err
	}
	n, err := r.store.MDel(ctx, keysOf(entries))
	if err != nil {
		return 0, err
	}
	users, err := r.store.ScanPrefix(ctx, userPrefix)
	if err != nil {
		return n, err
	}
	var lists []string
	for _, e := range users {
		if strings.HasSuffix(e.Key, ":bookings") {
			lists = append(lists, e.Key)
		}
	}
	if _, err := r.store.MDel(ctx, lists); err != nil {
		return n, err
	}
	return n, nil
}
