// Package repository maps the booking aggregates onto the key-value
// store.  Every record is a JSON document; lists that several requests
// append to (the group index, a user's bookings) are updated with
// compare-and-swap so concurrent writers never drop each other's IDs.
//
// Key layout:
//
//	group:{id}               one Group
//	groups:list              JSON array of every group ID, in creation order
//	booking:{id}             one Booking
//	user:{uid}:bookings      JSON array of the user's booking IDs
//	tickets:{uid}:{gid}      JSON array of the member's tickets for a group
package repository

import (
	"errors"

	"github.com/iliyamo/grouptrip/internal/kvstore"
)

// ErrGroupNotFound is returned when a group ID does not resolve.
var ErrGroupNotFound = errors.New("group not found")

// ErrBookingNotFound is returned when a booking ID does not resolve.
var ErrBookingNotFound = errors.New("booking not found")

// ErrConflict is returned when a versioned save loses a race with
// another writer.  Callers reload and reapply their change.
var ErrConflict = kvstore.ErrVersionConflict
