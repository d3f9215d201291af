package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/grouptrip/internal/kvstore"
)

// DefaultAttempts bounds the retry loops used for shared index lists.
const DefaultAttempts = 8

const (
	groupPrefix   = "group:"
	groupsListKey = "groups:list"
	bookingPrefix = "booking:"
	userPrefix    = "user:"
	ticketsPrefix = "tickets:"
)

func groupKey(id string) string           { return groupPrefix + id }
func bookingKey(id string) string         { return bookingPrefix + id }
func userBookingsKey(uid string) string   { return userPrefix + keyPart(uid) + ":bookings" }
func ticketsKey(uid, gid string) string   { return ticketsPrefix + keyPart(uid) + ":" + keyPart(gid) }
func userTicketsPrefix(uid string) string { return ticketsPrefix + keyPart(uid) + ":" }

// keyEscaper keeps IDs from carrying the key separator, so a prefix
// built from one ID never matches keys built from another.
var keyEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

func keyPart(id string) string { return keyEscaper.Replace(id) }

// loadJSON reads key into v and returns the stored version.
func loadJSON(ctx context.Context, s kvstore.Store, key string, v interface{}) (int64, error) {
	e, err := s.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if err := json.Unmarshal(e.Value, v); err != nil {
		return 0, fmt.Errorf("decode %s: %w", key, err)
	}
	return e.Version, nil
}

// swapJSON encodes v and writes it only if key is still at version.
func swapJSON(ctx context.Context, s kvstore.Store, key string, v interface{}, version int64) (int64, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", key, err)
	}
	return s.CompareAndSwap(ctx, key, b, version)
}

// appendID adds id to the JSON string list at key, retrying on
// concurrent modification.  Duplicate IDs are not appended twice.
func appendID(ctx context.Context, s kvstore.Store, key, id string, attempts int) error {
	return retryOnConflict(attempts, func() error {
		var ids []string
		ver, err := loadJSON(ctx, s, key, &ids)
		if err != nil && !errors.Is(err, kvstore.ErrNotFound) {
			return err
		}
		for _, existing := range ids {
			if existing == id {
				return nil
			}
		}
		_, err = swapJSON(ctx, s, key, append(ids, id), ver)
		return err
	})
}

// loadIDs returns the string list at key, or nil when absent.
func loadIDs(ctx context.Context, s kvstore.Store, key string) ([]string, error) {
	var ids []string
	if _, err := loadJSON(ctx, s, key, &ids); err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return ids, nil
}

// retryOnConflict runs fn until it succeeds, fails with something other
// than a version conflict, or attempts are used up.
func retryOnConflict(attempts int, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); !errors.Is(err, kvstore.ErrVersionConflict) {
			return err
		}
	}
	return err
}

// keysOf extracts the keys of scanned entries.
func keysOf(entries []kvstore.Entry) []string {
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	return keys
}
