package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/grouptrip/internal/kvstore"
	"github.com/iliyamo/grouptrip/internal/lifecycle"
	"github.com/iliyamo/grouptrip/internal/model"
	"github.com/iliyamo/grouptrip/internal/repository"
)

var (
	organizer = model.Actor{UserID: "0f8e2c1a-aaaa-4bbb-8ccc-000000000001", Email: "ola@example.com", Name: "Ola"}
	member    = model.Actor{UserID: "7d41b9e2-aaaa-4bbb-8ccc-000000000002", Email: "jan@example.com", Name: "Jan"}
	staff     = model.Actor{UserID: "staff-1", Email: "staff@example.com", Staff: true}
)

type recordingNotifier struct {
	mu    sync.Mutex
	calls map[string]int
	err   error
}

func (r *recordingNotifier) Notify(_ context.Context, _ *model.Group, m model.Member, tickets []model.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = map[string]int{}
	}
	r.calls[m.UserID] += len(tickets)
	return r.err
}

type fixture struct {
	svc      *GroupService
	store    kvstore.Store
	notifier *recordingNotifier
	bookings *repository.BookingRepo
	tickets  *repository.TicketRepo
}

func newFixture(t *testing.T, store kvstore.Store) *fixture {
	t.Helper()
	if store == nil {
		store = kvstore.NewMemory()
	}
	clock := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}
	n := &recordingNotifier{}
	f := &fixture{
		store:    store,
		notifier: n,
		bookings: repository.NewBookingRepo(store),
		tickets:  repository.NewTicketRepo(store),
	}
	f.svc = NewGroupService(Deps{
		Groups:   repository.NewGroupRepo(store),
		Bookings: f.bookings,
		Tickets:  f.tickets,
		Issuer:   NewTicketIssuer([]byte("test-secret"), now),
		Notifier: n,
		Now:      now,
		Logger:   zerolog.Nop(),
	})
	return f
}

func holders(n int) []model.TicketHolder {
	out := make([]model.TicketHolder, n)
	for i := range out {
		out[i] = model.TicketHolder{Name: "Holder " + string(rune('A'+i%26)), IsChild: i%3 == 2}
	}
	return out
}

func paid(v int64) *int64 { return &v }

func (f *fixture) create(t *testing.T, tickets int) *model.Group {
	t.Helper()
	g, err := f.svc.CreateGroup(context.Background(), organizer, CreateGroupInput{
		AttractionID: 1, Date: "2026-06-20", Time: "10:00",
		TicketCount: tickets, TicketHolders: holders(tickets), AmountPaidCents: paid(int64(tickets) * 6900),
	})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	return g
}

func assertInvariants(t *testing.T, g *model.Group) {
	t.Helper()
	if err := lifecycle.CheckInvariants(g); err != nil {
		t.Fatalf("invariant broken: %v", err)
	}
}

func TestJoinFillsGroupAndMarksBookingsPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	g := f.create(t, 5)
	if g.Status != model.GroupOpen || g.CurrentMembers != 5 || g.Capacity != 15 || g.MinimumRequired != 15 {
		t.Fatalf("unexpected new group: status=%s current=%d capacity=%d min=%d", g.Status, g.CurrentMembers, g.Capacity, g.MinimumRequired)
	}

	g, err := f.svc.JoinGroup(ctx, member, g.ID, JoinInput{TicketCount: 12, TicketHolders: holders(12), AmountPaidCents: paid(12 * 6900)})
	if err != nil {
		t.Fatal(err)
	}
	if g.CurrentMembers != 17 || g.Capacity != 17 || g.Status != model.GroupFull || g.CompletedAt == nil {
		t.Fatalf("after join: current=%d capacity=%d status=%s completedAt=%v", g.CurrentMembers, g.Capacity, g.Status, g.CompletedAt)
	}
	assertInvariants(t, g)

	for _, a := range []model.Actor{organizer, member} {
		bs, err := f.svc.ListUserBookings(ctx, a)
		if err != nil || len(bs) != 1 {
			t.Fatalf("bookings for %s: %v, %v", a.UserID, bs, err)
		}
		if bs[0].Status != model.BookingPendingConfirmation {
			t.Errorf("booking of %s is %s, want pending_confirmation", a.UserID, bs[0].Status)
		}
	}

	open, err := f.svc.ListOpenGroups(ctx)
	if err != nil || len(open) != 0 {
		t.Fatalf("full group still listed as open: %v, %v", open, err)
	}
}

func TestConcurrentJoinsKeepEveryMember(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	g := f.create(t, 14)

	joiners := []model.Actor{member, {UserID: "9c0ffee0-aaaa-4bbb-8ccc-000000000003", Email: "ewa@example.com", Name: "Ewa"}}
	start := make(chan struct{})
	errs := make(chan error, len(joiners))
	var wg sync.WaitGroup
	for _, a := range joiners {
		wg.Add(1)
		go func(a model.Actor) {
			defer wg.Done()
			<-start
			_, err := f.svc.JoinGroup(ctx, a, g.ID, JoinInput{TicketCount: 1, TicketHolders: holders(1)})
			errs <- err
		}(a)
	}
	close(start)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("join failed: %v", err)
		}
	}

	got, err := f.svc.GetGroup(ctx, g.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.CurrentMembers != 16 || len(got.Members) != 3 {
		t.Fatalf("lost an update: current=%d members=%d", got.CurrentMembers, len(got.Members))
	}
	if got.Status != model.GroupFull {
		t.Fatalf("status = %s, want full", got.Status)
	}
	assertInvariants(t, got)
}

func TestDuplicateJoinLeavesGroupUnchanged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	g := f.create(t, 2)
	if _, err := f.svc.JoinGroup(ctx, member, g.ID, JoinInput{TicketCount: 1, TicketHolders: holders(1)}); err != nil {
		t.Fatal(err)
	}
	before, _ := f.svc.GetGroup(ctx, g.ID)

	_, err := f.svc.JoinGroup(ctx, member, g.ID, JoinInput{TicketCount: 3, TicketHolders: holders(3)})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	after, _ := f.svc.GetGroup(ctx, g.ID)
	if after.Version != before.Version || after.CurrentMembers != 3 {
		t.Fatalf("group changed by rejected join: version %d -> %d, current=%d", before.Version, after.Version, after.CurrentMembers)
	}
}

func TestJoinRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	g := f.create(t, 2)

	cases := []struct {
		name string
		in   JoinInput
		want error
	}{
		{"zero tickets", JoinInput{TicketCount: 0}, ErrValidation},
		{"holder mismatch", JoinInput{TicketCount: 2, TicketHolders: holders(1)}, ErrValidation},
		{"blank holder", JoinInput{TicketCount: 1, TicketHolders: []model.TicketHolder{{Name: "  "}}}, ErrValidation},
		{"negative amount", JoinInput{TicketCount: 1, TicketHolders: holders(1), AmountPaidCents: paid(-1)}, ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.svc.JoinGroup(ctx, member, g.ID, tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
	if _, err := f.svc.JoinGroup(ctx, member, "missing", JoinInput{TicketCount: 1, TicketHolders: holders(1)}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown group: got %v", err)
	}
	if _, err := f.svc.JoinGroup(ctx, model.Actor{}, g.ID, JoinInput{TicketCount: 1, TicketHolders: holders(1)}); !errors.Is(err, ErrAuth) {
		t.Fatalf("anonymous join: got %v", err)
	}
}

func TestCreateGroupBornFull(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	g := f.create(t, 20)
	if g.Status != model.GroupFull || g.Capacity != 20 || g.CompletedAt == nil {
		t.Fatalf("status=%s capacity=%d", g.Status, g.Capacity)
	}
	bs, _ := f.svc.ListUserBookings(ctx, organizer)
	if len(bs) != 1 || bs[0].Status != model.BookingPendingConfirmation {
		t.Fatalf("organizer booking = %+v", bs)
	}
	if _, err := f.svc.CreateGroup(ctx, organizer, CreateGroupInput{AttractionID: 99, Date: "2026-06-20", Time: "10:00", TicketCount: 1, TicketHolders: holders(1)}); !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown attraction: got %v", err)
	}
	if _, err := f.svc.CreateGroup(ctx, organizer, CreateGroupInput{AttractionID: 1, Date: "20.06.2026", Time: "10:00", TicketCount: 1, TicketHolders: holders(1)}); !errors.Is(err, ErrValidation) {
		t.Fatalf("bad date: got %v", err)
	}
}

func TestIssueTicketsOnOpenGroupFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	g := f.create(t, 3)

	_, err := f.svc.IssueTickets(ctx, staff, g.ID)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	ts, _ := f.svc.ListUserTickets(ctx, organizer)
	if len(ts) != 0 {
		t.Fatalf("tickets persisted for open group: %v", ts)
	}
	got, _ := f.svc.GetGroup(ctx, g.ID)
	if got.TicketsSentAt != nil {
		t.Fatal("open group stamped as sent")
	}
}

func TestIssueTickets(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	g := f.create(t, 5)
	if _, err := f.svc.JoinGroup(ctx, member, g.ID, JoinInput{TicketCount: 12, TicketHolders: holders(12), AmountPaidCents: paid(0)}); err != nil {
		t.Fatal(err)
	}

	res, err := f.svc.IssueTickets(ctx, staff, g.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Tickets != 17 || res.Notified != 2 || res.Group.TicketsSentAt == nil {
		t.Fatalf("result = %+v", res)
	}
	if f.notifier.calls[organizer.UserID] != 5 || f.notifier.calls[member.UserID] != 12 {
		t.Fatalf("notifications = %v", f.notifier.calls)
	}

	issuer := f.svc.Issuer()
	first := map[string]bool{}
	for _, a := range []model.Actor{organizer, member} {
		ts, err := f.svc.ListGroupTickets(ctx, a, g.ID)
		if err != nil {
			t.Fatal(err)
		}
		for i, tk := range ts {
			if tk.HolderIndex != i || !strings.HasPrefix(tk.TicketID, "GT-") || !issuer.Verify(tk) {
				t.Fatalf("bad ticket %+v", tk)
			}
			first[tk.TicketID] = true
		}
		bs, _ := f.svc.ListUserBookings(ctx, a)
		for _, b := range bs {
			if b.Status != model.BookingTicketsSent {
				t.Errorf("booking %s is %s after issuance", b.ID, b.Status)
			}
		}
	}
	if len(first) != 17 {
		t.Fatalf("expected 17 distinct ticket ids, got %d", len(first))
	}

	// a second run reuses the stored tickets and notifies nobody
	again, err := f.svc.IssueTickets(ctx, staff, g.ID)
	if err != nil {
		t.Fatal(err)
	}
	if again.Tickets != 17 || again.Notified != 0 {
		t.Fatalf("re-issue result = %+v", again)
	}
	all, _ := f.svc.ListUserTickets(ctx, member)
	for _, tk := range all {
		if !first[tk.TicketID] {
			t.Fatalf("re-issue minted new ticket %s", tk.TicketID)
		}
	}

	// the group is closed to new members once tickets are out
	late := model.Actor{UserID: "late", Email: "late@example.com"}
	if _, err := f.svc.JoinGroup(ctx, late, g.ID, JoinInput{TicketCount: 1, TicketHolders: holders(1)}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("join after issuance: got %v", err)
	}

	png, err := f.svc.TicketQRCode(ctx, member, g.ID, 3)
	if err != nil || !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Fatalf("qr png: %v", err)
	}
	if _, err := f.svc.TicketQRCode(ctx, member, g.ID, 12); !errors.Is(err, ErrNotFound) {
		t.Fatalf("out of range holder: got %v", err)
	}
}

func TestNotifierFailureDoesNotFailIssuance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.notifier.err = errors.New("broker down")
	g := f.create(t, 15)
	res, err := f.svc.IssueTickets(ctx, staff, g.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Tickets != 15 || res.Notified != 0 {
		t.Fatalf("result = %+v", res)
	}
}

func TestLateJoinerBookingStartsPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	g := f.create(t, 15)

	if _, err := f.svc.JoinGroup(ctx, member, g.ID, JoinInput{TicketCount: 2, TicketHolders: holders(2)}); err != nil {
		t.Fatal(err)
	}
	b, err := f.svc.CreateBooking(ctx, member, BookingInput{GroupID: g.ID, TicketCount: 2, TicketHolders: holders(2), AmountPaidCents: 13800})
	if err != nil {
		t.Fatal(err)
	}
	if b.Status != model.BookingPendingConfirmation || b.AttractionID != g.AttractionID || b.Date != g.Date {
		t.Fatalf("late booking = %+v", b)
	}

	stranger := model.Actor{UserID: "stranger", Email: "s@example.com"}
	if _, err := f.svc.CreateBooking(ctx, stranger, BookingInput{GroupID: g.ID, TicketCount: 1, TicketHolders: holders(1)}); !errors.Is(err, ErrValidation) {
		t.Fatalf("booking by non-member: got %v", err)
	}
	adhoc, err := f.svc.CreateBooking(ctx, stranger, BookingInput{AttractionID: 2, TicketCount: 1, TicketHolders: holders(1), AmountPaidCents: 7900})
	if err != nil || adhoc.Status != model.BookingConfirmed || adhoc.GroupID != "" {
		t.Fatalf("ad hoc booking = %+v, %v", adhoc, err)
	}
}

func TestListUserGroups(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	g := f.create(t, 2)
	if _, err := f.svc.JoinGroup(ctx, member, g.ID, JoinInput{TicketCount: 1, TicketHolders: holders(1)}); err != nil {
		t.Fatal(err)
	}
	organized, _ := f.svc.ListUserGroups(ctx, member, ListOrganized)
	joined, _ := f.svc.ListUserGroups(ctx, member, ListJoined)
	if len(organized) != 0 || len(joined) != 1 {
		t.Fatalf("organized=%d joined=%d", len(organized), len(joined))
	}
	if _, err := f.svc.ListUserGroups(ctx, member, "admin"); !errors.Is(err, ErrValidation) {
		t.Fatalf("bad mode: got %v", err)
	}
}

func TestStaffOperationsRequireStaff(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	g := f.create(t, 15)

	if _, err := f.svc.IssueTickets(ctx, member, g.ID); !errors.Is(err, ErrForbidden) || !errors.Is(err, ErrAuth) {
		t.Fatalf("non-staff issue: got %v", err)
	}
	if _, err := f.svc.ResetAllGroups(ctx, model.Actor{}); !errors.Is(err, ErrAuth) || errors.Is(err, ErrForbidden) {
		t.Fatalf("anonymous reset: got %v", err)
	}
	if _, err := f.svc.ListFullGroups(ctx, member); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-staff list: got %v", err)
	}
	got, _ := f.svc.GetGroup(ctx, g.ID)
	if got.TicketsIssued() {
		t.Fatal("rejected call mutated the group")
	}
	full, err := f.svc.ListFullGroups(ctx, staff)
	if err != nil || len(full) != 1 {
		t.Fatalf("full groups = %v, %v", full, err)
	}
}

func TestResetAllGroups(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.create(t, 3)
	g := f.create(t, 15)
	if _, err := f.svc.IssueTickets(ctx, staff, g.ID); err != nil {
		t.Fatal(err)
	}

	res, err := f.svc.ResetAllGroups(ctx, staff)
	if err != nil {
		t.Fatal(err)
	}
	if res.DeletedGroups != 2 || res.DeletedBookings != 2 || res.DeletedTickets != 15 {
		t.Fatalf("reset = %+v", res)
	}
	open, err := f.svc.ListOpenGroups(ctx)
	if err != nil || len(open) != 0 {
		t.Fatalf("open groups after reset: %v, %v", open, err)
	}
	bs, _ := f.svc.ListUserBookings(ctx, organizer)
	if len(bs) != 0 {
		t.Fatalf("bookings survived reset: %v", bs)
	}
}

// contestedStore loses every versioned write to a group record.
type contestedStore struct {
	kvstore.Store
}

func (s contestedStore) CompareAndSwap(ctx context.Context, key string, value []byte, expected int64) (int64, error) {
	if expected != 0 && strings.HasPrefix(key, "group:") {
		return 0, kvstore.ErrVersionConflict
	}
	return s.Store.CompareAndSwap(ctx, key, value, expected)
}

func TestJoinGivesUpAfterRepeatedConflicts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, contestedStore{kvstore.NewMemory()})
	g := f.create(t, 2)
	_, err := f.svc.JoinGroup(ctx, member, g.ID, JoinInput{TicketCount: 1, TicketHolders: holders(1)})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

// bookingOutage rejects new booking records while down is set.
// Updates to existing bookings still go through.
type bookingOutage struct {
	kvstore.Store
	down atomic.Bool
}

var errStoreDown = errors.New("store down")

func (s *bookingOutage) CompareAndSwap(ctx context.Context, key string, value []byte, expected int64) (int64, error) {
	if s.down.Load() && expected == 0 && strings.HasPrefix(key, "booking:") {
		return 0, errStoreDown
	}
	return s.Store.CompareAndSwap(ctx, key, value, expected)
}

func TestJoinSavedWhenBookingWriteFails(t *testing.T) {
	ctx := context.Background()
	store := &bookingOutage{Store: kvstore.NewMemory()}
	f := newFixture(t, store)
	g := f.create(t, 14)

	store.down.Store(true)
	got, err := f.svc.JoinGroup(ctx, member, g.ID, JoinInput{TicketCount: 1, TicketHolders: holders(1), AmountPaidCents: paid(6900)})
	if !errors.Is(err, ErrBookingNotRecorded) || !errors.Is(err, errStoreDown) {
		t.Fatalf("expected ErrBookingNotRecorded wrapping the store error, got %v", err)
	}
	if got == nil || got.Status != model.GroupFull || len(got.Members) != 2 {
		t.Fatalf("saved group not returned: %+v", got)
	}
	store.down.Store(false)

	bs, err := f.svc.ListUserBookings(ctx, organizer)
	if err != nil || len(bs) != 1 || bs[0].Status != model.BookingPendingConfirmation {
		t.Fatalf("organizer bookings after fill = %+v, %v", bs, err)
	}
	if _, err := f.svc.JoinGroup(ctx, member, g.ID, JoinInput{TicketCount: 1, TicketHolders: holders(1)}); !errors.Is(err, ErrConflict) {
		t.Fatalf("second join should conflict, got %v", err)
	}
	b, err := f.svc.CreateBooking(ctx, member, BookingInput{GroupID: g.ID, TicketCount: 1, TicketHolders: holders(1), AmountPaidCents: 6900})
	if err != nil || b.Status != model.BookingPendingConfirmation {
		t.Fatalf("booking retry = %+v, %v", b, err)
	}
}

func TestCreateFullGroupHandsOffWhenBookingWriteFails(t *testing.T) {
	ctx := context.Background()
	store := &bookingOutage{Store: kvstore.NewMemory()}
	store.down.Store(true)
	f := newFixture(t, store)
	g, err := f.svc.CreateGroup(ctx, organizer, CreateGroupInput{
		AttractionID: 1, Date: "2026-06-20", Time: "10:00",
		TicketCount: 15, TicketHolders: holders(15), AmountPaidCents: paid(15 * 6900),
	})
	if !errors.Is(err, ErrBookingNotRecorded) {
		t.Fatalf("expected ErrBookingNotRecorded, got %v", err)
	}
	if g == nil || g.Status != model.GroupFull {
		t.Fatalf("saved group not returned: %+v", g)
	}
	loaded, err := f.svc.GetGroup(ctx, g.ID)
	if err != nil || loaded.CurrentMembers != 15 {
		t.Fatalf("group not persisted: %+v, %v", loaded, err)
	}
}
