// Package service holds the booking core: group creation and joining,
// the booking ledger operations and the staff confirmation flow.  It is
// transport independent; every operation takes the calling Actor
// explicitly.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/iliyamo/grouptrip/internal/catalog"
	"github.com/iliyamo/grouptrip/internal/lifecycle"
	"github.com/iliyamo/grouptrip/internal/model"
	"github.com/iliyamo/grouptrip/internal/repository"
)

// Deps wires a GroupService.  Zero values fall back to sensible
// defaults where one exists.
type Deps struct {
	Groups   *repository.GroupRepo
	Bookings *repository.BookingRepo
	Tickets  *repository.TicketRepo
	Catalog  *catalog.Catalog
	Policy   lifecycle.Policy
	Issuer   *TicketIssuer
	Notifier Notifier
	Attempts int
	Now      func() time.Time
	NewID    func() string
	Logger   zerolog.Logger
}

// GroupService implements the group-buying operations.
type GroupService struct {
	groups   *repository.GroupRepo
	bookings *repository.BookingRepo
	tickets  *repository.TicketRepo
	catalog  *catalog.Catalog
	policy   lifecycle.Policy
	issuer   *TicketIssuer
	coord    *Coordinator
	attempts int
	now      func() time.Time
	newID    func() string
	log      zerolog.Logger
}

// NewGroupService builds the service and its confirmation coordinator.
func NewGroupService(d Deps) *GroupService {
	if d.Catalog == nil {
		d.Catalog = catalog.Default()
	}
	if d.Policy == (lifecycle.Policy{}) {
		d.Policy = lifecycle.DefaultPolicy()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	if d.Issuer == nil {
		d.Issuer = NewTicketIssuer(nil, d.Now)
	}
	if d.Notifier == nil {
		d.Notifier = discardNotifier{}
	}
	if d.Attempts <= 0 {
		d.Attempts = DefaultCASAttempts
	}
	log := d.Logger.With().Str("component", "group_service").Logger()
	return &GroupService{
		groups:   d.Groups,
		bookings: d.Bookings,
		tickets:  d.Tickets,
		catalog:  d.Catalog,
		policy:   d.Policy,
		issuer:   d.Issuer,
		attempts: d.Attempts,
		now:      d.Now,
		newID:    d.NewID,
		log:      log,
		coord: &Coordinator{
			groups:   d.Groups,
			bookings: d.Bookings,
			tickets:  d.Tickets,
			issuer:   d.Issuer,
			notifier: d.Notifier,
			attempts: d.Attempts,
			now:      d.Now,
			log:      d.Logger.With().Str("component", "confirmation").Logger(),
		},
	}
}

// Coordinator exposes the confirmation coordinator the service drives.
func (s *GroupService) Coordinator() *Coordinator { return s.coord }

// Issuer exposes the ticket issuer, e.g. for QR verification.
func (s *GroupService) Issuer() *TicketIssuer { return s.issuer }

// CreateGroupInput is what an organizer supplies to open a group.
// AmountPaidCents, when set, records the organizer's purchase in the
// booking ledger together with the group.
type CreateGroupInput struct {
	AttractionID    int
	Date            string
	Time            string
	TicketCount     int
	TicketHolders   []model.TicketHolder
	AmountPaidCents *int64
}

// JoinInput is what a member supplies to join a group.
type JoinInput struct {
	TicketCount     int
	TicketHolders   []model.TicketHolder
	AmountPaidCents *int64
}

// BookingInput records a purchase.  GroupID is optional; without it the
// booking is an ad hoc purchase for AttractionID.
type BookingInput struct {
	GroupID         string
	AttractionID    int
	Date            string
	Time            string
	TicketCount     int
	TicketHolders   []model.TicketHolder
	AmountPaidCents int64
}

// GroupListMode selects the relation ListUserGroups filters on.
type GroupListMode string

const (
	ListOrganized GroupListMode = "organizer"
	ListJoined    GroupListMode = "member"
)

// ResetResult reports what ResetAllGroups removed.
type ResetResult struct {
	DeletedGroups   int `json:"deletedGroups"`
	DeletedBookings int `json:"deletedBookings"`
	DeletedTickets  int `json:"deletedTickets"`
}

// ListAttractions returns the catalog.
func (s *GroupService) ListAttractions() []model.Attraction { return s.catalog.All() }

// CreateGroup opens a group for actor, who becomes its organizer and
// first member.  If the group is saved but the organizer's booking is
// not, the group comes back together with ErrBookingNotRecorded.
func (s *GroupService) CreateGroup(ctx context.Context, actor model.Actor, in CreateGroupInput) (g *model.Group, err error) {
	ctx, span := startSpan(ctx, "CreateGroup", actor, attribute.Int("attraction.id", in.AttractionID))
	defer func() { endSpan(span, err) }()

	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := checkAmount(in.AmountPaidCents); err != nil {
		return nil, err
	}
	attraction, ok := s.catalog.Get(in.AttractionID)
	if !ok {
		return nil, invalidf("unknown attraction %d", in.AttractionID)
	}
	created, transition, err := s.policy.NewGroup(lifecycle.NewGroupParams{
		ID:            s.newID(),
		Attraction:    attraction,
		Date:          in.Date,
		Time:          in.Time,
		Organizer:     actor,
		TicketCount:   in.TicketCount,
		TicketHolders: in.TicketHolders,
		Now:           s.now(),
	})
	if err != nil {
		return nil, translate(err)
	}
	g = &created
	if err := s.groups.Create(ctx, g); err != nil {
		return nil, translate(err)
	}
	s.log.Info().
		Str("group_id", g.ID).
		Str("organizer_id", actor.UserID).
		Int("tickets", g.CurrentMembers).
		Str("status", string(g.Status)).
		Msg("group created")

	s.afterTransition(ctx, g, transition)
	if in.AmountPaidCents != nil {
		if _, err := s.recordBooking(ctx, actor, g, g.Members[0], *in.AmountPaidCents); err != nil {
			return g, s.bookingNotRecorded(g, actor, err)
		}
	}
	return g, nil
}

// ListOpenGroups returns groups still accepting members.
func (s *GroupService) ListOpenGroups(ctx context.Context) ([]model.Group, error) {
	return s.groups.ListOpen(ctx)
}

// GetGroup returns one group.
func (s *GroupService) GetGroup(ctx context.Context, id string) (*model.Group, error) {
	g, err := s.groups.Load(ctx, id)
	return g, translate(err)
}

// JoinGroup adds actor to a group.  Concurrent joins are serialised by
// the optimistic retry loop, so no member is lost; the coordinator runs
// only for the write that actually filled the group.  As with
// CreateGroup, a failed booking write after a saved join returns the
// group together with ErrBookingNotRecorded.
func (s *GroupService) JoinGroup(ctx context.Context, actor model.Actor, groupID string, in JoinInput) (g *model.Group, err error) {
	ctx, span := startSpan(ctx, "JoinGroup", actor, attribute.String("group.id", groupID), attribute.Int("tickets", in.TicketCount))
	defer func() { endSpan(span, err) }()

	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := checkAmount(in.AmountPaidCents); err != nil {
		return nil, err
	}
	var transition lifecycle.Transition
	g, err = mutateGroup(ctx, s.groups, groupID, s.attempts, func(g *model.Group) error {
		var err error
		transition, err = s.policy.Admit(g, actor, in.TicketCount, in.TicketHolders, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Str("group_id", g.ID).
		Str("user_id", actor.UserID).
		Int("tickets", in.TicketCount).
		Int("current_members", g.CurrentMembers).
		Int("capacity", g.Capacity).
		Msg("member joined")

	s.afterTransition(ctx, g, transition)
	if in.AmountPaidCents != nil {
		if _, err := s.recordBooking(ctx, actor, g, *g.MemberByUser(actor.UserID), *in.AmountPaidCents); err != nil {
			return g, s.bookingNotRecorded(g, actor, err)
		}
	}
	return g, nil
}

// CreateBooking records a purchase.  A booking for a group requires
// actor to be a member of it and takes its attraction and schedule from
// the group; it starts at whatever stage the group has reached.
func (s *GroupService) CreateBooking(ctx context.Context, actor model.Actor, in BookingInput) (b *model.Booking, err error) {
	ctx, span := startSpan(ctx, "CreateBooking", actor, attribute.String("group.id", in.GroupID))
	defer func() { endSpan(span, err) }()

	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := checkAmount(&in.AmountPaidCents); err != nil {
		return nil, err
	}
	holders, err := lifecycle.ValidateHolders(in.TicketCount, in.TicketHolders)
	if err != nil {
		return nil, translate(err)
	}
	member := model.Member{UserID: actor.UserID, NumberOfTickets: in.TicketCount, TicketHolders: holders}

	if in.GroupID == "" {
		attraction, ok := s.catalog.Get(in.AttractionID)
		if !ok {
			return nil, invalidf("unknown attraction %d", in.AttractionID)
		}
		if in.Date != "" || in.Time != "" {
			if err := lifecycle.ValidateSchedule(in.Date, in.Time); err != nil {
				return nil, translate(err)
			}
		}
		adhoc := &model.Group{AttractionID: attraction.ID, AttractionName: attraction.Name, Date: in.Date, Time: in.Time}
		return s.appendBooking(ctx, actor, adhoc, member, in.AmountPaidCents, model.BookingConfirmed)
	}

	g, err := s.groups.Load(ctx, in.GroupID)
	if err != nil {
		return nil, translate(err)
	}
	if !g.HasMember(actor.UserID) {
		return nil, invalidf("join group %s before booking for it", g.ID)
	}
	if in.AttractionID != 0 && in.AttractionID != g.AttractionID {
		return nil, invalidf("group %s is for attraction %d, not %d", g.ID, g.AttractionID, in.AttractionID)
	}
	return s.recordBooking(ctx, actor, g, member, in.AmountPaidCents)
}

// recordBooking appends a booking for member of g at the group's
// current stage.  If the group filled between the read and the append,
// the fresh booking is promoted so it does not stay behind.
func (s *GroupService) recordBooking(ctx context.Context, actor model.Actor, g *model.Group, m model.Member, paid int64) (*model.Booking, error) {
	status := model.BookingStatusFor(g)
	b, err := s.appendBooking(ctx, actor, g, m, paid, status)
	if err != nil || status != model.BookingConfirmed {
		return b, err
	}
	latest, err := s.groups.Load(ctx, g.ID)
	if err != nil {
		return b, nil
	}
	if next := model.BookingStatusFor(latest); status.Precedes(next) {
		if _, err := s.bookings.UpdateStatusForGroup(ctx, actor.UserID, g.ID, next, s.now()); err != nil {
			s.log.Warn().Err(err).Str("booking_id", b.ID).Msg("promote late booking failed")
			return b, nil
		}
		if fresh, err := s.bookings.Get(ctx, b.ID); err == nil {
			b = fresh
		}
	}
	return b, nil
}

func (s *GroupService) appendBooking(ctx context.Context, actor model.Actor, g *model.Group, m model.Member, paid int64, status model.BookingStatus) (*model.Booking, error) {
	b := &model.Booking{
		ID:              s.newID(),
		UserID:          actor.UserID,
		UserName:        actor.DisplayName(),
		GroupID:         g.ID,
		AttractionID:    g.AttractionID,
		AttractionName:  g.AttractionName,
		Date:            g.Date,
		Time:            g.Time,
		NumberOfTickets: m.NumberOfTickets,
		TicketHolders:   m.TicketHolders,
		TotalPaidCents:  paid,
		Status:          status,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.bookings.Append(ctx, b); err != nil {
		return nil, translate(err)
	}
	s.log.Info().
		Str("booking_id", b.ID).
		Str("user_id", b.UserID).
		Str("group_id", b.GroupID).
		Str("status", string(b.Status)).
		Int64("total_paid_cents", paid).
		Msg("booking recorded")
	return b, nil
}

// bookingNotRecorded reports a booking write that failed after the
// group itself was saved.  The group is returned alongside it.
func (s *GroupService) bookingNotRecorded(g *model.Group, actor model.Actor, err error) error {
	s.log.Error().Err(err).Str("group_id", g.ID).Str("user_id", actor.UserID).Msg("group saved but booking not recorded")
	return fmt.Errorf("%w for group %s: %w", ErrBookingNotRecorded, g.ID, err)
}

// afterTransition hands a freshly full group to the coordinator.  The
// join itself is already committed, so a failure here is logged rather
// than returned; the bookings catch up at issuance at the latest.
func (s *GroupService) afterTransition(ctx context.Context, g *model.Group, t lifecycle.Transition) {
	if t != lifecycle.BecameFull {
		return
	}
	if err := s.coord.OnGroupFull(ctx, g); err != nil {
		s.log.Error().Err(err).Str("group_id", g.ID).Msg("mark bookings pending failed")
	}
}

// ListUserBookings returns actor's bookings.
func (s *GroupService) ListUserBookings(ctx context.Context, actor model.Actor) ([]model.Booking, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	return s.bookings.ListForUser(ctx, actor.UserID)
}

// ListUserGroups returns the groups actor organizes or belongs to.
func (s *GroupService) ListUserGroups(ctx context.Context, actor model.Actor, mode GroupListMode) ([]model.Group, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	switch mode {
	case ListOrganized:
		return s.groups.ListByOrganizer(ctx, actor.UserID)
	case ListJoined, "":
		return s.groups.ListByMember(ctx, actor.UserID)
	}
	return nil, invalidf("unknown list mode %q", mode)
}

// ListGroupTickets returns actor's tickets for one group.
func (s *GroupService) ListGroupTickets(ctx context.Context, actor model.Actor, groupID string) ([]model.Ticket, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if _, err := s.groups.Load(ctx, groupID); err != nil {
		return nil, translate(err)
	}
	return s.tickets.Get(ctx, actor.UserID, groupID)
}

// ListUserTickets returns every ticket actor holds.
func (s *GroupService) ListUserTickets(ctx context.Context, actor model.Actor) ([]model.Ticket, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	return s.tickets.ListForUser(ctx, actor.UserID)
}

// TicketQRCode renders the QR image of one of actor's tickets.
func (s *GroupService) TicketQRCode(ctx context.Context, actor model.Actor, groupID string, holderIndex int) ([]byte, error) {
	tickets, err := s.ListGroupTickets(ctx, actor, groupID)
	if err != nil {
		return nil, err
	}
	for _, t := range tickets {
		if t.HolderIndex == holderIndex {
			return RenderQR(t.QRCode, DefaultQRSize)
		}
	}
	return nil, withKind(ErrNotFound, fmt.Errorf("no ticket %d for group %s", holderIndex, groupID))
}

// ListFullGroups returns groups waiting for (or past) staff
// confirmation, newest first.  Staff only.
func (s *GroupService) ListFullGroups(ctx context.Context, actor model.Actor) ([]model.Group, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	return s.groups.ListFull(ctx)
}

// IssueTickets confirms a full group and issues its tickets.  Staff
// only.
func (s *GroupService) IssueTickets(ctx context.Context, actor model.Actor, groupID string) (res *IssueResult, err error) {
	ctx, span := startSpan(ctx, "IssueTickets", actor, attribute.String("group.id", groupID))
	defer func() { endSpan(span, err) }()

	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	res, err = s.coord.IssueTickets(ctx, groupID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("tickets", res.Tickets))
	return res, nil
}

// ResetAllGroups wipes every group, booking and ticket.  Staff only.
func (s *GroupService) ResetAllGroups(ctx context.Context, actor model.Actor) (res ResetResult, err error) {
	ctx, span := startSpan(ctx, "ResetAllGroups", actor)
	defer func() { endSpan(span, err) }()

	if err := requireStaff(actor); err != nil {
		return res, err
	}
	var errs []error
	var e error
	if res.DeletedGroups, e = s.groups.DeleteAll(ctx); e != nil {
		errs = append(errs, fmt.Errorf("delete groups: %w", e))
	}
	if res.DeletedBookings, e = s.bookings.DeleteAll(ctx); e != nil {
		errs = append(errs, fmt.Errorf("delete bookings: %w", e))
	}
	if res.DeletedTickets, e = s.tickets.DeleteAll(ctx); e != nil {
		errs = append(errs, fmt.Errorf("delete tickets: %w", e))
	}
	s.log.Warn().
		Str("staff_id", actor.UserID).
		Int("groups", res.DeletedGroups).
		Int("bookings", res.DeletedBookings).
		Int("tickets", res.DeletedTickets).
		Msg("all groups reset")
	return res, errors.Join(errs...)
}

func checkAmount(paid *int64) error {
	if paid != nil && *paid < 0 {
		return invalidf("amount paid must not be negative")
	}
	return nil
}
