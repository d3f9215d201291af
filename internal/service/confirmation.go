package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/grouptrip/internal/model"
	"github.com/iliyamo/grouptrip/internal/repository"
)

// Coordinator carries a group from full to ticketed: it parks member
// bookings as pending when the group fills and, on a staff request,
// issues, stores and announces the tickets.
type Coordinator struct {
	groups   *repository.GroupRepo
	bookings *repository.BookingRepo
	tickets  *repository.TicketRepo
	issuer   *TicketIssuer
	notifier Notifier
	attempts int
	now      func() time.Time
	log      zerolog.Logger
}

// IssueResult summarises one IssueTickets run.
type IssueResult struct {
	Group    *model.Group `json:"group"`
	Tickets  int          `json:"ticketsIssued"`
	Notified int          `json:"membersNotified"`
}

// OnGroupFull moves every member's bookings for g to
// pending_confirmation.  Running it twice changes nothing.
func (c *Coordinator) OnGroupFull(ctx context.Context, g *model.Group) error {
	var errs []error
	changed := 0
	for _, m := range g.Members {
		n, err := c.bookings.UpdateStatusForGroup(ctx, m.UserID, g.ID, model.BookingPendingConfirmation, c.now())
		changed += n
		if err != nil {
			errs = append(errs, fmt.Errorf("member %s: %w", m.UserID, err))
		}
	}
	c.log.Info().
		Str("group_id", g.ID).
		Int("members", len(g.Members)).
		Int("bookings_pending", changed).
		Msg("group full, awaiting staff confirmation")
	return errors.Join(errs...)
}

// IssueTickets issues tickets for every member of a full group.
//
// The group is stamped with ticketsSentAt first.  That closes it to
// joins, so the member list read back from the stamped version is the
// final one.  Tickets already stored for a member are reused, which
// makes a second run (or a run after a partial failure) fill the gaps
// without minting new IDs.
func (c *Coordinator) IssueTickets(ctx context.Context, groupID string) (*IssueResult, error) {
	g, err := mutateGroup(ctx, c.groups, groupID, c.attempts, func(g *model.Group) error {
		if g.Status != model.GroupFull {
			return withKind(ErrInvalidState, fmt.Errorf("group %s is %s, tickets can only be issued for full groups", g.ID, g.Status))
		}
		if g.TicketsIssued() {
			return errUnchanged
		}
		at := c.now().UTC()
		g.TicketsSentAt = &at
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := &IssueResult{Group: g}
	for _, m := range g.Members {
		tickets, created, err := c.ticketsFor(ctx, g, m)
		if err != nil {
			return nil, fmt.Errorf("issue tickets for %s: %w", m.UserID, err)
		}
		res.Tickets += len(tickets)
		if created {
			if err := c.notifier.Notify(ctx, g, m, tickets); err != nil {
				c.log.Warn().Err(err).Str("group_id", g.ID).Str("user_id", m.UserID).Msg("ticket notification failed")
			} else {
				res.Notified++
			}
		}
		if _, err := c.bookings.UpdateStatusForGroup(ctx, m.UserID, g.ID, model.BookingTicketsSent, c.now()); err != nil {
			return nil, fmt.Errorf("mark bookings sent for %s: %w", m.UserID, err)
		}
	}
	c.log.Info().
		Str("group_id", g.ID).
		Int("tickets", res.Tickets).
		Int("notified", res.Notified).
		Msg("tickets issued")
	return res, nil
}

// ticketsFor returns the member's stored tickets, minting and storing
// them first if there are none.  created is true only for the caller
// whose write won.
func (c *Coordinator) ticketsFor(ctx context.Context, g *model.Group, m model.Member) ([]model.Ticket, bool, error) {
	existing, err := c.tickets.Get(ctx, m.UserID, g.ID)
	if err != nil {
		return nil, false, err
	}
	if len(existing) > 0 {
		return existing, false, nil
	}
	return c.tickets.CreateOnce(ctx, m.UserID, g.ID, c.issuer.GenerateFor(m, g))
}
