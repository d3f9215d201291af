package service

import (
	"context"

	"github.com/iliyamo/grouptrip/internal/model"
)

// Notifier delivers freshly issued tickets to a member.  Delivery is
// best effort: a failing notifier never undoes issuance.
type Notifier interface {
	Notify(ctx context.Context, g *model.Group, m model.Member, tickets []model.Ticket) error
}

// NotifierFunc adapts a plain function to Notifier.
type NotifierFunc func(ctx context.Context, g *model.Group, m model.Member, tickets []model.Ticket) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, g *model.Group, m model.Member, tickets []model.Ticket) error {
	return f(ctx, g, m, tickets)
}

type discardNotifier struct{}

func (discardNotifier) Notify(context.Context, *model.Group, model.Member, []model.Ticket) error {
	return nil
}
