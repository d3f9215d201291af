// Package catalog holds the static list of attractions groups can be
// formed for.  Groups copy what they need from here at creation time, so
// editing an entry never changes an existing group.
package catalog

import (
	"sort"

	"github.com/iliyamo/grouptrip/internal/model"
)

// Catalog is a read-only lookup of attractions by ID.
type Catalog struct {
	byID map[int]model.Attraction
}

// New builds a catalog from entries.  Later duplicates win.
func New(entries []model.Attraction) *Catalog {
	c := &Catalog{byID: make(map[int]model.Attraction, len(entries))}
	for _, a := range entries {
		c.byID[a.ID] = a
	}
	return c
}

// Default returns the built-in attraction list.
func Default() *Catalog { return New(defaultAttractions) }

// Get returns the attraction with id.
func (c *Catalog) Get(id int) (model.Attraction, bool) {
	a, ok := c.byID[id]
	return a, ok
}

// All returns every attraction ordered by ID.
func (c *Catalog) All() []model.Attraction {
	out := make([]model.Attraction, 0, len(c.byID))
	for _, a := range c.byID {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

var defaultAttractions = []model.Attraction{
	{
		ID: 1, Name: "Termy Bukowina", Location: "Bukowina Tatrzańska", Category: "Termy",
		TicketType: "Bilet całodniowy", RegularPriceCents: 8900, GroupPriceCents: 6900, MinPeople: 15,
		Description: "14 basenów termalnych, zjeżdżalnie wodne i sauny z widokiem na Tatry.",
	},
	{
		ID: 2, Name: "Termy Białka", Location: "Białka Tatrzańska", Category: "Termy",
		TicketType: "Bilet całodniowy", RegularPriceCents: 7900, GroupPriceCents: 5900, MinPeople: 15,
		Description: "Baseny termalne z atrakcjami wodnymi, groty solne i strefa SPA.",
	},
	{
		ID: 3, Name: "Termy Chochołowskie", Location: "Chochołów", Category: "Termy",
		TicketType: "Bilet całodniowy", RegularPriceCents: 8900, GroupPriceCents: 6900, MinPeople: 15,
		Description: "30 basenów, 8 zjeżdżalni i strefa wellness.",
	},
	{
		ID: 4, Name: "Wyciąg Polana Szymoszkowa", Location: "Zakopane", Category: "Wyciąg narciarski",
		TicketType: "Karnet całodniowy", RegularPriceCents: 12000, GroupPriceCents: 9500, MinPeople: 15,
		Description: "Stok narciarski w centrum Zakopanego, 5 tras o różnym stopniu trudności.",
	},
	{
		ID: 5, Name: "Wyciąg Bukowina", Location: "Bukowina Tatrzańska", Category: "Wyciąg narciarski",
		TicketType: "Karnet całodniowy", RegularPriceCents: 11000, GroupPriceCents: 8500, MinPeople: 15,
		Description: "Ośrodek narciarski z 6 wyciągami i szkołą narciarską.",
	},
	{
		ID: 6, Name: "Wyciąg Białka", Location: "Białka Tatrzańska", Category: "Wyciąg narciarski",
		TicketType: "Karnet całodniowy", RegularPriceCents: 10000, GroupPriceCents: 8000, MinPeople: 15,
		Description: "Rodzinny stok z łagodnymi trasami i snow parkiem dla dzieci.",
	},
}
