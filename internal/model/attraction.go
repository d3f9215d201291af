package model

// Attraction is a catalog entry groups are formed for.  Prices are in
// grosze (1/100 PLN).
type Attraction struct {
	ID                int    `json:"id"`
	Name              string `json:"name"`
	Location          string `json:"location"`
	Category          string `json:"category"`
	TicketType        string `json:"ticketType"`
	RegularPriceCents int64  `json:"regularPriceCents"`
	GroupPriceCents   int64  `json:"groupPriceCents"`
	MinPeople         int    `json:"minPeople"`
	Description       string `json:"description"`
}
