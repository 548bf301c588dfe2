package negotiation

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-openapi/strfmt"
)

const (
	// AcceptAbove is the utility an offer must exceed to be accepted.
	AcceptAbove = 0.7
	// RejectAtOrBelow is the utility at or under which an offer is rejected.
	RejectAtOrBelow = 0.4
	// Nudge is the relative step of a counter offer.
	Nudge = 0.10
)

// Response is a party's answer to an offer.
type Response uint8

const (
	Accepted Response = iota + 1
	Countered
	Rejected
)

func (r Response) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case Countered:
		return "countered"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("response(%d)", uint8(r))
	}
}

// Offer is one proposal. Offers are immutable once made.
type Offer struct {
	ID        string          `json:"id"`
	Bidder    string          `json:"bidder"`
	Price     float64         `json:"price"`
	Quantity  float64         `json:"quantity"`
	Number    int             `json:"number"`
	Argument  string          `json:"argument,omitempty"`
	Timestamp strfmt.DateTime `json:"timestamp"`
}

func (o Offer) String() string {
	return fmt.Sprintf("#%d %s: %.2f x %g", o.Number, o.Bidder, o.Price, o.Quantity)
}

// Party is one side of a negotiation.
type Party struct {
	Name    string
	Utility Utility
	// BATNA is the utility of walking away. Offers scoring at or below it are
	// rejected even when they clear RejectAtOrBelow.
	BATNA float64
}

func (p Party) validate() error {
	if p.Name == "" {
		return errors.New("party name is required")
	}
	if err := p.Utility.Validate(); err != nil {
		return fmt.Errorf("%s: %w", p.Name, err)
	}
	return nil
}

// Evaluate scores an incoming offer and picks the response. The opening offer
// of a session is countered instead of rejected.
func (p Party) Evaluate(o Offer, opening bool) (float64, Response) {
	u := p.Utility.Score(o.Price, o.Quantity)
	switch {
	case u > AcceptAbove:
		return u, Accepted
	case opening:
		return u, Countered
	case u <= math.Max(RejectAtOrBelow, p.BATNA):
		return u, Rejected
	default:
		return u, Countered
	}
}

// Counter proposes terms nudged in the party's favour and clamped to its
// acceptable ranges. Prices are rounded to cents and quantities to units.
func (p Party) Counter(o Offer) (price, quantity float64) {
	price = o.Price * (1 + Nudge)
	if p.Utility.Side == Buyer {
		price = o.Price * (1 - Nudge)
	}
	quantity = o.Quantity * (1 + Nudge)
	price, quantity = p.Utility.Clamp(price, quantity)
	return math.Round(price*100) / 100, math.Round(quantity)
}
