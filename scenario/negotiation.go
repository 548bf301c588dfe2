package scenario

import (
	"context"
	"fmt"
	"strings"

	"github.com/casualjim/agora/internal/narrate"
	"github.com/casualjim/agora/negotiation"
	"github.com/fogfish/opts"
)

// Negotiation runs two sessions from the same vendor opening: one against a
// buyer whose budget is too low, one against a buyer whose ranges overlap.
func Negotiation(ctx context.Context, env Env) error {
	n := env.narrator()
	n.Title("Negotiation: offers, counter offers and utilities")
	if !env.ready(ctx) {
		return nil
	}

	vendor := negotiation.Party{
		Name:    "vendor",
		Utility: negotiation.Utility{Side: negotiation.Seller, PriceMin: 80, PriceMax: 150, QuantityMin: 10, QuantityMax: 100},
	}
	buyers := []struct {
		party  negotiation.Party
		rounds int
	}{
		{negotiation.Party{Name: "buyer", Utility: negotiation.Utility{Side: negotiation.Buyer, PriceMin: 50, PriceMax: 120, QuantityMin: 20, QuantityMax: 100}}, negotiation.DefaultMaxRounds},
		{negotiation.Party{Name: "wholesaler", Utility: negotiation.Utility{Side: negotiation.Buyer, PriceMin: 100, PriceMax: 160, QuantityMin: 20, QuantityMax: 100}, BATNA: 0.3}, 6},
	}

	var md strings.Builder
	md.WriteString("## Negotiation outcomes\n\n| buyer | state | rounds | deal |\n|---|---|---|---|\n")
	for _, buyer := range buyers {
		n.Section(fmt.Sprintf("vendor vs %s (at most %d rounds)", buyer.party.Name, buyer.rounds))

		options := []opts.Option[negotiation.Session]{
			negotiation.MaxRounds(buyer.rounds),
			negotiation.Events(env.Events),
		}
		if gw := env.gateway(); gw != nil {
			options = append(options, negotiation.Narrator(gw))
		}
		if env.Logger != nil {
			options = append(options, negotiation.Logger(env.Logger))
		}
		s, err := negotiation.NewSession(vendor, buyer.party, options...)
		if err != nil {
			return err
		}
		if _, err := s.Open(ctx, 140, 50); err != nil {
			return err
		}
		state, err := s.Run(ctx)
		if err != nil {
			return err
		}

		for _, r := range s.Rounds() {
			narrateRound(n, r)
		}

		deal := "none"
		if o, ok := s.Agreement(); ok {
			deal = fmt.Sprintf("%g units at %.2f", o.Quantity, o.Price)
		}
		fmt.Fprintf(&md, "| %s | %s | %d | %s |\n", buyer.party.Name, state, len(s.Rounds()), deal)
		n.Dump("offers", s.Offers())
	}
	n.Summary(md.String())
	return nil
}

func narrateRound(n *narrate.Narrator, r negotiation.Round) {
	n.Info("%s offers %g units at %.2f", r.Offer.Bidder, r.Offer.Quantity, r.Offer.Price)
	if r.Offer.Argument != "" {
		n.Info("  %q", r.Offer.Argument)
	}
	n.Info("  %s scores it %.2f and %s", r.Responder, r.Utility, r.Response)
}
