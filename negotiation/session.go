package negotiation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/casualjim/agora/events"
	"github.com/casualjim/agora/llm"
	"github.com/casualjim/agora/pkg/slogx"
	"github.com/casualjim/agora/pkg/uuidx"
	"github.com/fogfish/opts"
	"github.com/go-openapi/strfmt"
)

// DefaultMaxRounds bounds a session when no limit is configured.
const DefaultMaxRounds = 3

var (
	ErrSessionClosed = errors.New("negotiation is closed")
	ErrNotOpened     = errors.New("negotiation has no opening offer")
	ErrAlreadyOpened = errors.New("negotiation is already open")
)

// State is the lifecycle of a session.
type State uint8

const (
	InProgress State = iota
	Agreement
	Impasse
)

func (s State) String() string {
	switch s {
	case InProgress:
		return "in_progress"
	case Agreement:
		return "agreement"
	case Impasse:
		return "impasse"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Round is one offer and the answer it got.
type Round struct {
	Offer     Offer
	Responder string
	Utility   float64
	Response  Response
}

// Session is a negotiation between an opener and a responder.
type Session struct {
	ID string

	opener    Party
	responder Party
	maxRounds int
	narrator  llm.Gateway
	events    events.Topic
	logger    *slog.Logger
	clock     func() time.Time

	// turn serializes Open and Respond; mu guards the fields below and is
	// never held while the narrator generates
	turn      sync.Mutex
	mu        sync.Mutex
	state     State
	offers    []Offer
	rounds    []Round
	agreement *Offer
}

var (
	MaxRounds = opts.ForName[Session, int]("maxRounds")
	// Narrator lets a model write one sentence of argument for every offer.
	Narrator = opts.ForName[Session, llm.Gateway]("narrator")
	Events   = opts.ForName[Session, events.Topic]("events")
	Logger   = opts.ForName[Session, *slog.Logger]("logger")
)

// Clock replaces time.Now for timestamps.
func Clock(now func() time.Time) opts.Option[Session] {
	return opts.Type[Session](func(s *Session) error {
		s.clock = now
		return nil
	})
}

// NewSession prepares a negotiation in which opener makes the first offer.
func NewSession(opener, responder Party, options ...opts.Option[Session]) (*Session, error) {
	s := &Session{
		ID:        uuidx.Short("neg"),
		opener:    opener,
		responder: responder,
		maxRounds: DefaultMaxRounds,
		clock:     time.Now,
	}
	if err := opts.Apply(s, options); err != nil {
		return nil, err
	}

	err := errors.Join(opener.validate(), responder.validate())
	if opener.Name == responder.Name && opener.Name != "" {
		err = errors.Join(err, fmt.Errorf("both parties are named %q", opener.Name))
	}
	if s.maxRounds < 1 {
		err = errors.Join(err, fmt.Errorf("max rounds must be positive, got %d", s.maxRounds))
	}
	if err != nil {
		return nil, err
	}

	s.logger = slogx.Component(s.logger, "negotiation").With(slog.String("session", s.ID))
	return s, nil
}

// Open places the opener's first offer.
func (s *Session) Open(ctx context.Context, price, quantity float64) (Offer, error) {
	s.turn.Lock()
	defer s.turn.Unlock()

	s.mu.Lock()
	state, opened := s.state, len(s.offers) > 0
	s.mu.Unlock()
	switch {
	case state != InProgress:
		return Offer{}, ErrSessionClosed
	case opened:
		return Offer{}, ErrAlreadyOpened
	}
	return s.place(ctx, s.opener, price, quantity), nil
}

// Respond lets the party that did not make the pending offer answer it.
// A counter offer becomes the next pending offer unless the round limit was
// reached, which closes the session as an impasse.
func (s *Session) Respond(ctx context.Context) (Round, error) {
	s.turn.Lock()
	defer s.turn.Unlock()

	round, next, err := s.answer(ctx)
	if err != nil || next == nil {
		return round, err
	}
	s.place(ctx, next.bidder, next.price, next.quantity)
	return round, nil
}

type counterOffer struct {
	bidder          Party
	price, quantity float64
}

// answer records the response to the pending offer and returns the counter
// offer to place, if any.
func (s *Session) answer(ctx context.Context) (Round, *counterOffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.state != InProgress:
		return Round{}, nil, ErrSessionClosed
	case len(s.offers) == 0:
		return Round{}, nil, ErrNotOpened
	}

	pending := s.offers[len(s.offers)-1]
	party := s.responder
	if pending.Bidder == s.responder.Name {
		party = s.opener
	}

	u, resp := party.Evaluate(pending, len(s.rounds) == 0)
	round := Round{Offer: pending, Responder: party.Name, Utility: u, Response: resp}
	s.rounds = append(s.rounds, round)

	s.logger.InfoContext(ctx, "offer answered",
		slog.String("offer", pending.String()),
		slog.String("responder", party.Name),
		slog.Float64("utility", u),
		slog.String("response", resp.String()),
	)
	events.Emit(ctx, s.events, events.OfferMade{
		Session:   s.ID,
		Bidder:    pending.Bidder,
		Number:    pending.Number,
		Price:     pending.Price,
		Quantity:  pending.Quantity,
		Utility:   u,
		Response:  resp.String(),
		Argument:  pending.Argument,
		Timestamp: pending.Timestamp,
	})

	switch {
	case resp == Accepted:
		s.agreement = &pending
		s.close(ctx, Agreement)
	case resp == Rejected:
		s.close(ctx, Impasse)
	case len(s.rounds) >= s.maxRounds:
		s.close(ctx, Impasse)
	default:
		price, quantity := party.Counter(pending)
		return round, &counterOffer{bidder: party, price: price, quantity: quantity}, nil
	}
	return round, nil, nil
}

// Run answers offers until the session closes and returns its final state.
func (s *Session) Run(ctx context.Context) (State, error) {
	for {
		if err := ctx.Err(); err != nil {
			return s.State(), err
		}
		if _, err := s.Respond(ctx); err != nil {
			if errors.Is(err, ErrSessionClosed) {
				return s.State(), nil
			}
			return s.State(), err
		}
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Offers returns every offer made, in order.
func (s *Session) Offers() []Offer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.offers)
}

// Rounds returns every answered offer, in order.
func (s *Session) Rounds() []Round {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.rounds)
}

// Agreement returns the accepted offer once the session reached agreement.
func (s *Session) Agreement() (Offer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.agreement == nil {
		return Offer{}, false
	}
	return *s.agreement, true
}

func (s *Session) place(ctx context.Context, bidder Party, price, quantity float64) Offer {
	argument := s.argue(ctx, bidder, price, quantity)

	s.mu.Lock()
	defer s.mu.Unlock()
	offer := Offer{
		ID:        uuidx.NewString(),
		Bidder:    bidder.Name,
		Price:     price,
		Quantity:  quantity,
		Number:    len(s.offers) + 1,
		Argument:  argument,
		Timestamp: strfmt.DateTime(s.clock()),
	}
	s.offers = append(s.offers, offer)
	return offer
}

func (s *Session) argue(ctx context.Context, bidder Party, price, quantity float64) string {
	if s.narrator == nil {
		return ""
	}
	prompt := fmt.Sprintf(
		"You are %s, the %s in a negotiation. In one short persuasive sentence, justify offering %g units at %.2f each.",
		bidder.Name, bidder.Utility.Side, quantity, price,
	)
	text, err := s.narrator.Generate(ctx, prompt, llm.Temperature(0.7))
	if err != nil {
		s.logger.WarnContext(ctx, "narration failed", slogx.Error(err))
		return ""
	}
	return strings.TrimSpace(text)
}

func (s *Session) close(ctx context.Context, state State) {
	s.state = state
	closed := events.NegotiationClosed{
		Session:   s.ID,
		State:     state.String(),
		Rounds:    len(s.rounds),
		Timestamp: strfmt.DateTime(s.clock()),
	}
	if s.agreement != nil {
		closed.Price, closed.Quantity = s.agreement.Price, s.agreement.Quantity
	}
	s.logger.InfoContext(ctx, "negotiation closed", slog.String("state", state.String()), slog.Int("rounds", len(s.rounds)))
	events.Emit(ctx, s.events, closed)
}
