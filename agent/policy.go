package agent

import (
	"errors"
	"fmt"
	"strconv"
)

// Policy decides without a language model.
type Policy interface {
	Decide(Perception) (Decision, error)
}

// PolicyFunc adapts a function to the Policy interface.
type PolicyFunc func(Perception) (Decision, error)

func (fn PolicyFunc) Decide(p Perception) (Decision, error) { return fn(p) }

// ErrUnknownVariable is returned by a policy reading a variable nobody reported.
var ErrUnknownVariable = errors.New("variable not perceived")

// Hysteresis is a two threshold reactive rule, the thermostat of the
// perception demo: below Low it picks Below, above High it picks Above and in
// between it holds. The variable is read from the environment first and from
// the agent's own state second.
type Hysteresis struct {
	Variable string
	Low      float64
	High     float64
	Below    string
	Above    string
	// Hold is the action between the thresholds, "hold" when empty.
	Hold string
}

func (h Hysteresis) Decide(p Perception) (Decision, error) {
	raw, ok := lookup(p.Environment, h.Variable)
	if !ok {
		raw, ok = lookup(p.State, h.Variable)
	}
	if !ok {
		return Decision{}, fmt.Errorf("%w: %s", ErrUnknownVariable, h.Variable)
	}
	v, err := toFloat(raw)
	if err != nil {
		return Decision{}, fmt.Errorf("%s: %w", h.Variable, err)
	}

	switch {
	case v < h.Low:
		return Decision{Action: h.Below, Rationale: fmt.Sprintf("%s %.1f is below %.1f", h.Variable, v, h.Low)}, nil
	case v > h.High:
		return Decision{Action: h.Above, Rationale: fmt.Sprintf("%s %.1f is above %.1f", h.Variable, v, h.High)}, nil
	default:
		hold := h.Hold
		if hold == "" {
			hold = "hold"
		}
		return Decision{Action: hold, Rationale: fmt.Sprintf("%s %.1f is within [%.1f, %.1f]", h.Variable, v, h.Low, h.High)}, nil
	}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(n, 64)
	default:
		return 0, fmt.Errorf("not a number: %v", v)
	}
}
