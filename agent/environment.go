package agent

import (
	"maps"
	"slices"

	json "github.com/goccy/go-json"
)

// Environment is what an agent observes about the world at one step.
type Environment map[string]any

// String returns the environment as JSON, or an empty string when it cannot be
// encoded.
func (e Environment) String() string {
	data, err := json.Marshal(e)
	if err != nil {
		return ""
	}
	return string(data)
}

// Facts returns the environment as key/value pairs sorted by key.
func (e Environment) Facts() []Fact {
	facts := make([]Fact, 0, len(e))
	for _, k := range slices.Sorted(maps.Keys(e)) {
		facts = append(facts, Fact{Key: k, Value: e[k]})
	}
	return facts
}

// Fact is one named observation.
type Fact struct {
	Key   string
	Value any
}

func lookup(facts []Fact, key string) (any, bool) {
	for _, f := range facts {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}
