package agent

import (
	"errors"
	"fmt"
	"slices"

	"github.com/casualjim/agora/internal/registry"
)

var ErrDuplicateAgent = errors.New("agent already registered")

// Directory looks agents up by name.
type Directory struct {
	agents registry.Registry[*Agent]
}

func NewDirectory(agents ...*Agent) (*Directory, error) {
	d := &Directory{agents: registry.New[*Agent]()}
	for _, a := range agents {
		if err := d.Add(a); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *Directory) Add(a *Agent) error {
	if _, loaded := d.agents.GetOrAdd(a.Name(), func() *Agent { return a }); loaded {
		return fmt.Errorf("%w: %s", ErrDuplicateAgent, a.Name())
	}
	return nil
}

func (d *Directory) Get(name string) (*Agent, bool) {
	return d.agents.Get(name)
}

func (d *Directory) Del(name string) {
	d.agents.Del(name)
}

func (d *Directory) Len() int {
	return d.agents.Len()
}

// Names returns the registered names sorted alphabetically.
func (d *Directory) Names() []string {
	names := make([]string, 0, d.agents.Len())
	d.agents.ForEach(func(name string, _ *Agent) bool {
		names = append(names, name)
		return true
	})
	slices.Sort(names)
	return names
}
