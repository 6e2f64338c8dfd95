package stimulus

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/neurosimlabs/neurodamus/blueconfig"
	"github.com/neurosimlabs/neurodamus/target"
)

// Inject pairs a declared stimulus with the cell target it is applied to.
// Source restricts replay injections to a pre-synaptic target.
type Inject struct {
	Name     string
	Stimulus *Stimulus
	Target   target.Spec
	Source   target.Spec
}

// Manager holds the declared stimuli and their resolved injections.
type Manager struct {
	stimuli map[string]*Stimulus
	order   []string
	injects []Inject
}

// NewManager resolves the Stimulus and StimulusInject blocks of a parsed
// config. StimulusInject blocks referencing unknown stimuli are an error.
func NewManager(f *blueconfig.File) (*Manager, error) {
	m := &Manager{stimuli: make(map[string]*Stimulus)}

	for _, b := range f.Blocks(blueconfig.KindStimulus) {
		s, err := FromBlock(b)
		if err != nil {
			return nil, err
		}
		m.stimuli[s.Name] = s
		m.order = append(m.order, s.Name)
	}

	for _, b := range f.Blocks(blueconfig.KindStimulusInject) {
		name := b.GetString("Stimulus", "")
		s, ok := m.stimuli[name]
		if !ok {
			return nil, fmt.Errorf("stimulus inject %s: unknown stimulus %q", b.Name, name)
		}
		tgt, ok := b.Get("Target")
		if !ok {
			return nil, fmt.Errorf("stimulus inject %s: missing Target", b.Name)
		}
		inj := Inject{
			Name:     b.Name,
			Stimulus: s,
			Target:   target.ParseSpec(tgt),
		}
		if src := b.GetString("Source", s.Source); src != "" {
			inj.Source = target.ParseSpec(src)
		}
		m.injects = append(m.injects, inj)
		logrus.Debugf("Inject %s: stimulus %s -> target %s", inj.Name, name, inj.Target)
	}

	if unused := m.unusedStimuli(); len(unused) > 0 {
		logrus.Warnf("Stimuli declared but never injected: %v", unused)
	}
	return m, nil
}

func (m *Manager) unusedStimuli() []string {
	used := make(map[string]bool, len(m.injects))
	for _, inj := range m.injects {
		used[inj.Stimulus.Name] = true
	}
	var out []string
	for _, name := range m.order {
		if !used[name] {
			out = append(out, name)
		}
	}
	return out
}

// Stimulus retrieves a declared stimulus by name.
func (m *Manager) Stimulus(name string) (*Stimulus, bool) {
	s, ok := m.stimuli[name]
	return s, ok
}

// Stimuli lists the declared stimuli in declaration order.
func (m *Manager) Stimuli() []*Stimulus {
	out := make([]*Stimulus, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.stimuli[name])
	}
	return out
}

// Injects lists the resolved injections in declaration order.
func (m *Manager) Injects() []Inject {
	return m.injects
}

// ReplayInjects lists the injections whose stimulus attaches replay spikes.
func (m *Manager) ReplayInjects() []Inject {
	var out []Inject
	for _, inj := range m.injects {
		if inj.Stimulus.IsReplay() {
			out = append(out, inj)
		}
	}
	return out
}
