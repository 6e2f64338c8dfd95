package connection

import (
	"github.com/sirupsen/logrus"

	"github.com/neurosimlabs/neurodamus/target"
)

// SynapseRuleManager handles chemical synapses: it loads the base circuit
// and projection edge files, applies Connection rules including delayed
// weight adjustments, and attaches replay stimuli.
type SynapseRuleManager struct {
	*Manager
}

// NewSynapseRuleManager opens the base connectivity from nrnPath
// ("fspath[:population]") and prepares rule application for the local gids.
// synapseMode is the Run SynapseMode value ("" defaults to DualSyns).
func NewSynapseRuleManager(targets *target.Manager, localGIDs []uint64, dt float64, nrnPath, synapseMode string) (*SynapseRuleManager, error) {
	mode, err := SynapseModeFromString(synapseMode)
	if err != nil {
		return nil, err
	}
	m := &SynapseRuleManager{Manager: NewManager(targets, localGIDs, dt)}
	m.synapseMode = mode
	if _, err := m.InitSynapseLocation(nrnPath, SynapseFilenames, true); err != nil {
		return nil, err
	}
	return m, nil
}

// ConfigureConnections applies Connection rules to instantiated pathways.
// Rules carrying a Delay become scheduled weight adjustments.
func (m *SynapseRuleManager) ConfigureConnections(rules []Rule) error {
	for _, rule := range rules {
		if rule.Delay != nil {
			if err := m.SetupDelayedConnection(rule); err != nil {
				return err
			}
			continue
		}
		if err := m.ConfigureGroup(rule, nil); err != nil {
			return err
		}
	}
	return nil
}

// SetupDelayedConnection schedules the weight change of a delayed
// Connection block on every matching pathway.
func (m *SynapseRuleManager) SetupDelayedConnection(rule Rule) error {
	if rule.Weight == nil {
		return &ConfigurationError{Msg: "delayed connection block requires a Weight"}
	}
	logrus.Infof(" * Pathway %s -> %s: weight %g at t=%g",
		rule.Source, rule.Destination, *rule.Weight, *rule.Delay)
	conns, err := m.GetTargetConnections(rule.Source, rule.Destination, nil, nil)
	if err != nil {
		return err
	}
	for _, conn := range conns {
		conn.AddDelayedWeight(*rule.Delay, *rule.Weight)
	}
	return nil
}

// Replay attaches pre-synaptic spike trains to the pathway between two cell
// targets. Events before startDelay are dropped. Returns the number of
// events attached across connections.
func (m *SynapseRuleManager) Replay(spikes map[uint64][]float64, srcTargetName, dstTargetName string, startDelay float64) (int, error) {
	logrus.Infof("Applying replay map with %d src cells...", len(spikes))
	conns, err := m.GetTargetConnections(srcTargetName, dstTargetName, nil, nil)
	if err != nil {
		return 0, err
	}
	injected := 0
	for _, conn := range conns {
		if times, ok := spikes[conn.SGID]; ok {
			injected += conn.Replay(times, startDelay)
		}
	}
	logrus.Infof(" => Replaying %d stimulus spikes", injected)
	return injected, nil
}

// FinalizeSynapses instantiates the loaded connections.
func (m *SynapseRuleManager) FinalizeSynapses(baseSeed int, coreNeuron bool) int {
	return m.Finalize(baseSeed, coreNeuron, "synapses", func(conn *Connection) bool {
		return conn.Finalize(baseSeed, coreNeuron)
	})
}
