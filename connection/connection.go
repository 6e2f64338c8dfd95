package connection

import (
	"sort"

	"github.com/sirupsen/logrus"
)

// PopulationID identifies an edge population by its source and destination
// node population ids. The base circuit connectivity is (0, 0).
type PopulationID struct {
	Src int
	Dst int
}

// DelayedWeight is a scheduled weight change applied at simulation time
// Delay, coming from Connection blocks carrying a Delay field.
type DelayedWeight struct {
	Delay  float64
	Weight float64
}

// Connection groups all synapses between one source and one target cell,
// together with the scalars and events the Connection rules configured on
// the pathway.
type Connection struct {
	SGID uint64
	TGID uint64
	Pop  PopulationID

	WeightFactor     float64
	MinisSpontRate   float64
	SynDelayOverride *float64
	Mode             SynapseMode

	// Locked blocks further synapse appends once a Connection rule has
	// instantiated the pathway; loading a new connectivity source unlocks.
	Locked   bool
	disabled bool

	synapses   []SynapseParameters
	synapseIDs []int

	configurations []string
	delayedWeights []DelayedWeight
	replaySpikes   []float64
}

// NewConnection creates a connection with the default weight factor.
func NewConnection(sgid, tgid uint64, pop PopulationID) *Connection {
	return &Connection{SGID: sgid, TGID: tgid, Pop: pop, WeightFactor: 1}
}

// AddSynapse appends one synapse with its id within the edge dataset.
func (c *Connection) AddSynapse(params SynapseParameters, baseID int) {
	c.synapses = append(c.synapses, params)
	c.synapseIDs = append(c.synapseIDs, baseID)
}

// Synapses returns the synapse parameter records of the connection.
func (c *Connection) Synapses() []SynapseParameters {
	return c.synapses
}

// SynapseCount is the number of synapses placed on this connection.
func (c *Connection) SynapseCount() int {
	return len(c.synapses)
}

// AddSynapseConfiguration appends a SynapseConfigure statement to be applied
// on instantiation.
func (c *Connection) AddSynapseConfiguration(config string) {
	if config == "" {
		return
	}
	c.configurations = append(c.configurations, config)
}

// Configurations lists the accumulated SynapseConfigure statements.
func (c *Connection) Configurations() []string {
	return c.configurations
}

// AddDelayedWeight schedules a weight adjustment, kept ordered by delay.
func (c *Connection) AddDelayedWeight(delay, weight float64) {
	dw := DelayedWeight{Delay: delay, Weight: weight}
	pos := sort.Search(len(c.delayedWeights), func(i int) bool {
		return c.delayedWeights[i].Delay > delay
	})
	c.delayedWeights = append(c.delayedWeights, DelayedWeight{})
	copy(c.delayedWeights[pos+1:], c.delayedWeights[pos:])
	c.delayedWeights[pos] = dw
}

// DelayedWeights returns the scheduled adjustments in delay order.
func (c *Connection) DelayedWeights() []DelayedWeight {
	return c.delayedWeights
}

// UpdateWeights sets the netcon weight factor on an instantiated connection.
func (c *Connection) UpdateWeights(weight float64) {
	c.WeightFactor = weight
}

// Replay attaches pre-synaptic spike times, dropping events before
// startDelay. Returns the number of events attached.
func (c *Connection) Replay(spikes []float64, startDelay float64) int {
	n := 0
	for _, t := range spikes {
		if t >= startDelay {
			c.replaySpikes = append(c.replaySpikes, t)
			n++
		}
	}
	sort.Float64s(c.replaySpikes)
	return n
}

// ReplaySpikes returns the attached replay events, in time order.
func (c *Connection) ReplaySpikes() []float64 {
	return c.replaySpikes
}

// Disable turns the connection off; with zeroConductance the synapse
// conductances are zeroed as well so CoreNEURON leaves them inert.
func (c *Connection) Disable(zeroConductance bool) {
	c.disabled = true
	if zeroConductance {
		for i := range c.synapses {
			c.synapses[i].Weight = 0
		}
	}
}

// Enable re-enables a disabled connection.
func (c *Connection) Enable() {
	c.disabled = false
}

// Enabled reports whether the connection will be instantiated.
func (c *Connection) Enabled() bool {
	return !c.disabled
}

// Finalize marks the connection ready for the simulator. Disabled
// connections are skipped. Returns whether the connection was instantiated.
func (c *Connection) Finalize(baseSeed int, coreNeuron bool) bool {
	if c.disabled {
		if coreNeuron {
			logrus.Debugf("skipping disabled connection %d->%d under CoreNEURON", c.SGID, c.TGID)
		}
		return false
	}
	return true
}
