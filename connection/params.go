// Package connection assembles the circuit connectome: synapse parameter
// datasets read from edge files, connections ordered per target cell, and the
// managers applying Connection-block rules, gap junctions, delayed weight
// adjustments and spike replay.
package connection

import "math"

// SynapseParameters is one synapse record from an edge file, in the column
// order of the classic nrn datasets.
type SynapseParameters struct {
	SGID    uint64  `yaml:"sgid" json:"sgid"`
	Delay   float64 `yaml:"delay" json:"delay"`
	Isec    int     `yaml:"isec" json:"isec"`
	Ipt     int     `yaml:"ipt" json:"ipt"`
	Offset  float64 `yaml:"offset" json:"offset"`
	Weight  float64 `yaml:"weight" json:"weight"`
	U       float64 `yaml:"u" json:"u"`
	D       float64 `yaml:"d" json:"d"`
	F       float64 `yaml:"f" json:"f"`
	DTC     float64 `yaml:"dtc" json:"dtc"`
	SynType int     `yaml:"syn_type" json:"syn_type"`
}

// QuantizeDelay snaps a synaptic delay onto the integration time grid,
// compensating for minor floating point inaccuracies in stored delays.
func QuantizeDelay(delay, dt float64) float64 {
	if dt <= 0 {
		return delay
	}
	return math.Floor(delay/dt+1e-5) * dt
}

// SynapseMode selects which receptor populations are instantiated.
type SynapseMode int

const (
	// DualSyns instantiates both AMPA and NMDA synapses. Default.
	DualSyns SynapseMode = iota
	// AmpaOnly instantiates AMPA synapses only.
	AmpaOnly
)

// SynapseModeFromString parses the Run block's SynapseMode field. The empty
// string selects the default.
func SynapseModeFromString(s string) (SynapseMode, error) {
	switch s {
	case "", "DualSyns":
		return DualSyns, nil
	case "AmpaOnly":
		return AmpaOnly, nil
	}
	return DualSyns, &UnknownSynapseModeError{Mode: s}
}

func (m SynapseMode) String() string {
	if m == AmpaOnly {
		return "AmpaOnly"
	}
	return "DualSyns"
}
