// Package model holds the resolved simulation plan: the JSON document the
// CLI exports and the HTTP service republishes for fleet consumption.
package model

// Plan is a fully resolved simulation setup: everything an external
// simulator launcher needs to know before instantiating the run.
type Plan struct {
	Run           RunInfo            `json:"run"`
	CellCount     int                `json:"cell_count"`
	Ranks         []RankPartition    `json:"ranks"`
	Connectivity  ConnectivityInfo   `json:"connectivity"`
	Stimuli       []StimulusInfo     `json:"stimuli"`
	Reports       []ReportInfo       `json:"reports"`
	Modifications []ModificationInfo `json:"modifications,omitempty"`
}

// RunInfo summarises the Run block after defaults are applied.
type RunInfo struct {
	CircuitPath    string  `json:"circuit_path,omitempty"`
	CircuitTarget  string  `json:"circuit_target,omitempty"`
	OutputRoot     string  `json:"output_root"`
	Simulator      string  `json:"simulator"`
	Duration       float64 `json:"duration"`
	Dt             float64 `json:"dt"`
	ForwardSkip    float64 `json:"forward_skip,omitempty"`
	BaseSeed       int     `json:"base_seed"`
	Celsius        float64 `json:"celsius"`
	VInit          float64 `json:"v_init"`
	SpikeThreshold float64 `json:"spike_threshold"`
	SpikeLocation  string  `json:"spike_location"`
}

// RankPartition is the cell assignment of one rank.
type RankPartition struct {
	Rank      int      `json:"rank"`
	CellCount int      `json:"cell_count"`
	GIDs      []uint64 `json:"gids"`
}

// ConnectivityInfo counts the instantiated connectome.
type ConnectivityInfo struct {
	Connections  int `json:"connections"`
	Synapses     int `json:"synapses"`
	GapJunctions int `json:"gap_junctions"`
	ReplayEvents int `json:"replay_events"`
}

// StimulusInfo is one resolved stimulus injection.
type StimulusInfo struct {
	Name     string  `json:"name"`
	Pattern  string  `json:"pattern"`
	Mode     string  `json:"mode"`
	Target   string  `json:"target"`
	Delay    float64 `json:"delay"`
	Duration float64 `json:"duration"`
}

// ReportInfo is one resolved reporting directive.
type ReportInfo struct {
	Name      string  `json:"name"`
	Target    string  `json:"target"`
	Type      string  `json:"type"`
	ReportOn  string  `json:"report_on"`
	Dt        float64 `json:"dt"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	File      string  `json:"file"`
}

// ModificationInfo is one cell modification applied before the run.
type ModificationInfo struct {
	Name   string `json:"name"`
	Target string `json:"target"`
	Type   string `json:"type"`
}
