// Package stimulus resolves Stimulus and StimulusInject declarations into
// injections the simulator applies, and reads replay spike files.
package stimulus

import (
	"fmt"

	"github.com/neurosimlabs/neurodamus/blueconfig"
)

// Mode is the electrical mode of a stimulus.
type Mode string

const (
	ModeCurrent       Mode = "Current"
	ModeVoltage       Mode = "Voltage"
	ModeExtracellular Mode = "Extracellular"
)

// Patterns recognised by the simulator. SynapseReplay is handled apart since
// it attaches spike trains to connections instead of a point process.
var knownPatterns = map[string]bool{
	"Linear":             true,
	"RelativeLinear":     true,
	"Pulse":              true,
	"Noise":              true,
	"ShotNoise":          true,
	"RelativeShotNoise":  true,
	"Poisson":            true,
	"Hyperpolarizing":    true,
	"SEClamp":            true,
	"SynapseReplay":      true,
	"ReplayVoltageTrace": true,
	"SubThreshold":       true,
	"OrnsteinUhlenbeck":  true,
}

// voltagePatterns require Mode Voltage; every other pattern is a current (or
// extracellular) source.
var voltagePatterns = map[string]bool{
	"SEClamp":            true,
	"ReplayVoltageTrace": true,
}

// Stimulus is a declared Stimulus block with its numeric parameters parsed.
// Fields keeps every raw parameter for patterns with uncommon options.
type Stimulus struct {
	Name    string
	Pattern string
	Mode    Mode

	Delay    float64
	Duration float64

	AmpStart     float64
	AmpEnd       float64
	PercentStart float64
	PercentEnd   float64
	MeanPercent  float64
	SDPercent    float64
	Mean         float64
	Variance     float64
	Rate         float64
	Frequency    float64
	Width        float64

	// SpikeFile and Source apply to SynapseReplay stimuli.
	SpikeFile string
	Source    string

	Fields map[string]string
}

// FromBlock parses a Stimulus block into a validated Stimulus.
func FromBlock(b *blueconfig.Block) (*Stimulus, error) {
	s := &Stimulus{
		Name:      b.Name,
		Pattern:   b.GetString("Pattern", ""),
		Mode:      Mode(b.GetString("Mode", string(ModeCurrent))),
		SpikeFile: b.GetString("SpikeFile", ""),
		Source:    b.GetString("Source", ""),
		Fields:    b.Fields(),
	}
	if s.Pattern == "" {
		return nil, fmt.Errorf("stimulus %s: missing Pattern", s.Name)
	}
	if !knownPatterns[s.Pattern] {
		return nil, fmt.Errorf("stimulus %s: unknown pattern %q", s.Name, s.Pattern)
	}
	switch s.Mode {
	case ModeCurrent, ModeVoltage, ModeExtracellular:
	default:
		return nil, fmt.Errorf("stimulus %s: unknown mode %q", s.Name, s.Mode)
	}
	if voltagePatterns[s.Pattern] && s.Mode != ModeVoltage {
		return nil, fmt.Errorf("stimulus %s: pattern %s requires Mode Voltage", s.Name, s.Pattern)
	}
	if s.Pattern == "SynapseReplay" && s.SpikeFile == "" {
		return nil, fmt.Errorf("stimulus %s: SynapseReplay requires a SpikeFile", s.Name)
	}

	var err error
	read := func(key string, dst *float64) {
		if err != nil {
			return
		}
		*dst, err = b.GetFloat(key, 0)
	}
	read("Delay", &s.Delay)
	read("Duration", &s.Duration)
	read("AmpStart", &s.AmpStart)
	read("AmpEnd", &s.AmpEnd)
	read("PercentStart", &s.PercentStart)
	read("PercentEnd", &s.PercentEnd)
	read("MeanPercent", &s.MeanPercent)
	read("SDPercent", &s.SDPercent)
	read("Mean", &s.Mean)
	read("Variance", &s.Variance)
	read("Rate", &s.Rate)
	read("Frequency", &s.Frequency)
	read("Width", &s.Width)
	if err != nil {
		return nil, fmt.Errorf("stimulus %s: %w", s.Name, err)
	}
	if s.Duration < 0 {
		return nil, fmt.Errorf("stimulus %s: negative Duration", s.Name)
	}
	return s, nil
}

// IsReplay reports whether the stimulus attaches replay spike trains instead
// of a point process.
func (s *Stimulus) IsReplay() bool {
	return s.Pattern == "SynapseReplay"
}
