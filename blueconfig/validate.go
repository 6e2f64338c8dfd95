package blueconfig

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// ErrNoRunBlock is returned when a file declares no Run block. A BlueConfig
// without one cannot drive a simulation.
var ErrNoRunBlock = errors.New("blueconfig: no Run block")

var knownKinds = map[string]bool{
	KindRun:            true,
	KindCircuit:        true,
	KindConditions:     true,
	KindStimulus:       true,
	KindStimulusInject: true,
	KindReport:         true,
	KindConnection:     true,
	KindProjection:     true,
	KindModification:   true,
	KindElectrode:      true,
}

// Validate checks cross-block consistency: a single Run block with sane
// timing, StimulusInject blocks referencing declared stimuli, Connection
// blocks carrying both pathway endpoints and Report blocks naming a target
// and a variable. All problems are reported, joined into one error.
func (f *File) Validate() error {
	var errs []error

	run, err := f.ParseRun()
	if err != nil {
		errs = append(errs, err)
	} else {
		if run.Dt <= 0 {
			errs = append(errs, fmt.Errorf("blueconfig: Run %s: Dt must be positive, got %g", run.Name, run.Dt))
		}
		if run.Duration < 0 {
			errs = append(errs, fmt.Errorf("blueconfig: Run %s: negative Duration %g", run.Name, run.Duration))
		}
	}

	for _, b := range f.Blocks(KindStimulusInject) {
		stim, ok := b.Get("Stimulus")
		if !ok {
			errs = append(errs, fmt.Errorf("blueconfig: StimulusInject %s: missing Stimulus", b.Name))
			continue
		}
		if _, declared := f.Block(KindStimulus, stim); !declared {
			errs = append(errs, fmt.Errorf(
				"blueconfig: StimulusInject %s references undeclared Stimulus %s", b.Name, stim))
		}
		if _, ok := b.Get("Target"); !ok {
			errs = append(errs, fmt.Errorf("blueconfig: StimulusInject %s: missing Target", b.Name))
		}
	}

	for _, b := range f.Blocks(KindConnection) {
		if _, ok := b.Get("Source"); !ok {
			errs = append(errs, fmt.Errorf("blueconfig: Connection %s: missing Source", b.Name))
		}
		if _, ok := b.Get("Destination"); !ok {
			errs = append(errs, fmt.Errorf("blueconfig: Connection %s: missing Destination", b.Name))
		}
	}

	for _, b := range f.Blocks(KindProjection) {
		if _, ok := b.Get("Path"); !ok {
			errs = append(errs, fmt.Errorf("blueconfig: Projection %s: missing Path", b.Name))
		}
	}

	for _, b := range f.Blocks(KindReport) {
		if _, ok := b.Get("Target"); !ok {
			errs = append(errs, fmt.Errorf("blueconfig: Report %s: missing Target", b.Name))
		}
		if _, ok := b.Get("ReportOn"); !ok {
			errs = append(errs, fmt.Errorf("blueconfig: Report %s: missing ReportOn", b.Name))
		}
	}

	// Unknown kinds are kept in the file but most likely typos.
	for _, b := range f.All() {
		if !knownKinds[b.Kind] {
			logrus.Warnf("Unknown block kind %s at line %d", b.Kind, b.Line)
		}
	}

	return errors.Join(errs...)
}
