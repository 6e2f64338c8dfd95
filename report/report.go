// Package report resolves Report blocks into reporting directives with the
// simulator defaults applied.
package report

import (
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/neurosimlabs/neurodamus/blueconfig"
	"github.com/neurosimlabs/neurodamus/target"
)

// Report defaults.
const (
	DefaultType        = "compartment"
	DefaultFormat      = "SONATA"
	DefaultUnit        = "mV"
	DefaultSections    = "soma"
	DefaultReportOn    = "v"
	CompartmentsCenter = "center"
	CompartmentsAll    = "all"
)

var knownTypes = map[string]bool{
	"compartment": true,
	"summation":   true,
	"synapse":     true,
}

// Report is a resolved reporting directive.
type Report struct {
	Name         string
	Target       target.Spec
	Type         string
	ReportOn     string
	Unit         string
	Format       string
	Dt           float64
	StartTime    float64
	EndTime      float64
	Sections     string
	Compartments string
	FileName     string
}

// FromBlock resolves a Report block against the Run parameters: Dt is
// clamped up to the run Dt, EndTime down to the run Duration.
func FromBlock(b *blueconfig.Block, run *blueconfig.Run) (*Report, error) {
	tgt, ok := b.Get("Target")
	if !ok {
		return nil, fmt.Errorf("report %s: missing Target", b.Name)
	}
	r := &Report{
		Name:     b.Name,
		Target:   target.ParseSpec(tgt),
		Type:     b.GetString("Type", DefaultType),
		ReportOn: b.GetString("ReportOn", DefaultReportOn),
		Unit:     b.GetString("Unit", DefaultUnit),
		Format:   b.GetString("Format", DefaultFormat),
		Sections: b.GetString("Sections", DefaultSections),
	}
	if !knownTypes[r.Type] {
		return nil, fmt.Errorf("report %s: unknown type %q", r.Name, r.Type)
	}

	var err error
	if r.Dt, err = b.GetFloat("Dt", run.Dt); err != nil {
		return nil, fmt.Errorf("report %s: %w", r.Name, err)
	}
	if r.Dt < run.Dt {
		logrus.Warnf("Report %s: Dt %g below simulation Dt, clamping to %g", r.Name, r.Dt, run.Dt)
		r.Dt = run.Dt
	}
	if r.StartTime, err = b.GetFloat("StartTime", 0); err != nil {
		return nil, fmt.Errorf("report %s: %w", r.Name, err)
	}
	if r.EndTime, err = b.GetFloat("EndTime", run.Duration); err != nil {
		return nil, fmt.Errorf("report %s: %w", r.Name, err)
	}
	if r.EndTime > run.Duration {
		r.EndTime = run.Duration
	}
	if r.StartTime > r.EndTime {
		return nil, fmt.Errorf("report %s: StartTime %g beyond EndTime %g", r.Name, r.StartTime, r.EndTime)
	}

	compartments := CompartmentsAll
	if r.Sections == DefaultSections {
		compartments = CompartmentsCenter
	}
	r.Compartments = b.GetString("Compartments", compartments)

	r.FileName = b.GetString("FileName", r.Name)
	if r.Format == "SONATA" && filepath.Ext(r.FileName) == "" {
		r.FileName += ".h5"
	}
	return r, nil
}

// FromConfig resolves every Report block of a parsed config.
func FromConfig(f *blueconfig.File, run *blueconfig.Run) ([]*Report, error) {
	var out []*Report
	for _, b := range f.Blocks(blueconfig.KindReport) {
		r, err := FromBlock(b, run)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// OutputPath is the report file location under the run's output root.
func (r *Report) OutputPath(outputRoot string) string {
	return filepath.Join(outputRoot, r.FileName)
}
