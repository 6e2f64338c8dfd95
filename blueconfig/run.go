package blueconfig

import "fmt"

// Run is the typed view of the single Run block: global simulation
// parameters, circuit location and the default output destination.
type Run struct {
	Name string

	CircuitPath    string
	NrnPath        string
	CellLibrary    string
	MorphologyPath string
	METypePath     string
	CurrentDir     string
	OutputRoot     string
	TargetFile     string
	CircuitTarget  string
	Simulator      string

	Duration    float64
	Start       float64
	Dt          float64
	ForwardSkip float64
	BaseSeed    int
	SecondOrder int

	Celsius              float64
	VInit                float64
	ExtracellularCalcium float64

	SpikeThreshold float64
	SpikeLocation  string

	// ModelBuildingSteps splits the circuit target into round-robin
	// subtargets built one cycle at a time (CoreNEURON data generation).
	ModelBuildingSteps int

	RNGMode     string
	SynapseMode string
}

// Defaults applied when the Run block leaves a field unset.
const (
	DefaultDt             = 0.025
	DefaultCelsius        = 34.0
	DefaultVInit          = -65.0
	DefaultSpikeThreshold = -30.0
	DefaultSpikeLocation  = "soma"
	DefaultOutputRoot     = "output"
)

// ParseRun extracts the Run block from a parsed file. Exactly one Run block
// must be present.
func (f *File) ParseRun() (*Run, error) {
	runs := f.Blocks(KindRun)
	if len(runs) == 0 {
		return nil, ErrNoRunBlock
	}
	if len(runs) > 1 {
		return nil, fmt.Errorf("blueconfig: %d Run blocks, want exactly one", len(runs))
	}
	b := runs[0]

	run := &Run{
		Name:           b.Name,
		CircuitPath:    b.GetString("CircuitPath", ""),
		NrnPath:        b.GetString("nrnPath", ""),
		CellLibrary:    b.GetString("CellLibraryFile", ""),
		MorphologyPath: b.GetString("MorphologyPath", ""),
		METypePath:     b.GetString("METypePath", ""),
		CurrentDir:     b.GetString("CurrentDir", ""),
		OutputRoot:     b.GetString("OutputRoot", DefaultOutputRoot),
		TargetFile:     b.GetString("TargetFile", ""),
		CircuitTarget:  b.GetString("CircuitTarget", ""),
		Simulator:      b.GetString("Simulator", "NEURON"),
		SpikeLocation:  b.GetString("SpikeLocation", DefaultSpikeLocation),
		RNGMode:        b.GetString("RNGMode", ""),
		SynapseMode:    b.GetString("SynapseMode", ""),
	}

	var err error
	if run.Duration, err = b.GetFloat("Duration", 0); err != nil {
		return nil, err
	}
	if run.Start, err = b.GetFloat("Start", 0); err != nil {
		return nil, err
	}
	if run.Dt, err = b.GetFloat("Dt", DefaultDt); err != nil {
		return nil, err
	}
	if run.ForwardSkip, err = b.GetFloat("ForwardSkip", 0); err != nil {
		return nil, err
	}
	if run.BaseSeed, err = b.GetInt("BaseSeed", 0); err != nil {
		return nil, err
	}
	if run.SecondOrder, err = b.GetInt("SecondOrder", 0); err != nil {
		return nil, err
	}
	if run.Celsius, err = b.GetFloat("Celsius", DefaultCelsius); err != nil {
		return nil, err
	}
	if run.VInit, err = b.GetFloat("V_Init", DefaultVInit); err != nil {
		return nil, err
	}
	if run.ExtracellularCalcium, err = b.GetFloat("ExtracellularCalcium", 0); err != nil {
		return nil, err
	}
	if run.SpikeThreshold, err = b.GetFloat("SpikeThreshold", DefaultSpikeThreshold); err != nil {
		return nil, err
	}
	if run.ModelBuildingSteps, err = b.GetInt("ModelBuildingSteps", 1); err != nil {
		return nil, err
	}
	return run, nil
}
