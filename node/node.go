// Package node orchestrates the simulation setup phases: targets, load
// balance, cells, connectome, stimuli, modifications and reports, ending in
// a resolved plan an external simulator launcher consumes.
package node

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/neurosimlabs/neurodamus/blueconfig"
	"github.com/neurosimlabs/neurodamus/connection"
	"github.com/neurosimlabs/neurodamus/model"
	"github.com/neurosimlabs/neurodamus/report"
	"github.com/neurosimlabs/neurodamus/sonata"
	"github.com/neurosimlabs/neurodamus/stimulus"
	"github.com/neurosimlabs/neurodamus/target"
)

// phase tracks setup progress; each step requires its predecessor.
type phase int

const (
	phaseInit phase = iota
	phaseTargets
	phaseLoadBalance
	phaseCells
	phaseSynapses
	phaseGapJunctions
	phaseStimulus
	phaseModifications
	phaseReports
	phasePlan
	phaseDone
)

var phaseNames = map[phase]string{
	phaseInit:          "Init",
	phaseTargets:       "LoadTargets",
	phaseLoadBalance:   "ComputeLoadBalance",
	phaseCells:         "CreateCells",
	phaseSynapses:      "CreateSynapses",
	phaseGapJunctions:  "CreateGapJunctions",
	phaseStimulus:      "EnableStimulus",
	phaseModifications: "EnableModifications",
	phaseReports:       "EnableReports",
	phasePlan:          "BuildPlan",
	phaseDone:          "Done",
}

// Node drives the setup of one simulation from a parsed config.
type Node struct {
	config  *blueconfig.File
	run     *blueconfig.Run
	baseDir string
	ranks   int
	phase   phase

	targets      *target.Manager
	cells        *CellDistributor
	synapses     *connection.SynapseRuleManager
	gapJunctions *connection.GapJunctionManager
	stimuli      *stimulus.Manager
	reports      []*report.Report

	modifications []model.ModificationInfo
	replaySpikes  stimulus.SpikeMap
	replayEvents  int
	plan          *model.Plan
}

// LoadConfig parses a simulation config. format selects the parser:
// "blueconfig", "sonata", or "auto" (by file extension; .json/.yaml/.yml
// are SONATA).
func LoadConfig(path, format string) (*blueconfig.File, error) {
	if format == "" || format == "auto" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".json", ".yaml", ".yml":
			format = "sonata"
		default:
			format = "blueconfig"
		}
	}
	switch format {
	case "sonata":
		cfg, err := sonata.LoadSimConfig(path)
		if err != nil {
			return nil, err
		}
		return sonata.Translate(cfg)
	case "blueconfig":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("node: open config: %w", err)
		}
		defer f.Close()
		return blueconfig.Parse(f)
	}
	return nil, fmt.Errorf("node: unknown config format %q", format)
}

// New creates a Node over a parsed and validated config. ranks is the
// number of partitions cells are distributed over.
func New(cfg *blueconfig.File, ranks int) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	run, err := cfg.ParseRun()
	if err != nil {
		return nil, err
	}
	if ranks < 1 {
		ranks = 1
	}
	logrus.Infof("Setting up simulation %s (duration %g ms, dt %g)", run.Name, run.Duration, run.Dt)
	return &Node{
		config:       cfg,
		run:          run,
		baseDir:      run.CurrentDir,
		ranks:        ranks,
		targets:      target.NewManager(),
		replaySpikes: make(stimulus.SpikeMap),
	}, nil
}

// Run summarises the parsed Run block.
func (n *Node) Run() *blueconfig.Run {
	return n.run
}

// SetBaseDir anchors config-relative paths (target files, spike files,
// edge sources) when the Run block carries no CurrentDir.
func (n *Node) SetBaseDir(dir string) {
	if n.baseDir == "" {
		n.baseDir = dir
	}
}

// Targets is the loaded target registry.
func (n *Node) Targets() *target.Manager {
	return n.targets
}

func (n *Node) enter(next phase) error {
	if n.phase != next-1 {
		return fmt.Errorf("node: phase %s requires %s to have completed (currently after %s)",
			phaseNames[next], phaseNames[next-1], phaseNames[n.phase])
	}
	logrus.Infof("Phase: %s", phaseNames[next])
	n.phase = next
	return nil
}

// resolvePath anchors a config-relative path on the config's directory.
func (n *Node) resolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) || n.baseDir == "" {
		return path
	}
	return filepath.Join(n.baseDir, path)
}

// LoadTargets loads the circuit's start.target and the user target file.
func (n *Node) LoadTargets() error {
	if err := n.enter(phaseTargets); err != nil {
		return err
	}
	circuitPath := n.run.CircuitPath
	if circuitPath == "<NONE>" {
		circuitPath = ""
	}
	if err := n.targets.LoadTargets(circuitPath, n.resolvePath(n.run.TargetFile)); err != nil {
		return fmt.Errorf("node: loading targets: %w", err)
	}
	if err := n.targets.VerifyReferences(); err != nil {
		return fmt.Errorf("node: loading targets: %w", err)
	}
	return nil
}

// ComputeLoadBalance distributes the circuit target's cells across ranks.
func (n *Node) ComputeLoadBalance() error {
	if err := n.enter(phaseLoadBalance); err != nil {
		return err
	}
	gids, err := n.circuitGIDs()
	if err != nil {
		return fmt.Errorf("node: load balance: %w", err)
	}
	n.cells = NewCellDistributor(gids, n.ranks)
	logrus.Infof("Distributed %d cells over %d ranks", n.cells.TotalCells(), n.cells.RankCount())
	return nil
}

func (n *Node) circuitGIDs() ([]uint64, error) {
	spec := target.ParseSpec(n.run.CircuitTarget)
	name := spec.Name
	if name == "" {
		logrus.Warn("No circuit target was set. Assuming Mosaic")
		name = target.Mosaic
	}
	t, err := n.targets.GetTarget(name)
	if err != nil {
		return nil, err
	}
	return t.CompleteGIDs(), nil
}

// CreateCells registers the cell population and, when model building is
// stepped, its round-robin subtargets.
func (n *Node) CreateCells() error {
	if err := n.enter(phaseCells); err != nil {
		return err
	}
	logrus.Infof("Creating %d cells", n.cells.TotalCells())
	if steps := n.run.ModelBuildingSteps; steps > 1 {
		spec := target.ParseSpec(n.run.CircuitTarget)
		name := spec.Name
		if name == "" {
			name = target.Mosaic
		}
		parts, err := n.targets.GenerateSubtargets(name, steps)
		if err != nil {
			return fmt.Errorf("node: creating cells: %w", err)
		}
		logrus.Infof("Model building in %d steps (%d subtargets)", steps, len(parts))
	}
	return nil
}

// CreateSynapses opens the base connectivity and projections and applies
// the Connection rules.
func (n *Node) CreateSynapses() error {
	if err := n.enter(phaseSynapses); err != nil {
		return err
	}
	nrnPath := n.baseConnectivity()
	if nrnPath == "" {
		logrus.Warn("No connectivity source configured. Skipping synapse creation")
		return nil
	}
	rules, err := connectionRules(n.config)
	if err != nil {
		return err
	}

	mgr, err := connection.NewSynapseRuleManager(
		n.targets, n.cells.AllGIDs(), n.run.Dt, n.resolvePath(nrnPath), n.run.SynapseMode)
	if err != nil {
		return fmt.Errorf("node: creating synapses: %w", err)
	}
	n.synapses = mgr
	if err := mgr.CreateConnections(rules, ""); err != nil {
		return fmt.Errorf("node: creating synapses: %w", err)
	}

	// Projections bring in extra edge populations on top of the base
	// connectivity.
	for _, b := range n.config.Blocks(blueconfig.KindProjection) {
		if b.GetString("Type", "Synaptic") != "Synaptic" {
			continue
		}
		path, ok := b.Get("Path")
		if !ok {
			return fmt.Errorf("node: projection %s: missing Path", b.Name)
		}
		if err := mgr.OpenEdges(n.resolvePath(path), nil); err != nil {
			return fmt.Errorf("node: projection %s: %w", b.Name, err)
		}
		srcTarget := target.ParseSpec(b.GetString("Source", "")).Name
		if err := mgr.CreateConnections(rules, srcTarget); err != nil {
			return fmt.Errorf("node: projection %s: %w", b.Name, err)
		}
	}

	if err := mgr.ConfigureConnections(rules); err != nil {
		return fmt.Errorf("node: configuring connections: %w", err)
	}
	return nil
}

// baseConnectivity picks the base circuit edge source: the Run block's
// nrnPath, or the first Circuit block carrying one.
func (n *Node) baseConnectivity() string {
	if n.run.NrnPath != "" {
		return n.run.NrnPath
	}
	for _, b := range n.config.Blocks(blueconfig.KindCircuit) {
		if path, ok := b.Get("nrnPath"); ok {
			return path
		}
	}
	return ""
}

// CreateGapJunctions loads electrical coupling from GapJunction projections.
func (n *Node) CreateGapJunctions() error {
	if err := n.enter(phaseGapJunctions); err != nil {
		return err
	}
	for _, b := range n.config.Blocks(blueconfig.KindProjection) {
		if b.GetString("Type", "") != "GapJunction" {
			continue
		}
		path, ok := b.Get("Path")
		if !ok {
			return fmt.Errorf("node: projection %s: missing Path", b.Name)
		}
		mgr, err := connection.NewGapJunctionManager(
			n.targets, n.cells.AllGIDs(), n.run.Dt, n.resolvePath(path), n.run.CircuitTarget)
		if err != nil {
			return fmt.Errorf("node: gap junctions %s: %w", b.Name, err)
		}
		if err := mgr.CreateGapJunctions(); err != nil {
			return fmt.Errorf("node: gap junctions %s: %w", b.Name, err)
		}
		n.gapJunctions = mgr
	}
	if n.gapJunctions == nil {
		logrus.Debug("No gap junction projections configured")
	}
	return nil
}

// EnableStimulus resolves stimulus injections and attaches replay spikes.
func (n *Node) EnableStimulus() error {
	if err := n.enter(phaseStimulus); err != nil {
		return err
	}
	stims, err := stimulus.NewManager(n.config)
	if err != nil {
		return fmt.Errorf("node: enabling stimulus: %w", err)
	}
	n.stimuli = stims

	for _, inj := range stims.ReplayInjects() {
		spikes, err := stimulus.ReadSpikeFile(n.resolvePath(inj.Stimulus.SpikeFile))
		if err != nil {
			return fmt.Errorf("node: replay %s: %w", inj.Name, err)
		}
		n.replaySpikes.Merge(spikes)
		if n.synapses == nil {
			logrus.Warnf("Replay %s ignored: no connectivity was loaded", inj.Name)
			continue
		}
		injected, err := n.synapses.Replay(
			spikes, inj.Source.String(), inj.Target.String(), inj.Stimulus.Delay)
		if err != nil {
			return fmt.Errorf("node: replay %s: %w", inj.Name, err)
		}
		n.replayEvents += injected
	}
	return nil
}

// Modification types the simulator understands.
var knownModifications = map[string]bool{
	"TTX":                  true,
	"ConfigureAllSections": true,
}

// EnableModifications validates and records Modification blocks.
func (n *Node) EnableModifications() error {
	if err := n.enter(phaseModifications); err != nil {
		return err
	}
	for _, b := range n.config.Blocks(blueconfig.KindModification) {
		modType := b.GetString("Type", "")
		if !knownModifications[modType] {
			return fmt.Errorf("node: modification %s: unknown type %q", b.Name, modType)
		}
		tgt, ok := b.Get("Target")
		if !ok {
			return fmt.Errorf("node: modification %s: missing Target", b.Name)
		}
		logrus.Infof("Modification %s: %s on %s", b.Name, modType, tgt)
		n.modifications = append(n.modifications, model.ModificationInfo{
			Name: b.Name, Target: tgt, Type: modType,
		})
	}
	return nil
}

// EnableReports resolves the Report blocks against the run parameters.
func (n *Node) EnableReports() error {
	if err := n.enter(phaseReports); err != nil {
		return err
	}
	reports, err := report.FromConfig(n.config, n.run)
	if err != nil {
		return fmt.Errorf("node: enabling reports: %w", err)
	}
	n.reports = reports
	logrus.Infof("Enabled %d reports", len(reports))
	return nil
}

// BuildPlan finalizes the connectome and assembles the resolved plan.
func (n *Node) BuildPlan() (*model.Plan, error) {
	if err := n.enter(phasePlan); err != nil {
		return nil, err
	}

	conn := model.ConnectivityInfo{ReplayEvents: n.replayEvents}
	if n.synapses != nil {
		conn.Connections = n.synapses.FinalizeSynapses(n.run.BaseSeed, n.run.Simulator == "CORENEURON")
		for _, c := range n.synapses.AllConnections() {
			conn.Synapses += c.SynapseCount()
		}
	}
	if n.gapJunctions != nil {
		conn.GapJunctions = n.gapJunctions.FinalizeGapJunctions()
	}

	plan := &model.Plan{
		Run: model.RunInfo{
			CircuitPath:    n.run.CircuitPath,
			CircuitTarget:  n.run.CircuitTarget,
			OutputRoot:     n.run.OutputRoot,
			Simulator:      n.run.Simulator,
			Duration:       n.run.Duration,
			Dt:             n.run.Dt,
			ForwardSkip:    n.run.ForwardSkip,
			BaseSeed:       n.run.BaseSeed,
			Celsius:        n.run.Celsius,
			VInit:          n.run.VInit,
			SpikeThreshold: n.run.SpikeThreshold,
			SpikeLocation:  n.run.SpikeLocation,
		},
		CellCount:     n.cells.TotalCells(),
		Connectivity:  conn,
		Modifications: n.modifications,
	}
	for rank := 0; rank < n.cells.RankCount(); rank++ {
		gids := n.cells.RankGIDs(rank)
		plan.Ranks = append(plan.Ranks, model.RankPartition{
			Rank: rank, CellCount: len(gids), GIDs: gids,
		})
	}
	for _, inj := range n.stimuli.Injects() {
		plan.Stimuli = append(plan.Stimuli, model.StimulusInfo{
			Name:     inj.Name,
			Pattern:  inj.Stimulus.Pattern,
			Mode:     string(inj.Stimulus.Mode),
			Target:   inj.Target.String(),
			Delay:    inj.Stimulus.Delay,
			Duration: inj.Stimulus.Duration,
		})
	}
	for _, r := range n.reports {
		plan.Reports = append(plan.Reports, model.ReportInfo{
			Name:      r.Name,
			Target:    r.Target.String(),
			Type:      r.Type,
			ReportOn:  r.ReportOn,
			Dt:        r.Dt,
			StartTime: r.StartTime,
			EndTime:   r.EndTime,
			File:      r.OutputPath(n.run.OutputRoot),
		})
	}
	n.plan = plan
	return plan, nil
}

// WriteSpikes writes the merged replay spike events under the output root
// in out.dat format. Returns the written path.
func (n *Node) WriteSpikes() (string, error) {
	if n.phase < phasePlan {
		return "", fmt.Errorf("node: WriteSpikes requires BuildPlan to have completed")
	}
	outputRoot := n.resolvePath(n.run.OutputRoot)
	if err := os.MkdirAll(outputRoot, 0o755); err != nil {
		return "", fmt.Errorf("node: creating output root: %w", err)
	}
	path := filepath.Join(outputRoot, "out.dat")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("node: writing spikes: %w", err)
	}
	defer f.Close()
	if err := n.replaySpikes.Write(f); err != nil {
		return "", fmt.Errorf("node: writing spikes: %w", err)
	}
	logrus.Infof("Wrote %d spike events to %s", n.replaySpikes.Count(), path)
	return path, nil
}

// Cleanup releases the managers. The node cannot be reused afterwards.
func (n *Node) Cleanup() {
	n.phase = phaseDone
	n.synapses = nil
	n.gapJunctions = nil
	n.stimuli = nil
	logrus.Debug("Node cleaned up")
}

// Setup runs every phase in order and returns the resolved plan.
func (n *Node) Setup() (*model.Plan, error) {
	steps := []func() error{
		n.LoadTargets,
		n.ComputeLoadBalance,
		n.CreateCells,
		n.CreateSynapses,
		n.CreateGapJunctions,
		n.EnableStimulus,
		n.EnableModifications,
		n.EnableReports,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return n.BuildPlan()
}
