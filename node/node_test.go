package node

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

const testTargets = `Target Cell Mosaic
{
    a1 a2 a3 a4
}

Target Cell Excitatory
{
    a1 a2
}

Target Cell Inhibitory
{
    a3 a4
}
`

const testEdges = `{
  "populations": {
    "All__All": {
      "source": "All",
      "target": "All",
      "type": "chemical",
      "connections": {
        "1": [
          {"sgid": 2, "delay": 1.0, "weight": 1.0, "u": 0.5, "syn_type": 113},
          {"sgid": 3, "delay": 1.0, "weight": 0.7, "u": 0.4, "syn_type": 113}
        ],
        "2": [
          {"sgid": 1, "delay": 1.0, "weight": 0.3, "u": 0.5, "syn_type": 113}
        ]
      }
    }
  }
}`

const testSpikes = `/scatter
5 2
1 3
`

func writeFixture(t *testing.T) (configPath, dir string) {
	t.Helper()
	dir = t.TempDir()
	files := map[string]string{
		"start.target": testTargets,
		"edges.json":   testEdges,
		"input.dat":    testSpikes,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	config := fmt.Sprintf(`Run Default
{
    CircuitPath %[1]s
    nrnPath %[1]s
    CircuitTarget Mosaic
    Duration 100
    Dt 0.025
    BaseSeed 10
    OutputRoot %[1]s/output
}

Stimulus spikeReplay
{
    Mode Current
    Pattern SynapseReplay
    SpikeFile %[1]s/input.dat
    Delay 0
    Duration 100
}

StimulusInject replayInject
{
    Stimulus spikeReplay
    Target Mosaic
}

Connection ee
{
    Source Excitatory
    Destination Mosaic
    Weight 0.5
}

Report soma
{
    Target Mosaic
    ReportOn v
    Dt 0.1
}

Modification applyTTX
{
    Type TTX
    Target Inhibitory
}
`, dir)

	configPath = filepath.Join(dir, "BlueConfig")
	if err := os.WriteFile(configPath, []byte(config), 0o644); err != nil {
		t.Fatal(err)
	}
	return configPath, dir
}

func setupNode(t *testing.T, ranks int) *Node {
	t.Helper()
	configPath, _ := writeFixture(t)
	cfg, err := LoadConfig(configPath, "auto")
	if err != nil {
		t.Fatal(err)
	}
	n, err := New(cfg, ranks)
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func TestSplitRoundRobin(t *testing.T) {
	parts := SplitRoundRobin([]uint64{1, 2, 3, 4, 5}, 2)
	if !reflect.DeepEqual(parts[0], []uint64{1, 3, 5}) {
		t.Errorf("unexpected rank 0: %v", parts[0])
	}
	if !reflect.DeepEqual(parts[1], []uint64{2, 4}) {
		t.Errorf("unexpected rank 1: %v", parts[1])
	}
}

func TestSetupFullPlan(t *testing.T) {
	n := setupNode(t, 2)
	plan, err := n.Setup()
	if err != nil {
		t.Fatal(err)
	}

	if plan.CellCount != 4 {
		t.Errorf("expected 4 cells, got %d", plan.CellCount)
	}
	if len(plan.Ranks) != 2 {
		t.Fatalf("expected 2 ranks, got %d", len(plan.Ranks))
	}
	if !reflect.DeepEqual(plan.Ranks[0].GIDs, []uint64{1, 3}) {
		t.Errorf("unexpected rank 0 gids: %v", plan.Ranks[0].GIDs)
	}

	// Connection block ee restricts creation to the Excitatory sources.
	if plan.Connectivity.Connections != 2 {
		t.Errorf("expected 2 connections, got %d", plan.Connectivity.Connections)
	}
	if plan.Connectivity.Synapses != 2 {
		t.Errorf("expected 2 synapses, got %d", plan.Connectivity.Synapses)
	}
	// Only gid 2 of the spike file has an instantiated pathway.
	if plan.Connectivity.ReplayEvents != 1 {
		t.Errorf("expected 1 replay event, got %d", plan.Connectivity.ReplayEvents)
	}

	if len(plan.Stimuli) != 1 || plan.Stimuli[0].Pattern != "SynapseReplay" {
		t.Errorf("unexpected stimuli: %+v", plan.Stimuli)
	}
	if len(plan.Reports) != 1 || plan.Reports[0].Dt != 0.1 {
		t.Errorf("unexpected reports: %+v", plan.Reports)
	}
	if len(plan.Modifications) != 1 || plan.Modifications[0].Type != "TTX" {
		t.Errorf("unexpected modifications: %+v", plan.Modifications)
	}
	if plan.Run.Duration != 100 || plan.Run.BaseSeed != 10 {
		t.Errorf("unexpected run info: %+v", plan.Run)
	}
}

func TestWriteSpikes(t *testing.T) {
	n := setupNode(t, 1)
	if _, err := n.Setup(); err != nil {
		t.Fatal(err)
	}
	path, err := n.WriteSpikes()
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "/scatter\n1\t3\n5\t2\n"
	if string(data) != want {
		t.Errorf("unexpected spike file:\n%s", string(data))
	}
}

func TestPhaseOrderEnforced(t *testing.T) {
	n := setupNode(t, 1)
	if err := n.CreateCells(); err == nil {
		t.Fatal("expected error creating cells before targets")
	}
	if err := n.LoadTargets(); err != nil {
		t.Fatal(err)
	}
	if err := n.CreateSynapses(); err == nil {
		t.Fatal("expected error creating synapses before load balance")
	}
	if _, err := n.WriteSpikes(); err == nil {
		t.Fatal("expected error writing spikes before plan")
	}
}

func TestLoadConfigSonataAuto(t *testing.T) {
	dir := t.TempDir()
	circuit := `{"networks": {"nodes": [{"nodes_file": "nodes.h5",
		"populations": {"All": {"type": "biophysical"}}}], "edges": []}}`
	sim := `{"run": {"tstop": 10, "dt": 0.025}, "network": "circuit_config.json"}`
	if err := os.WriteFile(filepath.Join(dir, "circuit_config.json"), []byte(circuit), 0o644); err != nil {
		t.Fatal(err)
	}
	simPath := filepath.Join(dir, "simulation_config.json")
	if err := os.WriteFile(simPath, []byte(sim), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(simPath, "auto")
	if err != nil {
		t.Fatal(err)
	}
	run, err := cfg.ParseRun()
	if err != nil {
		t.Fatal(err)
	}
	if run.Duration != 10 {
		t.Errorf("expected duration 10, got %g", run.Duration)
	}
}

func TestSetupSonataNodeSets(t *testing.T) {
	dir := t.TempDir()
	circuit := `{"networks": {"nodes": [{"nodes_file": "nodes.h5",
		"populations": {"All": {"type": "biophysical"}}}], "edges": []}}`
	nodeSets := `{"Column": {"population": "All", "node_id": [0, 1, 2]}}`
	sim := `{"run": {"tstop": 10, "dt": 0.025},
		"network": "circuit_config.json",
		"node_sets_file": "node_sets.json",
		"node_set": "Column"}`
	files := map[string]string{
		"circuit_config.json":    circuit,
		"node_sets.json":         nodeSets,
		"simulation_config.json": sim,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	cfg, err := LoadConfig(filepath.Join(dir, "simulation_config.json"), "auto")
	if err != nil {
		t.Fatal(err)
	}
	n, err := New(cfg, 1)
	if err != nil {
		t.Fatal(err)
	}
	plan, err := n.Setup()
	if err != nil {
		t.Fatal(err)
	}
	if plan.CellCount != 3 {
		t.Errorf("expected 3 cells from the node set, got %d", plan.CellCount)
	}
	if !reflect.DeepEqual(plan.Ranks[0].GIDs, []uint64{1, 2, 3}) {
		t.Errorf("unexpected gids: %v", plan.Ranks[0].GIDs)
	}
	if plan.Run.CircuitTarget != "Column" {
		t.Errorf("unexpected circuit target %q", plan.Run.CircuitTarget)
	}
}

func TestLoadConfigUnknownFormat(t *testing.T) {
	if _, err := LoadConfig("whatever", "toml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}
