package connection

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/neurosimlabs/neurodamus/target"
)

const managerTargets = `Target Cell Mosaic
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

func loadTargets(t *testing.T) *target.Manager {
	t.Helper()
	tm := target.NewManager()
	if err := tm.LoadReader(strings.NewReader(managerTargets)); err != nil {
		t.Fatal(err)
	}
	return tm
}

func newTestSynapseManager(t *testing.T) *SynapseRuleManager {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "edges.json"), []byte(sampleEdges), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := NewSynapseRuleManager(loadTargets(t), []uint64{1, 2}, 0.025, dir, "")
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func floatPtr(v float64) *float64 { return &v }

func TestEdgeToNodePopulations(t *testing.T) {
	cases := []struct {
		edgePop  string
		src, dst string
	}{
		{"", "", ""},
		{"All", "All", "All"},
		{"All__All", "All", "All"},
		{"proj__All__chemical", "proj", "All"},
	}
	for _, c := range cases {
		src, dst := edgeToNodePopulations(c.edgePop)
		if src != c.src || dst != c.dst {
			t.Errorf("edgeToNodePopulations(%q) = %q, %q; want %q, %q",
				c.edgePop, src, dst, c.src, c.dst)
		}
	}
}

func TestNodePopulationIDStable(t *testing.T) {
	id := nodePopulationID("proj")
	if id != nodePopulationID("proj") {
		t.Error("population id must be deterministic")
	}
	if id < 0 || id > 0xfff {
		t.Errorf("population id %d out of the 12-bit range", id)
	}
}

func TestConnectAllFromNoRules(t *testing.T) {
	m := newTestSynapseManager(t)
	if err := m.CreateConnections(nil, ""); err != nil {
		t.Fatal(err)
	}
	if m.ConnectionCount() != 3 {
		t.Fatalf("expected 3 connections, got %d", m.ConnectionCount())
	}

	pop := m.CurrentPopulation()
	conn := pop.GetConnection(3, 1)
	if conn == nil {
		t.Fatal("expected connection 3->1")
	}
	if conn.SynapseCount() != 2 {
		t.Errorf("expected 2 synapses on 3->1, got %d", conn.SynapseCount())
	}
	if pop.GetConnection(1, 2) == nil {
		t.Error("expected connection 1->2")
	}
}

func TestCreateConnectionsWeightZeroSkips(t *testing.T) {
	m := newTestSynapseManager(t)
	rules := []Rule{{Source: "Mosaic", Destination: "Mosaic", Weight: floatPtr(0)}}
	if err := m.CreateConnections(rules, ""); err != nil {
		t.Fatal(err)
	}
	if m.ConnectionCount() != 0 {
		t.Errorf("expected no connections, got %d", m.ConnectionCount())
	}
}

func TestCreateConnectionsByGroup(t *testing.T) {
	m := newTestSynapseManager(t)
	rules := []Rule{
		{Source: "Excitatory", Destination: "Mosaic", Weight: floatPtr(0.5)},
		{Source: "Inhibitory", Destination: "Mosaic", Weight: floatPtr(2.0)},
	}
	if err := m.CreateConnections(rules, ""); err != nil {
		t.Fatal(err)
	}
	// Excitatory sources are 1 and 2; Inhibitory are 3 and 4.
	pop := m.CurrentPopulation()
	if pop.GetConnection(2, 1) == nil || pop.GetConnection(1, 2) == nil || pop.GetConnection(3, 1) == nil {
		t.Fatal("expected all pathways instantiated")
	}

	if err := m.ConfigureConnections(rules); err != nil {
		t.Fatal(err)
	}
	if got := pop.GetConnection(2, 1).WeightFactor; got != 0.5 {
		t.Errorf("excitatory pathway weight: expected 0.5, got %g", got)
	}
	if got := pop.GetConnection(3, 1).WeightFactor; got != 2.0 {
		t.Errorf("inhibitory pathway weight: expected 2.0, got %g", got)
	}
}

func TestConfigureConnectionsDelayed(t *testing.T) {
	m := newTestSynapseManager(t)
	if err := m.CreateConnections(nil, ""); err != nil {
		t.Fatal(err)
	}
	rules := []Rule{{
		Source: "Mosaic", Destination: "Mosaic",
		Delay: floatPtr(10.0), Weight: floatPtr(0),
	}}
	if err := m.ConfigureConnections(rules); err != nil {
		t.Fatal(err)
	}
	conn := m.CurrentPopulation().GetConnection(3, 1)
	dws := conn.DelayedWeights()
	if len(dws) != 1 || dws[0].Delay != 10.0 || dws[0].Weight != 0 {
		t.Errorf("unexpected delayed weights: %v", dws)
	}

	missing := []Rule{{Source: "Mosaic", Destination: "Mosaic", Delay: floatPtr(5.0)}}
	if err := m.ConfigureConnections(missing); err == nil {
		t.Error("expected error for delayed rule without Weight")
	}
}

func TestReplay(t *testing.T) {
	m := newTestSynapseManager(t)
	if err := m.CreateConnections(nil, ""); err != nil {
		t.Fatal(err)
	}
	spikes := map[uint64][]float64{
		2: {5.0, 15.0},
		3: {1.0},
	}
	injected, err := m.Replay(spikes, "Mosaic", "Mosaic", 2.0)
	if err != nil {
		t.Fatal(err)
	}
	if injected != 2 {
		t.Errorf("expected 2 replayed events, got %d", injected)
	}
	conn := m.CurrentPopulation().GetConnection(2, 1)
	if got := conn.ReplaySpikes(); len(got) != 2 || got[0] != 5.0 {
		t.Errorf("unexpected replay events on 2->1: %v", got)
	}
}

func TestDisableReenable(t *testing.T) {
	m := newTestSynapseManager(t)
	if err := m.CreateConnections(nil, ""); err != nil {
		t.Fatal(err)
	}
	m.Disable(3, 1, false, nil, nil)
	if m.CurrentPopulation().GetConnection(3, 1).Enabled() {
		t.Fatal("expected connection disabled")
	}
	if got := len(m.GetDisabled(nil)); got != 1 {
		t.Fatalf("expected 1 disabled connection, got %d", got)
	}
	m.Reenable(3, 1, nil, nil)
	if !m.CurrentPopulation().GetConnection(3, 1).Enabled() {
		t.Error("expected connection re-enabled")
	}
	if got := len(m.GetDisabled(nil)); got != 0 {
		t.Errorf("expected no disabled connections, got %d", got)
	}
}

func TestFinalizeSynapses(t *testing.T) {
	m := newTestSynapseManager(t)
	if err := m.CreateConnections(nil, ""); err != nil {
		t.Fatal(err)
	}
	m.Disable(1, 2, false, nil, nil)
	if created := m.FinalizeSynapses(0, false); created != 2 {
		t.Errorf("expected 2 instantiated connections, got %d", created)
	}
}

func TestOpenEdgesClosesPreviousReader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "edges.json")
	if err := os.WriteFile(path, []byte(sampleEdges), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := NewSynapseRuleManager(loadTargets(t), []uint64{1, 2}, 0.025, dir, "")
	if err != nil {
		t.Fatal(err)
	}
	prev, ok := m.reader.(*DocumentReader)
	if !ok {
		t.Fatalf("expected a document reader, got %T", m.reader)
	}

	zero := 0
	if err := m.OpenEdges(path, &zero); err != nil {
		t.Fatal(err)
	}
	if prev.bySGID != nil {
		t.Error("expected the replaced reader to be closed")
	}
}

func TestFinalizeClosesReader(t *testing.T) {
	m := newTestSynapseManager(t)
	if err := m.CreateConnections(nil, ""); err != nil {
		t.Fatal(err)
	}
	r := m.reader.(*DocumentReader)
	m.FinalizeSynapses(0, false)
	if m.reader != nil {
		t.Error("expected finalize to release the reader")
	}
	if r.bySGID != nil {
		t.Error("expected the released reader to be closed")
	}
}

const sampleGapJunctions = `{
  "populations": {
    "All__All": {
      "source": "All",
      "target": "All",
      "type": "electrical",
      "connections": {
        "1": [
          {"sgid": 2, "weight": 0.2},
          {"sgid": 9, "weight": 0.2}
        ],
        "2": [
          {"sgid": 1, "weight": 0.2}
        ]
      }
    }
  }
}`

func TestGapJunctionManager(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "gj.json"), []byte(sampleGapJunctions), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "gjinfo.txt"), []byte("1 2\n2 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := NewGapJunctionManager(loadTargets(t), []uint64{1, 2}, 0.025, dir, ""); err == nil {
		t.Fatal("expected error without a circuit target")
	}

	m, err := NewGapJunctionManager(loadTargets(t), []uint64{1, 2}, 0.025, dir, "Excitatory")
	if err != nil {
		t.Fatal(err)
	}
	if err := m.CreateGapJunctions(); err != nil {
		t.Fatal(err)
	}
	pop := m.CurrentPopulation()
	// sgid 9 lies outside the circuit target and is skipped.
	if pop.GetConnection(9, 1) != nil {
		t.Error("expected junction from gid 9 to be filtered out")
	}
	if pop.GetConnection(2, 1) == nil || pop.GetConnection(1, 2) == nil {
		t.Fatal("expected junctions between gids 1 and 2")
	}

	if off := m.Offset(1); off != 0 {
		t.Errorf("expected offset 0 for gid 1, got %d", off)
	}
	if off := m.Offset(2); off != 4 {
		t.Errorf("expected offset 4 for gid 2, got %d", off)
	}
	if off := m.Offset(99); off != -1 {
		t.Errorf("expected -1 for unknown gid, got %d", off)
	}

	m.UpdateConductance(0.75)
	if got := pop.GetConnection(2, 1).Synapses()[0].Weight; got != 0.75 {
		t.Errorf("expected conductance 0.75, got %g", got)
	}
	if created := m.FinalizeGapJunctions(); created != 2 {
		t.Errorf("expected 2 junctions instantiated, got %d", created)
	}
}
