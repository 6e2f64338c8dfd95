package connection

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestQuantizeDelay(t *testing.T) {
	cases := []struct {
		delay, dt, want float64
	}{
		{1.0, 0.025, 1.0},
		{1.049999999, 0.025, 1.05},
		{1.06, 0.025, 1.05},
		{0.1, 0, 0.1},
	}
	for _, c := range cases {
		got := QuantizeDelay(c.delay, c.dt)
		if math.Abs(got-c.want) > 1e-9 {
			t.Errorf("QuantizeDelay(%g, %g) = %g, want %g", c.delay, c.dt, got, c.want)
		}
	}
}

func TestSynapseModeFromString(t *testing.T) {
	if mode, err := SynapseModeFromString(""); err != nil || mode != DualSyns {
		t.Errorf("empty mode: got %v, %v", mode, err)
	}
	if mode, err := SynapseModeFromString("AmpaOnly"); err != nil || mode != AmpaOnly {
		t.Errorf("AmpaOnly: got %v, %v", mode, err)
	}
	if _, err := SynapseModeFromString("Bogus"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestSetOrdering(t *testing.T) {
	s := NewSet(PopulationID{})
	for _, sgid := range []uint64{5, 2, 9, 1} {
		s.StoreConnection(NewConnection(sgid, 10, s.ID))
	}
	conns := s.Connections(10)
	want := []uint64{1, 2, 5, 9}
	if len(conns) != len(want) {
		t.Fatalf("expected %d connections, got %d", len(want), len(conns))
	}
	for i, sgid := range want {
		if conns[i].SGID != sgid {
			t.Errorf("position %d: expected sgid %d, got %d", i, sgid, conns[i].SGID)
		}
	}

	// Storing an existing pathway is ignored.
	s.StoreConnection(NewConnection(5, 10, s.ID))
	if s.Count() != 4 {
		t.Errorf("expected count 4 after duplicate store, got %d", s.Count())
	}
}

func TestGetOrCreateConnection(t *testing.T) {
	s := NewSet(PopulationID{})
	c1 := s.GetOrCreateConnection(3, 7)
	c2 := s.GetOrCreateConnection(3, 7)
	if c1 != c2 {
		t.Error("expected the same connection for the same gid pair")
	}
	s.GetOrCreateConnection(8, 7)
	s.GetOrCreateConnection(1, 7)
	conns := s.Connections(7)
	for i := 1; i < len(conns); i++ {
		if conns[i-1].SGID >= conns[i].SGID {
			t.Fatalf("connections out of order: %d before %d", conns[i-1].SGID, conns[i].SGID)
		}
	}
	if s.Count() != 3 {
		t.Errorf("expected count 3, got %d", s.Count())
	}
}

func TestSetGetConnectionsFilters(t *testing.T) {
	s := NewSet(PopulationID{})
	s.GetOrCreateConnection(1, 10)
	s.GetOrCreateConnection(2, 10)
	s.GetOrCreateConnection(1, 20)

	if got := len(s.GetConnections(nil, nil)); got != 3 {
		t.Errorf("all: expected 3, got %d", got)
	}
	if got := len(s.GetConnections([]uint64{10}, nil)); got != 2 {
		t.Errorf("post=10: expected 2, got %d", got)
	}
	if got := len(s.GetConnections(nil, []uint64{1})); got != 2 {
		t.Errorf("pre=1: expected 2, got %d", got)
	}
	if got := len(s.GetConnections([]uint64{20}, []uint64{1})); got != 1 {
		t.Errorf("post=20 pre=1: expected 1, got %d", got)
	}
}

func TestDelayedWeightsOrdered(t *testing.T) {
	c := NewConnection(1, 2, PopulationID{})
	c.AddDelayedWeight(5.0, 0.5)
	c.AddDelayedWeight(1.0, 0.0)
	c.AddDelayedWeight(3.0, 1.0)
	dws := c.DelayedWeights()
	if len(dws) != 3 {
		t.Fatalf("expected 3 delayed weights, got %d", len(dws))
	}
	for i := 1; i < len(dws); i++ {
		if dws[i-1].Delay > dws[i].Delay {
			t.Fatalf("delayed weights out of order: %g before %g", dws[i-1].Delay, dws[i].Delay)
		}
	}
}

func TestConnectionReplay(t *testing.T) {
	c := NewConnection(1, 2, PopulationID{})
	n := c.Replay([]float64{12.5, 3.0, 25.0}, 10.0)
	if n != 2 {
		t.Fatalf("expected 2 events after startDelay, got %d", n)
	}
	spikes := c.ReplaySpikes()
	if spikes[0] != 12.5 || spikes[1] != 25.0 {
		t.Errorf("unexpected replay spikes: %v", spikes)
	}
}

func TestConnectionDisable(t *testing.T) {
	c := NewConnection(1, 2, PopulationID{})
	c.AddSynapse(SynapseParameters{SGID: 1, Weight: 2.5}, 0)
	c.Disable(true)
	if c.Enabled() {
		t.Error("expected connection disabled")
	}
	if c.Finalize(0, false) {
		t.Error("disabled connection must not finalize")
	}
	if c.Synapses()[0].Weight != 0 {
		t.Error("expected conductance zeroed")
	}
	c.Enable()
	if !c.Finalize(0, false) {
		t.Error("re-enabled connection must finalize")
	}
}

const sampleEdges = `{
  "populations": {
    "All__All": {
      "source": "All",
      "target": "All",
      "type": "chemical",
      "properties": ["synapse_index"],
      "connections": {
        "1": [
          {"sgid": 3, "delay": 1.051, "weight": 1.0, "u": 0.5, "syn_type": 113},
          {"sgid": 2, "delay": 0.5, "weight": 2.0, "u": 0.5, "syn_type": 5},
          {"sgid": 3, "delay": 2.0, "weight": 0.7, "u": 0.4, "syn_type": 113}
        ],
        "2": [
          {"sgid": 1, "delay": 1.0, "weight": 0.3, "u": 0.5, "syn_type": 113}
        ]
      }
    }
  }
}`

func writeEdges(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOpenEdgesFile(t *testing.T) {
	path := writeEdges(t, "edges.json", sampleEdges)
	r, err := OpenEdgesFile(path, "", 0.025)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if r.PopulationName() != "All__All" {
		t.Errorf("expected population All__All, got %s", r.PopulationName())
	}
	if !r.HasProperty("synapse_index") {
		t.Error("expected synapse_index property")
	}
	if r.SourcePopulation() != "All" || r.TargetPopulation() != "All" {
		t.Errorf("unexpected node populations: %s, %s", r.SourcePopulation(), r.TargetPopulation())
	}

	params, err := r.SynapseParameters(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(params) != 3 {
		t.Fatalf("expected 3 records for gid 1, got %d", len(params))
	}
	// Records come back ordered by source gid, delays snapped to the grid.
	if params[0].SGID != 2 || params[1].SGID != 3 || params[2].SGID != 3 {
		t.Errorf("records not ordered by sgid: %+v", params)
	}
	if math.Abs(params[1].Delay-1.05) > 1e-9 {
		t.Errorf("expected delay quantized to 1.05, got %g", params[1].Delay)
	}

	empty, err := r.SynapseParameters(99)
	if err != nil || len(empty) != 0 {
		t.Errorf("expected no records for unknown gid, got %v, %v", empty, err)
	}
}

func TestOpenEdgesFileRejectsBinary(t *testing.T) {
	path := writeEdges(t, "edges.h5", "\x89HDF\r\n\x1a\n")
	_, err := OpenEdgesFile(path, "", 0)
	if _, ok := err.(*UnsupportedFormatError); !ok {
		t.Fatalf("expected UnsupportedFormatError, got %v", err)
	}
}

func TestFindCircuitFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "edges.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	path, err := FindCircuitFile(dir, SynapseFilenames)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "edges.json" {
		t.Errorf("expected edges.json, got %s", path)
	}

	if _, err := FindCircuitFile(t.TempDir(), SynapseFilenames); err == nil {
		t.Error("expected error for directory without edge files")
	}
}
