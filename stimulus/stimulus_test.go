package stimulus

import (
	"bytes"
	"strings"
	"testing"

	"github.com/neurosimlabs/neurodamus/blueconfig"
)

const sampleStimuli = `Run Default
{
    Duration 100
    Dt 0.025
    CircuitPath /circuits/demo
}

Stimulus ThresholdExc
{
    Mode Current
    Pattern Noise
    MeanPercent 85.0
    Variance 0.001
    Delay 0.0
    Duration 100
}

Stimulus spikeReplay
{
    Mode Current
    Pattern SynapseReplay
    SpikeFile input.dat
    Delay 0
    Duration 100
}

Stimulus holding
{
    Mode Voltage
    Pattern SEClamp
    Delay 0
    Duration 100
}

StimulusInject ThresholdIntoExc
{
    Stimulus ThresholdExc
    Target Excitatory
}

StimulusInject ReplayIntoAll
{
    Stimulus spikeReplay
    Target Mosaic
    Source proj:Thalamus
}
`

func parseConfig(t *testing.T, text string) *blueconfig.File {
	t.Helper()
	f, err := blueconfig.Parse(strings.NewReader(text))
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestNewManager(t *testing.T) {
	m, err := NewManager(parseConfig(t, sampleStimuli))
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Stimuli()) != 3 {
		t.Fatalf("expected 3 stimuli, got %d", len(m.Stimuli()))
	}

	s, ok := m.Stimulus("ThresholdExc")
	if !ok {
		t.Fatal("expected stimulus ThresholdExc")
	}
	if s.Pattern != "Noise" || s.MeanPercent != 85.0 || s.Duration != 100 {
		t.Errorf("unexpected stimulus: %+v", s)
	}

	injects := m.Injects()
	if len(injects) != 2 {
		t.Fatalf("expected 2 injects, got %d", len(injects))
	}
	if injects[0].Target.Name != "Excitatory" {
		t.Errorf("unexpected inject target: %s", injects[0].Target)
	}

	replays := m.ReplayInjects()
	if len(replays) != 1 {
		t.Fatalf("expected 1 replay inject, got %d", len(replays))
	}
	if replays[0].Source.Population != "proj" || replays[0].Source.Name != "Thalamus" {
		t.Errorf("unexpected replay source: %s", replays[0].Source)
	}
	if replays[0].Stimulus.SpikeFile != "input.dat" {
		t.Errorf("unexpected spike file: %s", replays[0].Stimulus.SpikeFile)
	}
}

func TestStimulusValidation(t *testing.T) {
	cases := []struct {
		name   string
		fields map[string]string
	}{
		{"missing pattern", map[string]string{"Mode": "Current"}},
		{"unknown pattern", map[string]string{"Pattern": "Wavelet"}},
		{"unknown mode", map[string]string{"Pattern": "Linear", "Mode": "Magnetic"}},
		{"seclamp needs voltage", map[string]string{"Pattern": "SEClamp", "Mode": "Current"}},
		{"replay needs spike file", map[string]string{"Pattern": "SynapseReplay"}},
		{"bad numeric", map[string]string{"Pattern": "Linear", "Delay": "soon"}},
	}
	for _, c := range cases {
		b := blueconfig.NewBlock(blueconfig.KindStimulus, "bad")
		for k, v := range c.fields {
			b.Set(k, v)
		}
		if _, err := FromBlock(b); err == nil {
			t.Errorf("%s: expected error", c.name)
		}
	}
}

func TestInjectUnknownStimulus(t *testing.T) {
	text := `Run Default
{
    Duration 10
}

StimulusInject dangling
{
    Stimulus nope
    Target Mosaic
}
`
	if _, err := NewManager(parseConfig(t, text)); err == nil {
		t.Fatal("expected error for unknown stimulus reference")
	}
}

const sampleSpikes = `/scatter
1.5 3
0.5 1
2.5 3
10 2
`

func TestReadSpikes(t *testing.T) {
	spikes, err := ReadSpikes(strings.NewReader(sampleSpikes))
	if err != nil {
		t.Fatal(err)
	}
	if spikes.Count() != 4 {
		t.Fatalf("expected 4 events, got %d", spikes.Count())
	}
	if got := spikes[3]; len(got) != 2 || got[0] != 1.5 || got[1] != 2.5 {
		t.Errorf("unexpected train for gid 3: %v", got)
	}
	if got := spikes[1]; len(got) != 1 || got[0] != 0.5 {
		t.Errorf("unexpected train for gid 1: %v", got)
	}
}

func TestReadSpikesMalformed(t *testing.T) {
	if _, err := ReadSpikes(strings.NewReader("1.5 3 extra\n")); err == nil {
		t.Error("expected error for extra column")
	}
	if _, err := ReadSpikes(strings.NewReader("soon 3\n")); err == nil {
		t.Error("expected error for bad time")
	}
}

func TestSpikeMapMergeAndWrite(t *testing.T) {
	a := SpikeMap{1: {2.0}, 2: {5.0}}
	b := SpikeMap{1: {0.5}, 3: {1.0}}
	a.Merge(b)
	if a.Count() != 4 {
		t.Fatalf("expected 4 events after merge, got %d", a.Count())
	}
	if got := a[1]; got[0] != 0.5 || got[1] != 2.0 {
		t.Errorf("merged train not sorted: %v", got)
	}

	var buf bytes.Buffer
	if err := a.Write(&buf); err != nil {
		t.Fatal(err)
	}
	want := "/scatter\n0.5\t1\n1\t3\n2\t1\n5\t2\n"
	if buf.String() != want {
		t.Errorf("unexpected output:\n%s", buf.String())
	}

	back, err := ReadSpikes(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if back.Count() != 4 {
		t.Errorf("round trip lost events: %d", back.Count())
	}
}
