package sonata

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/neurosimlabs/neurodamus/blueconfig"
)

// Field name translations from SONATA sections to BlueConfig block fields.
// Keys not listed pass through unchanged (run) or get camel-cased
// (connection overrides, inputs).
var (
	runTranslation = map[string]string{
		"tstop":              "Duration",
		"tstart":             "Start",
		"dt":                 "Dt",
		"seed":               "BaseSeed",
		"spike_threshold":    "SpikeThreshold",
		"spike_location":     "SpikeLocation",
		"integration_method": "SecondOrder",
		"forward_skip":       "ForwardSkip",
	}
	connectionTranslation = map[string]string{
		"target": "Destination",
	}
	inputsTranslation = map[string]string{
		"module":      "Pattern",
		"input_type":  "Mode",
		"random_seed": "Seed",
		"node_set":    "Target",
		"source":      "Source",
		"type":        "Type",
	}
	reportsTranslation = map[string]string{
		"type":          "Type",
		"cells":         "Target",
		"variable_name": "ReportOn",
		"unit":          "Unit",
		"dt":            "Dt",
		"start_time":    "StartTime",
		"end_time":      "EndTime",
	}
	inputTypeTranslation = map[string]string{
		"spikes":                    "Current",
		"current_clamp":             "Current",
		"voltage_clamp":             "Voltage",
		"extracellular_stimulation": "Extracellular",
	}
)

// Translate converts a loaded SONATA simulation config into the BlueConfig
// block model: one Run block, per-population Circuit blocks, Projections for
// cross-population or non-chemical edges, and Connection/Stimulus/
// StimulusInject/Report blocks from the overrides, inputs and reports
// sections.
func Translate(cfg *SimConfig) (*blueconfig.File, error) {
	defaultPop, err := cfg.Circuit.DefaultPopulation()
	if err != nil {
		return nil, err
	}

	f := &blueconfig.File{}
	if err := translateRun(cfg, f); err != nil {
		return nil, err
	}
	if err := translateConditions(cfg, f); err != nil {
		return nil, err
	}
	if err := translateCircuits(cfg, f); err != nil {
		return nil, err
	}
	if err := translateProjections(cfg, f); err != nil {
		return nil, err
	}
	if err := translateConnections(cfg, f, defaultPop); err != nil {
		return nil, err
	}
	if err := translateInputs(cfg, f, defaultPop); err != nil {
		return nil, err
	}
	if err := translateReports(cfg, f); err != nil {
		return nil, err
	}
	return f, nil
}

func translateRun(cfg *SimConfig, f *blueconfig.File) error {
	b := blueconfig.NewBlock(blueconfig.KindRun, "Default")
	for _, key := range sortedKeys(cfg.Run) {
		name, ok := runTranslation[key]
		if !ok {
			name = key
		}
		b.Set(name, formatValue(cfg.Run[key]))
	}

	// SONATA has no default whole-circuit path.
	b.Set("CircuitPath", "<NONE>")
	b.Set("OutputRoot", cfg.Output.GetString("output_dir", "output"))
	if cfg.TargetSimulator != "" {
		b.Set("Simulator", cfg.TargetSimulator)
	}
	if cfg.NodeSetsFile != "" {
		b.Set("TargetFile", cfg.NodeSetsFile)
	} else if cfg.Circuit.NodeSetsFile != "" {
		b.Set("TargetFile", cfg.Circuit.NodeSetsFile)
	}
	if cfg.NodeSet != "" {
		b.Set("CircuitTarget", cfg.NodeSet)
	}
	// Physiology conditions are hoisted into the Run block.
	for sonataKey, runKey := range map[string]string{
		"celsius": "Celsius", "v_init": "V_Init", "extracellular_calcium": "ExtracellularCalcium",
	} {
		if v, ok := cfg.Conditions[sonataKey]; ok && v != nil {
			b.Set(runKey, formatValue(v))
		}
	}
	return f.Append(b)
}

func translateConditions(cfg *SimConfig, f *blueconfig.File) error {
	b := blueconfig.NewBlock(blueconfig.KindConditions, "Default")
	hoisted := map[string]bool{"celsius": true, "v_init": true, "extracellular_calcium": true}
	for _, key := range sortedKeys(cfg.Conditions) {
		if !hoisted[key] {
			b.Set(key, formatValue(cfg.Conditions[key]))
		}
	}
	if len(b.Keys()) == 0 {
		return nil
	}
	return f.Append(b)
}

func translateCircuits(cfg *SimConfig, f *blueconfig.File) error {
	for _, nn := range cfg.Circuit.Nodes {
		names := make([]string, 0, len(nn.Populations))
		for name := range nn.Populations {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, popName := range names {
			pop := nn.Populations[popName]
			b := blueconfig.NewBlock(blueconfig.KindCircuit, popName)
			b.Set("CircuitPath", filepath.Dir(nn.NodesFile))
			b.Set("CellLibraryFile", nn.NodesFile)
			b.Set("CircuitTarget", popName+":"+cfg.NodeSet)
			if pop.Type != "" {
				b.Set("PopulationType", pop.Type)
			}

			morphPath, morphType := pop.MorphologiesDir, "swc"
			// Alternate formats are preferred: asc over h5 over swc.
			if p, ok := pop.AlternateMorphologies["neurolucida-asc"]; ok {
				morphPath, morphType = p, "asc"
			} else if p, ok := pop.AlternateMorphologies["h5v1"]; ok {
				morphPath, morphType = p, "h5"
			}
			b.Set("MorphologyPath", morphPath)
			b.Set("MorphologyType", morphType)
			b.Set("METypePath", pop.BiophysicalNeuronModelsDir)

			if nrnPath, ok := cfg.Circuit.InnerConnectivity(popName); ok {
				b.Set("nrnPath", nrnPath)
			}
			if err := f.Append(b); err != nil {
				return err
			}
		}
	}
	return nil
}

func translateProjections(cfg *SimConfig, f *blueconfig.File) error {
	for _, en := range cfg.Circuit.Edges {
		names := make([]string, 0, len(en.Populations))
		for name := range en.Populations {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, popName := range names {
			pop := en.Populations[popName]
			// Inner chemical connectivity is the base circuit, not a
			// projection.
			if pop.Source == pop.Target && pop.Type == "chemical" {
				continue
			}
			projType := ""
			switch pop.Type {
			case "chemical":
				projType = "Synaptic"
			case "electrical":
				projType = "GapJunction"
			default:
				logrus.Warnf("Unhandled synapse type: %s", pop.Type)
				continue
			}
			b := blueconfig.NewBlock(blueconfig.KindProjection, pop.Source+"-"+pop.Target)
			b.Set("Path", en.EdgesFile+":"+popName)
			b.Set("Source", pop.Source+":")
			b.Set("Destination", pop.Target+":")
			b.Set("Type", projType)
			if err := f.Append(b); err != nil {
				return err
			}
		}
	}
	return nil
}

func translateConnections(cfg *SimConfig, f *blueconfig.File, defaultPop string) error {
	for _, name := range sortedKeys2(cfg.ConnectionOverrides) {
		section := cfg.ConnectionOverrides[name]
		b := blueconfig.NewBlock(blueconfig.KindConnection, name)
		for _, key := range sortedKeys(section) {
			value := formatValue(section[key])
			if key == "source" || key == "target" {
				value = patchPopulation(value, defaultPop)
			}
			field, ok := connectionTranslation[key]
			if !ok {
				field = snakeToCamel(key)
			}
			b.Set(field, value)
		}
		if err := f.Append(b); err != nil {
			return err
		}
	}
	return nil
}

func translateInputs(cfg *SimConfig, f *blueconfig.File, defaultPop string) error {
	for _, name := range sortedKeys2(cfg.Inputs) {
		section := cfg.Inputs[name]

		stim := blueconfig.NewBlock(blueconfig.KindStimulus, name)
		for _, key := range sortedKeys(section) {
			field, ok := inputsTranslation[key]
			if !ok {
				field = snakeToCamel(key)
			}
			stim.Set(field, formatValue(section[key]))
		}
		if pattern, ok := stim.Get("Pattern"); ok {
			if pattern == "seclamp" {
				stim.Set("Pattern", "SEClamp")
			} else {
				stim.Set("Pattern", snakeToCamel(pattern))
			}
		}
		if mode, ok := stim.Get("Mode"); ok {
			if translated, known := inputTypeTranslation[mode]; known {
				stim.Set("Mode", translated)
			}
		}
		if err := f.Append(stim); err != nil {
			return err
		}

		inject := blueconfig.NewBlock(blueconfig.KindStimulusInject, "inject"+name)
		inject.Set("Stimulus", name)
		target := section.GetString("node_set", "")
		if target == "" {
			return fmt.Errorf("sonata: input %s: missing node_set", name)
		}
		inject.Set("Target", patchPopulation(target, defaultPop))
		inject.Set("Source", section.GetString("source", defaultPop+":"))
		if err := f.Append(inject); err != nil {
			return err
		}
	}
	return nil
}

func translateReports(cfg *SimConfig, f *blueconfig.File) error {
	for _, name := range sortedKeys2(cfg.Reports) {
		section := cfg.Reports[name]
		if _, ok := section["cells"]; !ok {
			return fmt.Errorf("sonata: report %s: 'cells' must be provided", name)
		}
		b := blueconfig.NewBlock(blueconfig.KindReport, name)
		for _, key := range sortedKeys(section) {
			field, ok := reportsTranslation[key]
			if !ok {
				field = snakeToCamel(key)
			}
			b.Set(field, formatValue(section[key]))
		}
		if err := f.Append(b); err != nil {
			return err
		}
	}
	return nil
}

// patchPopulation prepends the default node population to targets lacking a
// population prefix.
func patchPopulation(target, defaultPop string) string {
	if strings.Contains(target, ":") {
		return target
	}
	logrus.Debugf("Target population not specified, prepend %s to %q", defaultPop, target)
	return defaultPop + ":" + target
}

func snakeToCamel(word string) string {
	parts := strings.Split(word, "_")
	var sb strings.Builder
	for _, p := range parts {
		if p == "" {
			sb.WriteByte('_')
			continue
		}
		sb.WriteString(strings.ToUpper(p[:1]))
		sb.WriteString(strings.ToLower(p[1:]))
	}
	return sb.String()
}

// formatValue renders a decoded YAML/JSON scalar as a BlueConfig field value.
func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	}
	return fmt.Sprintf("%v", v)
}

func sortedKeys(s Section) []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedKeys2(m map[string]Section) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
