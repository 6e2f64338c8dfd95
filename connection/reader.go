package connection

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Reader provides the synapse parameters of an edge population, queried per
// target gid.
type Reader interface {
	// SynapseParameters returns the synapse records targeting tgid,
	// ordered by source gid. A gid without synapses yields an empty
	// slice.
	SynapseParameters(tgid uint64) ([]SynapseParameters, error)
	// HasProperty reports whether the dataset carries an optional extra
	// property, e.g. "synapse_index" for absolute synapse offsets.
	HasProperty(name string) bool
	// PopulationName is the edge population served by this reader.
	PopulationName() string
	Close() error
}

// Synapse and gap-junction circuit file names, in search order. The last
// entries are legacy HDF5 containers kept for discovery compatibility; only
// the document-based files are decodable here.
var (
	SynapseFilenames     = []string{"edges.json", "edges.yaml", "edges.sonata", "edges.h5", "circuit.syn2", "nrn.h5"}
	GapJunctionFilenames = []string{"gj.json", "gj.yaml", "gj.sonata", "gj.syn2", "nrn_gj.h5"}
)

// FindCircuitFile locates an edge file inside a directory, trying the given
// filenames in order. Multiple matches log a deprecation warning and the
// first is used.
func FindCircuitFile(location string, filenames []string) (string, error) {
	var found []string
	for _, name := range filenames {
		path := filepath.Join(location, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			found = append(found, path)
		}
	}
	if len(found) == 0 {
		return "", &ConfigurationError{Msg: fmt.Sprintf(
			"nrnPath is not a file and no synapse file was found in %s", location)}
	}
	if len(found) > 1 {
		logrus.Warn("DEPRECATION: Found several synapse file formats in nrnPath. " +
			"Auto-select is deprecated and will be removed")
	}
	return found[0], nil
}

// edgesDocument is the document form of an edge file: populations with their
// source/target node populations and per-tgid synapse records.
type edgesDocument struct {
	Populations map[string]edgesPopulation `yaml:"populations" json:"populations"`
}

type edgesPopulation struct {
	Source      string                         `yaml:"source" json:"source"`
	Target      string                         `yaml:"target" json:"target"`
	Type        string                         `yaml:"type" json:"type"`
	Properties  []string                       `yaml:"properties" json:"properties"`
	Connections map[string][]SynapseParameters `yaml:"connections" json:"connections"`
}

// DocumentReader reads edge populations from a JSON or YAML document.
type DocumentReader struct {
	path       string
	population string
	src, dst   string
	edgeType   string
	properties map[string]bool
	bySGID     map[uint64][]SynapseParameters
	dt         float64
}

// OpenEdgesFile opens an edge file and selects one population; an empty
// population name selects the single population of the file. dt, when
// positive, quantises synaptic delays onto the integration grid. Binary
// container formats return UnsupportedFormatError.
func OpenEdgesFile(path, population string, dt float64) (*DocumentReader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("connection: open edges %s: %w", path, err)
	}
	if !looksLikeDocument(data) {
		return nil, &UnsupportedFormatError{Path: path}
	}
	var doc edgesDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("connection: decode edges %s: %w", path, err)
	}
	if len(doc.Populations) == 0 {
		return nil, fmt.Errorf("connection: edges %s: no populations", path)
	}

	var pop edgesPopulation
	name := population
	if name == "" {
		if len(doc.Populations) > 1 {
			return nil, fmt.Errorf("connection: edges %s: %d populations, a name is required",
				path, len(doc.Populations))
		}
		for n, p := range doc.Populations {
			name, pop = n, p
		}
	} else {
		var ok bool
		pop, ok = doc.Populations[name]
		if !ok {
			return nil, fmt.Errorf("connection: edges %s: population %s not found", path, name)
		}
	}

	r := &DocumentReader{
		path:       path,
		population: name,
		src:        pop.Source,
		dst:        pop.Target,
		edgeType:   pop.Type,
		properties: make(map[string]bool, len(pop.Properties)),
		bySGID:     make(map[uint64][]SynapseParameters, len(pop.Connections)),
		dt:         dt,
	}
	for _, p := range pop.Properties {
		r.properties[p] = true
	}
	for tgidStr, records := range pop.Connections {
		tgid, err := strconv.ParseUint(tgidStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("connection: edges %s: bad target gid %q", path, tgidStr)
		}
		params := append([]SynapseParameters(nil), records...)
		sort.SliceStable(params, func(i, j int) bool { return params[i].SGID < params[j].SGID })
		if dt > 0 {
			for i := range params {
				params[i].Delay = QuantizeDelay(params[i].Delay, dt)
			}
		}
		r.bySGID[tgid] = params
	}
	logrus.Infof("Opening Synapse file %s, population: %s", path, name)
	return r, nil
}

// looksLikeDocument sniffs for a JSON/YAML edge document rather than an
// HDF5/binary container.
func looksLikeDocument(data []byte) bool {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		return false
	}
	switch trimmed[0] {
	case '{':
		return true
	case 0x89: // HDF5 magic starts \x89HDF
		return false
	}
	return bytes.HasPrefix(trimmed, []byte("populations:"))
}

func (r *DocumentReader) SynapseParameters(tgid uint64) ([]SynapseParameters, error) {
	return r.bySGID[tgid], nil
}

func (r *DocumentReader) HasProperty(name string) bool {
	return r.properties[name]
}

func (r *DocumentReader) PopulationName() string {
	return r.population
}

// SourcePopulation and TargetPopulation are the node populations the edges
// connect, as declared in the document.
func (r *DocumentReader) SourcePopulation() string { return r.src }
func (r *DocumentReader) TargetPopulation() string { return r.dst }

// EdgeType is the population's connectivity type (chemical, electrical).
func (r *DocumentReader) EdgeType() string { return r.edgeType }

func (r *DocumentReader) Close() error {
	r.bySGID = nil
	return nil
}
