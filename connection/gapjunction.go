package connection

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/neurosimlabs/neurodamus/target"
)

// GapJunctionManager handles electrical coupling. Gap junctions are loaded
// for the circuit target only and both endpoints must belong to it, so the
// manager requires a CircuitTarget to be set.
type GapJunctionManager struct {
	*Manager

	// offsets maps each gid to its absolute gap-junction offset, loaded
	// from the legacy gjinfo.txt companion file when present.
	offsets map[uint64]int64
}

// NewGapJunctionManager opens the gap-junction connectivity of a circuit
// from gjSource ("fspath[:population]"). circuitTargetName restricts both
// junction endpoints and is mandatory.
func NewGapJunctionManager(targets *target.Manager, localGIDs []uint64, dt float64, gjSource, circuitTargetName string) (*GapJunctionManager, error) {
	if circuitTargetName == "" {
		return nil, &ConfigurationError{
			Msg: "gap junctions require a circuit target to be set"}
	}
	circuitTarget, err := targets.GetTarget(target.ParseSpec(circuitTargetName).Name)
	if err != nil {
		return nil, err
	}

	m := &GapJunctionManager{Manager: NewManager(targets, localGIDs, dt)}
	m.circuitTarget = circuitTarget

	path, err := m.InitSynapseLocation(gjSource, GapJunctionFilenames, false)
	if err != nil {
		return nil, err
	}
	if err := m.loadOffsets(filepath.Dir(path)); err != nil {
		return nil, err
	}
	return m, nil
}

// loadOffsets reads the gjinfo.txt companion file, accumulating per-gid
// junction offsets. Each "gid count" line advances the running offset by
// twice the junction count since junctions appear on both endpoints.
func (m *GapJunctionManager) loadOffsets(dir string) error {
	path := filepath.Join(dir, "gjinfo.txt")
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			logrus.Debug("No gjinfo.txt found. Gap junction offsets disabled")
			return nil
		}
		return err
	}
	defer f.Close()

	logrus.Infof("Computing gap junction offsets from %s", path)
	m.offsets = make(map[uint64]int64)
	var running int64
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 2 {
			return fmt.Errorf("connection: %s:%d: expected 'gid count'", path, line)
		}
		gid, err1 := strconv.ParseUint(fields[0], 10, 64)
		count, err2 := strconv.ParseInt(fields[1], 10, 64)
		if err1 != nil || err2 != nil {
			return fmt.Errorf("connection: %s:%d: bad gid or count", path, line)
		}
		m.offsets[gid] = running
		running += 2 * count
	}
	return scanner.Err()
}

// Offset is the absolute junction offset of a gid, or -1 when offsets were
// not loaded or the gid is unknown.
func (m *GapJunctionManager) Offset(gid uint64) int64 {
	if m.offsets == nil {
		return -1
	}
	off, ok := m.offsets[gid]
	if !ok {
		return -1
	}
	return off
}

// CreateGapJunctions loads every junction whose endpoints both lie within
// the circuit target.
func (m *GapJunctionManager) CreateGapJunctions() error {
	return m.ConnectAll(1, nil, true)
}

// UpdateConductance sets the coupling conductance on every junction.
func (m *GapJunctionManager) UpdateConductance(conductance float64) {
	updated := 0
	for _, conn := range m.AllConnections() {
		syns := conn.Synapses()
		for i := range syns {
			syns[i].Weight = conductance
		}
		updated++
	}
	logrus.Infof("Set gap junction conductance to %g on %d connections", conductance, updated)
}

// FinalizeGapJunctions instantiates the loaded junctions.
func (m *GapJunctionManager) FinalizeGapJunctions() int {
	return m.Finalize(0, false, "Gap-Junctions", func(conn *Connection) bool {
		return conn.Finalize(0, false)
	})
}
