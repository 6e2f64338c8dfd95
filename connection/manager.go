package connection

import (
	"crypto/md5"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/neurosimlabs/neurodamus/target"
)

// Rule is a Connection block applied to a pathway: creation restrictions and
// the synapse scalars/configuration to set.
type Rule struct {
	Name        string
	Source      string
	Destination string

	Weight           *float64
	SpontMinis       *float64
	SynDelayOverride *float64
	SynapseConfigure string
	ModOverride      string

	// Delay makes the rule a scheduled weight adjustment instead of a
	// creation/configuration rule.
	Delay *float64

	CreateMode string
	SynapseID  *int
}

// Manager is the common machinery of synapse and gap-junction managers:
// edge populations keyed by source/destination population id, the active
// population connections are loaded into, and group configure/disable
// operations driven by Connection rules.
type Manager struct {
	targets   *target.Manager
	localGIDs []uint64
	dt        float64

	populations    map[PopulationID]*Set
	bySrcNodes     map[string][]*Set
	cur            *Set
	disabled       map[uint64][]*Connection
	reader         Reader
	basePopulation string

	synapseMode      SynapseMode
	circuitTarget    *target.Target // set by gap junctions to validate src gids
	totalConnections int

	// HasSynIndexes reports whether the open edge dataset carries
	// absolute synapse offsets.
	HasSynIndexes bool
}

// NewManager creates an empty manager over the local gids. dt quantises
// synapse delays when edge files are opened.
func NewManager(targets *target.Manager, localGIDs []uint64, dt float64) *Manager {
	m := &Manager{
		targets:     targets,
		localGIDs:   localGIDs,
		dt:          dt,
		populations: make(map[PopulationID]*Set),
		bySrcNodes:  make(map[string][]*Set),
		disabled:    make(map[uint64][]*Connection),
	}
	m.cur = m.GetPopulation(PopulationID{})
	return m
}

// edgeToNodePopulations splits an edge population name of the form
// src__dst[__suffix] into its node population names. A single-group name is
// tolerated (src==dst) with an error logged, matching simulator behavior.
func edgeToNodePopulations(edgePop string) (src, dst string) {
	if edgePop == "" {
		logrus.Debug("No edge population name. Matching all unprefixed targets")
		return "", ""
	}
	parts := strings.Split(edgePop, "__")
	if len(parts) == 1 {
		logrus.Error("Bad format of edge population name. " +
			"Requires two or three groups separated by '__'")
		return parts[0], parts[0]
	}
	src = parts[0]
	if len(parts) > 2 {
		return src, parts[1]
	}
	return src, src
}

// nodePopulationID derives a stable 12-bit id from a node population name.
func nodePopulationID(nodePop string) int {
	sum := md5.Sum([]byte(nodePop))
	return (int(sum[1]&0x0f) << 8) + int(sum[0])
}

// computePopIDs derives the population id pair of an edge population. The
// base population maps to source id 0; projections must target the base
// population's nodes.
func (m *Manager) computePopIDs(edgePop string) (PopulationID, error) {
	if edgePop == "" {
		logrus.Warn("Neither Sonata population nor populationID set. " +
			"Edges will be merged with base circuit")
		return PopulationID{}, nil
	}
	src, dst := edgeToNodePopulations(edgePop)
	if m.basePopulation == "" {
		logrus.Warn("No base connectivity population name. Assuming Edge target population")
		m.basePopulation = dst
	}
	if dst != m.basePopulation {
		return PopulationID{}, &ConfigurationError{
			Msg: "edges must target the same nodes as base connectivity"}
	}
	id := PopulationID{}
	if src != m.basePopulation {
		id.Src = nodePopulationID(src)
	}
	return id, nil
}

// InitSynapseLocation opens the base connectivity from an nrnPath-style
// "fspath[:population]" value and registers it as the default population.
// Returns the resolved edge file path.
func (m *Manager) InitSynapseLocation(nrnPath string, filenames []string, loadOffsets bool) (string, error) {
	logrus.Infof("Initialize connectivity from nrnPath=%s", nrnPath)
	path, popName := splitEdgeSource(nrnPath)

	if info, err := os.Stat(path); err == nil && info.IsDir() {
		found, err := FindCircuitFile(path, filenames)
		if err != nil {
			return "", err
		}
		path = found
	}
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return "", &ConfigurationError{Msg: fmt.Sprintf("nrnPath %s does not contain valid edge files", nrnPath)}
	}

	if popName != "" {
		src, dst := edgeToNodePopulations(popName)
		if src != dst {
			return "", &ConfigurationError{
				Msg: "base connectivity must be within the same node population"}
		}
		m.basePopulation = dst
	}

	zero := 0
	if err := m.OpenEdges(joinEdgeSource(path, popName), &zero); err != nil {
		return "", err
	}
	// The base population also matches unprefixed targets.
	m.bySrcNodes[""] = append(m.bySrcNodes[""], m.cur)

	m.HasSynIndexes = loadOffsets && m.reader.HasProperty("synapse_index")
	logrus.Infof("Enabled reading Synapse offsets: %v", m.HasSynIndexes)
	return path, nil
}

func splitEdgeSource(source string) (path, population string) {
	// Windows-style drive letters are not a concern for circuit paths.
	if i := strings.LastIndexByte(source, ':'); i >= 0 {
		return source[:i], source[i+1:]
	}
	return source, ""
}

func joinEdgeSource(path, population string) string {
	if population == "" {
		return path
	}
	return path + ":" + population
}

// OpenEdges opens an edge source "fspath[:population]" and selects the
// population connections will be loaded into. srcPopID forces the source
// population id (0 for base connectivity); nil derives it from the name.
func (m *Manager) OpenEdges(source string, srcPopID *int) error {
	path, popName := splitEdgeSource(source)

	reader, err := OpenEdgesFile(path, popName, m.dt)
	if err != nil {
		return err
	}
	if m.reader != nil {
		if err := m.reader.Close(); err != nil {
			return err
		}
	}
	m.reader = reader

	id := PopulationID{}
	if srcPopID != nil {
		id.Src = *srcPopID
	} else {
		id, err = m.computePopIDs(popName)
		if err != nil {
			return err
		}
	}
	m.SelectPopulation(id)

	srcName, dstName := edgeToNodePopulations(popName)
	if srcName != "" || id.Src > 0 {
		m.cur.SrcName, m.cur.DstName = srcName, dstName
		m.bySrcNodes[srcName] = append(m.bySrcNodes[srcName], m.cur)
	}
	logrus.Infof("Loading connections to population: %s", m.cur)

	// Allow appending synapses from the new source.
	for _, conn := range m.AllConnections() {
		conn.Locked = false
	}
	return nil
}

// SelectPopulation makes a population the active one; ConnectAll and
// ConnectGroup apply to it.
func (m *Manager) SelectPopulation(id PopulationID) {
	m.cur = m.GetPopulation(id)
}

// GetPopulation retrieves (or creates) the connection set of an id pair.
func (m *Manager) GetPopulation(id PopulationID) *Set {
	pop, ok := m.populations[id]
	if !ok {
		pop = NewSet(id)
		pop.SrcName, pop.DstName = "", ""
		if m.populations == nil {
			m.populations = make(map[PopulationID]*Set)
		}
		m.populations[id] = pop
	}
	return pop
}

// CurrentPopulation is the active connection set.
func (m *Manager) CurrentPopulation() *Set {
	return m.cur
}

// FindPopulations selects populations by optional source/destination ids.
func (m *Manager) FindPopulations(src, dst *int) []*Set {
	if src != nil && dst != nil {
		if pop, ok := m.populations[PopulationID{Src: *src, Dst: *dst}]; ok {
			return []*Set{pop}
		}
		return nil
	}
	var out []*Set
	for _, pop := range m.populations {
		if pop.IDsMatch(src, dst) {
			out = append(out, pop)
		}
	}
	return out
}

// AllConnections returns every connection across populations.
func (m *Manager) AllConnections() []*Connection {
	var out []*Connection
	for _, pop := range m.populations {
		out = append(out, pop.AllConnections()...)
	}
	return out
}

// ConnectionCount is the number of connections created by this manager.
func (m *Manager) ConnectionCount() int {
	return m.totalConnections
}

// connVisitor receives one run of same-sgid synapses targeting tgid.
// offset is the index of the run within the tgid's full record list.
type connVisitor func(sgid, tgid uint64, params []SynapseParameters, offset int) error

// iterateConnParams walks the open edge dataset per target gid, grouping
// records by source gid and applying optional source/destination target
// filters.
func (m *Manager) iterateConnParams(srcTarget, dstTarget *target.Target, gids []uint64, visit connVisitor) error {
	if m.reader == nil {
		return &ConfigurationError{Msg: "no edge source is open"}
	}
	if gids == nil {
		gids = m.localGIDs
	}
	before := m.cur.Count()

	for _, tgid := range gids {
		if dstTarget != nil && !dstTarget.Contains(tgid) {
			continue
		}
		params, err := m.reader.SynapseParameters(tgid)
		if err != nil {
			return err
		}
		logrus.Debugf("GID %d Syn count: %d", tgid, len(params))

		for cur := 0; cur < len(params); {
			sgid := params[cur].SGID
			next := cur + 1
			for next < len(params) && params[next].SGID == sgid {
				next++
			}
			if srcTarget == nil || srcTarget.CompleteContains(sgid) {
				if err := visit(sgid, tgid, params[cur:next], cur); err != nil {
					return err
				}
			}
			cur = next
		}
	}

	created := m.cur.Count() - before
	m.totalConnections += created
	if created > 0 {
		pathway := "[ALL]"
		if srcTarget != nil && dstTarget != nil {
			pathway = fmt.Sprintf("Pathway %s -> %s", srcTarget.Name, dstTarget.Name)
		}
		logrus.Infof(" * %s. Created %d connections", pathway, created)
	}
	return nil
}

// ConnectAll instantiates every synapse of the open edge source for the
// local gids. onlySGIDInTarget restricts source gids to the circuit target,
// which gap junctions require.
func (m *Manager) ConnectAll(weightFactor float64, onlyGIDs []uint64, onlySGIDInTarget bool) error {
	var srcFilter *target.Target
	if onlySGIDInTarget {
		srcFilter = m.circuitTarget
	}
	pop := m.cur
	return m.iterateConnParams(srcFilter, nil, onlyGIDs, func(sgid, tgid uint64, params []SynapseParameters, offset int) error {
		conn := pop.GetOrCreateConnection(sgid, tgid)
		conn.WeightFactor = weightFactor
		conn.Mode = m.synapseMode
		m.addSynapses(conn, params, 0, offset)
		return nil
	})
}

// ConnectGroup instantiates the pathway between two cell targets.
// synTypeRestrict, when non-zero, creates only synapses of that type.
func (m *Manager) ConnectGroup(srcTargetName, dstTargetName string, synTypeRestrict int) error {
	srcSpec := target.ParseSpec(srcTargetName)
	dstSpec := target.ParseSpec(dstTargetName)
	logrus.Debugf("Connecting group %s -> %s", srcSpec.Name, dstSpec.Name)

	var srcTarget, dstTarget *target.Target
	var err error
	if srcSpec.Name != "" {
		if srcTarget, err = m.targets.GetTarget(srcSpec.Name); err != nil {
			return err
		}
	}
	if dstSpec.Name != "" {
		if dstTarget, err = m.targets.GetTarget(dstSpec.Name); err != nil {
			return err
		}
	}

	pop := m.cur
	return m.iterateConnParams(srcTarget, dstTarget, nil, func(sgid, tgid uint64, params []SynapseParameters, offset int) error {
		if sgid == tgid {
			logrus.Warnf("Making connection within same Gid: %d", sgid)
		}
		conn := pop.GetOrCreateConnection(sgid, tgid)
		if conn.Locked {
			return nil
		}
		conn.Mode = m.synapseMode
		m.addSynapses(conn, params, synTypeRestrict, offset)
		conn.Locked = true
		return nil
	})
}

func (m *Manager) addSynapses(conn *Connection, params []SynapseParameters, synTypeRestrict, baseID int) {
	for i, p := range params {
		if synTypeRestrict != 0 && p.SynType != synTypeRestrict {
			continue
		}
		conn.AddSynapse(p, baseID+i)
	}
}

// CreateConnections creates connections for the active population according
// to the Connection rules. Without matching rules every synapse is loaded;
// a lone weight-zero rule skips creation entirely.
func (m *Manager) CreateConnections(rules []Rule, srcTarget string) error {
	srcPop := m.cur.SrcName
	var matching []Rule
	for _, rule := range rules {
		if target.ParseSpec(rule.Source).MatchFilter(srcPop, srcTarget) {
			matching = append(matching, rule)
		}
	}

	if len(matching) == 0 {
		logrus.Info("No matching Connection blocks. Loading all synapses...")
		return m.ConnectAll(1, nil, false)
	}
	if len(matching) == 1 && matching[0].Weight != nil && *matching[0].Weight == 0 {
		logrus.Warn("SKIPPING Connection create since they have invariably weight=0")
		return nil
	}

	logrus.Infof("Creating group connections (%d groups match)", len(matching))
	for _, rule := range matching {
		if rule.Delay != nil {
			// Delayed rules only configure instantiated connections.
			continue
		}
		if rule.CreateMode == "NoCreate" {
			continue
		}
		restrict := 0
		if rule.SynapseID != nil {
			restrict = *rule.SynapseID
		}
		if err := m.ConnectGroup(rule.Source, rule.Destination, restrict); err != nil {
			return err
		}
	}
	return nil
}

// GetTargetConnections retrieves the instantiated connections between two
// cell targets, optionally restricted to a gid list or one population.
func (m *Manager) GetTargetConnections(srcTargetName, dstTargetName string, gids []uint64, pop *Set) ([]*Connection, error) {
	srcSpec := target.ParseSpec(srcTargetName)
	dstSpec := target.ParseSpec(dstTargetName)

	var srcTarget, dstTarget *target.Target
	var err error
	if srcSpec.Name != "" {
		if srcTarget, err = m.targets.GetTarget(srcSpec.Name); err != nil {
			return nil, err
		}
	}
	if dstTarget, err = m.targets.GetTarget(mosaicName(dstSpec)); err != nil {
		return nil, err
	}
	if gids == nil {
		gids = m.localGIDs
	}

	var pops []*Set
	if pop != nil {
		pops = []*Set{pop}
	} else {
		pops = m.bySrcNodes[srcSpec.Population]
		if dstSpec.Population != "" {
			filtered := pops[:0:0]
			for _, p := range pops {
				if p.DstName == dstSpec.Population {
					filtered = append(filtered, p)
				}
			}
			pops = filtered
		}
		if len(pops) == 0 {
			logrus.Warnf("No connections found between node populations (%s, %s)",
				srcSpec.Population, dstSpec.Population)
			return nil, nil
		}
	}

	var out []*Connection
	for _, p := range pops {
		logrus.Debugf("Connections from population %s", p)
		for _, tgid := range gids {
			if !dstTarget.Contains(tgid) {
				continue
			}
			for _, conn := range p.Connections(tgid) {
				if srcTarget == nil || srcTarget.CompleteContains(conn.SGID) {
					out = append(out, conn)
				}
			}
		}
	}
	return out, nil
}

func mosaicName(spec target.Spec) string {
	if spec.Name == "" {
		return target.Mosaic
	}
	return spec.Name
}

// ConfigureGroup applies a non-delayed Connection rule to the instantiated
// pathway.
func (m *Manager) ConfigureGroup(rule Rule, gids []uint64) error {
	msg := fmt.Sprintf(" * Pathway %s -> %s", rule.Source, rule.Destination)
	if rule.SynapseConfigure != "" {
		msg += fmt.Sprintf(":\tconfigure with '%s'", rule.SynapseConfigure)
	}
	logrus.Info(msg)

	conns, err := m.GetTargetConnections(rule.Source, rule.Destination, gids, nil)
	if err != nil {
		return err
	}
	for _, conn := range conns {
		if rule.Weight != nil {
			conn.WeightFactor = *rule.Weight
		}
		if rule.SpontMinis != nil {
			conn.MinisSpontRate = *rule.SpontMinis
		}
		if rule.SynDelayOverride != nil {
			v := *rule.SynDelayOverride
			conn.SynDelayOverride = &v
		}
		conn.AddSynapseConfiguration(rule.SynapseConfigure)
	}
	return nil
}

// UpdateConnections changes parameters on already instantiated connections.
func (m *Manager) UpdateConnections(srcTargetName, dstTargetName string, gids []uint64, synConfigure string, weight *float64) error {
	if synConfigure == "" && weight == nil {
		logrus.Warnf("No synapse parameters being updated for Targets %s->%s",
			srcTargetName, dstTargetName)
		return nil
	}
	conns, err := m.GetTargetConnections(srcTargetName, dstTargetName, gids, nil)
	if err != nil {
		return err
	}
	updated := 0
	for _, conn := range conns {
		if weight != nil {
			conn.UpdateWeights(*weight)
			updated++
		}
		if synConfigure != "" {
			conn.AddSynapseConfiguration(synConfigure)
		}
	}
	logrus.Infof("Updated %d conns", updated)
	return nil
}

// Delete removes a connection from the selected populations. Unlike
// Disable it cannot be undone.
func (m *Manager) Delete(sgid, tgid uint64, src, dst *int) {
	for _, pop := range m.FindPopulations(src, dst) {
		pop.Delete(sgid, tgid)
	}
}

// DeleteGroup removes the connections matched by the gid selectors.
func (m *Manager) DeleteGroup(postGIDs, preGIDs []uint64, src, dst *int) {
	for _, pop := range m.FindPopulations(src, dst) {
		pop.DeleteGroup(postGIDs, preGIDs)
	}
}

// Disable turns a connection off, remembering it for Reenable.
func (m *Manager) Disable(sgid, tgid uint64, zeroConductance bool, src, dst *int) {
	for _, pop := range m.FindPopulations(src, dst) {
		if conn := pop.GetConnection(sgid, tgid); conn != nil {
			conn.Disable(zeroConductance)
			m.disabled[tgid] = append(m.disabled[tgid], conn)
		}
	}
}

// DisableGroup disables the connections matched by the gid selectors.
func (m *Manager) DisableGroup(postGIDs, preGIDs []uint64, zeroConductance bool, src, dst *int) {
	for _, pop := range m.FindPopulations(src, dst) {
		for _, conn := range pop.GetConnections(postGIDs, preGIDs) {
			m.disabled[conn.TGID] = append(m.disabled[conn.TGID], conn)
			conn.Disable(zeroConductance)
		}
	}
}

// Reenable restores a disabled connection from the selected populations.
func (m *Manager) Reenable(sgid, tgid uint64, src, dst *int) {
	allowed := m.FindPopulations(src, dst)
	kept := m.disabled[tgid][:0]
	for _, conn := range m.disabled[tgid] {
		if conn.SGID == sgid && popAllowed(allowed, conn.Pop) {
			conn.Enable()
			continue
		}
		kept = append(kept, conn)
	}
	m.disabled[tgid] = kept
}

// ReenableAll restores every disabled connection of the given post gids
// (all local gids when nil).
func (m *Manager) ReenableAll(postGIDs []uint64) {
	if postGIDs == nil {
		postGIDs = m.localGIDs
	}
	for _, tgid := range postGIDs {
		for _, conn := range m.disabled[tgid] {
			conn.Enable()
		}
		m.disabled[tgid] = nil
	}
}

// ReenableGroup restores disabled connections by pre-gid list.
func (m *Manager) ReenableGroup(postGIDs, preGIDs []uint64, src, dst *int) {
	if postGIDs == nil {
		postGIDs = m.localGIDs
	}
	pre := make(map[uint64]bool, len(preGIDs))
	for _, sgid := range preGIDs {
		pre[sgid] = true
	}
	allowed := m.FindPopulations(src, dst)
	for _, tgid := range postGIDs {
		kept := m.disabled[tgid][:0]
		for _, conn := range m.disabled[tgid] {
			if pre[conn.SGID] && popAllowed(allowed, conn.Pop) {
				conn.Enable()
				continue
			}
			kept = append(kept, conn)
		}
		m.disabled[tgid] = kept
	}
}

func popAllowed(pops []*Set, id PopulationID) bool {
	for _, p := range pops {
		if p.ID == id {
			return true
		}
	}
	return false
}

// GetDisabled lists disabled connections, optionally for one post gid.
func (m *Manager) GetDisabled(postGID *uint64) []*Connection {
	if postGID != nil {
		return m.disabled[*postGID]
	}
	var out []*Connection
	for _, conns := range m.disabled {
		out = append(out, conns...)
	}
	return out
}

// Finalize instantiates the connections of every population, releasing the
// edge reader. finalizeConn decides per connection; the count of
// instantiated connections is returned.
func (m *Manager) Finalize(baseSeed int, coreNeuron bool, connType string, finalizeConn func(*Connection) bool) int {
	// All parameters are placed; release the reader's cached data.
	if m.reader != nil {
		if err := m.reader.Close(); err != nil {
			logrus.WithError(err).Warn("error closing edge reader")
		}
		m.reader = nil
	}

	logrus.Infof("Instantiating %s...", connType)
	created := 0
	for id, pop := range m.populations {
		logrus.Debugf("Finalizing population %v", id)
		for _, tgid := range pop.TargetGIDs() {
			conns := pop.Connections(tgid)
			// Connections are finalized in reverse order (hoc compat).
			for i := len(conns) - 1; i >= 0; i-- {
				if finalizeConn(conns[i]) {
					created++
				}
			}
		}
	}
	logrus.Infof(" => Created %d %s", created, connType)
	return created
}
