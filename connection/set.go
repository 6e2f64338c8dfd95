package connection

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
)

// Set is a dataset of connections for one edge population, indexed by target
// gid and kept ordered by source gid within each target's list.
type Set struct {
	ID      PopulationID
	SrcName string
	DstName string

	conns map[uint64][]*Connection
	count int
}

// NewSet creates an empty connection set for a population id pair.
func NewSet(id PopulationID) *Set {
	return &Set{ID: id, conns: make(map[uint64][]*Connection)}
}

// findPos locates sgid within a target's ordered connection list.
func findPos(conns []*Connection, sgid uint64) int {
	return sort.Search(len(conns), func(i int) bool { return conns[i].SGID >= sgid })
}

// GetConnection retrieves a connection by source and target gid, or nil.
func (s *Set) GetConnection(sgid, tgid uint64) *Connection {
	conns := s.conns[tgid]
	pos := findPos(conns, sgid)
	if pos == len(conns) || conns[pos].SGID != sgid {
		return nil
	}
	return conns[pos]
}

// StoreConnection inserts a connection in sgid order. Storing an existing
// pathway is logged and ignored.
func (s *Set) StoreConnection(conn *Connection) {
	conns := s.conns[conn.TGID]
	pos := findPos(conns, conn.SGID)
	if pos < len(conns) && conns[pos].SGID == conn.SGID {
		logrus.Errorf("attempt to store existing connection: %d->%d", conn.SGID, conn.TGID)
		return
	}
	conns = append(conns, nil)
	copy(conns[pos+1:], conns[pos:])
	conns[pos] = conn
	s.conns[conn.TGID] = conns
	s.count++
}

// GetOrCreateConnection returns the connection for the gid pair, creating
// and inserting it when absent. Appending in sgid order is the fast path.
func (s *Set) GetOrCreateConnection(sgid, tgid uint64) *Connection {
	conns := s.conns[tgid]
	pos := len(conns)
	if n := len(conns); n > 0 {
		last := conns[n-1]
		if last.SGID == sgid {
			return last
		}
		if last.SGID > sgid {
			pos = findPos(conns, sgid)
			if pos < n && conns[pos].SGID == sgid {
				return conns[pos]
			}
		}
	}
	conn := NewConnection(sgid, tgid, s.ID)
	conns = append(conns, nil)
	copy(conns[pos+1:], conns[pos:])
	conns[pos] = conn
	s.conns[tgid] = conns
	s.count++
	return conn
}

// TargetGIDs lists the target gids holding connections, sorted.
func (s *Set) TargetGIDs() []uint64 {
	out := make([]uint64, 0, len(s.conns))
	for tgid := range s.conns {
		out = append(out, tgid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Connections returns the ordered connection list of one target gid.
func (s *Set) Connections(tgid uint64) []*Connection {
	return s.conns[tgid]
}

// AllConnections returns every connection, grouped by target gid in gid
// order.
func (s *Set) AllConnections() []*Connection {
	out := make([]*Connection, 0, s.count)
	for _, tgid := range s.TargetGIDs() {
		out = append(out, s.conns[tgid]...)
	}
	return out
}

// GetConnections selects connections by optional post and pre gid filters.
// Nil selectors match everything.
func (s *Set) GetConnections(postGIDs, preGIDs []uint64) []*Connection {
	var lists [][]*Connection
	if postGIDs == nil {
		for _, tgid := range s.TargetGIDs() {
			lists = append(lists, s.conns[tgid])
		}
	} else {
		for _, tgid := range postGIDs {
			if conns, ok := s.conns[tgid]; ok {
				lists = append(lists, conns)
			}
		}
	}
	if preGIDs == nil {
		var out []*Connection
		for _, conns := range lists {
			out = append(out, conns...)
		}
		return out
	}
	pre := make(map[uint64]bool, len(preGIDs))
	for _, sgid := range preGIDs {
		pre[sgid] = true
	}
	var out []*Connection
	for _, conns := range lists {
		for _, c := range conns {
			if pre[c.SGID] {
				out = append(out, c)
			}
		}
	}
	return out
}

// Delete removes one connection. Deleting a missing pathway is logged.
func (s *Set) Delete(sgid, tgid uint64) {
	conns := s.conns[tgid]
	pos := findPos(conns, sgid)
	if pos == len(conns) || conns[pos].SGID != sgid {
		logrus.Errorf("non-existing connection to delete: %d->%d", sgid, tgid)
		return
	}
	s.conns[tgid] = append(conns[:pos], conns[pos+1:]...)
	s.count--
}

// DeleteGroup removes all connections matched by the gid selectors.
func (s *Set) DeleteGroup(postGIDs, preGIDs []uint64) {
	victims := s.GetConnections(postGIDs, preGIDs)
	drop := make(map[*Connection]bool, len(victims))
	for _, c := range victims {
		drop[c] = true
	}
	for tgid, conns := range s.conns {
		kept := conns[:0]
		for _, c := range conns {
			if !drop[c] {
				kept = append(kept, c)
			}
		}
		s.count -= len(conns) - len(kept)
		s.conns[tgid] = kept
	}
}

// Count is the number of connections in the set.
func (s *Set) Count() int {
	return s.count
}

// IDsMatch checks the set against a population selector; nil components
// match anything.
func (s *Set) IDsMatch(src, dst *int) bool {
	return (src == nil || *src == s.ID.Src) && (dst == nil || *dst == s.ID.Dst)
}

// IsDefault reports whether the set holds the base circuit connectivity.
func (s *Set) IsDefault() bool {
	return s.ID == PopulationID{}
}

func (s *Set) String() string {
	if s.IsDefault() {
		return "<ConnectionSet: Default>"
	}
	return fmt.Sprintf("<ConnectionSet: SrcID: %d (%s->%s)>", s.ID.Src, s.SrcName, s.DstName)
}
