package stimulus

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// SpikeMap holds replay spike times per source gid, each train sorted.
type SpikeMap map[uint64][]float64

// ReadSpikes parses an out.dat style spike file: an optional "/scatter"
// header followed by "time gid" lines. Malformed lines are an error with
// their line number.
func ReadSpikes(r io.Reader) (SpikeMap, error) {
	spikes := make(SpikeMap)
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "/") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) != 2 {
			return nil, fmt.Errorf("stimulus: spike file line %d: expected 'time gid'", line)
		}
		t, err1 := strconv.ParseFloat(fields[0], 64)
		gid, err2 := strconv.ParseUint(fields[1], 10, 64)
		if err1 != nil || err2 != nil {
			return nil, fmt.Errorf("stimulus: spike file line %d: bad time or gid", line)
		}
		spikes[gid] = append(spikes[gid], t)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	for gid := range spikes {
		sort.Float64s(spikes[gid])
	}
	return spikes, nil
}

// ReadSpikeFile loads a replay spike file from disk.
func ReadSpikeFile(path string) (SpikeMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("stimulus: open spike file: %w", err)
	}
	defer f.Close()
	spikes, err := ReadSpikes(f)
	if err != nil {
		return nil, err
	}
	logrus.Infof("Loaded replay spikes from %s: %d cells, %d events",
		path, len(spikes), spikes.Count())
	return spikes, nil
}

// Merge folds another spike map into this one, keeping trains sorted.
func (s SpikeMap) Merge(other SpikeMap) {
	for gid, times := range other {
		s[gid] = append(s[gid], times...)
		sort.Float64s(s[gid])
	}
}

// Count is the total number of spike events.
func (s SpikeMap) Count() int {
	n := 0
	for _, times := range s {
		n += len(times)
	}
	return n
}

// Write serialises the map in out.dat format, events ordered by time then
// gid.
func (s SpikeMap) Write(w io.Writer) error {
	type event struct {
		t   float64
		gid uint64
	}
	events := make([]event, 0, s.Count())
	for gid, times := range s {
		for _, t := range times {
			events = append(events, event{t, gid})
		}
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].t != events[j].t {
			return events[i].t < events[j].t
		}
		return events[i].gid < events[j].gid
	})

	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("/scatter\n"); err != nil {
		return err
	}
	for _, e := range events {
		if _, err := fmt.Fprintf(bw, "%g\t%d\n", e.t, e.gid); err != nil {
			return err
		}
	}
	return bw.Flush()
}
