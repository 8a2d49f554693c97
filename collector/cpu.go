package collector

import (
	"fmt"
	"strings"

	"github.com/viruchith/anomalyd/util"
)

// cpuTimes holds the aggregate jiffy counters from the first /proc/stat line.
type cpuTimes struct {
	user, nice, system, idle, iowait, irq, softirq, steal uint64
}

func (c cpuTimes) total() uint64 {
	return c.user + c.nice + c.system + c.idle + c.iowait + c.irq + c.softirq + c.steal
}

func (c cpuTimes) active() uint64 {
	return c.total() - c.idle - c.iowait
}

// readCPUTimes reads the aggregate "cpu " line from /proc/stat.
func readCPUTimes(procRoot string) (cpuTimes, error) {
	lines, err := util.ReadFileLines(procRoot + "/stat")
	if err != nil {
		return cpuTimes{}, fmt.Errorf("read %s/stat: %w", procRoot, err)
	}
	for _, line := range lines {
		if !strings.HasPrefix(line, "cpu ") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 9 {
			return cpuTimes{}, fmt.Errorf("unexpected %s/stat cpu line", procRoot)
		}
		return cpuTimes{
			user:    util.ParseUint64(fields[1]),
			nice:    util.ParseUint64(fields[2]),
			system:  util.ParseUint64(fields[3]),
			idle:    util.ParseUint64(fields[4]),
			iowait:  util.ParseUint64(fields[5]),
			irq:     util.ParseUint64(fields[6]),
			softirq: util.ParseUint64(fields[7]),
			steal:   util.ParseUint64(fields[8]),
		}, nil
	}
	return cpuTimes{}, fmt.Errorf("no cpu line in %s/stat", procRoot)
}

// readCPUFreqMHz averages the "cpu MHz" entries from /proc/cpuinfo.
// Returns 0 when the field is absent (common on ARM and in containers).
func readCPUFreqMHz(procRoot string) (float64, error) {
	lines, err := util.ReadFileLines(procRoot + "/cpuinfo")
	if err != nil {
		return 0, fmt.Errorf("read %s/cpuinfo: %w", procRoot, err)
	}
	var sum float64
	var n int
	for _, line := range lines {
		if !strings.HasPrefix(line, "cpu MHz") {
			continue
		}
		if idx := strings.Index(line, ":"); idx >= 0 {
			sum += util.ParseFloat64(line[idx+1:])
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return sum / float64(n), nil
}
