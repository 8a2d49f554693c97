package collector

import (
	"fmt"

	"github.com/viruchith/anomalyd/util"
)

// memInfo holds the meminfo fields the sampler needs, in bytes.
type memInfo struct {
	total     uint64
	available uint64
}

func (m memInfo) usedPercent() float64 {
	if m.total == 0 {
		return 0
	}
	return float64(m.total-m.available) / float64(m.total) * 100
}

func (m memInfo) availableGB() float64 {
	return float64(m.available) / (1 << 30)
}

// readMemInfo reads MemTotal and MemAvailable from /proc/meminfo.
func readMemInfo(procRoot string) (memInfo, error) {
	kv, err := util.ParseKeyValueFile(procRoot + "/meminfo")
	if err != nil {
		return memInfo{}, fmt.Errorf("read %s/meminfo: %w", procRoot, err)
	}
	return memInfo{
		total:     parseKB(kv["MemTotal"]),
		available: parseKB(kv["MemAvailable"]),
	}, nil
}

// parseKB parses a meminfo value like "1234 kB" and returns bytes.
func parseKB(s string) uint64 {
	fields := []byte(s)
	end := len(fields)
	for end > 0 && (fields[end-1] == 'B' || fields[end-1] == 'k' || fields[end-1] == ' ') {
		end--
	}
	return util.ParseUint64(s[:end]) * 1024
}
