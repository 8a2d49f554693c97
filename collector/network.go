package collector

import (
	"fmt"
	"strings"

	"github.com/viruchith/anomalyd/util"
)

// readNetBytes sums cumulative sent/received bytes across all interfaces
// except loopback in /proc/net/dev.
func readNetBytes(procRoot string) (sentBytes, recvBytes uint64, err error) {
	lines, err := util.ReadFileLines(procRoot + "/net/dev")
	if err != nil {
		return 0, 0, fmt.Errorf("read %s/net/dev: %w", procRoot, err)
	}
	for _, line := range lines {
		if strings.Contains(line, "|") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		name := strings.TrimSpace(parts[0])
		if name == "lo" {
			continue
		}
		fields := strings.Fields(parts[1])
		if len(fields) < 16 {
			continue
		}
		recvBytes += util.ParseUint64(fields[0])
		sentBytes += util.ParseUint64(fields[8])
	}
	return sentBytes, recvBytes, nil
}
