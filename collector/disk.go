package collector

import (
	"fmt"
	"strings"

	"github.com/viruchith/anomalyd/util"
)

const sectorSize = 512

// readDiskBytes sums cumulative read/written bytes across whole-disk
// devices in /proc/diskstats.
func readDiskBytes(procRoot string) (readBytes, writeBytes uint64, err error) {
	lines, err := util.ReadFileLines(procRoot + "/diskstats")
	if err != nil {
		return 0, 0, fmt.Errorf("read %s/diskstats: %w", procRoot, err)
	}
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) < 14 {
			continue
		}
		if !isWholeDisk(fields[2]) {
			continue
		}
		readBytes += util.ParseUint64(fields[5]) * sectorSize
		writeBytes += util.ParseUint64(fields[9]) * sectorSize
	}
	return readBytes, writeBytes, nil
}

// isWholeDisk returns true if the name looks like a whole disk device
// rather than a partition or loop device.
func isWholeDisk(name string) bool {
	if strings.HasPrefix(name, "loop") || strings.HasPrefix(name, "ram") {
		return false
	}
	// NVMe: nvme0n1 is a disk, nvme0n1p1 is a partition.
	if strings.HasPrefix(name, "nvme") {
		return !strings.Contains(name[4:], "p")
	}
	// sd*, vd*, xvd*, hd*: a disk has exactly one trailing letter.
	for _, prefix := range []string{"sd", "vd", "xvd", "hd"} {
		if strings.HasPrefix(name, prefix) {
			suffix := name[len(prefix):]
			return len(suffix) == 1 && suffix[0] >= 'a' && suffix[0] <= 'z'
		}
	}
	return strings.HasPrefix(name, "dm-") || strings.HasPrefix(name, "mmcblk") && !strings.Contains(name, "p")
}
