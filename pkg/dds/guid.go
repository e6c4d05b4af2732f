package dds

import (
	"hash/fnv"
	"os"
	"sync/atomic"

	"github.com/odin-rtps/rtps/pkg/rtpstypes"
)

var participantCounter uint32

// NewGuidPrefix derives a GuidPrefix for a new participant process: four
// bytes from the FNV-1a hash of the host name, four from the process id,
// four from a process-local counter distinguishing participants created in
// the same process. This keeps prefixes stable enough to debug by eye while
// making collisions between independent hosts and processes unlikely
// without depending on a central allocator.
func NewGuidPrefix() rtpstypes.GuidPrefix {
	var prefix rtpstypes.GuidPrefix

	h := fnv.New32a()
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-host"
	}
	h.Write([]byte(hostname))
	hostSum := h.Sum32()

	pid := uint32(os.Getpid())
	seq := atomic.AddUint32(&participantCounter, 1)

	prefix[0] = byte(hostSum >> 24)
	prefix[1] = byte(hostSum >> 16)
	prefix[2] = byte(hostSum >> 8)
	prefix[3] = byte(hostSum)
	prefix[4] = byte(pid >> 24)
	prefix[5] = byte(pid >> 16)
	prefix[6] = byte(pid >> 8)
	prefix[7] = byte(pid)
	prefix[8] = byte(seq >> 24)
	prefix[9] = byte(seq >> 16)
	prefix[10] = byte(seq >> 8)
	prefix[11] = byte(seq)

	return prefix
}
