package badger

import (
	"encoding/binary"

	"github.com/poiesic/kexpand/core"
)

// Key prefixes for different data types
const (
	nodePrefix      = "kgnode:"
	locatorPrefix   = "kgloc:"
	edgePrefix      = "kgedge:"
	adjacencyPrefix = "kgadj:"
	historyPrefix   = "jobhist:"
	templatePrefix  = "tmpl:"
)

// appendID appends id in BigEndian order so lexicographic sort follows numeric order.
func appendID(buf []byte, id core.ID) []byte {
	return binary.BigEndian.AppendUint64(buf, uint64(id))
}

// makeNodeKey generates a key for a node by ID.
// Format: prefix:id
func makeNodeKey(id core.ID) []byte {
	return appendID([]byte(nodePrefix), id)
}

// makeLocatorKey generates the locator index key.
// Format: prefix:locator
func makeLocatorKey(locator string) []byte {
	return append([]byte(locatorPrefix), locator...)
}

// makeEdgeKey generates the key for the edge between a and b.
// The pair is stored in canonical order so each unordered pair has one key.
// Format: prefix:min:max
func makeEdgeKey(a, b core.ID) []byte {
	lo, hi := core.OrderedPair(a, b)
	return appendID(appendID([]byte(edgePrefix), lo), hi)
}

// makeAdjacencyKey generates an adjacency index entry from one endpoint to the other.
// Format: prefix:from:to
func makeAdjacencyKey(from, to core.ID) []byte {
	return appendID(appendID([]byte(adjacencyPrefix), from), to)
}

// makePartialAdjacencyKey generates a partial key for listing a node's neighbors.
// Format: prefix:from
func makePartialAdjacencyKey(from core.ID) []byte {
	return appendID([]byte(adjacencyPrefix), from)
}

// makeHistoryKey generates a key for one run of a job.
// Format: prefix:jobID:run
func makeHistoryKey(jobID string, run int) []byte {
	buf := append([]byte(historyPrefix), jobID...)
	buf = append(buf, ':')
	return binary.BigEndian.AppendUint32(buf, uint32(run))
}

// makePartialHistoryKey generates a partial key for every run of a job.
// Format: prefix:jobID:
func makePartialHistoryKey(jobID string) []byte {
	buf := append([]byte(historyPrefix), jobID...)
	return append(buf, ':')
}

// makeTemplateKey generates a key for a prompt template.
func makeTemplateKey(id string) []byte {
	return append([]byte(templatePrefix), id...)
}

// neighborFromAdjacencyKey extracts the target ID from an adjacency key.
func neighborFromAdjacencyKey(key []byte) core.ID {
	return core.ID(binary.BigEndian.Uint64(key[len(key)-8:]))
}
