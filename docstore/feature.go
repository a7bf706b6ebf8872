package docstore

import "strings"

// Feature represents optional binding behaviour as bit flags.
type Feature uint64

const (
	FeatureSequences   Feature = 1 << iota // engine assigns DBSeq and BytePosition
	FeatureChanges                         // ChangesSince and DocInfosBySequence
	FeatureCompaction                      // Compact reclaims space
	FeatureRelocate                        // Compact(target) writes to a new location
	FeatureAtomicBatch                     // SaveDocuments is all-or-nothing
	FeatureCompression                     // bodies may be stored compressed
)

var featureNames = []struct {
	f    Feature
	name string
}{
	{FeatureSequences, "Sequences"},
	{FeatureChanges, "Changes"},
	{FeatureCompaction, "Compaction"},
	{FeatureRelocate, "Relocate"},
	{FeatureAtomicBatch, "AtomicBatch"},
	{FeatureCompression, "Compression"},
}

// Has reports whether every bit of other is set in f.
func (f Feature) Has(other Feature) bool { return f&other == other }

func (f Feature) String() string {
	if f == 0 {
		return "None"
	}
	var parts []string
	for _, fn := range featureNames {
		if f&fn.f != 0 {
			parts = append(parts, fn.name)
		}
	}
	if len(parts) == 0 {
		return "Unknown"
	}
	return strings.Join(parts, "|")
}
