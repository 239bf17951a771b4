package danzohttp

import "fmt"

// DefaultChunkSize is both the slicing threshold and the size of every planned segment.
const DefaultChunkSize int64 = 2 * 1024 * 1024

// Span is a planned byte range [Start, Start+Length) of the remote resource.
type Span struct {
	Index  int
	Start  int64
	Length int64
}

func (s Span) End() int64 {
	return s.Start + s.Length
}

// FileName encodes index and bounds, so a later run with the same plan finds the same files.
func (s Span) FileName() string {
	return fmt.Sprintf("%d_%d_%d.temp", s.Index, s.Start, s.End())
}

// Plan splits total bytes into contiguous spans of chunkSize, the last one taking the
// remainder. Without range support, or at or below one chunk, the whole resource is a
// single span. A non-positive chunkSize selects DefaultChunkSize.
func Plan(total int64, canRange bool, chunkSize int64) []Span {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if total < 0 {
		total = 0
	}
	if !canRange || total <= chunkSize {
		return []Span{{Index: 0, Start: 0, Length: total}}
	}
	count := int((total + chunkSize - 1) / chunkSize)
	spans := make([]Span, 0, count)
	for i := range count {
		start := int64(i) * chunkSize
		spans = append(spans, Span{
			Index:  i,
			Start:  start,
			Length: min(chunkSize, total-start),
		})
	}
	return spans
}
