// Package chunker splits document text into overlapping windows suitable
// for embedding and retrieval.
package chunker

const (
	// DefaultChunkSize is the target chunk length in runes.
	DefaultChunkSize = 700

	// DefaultOverlap is the number of runes consecutive chunks share.
	DefaultOverlap = 100
)

// Options configures splitting behavior.
type Options struct {
	ChunkSize int // maximum span length in runes
	Overlap   int // runes shared between consecutive spans; must be < ChunkSize
}

// DefaultOptions returns the default splitting options.
func DefaultOptions() Options {
	return Options{ChunkSize: DefaultChunkSize, Overlap: DefaultOverlap}
}

// normalize applies defaults and clamps invalid parameters so Split is total.
func (o *Options) normalize() {
	if o.ChunkSize < 1 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.Overlap < 0 || o.Overlap >= o.ChunkSize {
		o.Overlap = 0
	}
}

// Split divides text into contiguous spans of at most opts.ChunkSize runes,
// with consecutive spans overlapping by opts.Overlap runes so context
// survives a chunk boundary. It is a pure function of its inputs:
//
//   - text shorter than ChunkSize yields a single span equal to the input
//   - empty text yields no spans
//   - concatenating each span minus its overlap prefix reconstructs text
//
// Splitting operates on runes so multi-byte characters are never cut.
func Split(text string, opts Options) []string {
	opts.normalize()

	if text == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= opts.ChunkSize {
		return []string{text}
	}

	step := opts.ChunkSize - opts.Overlap
	spans := make([]string, 0, (len(runes)+step-1)/step)

	for start := 0; start < len(runes); start += step {
		end := start + opts.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		spans = append(spans, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}

	return spans
}
