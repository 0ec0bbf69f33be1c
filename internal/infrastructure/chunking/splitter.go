package chunking

import "strings"

// Splitter cuts text into overlapping word windows. Words is the window
// size, Overlap how many words consecutive windows share.
type Splitter struct {
	Words   int
	Overlap int
}

// NewSplitter validates the operating point. Non-positive sizes fall back
// to the 150/30 default; the overlap is clamped below the window so the
// walk always advances.
func NewSplitter(words, overlap int) *Splitter {
	if words <= 0 {
		words = 150
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= words {
		overlap = words / 5
	}
	return &Splitter{
		Words:   words,
		Overlap: overlap,
	}
}

// Split walks the word sequence with stride Words-Overlap and emits every
// window joined by single spaces, including the short trailing ones. A
// text of N words yields ceil(N/(Words-Overlap)) chunks.
func (s *Splitter) Split(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	step := s.Words - s.Overlap
	if step <= 0 {
		step = s.Words
	}

	out := make([]string, 0, len(words)/step+1)
	for i := 0; i < len(words); i += step {
		end := i + s.Words
		if end > len(words) {
			end = len(words)
		}
		chunk := strings.TrimSpace(strings.Join(words[i:end], " "))
		if chunk == "" {
			continue
		}
		out = append(out, chunk)
	}
	return out
}
