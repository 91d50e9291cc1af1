package texttospeech

import (
	"iter"
	"strings"
)

const sentenceTerminators = ".!?;\n。！？；…"

// Sentences regroups text deltas into sentences so that adapters which
// synthesize discrete requests get natural prosody. Trailing text without a
// terminator is yielded once the input ends.
func Sentences(deltas iter.Seq[string]) iter.Seq[string] {
	return func(yield func(string) bool) {
		var pending strings.Builder

		for delta := range deltas {
			for _, r := range delta {
				pending.WriteRune(r)
				if !strings.ContainsRune(sentenceTerminators, r) {
					continue
				}

				sentence := strings.TrimSpace(pending.String())
				pending.Reset()
				if sentence == "" {
					continue
				}
				if !yield(sentence) {
					return
				}
			}
		}

		if rest := strings.TrimSpace(pending.String()); rest != "" {
			yield(rest)
		}
	}
}
