package recognition

import "strings"

// Merge computes the live transcript for a single event: the final segments
// of the event if there are any, otherwise its interim segments, joined in
// index order. Earlier events never contribute.
func Merge(evt Event) TranscriptState {
	start := evt.ResultIndex
	if start < 0 {
		start = 0
	}
	if start > len(evt.Results) {
		start = len(evt.Results)
	}

	var final, interim strings.Builder
	for _, seg := range evt.Results[start:] {
		if seg.Final {
			final.WriteString(seg.Transcript)
		} else {
			interim.WriteString(seg.Transcript)
		}
	}
	if final.Len() > 0 {
		return TranscriptState{LiveText: final.String(), IsFinal: true}
	}
	return TranscriptState{LiveText: interim.String()}
}
