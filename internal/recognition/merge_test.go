package recognition

import "testing"

func TestMerge(t *testing.T) {
	tests := []struct {
		name string
		evt  Event
		want TranscriptState
	}{
		{
			name: "empty event",
			evt:  Event{},
			want: TranscriptState{},
		},
		{
			name: "interim only",
			evt:  Event{Results: []Segment{{Transcript: "hel"}, {Transcript: "lo"}}},
			want: TranscriptState{LiveText: "hello"},
		},
		{
			name: "final beats interim",
			evt: Event{Results: []Segment{
				{Transcript: "good ", Final: true},
				{Transcript: "mor"},
				{Transcript: "ning", Final: true},
			}},
			want: TranscriptState{LiveText: "good ning", IsFinal: true},
		},
		{
			name: "only segments from result index",
			evt: Event{ResultIndex: 1, Results: []Segment{
				{Transcript: "old sentence", Final: true},
				{Transcript: "new words"},
			}},
			want: TranscriptState{LiveText: "new words"},
		},
		{
			name: "result index past the end",
			evt:  Event{ResultIndex: 5, Results: []Segment{{Transcript: "x", Final: true}}},
			want: TranscriptState{},
		},
		{
			name: "negative result index",
			evt:  Event{ResultIndex: -2, Results: []Segment{{Transcript: "x"}}},
			want: TranscriptState{LiveText: "x"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Merge(tt.evt); got != tt.want {
				t.Fatalf("Merge() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestMergeIgnoresHistory(t *testing.T) {
	events := []Event{
		{Results: []Segment{{Transcript: "one", Final: true}}},
		{ResultIndex: 1, Results: []Segment{{Transcript: "one", Final: true}, {Transcript: "tw"}}},
		{ResultIndex: 1, Results: []Segment{{Transcript: "one", Final: true}, {Transcript: "two", Final: true}}},
	}
	want := []string{"one", "tw", "two"}
	for i, evt := range events {
		if got := Merge(evt).LiveText; got != want[i] {
			t.Fatalf("event %d: got %q, want %q", i, got, want[i])
		}
	}
}
