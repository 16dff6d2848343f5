package pipeline

import (
	"errors"
	"testing"
)

func TestAggregate(t *testing.T) {
	tests := []struct {
		name      string
		fragments []Fragment
		expected  string
	}{
		{
			name:      "two words",
			fragments: []Fragment{{Index: 0, Text: "Hello"}, {Index: 1, Text: "world"}},
			expected:  "Hello world",
		},
		{
			name:      "model whitespace",
			fragments: []Fragment{{Index: 0, Text: " Hello there. "}, {Index: 1, Text: "\nGeneral Kenobi.\n"}},
			expected:  "Hello there. General Kenobi.",
		},
		{
			name:      "leading spaces collapse to one separator",
			fragments: []Fragment{{Index: 0, Text: " Hello"}, {Index: 1, Text: " world"}},
			expected:  "Hello world",
		},
		{
			name:      "silent segment",
			fragments: []Fragment{{Index: 0, Text: "one"}, {Index: 1, Text: "  "}, {Index: 2, Text: "three"}},
			expected:  "one three",
		},
		{
			name:      "failed placeholder",
			fragments: []Fragment{{Index: 0, Text: "one"}, {Index: 1, Failed: true, Error: "boom"}, {Index: 2, Text: "three"}},
			expected:  "one three",
		},
		{
			name:      "single fragment",
			fragments: []Fragment{{Index: 0, Text: "only"}},
			expected:  "only",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Aggregate(tt.fragments, len(tt.fragments))
			if err != nil {
				t.Fatalf("Aggregate failed: %v", err)
			}
			if got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestAggregateIsIdempotent(t *testing.T) {
	fragments := []Fragment{{Index: 0, Text: "the quick"}, {Index: 1, Text: "brown fox "}, {Index: 2, Text: " jumps"}}

	first, err := Aggregate(fragments, 3)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	second, err := Aggregate(fragments, 3)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if first != second {
		t.Errorf("Expected identical output, got %q and %q", first, second)
	}
}

func TestAggregateIncomplete(t *testing.T) {
	tests := []struct {
		name      string
		fragments []Fragment
		segments  int
	}{
		{name: "missing fragment", fragments: []Fragment{{Index: 0, Text: "a"}}, segments: 2},
		{name: "extra fragment", fragments: []Fragment{{Index: 0, Text: "a"}, {Index: 1, Text: "b"}}, segments: 1},
		{name: "out of order", fragments: []Fragment{{Index: 1, Text: "b"}, {Index: 0, Text: "a"}}, segments: 2},
		{name: "gap", fragments: []Fragment{{Index: 0, Text: "a"}, {Index: 2, Text: "c"}}, segments: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Aggregate(tt.fragments, tt.segments)
			var incomplete *IncompleteTranscriptError
			if !errors.As(err, &incomplete) {
				t.Fatalf("Expected IncompleteTranscriptError, got %v", err)
			}
			if Kind(err) != KindIncompleteTranscript {
				t.Errorf("Expected kind %s, got %s", KindIncompleteTranscript, Kind(err))
			}
		})
	}
}
