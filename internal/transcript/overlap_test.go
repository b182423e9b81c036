package transcript

import "testing"

func TestOverlap(t *testing.T) {
	tests := []struct {
		name                           string
		aStart, aEnd, bStart, bEnd     float64
		want                           float64
	}{
		{"full containment", 1, 2, 0, 5, 1},
		{"partial", 0, 3, 2, 5, 1},
		{"touching endpoints", 0, 2, 2, 4, 0},
		{"disjoint", 0, 1, 3, 4, 0},
		{"identical", 1, 4, 1, 4, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Overlap(tt.aStart, tt.aEnd, tt.bStart, tt.bEnd); got != tt.want {
				t.Errorf("Overlap(%v,%v,%v,%v) = %v, want %v", tt.aStart, tt.aEnd, tt.bStart, tt.bEnd, got, tt.want)
			}
		})
	}
}

func TestSegmentWithin(t *testing.T) {
	seg := Segment{StartMS: 1000, EndMS: 2500}

	if !seg.Within(1.0, 2.5) {
		t.Error("expected segment to be within its exact bounds")
	}
	if !seg.Within(0, 10) {
		t.Error("expected segment to be within a wider window")
	}
	if seg.Within(1.5, 10) {
		t.Error("expected segment straddling the window start to be excluded")
	}
	if seg.Within(0, 2.0) {
		t.Error("expected segment straddling the window end to be excluded")
	}
}

func TestEndpointDistance(t *testing.T) {
	ss := SpeakerSegment{Start: 2, End: 4}

	if d := ss.EndpointDistance(1.5); d != 0.5 {
		t.Errorf("expected distance 0.5 before start, got %v", d)
	}
	if d := ss.EndpointDistance(3); d != 0 {
		t.Errorf("expected distance 0 inside, got %v", d)
	}
	if d := ss.EndpointDistance(4.75); d != 0.75 {
		t.Errorf("expected distance 0.75 after end, got %v", d)
	}
}
