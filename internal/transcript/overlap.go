package transcript

import "math"

// Overlap returns the shared extent in seconds of the intervals [aStart,aEnd]
// and [bStart,bEnd], or 0 if they do not overlap.
func Overlap(aStart, aEnd, bStart, bEnd float64) float64 {
	start := math.Max(aStart, bStart)
	end := math.Min(aEnd, bEnd)
	if end <= start {
		return 0
	}
	return end - start
}

// Seconds returns the segment's interval converted from milliseconds.
func (s Segment) Seconds() (start, end float64) {
	return float64(s.StartMS) / 1000.0, float64(s.EndMS) / 1000.0
}

// Within reports whether the segment's interval lies fully inside
// [start, end] seconds.
func (s Segment) Within(start, end float64) bool {
	segStart, segEnd := s.Seconds()
	return segStart >= start && segEnd <= end
}

// Within reports whether the speaker segment's interval lies fully inside
// [start, end] seconds.
func (s SpeakerSegment) Within(start, end float64) bool {
	return s.Start >= start && s.End <= end
}

// EndpointDistance returns the minimum distance from point t to either
// endpoint of the speaker segment.
func (s SpeakerSegment) EndpointDistance(t float64) float64 {
	return math.Min(math.Abs(t-s.Start), math.Abs(t-s.End))
}
