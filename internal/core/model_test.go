package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBucketThreatLevelBoundaries(t *testing.T) {
	tests := []struct {
		confidence float64
		want       string
	}{
		{0.0, ThreatLevelLow},
		{0.49, ThreatLevelLow},
		{0.5, ThreatLevelMedium},
		{0.69, ThreatLevelMedium},
		{0.7, ThreatLevelHigh},
		{0.89, ThreatLevelHigh},
		{0.9, ThreatLevelCritical},
		{1.0, ThreatLevelCritical},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, BucketThreatLevel(tt.confidence), "confidence %v", tt.confidence)
	}
}

func TestBucketThreatLevelMonotone(t *testing.T) {
	rank := map[string]int{
		ThreatLevelLow:      0,
		ThreatLevelMedium:   1,
		ThreatLevelHigh:     2,
		ThreatLevelCritical: 3,
	}

	previous := 0
	for c := 0.0; c <= 1.0; c += 0.01 {
		current := rank[BucketThreatLevel(c)]
		assert.GreaterOrEqual(t, current, previous, "severity regressed at confidence %v", c)
		previous = current
	}
}
