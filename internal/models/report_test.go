package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextDetectionStatus(t *testing.T) {
	tests := []struct {
		name         string
		previous     DetectionStatus
		presentInNew bool
		expected     DetectionStatus
	}{
		{name: "never seen, present", previous: "", presentInNew: true, expected: DetectionNew},
		{name: "new, still present", previous: DetectionNew, presentInNew: true, expected: DetectionUnresolved},
		{name: "unresolved, still present", previous: DetectionUnresolved, presentInNew: true, expected: DetectionUnresolved},
		{name: "resolved, reappears", previous: DetectionResolved, presentInNew: true, expected: DetectionReopened},
		{name: "reopened, still present", previous: DetectionReopened, presentInNew: true, expected: DetectionUnresolved},
		{name: "new, vanished", previous: DetectionNew, presentInNew: false, expected: DetectionResolved},
		{name: "unresolved, vanished", previous: DetectionUnresolved, presentInNew: false, expected: DetectionResolved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NextDetectionStatus(tt.previous, tt.presentInNew))
		})
	}
}

func TestDetectionStatusIsActive(t *testing.T) {
	assert.True(t, DetectionNew.IsActive())
	assert.True(t, DetectionUnresolved.IsActive())
	assert.True(t, DetectionReopened.IsActive())
	assert.False(t, DetectionResolved.IsActive())
	assert.False(t, DetectionOff.IsActive())
	assert.False(t, DetectionUnavailable.IsActive())
}

func TestReviewStatusIsSuppressed(t *testing.T) {
	assert.True(t, ReviewFalsePositive.IsSuppressed())
	assert.True(t, ReviewIntentional.IsSuppressed())
	assert.False(t, ReviewUnreviewed.IsSuppressed())
	assert.False(t, ReviewConfirmed.IsSuppressed())
}

func TestReportIsActive(t *testing.T) {
	r := Report{DetectionStatus: DetectionNew, ReviewStatus: ReviewUnreviewed}
	assert.True(t, r.IsActive())

	r.ReviewStatus = ReviewFalsePositive
	assert.False(t, r.IsActive())

	r.ReviewStatus = ReviewUnreviewed
	r.DetectionStatus = DetectionResolved
	assert.False(t, r.IsActive())
}

func TestParseReviewStatus(t *testing.T) {
	status, ok := ParseReviewStatus("false_positive")
	assert.True(t, ok)
	assert.Equal(t, ReviewFalsePositive, status)

	_, ok = ParseReviewStatus("nonsense")
	assert.False(t, ok)
}

func TestCompareSeverity(t *testing.T) {
	assert.Positive(t, CompareSeverity(SeverityCritical, SeverityLow))
	assert.Negative(t, CompareSeverity(SeverityStyle, SeverityMedium))
	assert.Zero(t, CompareSeverity(SeverityHigh, SeverityHigh))
}
