package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDropEmpty(t *testing.T) {
	assert.Equal(t, []string{"US", "DE"}, dropEmpty([]string{"US", "", "DE"}))
	assert.Empty(t, dropEmpty([]string{"", ""}))
	assert.Empty(t, dropEmpty(nil))
}

func TestPeakHour(t *testing.T) {
	var hourly [24]uint64
	assert.Equal(t, 0, peakHour(hourly))

	hourly[14] = 10
	hourly[9] = 7
	assert.Equal(t, 14, peakHour(hourly))

	// Ties resolve to the earliest hour.
	hourly[20] = 10
	assert.Equal(t, 14, peakHour(hourly))
}
