package async

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMemoryStats(t *testing.T) {
	total, available, err := getMemoryStats()
	require.NoError(t, err)
	assert.NotZero(t, total)
	assert.LessOrEqual(t, available, total)
}

func TestHostMetrics(t *testing.T) {
	m := HostMetrics()
	assert.Greater(t, m.MemoryTotalGB, 0.0)
	assert.GreaterOrEqual(t, m.MemoryPercent, 0.0)
	assert.LessOrEqual(t, m.MemoryPercent, 100.0)
}

func TestSampleProcess(t *testing.T) {
	usage, err := SampleProcess(os.Getpid())
	require.NoError(t, err)
	assert.Greater(t, usage.RSSMB, 0.0)
}

func TestRecommendedWorkers(t *testing.T) {
	tests := []struct {
		availableGB float64
		want        int
	}{
		{0.5, 1},
		{1.1, 1},
		{2.0, 4},
		{100, 64},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, recommendedWorkers(tt.availableGB), "available %.1fGB", tt.availableGB)
	}
}
