package reduce

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateParallelFolds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		foldTime       float64
		mergeTime      float64
		groupSize      int
		foldBatchSize  int
		mergeBatchSize int
		want           int
	}{
		{
			name:     "balanced",
			foldTime: 2.0, mergeTime: 1.0,
			groupSize: 50, foldBatchSize: 5, mergeBatchSize: 8,
			// 2*50*ln(8)/(5*1) = 41.58 → 41
			want: int(2.0 * 50 * math.Log(8) / 5),
		},
		{
			name:     "merge batch of one floors at a single lane",
			foldTime: 10.0, mergeTime: 0.1,
			groupSize: 1000, foldBatchSize: 10, mergeBatchSize: 1,
			want: 1,
		},
		{
			name:     "slow merges throttle lanes",
			foldTime: 1.0, mergeTime: 100.0,
			groupSize: 100, foldBatchSize: 10, mergeBatchSize: 4,
			want: 1,
		},
		{
			name:     "tiny group still gets a lane",
			foldTime: 1.0, mergeTime: 1.0,
			groupSize: 1, foldBatchSize: 10, mergeBatchSize: 2,
			want: 1,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := estimateParallelFolds(tc.foldTime, tc.mergeTime,
				tc.groupSize, tc.foldBatchSize, tc.mergeBatchSize)

			assert.Equal(t, tc.want, got)
			assert.GreaterOrEqual(t, got, 1)
		})
	}
}
