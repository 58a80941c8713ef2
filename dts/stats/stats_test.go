package stats_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dts-project/dts/stats"
)

func TestRecordTransferUpdatesSnapshot(t *testing.T) {
	s := stats.NewQueueStats("sci")
	start := time.Now()
	s.RecordTransfer(stats.TransferRecord{
		Filename: "obs001.fits",
		Size:     16 * 1024 * 1024,
		Start:    start,
		End:      start.Add(2 * time.Second),
	})

	snap := s.Snapshot()
	assert.Equal(t, "obs001.fits", snap.LastFilename)
	assert.Equal(t, int64(16*1024*1024), snap.LastSize)
	assert.Equal(t, int64(1), snap.TotalFiles)
	assert.Greater(t, snap.AvgRateMbps, 0.0)
}

func TestCountersIncrement(t *testing.T) {
	s := stats.NewQueueStats("sci")
	s.IncFlush()
	s.IncCancelled()
	s.IncFailed()
	s.IncError("boom")

	snap := s.Snapshot()
	assert.Equal(t, int64(1), snap.Flushes)
	assert.Equal(t, int64(1), snap.CancelledTransfer)
	assert.Equal(t, int64(1), snap.FailedTransfer)
	assert.Equal(t, int64(1), snap.ErrorCount)
	assert.Equal(t, []string{"boom"}, snap.RecentErrors)
}

func TestErrorRingIsBounded(t *testing.T) {
	s := stats.NewQueueStats("sci")
	for i := 0; i < 600; i++ {
		s.IncError("err")
	}
	snap := s.Snapshot()
	assert.LessOrEqual(t, len(snap.RecentErrors), 512)
}

func TestMBDivisorIsDecimal(t *testing.T) {
	assert.Equal(t, 1000.0*1000.0, stats.MBDivisor)
}
