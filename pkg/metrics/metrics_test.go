package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveTransferLabelsByOutcome(t *testing.T) {
	m := New()
	m.ObserveTransfer(nil)
	m.ObserveTransfer(errors.New("boom"))

	require.Equal(t, float64(1), testutil.ToFloat64(m.TransferTotal.WithLabelValues("ok")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.TransferTotal.WithLabelValues("failed")))
}

func TestSetDataSizeAndEntryCount(t *testing.T) {
	m := New()
	m.SetDataSize(4096)
	m.SetEntryCount(3)

	require.Equal(t, float64(4096), testutil.ToFloat64(m.JournalDataSizeBytes))
	require.Equal(t, float64(3), testutil.ToFloat64(m.JournalEntryCount))
}

func TestObserveEviction(t *testing.T) {
	m := New()
	m.ObserveEviction()
	m.ObserveEviction()

	require.Equal(t, float64(2), testutil.ToFloat64(m.JanitorEvictionsTotal))
}
