package types_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shingmt/prp-disasm/internal/types"
	"github.com/stretchr/testify/require"
)

func TestStatusString(t *testing.T) {
	require.Equal(t, "COMPLETE", types.StatusComplete.String())
	require.Equal(t, "PARTIAL_TIMEOUT", types.StatusPartialTimeout.String())
	require.Equal(t, "PARTIAL_ERROR", types.StatusPartialError.String())
	require.Equal(t, "FAILED", types.StatusFailed.String())
}

func TestParseStatus(t *testing.T) {
	s, err := types.ParseStatus("complete")
	require.NoError(t, err)
	require.Equal(t, types.StatusComplete, s)

	s, err = types.ParseStatus("  partial_timeout ")
	require.NoError(t, err)
	require.Equal(t, types.StatusPartialTimeout, s)

	_, err = types.ParseStatus("bogus")
	require.Error(t, err)
}

func TestStatusDowngradeIsMonotonic(t *testing.T) {
	s := types.StatusComplete
	s = s.Downgrade(types.StatusPartialTimeout)
	require.Equal(t, types.StatusPartialTimeout, s)

	// A later Complete never upgrades the status back.
	s = s.Downgrade(types.StatusComplete)
	require.Equal(t, types.StatusPartialTimeout, s)

	s = s.Downgrade(types.StatusFailed)
	require.Equal(t, types.StatusFailed, s)
	s = s.Downgrade(types.StatusPartialError)
	require.Equal(t, types.StatusFailed, s)
}

func TestReasonEngineFailure(t *testing.T) {
	require.True(t, types.ReasonEngineUnavail.EngineFailure())
	require.True(t, types.ReasonTimedOut.EngineFailure())
	require.True(t, types.ReasonEngineCrashed.EngineFailure())

	require.False(t, types.ReasonNone.EngineFailure())
	require.False(t, types.ReasonSampleTooLarge.EngineFailure())
	require.False(t, types.ReasonMalformedOutput.EngineFailure())
}

func TestStatusJSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(types.StatusPartialError)
	require.NoError(t, err)
	require.JSONEq(t, `"PARTIAL_ERROR"`, string(data))

	var s types.Status
	require.NoError(t, json.Unmarshal(data, &s))
	require.Equal(t, types.StatusPartialError, s)
}

func TestReportMarshalDurationMS(t *testing.T) {
	r := types.AnalysisReport{
		SampleHash: "abc",
		Entropy:    types.EntropyUnknown,
		Duration:   1500 * time.Millisecond,
	}
	data, err := json.Marshal(r)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.EqualValues(t, 1500, decoded["duration_ms"])
	require.EqualValues(t, -1, decoded["entropy"])
	require.Equal(t, "COMPLETE", decoded["status"])
}

func TestSignalByName(t *testing.T) {
	r := types.AnalysisReport{
		Signals: []types.Signal{
			{Name: "packed", Score: 0.79},
			{Name: "stripped", Score: 1},
		},
	}
	sig, ok := r.SignalByName("packed")
	require.True(t, ok)
	require.InDelta(t, 0.79, sig.Score, 1e-9)

	_, ok = r.SignalByName("missing")
	require.False(t, ok)
}
