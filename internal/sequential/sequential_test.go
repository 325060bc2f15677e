package sequential_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/headline-goat/launch-goat/internal/sequential"
)

func TestAlphaSpending_FullInformationSpendsAlpha(t *testing.T) {
	for _, bt := range []sequential.BoundaryType{sequential.OBrienFleming, sequential.Pocock} {
		for _, alpha := range []float64{0.01, 0.05, 0.1} {
			got, err := sequential.AlphaSpending(1.0, alpha, bt)
			require.NoError(t, err)
			assert.Equal(t, alpha, got, "%s alpha=%v", bt, alpha)
		}
	}
}

func TestAlphaSpending_Increasing(t *testing.T) {
	for _, bt := range []sequential.BoundaryType{sequential.OBrienFleming, sequential.Pocock} {
		prev := 0.0
		for _, f := range []float64{0.1, 0.25, 0.5, 0.75, 0.9, 1.0} {
			got, err := sequential.AlphaSpending(f, 0.05, bt)
			require.NoError(t, err)
			assert.Greater(t, got, prev, "%s t=%v", bt, f)
			prev = got
		}
	}
}

func TestAlphaSpending_OBrienFlemingSpendsLittleEarly(t *testing.T) {
	obf, err := sequential.AlphaSpending(0.2, 0.05, sequential.OBrienFleming)
	require.NoError(t, err)
	pocock, err := sequential.AlphaSpending(0.2, 0.05, sequential.Pocock)
	require.NoError(t, err)

	assert.Less(t, obf, 0.001)
	assert.Less(t, obf, pocock)
}

func TestAlphaSpending_InvalidArguments(t *testing.T) {
	for _, f := range []float64{0, -0.1, 1.1} {
		_, err := sequential.AlphaSpending(f, 0.05, sequential.OBrienFleming)
		assert.ErrorIs(t, err, sequential.ErrInvalidArgument)
	}
	_, err := sequential.AlphaSpending(0.5, 0.05, "triangular")
	assert.ErrorIs(t, err, sequential.ErrInvalidArgument)
}

func TestCalculateBoundaries_OBrienFlemingStrictlyDecreasing(t *testing.T) {
	looks, err := sequential.CalculateBoundaries(5, nil, 0.05, sequential.OBrienFleming)
	require.NoError(t, err)
	require.Len(t, looks, 5)

	for k := 1; k < len(looks); k++ {
		assert.Less(t, looks[k].ZBoundary, looks[k-1].ZBoundary, "look %d", k+1)
	}
	assert.InDelta(t, 0.05, looks[4].CumulativeAlpha, 1e-12)
	assert.Equal(t, 1.0, looks[4].InfoFraction)
}

func TestCalculateBoundaries_SingleLook(t *testing.T) {
	for _, bt := range []sequential.BoundaryType{sequential.OBrienFleming, sequential.Pocock} {
		looks, err := sequential.CalculateBoundaries(1, nil, 0.05, bt)
		require.NoError(t, err)
		assert.InDelta(t, 1.96, looks[0].ZBoundary, 0.001)
	}
}

func TestCalculateBoundaries_PocockNearlyFlat(t *testing.T) {
	looks, err := sequential.CalculateBoundaries(5, nil, 0.05, sequential.Pocock)
	require.NoError(t, err)

	lo, hi := looks[0].ZBoundary, looks[0].ZBoundary
	for _, l := range looks {
		lo = min(lo, l.ZBoundary)
		hi = max(hi, l.ZBoundary)
	}
	assert.Less(t, hi-lo, 0.5)
}

func TestCalculateBoundaries_IncrementsSumToAlpha(t *testing.T) {
	looks, err := sequential.CalculateBoundaries(4, []float64{0.3, 0.5, 0.8, 1.0}, 0.05, sequential.Pocock)
	require.NoError(t, err)

	sum := 0.0
	for _, l := range looks {
		sum += l.AlphaSpent
		assert.Equal(t, l.AlphaSpent, l.PBoundary)
	}
	assert.InDelta(t, 0.05, sum, 1e-12)
}

func TestCalculateBoundaries_InvalidArguments(t *testing.T) {
	_, err := sequential.CalculateBoundaries(0, nil, 0.05, sequential.OBrienFleming)
	assert.ErrorIs(t, err, sequential.ErrInvalidArgument)

	_, err = sequential.CalculateBoundaries(3, []float64{0.5, 1.0}, 0.05, sequential.OBrienFleming)
	assert.ErrorIs(t, err, sequential.ErrInvalidArgument)
}

func TestBuildInfoFractions(t *testing.T) {
	f := sequential.BuildInfoFractions(3, 5, 0.5, []sequential.PreviousLook{{Look: 1, InfoFraction: 0.1}, {Look: 2, InfoFraction: 0.3}})
	assert.InDeltaSlice(t, []float64{0.1, 0.3, 0.5, 0.75, 1.0}, f, 1e-12)

	f = sequential.BuildInfoFractions(2, 4, 0.4, nil)
	assert.InDeltaSlice(t, []float64{0.25, 0.4, 0.7, 1.0}, f, 1e-12)
}

func TestBuildInfoFractions_ForcedIncreasing(t *testing.T) {
	f := sequential.BuildInfoFractions(2, 5, 0.4, []sequential.PreviousLook{{Look: 1, InfoFraction: 0.6}})

	for k := 1; k < len(f); k++ {
		assert.Greater(t, f[k], f[k-1])
	}
	assert.Equal(t, 1.0, f[len(f)-1])
}

func plan(k int) sequential.Plan {
	return sequential.Plan{MaxLooks: k, Alpha: 0.05, BoundaryType: sequential.OBrienFleming}
}

func TestCheckSequential_Decisions(t *testing.T) {
	res, err := sequential.CheckSequential(5.0, 1, 0.2, plan(5))
	require.NoError(t, err)
	assert.True(t, res.CanStop)
	assert.Equal(t, sequential.RejectNull, res.Decision)
	assert.Contains(t, res.Message, "Look 1/5")

	res, err = sequential.CheckSequential(-2.0, 1, 0.2, plan(5))
	require.NoError(t, err)
	assert.False(t, res.CanStop)
	assert.Equal(t, sequential.Continue, res.Decision)

	res, err = sequential.CheckSequential(1.0, 5, 1.0, plan(5))
	require.NoError(t, err)
	assert.True(t, res.CanStop)
	assert.Equal(t, sequential.FailToReject, res.Decision)
	assert.Contains(t, res.Message, "final")
}

func TestCheckSequential_NegativeZUsesAbsoluteValue(t *testing.T) {
	res, err := sequential.CheckSequential(-5.0, 1, 0.2, plan(5))
	require.NoError(t, err)
	assert.Equal(t, sequential.RejectNull, res.Decision)
	assert.Equal(t, -5.0, res.ZStat)
}

func TestCheckSequential_LookOutOfRange(t *testing.T) {
	_, err := sequential.CheckSequential(1, 0, 0.2, plan(5))
	assert.ErrorIs(t, err, sequential.ErrInvalidArgument)

	_, err = sequential.CheckSequential(1, 6, 0.2, plan(5))
	assert.ErrorIs(t, err, sequential.ErrInvalidArgument)
}

func TestAnalyzeSequential(t *testing.T) {
	res, err := sequential.AnalyzeSequential(sequential.Input{
		ControlUsers: 5000, ControlConversions: 500,
		TreatmentUsers: 5000, TreatmentConversions: 600,
		TargetSampleSize: 20000,
		CurrentLook:      2,
		Plan:             plan(4),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(10000), res.Progress.CurrentSample)
	assert.Equal(t, 0.5, res.Progress.InfoFraction)
	assert.Equal(t, 50.0, res.Progress.Percentage)

	assert.InDelta(t, 0.02, res.Primary.AbsoluteLift, 1e-12)
	require.NotNil(t, res.Primary.RelativeLift)
	assert.InDelta(t, 0.2, *res.Primary.RelativeLift, 1e-9)
	assert.InDelta(t, 3.196, res.Primary.ZStat, 0.01)
	assert.True(t, res.Primary.IsSignificant)

	assert.Equal(t, sequential.RejectNull, res.Result.Decision)
	require.Len(t, res.Boundaries, 4)
	assert.Equal(t, 1.0, res.Boundaries[3].InfoFraction)
}

func TestAnalyzeSequential_NoDataYet(t *testing.T) {
	res, err := sequential.AnalyzeSequential(sequential.Input{
		TargetSampleSize: 1000,
		CurrentLook:      1,
		Plan:             plan(3),
	})
	require.NoError(t, err)

	assert.Equal(t, 1e-6, res.Progress.InfoFraction)
	assert.Equal(t, 0.0, res.Primary.ZStat)
	assert.Nil(t, res.Primary.RelativeLift)
	assert.Equal(t, sequential.Continue, res.Result.Decision)
}

func TestInfoFraction(t *testing.T) {
	assert.Equal(t, 1.0, sequential.InfoFraction(5000, 0))
	assert.Equal(t, 1.0, sequential.InfoFraction(5000, 1000))
	assert.Equal(t, 0.25, sequential.InfoFraction(250, 1000))
}

func TestParseBoundaryType(t *testing.T) {
	bt, err := sequential.ParseBoundaryType("")
	require.NoError(t, err)
	assert.Equal(t, sequential.OBrienFleming, bt)

	_, err = sequential.ParseBoundaryType("linear")
	assert.ErrorIs(t, err, sequential.ErrInvalidArgument)
}

func TestInput_Validate(t *testing.T) {
	valid := sequential.Input{
		ControlUsers: 5000, ControlConversions: 500,
		TreatmentUsers: 5000, TreatmentConversions: 600,
		TargetSampleSize: 20000, CurrentLook: 2,
		Plan: sequential.Plan{MaxLooks: 4, Alpha: 0.05, BoundaryType: sequential.Pocock},
	}
	require.NoError(t, valid.Validate())

	for name, mutate := range map[string]func(*sequential.Input){
		"max_looks":   func(in *sequential.Input) { in.MaxLooks = 0 },
		"alpha":       func(in *sequential.Input) { in.Alpha = 1 },
		"look":        func(in *sequential.Input) { in.CurrentLook = 0 },
		"conversions": func(in *sequential.Input) { in.TreatmentConversions = 6000 },
	} {
		in := valid
		mutate(&in)
		assert.ErrorIs(t, in.Validate(), sequential.ErrInvalidArgument, name)
	}
}
