package bayes_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/headline-goat/launch-goat/internal/analysis"
	"github.com/headline-goat/launch-goat/internal/bayes"
	"github.com/headline-goat/launch-goat/internal/config"
	"github.com/headline-goat/launch-goat/internal/dataset"
)

func TestBetaBinomial_Reproducible(t *testing.T) {
	th := config.Default()
	c := analysis.Arm{Users: 1000, Conversions: 100}
	tr := analysis.Arm{Users: 1000, Conversions: 120}

	first, err := bayes.BetaBinomial(c, tr, th)
	require.NoError(t, err)
	second, err := bayes.BetaBinomial(c, tr, th)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Greater(t, first.ProbTreatmentBeatsControl, 0.8)
	assert.Equal(t, bayes.Posterior{Alpha: 101, Beta: 901}, *first.ControlPosterior)
	assert.Equal(t, bayes.Posterior{Alpha: 121, Beta: 881}, *first.TreatmentPosterior)
}

func TestBetaBinomial_SeedChangesDraws(t *testing.T) {
	c := analysis.Arm{Users: 200, Conversions: 20}
	tr := analysis.Arm{Users: 200, Conversions: 22}

	a := config.Default()
	b := config.Default()
	b.BayesSeed = 7

	ra, err := bayes.BetaBinomial(c, tr, a)
	require.NoError(t, err)
	rb, err := bayes.BetaBinomial(c, tr, b)
	require.NoError(t, err)
	assert.NotEqual(t, ra.ExpectedLoss, rb.ExpectedLoss)
}

func TestBetaBinomial_ClearLoserHasLowProbability(t *testing.T) {
	res, err := bayes.BetaBinomial(analysis.Arm{Users: 10000, Conversions: 1200}, analysis.Arm{Users: 10000, Conversions: 1000}, config.Default())
	require.NoError(t, err)

	assert.Less(t, res.ProbTreatmentBeatsControl, 0.01)
	assert.Greater(t, res.ExpectedLoss, 0.01)
}

func TestBetaBinomialMulti_ProbBeingBestSumsToOne(t *testing.T) {
	res, err := bayes.BetaBinomialMulti(analysis.Arm{Users: 1000, Conversions: 100}, []bayes.NamedArm{
		{Name: "a", Arm: analysis.Arm{Users: 1000, Conversions: 120}},
		{Name: "b", Arm: analysis.Arm{Users: 1000, Conversions: 90}},
		{Name: "c", Arm: analysis.Arm{Users: 1000, Conversions: 150}},
	}, config.Default())
	require.NoError(t, err)

	sum := 0.0
	for _, p := range res.ProbBeingBest {
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Len(t, res.ProbBeingBest, 4)
	assert.Contains(t, res.ProbBeingBest, "control")
	assert.Greater(t, res.ProbBeingBest["c"], 0.9)

	require.Contains(t, res.VsControl, "a")
	assert.Equal(t, bayes.Posterior{Alpha: 121, Beta: 881}, res.VsControl["a"].Posterior)
	assert.Less(t, res.VsControl["b"].ProbBeatsControl, 0.5)
	assert.Equal(t, bayes.Posterior{Alpha: 101, Beta: 901}, res.ControlPosterior)
}

func TestBetaBinomialMulti_Reproducible(t *testing.T) {
	arms := []bayes.NamedArm{{Name: "a", Arm: analysis.Arm{Users: 500, Conversions: 55}}}
	c := analysis.Arm{Users: 500, Conversions: 50}

	first, err := bayes.BetaBinomialMulti(c, arms, config.Default())
	require.NoError(t, err)
	second, err := bayes.BetaBinomialMulti(c, arms, config.Default())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestPosteriorOf_RejectsInvalidCounts(t *testing.T) {
	p, err := bayes.PosteriorOf(analysis.Arm{Users: 0, Conversions: 0})
	require.NoError(t, err)
	assert.Equal(t, bayes.Posterior{Alpha: 1, Beta: 1}, p)

	for _, a := range []analysis.Arm{
		{Users: 10, Conversions: 20},
		{Users: -1, Conversions: 0},
		{Users: 10, Conversions: -1},
	} {
		_, err := bayes.PosteriorOf(a)
		assert.ErrorIs(t, err, bayes.ErrInvalidArm, "%+v", a)
	}
}

func TestBetaBinomial_ConversionsAboveUsers(t *testing.T) {
	_, err := bayes.BetaBinomial(analysis.Arm{Users: 100, Conversions: 10}, analysis.Arm{Users: 10, Conversions: 20}, config.Default())
	assert.ErrorIs(t, err, bayes.ErrInvalidArm)

	_, err = bayes.BetaBinomialMulti(analysis.Arm{Users: 100, Conversions: 10}, []bayes.NamedArm{
		{Name: "a", Arm: analysis.Arm{Users: 100, Conversions: 12}},
		{Name: "b", Arm: analysis.Arm{Users: 10, Conversions: 20}},
	}, config.Default())
	assert.ErrorIs(t, err, bayes.ErrInvalidArm)
	assert.Contains(t, err.Error(), "b:")
}

func TestContinuous_ZeroStdErrIsDeterministic(t *testing.T) {
	th := config.Default()
	c := analysis.Sufficient{N: 10, Sum: 50, SumSq: 250}

	res := bayes.Continuous(c, analysis.Sufficient{N: 10, Sum: 60, SumSq: 360}, th)
	assert.Equal(t, 1.0, res.ProbTreatmentBeatsControl)
	assert.Equal(t, 0.0, res.ExpectedLoss)

	res = bayes.Continuous(c, c, th)
	assert.Equal(t, 0.0, res.ProbTreatmentBeatsControl)
}

func TestContinuous_Simulated(t *testing.T) {
	th := config.Default()
	c := analysis.Sufficient{N: 1000, Sum: 50000, SumSq: 2599900}
	tr := analysis.Sufficient{N: 1000, Sum: 52000, SumSq: 2803900}

	res := bayes.Continuous(c, tr, th)
	assert.Greater(t, res.ProbTreatmentBeatsControl, 0.99)
	assert.Equal(t, res, bayes.Continuous(c, tr, th))
}

func TestAnalyze_Dataset(t *testing.T) {
	tbl, err := dataset.ReadCSV(strings.NewReader("variant,users,conversions,revenue_sum,revenue_sum_sq\ncontrol,1000,100,50000,2599900\ntreatment,1000,120,52000,2803900\n"))
	require.NoError(t, err)
	ds, err := dataset.New(tbl, nil)
	require.NoError(t, err)

	res, err := bayes.Analyze(ds, config.Default())
	require.NoError(t, err)
	require.NotNil(t, res.Conversion)
	assert.Nil(t, res.Multivariant)
	assert.Contains(t, res.Continuous, "revenue")
}

func TestAnalyze_Multivariant(t *testing.T) {
	tbl, err := dataset.ReadCSV(strings.NewReader("variant,users,conversions\ncontrol,1000,100\na,1000,110\nb,1000,130\n"))
	require.NoError(t, err)
	ds, err := dataset.New(tbl, nil)
	require.NoError(t, err)

	res, err := bayes.Analyze(ds, config.Default())
	require.NoError(t, err)
	assert.Nil(t, res.Conversion)
	require.NotNil(t, res.Multivariant)
	assert.Len(t, res.Multivariant.VsControl, 2)
}
