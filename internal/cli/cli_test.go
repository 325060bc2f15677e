package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/headline-goat/launch-goat/internal/config"
	"github.com/headline-goat/launch-goat/internal/dataset"
	"github.com/headline-goat/launch-goat/internal/report"
	"github.com/headline-goat/launch-goat/internal/sequential"
	"github.com/headline-goat/launch-goat/internal/store"
	"github.com/headline-goat/launch-goat/internal/testutil"
)

const resultsCSV = `variant,users,conversions,error_count
control,10000,1000,10
treatment,10000,1200,15
`

// execute runs the root command. Flag values persist between runs, so
// every test passes the flags it depends on.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func decodeJSON(t *testing.T, out string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &m), out)
	return m
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestCreateListWinner(t *testing.T) {
	db := filepath.Join(t.TempDir(), "lg.db")

	out, err := execute(t, "create", "checkout", "--variants", "control, treatment", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Created experiment 'checkout' with 2 variants")
	assert.Contains(t, out, "0: control (control)")

	_, err = execute(t, "create", "checkout", "--variants", "a,b", "--db", db)
	assert.Error(t, err, "duplicate name")

	_, err = execute(t, "create", "solo", "--variants", "only", "--db", db)
	assert.Error(t, err)

	out, err = execute(t, "list", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "checkout")
	assert.Contains(t, out, "RUNNING")

	out, err = execute(t, "winner", "checkout", "--variant", "1", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, `variant 1 ("treatment")`)

	_, err = execute(t, "winner", "checkout", "--variant", "1", "--db", db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not running")

	s, err := store.Open(db)
	require.NoError(t, err)
	defer s.Close()
	exp, err := s.GetExperiment(context.Background(), "checkout")
	require.NoError(t, err)
	assert.Equal(t, store.StateCompleted, exp.State)
	require.NotNil(t, exp.WinnerVariant)
	assert.Equal(t, 1, *exp.WinnerVariant)
}

func TestWinner_InvalidVariant(t *testing.T) {
	db := filepath.Join(t.TempDir(), "lg.db")
	_, err := execute(t, "create", "hero", "--variants", "control,treatment", "--db", db)
	require.NoError(t, err)

	_, err = execute(t, "winner", "hero", "--variant", "5", "--db", db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid variant index")
}

func TestAnalyze(t *testing.T) {
	path := writeFile(t, "checkout.csv", resultsCSV)

	out, err := execute(t, "analyze", path, "--no-bayes", "-o", "json", "--db", filepath.Join(t.TempDir(), "lg.db"))
	require.NoError(t, err)

	rep := decodeJSON(t, out)
	assert.Equal(t, "checkout", rep["name"])
	assert.Equal(t, report.ModeTwoVariant, rep["mode"])
	assert.Equal(t, "Launch", rep["decision"].(map[string]any)["decision"])
}

func TestAnalyze_MissingFile(t *testing.T) {
	_, err := execute(t, "analyze", filepath.Join(t.TempDir(), "nope.csv"), "-o", "json")
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	path := writeFile(t, "data.csv", resultsCSV)

	out, err := execute(t, "health", path, "-o", "json")
	require.NoError(t, err)
	assert.Equal(t, "Healthy", decodeJSON(t, out)["overall_status"])
}

func TestBayes_BlockedDataset(t *testing.T) {
	path := writeFile(t, "bad.csv", "variant,users,conversions\ncontrol,100,10\ntreatment,10,20\n")

	out, err := execute(t, "bayes", path, "--split", "1,1", "-o", "json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conversions exceed users")
	assert.Equal(t, "Blocked", decodeJSON(t, out)["overall_status"])

	path = writeFile(t, "data.csv", resultsCSV)
	out, err = execute(t, "bayes", path, "--split", "1,1", "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, decodeJSON(t, out), "conversion")
}

func TestPower(t *testing.T) {
	out, err := execute(t, "power", "conversion", "--baseline", "0.2", "--mde", "0.1", "-o", "json")
	require.NoError(t, err)

	res := decodeJSON(t, out)
	n := res["control_sample_size"].(float64)
	assert.GreaterOrEqual(t, n, 6000.0)
	assert.LessOrEqual(t, n, 7000.0)

	_, err = execute(t, "power", "ratio", "-o", "json")
	assert.Error(t, err)
}

func TestSequential(t *testing.T) {
	out, err := execute(t, "sequential",
		"--control-users", "5000", "--control-conversions", "500",
		"--treatment-users", "5000", "--treatment-conversions", "600",
		"--target-sample-size", "20000", "--look", "2", "--max-looks", "4",
		"-o", "json")
	require.NoError(t, err)

	res := decodeJSON(t, out)
	assert.Equal(t, "reject_null", res["sequential_result"].(map[string]any)["decision"])
}

func TestSequential_RejectsInvalidParameters(t *testing.T) {
	base := []string{"sequential",
		"--control-users", "5000", "--control-conversions", "500",
		"--treatment-users", "5000", "--treatment-conversions", "600",
		"--target-sample-size", "20000", "-o", "json"}

	for _, extra := range [][]string{
		{"--look", "1", "--max-looks", "0", "--alpha", "0.05"},
		{"--look", "0", "--max-looks", "4", "--alpha", "0.05"},
		{"--look", "1", "--max-looks", "4", "--alpha", "1.5"},
		{"--look", "1", "--max-looks", "4", "--alpha", "-0.1"},
	} {
		_, err := execute(t, append(append([]string{}, base...), extra...)...)
		assert.ErrorIs(t, err, sequential.ErrInvalidArgument, "%v", extra)
	}

	_, err := execute(t, "sequential",
		"--control-users", "100", "--control-conversions", "500",
		"--treatment-users", "5000", "--treatment-conversions", "600",
		"--target-sample-size", "20000", "--look", "1", "--max-looks", "4", "--alpha", "0.05", "-o", "json")
	assert.ErrorIs(t, err, sequential.ErrInvalidArgument)
}

func TestMemo(t *testing.T) {
	path := writeFile(t, "checkout.csv", resultsCSV)
	target := filepath.Join(t.TempDir(), "memo.html")

	out, err := execute(t, "memo", path, "--html", "--out", target)
	require.NoError(t, err)
	assert.Contains(t, out, "decision: Launch")

	html, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(html), "Decision Memo: checkout")
}

func TestProvidersFetch_Dummy(t *testing.T) {
	db := filepath.Join(t.TempDir(), "lg.db")

	out, err := execute(t, "providers", "list", "--provider", "dummy", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "exp_001")

	out, err = execute(t, "providers", "fetch", "exp_003", "--provider", "dummy", "--no-bayes", "-o", "json", "--db", db)
	require.NoError(t, err)
	rep := decodeJSON(t, out)
	assert.Equal(t, report.ModeMultivariant, rep["mode"])
	assert.Equal(t, "exp_003", rep["name"])

	_, err = execute(t, "providers", "fetch", "exp_error", "--provider", "dummy", "--db", db)
	assert.Error(t, err)
}

func TestResultsAndExport_Local(t *testing.T) {
	db := filepath.Join(t.TempDir(), "lg.db")
	s, err := store.Open(db)
	require.NoError(t, err)
	testutil.SeedExperiment(t, s, "hero", []string{"control", "treatment"}, []int{150, 150}, []int{15, 45})
	require.NoError(t, s.Close())

	out, err := execute(t, "results", "hero", "-o", "json", "--db", db)
	require.NoError(t, err)
	rep := decodeJSON(t, out)
	primary := rep["primary"].(map[string]any)
	assert.Equal(t, 150.0, primary["control"].(map[string]any)["users"])

	out, err = execute(t, "export", "hero", "--aggregated", "--format", "csv", "--db", db)
	require.NoError(t, err)
	tbl, err := dataset.ReadCSV(strings.NewReader(out))
	require.NoError(t, err)
	require.Len(t, tbl.Rows, 2)
	users, _ := tbl.Value(1, dataset.ColUsers)
	assert.Equal(t, "150", users)

	out, err = execute(t, "export", "hero", "--aggregated=false", "--format", "json", "--db", db)
	require.NoError(t, err)
	var events jsonExport
	require.NoError(t, json.Unmarshal([]byte(out), &events))
	assert.Len(t, events.Events, 360)

	_, err = execute(t, "results", "missing", "-o", "json", "--db", db)
	assert.Error(t, err)
}

func TestPrintSummary(t *testing.T) {
	tbl, err := dataset.ReadCSV(strings.NewReader(resultsCSV))
	require.NoError(t, err)
	rep, err := report.NewAnalyzer(config.Default(), zap.NewNop()).Run(context.Background(), tbl, report.Options{Name: "checkout", SkipBayesian: true})
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, printSummary(&out, rep))
	assert.Contains(t, out.String(), "EXPERIMENT: checkout")
	assert.Contains(t, out.String(), "treatment")
	assert.Contains(t, out.String(), "DECISION: LAUNCH")
}
