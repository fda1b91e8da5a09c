package progress

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWeightTableSumsToOne(t *testing.T) {
	wt := NewWeightTable()
	steps := wt.Weights()
	var sum float64
	for _, s := range steps {
		sum += s.Weight
	}
	require.InDelta(t, 1.0, sum, 0.0001)
}

func TestWeightTableRenormalizesOnSkip(t *testing.T) {
	wt := NewWeightTable()
	wt.Disable("translate")
	wt.Disable("burn_in")
	steps := wt.Weights()

	var sum float64
	found := map[string]bool{}
	for _, s := range steps {
		sum += s.Weight
		found[s.Name] = true
	}
	require.InDelta(t, 1.0, sum, 0.0001)
	require.False(t, found["translate"])
	require.False(t, found["burn_in"])
}

func TestReporterOverallPercentMonotonic(t *testing.T) {
	var snaps []Snapshot
	r := NewReporter(NewWeightTable(), func(s Snapshot) { snaps = append(snaps, s) })

	r.StepStart("acquire")
	r.StepProgress("acquire", 50, false, "")
	r.StepComplete("acquire")
	r.StepStart("probe")
	r.StepProgress("probe", 10, false, "")

	for i := 1; i < len(snaps); i++ {
		require.GreaterOrEqual(t, snaps[i].OverallPercent, snaps[i-1].OverallPercent)
	}
}

func TestReporterTerminalIsWriteOnce(t *testing.T) {
	var last Snapshot
	r := NewReporter(NewWeightTable(), func(s Snapshot) { last = s })

	r.TaskFail()
	afterFail := last.OverallPercent

	r.StepComplete("acquire") // must no-op after terminal
	require.Equal(t, afterFail, last.OverallPercent)
}

func TestIndeterminateStepContributesZero(t *testing.T) {
	var last Snapshot
	r := NewReporter(NewWeightTable(), func(s Snapshot) { last = s })

	r.StepStart("transcribe")
	r.StepProgress("transcribe", 0, true, "working")
	require.Equal(t, 0.0, last.OverallPercent)
}
