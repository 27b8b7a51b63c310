package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rulefire/internal/ir"
)

func TestTraceSnapshot_Marshal(t *testing.T) {
	snap := TraceSnapshot{
		ScenarioName: "s",
		Session:      "tok",
		Trace: []TraceEvent{
			{
				Seq:    1,
				Rule:   "r",
				Status: "applied",
				Tuple:  []string{"#1"},
				Effects: []TraceEffect{
					{Seq: 2, Kind: "update", Handle: "#1", Mask: "age", Value: ir.Record{"age": ir.Int(2)}},
				},
			},
			{Seq: 2, Rule: "r", Status: "failed", Tuple: []string{"#1"}, Effects: []TraceEffect{}, Error: "STALE_HANDLE"},
		},
	}

	b, err := snap.Marshal()
	require.NoError(t, err)
	assert.Equal(t,
		`{"firings":[`+
			`{"effects":[{"handle":"#1","kind":"update","mask":"age","seq":2,"value":{"age":2}}],"rule":"r","seq":1,"status":"applied","tuple":["#1"]},`+
			`{"effects":[],"error":"STALE_HANDLE","rule":"r","seq":2,"status":"failed","tuple":["#1"]}`+
			`],"scenario_name":"s","session":"tok"}`,
		string(b))
}

func TestTraceSnapshot_OmitsEmptySession(t *testing.T) {
	snap := TraceSnapshot{ScenarioName: "s", Trace: []TraceEvent{}}

	b, err := snap.Marshal()
	require.NoError(t, err)
	assert.Equal(t, `{"firings":[],"scenario_name":"s"}`, string(b))
}

func TestAssertGolden_ExistingResult(t *testing.T) {
	scenario, err := LoadScenario(scenarioDir + "/three_patterns.yaml")
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.NoError(t, AssertGolden(t, "three_patterns", result))
}
