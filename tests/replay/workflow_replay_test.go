package replay

import (
	"os"
	"testing"

	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/tcsintel/intelgraph/internal/constants"
	"github.com/tcsintel/intelgraph/internal/workflows"
)

// TestResearchWorkflowReplay checks replay determinism of ResearchWorkflow
// against exported histories. History files come from real runs via
// `make replay-export`; tests skip when they are absent.
func TestResearchWorkflowReplay(t *testing.T) {
	testCases := []struct {
		name        string
		historyFile string
	}{
		{
			name:        "full_roster",
			historyFile: "histories/research_full_roster.json",
		},
		{
			name:        "cache_hits",
			historyFile: "histories/research_cache_hits.json",
		},
		{
			name:        "partial_failure",
			historyFile: "histories/research_partial_failure.json",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := os.Stat(tc.historyFile); err != nil {
				t.Skipf("history file not found (%s); generate via make replay-export", tc.historyFile)
			}
			replayer := worker.NewWorkflowReplayer()
			replayer.RegisterWorkflowWithOptions(workflows.ResearchWorkflow, workflow.RegisterOptions{
				Name: constants.ResearchWorkflowName,
			})

			// Activities are not registered: the replayer only validates
			// workflow determinism, not activity execution.
			if err := replayer.ReplayWorkflowHistoryFromJSONFile(nil, tc.historyFile); err != nil {
				t.Fatalf("Replay failed for %s: %v", tc.name, err)
			}
		})
	}
}
