package constants

// TaskQueue is the Temporal task queue shared by the worker and the starter.
const TaskQueue = "intelgraph-research"

// ResearchWorkflowName is the registered name of the research workflow.
const ResearchWorkflowName = "ResearchWorkflow"

// Activity names. Registration and test mocks must agree on these, so they
// live here instead of being derived from function names at call sites.
const (
	MarkSessionRunningActivity       = "MarkSessionRunning"
	UpdateAgentProgressActivity      = "UpdateAgentProgress"
	AppendSessionMessageActivity     = "AppendSessionMessage"
	FetchCompetitorResearchActivity  = "FetchCompetitorResearch"
	SynthesizeReportActivity         = "SynthesizeReport"
	CompleteSessionActivity          = "CompleteSession"
	FailSessionActivity              = "FailSession"
	ArchiveSessionActivity           = "ArchiveSession"
)
