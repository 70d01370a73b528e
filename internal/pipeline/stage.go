package pipeline

// stageResult is the tagged outcome of one stage. Exactly one of the three
// shapes applies:
//   - ok: summary recorded, pipeline advances
//   - halt: summary recorded, run terminates in haltStatus (manual review
//     or access denied) without running later stages
//   - fail: run terminates as failed with the error
//
// Stage code never panics its way out of the pipeline; the orchestrator's
// transition logic consumes these values.
type stageResult struct {
	summary    StepSummary
	haltStatus Status
	haltReason string
	err        error
}

func stageOK(summary StepSummary) stageResult {
	return stageResult{summary: summary}
}

func stageHalt(status Status, reason string, summary StepSummary) stageResult {
	return stageResult{summary: summary, haltStatus: status, haltReason: reason}
}

func stageFail(err error) stageResult {
	return stageResult{err: err}
}
