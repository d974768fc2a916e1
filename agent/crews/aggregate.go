package crews

import "slices"

// Aggregate assembles a CrewResult from per-unit results. It reads no clock
// and iterates no maps, so identical input always yields identical output.
// The run is cancelled if any unit was cancelled, failed if a required unit
// failed, and succeeded otherwise.
func Aggregate(runID string, plan *Plan, results []TaskResult) CrewResult {
	out := CrewResult{
		RunID:    runID,
		CrewID:   plan.CrewID,
		CrewName: plan.CrewName,
		Mode:     plan.Mode,
		Status:   CrewSucceeded,
		Tasks:    slices.Clone(results),
		Outputs:  make(map[string]string, len(results)),
	}

	requiredFailed, cancelled := false, false
	for _, r := range results {
		out.Summary.Total++
		out.Summary.Invocations += r.Invocations
		switch r.Status {
		case TaskSucceeded:
			out.Summary.Succeeded++
			out.Outputs[r.TaskID] = r.Output
			out.Summary.FinalOutput = r.Output
		case TaskFailed:
			out.Summary.Failed++
			if r.Required {
				requiredFailed = true
			}
		case TaskCancelled:
			out.Summary.Cancelled++
			cancelled = true
		case TaskSkipped:
			out.Summary.Skipped++
		}
	}

	switch {
	case cancelled:
		out.Status = CrewCancelled
	case requiredFailed:
		out.Status = CrewFailed
	}
	return out
}
