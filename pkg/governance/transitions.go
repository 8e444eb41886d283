package governance

var allowedTransitions = map[JobStatus]map[JobStatus]bool{
	JobStatusPending: {
		JobStatusProcessing: true,
	},
	JobStatusProcessing: {
		JobStatusCompleted: true,
		JobStatusFailed:    true,
		JobStatusPending:   true, // reaper or transient retry
	},
}

// CanTransition reports whether a job may move from one status to another.
func CanTransition(from, to JobStatus) bool {
	return allowedTransitions[from][to]
}

// CheckTransition returns an InvariantViolation for a disallowed transition.
func CheckTransition(from, to JobStatus) error {
	if CanTransition(from, to) {
		return nil
	}
	return NewInvariantViolation("job_transition", "transition %s -> %s is not allowed", from, to)
}
