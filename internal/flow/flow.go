// Package flow models the contributor journey through the intake steps.
// The progress flags on a contributor row implicitly encode a linear state
// machine; this package derives it once so the entry redirector and the
// admin status badge can never drift apart.
package flow

import "time"

// Step is a contributor-facing screen.
type Step string

const (
	StepReview      Step = "review"
	StepPreferences Step = "preferences"
	StepInterview   Step = "interview"
)

// Stage is the derived position in the intake flow.
type Stage string

const (
	StageNotStarted         Stage = "not_started"
	StageAlgorithmPending   Stage = "algorithm_pending"
	StagePreferencesPending Stage = "preferences_pending"
	StageInterviewing       Stage = "interviewing"
	StageCompleted          Stage = "completed"
)

// Progress carries the flag subset that routing depends on.
type Progress struct {
	InterviewCompleted bool
	PrefsSubmittedAt   *time.Time
	AcknowledgedAt     *time.Time
	HasSession         bool
	HasAlgorithmText   bool
}

// StageOf derives the stage from the progress flags. First match wins:
// completion beats submission beats acknowledgement beats the review gate.
func StageOf(p Progress) Stage {
	switch {
	case p.InterviewCompleted:
		return StageCompleted
	case p.PrefsSubmittedAt != nil:
		return StageInterviewing
	case p.AcknowledgedAt != nil:
		return StagePreferencesPending
	case p.HasSession && p.HasAlgorithmText:
		return StageAlgorithmPending
	default:
		return StageNotStarted
	}
}

// NextStep maps a stage to the screen the contributor should see next.
// Completed contributors still route to the interview step, which renders
// a terminal already-completed state.
func NextStep(s Stage) Step {
	switch s {
	case StageCompleted, StageInterviewing:
		return StepInterview
	case StageAlgorithmPending:
		return StepReview
	default:
		return StepPreferences
	}
}

// StepFor is the entry-point contract: progress flags in, one step out.
func StepFor(p Progress) Step {
	return NextStep(StageOf(p))
}

// StatusLabel is the admin dashboard badge for a stage.
func StatusLabel(s Stage) string {
	switch s {
	case StageCompleted:
		return "Completed"
	case StageInterviewing:
		return "In Interview"
	case StagePreferencesPending:
		return "Filling Prefs"
	default:
		return "Not Started"
	}
}
