package crop

import "fmt"

// ValidationError is bad or missing form input. It blocks a transition and is
// shown inline next to the offending field.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string { return e.Message }
func (e *ValidationError) Unwrap() error { return e.Err }

// PredictionError is a failed or unparseable disease prediction.
type PredictionError struct {
	Err error
}

func (e *PredictionError) Error() string { return fmt.Sprintf("predict diseases: %v", e.Err) }
func (e *PredictionError) Unwrap() error { return e.Err }

// VisualizationError is a failed visualization of a single candidate.
type VisualizationError struct {
	Disease string
	Err     error
}

func (e *VisualizationError) Error() string {
	return fmt.Sprintf("visualize %q: %v", e.Disease, e.Err)
}
func (e *VisualizationError) Unwrap() error { return e.Err }

// SolutionError is a failed or malformed treatment plan.
type SolutionError struct {
	Err error
}

func (e *SolutionError) Error() string { return fmt.Sprintf("get solution: %v", e.Err) }
func (e *SolutionError) Unwrap() error { return e.Err }

// SpeechError is a failed remote voice synthesis. It never reaches the user.
type SpeechError struct {
	Status int
	Err    error
}

func (e *SpeechError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("speech synthesis failed with status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("speech synthesis failed: %v", e.Err)
}
func (e *SpeechError) Unwrap() error { return e.Err }
