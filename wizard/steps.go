package wizard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agriaid/crop"
	"agriaid/logger"
)

// ErrAlreadyFetched is returned by a step's Enter when its fetch already ran
// (or is running) for the current state entry.
var ErrAlreadyFetched = errors.New("step data already fetched for this entry")

// Timeouts bounds every remote call a step makes.
type Timeouts struct {
	Text  time.Duration
	Image time.Duration
}

// Progress receives human-readable loading messages and per-candidate
// outcomes while a step runs. Either field may be nil.
type Progress struct {
	Message func(msg string)
	Outcome func(o Outcome)
}

func (p Progress) message(msg string) {
	if p.Message != nil {
		p.Message(msg)
	}
}

// DiseaseStep is the disease-selection screen's fetch: predict, then
// visualize each candidate in order.
type DiseaseStep struct {
	Gateway  crop.Gateway
	Log      logger.Logger
	Timeouts Timeouts
}

// Enter runs the step fetch once per entry into DiseaseSelection. It returns
// the prediction error, if any, or ctx's error when the fetch was cancelled;
// per-candidate visualization failures are logged and skipped.
func (s *DiseaseStep) Enter(ctx context.Context, c *Controller, p Progress) error {
	f, ctx, ok := c.beginFetch(ctx, DiseaseSelection)
	if !ok {
		return ErrAlreadyFetched
	}
	defer f.finish()
	ctx = logger.WithStep(ctx, DiseaseSelection.String())
	ud, _ := f.inputs()

	msg := "Identifying potential diseases..."
	f.setLoadingMessage(msg)
	p.message(msg)

	predictCtx, cancel := withTimeout(ctx, s.Timeouts.Text)
	candidates, err := s.Gateway.PredictDiseases(predictCtx, ud.Crop, ud.DaysPlanted)
	cancel()
	if err == nil {
		candidates, err = crop.NormalizeCandidates(candidates)
	}
	if err != nil {
		s.Log.Errorf(ctx, "predict diseases for %s failed: %v", ud.Crop, err)
		f.fail("Failed to predict diseases: " + causeMessage(err))
		return err
	}
	if !f.setDiseases(candidates) {
		return ctx.Err()
	}
	s.Log.Infof(ctx, "predicted %d diseases for %s", len(candidates), ud.Crop)

	total := len(candidates)
	msg = visualizingMessage(candidates[0].Name, 1, total)
	f.setLoadingMessage(msg)
	p.message(msg)
	VisualizeAll(ctx, s.Gateway, ud, candidates, s.Timeouts.Image, func(o Outcome) bool {
		if o.Err != nil {
			s.Log.Warnf(ctx, "failed to generate image for %s: %v", o.Name, o.Err)
			f.skip(o.Index, total, o.Name)
		} else if !f.setImage(o.Index, total, o.Name, o.ImageURL) {
			return false
		}
		if p.Outcome != nil {
			p.Outcome(o)
		}
		if o.Index < total {
			msg := visualizingMessage(candidates[o.Index].Name, o.Index+1, total)
			f.setLoadingMessage(msg)
			p.message(msg)
		}
		return true
	})
	return ctx.Err()
}

func visualizingMessage(name string, i, total int) string {
	return fmt.Sprintf("Visualizing %s (%d/%d)...", name, i, total)
}

// SolutionStep is the action-plan screen's fetch.
type SolutionStep struct {
	Gateway  crop.Gateway
	Log      logger.Logger
	Timeouts Timeouts
}

// Enter fetches the plan for the selected disease once per entry into Solution.
func (s *SolutionStep) Enter(ctx context.Context, c *Controller, p Progress) (crop.SolutionInfo, error) {
	f, ctx, ok := c.beginFetch(ctx, Solution)
	if !ok {
		return crop.SolutionInfo{}, ErrAlreadyFetched
	}
	defer f.finish()
	ctx = logger.WithStep(ctx, Solution.String())
	ud, sel := f.inputs()

	msg := fmt.Sprintf("Generating a treatment plan for %s...", sel.Name)
	f.setLoadingMessage(msg)
	p.message(msg)

	callCtx, cancel := withTimeout(ctx, s.Timeouts.Text)
	defer cancel()
	plan, err := s.Gateway.GetSolution(callCtx, ud.Crop, sel.Name)
	if err == nil && !plan.Complete() {
		err = &crop.SolutionError{Err: errors.New("plan is missing a category")}
	}
	if err != nil {
		s.Log.Errorf(ctx, "get solution for %s failed: %v", sel.Name, err)
		f.fail("Failed to get a solution: " + causeMessage(err))
		return crop.SolutionInfo{}, err
	}
	if !f.setSolution(plan) {
		return crop.SolutionInfo{}, context.Canceled
	}
	return plan, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// causeMessage strips the gateway's own prefix so banners read naturally.
func causeMessage(err error) string {
	if inner := errors.Unwrap(err); inner != nil {
		return inner.Error()
	}
	return err.Error()
}
