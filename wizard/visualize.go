package wizard

import (
	"context"
	"time"

	"agriaid/crop"
)

// Outcome is the result of visualizing one candidate.
type Outcome struct {
	Index    int
	Total    int
	Name     string
	ImageURL string
	Err      error
}

// Skipped reports whether the candidate stays without an image.
func (o Outcome) Skipped() bool { return o.Err != nil }

// VisualizeAll runs VisualizeDisease once per candidate, strictly in order and
// one at a time, handing each outcome to yield before moving on. A failed
// candidate never stops the batch. Each call gets its own timeout when
// perCall > 0. The loop stops early only when ctx is done or yield returns
// false; the returned slice holds the outcomes produced so far.
func VisualizeAll(ctx context.Context, gw crop.Gateway, ud crop.UserData, candidates []crop.DiseaseInfo, perCall time.Duration, yield func(Outcome) bool) []Outcome {
	outcomes := make([]Outcome, 0, len(candidates))
	for i, d := range candidates {
		if ctx.Err() != nil {
			break
		}
		o := Outcome{Index: i + 1, Total: len(candidates), Name: d.Name}
		o.ImageURL, o.Err = visualizeOne(ctx, gw, ud, d.Name, perCall)
		if o.Err == nil && o.ImageURL == "" {
			o.Err = &crop.VisualizationError{Disease: d.Name, Err: context.Canceled}
		}
		outcomes = append(outcomes, o)
		if yield != nil && !yield(o) {
			break
		}
	}
	return outcomes
}

func visualizeOne(ctx context.Context, gw crop.Gateway, ud crop.UserData, name string, perCall time.Duration) (string, error) {
	if perCall > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, perCall)
		defer cancel()
	}
	return gw.VisualizeDisease(ctx, ud.Crop, name, ud.PlantImage)
}
