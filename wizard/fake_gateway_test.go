package wizard

import (
	"context"
	"errors"
	"sync"

	"agriaid/crop"
)

type fakeGateway struct {
	mu sync.Mutex

	diseases   []crop.DiseaseInfo
	predictErr error
	failImage  map[string]bool
	blockImage map[string]bool
	solution   crop.SolutionInfo
	solErr     error

	predictCalls  int
	solutionCalls int
	visualized    []string
	inFlight      int
	maxInFlight   int
	started       chan string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		diseases: []crop.DiseaseInfo{
			{Name: "Early Blight", Description: "Brown concentric rings on lower leaves."},
			{Name: "Late Blight", Description: "Dark water-soaked lesions."},
			{Name: "Septoria Leaf Spot", Description: "Small grey spots with dark borders."},
		},
		failImage:  map[string]bool{},
		blockImage: map[string]bool{},
		solution: crop.SolutionInfo{
			ImmediateActions:      []string{"Remove infected leaves"},
			RecommendedTreatments: []string{"Apply copper fungicide"},
			LongTermPrevention:    []string{"Rotate crops every season"},
		},
	}
}

func (g *fakeGateway) PredictDiseases(ctx context.Context, cropName string, days int) ([]crop.DiseaseInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.predictCalls++
	if g.predictErr != nil {
		return nil, &crop.PredictionError{Err: g.predictErr}
	}
	return append([]crop.DiseaseInfo{}, g.diseases...), nil
}

func (g *fakeGateway) VisualizeDisease(ctx context.Context, cropName, name string, img *crop.PlantImage) (string, error) {
	g.mu.Lock()
	g.inFlight++
	if g.inFlight > g.maxInFlight {
		g.maxInFlight = g.inFlight
	}
	g.visualized = append(g.visualized, name)
	block := g.blockImage[name]
	fail := g.failImage[name]
	started := g.started
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		g.inFlight--
		g.mu.Unlock()
	}()

	if started != nil {
		started <- name
	}
	if block {
		<-ctx.Done()
		return "", &crop.VisualizationError{Disease: name, Err: ctx.Err()}
	}
	if fail {
		return "", &crop.VisualizationError{Disease: name, Err: errors.New("no image was returned by the model")}
	}
	return crop.DataURI("image/jpeg", []byte(name)), nil
}

func (g *fakeGateway) GetSolution(ctx context.Context, cropName, name string) (crop.SolutionInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.solutionCalls++
	if g.solErr != nil {
		return crop.SolutionInfo{}, &crop.SolutionError{Err: g.solErr}
	}
	return g.solution, nil
}
