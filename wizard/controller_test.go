package wizard

import (
	"context"
	"errors"
	"testing"
	"time"

	"agriaid/crop"
	"agriaid/logger"
)

func tomato() crop.UserData { return crop.UserData{Crop: "Tomato", DaysPlanted: 30} }

func newSteps(g *fakeGateway) (*DiseaseStep, *SolutionStep) {
	log := logger.Nop()
	return &DiseaseStep{Gateway: g, Log: log}, &SolutionStep{Gateway: g, Log: log}
}

func TestStart_Valid(t *testing.T) {
	c := NewController()
	ud := crop.UserData{Crop: "Corn", DaysPlanted: 12, PlantImage: &crop.PlantImage{MimeType: "image/png", Data: []byte{1}}}
	if err := c.Start(ud); err != nil {
		t.Fatalf("start: %v", err)
	}
	snap := c.Snapshot()
	if c.State() != DiseaseSelection || snap.UserData == nil {
		t.Fatalf("unexpected state %s", snap.State)
	}
	if snap.UserData.Crop != "Corn" || snap.UserData.DaysPlanted != 12 || snap.UserData.PlantImage.MimeType != "image/png" {
		t.Fatalf("user data changed: %+v", snap.UserData)
	}
}

func TestStart_Invalid(t *testing.T) {
	for _, ud := range []crop.UserData{{Crop: "", DaysPlanted: 3}, {Crop: "Rice", DaysPlanted: 0}, {Crop: "Rice", DaysPlanted: -1}} {
		c := NewController()
		err := c.Start(ud)
		var ve *crop.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("expected validation error for %+v, got %v", ud, err)
		}
		if c.State() != UserInput || c.Snapshot().Error == "" {
			t.Fatalf("expected to stay in user input with an error, got %+v", c.Snapshot())
		}
	}
}

func TestStart_WrongState(t *testing.T) {
	c := NewController()
	_ = c.Start(tomato())
	if err := c.Start(tomato()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestTransitionClearsError(t *testing.T) {
	c := NewController()
	_ = c.Start(crop.UserData{})
	if c.Snapshot().Error == "" {
		t.Fatal("expected validation error")
	}
	if err := c.Start(tomato()); err != nil {
		t.Fatal(err)
	}
	if c.Snapshot().Error != "" {
		t.Fatal("transition should clear the error")
	}
}

func TestSelect_RequiresImage(t *testing.T) {
	g := newFakeGateway()
	g.failImage["Late Blight"] = true
	ds, _ := newSteps(g)
	c := NewController()
	_ = c.Start(tomato())
	if err := ds.Enter(context.Background(), c, Progress{}); err != nil {
		t.Fatalf("enter: %v", err)
	}

	if err := c.Select("Late Blight"); !errors.Is(err, ErrNotSelectable) {
		t.Fatalf("expected ErrNotSelectable, got %v", err)
	}
	if err := c.Select("Unknown"); !errors.Is(err, ErrNotSelectable) {
		t.Fatalf("expected ErrNotSelectable for unknown name, got %v", err)
	}
	if c.State() != DiseaseSelection {
		t.Fatalf("rejected select must not transition")
	}
	if err := c.Select("Septoria Leaf Spot"); err != nil {
		t.Fatalf("select: %v", err)
	}
	snap := c.Snapshot()
	if c.State() != Solution || snap.Selected.Name != "Septoria Leaf Spot" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestSelect_WrongState(t *testing.T) {
	c := NewController()
	if err := c.Select("x"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestDiseaseStep_SequentialBestEffort(t *testing.T) {
	g := newFakeGateway()
	g.diseases = append(g.diseases, crop.DiseaseInfo{Name: "Leaf Mold", Description: "Yellow patches."})
	g.failImage["Late Blight"] = true
	ds, _ := newSteps(g)
	c := NewController()
	_ = c.Start(tomato())

	updates, cancel := c.Subscribe()
	defer cancel()

	var outcomes []Outcome
	var messages []string
	err := ds.Enter(context.Background(), c, Progress{
		Message: func(m string) { messages = append(messages, m) },
		Outcome: func(o Outcome) { outcomes = append(outcomes, o) },
	})
	if err != nil {
		t.Fatalf("enter: %v", err)
	}

	first := <-updates
	if first.Kind != UpdatePredicted || len(first.Diseases) != 4 {
		t.Fatalf("unexpected first update %+v", first)
	}
	for _, d := range first.Diseases {
		if d.ImageURL != "" {
			t.Fatalf("%s should start without an image", d.Name)
		}
	}

	want := []string{"Early Blight", "Late Blight", "Septoria Leaf Spot", "Leaf Mold"}
	if len(g.visualized) != len(want) {
		t.Fatalf("expected %d visualize calls, got %v", len(want), g.visualized)
	}
	for i, name := range want {
		if g.visualized[i] != name || outcomes[i].Name != name || outcomes[i].Index != i+1 {
			t.Fatalf("order mismatch at %d: calls=%v outcomes=%+v", i, g.visualized, outcomes)
		}
	}
	if g.maxInFlight != 1 {
		t.Fatalf("visualize calls must be sequential, max in flight = %d", g.maxInFlight)
	}
	if !outcomes[1].Skipped() {
		t.Fatal("Late Blight should be skipped")
	}

	snap := c.Snapshot()
	if snap.Error != "" || snap.Loading || snap.LoadingMessage != "" {
		t.Fatalf("a swallowed visualization failure must not surface: %+v", snap)
	}
	for _, d := range snap.Diseases {
		if (d.Name == "Late Blight") == d.Selectable() {
			t.Fatalf("unexpected selectability for %s", d.Name)
		}
	}
	if messages[0] != "Identifying potential diseases..." || messages[1] != "Visualizing Early Blight (1/4)..." {
		t.Fatalf("unexpected messages %v", messages)
	}

	kinds := []UpdateKind{}
	for len(updates) > 0 {
		kinds = append(kinds, (<-updates).Kind)
	}
	wantKinds := []UpdateKind{UpdateVisualized, UpdateSkipped, UpdateVisualized, UpdateVisualized, UpdateDone}
	if len(kinds) != len(wantKinds) {
		t.Fatalf("unexpected update kinds %v", kinds)
	}
	for i := range wantKinds {
		if kinds[i] != wantKinds[i] {
			t.Fatalf("unexpected update kinds %v", kinds)
		}
	}
}

func TestDiseaseStep_PredictionFailure(t *testing.T) {
	g := newFakeGateway()
	g.predictErr = errors.New("quota exhausted")
	ds, _ := newSteps(g)
	c := NewController()
	_ = c.Start(tomato())

	err := ds.Enter(context.Background(), c, Progress{})
	var pe *crop.PredictionError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PredictionError, got %v", err)
	}
	snap := c.Snapshot()
	if snap.Error != "Failed to predict diseases: quota exhausted" || snap.Loading {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if len(g.visualized) != 0 {
		t.Fatal("no visualization should run after a failed prediction")
	}
}

func TestDiseaseStep_FetchesOncePerEntry(t *testing.T) {
	g := newFakeGateway()
	ds, _ := newSteps(g)
	c := NewController()
	_ = c.Start(tomato())

	if err := ds.Enter(context.Background(), c, Progress{}); err != nil {
		t.Fatal(err)
	}
	if err := ds.Enter(context.Background(), c, Progress{}); !errors.Is(err, ErrAlreadyFetched) {
		t.Fatalf("expected ErrAlreadyFetched, got %v", err)
	}
	if g.predictCalls != 1 {
		t.Fatalf("expected 1 predict call, got %d", g.predictCalls)
	}

	c.Reset()
	_ = c.Start(tomato())
	if err := ds.Enter(context.Background(), c, Progress{}); err != nil {
		t.Fatal(err)
	}
	if g.predictCalls != 2 {
		t.Fatalf("reset must force a refetch, got %d predict calls", g.predictCalls)
	}
}

func TestDiseaseStep_PerCallTimeout(t *testing.T) {
	g := newFakeGateway()
	g.blockImage["Early Blight"] = true
	ds, _ := newSteps(g)
	ds.Timeouts.Image = 20 * time.Millisecond
	c := NewController()
	_ = c.Start(tomato())

	if err := ds.Enter(context.Background(), c, Progress{}); err != nil {
		t.Fatal(err)
	}
	snap := c.Snapshot()
	if snap.Diseases[0].Selectable() || !snap.Diseases[1].Selectable() || !snap.Diseases[2].Selectable() {
		t.Fatalf("timed out candidate should be skipped, others visualized: %+v", snap.Diseases)
	}
}

func TestReset_CancelsInFlightFetch(t *testing.T) {
	g := newFakeGateway()
	g.blockImage["Late Blight"] = true
	g.started = make(chan string, 4)
	ds, _ := newSteps(g)
	c := NewController()
	_ = c.Start(tomato())

	done := make(chan error, 1)
	go func() { done <- ds.Enter(context.Background(), c, Progress{}) }()

	for name := range g.started {
		if name == "Late Blight" {
			break
		}
	}
	c.Reset()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reset did not cancel the running fetch")
	}
	snap := c.Snapshot()
	if snap.State != "user_input" || len(snap.Diseases) != 0 || snap.Loading {
		t.Fatalf("stale fetch mutated the session after reset: %+v", snap)
	}
	if len(g.visualized) != 2 {
		t.Fatalf("candidates after the cancelled one must not be attempted, got %v", g.visualized)
	}
}

func TestDiseaseStep_CallerCancelDuringVisualization(t *testing.T) {
	g := newFakeGateway()
	g.blockImage["Late Blight"] = true
	g.started = make(chan string, 4)
	ds, _ := newSteps(g)
	c := NewController()
	_ = c.Start(tomato())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- ds.Enter(ctx, c, Progress{}) }()

	for name := range g.started {
		if name == "Late Blight" {
			break
		}
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancel did not stop the running fetch")
	}
}

func TestReset_FromEveryState(t *testing.T) {
	g := newFakeGateway()
	ds, ss := newSteps(g)
	for _, target := range []State{UserInput, DiseaseSelection, Solution} {
		c := NewController()
		if target >= DiseaseSelection {
			_ = c.Start(tomato())
			_ = ds.Enter(context.Background(), c, Progress{})
		}
		if target == Solution {
			_ = c.Select("Early Blight")
			if _, err := ss.Enter(context.Background(), c, Progress{}); err != nil {
				t.Fatal(err)
			}
		}
		if c.State() != target {
			t.Fatalf("setup reached %s, want %s", c.State(), target)
		}
		c.Reset()
		snap := c.Snapshot()
		if snap.State != "user_input" || len(snap.Diseases) != 0 || snap.Selected != nil || snap.Solution != nil || snap.Error != "" || snap.Loading || snap.UserData != nil {
			t.Fatalf("reset from %s left data behind: %+v", target, snap)
		}
	}
}

func TestSolutionStep(t *testing.T) {
	g := newFakeGateway()
	ds, ss := newSteps(g)
	c := NewController()
	_ = c.Start(tomato())
	_ = ds.Enter(context.Background(), c, Progress{})
	_ = c.Select("Late Blight")

	var msgs []string
	plan, err := ss.Enter(context.Background(), c, Progress{Message: func(m string) { msgs = append(msgs, m) }})
	if err != nil {
		t.Fatal(err)
	}
	if !plan.Complete() || c.Snapshot().Solution == nil {
		t.Fatalf("unexpected plan %+v", plan)
	}
	if msgs[0] != "Generating a treatment plan for Late Blight..." {
		t.Fatalf("unexpected message %v", msgs)
	}
	if _, err := ss.Enter(context.Background(), c, Progress{}); !errors.Is(err, ErrAlreadyFetched) {
		t.Fatalf("expected ErrAlreadyFetched, got %v", err)
	}
	if g.solutionCalls != 1 {
		t.Fatalf("expected a single solution call, got %d", g.solutionCalls)
	}
}

func TestSolutionStep_Failure(t *testing.T) {
	g := newFakeGateway()
	g.solErr = errors.New("backend unavailable")
	ds, ss := newSteps(g)
	c := NewController()
	_ = c.Start(tomato())
	_ = ds.Enter(context.Background(), c, Progress{})
	_ = c.Select("Early Blight")

	_, err := ss.Enter(context.Background(), c, Progress{})
	var se *crop.SolutionError
	if !errors.As(err, &se) {
		t.Fatalf("expected SolutionError, got %v", err)
	}
	snap := c.Snapshot()
	if snap.Error != "Failed to get a solution: backend unavailable" || snap.Solution != nil {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestTomatoScenario(t *testing.T) {
	g := newFakeGateway()
	ds, ss := newSteps(g)
	c := NewController()

	if err := c.Start(crop.UserData{Crop: "Tomato", DaysPlanted: 30}); err != nil {
		t.Fatal(err)
	}
	if err := ds.Enter(context.Background(), c, Progress{}); err != nil {
		t.Fatal(err)
	}
	snap := c.Snapshot()
	if len(snap.Diseases) != 3 {
		t.Fatalf("expected 3 diseases, got %d", len(snap.Diseases))
	}
	second := snap.Diseases[1].Name
	if err := c.Select(second); err != nil {
		t.Fatal(err)
	}
	plan, err := ss.Enter(context.Background(), c, Progress{})
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.ImmediateActions) < 1 || len(plan.RecommendedTreatments) < 1 || len(plan.LongTermPrevention) < 1 {
		t.Fatalf("incomplete plan %+v", plan)
	}
	c.Reset()
	if c.State() != UserInput || len(c.Snapshot().Diseases) != 0 {
		t.Fatal("reset should return to the initial screen")
	}
}
