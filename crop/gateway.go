package crop

import (
	"context"
	"fmt"
)

// Gateway is the generative AI backend. Implementations live in the gemini
// and openai packages; tests inject fakes.
type Gateway interface {
	// PredictDiseases returns 2 to 4 candidates without images.
	PredictDiseases(ctx context.Context, crop string, daysPlanted int) ([]DiseaseInfo, error)
	// VisualizeDisease edits plantImage when present, otherwise synthesizes a
	// new picture. The result is a data: URI.
	VisualizeDisease(ctx context.Context, crop, diseaseName string, plantImage *PlantImage) (string, error)
	GetSolution(ctx context.Context, crop, diseaseName string) (SolutionInfo, error)
}

// Candidate limits enforced on prediction results.
const (
	MinCandidates = 2
	MaxCandidates = 4
)

// NormalizeCandidates drops blank and duplicate names, clears any image and
// caps the list at MaxCandidates. It fails when fewer than MinCandidates remain.
func NormalizeCandidates(in []DiseaseInfo) ([]DiseaseInfo, error) {
	seen := make(map[string]bool, len(in))
	out := make([]DiseaseInfo, 0, len(in))
	for _, d := range in {
		if d.Name == "" || seen[d.Name] {
			continue
		}
		seen[d.Name] = true
		out = append(out, DiseaseInfo{Name: d.Name, Description: d.Description})
		if len(out) == MaxCandidates {
			break
		}
	}
	if len(out) < MinCandidates {
		return nil, &PredictionError{Err: fmt.Errorf("model returned %d usable disease candidates, want at least %d", len(out), MinCandidates)}
	}
	return out, nil
}
