package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"google.golang.org/genai"

	"agriaid/crop"
)

// modelsAPI is the subset of *genai.Models the gateway calls.
type modelsAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateImages(ctx context.Context, model, prompt string, config *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error)
}

// Models selects the Gemini/Imagen model per call.
type Models struct {
	Text      string
	ImageEdit string
	Image     string
}

// Client implements crop.Gateway on the Gemini API.
type Client struct {
	models modelsAPI
	names  Models
}

var errNoImage = errors.New("no image was returned by the model")

// NewClient connects to the Gemini API with apiKey.
func NewClient(ctx context.Context, apiKey string, names Models) (*Client, error) {
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return newWithModels(c.Models, names), nil
}

func newWithModels(m modelsAPI, names Models) *Client {
	if names.Text == "" {
		names.Text = "gemini-2.5-flash"
	}
	if names.ImageEdit == "" {
		names.ImageEdit = "gemini-2.5-flash-image-preview"
	}
	if names.Image == "" {
		names.Image = "imagen-4.0-generate-001"
	}
	return &Client{models: m, names: names}
}

var diseasesSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"diseases": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"name":        {Type: genai.TypeString, Description: "The common name of the plant disease."},
					"description": {Type: genai.TypeString, Description: "A brief, one-sentence description of the disease's appearance."},
				},
				Required: []string{"name", "description"},
			},
		},
	},
	Required: []string{"diseases"},
}

var solutionSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"immediateActions": {
			Type:        genai.TypeArray,
			Items:       &genai.Schema{Type: genai.TypeString},
			Description: "Urgent first steps to contain the problem (e.g., isolate plant, remove affected leaves).",
		},
		"recommendedTreatments": {
			Type:        genai.TypeArray,
			Items:       &genai.Schema{Type: genai.TypeString},
			Description: "Specific organic or conventional treatments to apply.",
		},
		"longTermPrevention": {
			Type:        genai.TypeArray,
			Items:       &genai.Schema{Type: genai.TypeString},
			Description: "Strategies to prevent the disease from recurring in the future (e.g., crop rotation, soil health).",
		},
	},
	Required: []string{"immediateActions", "recommendedTreatments", "longTermPrevention"},
}

func (c *Client) PredictDiseases(ctx context.Context, cropName string, daysPlanted int) ([]crop.DiseaseInfo, error) {
	resp, err := c.models.GenerateContent(ctx, c.names.Text, genai.Text(predictPrompt(cropName, daysPlanted)), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   diseasesSchema,
	})
	if err != nil {
		return nil, &crop.PredictionError{Err: err}
	}
	var out struct {
		Diseases []crop.DiseaseInfo `json:"diseases"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(resp.Text())), &out); err != nil {
		return nil, &crop.PredictionError{Err: err}
	}
	return crop.NormalizeCandidates(out.Diseases)
}

func (c *Client) VisualizeDisease(ctx context.Context, cropName, diseaseName string, plantImage *crop.PlantImage) (string, error) {
	if plantImage != nil {
		return c.editImage(ctx, diseaseName, plantImage)
	}
	return c.generateImage(ctx, cropName, diseaseName)
}

func (c *Client) editImage(ctx context.Context, diseaseName string, img *crop.PlantImage) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(img.Data, img.MimeType),
			genai.NewPartFromText(editPrompt(diseaseName)),
		}, genai.RoleUser),
	}
	resp, err := c.models.GenerateContent(ctx, c.names.ImageEdit, contents, &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
	})
	if err != nil {
		return "", &crop.VisualizationError{Disease: diseaseName, Err: err}
	}
	if resp != nil {
		for _, cand := range resp.Candidates {
			if cand == nil || cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
					return crop.DataURI(part.InlineData.MIMEType, part.InlineData.Data), nil
				}
			}
		}
	}
	return "", &crop.VisualizationError{Disease: diseaseName, Err: errNoImage}
}

func (c *Client) generateImage(ctx context.Context, cropName, diseaseName string) (string, error) {
	resp, err := c.models.GenerateImages(ctx, c.names.Image, generatePrompt(cropName, diseaseName), &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		OutputMIMEType: "image/jpeg",
		AspectRatio:    "1:1",
	})
	if err != nil {
		return "", &crop.VisualizationError{Disease: diseaseName, Err: err}
	}
	if resp != nil && len(resp.GeneratedImages) > 0 {
		gi := resp.GeneratedImages[0]
		if gi != nil && gi.Image != nil && len(gi.Image.ImageBytes) > 0 {
			return crop.DataURI("image/jpeg", gi.Image.ImageBytes), nil
		}
	}
	return "", &crop.VisualizationError{Disease: diseaseName, Err: errNoImage}
}

func (c *Client) GetSolution(ctx context.Context, cropName, diseaseName string) (crop.SolutionInfo, error) {
	resp, err := c.models.GenerateContent(ctx, c.names.Text, genai.Text(solutionPrompt(cropName, diseaseName)), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   solutionSchema,
	})
	if err != nil {
		return crop.SolutionInfo{}, &crop.SolutionError{Err: err}
	}
	var s crop.SolutionInfo
	if err := json.Unmarshal([]byte(strings.TrimSpace(resp.Text())), &s); err != nil {
		return crop.SolutionInfo{}, &crop.SolutionError{Err: err}
	}
	if !s.Complete() {
		return crop.SolutionInfo{}, &crop.SolutionError{Err: errors.New("plan is missing a category")}
	}
	return s, nil
}
