package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"agriaid/crop"
)

// Client implements crop.Gateway on the OpenAI chat and image endpoints.
type Client struct {
	api        *openai.Client
	Model      string
	ImageModel string
}

var errNoImage = errors.New("no image was returned by the model")

func NewClient(apiKey, model, imageModel string) *Client {
	return NewClientWithConfig(openai.DefaultConfig(apiKey), model, imageModel)
}

// NewClientWithConfig lets tests point the client at a local server.
func NewClientWithConfig(cfg openai.ClientConfig, model, imageModel string) *Client {
	if model == "" {
		model = openai.GPT4oMini
	}
	if imageModel == "" {
		imageModel = openai.CreateImageModelDallE3
	}
	return &Client{api: openai.NewClientWithConfig(cfg), Model: model, ImageModel: imageModel}
}

func (c *Client) completeJSON(ctx context.Context, system, prompt string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty completion")
	}
	return extractJSON(resp.Choices[0].Message.Content), nil
}

func (c *Client) PredictDiseases(ctx context.Context, cropName string, daysPlanted int) ([]crop.DiseaseInfo, error) {
	prompt := strings.Join([]string{
		fmt.Sprintf("You are an expert agricultural pathologist. A farmer planted %s about %d days ago.", cropName, daysPlanted),
		"Based on the crop and its approximate growth stage, predict 2 to 4 of the most common potential diseases it might face.",
		"For each disease, provide a short, one-sentence description of its key visual symptom.",
	}, " ")
	instr := "Respond strictly with a JSON object {\"diseases\":[{\"name\":string,\"description\":string}]}. No markdown."
	content, err := c.completeJSON(ctx, instr, prompt)
	if err != nil {
		return nil, &crop.PredictionError{Err: err}
	}
	var out struct {
		Diseases []crop.DiseaseInfo `json:"diseases"`
	}
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, &crop.PredictionError{Err: err}
	}
	return crop.NormalizeCandidates(out.Diseases)
}

func (c *Client) GetSolution(ctx context.Context, cropName, diseaseName string) (crop.SolutionInfo, error) {
	prompt := strings.Join([]string{
		fmt.Sprintf("You are an expert agricultural advisor. A farmer needs a simple, clear, and actionable treatment plan for their %s plants, which are showing symptoms of %s.", cropName, diseaseName),
		"Provide a step-by-step guide with practical advice.",
	}, " ")
	instr := strings.Join([]string{
		"Respond strictly with a JSON object with the keys immediateActions, recommendedTreatments and longTermPrevention,",
		"each an array of short strings with at least one item.",
		"immediateActions: urgent first steps to contain the problem. recommendedTreatments: specific organic or conventional treatments.",
		"longTermPrevention: strategies to prevent recurrence. No markdown.",
	}, " ")
	content, err := c.completeJSON(ctx, instr, prompt)
	if err != nil {
		return crop.SolutionInfo{}, &crop.SolutionError{Err: err}
	}
	var s crop.SolutionInfo
	if err := json.Unmarshal([]byte(content), &s); err != nil {
		return crop.SolutionInfo{}, &crop.SolutionError{Err: err}
	}
	if !s.Complete() {
		return crop.SolutionInfo{}, &crop.SolutionError{Err: errors.New("plan is missing a category")}
	}
	return s, nil
}

func (c *Client) VisualizeDisease(ctx context.Context, cropName, diseaseName string, plantImage *crop.PlantImage) (string, error) {
	var (
		resp openai.ImageResponse
		err  error
	)
	if plantImage != nil {
		resp, err = c.editImage(ctx, diseaseName, plantImage)
	} else {
		resp, err = c.api.CreateImage(ctx, openai.ImageRequest{
			Prompt: fmt.Sprintf("A photorealistic, high-resolution, close-up image of a %s plant clearly showing the symptoms of %s. "+
				"Focus on the affected leaves, stem or fruit against a natural, slightly blurred farm background. "+
				"It should look like a real photograph. Do not add any text or labels.", cropName, diseaseName),
			Model:          c.ImageModel,
			N:              1,
			Size:           openai.CreateImageSize1024x1024,
			ResponseFormat: openai.CreateImageResponseFormatB64JSON,
		})
	}
	if err != nil {
		return "", &crop.VisualizationError{Disease: diseaseName, Err: err}
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return "", &crop.VisualizationError{Disease: diseaseName, Err: errNoImage}
	}
	b, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return "", &crop.VisualizationError{Disease: diseaseName, Err: err}
	}
	return crop.DataURI("image/png", b), nil
}

// editImage uploads the user's photo. The SDK takes an *os.File, so the photo
// is spooled to a temp file for the duration of the call.
func (c *Client) editImage(ctx context.Context, diseaseName string, img *crop.PlantImage) (openai.ImageResponse, error) {
	f, err := os.CreateTemp("", "agriaid-plant-*"+extensionFor(img.MimeType))
	if err != nil {
		return openai.ImageResponse{}, err
	}
	defer os.Remove(f.Name())
	defer f.Close()
	if _, err := f.Write(img.Data); err != nil {
		return openai.ImageResponse{}, err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return openai.ImageResponse{}, err
	}
	return c.api.CreateEditImage(ctx, openai.ImageEditRequest{
		Image: f,
		Prompt: fmt.Sprintf("Edit this photo of a farmer's plant to show clear, realistic symptoms of %q on the parts typically affected. "+
			"Keep the original composition. Do not add any text or labels.", diseaseName),
		Model:          openai.CreateImageModelDallE2,
		N:              1,
		Size:           openai.CreateImageSize1024x1024,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
