package vertex

import (
	"context"
	"fmt"
	"os"
	"strings"

	"cvperfect-server/internal/domain"

	"cloud.google.com/go/vertexai/genai"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// GeminiGenerator implements domain.TextGenerator on Vertex AI Gemini.
type GeminiGenerator struct {
	client      *genai.Client
	modelName   string
	temperature float32
	logger      domain.Logger
}

// NewGeminiGenerator creates the Vertex AI client. Credentials come from the
// configured service-account file, or from the environment's default
// credentials when no file is set.
func NewGeminiGenerator(ctx context.Context, config domain.Config, logger domain.Logger) (*GeminiGenerator, error) {
	projectID := config.GetGCPProjectID()
	if projectID == "" {
		return nil, fmt.Errorf("GCP project id must be provided")
	}

	creds, err := loadCredentials(ctx, config.GetGoogleCredentialsFile())
	if err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, projectID, config.GetGCPLocation(), option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex ai client: %w", err)
	}

	logger.Info("Vertex AI client initialized",
		"project", projectID,
		"location", config.GetGCPLocation(),
		"model", config.GetGeminiModel())

	return &GeminiGenerator{
		client:      client,
		modelName:   config.GetGeminiModel(),
		temperature: 0.4,
		logger:      logger,
	}, nil
}

func loadCredentials(ctx context.Context, file string) (*google.Credentials, error) {
	if file == "" {
		creds, err := google.FindDefaultCredentials(ctx, cloudPlatformScope)
		if err != nil {
			return nil, fmt.Errorf("failed to find default credentials: %w", err)
		}
		return creds, nil
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, cloudPlatformScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}
	return creds, nil
}

// Generate runs one prompt under a system instruction. A fresh model handle
// per call keeps concurrent callers from sharing the instruction.
func (g *GeminiGenerator) Generate(ctx context.Context, instruction, prompt string) (string, error) {
	model := g.client.GenerativeModel(g.modelName)
	model.SetTemperature(g.temperature)
	if instruction != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(instruction)},
		}
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		g.logger.Error("Gemini generation failed", err, "model", g.modelName)
		return "", fmt.Errorf("%w: %v", domain.ErrGeneratorFailed, err)
	}

	text := responseText(resp)
	if text == "" {
		return "", fmt.Errorf("%w: empty response", domain.ErrGeneratorFailed)
	}
	return text, nil
}

// Close releases the underlying gRPC connection.
func (g *GeminiGenerator) Close() error {
	return g.client.Close()
}

// responseText joins the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return strings.TrimSpace(b.String())
}
