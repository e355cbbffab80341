package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"tuitionflow/models"

	log "github.com/sirupsen/logrus"
	"google.golang.org/genai"
)

// AttributionSuffix must close every drafted parent message.
const AttributionSuffix = "(AI generated message)"

// ErrDraftingUnavailable is returned when no Gemini API key is configured.
var ErrDraftingUnavailable = errors.New("message drafting is unavailable: GEMINI_API_KEY is not set")

// TextGenerator is the language-model call the drafting client depends on.
// cfg may be nil for plain text output.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string, cfg *genai.GenerateContentConfig) (string, error)
}

// GeminiGenerator calls the Gemini API through the genai SDK
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrDraftingUnavailable
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, prompt string, cfg *genai.GenerateContentConfig) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return resp.Text(), nil
}

// UnavailableGenerator stands in when drafting is not configured; every call fails.
type UnavailableGenerator struct{}

func (UnavailableGenerator) Generate(context.Context, string, *genai.GenerateContentConfig) (string, error) {
	return "", ErrDraftingUnavailable
}

// DraftingClient turns roster data into prompts and model output into drafts and intents
type DraftingClient struct {
	gen   TextGenerator
	today func() models.Date
}

func NewDraftingClient(gen TextGenerator, today func() models.Date) *DraftingClient {
	return &DraftingClient{gen: gen, today: today}
}

const draftTemplate = `Write a WhatsApp message for a parent from a Tuition Teacher.

Context: %s
Parent Name: %s
Student Name: %s
Cycle Info: Cycle: %dth to %dth

Requirements:
1. Write the message in BOTH English and Hindi (Devanagari script).
2. Keep it professional yet polite.
3. If status is PAID, thank them.
4. If status is OVERDUE, be firm but polite.
5. Include the calculated fee amount.
6. MANDATORY: End the message exactly with: "` + AttributionSuffix + `"
7. Format strictly as plain text, using line breaks for separation.
8. Do not add markdown like **bold**.`

func (c *DraftingClient) draftPrompt(s models.Student, action models.DraftAction) string {
	var situation string
	switch action {
	case models.ActionPaid:
		situation = fmt.Sprintf("The student %s has CLEARED their fee of ₹%d on %s.",
			s.Name, s.MonthlyFee, c.today().Format("02/01/2006"))
	case models.ActionOverdue:
		situation = fmt.Sprintf("The student %s has NOT CLEARED the fee of ₹%d. It is OVERDUE. Please pay immediately.",
			s.Name, s.MonthlyFee)
	default:
		situation = fmt.Sprintf("The student %s has a PENDING fee of ₹%d. It is a gentle reminder.",
			s.Name, s.MonthlyFee)
	}
	joinDay := s.JoiningDate.Day()
	return fmt.Sprintf(draftTemplate, situation, s.ParentName, s.Name, joinDay, joinDay)
}

// Draft asks the model for a bilingual parent message and guarantees the attribution suffix.
func (c *DraftingClient) Draft(ctx context.Context, s models.Student, action models.DraftAction) (string, error) {
	text, err := c.gen.Generate(ctx, c.draftPrompt(s, action), nil)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty draft for %s", s.Name)
	}
	if !strings.HasSuffix(text, AttributionSuffix) {
		text += "\n\n" + AttributionSuffix
	}
	return text, nil
}

// Message drafts and wraps the result for the reminder queue.
func (c *DraftingClient) Message(ctx context.Context, s models.Student) (*models.GeneratedMessage, error) {
	action := models.ActionForStatus(s.Status)
	text, err := c.Draft(ctx, s, action)
	if err != nil {
		return nil, err
	}
	return &models.GeneratedMessage{
		StudentID:   s.ID,
		StudentName: s.Name,
		Text:        text,
		TargetPhone: s.ParentPhone,
		Type:        action.MessageType(),
	}, nil
}

const commandTemplate = `You are an assistant managing a tuition fee database.
Current students: [%s].

Analyze the user's command: "%s"

Determine which student is being referred to and what the new status should be.

Status Rules:
- "fee is clear", "paid", "done" -> PAID
- "pending", "will pay later", "not clear" -> PENDING
- "crossmark", "cancel", "exempt", "don't send" -> EXEMPT
- "late", "overdue", "not paid" -> OVERDUE

Return JSON.`

var commandSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"found":       {Type: genai.TypeBoolean},
		"studentName": {Type: genai.TypeString},
		"newStatus": {
			Type: genai.TypeString,
			Enum: []string{string(models.StatusPaid), string(models.StatusPending), string(models.StatusOverdue), string(models.StatusExempt)},
		},
		"confidence": {Type: genai.TypeNumber},
	},
}

// ParseCommand reads a free-text instruction against the roster's names.
// A status outside the closed set is dropped rather than failing the command.
func (c *DraftingClient) ParseCommand(ctx context.Context, text string, names []string) (*models.CommandIntent, error) {
	prompt := fmt.Sprintf(commandTemplate, strings.Join(names, ", "), strings.ReplaceAll(text, `"`, `'`))
	out, err := c.gen.Generate(ctx, prompt, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   commandSchema,
	})
	if err != nil {
		return nil, err
	}

	var raw struct {
		Found       bool    `json:"found"`
		StudentName string  `json:"studentName"`
		NewStatus   string  `json:"newStatus"`
		Confidence  float64 `json:"confidence"`
	}
	out = strings.TrimSpace(out)
	if out == "" {
		out = "{}"
	}
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		return nil, fmt.Errorf("decode command intent: %w", err)
	}

	intent := &models.CommandIntent{
		Found:       raw.Found,
		StudentName: raw.StudentName,
		Confidence:  raw.Confidence,
	}
	if raw.NewStatus != "" {
		if st, err := models.ParsePaymentStatus(raw.NewStatus); err == nil {
			intent.NewStatus = &st
		} else {
			log.WithFields(log.Fields{"status": raw.NewStatus}).Warn("Ignoring unknown status from command parser")
		}
	}
	return intent, nil
}
