// Package aitools is the learning coach behind the student dashboard tools.
package aitools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"SpeakCEO/internal/openai"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const (
	DisabledMessage = "AI features are currently disabled. Please add your OpenAI API key to environment variables."
	ErrorMessage    = "I apologize, but I encountered an error. Please try asking your question again."
	EmptyMessage    = "I apologize, but I could not generate a response. Please try asking your question again."

	maxQuestionLength = 2000
	analysisTokens    = 500
)

var ErrUnknownTool = errors.New("unknown tool")

type Tool struct {
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

var Tools = []Tool{
	{Slug: "speak-smart", Name: "SpeakSmart", Description: "Public Speaking Coach", Category: "public speaking and presentation delivery"},
	{Slug: "math-mentor", Name: "MathMentor", Description: "Math Problem Solver", Category: "mathematics and problem solving"},
	{Slug: "write-right", Name: "WriteRight", Description: "Writing Assistant", Category: "writing, grammar and storytelling"},
	{Slug: "mind-maze", Name: "MindMaze", Description: "Logic Puzzles", Category: "logic puzzles and critical thinking"},
	{Slug: "pitch-deck", Name: "PitchDeck", Description: "Presentation Creator", Category: "startup pitch decks and investor presentations"},
	{Slug: "general", Name: "Coach", Description: "General entrepreneurship coach", Category: "entrepreneurship for young founders"},
}

func Lookup(slug string) (Tool, error) {
	for _, t := range Tools {
		if t.Slug == slug {
			return t, nil
		}
	}
	return Tool{}, fmt.Errorf("%w: %q", ErrUnknownTool, slug)
}

// Completer is the chat backend the coach talks to.
type Completer interface {
	Enabled() bool
	Complete(ctx context.Context, system, user string, maxTokens int64) (string, error)
}

type Coach struct {
	llm Completer
}

func NewCoach(llm Completer) *Coach {
	return &Coach{llm: llm}
}

func (c *Coach) Enabled() bool { return c.llm.Enabled() }

func systemPrompt(category string) string {
	return "You are an expert AI learning coach specializing in " + category + ".\n" +
		"Provide clear, concise, and structured responses with bullet points and real-world examples.\n" +
		"Keep responses under 200 words and focus on actionable advice."
}

// Truncate shortens s to at most n bytes without splitting a rune.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Ask always returns something to show the student. Upstream failures are
// logged and replaced by a canned message.
func (c *Coach) Ask(ctx context.Context, tool Tool, question string) string {
	question = Truncate(strings.TrimSpace(question), maxQuestionLength)
	if !c.llm.Enabled() {
		return DisabledMessage
	}
	reply, err := c.llm.Complete(ctx, systemPrompt(tool.Category), question, 0)
	if err != nil {
		log.WithError(err).WithField("tool", tool.Slug).Error("coach request failed")
		if errors.Is(err, openai.ErrDisabled) {
			return DisabledMessage
		}
		return ErrorMessage
	}
	if reply == "" {
		return EmptyMessage
	}
	return reply
}

type BrandRequest struct {
	Industry       string   `json:"industry"`
	TargetAudience string   `json:"targetAudience"`
	Values         []string `json:"values"`
}

type BrandSuggestion struct {
	Name        string   `json:"name"`
	Tagline     string   `json:"tagline"`
	Description string   `json:"description"`
	Colors      []string `json:"colors"`
}

var (
	defaultColors = []string{"#4F46E5", "#7C3AED", "#EC4899"}
	offlineBrand  = BrandSuggestion{Name: "Sample Brand", Tagline: "Your Success Story", Description: "A brand focused on success and innovation", Colors: defaultColors}
	failedBrand   = BrandSuggestion{Name: "Creative Brand", Tagline: "Innovation Meets Excellence", Description: "A forward-thinking brand built for success", Colors: defaultColors}

	hexColor         = regexp.MustCompile(`#[0-9A-Fa-f]{6}`)
	nameField        = jsonishField("name")
	taglineField     = jsonishField("tagline")
	descriptionField = jsonishField("description")
)

func jsonishField(field string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + field + `["']?\s*:\s*["']([^"']+)["']`)
}

func (c *Coach) BrandSuggestions(ctx context.Context, req BrandRequest) BrandSuggestion {
	if !c.llm.Enabled() {
		return offlineBrand
	}
	prompt := fmt.Sprintf(`Generate brand suggestions for:
Industry: %s
Target Audience: %s
Values: %s

Please provide:
1. A unique brand name
2. A catchy tagline
3. A brief description
4. Three brand colors (in hex format)

Format the response as JSON with keys name, tagline, description, colors.`,
		req.Industry, req.TargetAudience, strings.Join(req.Values, ", "))

	reply, err := c.llm.Complete(ctx,
		"You are a branding expert providing color, typography, and design suggestions based on brand values and industry.",
		prompt, analysisTokens)
	if err != nil || reply == "" {
		log.WithError(err).Error("brand suggestion request failed")
		return failedBrand
	}
	return parseBrand(reply)
}

// parseBrand accepts a JSON reply, optionally fenced, and falls back to
// pulling fields out of free text.
func parseBrand(reply string) BrandSuggestion {
	body := reply
	if i, j := strings.Index(body, "{"), strings.LastIndex(body, "}"); i >= 0 && j > i {
		body = body[i : j+1]
	}
	if gjson.Valid(body) {
		var s BrandSuggestion
		if err := json.Unmarshal([]byte(body), &s); err == nil && s.Name != "" {
			if len(s.Colors) == 0 {
				s.Colors = defaultColors
			}
			return s
		}
	}

	s := BrandSuggestion{
		Name:        "AI Generated Brand",
		Tagline:     "Powered by Innovation",
		Description: "An innovative brand concept",
		Colors:      hexColor.FindAllString(reply, -1),
	}
	if m := nameField.FindStringSubmatch(reply); m != nil {
		s.Name = m[1]
	}
	if m := taglineField.FindStringSubmatch(reply); m != nil {
		s.Tagline = m[1]
	}
	if m := descriptionField.FindStringSubmatch(reply); m != nil {
		s.Description = m[1]
	}
	if len(s.Colors) == 0 {
		s.Colors = defaultColors
	}
	return s
}

type ModelAnalysis struct {
	Suggestions []string `json:"suggestions"`
	Analysis    string   `json:"analysis"`
}

// AnalyzeBusinessModel reviews business model canvas components. Bullet lines
// of the reply become suggestions.
func (c *Coach) AnalyzeBusinessModel(ctx context.Context, components json.RawMessage) ModelAnalysis {
	if !c.llm.Enabled() {
		return ModelAnalysis{
			Suggestions: []string{"Consider your target market", "Define your value proposition", "Plan your revenue streams"},
			Analysis:    "AI analysis is currently disabled. Please add your OpenAI API key to use this feature.",
		}
	}
	reply, err := c.llm.Complete(ctx,
		"You are a business strategy expert analyzing business model components. Provide actionable insights and suggestions for improvement.",
		"Analyze this business model canvas and provide suggestions: "+string(components), analysisTokens)
	if err != nil {
		log.WithError(err).Error("business model analysis failed")
		return ModelAnalysis{
			Suggestions: []string{"Review your business model components", "Consider market validation", "Plan your go-to-market strategy"},
			Analysis:    "Failed to analyze business model. Please try again.",
		}
	}
	out := ModelAnalysis{Analysis: reply, Suggestions: []string{}}
	for _, line := range strings.Split(reply, "\n") {
		if s, ok := strings.CutPrefix(strings.TrimSpace(line), "- "); ok {
			out.Suggestions = append(out.Suggestions, s)
		}
	}
	return out
}
