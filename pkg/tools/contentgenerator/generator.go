// Package contentgenerator produces publish-ready titles, descriptions and
// hashtags for a topic. Generation goes through the oracle; when the oracle
// is unreachable the tool falls back to deterministic templates so a
// workflow never stalls on copy.
package contentgenerator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Jeffail/gabs/v2"

	"github.com/parleyhq/parley/pkg/models"
	"github.com/parleyhq/parley/pkg/oracle"
)

const (
	defaultStyle  = "travel"
	defaultLength = "medium"
	maxTitleRunes = 20
)

// Generator is the content-generator tool.
type Generator struct {
	oracle oracle.Client
	logger *slog.Logger
}

func New(client oracle.Client, logger *slog.Logger) *Generator {
	return &Generator{
		oracle: client,
		logger: logger.With("module", "content_generator"),
	}
}

func (g *Generator) ID() string {
	return "content-generator"
}

func (g *Generator) Execute(ctx context.Context, params map[string]any, onProgress models.ProgressFunc) (map[string]any, error) {
	topic, _ := params["topic"].(string)
	if topic == "" {
		return nil, fmt.Errorf("%w: topic", ErrMissingParameter)
	}

	style, _ := params["style"].(string)
	if style == "" {
		style = defaultStyle
	}

	length, _ := params["length"].(string)
	if length == "" {
		length = defaultLength
	}

	keywords := stringList(params["keywords"])
	sourceFile, _ := params["source_file"].(string)
	contentType, _ := params["content_type"].(string)

	report(onProgress, 10, "Building content prompt...")

	prompt := buildPrompt(topic, style, length, keywords, sourceFile, contentType)

	report(onProgress, 30, "Generating content...")

	content := g.generate(ctx, prompt, topic, style)

	report(onProgress, 90, "Polishing content...")

	content = optimize(content, style)

	report(onProgress, 100, "Content generated")

	return map[string]any{
		"title":       content.Title,
		"description": content.Description,
		"tags":        content.Tags,
		"hashtags":    content.Hashtags,
		"style":       style,
		"topic":       topic,
		"word_count":  len([]rune(content.Description)),
		"generatedAt": time.Now().UTC().Format(time.RFC3339),
	}, nil
}

type generated struct {
	Title       string
	Description string
	Tags        []string
	Hashtags    []string
}

// generate asks the oracle for structured copy; any failure degrades to the
// deterministic template output.
func (g *Generator) generate(ctx context.Context, prompt, topic, style string) generated {
	text, err := g.oracle.Complete(ctx, prompt)
	if err != nil {
		g.logger.WarnContext(ctx, "Oracle unavailable, using template content", "error", err)

		return templateContent(topic, style)
	}

	content, ok := parseGenerated(text)
	if !ok {
		g.logger.WarnContext(ctx, "Could not parse generated content, using template content")

		return templateContent(topic, style)
	}

	return content
}

func buildPrompt(topic, style, length string, keywords []string, sourceFile, contentType string) string {
	var b strings.Builder

	b.WriteString("Generate publish-ready content for the following topic.\n\n")
	fmt.Fprintf(&b, "Topic: %s\nStyle: %s\nLength: %s\n", topic, style, length)

	if len(keywords) > 0 {
		fmt.Fprintf(&b, "Keywords: %s\n", strings.Join(keywords, ", "))
	}

	if sourceFile != "" {
		fmt.Fprintf(&b, "Reference file: %s\n", sourceFile)
	}

	switch contentType {
	case "video":
		b.WriteString("\nThis copy accompanies a video; write for spoken delivery.\n")
	case "audio_image_mix":
		b.WriteString("\nThis copy accompanies an audio and image post; write for visual browsing.\n")
	}

	b.WriteString(`
Respond with JSON only, in exactly this shape:
{
  "title": "catchy title, 8-20 characters",
  "description": "engaging description, 100-500 characters",
  "tags": ["tag1", "tag2", "tag3"],
  "hashtags": ["#topic1", "#topic2", "#topic3"]
}
`)

	return b.String()
}

// parseGenerated extracts the JSON object the oracle was asked for. The
// oracle often wraps it in prose, so take the widest brace span.
func parseGenerated(text string) (generated, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")

	if start < 0 || end <= start {
		return generated{}, false
	}

	container, err := gabs.ParseJSON([]byte(text[start : end+1]))
	if err != nil {
		return generated{}, false
	}

	title, _ := container.Path("title").Data().(string)
	description, _ := container.Path("description").Data().(string)

	if title == "" && description == "" {
		return generated{}, false
	}

	return generated{
		Title:       title,
		Description: description,
		Tags:        stringList(container.Path("tags").Data()),
		Hashtags:    stringList(container.Path("hashtags").Data()),
	}, true
}

// optimize enforces the output contract: bounded title, non-empty
// description, at least one tag and hashtag.
func optimize(content generated, style string) generated {
	title := []rune(content.Title)
	if len(title) > maxTitleRunes {
		content.Title = string(title[:maxTitleRunes]) + "..."
	}

	if content.Title == "" {
		content.Title = "Worth sharing"
	}

	if len([]rune(content.Description)) < 10 {
		content.Description = defaultDescription(content.Title, style)
	}

	if len(content.Tags) == 0 {
		content.Tags = defaultTags(style)
	}

	if len(content.Hashtags) == 0 {
		content.Hashtags = defaultHashtags(style)
	}

	return content
}

func templateContent(topic, style string) generated {
	title := topic
	if len([]rune(title)) > maxTitleRunes {
		title = string([]rune(title)[:maxTitleRunes])
	}

	return generated{
		Title:       title,
		Description: defaultDescription(title, style),
		Tags:        defaultTags(style),
		Hashtags:    defaultHashtags(style),
	}
}

func defaultDescription(title, style string) string {
	switch style {
	case "travel":
		return title + " - a travel experience worth sharing, full of scenery and culture you will not want to leave behind."
	case "professional":
		return title + " - professional insights and practical takeaways, shared for your benefit."
	case "creative":
		return title + " - endless creativity, let's explore what is possible together."
	default:
		return title + " - sharing something fun and interesting, hope it brightens your day."
	}
}

func defaultTags(style string) []string {
	switch style {
	case "travel":
		return []string{"travel", "scenery", "experience"}
	case "professional":
		return []string{"professional", "knowledge", "learning"}
	case "creative":
		return []string{"creative", "inspiration", "art"}
	default:
		return []string{"life", "sharing", "daily"}
	}
}

func defaultHashtags(style string) []string {
	switch style {
	case "travel":
		return []string{"#traveldiary", "#scenery", "#travelexperience"}
	case "professional":
		return []string{"#knowledge", "#professional", "#growth"}
	case "creative":
		return []string{"#creative", "#inspiration", "#artwork"}
	default:
		return []string{"#dailylife", "#sharing", "#goodvibes"}
	}
}

func stringList(value any) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))

		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}

		return out
	default:
		return nil
	}
}

func report(onProgress models.ProgressFunc, percent int, message string) {
	if onProgress == nil {
		return
	}

	onProgress(models.StepProgress{Percent: percent, Message: message})
}
