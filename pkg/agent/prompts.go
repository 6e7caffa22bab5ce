package agent

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/duitwise/duitwise-engine/pkg/llm"
	"github.com/duitwise/duitwise-engine/pkg/models"
)

//go:embed templates.yaml
var templatesYAML []byte

// Template is one prompt specialization. Content is opaque data to the
// orchestrator and swappable without code changes.
type Template struct {
	Name      string `yaml:"name"`
	System    string `yaml:"system"`
	Reference string `yaml:"reference"`
}

// templateFile is the on-disk registry layout.
type templateFile struct {
	Default   Template                   `yaml:"default"`
	Templates map[models.Intent]Template `yaml:"templates"`
}

// Composer selects a specialization template by intent and merges it with
// the assembled context and conversation history into a provider payload.
type Composer struct {
	defaultTemplate Template
	templates       map[models.Intent]Template

	// maxHistoryMessages bounds how much prior conversation rides along.
	maxHistoryMessages int
}

// NewComposer loads the embedded template registry.
func NewComposer() (*Composer, error) {
	var file templateFile
	if err := yaml.Unmarshal(templatesYAML, &file); err != nil {
		return nil, fmt.Errorf("parse prompt templates: %w", err)
	}
	if file.Default.System == "" {
		return nil, fmt.Errorf("prompt template registry has no default")
	}

	return &Composer{
		defaultTemplate:    file.Default,
		templates:          file.Templates,
		maxHistoryMessages: 10,
	}, nil
}

// TemplateFor returns the specialization for an intent, falling back to the
// default. Pure lookup.
func (c *Composer) TemplateFor(intent models.Intent) Template {
	if t, ok := c.templates[intent]; ok {
		return t
	}
	return c.defaultTemplate
}

// Compose builds the provider message list: the specialized system prompt
// (with reference data and transparency suffix), recent history, and the
// user message carrying the serialized context block. additionalContext, if
// non-empty, is appended to the system prompt.
func (c *Composer) Compose(
	assembled *models.AssembledContext,
	history []models.Message,
	additionalContext string,
) ([]llm.Message, error) {
	tmpl := c.TemplateFor(assembled.Intent)

	system := tmpl.System
	if tmpl.Reference != "" {
		system += "\n\nReference data:\n" + tmpl.Reference
	}
	if additionalContext != "" {
		system += "\n\n" + additionalContext
	}
	system += "\n\n" + transparencySuffix(assembled)

	messages := []llm.Message{{Role: llm.RoleSystem, Content: system}}

	start := 0
	if len(history) > c.maxHistoryMessages {
		start = len(history) - c.maxHistoryMessages
	}
	for _, m := range history[start:] {
		role := llm.RoleUser
		if m.Role == models.ChatRoleAssistant {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: m.Content})
	}

	contextBlock, err := json.MarshalIndent(assembled, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("serialize context: %w", err)
	}

	messages = append(messages, llm.Message{
		Role:    llm.RoleUser,
		Content: fmt.Sprintf("Financial context:\n```json\n%s\n```\n\nQuestion: %s", contextBlock, assembled.Query),
	})

	return messages, nil
}

// transparencySuffix tells the model what data backs the answer so it can
// disclose coverage honestly.
func transparencySuffix(assembled *models.AssembledContext) string {
	return fmt.Sprintf(
		"Data transparency: this answer is based on %d records from the following sources: %v. State clearly when the data does not cover what was asked.",
		assembled.TotalRecords, assembled.Metadata.RetrieversUsed)
}
