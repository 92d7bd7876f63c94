// Package prompts is the prompt catalog. Analyzers load prompts by ID; the
// catalog owns variable substitution, so callers pass values, never
// concatenated strings.
package prompts

import (
	"fmt"
	"regexp"
	"strings"
)

// Prompt is a loaded, fully-substituted prompt ready for an LLM call.
type Prompt struct {
	ID          string
	Model       string
	Temperature float64
	System      string
	User        string
}

// Catalog IDs. Context-aware visual prompting is a distinct named variant
// chosen by flag, not a runtime-spliced string.
const (
	VisualBase         = "visual.base"
	VisualContextAware = "visual.context-aware"
	Technical          = "technical"
	SocialPresence     = "social.presence"
	Accessibility      = "accessibility"
	Selection          = "selection"
	BenchmarkMatch     = "benchmark.match"
	SynthesisImpact    = "synthesis.impact"
	SynthesisExecutive = "synthesis.executive"
)

type promptDef struct {
	model       string
	temperature float64
	system      string
	user        string
}

// Catalog resolves prompt IDs to substituted prompts.
type Catalog struct {
	defs         map[string]promptDef
	defaultModel string
}

// NewCatalog creates a catalog with the built-in prompt set. defaultModel is
// used by prompts that do not pin their own model.
func NewCatalog(defaultModel string) *Catalog {
	return &Catalog{
		defs:         builtinPrompts(),
		defaultModel: defaultModel,
	}
}

var placeholderPattern = regexp.MustCompile(`\{\{([a-z_]+)\}\}`)

// Load resolves a prompt and substitutes its variables. Unknown IDs and
// unbound placeholders are errors, not silent blanks.
func (c *Catalog) Load(id string, vars map[string]string) (Prompt, error) {
	def, ok := c.defs[id]
	if !ok {
		return Prompt{}, fmt.Errorf("unknown prompt %q", id)
	}

	system, err := substitute(def.system, vars)
	if err != nil {
		return Prompt{}, fmt.Errorf("prompt %s system: %w", id, err)
	}
	user, err := substitute(def.user, vars)
	if err != nil {
		return Prompt{}, fmt.Errorf("prompt %s user: %w", id, err)
	}

	model := def.model
	if model == "" {
		model = c.defaultModel
	}

	return Prompt{
		ID:          id,
		Model:       model,
		Temperature: def.temperature,
		System:      system,
		User:        user,
	}, nil
}

func substitute(text string, vars map[string]string) (string, error) {
	var missing []string
	out := placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]
		val, ok := vars[key]
		if !ok {
			missing = append(missing, key)
			return match
		}
		return val
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("unbound variables: %s", strings.Join(missing, ", "))
	}
	return out, nil
}
