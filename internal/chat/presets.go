package chat

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Presets carries the default assistant framing shipped with the server.
type Presets struct {
	SystemPrompt       string   `yaml:"systemPrompt" json:"systemPrompt"`
	SuggestedQuestions []string `yaml:"suggestedQuestions" json:"suggestedQuestions"`
}

// LoadPresets reads the presets YAML file. A missing file is not an error; it
// yields empty presets.
func LoadPresets(path string) (*Presets, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Presets{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading presets: %w", err)
	}

	var p Presets
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing presets: %w", err)
	}
	return &p, nil
}
