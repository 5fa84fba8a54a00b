// Package screening ranks recordings by weighted keyword matches. It is a
// fast first pass that needs no inference service.
package screening

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	tserrors "github.com/c2buck/audio-transcriber/pkg/errors"
)

// Category is a weighted group of terms. Terms containing a space are
// phrases and score PhraseMultiplier times the category weight.
type Category struct {
	Name   string   `yaml:"name" json:"name"`
	Label  string   `yaml:"label,omitempty" json:"label,omitempty"`
	Weight float64  `yaml:"weight" json:"weight"`
	Terms  []string `yaml:"terms" json:"terms"`
}

// DisplayName returns the label, or the name when no label is set.
func (c Category) DisplayName() string {
	if c.Label != "" {
		return c.Label
	}
	return c.Name
}

// Validate checks the category definition.
func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("category name is required: %w", tserrors.ErrValidation)
	}
	if c.Weight <= 0 {
		return fmt.Errorf("category %s: weight must be positive: %w", c.Name, tserrors.ErrValidation)
	}
	if len(c.Terms) == 0 {
		return fmt.Errorf("category %s: at least one term is required: %w", c.Name, tserrors.ErrValidation)
	}
	return nil
}

// categoryFile is the YAML layout of a categories file.
type categoryFile struct {
	Categories []Category `yaml:"categories"`
}

// LoadCategories reads categories from a YAML file.
func LoadCategories(path string) ([]Category, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading categories file: %w", err)
	}
	return ParseCategories(data)
}

// ParseCategories parses YAML category definitions.
func ParseCategories(data []byte) ([]Category, error) {
	var file categoryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing categories: %w", err)
	}
	if len(file.Categories) == 0 {
		return nil, fmt.Errorf("no categories defined: %w", tserrors.ErrValidation)
	}
	for _, c := range file.Categories {
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}
	return file.Categories, nil
}

// DefaultCategories returns the built-in categories used when no file is given.
func DefaultCategories() []Category {
	return []Category{
		{
			Name:   "threats",
			Label:  "Threats and Violence",
			Weight: 50,
			Terms: []string{
				"i'll kill you", "i will kill you", "going to kill you", "gonna kill you",
				"i'll hurt you", "i will hurt you", "going to hurt you", "watch your back",
				"you'll pay", "you will pay", "you'll regret", "or else", "make you disappear",
				"kill", "murder", "hurt", "revenge", "payback",
			},
		},
		{
			Name:   "physical_abuse",
			Label:  "Physical Abuse",
			Weight: 40,
			Terms: []string{
				"hit you", "hit me", "hit her", "punch you", "punched me", "kick you", "kicked me",
				"beat you", "beat me", "choke you", "choked me", "pushed me", "threw me",
				"strangle", "choke", "slap", "punch", "kick",
			},
		},
		{
			Name:   "evidence_tampering",
			Label:  "Evidence Tampering",
			Weight: 30,
			Terms: []string{
				"delete the messages", "delete the photos", "wipe the phone", "get rid of the evidence",
				"destroy the evidence", "don't tell anyone", "keep your mouth shut", "no one will believe you",
				"cover up", "delete", "erase",
			},
		},
		{
			Name:   "version_change",
			Label:  "Version Change/Story Manipulation",
			Weight: 25,
			Terms: []string{
				"change your story", "tell them it was an accident", "say you fell", "tell them you fell",
				"say it was your fault", "get our story straight", "this is what you say",
			},
		},
		{
			Name:   "withdrawal_non_cooperation",
			Label:  "Withdrawal/Non-Cooperation",
			Weight: 20,
			Terms: []string{
				"drop the charges", "withdraw the statement", "withdraw your statement", "don't go to court",
				"don't give evidence", "don't make a statement", "tell the police nothing", "drop it",
			},
		},
		{
			Name:   "coercive_control",
			Label:  "Coercive Control",
			Weight: 18,
			Terms: []string{
				"you're not allowed", "you can't go", "give me your phone", "who were you talking to",
				"where have you been", "you need my permission", "i control the money",
			},
		},
		{
			Name:   "police_investigation",
			Label:  "Police Investigation References",
			Weight: 8,
			Terms: []string{
				"the police", "call the cops", "body camera", "intervention order", "make a statement",
				"police", "cops", "detective", "court", "lawyer",
			},
		},
	}
}
