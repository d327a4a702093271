package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Profile holds the court-specific thresholds the rule catalog evaluates
// against. Profiles are loadable from a YAML file; Default covers courts
// with no file configured.
type Profile struct {
	Name                string           `yaml:"name"`
	MinLeftMarginInches float64          `yaml:"min_left_margin_inches"`
	RequiredFont        string           `yaml:"required_font"`
	TargetLanguage      string           `yaml:"target_language"`
	StampDutyPaise      map[string]int64 `yaml:"stamp_duty_paise"` // by case category
}

// Default returns the built-in profile used when no profile file is configured.
func Default() *Profile {
	return &Profile{
		Name:                "default",
		MinLeftMarginInches: 1.5,
		RequiredFont:        "Times New Roman",
		TargetLanguage:      "en",
		StampDutyPaise: map[string]int64{
			"civil-suit":    50000,
			"writ-petition": 25000,
			"appeal":        100000,
		},
	}
}

// RequiredStampDuty returns the fee schedule entry for a case category,
// falling back to zero when the category is not scheduled.
func (p *Profile) RequiredStampDuty(category string) int64 {
	return p.StampDutyPaise[category]
}

// LoadProfiles reads a YAML file mapping profile names to profiles.
func LoadProfiles(path string) (map[string]*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}

	var profiles map[string]*Profile
	if err := yaml.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("parse profiles %s: %w", path, err)
	}
	for name, p := range profiles {
		if p.Name == "" {
			p.Name = name
		}
	}
	return profiles, nil
}
