package prompt

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Persona is one voice entry in the persona profile.
type Persona struct {
	Label     string `yaml:"label"`
	ModeLabel string `yaml:"modeLabel"`
	Voice     string `yaml:"voice"`
	Urgent    bool   `yaml:"urgent"`
}

// Profile is the on-disk persona catalog.
type Profile struct {
	DefaultMode string    `yaml:"defaultMode"`
	Personas    []Persona `yaml:"personas"`
}

// DefaultProfile is used when no profile file is configured.
func DefaultProfile() *Profile {
	return &Profile{
		DefaultMode: "System-mode",
		Personas: []Persona{
			{Label: "diogenes", ModeLabel: "System-mode", Voice: "Blunt, norm-challenging, no flattery."},
			{Label: "cassandra", ModeLabel: "Sentinel-mode", Voice: "Direct warnings, surfaces risk early.", Urgent: true},
		},
	}
}

// LoadProfile reads a YAML persona profile; empty path returns defaults.
func LoadProfile(path string) (*Profile, error) {
	if path == "" {
		return DefaultProfile(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("persona profile read %s: %w", path, err)
	}
	var p Profile
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("persona profile parse %s: %w", path, err)
	}
	if p.DefaultMode == "" {
		p.DefaultMode = "System-mode"
	}
	return &p, nil
}

// Find returns the persona by label, case-insensitive, or nil.
func (p *Profile) Find(label string) *Persona {
	for i := range p.Personas {
		if strings.EqualFold(p.Personas[i].Label, label) {
			return &p.Personas[i]
		}
	}
	return nil
}
