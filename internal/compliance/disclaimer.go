package compliance

import (
	"fmt"
	"strings"
)

// DisclaimerLevel represents the verbosity of the disclaimer.
type DisclaimerLevel string

const (
	// DisclaimerShort is the shortest disclaimer.
	DisclaimerShort DisclaimerLevel = "short"
	// DisclaimerMedium is a moderate disclaimer.
	DisclaimerMedium DisclaimerLevel = "medium"
	// DisclaimerFull is the most comprehensive disclaimer.
	DisclaimerFull DisclaimerLevel = "full"
)

// Disclaimer templates
const (
	disclaimerShortText = "Automated assistant. Not medical advice."

	disclaimerMediumText = "This is an automated assistant. For medical advice, please consult your provider."

	disclaimerFullText = "This is an automated portal assistant. The information provided summarizes your records and is not a substitute for professional medical advice. Please consult with a licensed healthcare provider for medical guidance."
)

// DisclaimerConfig configures the disclaimer service.
type DisclaimerConfig struct {
	// Level determines which disclaimer template to use.
	Level DisclaimerLevel
	// Enabled controls whether disclaimers are appended to chat answers.
	Enabled bool
	// CustomText overrides the default template.
	CustomText string
}

// DefaultDisclaimerConfig returns sensible defaults.
func DefaultDisclaimerConfig() DisclaimerConfig {
	return DisclaimerConfig{
		Level:   DisclaimerMedium,
		Enabled: false,
	}
}

// DisclaimerService appends a legal disclaimer to assistant answers.
type DisclaimerService struct {
	config DisclaimerConfig
}

// NewDisclaimerService creates a new disclaimer service.
func NewDisclaimerService(config DisclaimerConfig) *DisclaimerService {
	return &DisclaimerService{config: config}
}

// Text returns the configured disclaimer text.
func (s *DisclaimerService) Text() string {
	if s.config.CustomText != "" {
		return s.config.CustomText
	}

	switch s.config.Level {
	case DisclaimerShort:
		return disclaimerShortText
	case DisclaimerFull:
		return disclaimerFullText
	default:
		return disclaimerMediumText
	}
}

// Decorate appends the disclaimer to an assistant answer if configured.
func (s *DisclaimerService) Decorate(message string) string {
	if !s.config.Enabled || message == "" {
		return message
	}

	disclaimer := s.Text()

	// Don't add if already present.
	if strings.Contains(message, disclaimer) {
		return message
	}

	return fmt.Sprintf("%s\n\n%s", strings.TrimSpace(message), disclaimer)
}
