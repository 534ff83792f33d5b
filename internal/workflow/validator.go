package workflow

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var (
	// validRunNameRegex ensures alphanumeric characters and hyphens only
	validRunNameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]*[a-zA-Z0-9])?$`)

	slugStrip = regexp.MustCompile(`[^a-z0-9]+`)
)

const (
	maxRunNameLength = 80
	maxSlugLength    = 48
	maxSlugWords     = 6
)

// ValidateRunName validates a run name before it is used as a directory
// path component.
// Rules:
// - 1-80 characters
// - Alphanumeric and hyphens only
// - Cannot start or end with hyphen
// - No path traversal sequences
func ValidateRunName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidRunName)
	}

	if len(name) > maxRunNameLength {
		return fmt.Errorf("%w: name too long (max %d characters)", ErrInvalidRunName, maxRunNameLength)
	}

	// Check for path traversal first (more specific error message)
	if strings.Contains(name, "..") || strings.Contains(name, "/") || strings.Contains(name, "\\") {
		return fmt.Errorf("%w: name cannot contain path traversal sequences", ErrInvalidRunName)
	}

	if !validRunNameRegex.MatchString(name) {
		return fmt.Errorf("%w: must contain only alphanumeric characters and hyphens, and cannot start or end with hyphen", ErrInvalidRunName)
	}

	return nil
}

// Slugify derives a short filesystem-friendly identifier from a story.
// The "I want" clause is preferred when present, otherwise the leading
// words are used. The result is lowercase words joined by hyphens.
func Slugify(story string) string {
	text := strings.ToLower(strings.TrimSpace(story))

	if idx := strings.Index(text, "i want "); idx >= 0 {
		text = text[idx+len("i want "):]
	}
	for _, stop := range []string{" so that ", ",", ".", ";", "\n"} {
		if idx := strings.Index(text, stop); idx >= 0 {
			text = text[:idx]
		}
	}
	text = strings.TrimPrefix(strings.TrimSpace(text), "to ")

	words := strings.Fields(slugStrip.ReplaceAllString(text, " "))
	if len(words) > maxSlugWords {
		words = words[:maxSlugWords]
	}

	slug := strings.Join(words, "-")
	if len(slug) > maxSlugLength {
		slug = strings.Trim(slug[:maxSlugLength], "-")
	}
	if slug == "" {
		return "story"
	}
	return slug
}

// NewRunName combines a story slug with a fresh short unique suffix into
// the run's directory name, and returns the full run ID alongside it.
func NewRunName(slug string) (name, id string) {
	id = uuid.NewString()
	if slug == "" {
		slug = "story"
	}
	return slug + "-" + id[:8], id
}
