package workflow

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	// DefaultMaxStoryLength sets the default maximum length for user
	// stories. 8KB keeps the story comfortably inside one generation
	// prompt alongside the API hints and formatting instructions.
	//
	// The limit can be overridden via the STORYCHECK_MAX_STORY_LENGTH
	// environment variable.
	DefaultMaxStoryLength = 8192

	// MinStoryLength defines the minimum acceptable story length
	MinStoryLength = 1

	// EnvMaxStoryLength is the environment variable name for configuring the maximum story length
	EnvMaxStoryLength = "STORYCHECK_MAX_STORY_LENGTH"
)

// GetMaxStoryLength returns the configured maximum story length.
// It checks the STORYCHECK_MAX_STORY_LENGTH environment variable.
// If the environment variable is set and contains a valid positive integer, that value is returned.
// Otherwise, it returns DefaultMaxStoryLength.
// Invalid values (non-numeric, zero, or negative) silently fall back to the default.
func GetMaxStoryLength() int {
	envValue := os.Getenv(EnvMaxStoryLength)
	if envValue == "" {
		return DefaultMaxStoryLength
	}

	value, err := strconv.Atoi(envValue)
	if err != nil || value <= 0 {
		return DefaultMaxStoryLength
	}

	return value
}

// ValidateStory validates a user story before a run is created.
// Rules:
// - Cannot be empty or whitespace only
// - Maximum configurable length (default DefaultMaxStoryLength, override via STORYCHECK_MAX_STORY_LENGTH)
func ValidateStory(story string) error {
	if strings.TrimSpace(story) == "" {
		return ErrEmptyStory
	}

	maxLength := GetMaxStoryLength()
	if len(story) > maxLength {
		overLimit := len(story) - maxLength
		return fmt.Errorf("%w: %d characters (max %d characters, %d over limit)",
			ErrStoryTooLong, len(story), maxLength, overLimit)
	}

	return nil
}
