package workflow

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRunName(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantErr     bool
		errContains string
	}{
		{
			name:    "valid simple name",
			input:   "fetch-a-user-profile-1a2b3c4d",
			wantErr: false,
		},
		{
			name:    "valid name with numbers",
			input:   "run-123",
			wantErr: false,
		},
		{
			name:    "valid single character",
			input:   "a",
			wantErr: false,
		},
		{
			name:        "empty name",
			input:       "",
			wantErr:     true,
			errContains: "cannot be empty",
		},
		{
			name:        "name too long",
			input:       strings.Repeat("a", 81),
			wantErr:     true,
			errContains: "too long",
		},
		{
			name:    "name at max length",
			input:   strings.Repeat("a", 80),
			wantErr: false,
		},
		{
			name:        "name starts with hyphen",
			input:       "-run",
			wantErr:     true,
			errContains: "alphanumeric",
		},
		{
			name:        "name ends with hyphen",
			input:       "run-",
			wantErr:     true,
			errContains: "alphanumeric",
		},
		{
			name:        "name with underscore",
			input:       "my_run",
			wantErr:     true,
			errContains: "alphanumeric",
		},
		{
			name:        "name with spaces",
			input:       "my run",
			wantErr:     true,
			errContains: "alphanumeric",
		},
		{
			name:        "path traversal with dots",
			input:       "../etc",
			wantErr:     true,
			errContains: "path traversal",
		},
		{
			name:        "path traversal with slash",
			input:       "runs/other",
			wantErr:     true,
			errContains: "path traversal",
		},
		{
			name:        "path traversal with backslash",
			input:       `runs\other`,
			wantErr:     true,
			errContains: "path traversal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRunName(tt.input)

			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidRunName))
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		name  string
		story string
		want  string
	}{
		{
			name:  "i want clause",
			story: "As a customer I want to fetch a user profile so that I can check my data",
			want:  "fetch-a-user-profile",
		},
		{
			name:  "i want without to",
			story: "I want a list of users",
			want:  "a-list-of-users",
		},
		{
			name:  "stops at comma",
			story: "I want to create a user, then verify it",
			want:  "create-a-user",
		},
		{
			name:  "stops at period",
			story: "I want to delete my account. Nothing else.",
			want:  "delete-my-account",
		},
		{
			name:  "no i want clause uses leading words",
			story: "Fetch the user profile and check the name",
			want:  "fetch-the-user-profile-and-check",
		},
		{
			name:  "strips punctuation and uppercase",
			story: "I want to POST /users & get an ID back!",
			want:  "post-users-get-an-id-back",
		},
		{
			name:  "caps at six words",
			story: "I want to go through every endpoint the service exposes today",
			want:  "go-through-every-endpoint-the-service",
		},
		{
			name:  "empty story falls back",
			story: "   ",
			want:  "story",
		},
		{
			name:  "punctuation only falls back",
			story: "???",
			want:  "story",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Slugify(tt.story)
			assert.Equal(t, tt.want, got)
			if got != "story" {
				assert.NoError(t, ValidateRunName(got))
			}
			assert.LessOrEqual(t, len(got), maxSlugLength)
		})
	}
}

func TestNewRunName(t *testing.T) {
	name, id := NewRunName("fetch-a-user-profile")

	require.NotEmpty(t, id)
	assert.Len(t, id, 36)
	assert.Equal(t, "fetch-a-user-profile-"+id[:8], name)
	assert.NoError(t, ValidateRunName(name))

	name2, id2 := NewRunName("fetch-a-user-profile")
	assert.NotEqual(t, id, id2)
	assert.NotEqual(t, name, name2)
}

func TestNewRunName_EmptySlug(t *testing.T) {
	name, id := NewRunName("")

	assert.Equal(t, "story-"+id[:8], name)
	assert.NoError(t, ValidateRunName(name))
}
