package config

import (
	"fmt"
	"os"
)

// StarterYAML is the configuration written by `storycheck init`. It targets
// the public reqres.in demo API so a first run works without any setup
// beyond an API key for the generation capability.
const StarterYAML = `# storycheck configuration
api:
  name: reqres
  baseURL: https://reqres.in/api
  endpoints:
    get_user: /users/{user_id}
    list_users: /users
    create_user: /users
  parameters:
    valid_user_id: "2"
    missing_user_id: "23"
    page: "1"
  headers:
    x-api-key: reqres-free-v1

generation:
  # OpenAI-compatible endpoint; leave empty for api.openai.com.
  baseURL: ""
  model: gpt-4o-mini
  apiKeyEnv: OPENAI_API_KEY
  timeout: 60s
  temperature: 0.2
  maxTokens: 4096

run:
  timeout: 120s
  perRequestTimeout: 10s
  parallel: 1
`

// WriteStarter writes StarterYAML to path. It refuses to overwrite an
// existing file unless force is set.
func WriteStarter(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	if err := os.WriteFile(path, []byte(StarterYAML), 0644); err != nil {
		return fmt.Errorf("failed to write starter config: %w", err)
	}
	return nil
}
