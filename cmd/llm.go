package cmd

import (
	"errors"
	"os"

	"github.com/spf13/viper"

	"github.com/joescharf/ado/internal/llm"
)

var errLLMNotConfigured = errors.New("task suggestions need an Anthropic API key: set anthropic.api_key, ADO_ANTHROPIC_API_KEY, or ANTHROPIC_API_KEY")

// newLLMClient builds the suggestion client. Callers that can run without
// suggestions treat errLLMNotConfigured as "no client".
func newLLMClient() (*llm.Client, error) {
	apiKey := viper.GetString("anthropic.api_key")
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, errLLMNotConfigured
	}
	return llm.NewClient(apiKey, viper.GetString("anthropic.model")), nil
}
