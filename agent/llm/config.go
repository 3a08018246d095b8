package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/chative-pizzeria/agent/contract"
	openrouterx "github.com/tanpawarit/chative-pizzeria/pkg/openrouter"
)

type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" required:"true"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"2000"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.5"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
	MaxRetries         int           `envconfig:"MAX_RETRIES" split_words:"true" default:"3"`
	RetryBackoff       time.Duration `envconfig:"RETRY_BACKOFF" split_words:"true" default:"500ms"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`

	RespondModel        string  `envconfig:"RESPOND_MODEL" split_words:"true"`
	FinalizeModel       string  `envconfig:"FINALIZE_MODEL" split_words:"true"`
	RespondTemperature  float32 `envconfig:"RESPOND_TEMPERATURE" split_words:"true" default:"-1"`
	FinalizeTemperature float32 `envconfig:"FINALIZE_TEMPERATURE" split_words:"true" default:"-1"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: openrouter api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrValidation)
	}
	if c.MaxCompletionToken <= 0 {
		return fmt.Errorf("%w: max completion token must be > 0", contractx.ErrValidation)
	}
	return nil
}

// OpenRouterFor resolves the model settings used by one dialogue stage.
func (c Config) OpenRouterFor(stage contractx.Stage) openrouterx.Config {
	modelName := strings.TrimSpace(c.Model)
	temp := c.Temperature

	switch stage {
	case contractx.StageRespond:
		if v := strings.TrimSpace(c.RespondModel); v != "" {
			modelName = v
		}
		if c.RespondTemperature >= 0 {
			temp = c.RespondTemperature
		}
	case contractx.StageFinalize:
		if v := strings.TrimSpace(c.FinalizeModel); v != "" {
			modelName = v
		}
		if c.FinalizeTemperature >= 0 {
			temp = c.FinalizeTemperature
		}
	}

	maxCompletionToken := c.MaxCompletionToken
	return openrouterx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              modelName,
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        temp,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}
}

func (c Config) RetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts: c.MaxRetries,
		Timeout:  c.Timeout,
		Backoff:  c.RetryBackoff,
	}
}
