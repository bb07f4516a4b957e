package config

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var sqlIdentPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks struct tags and the cross-section rules tags cannot express.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.RegisterValidation("sqlident", func(fl validator.FieldLevel) bool {
		return sqlIdentPattern.MatchString(fl.Field().String())
	}); err != nil {
		return fmt.Errorf("failed to register validator: %w", err)
	}

	if err := validate.Struct(c); err != nil {
		return err
	}

	var errs []error
	switch c.AI.Provider {
	case "gemini":
		if c.Gemini.APIKey == "" {
			errs = append(errs, errors.New("gemini.api_key is required when ai.provider is gemini"))
		}
		if c.Gemini.ModelName == "" {
			errs = append(errs, errors.New("gemini.model_name is required when ai.provider is gemini"))
		}
	case "openai":
		if c.OpenAI.APIKey == "" {
			errs = append(errs, errors.New("openai.api_key is required when ai.provider is openai"))
		}
		if c.OpenAI.Model == "" {
			errs = append(errs, errors.New("openai.model is required when ai.provider is openai"))
		}
	}

	if c.VectorStore.Enabled && c.Embedding.APIKey == "" {
		errs = append(errs, errors.New("embedding.api_key is required when vector_store.enabled is true"))
	}

	return errors.Join(errs...)
}
