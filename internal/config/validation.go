package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

var validSSLModes = map[string]bool{
	"disable":     true,
	"allow":       true,
	"prefer":      true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// Validate checks the configuration for invalid or missing values.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	switch c.Provider {
	case ProviderGemini:
		if os.Getenv("GEMINI_API_KEY") == "" && os.Getenv("GOOGLE_API_KEY") == "" {
			return fmt.Errorf("%w: provider %q requires GEMINI_API_KEY or GOOGLE_API_KEY", ErrInvalidProvider, c.Provider)
		}
	case ProviderOpenAI:
		if os.Getenv("OPENAI_API_KEY") == "" {
			return fmt.Errorf("%w: provider %q requires OPENAI_API_KEY", ErrInvalidProvider, c.Provider)
		}
	case ProviderOllama:
		if err := validateOllamaHost(c.OllamaHost); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: %q (supported: gemini, ollama, openai)", ErrInvalidProvider, c.Provider)
	}

	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: model name is empty", ErrInvalidModelName)
	}
	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: embedder model is empty", ErrInvalidEmbedderModel)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: %.2f (must be between 0 and 2)", ErrInvalidTemperature, c.Temperature)
	}

	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: host is empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d (must be between 1 and 65535)", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: database name is empty", ErrInvalidPostgresDBName)
	}
	if !validSSLModes[c.PostgresSSLMode] {
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}

	if err := c.validateCrawler(); err != nil {
		return err
	}
	return c.validateRetrieval()
}

func (c *Config) validateCrawler() error {
	cr := c.Crawler
	if cr.Parallelism < 1 {
		return fmt.Errorf("%w: parallelism %d (must be >= 1)", ErrInvalidCrawler, cr.Parallelism)
	}
	if cr.DelayMs < 0 {
		return fmt.Errorf("%w: delay_ms %d (must be >= 0)", ErrInvalidCrawler, cr.DelayMs)
	}
	if cr.TimeoutMs < 1000 {
		return fmt.Errorf("%w: timeout_ms %d (must be >= 1000)", ErrInvalidCrawler, cr.TimeoutMs)
	}
	if cr.MaxPagesStageA < 1 {
		return fmt.Errorf("%w: max_pages_stage_a %d (must be >= 1)", ErrInvalidCrawler, cr.MaxPagesStageA)
	}
	if cr.MaxPagesStageB < cr.MaxPagesStageA {
		return fmt.Errorf("%w: max_pages_stage_b %d (must be >= max_pages_stage_a %d)",
			ErrInvalidCrawler, cr.MaxPagesStageB, cr.MaxPagesStageA)
	}
	if strings.TrimSpace(cr.UserAgent) == "" {
		return fmt.Errorf("%w: user_agent is empty", ErrInvalidCrawler)
	}
	return nil
}

func (c *Config) validateRetrieval() error {
	r := c.Retrieval
	if r.TopK < 1 {
		return fmt.Errorf("%w: top_k %d (must be >= 1)", ErrInvalidRetrieval, r.TopK)
	}
	if r.MaxCitations < 1 {
		return fmt.Errorf("%w: max_citations %d (must be >= 1)", ErrInvalidRetrieval, r.MaxCitations)
	}
	if r.MinConfidence < 0 || r.MinConfidence > 1 {
		return fmt.Errorf("%w: min_confidence %.2f (must be between 0 and 1)", ErrInvalidRetrieval, r.MinConfidence)
	}
	if r.ChunkSize < 100 {
		return fmt.Errorf("%w: chunk_size %d (must be >= 100)", ErrInvalidRetrieval, r.ChunkSize)
	}
	if r.ChunkOverlap < 0 || r.ChunkOverlap >= r.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap %d (must be >= 0 and < chunk_size)", ErrInvalidRetrieval, r.ChunkOverlap)
	}
	if c.PackTTLDays < 1 {
		return fmt.Errorf("%w: pack_ttl_days %d (must be >= 1)", ErrInvalidRetrieval, c.PackTTLDays)
	}
	return nil
}

func validateOllamaHost(host string) error {
	if strings.TrimSpace(host) == "" {
		return fmt.Errorf("%w: host is empty", ErrInvalidOllamaHost)
	}
	u, err := url.Parse(host)
	if err != nil {
		return fmt.Errorf("%w: %q: %w", ErrInvalidOllamaHost, host, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: %q (scheme must be http or https)", ErrInvalidOllamaHost, host)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: %q (missing host)", ErrInvalidOllamaHost, host)
	}
	return nil
}
