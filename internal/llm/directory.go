package llm

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"github.com/rs/zerolog"
)

// ErrModelUnavailable is returned by Resolve when the requested judge model
// cannot be invoked with the current credentials.
var ErrModelUnavailable = errors.New("judge model unavailable")

// ClientBuilder constructs an LLMClient for a canonical model identifier.
type ClientBuilder func(modelID string) (LLMClient, error)

// ModelLister fetches the remote list of invocable model identifiers.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// ModelListCache stores the remote model list between resolutions. The TTL
// and invalidation policy belong to the cache implementation, not to the
// directory.
type ModelListCache interface {
	Get(ctx context.Context) ([]string, bool)
	Set(ctx context.Context, models []string)
	Invalidate(ctx context.Context) error
}

// Directory resolves judge model identifiers to callable clients. Resolution
// happens once per evaluator lifetime; per-call retry is the caller's
// explicit non-goal.
type Directory struct {
	build  ClientBuilder
	lister ModelLister
	cache  ModelListCache
	logger *zerolog.Logger
}

func NewDirectory(build ClientBuilder, lister ModelLister, cache ModelListCache, logger *zerolog.Logger) *Directory {
	return &Directory{
		build:  build,
		lister: lister,
		cache:  cache,
		logger: logger,
	}
}

// Resolve normalizes the identifier, confirms the model is invocable, and
// returns a client for it. Unknown identifiers fall back to the default
// model rather than failing, matching how stored run configs can outlive the
// remote model catalog.
func (d *Directory) Resolve(ctx context.Context, modelID string) (LLMClient, error) {
	canonical := CanonicalModelName(modelID)

	if d.lister != nil {
		available, err := d.availableModels(ctx)
		if err != nil {
			d.logger.Warn().Err(err).Str("model", canonical).Msg("model list unavailable")
			return nil, ErrModelUnavailable
		}
		if !contains(available, canonical) {
			d.logger.Warn().Str("model", canonical).Msg("model not in remote catalog")
			return nil, ErrModelUnavailable
		}
	}

	client, err := d.build(canonical)
	if err != nil {
		d.logger.Warn().Err(err).Str("model", canonical).Msg("failed to build judge client")
		return nil, ErrModelUnavailable
	}

	return client, nil
}

// Invalidate drops the cached model list so the next Resolve re-fetches it.
func (d *Directory) Invalidate(ctx context.Context) error {
	if d.cache == nil {
		return nil
	}
	return d.cache.Invalidate(ctx)
}

func (d *Directory) availableModels(ctx context.Context) ([]string, error) {
	if d.cache != nil {
		if cached, ok := d.cache.Get(ctx); ok {
			return cached, nil
		}
	}

	listed, err := d.lister.ListModels(ctx)
	if err != nil {
		return nil, err
	}

	if d.cache != nil {
		d.cache.Set(ctx, listed)
	}

	d.logger.Info().Int("models", len(listed)).Msg("model catalog refreshed")
	return listed, nil
}

func contains(models []string, name string) bool {
	for _, m := range models {
		if m == name {
			return true
		}
	}
	return false
}

// Aliases for judge model names that storage may still carry. Names without
// a mapping keep their cleaned form; fully unknown names get the default.
var modelAliases = map[string]string{
	"gemini-pro":       "models/gemini-2.0-flash",
	"gemini-1.0-pro":   "models/gemini-2.0-flash",
	"gemini-1.5-pro":   "models/gemini-1.5-pro",
	"gemini-1.5-flash": "models/gemini-1.5-flash",
}

const DefaultModelID = "models/gemini-2.0-flash"

// CanonicalModelName maps a stored judge model identifier to the form the
// remote API accepts, stripping trailing numeric revision suffixes like
// "-002" and applying the alias table.
func CanonicalModelName(modelID string) string {
	name := strings.TrimSpace(modelID)
	if name == "" {
		return DefaultModelID
	}

	if !strings.HasPrefix(name, "models/") {
		// Drop revision suffixes such as gemini-1.5-flash-002.
		if idx := strings.LastIndex(name, "-"); idx > 0 && isDigits(name[idx+1:]) {
			name = name[:idx]
		}
	}

	if canonical, ok := modelAliases[name]; ok {
		return canonical
	}

	if strings.HasPrefix(name, "models/") {
		return name
	}

	return "models/" + name
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
