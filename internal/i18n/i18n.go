package i18n

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

type ctxKey struct{}

var (
	mu          sync.RWMutex
	bundle      *i18n.Bundle
	defaultLang = "en"
)

func init() {
	if err := Init(defaultLang); err != nil {
		panic(err)
	}
}

// Init loads the embedded translations with lang as the fallback language.
func Init(lang string) error {
	tag, err := language.Parse(lang)
	if err != nil {
		return fmt.Errorf("parse language %q: %w", lang, err)
	}

	b := i18n.NewBundle(tag)
	b.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return fmt.Errorf("read locales dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := localeFS.ReadFile("locales/" + e.Name())
		if err != nil {
			return fmt.Errorf("read locale file %s: %w", e.Name(), err)
		}
		if _, err := b.ParseMessageFileBytes(data, e.Name()); err != nil {
			return fmt.Errorf("parse locale file %s: %w", e.Name(), err)
		}
	}

	mu.Lock()
	bundle = b
	defaultLang = lang
	mu.Unlock()
	return nil
}

// NewLocalizer creates a localizer preferring langs in order, e.g. the
// raw Accept-Language header followed by a user setting.
func NewLocalizer(langs ...string) *i18n.Localizer {
	mu.RLock()
	defer mu.RUnlock()
	return i18n.NewLocalizer(bundle, append(langs, defaultLang)...)
}

// WithLocalizer stores a localizer in the context.
func WithLocalizer(ctx context.Context, loc *i18n.Localizer) context.Context {
	return context.WithValue(ctx, ctxKey{}, loc)
}

// FromContext retrieves the localizer from ctx, falling back to the default language.
func FromContext(ctx context.Context) *i18n.Localizer {
	if ctx != nil {
		if loc, ok := ctx.Value(ctxKey{}).(*i18n.Localizer); ok {
			return loc
		}
	}
	return NewLocalizer()
}

// Localize translates msgID with optional template data. Missing ids come back unchanged.
func Localize(loc *i18n.Localizer, msgID string, data map[string]any) string {
	s, err := loc.Localize(&i18n.LocalizeConfig{
		MessageID:    msgID,
		TemplateData: data,
	})
	if err != nil {
		log.Warn().Err(err).Str("id", msgID).Msg("Missing translation")
		return msgID
	}
	return s
}

// T translates a message by ID.
func T(ctx context.Context, msgID string) string {
	return Localize(FromContext(ctx), msgID, nil)
}

// Td translates a message by ID with template data.
func Td(ctx context.Context, msgID string, data map[string]any) string {
	return Localize(FromContext(ctx), msgID, data)
}
