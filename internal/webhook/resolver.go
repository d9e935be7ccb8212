package webhook

import (
	"context"
	"strings"

	"github.com/24ep/studio-sub000/internal/db"
	"github.com/24ep/studio-sub000/internal/logger"

	"github.com/rs/zerolog"
)

// URLResolver looks the endpoint up on every dispatch so a settings change
// takes effect without a restart. The settings table wins over the fallback,
// which already holds WEBHOOK_URL or the config file value.
type URLResolver struct {
	settings db.SettingsRepository
	fallback string
	log      zerolog.Logger
}

func NewURLResolver(settings db.SettingsRepository, fallback string) *URLResolver {
	return &URLResolver{
		settings: settings,
		fallback: strings.TrimSpace(fallback),
		log:      logger.Component("webhook"),
	}
}

// Resolve returns "" when no endpoint is configured anywhere.
func (r *URLResolver) Resolve(ctx context.Context) string {
	if r.settings != nil {
		value, err := r.settings.GetSetting(ctx, db.SettingWebhookURL)
		if err != nil {
			r.log.Warn().Err(err).Msg("Failed to read webhook url setting, using fallback")
		} else if v := strings.TrimSpace(value); v != "" {
			return v
		}
	}
	return r.fallback
}
