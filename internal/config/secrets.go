package config

// RedactedConfig returns a copy of cfg with credentials replaced by "***".
// Slices are copied so the result can be logged or mutated freely.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Server.APIKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	if cfg.Notify.Events != nil {
		out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	}
	if cfg.Server.CORSOrigins != nil {
		out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	}
	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
