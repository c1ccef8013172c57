package config

// RedactedConfig returns a copy of cfg with credentials replaced by "***",
// safe to log.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	out.Markets.Pinned = cloneStrings(cfg.Markets.Pinned)
	out.Markets.CategoryAllowlist = cloneStrings(cfg.Markets.CategoryAllowlist)
	out.Markets.CategoryDenylist = cloneStrings(cfg.Markets.CategoryDenylist)
	out.Server.CORSOrigins = cloneStrings(cfg.Server.CORSOrigins)
	return out
}

const redacted = "***"

func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
