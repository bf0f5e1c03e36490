package config

import "strings"

// normalizeDatabaseConfig fills host-style defaults so DSNValue and log
// output agree on what is actually used.
func normalizeDatabaseConfig(cfg DatabaseRuntimeConfig) DatabaseRuntimeConfig {
	cfg.Driver = strings.ToLower(orDefault(cfg.Driver, defaultDBDriver))
	cfg.DSN = strings.TrimSpace(cfg.DSN)
	cfg.Host = orDefault(cfg.Host, defaultDBHost)
	cfg.Port = orDefaultInt(cfg.Port, defaultDBPort)
	cfg.User = orDefault(cfg.User, defaultDBUser)
	cfg.Name = orDefault(cfg.Name, defaultDBName)
	cfg.Path = orDefault(cfg.Path, defaultSQLitePath)
	return cfg
}

func normalizeRedisConfig(cfg RedisRuntimeConfig) RedisRuntimeConfig {
	cfg.URL = normalizeRedisRawURL(cfg.URL)
	cfg.Host = strings.TrimSpace(cfg.Host)
	if cfg.URL == "" {
		cfg.Host = orDefault(cfg.Host, defaultRedisHost)
	}
	cfg.Port = orDefaultInt(cfg.Port, defaultRedisPort)
	cfg.DB = max(cfg.DB, defaultRedisDB)
	return cfg
}

// normalizeRedisRawURL accepts bare host:port/db and adds the scheme.
func normalizeRedisRawURL(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" || strings.HasPrefix(u, "redis://") || strings.HasPrefix(u, "rediss://") {
		return u
	}
	return "redis://" + u
}

func normalizeAIProviderType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "openai":
		return "OpenAI"
	case "anthropic":
		return "Anthropic"
	case "openrouter":
		return "OpenRouter"
	default:
		return "OpenAI-Compatible"
	}
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, origin := range origins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(env string) string {
	return strings.ToLower(orDefault(env, defaultEnv))
}

func normalizeRuntimePaths(paths RuntimePathsConfig) RuntimePathsConfig {
	paths.Logs = orDefault(paths.Logs, "logs")
	paths.Media = orDefault(paths.Media, defaultMediaDir)
	return paths
}

func copyStringMap(input map[string]string) map[string]string {
	if input == nil {
		return nil
	}
	out := make(map[string]string, len(input))
	for key, value := range input {
		k := strings.TrimSpace(key)
		v := strings.TrimSpace(value)
		if k != "" && v != "" {
			out[k] = v
		}
	}
	return out
}
