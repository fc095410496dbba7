package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DatabaseURL string
	Port        string
	Environment string

	// Steam
	SteamAPIKey        string
	SteamRedirectURI   string
	SteamVerifyOpenID  bool
	SteamAPIBase       string
	SteamCommunityBase string
	SteamRetryAttempts int
	SteamRetryWait     time.Duration

	// 主面板 webhook
	MainPanelURL   string
	MainPanelToken string

	DomainID             int
	SyncInventoryOnLogin bool
	HTTPTimeout          time.Duration
	CORSOrigins          []string
	// 反向代理白名单, 为空时只信任 TCP 对端地址
	TrustedProxies       []string

	LogLevel string
	LogFile  string
}

func Load() *Config {
	return &Config{
		DatabaseURL: getEnv("DATABASE_URL", "steam_auth.db"),
		Port:        getEnv("PORT", "9000"),
		Environment: getEnv("ENVIRONMENT", "development"),

		SteamAPIKey:        getEnv("STEAM_API_KEY", ""),
		SteamRedirectURI:   getEnv("STEAM_REDIRECT_URI", "http://localhost:9000/api/auth/steam/callback"),
		SteamVerifyOpenID:  getEnvBool("STEAM_VERIFY_OPENID", true),
		SteamAPIBase:       strings.TrimRight(getEnv("STEAM_API_BASE", "https://api.steampowered.com"), "/"),
		SteamCommunityBase: strings.TrimRight(getEnv("STEAM_COMMUNITY_BASE", "https://steamcommunity.com"), "/"),
		SteamRetryAttempts: getEnvInt("STEAM_RETRY_ATTEMPTS", 5),
		SteamRetryWait:     getEnvDuration("STEAM_RETRY_WAIT", 2*time.Second),

		MainPanelURL:   getEnv("MAIN_PANEL_URL", ""),
		MainPanelToken: getEnv("MAIN_PANEL_TOKEN", ""),

		DomainID:             getEnvInt("DOMAIN_ID", 1),
		SyncInventoryOnLogin: getEnvBool("SYNC_INVENTORY_ON_LOGIN", true),
		HTTPTimeout:          getEnvDuration("HTTP_TIMEOUT", 30*time.Second),
		CORSOrigins:          splitList(getEnv("CORS_ORIGINS", "*")),
		TrustedProxies:       splitList(getEnv("TRUSTED_PROXIES", "")),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),
	}
}

// IsProduction reports whether the service runs with ENVIRONMENT=production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.IsProduction() && c.SteamAPIKey == "" {
		return fmt.Errorf("STEAM_API_KEY is required in production")
	}
	u, err := url.Parse(c.SteamRedirectURI)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("STEAM_REDIRECT_URI must be an absolute URL, got %q", c.SteamRedirectURI)
	}
	if c.MainPanelURL != "" {
		if u, err := url.Parse(c.MainPanelURL); err != nil || u.Host == "" {
			return fmt.Errorf("MAIN_PANEL_URL must be an absolute URL, got %q", c.MainPanelURL)
		}
	}
	for _, proxy := range c.TrustedProxies {
		if net.ParseIP(proxy) == nil {
			if _, _, err := net.ParseCIDR(proxy); err != nil {
				return fmt.Errorf("TRUSTED_PROXIES entry %q is neither an IP nor a CIDR", proxy)
			}
		}
	}
	if c.SteamRetryAttempts < 1 {
		return fmt.Errorf("STEAM_RETRY_ATTEMPTS must be at least 1")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return n
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if b, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return b
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return d
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
