package app

import (
	"fmt"
	"strings"
)

// ApplyRuntimeDefaults fills settings that can be derived from other keys when
// no explicit value was supplied. It returns the keys it filled so callers can
// log them.
func ApplyRuntimeDefaults(cfg *Config) (map[string]bool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	derived := make(map[string]bool)

	base := strings.TrimRight(strings.TrimSpace(cfg.Server.BaseURL), "/")
	if base == "" {
		port := cfg.Server.Port
		if port == 0 {
			port = 8000
		}
		base = fmt.Sprintf("http://localhost:%d", port)
		derived["server.base_url"] = true
	}
	cfg.Server.BaseURL = base

	if strings.TrimSpace(cfg.Site.AdminEmail) == "" && strings.TrimSpace(cfg.Email.SMTP.From) != "" {
		cfg.Site.AdminEmail = strings.TrimSpace(cfg.Email.SMTP.From)
		derived["app.admin_email"] = true
	}

	if strings.TrimSpace(cfg.Email.SMTP.FromName) == "" && strings.TrimSpace(cfg.Site.Name) != "" {
		cfg.Email.SMTP.FromName = cfg.Site.Name
		derived["email.smtp.from_name"] = true
	}

	cfg.Security.Captcha.Provider = strings.ToLower(strings.TrimSpace(cfg.Security.Captcha.Provider))

	return derived, nil
}
