package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/fsnotify/fsnotify"
	"github.com/titanous/json5"
)

func readJSON5(path string, dst interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json5.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// LoadTransport reads the transport gateway's config file then overlays env.
func LoadTransport(path string) (*TransportConfig, error) {
	cfg := defaultTransport()
	if err := readJSON5(path, &cfg); err != nil {
		return nil, err
	}
	envStr("CHATDESK_BUS_ADDR", &cfg.Bus.Addr)
	envStr("CHATDESK_BUS_PASSWORD", &cfg.Bus.Password)
	envStr("CHATDESK_STORE_ADDR", &cfg.Store.Addr)
	envStr("CHATDESK_STORE_PASSWORD", &cfg.Store.Password)
	envStr("CHATDESK_LOG_LEVEL", &cfg.Logging.Level)
	envStr("CHATDESK_TRANSPORT_HTTP_ADDR", &cfg.HTTPAddr)
	envStr("CHATDESK_TRANSPORT_BRIDGE_URL", &cfg.BridgeURL)
	envStr("CHATDESK_TRANSPORT_SESSION_DIR", &cfg.SessionDir)
	envBool("CHATDESK_TRANSPORT_PRINT_QR", &cfg.PrintQR)
	envStr("CHATDESK_TRANSPORT_BOT_IDENTITY", &cfg.BotIdentity)
	return &cfg, nil
}

// LoadClassifier reads the classifier's config file then overlays env.
func LoadClassifier(path string) (*ClassifierConfig, error) {
	cfg := defaultClassifier()
	if err := readJSON5(path, &cfg); err != nil {
		return nil, err
	}
	envStr("CHATDESK_BUS_ADDR", &cfg.Bus.Addr)
	envStr("CHATDESK_BUS_PASSWORD", &cfg.Bus.Password)
	envStr("CHATDESK_STORE_ADDR", &cfg.Store.Addr)
	envStr("CHATDESK_STORE_PASSWORD", &cfg.Store.Password)
	envStr("CHATDESK_LOG_LEVEL", &cfg.Logging.Level)
	envStr("CHATDESK_CLASSIFIER_HTTP_ADDR", &cfg.HTTPAddr)
	envStr("CHATDESK_CLASSIFIER_PRIMARY_MODEL", &cfg.PrimaryModel)
	envStr("CHATDESK_CLASSIFIER_FALLBACK_MODEL", &cfg.FallbackModel)
	envStr("CHATDESK_CLASSIFIER_ANTHROPIC_API_KEY", &cfg.AnthropicAPIKey)
	envStr("CHATDESK_CLASSIFIER_OPENAI_API_KEY", &cfg.OpenAIAPIKey)
	envStr("CHATDESK_CLASSIFIER_OPENAI_BASE_URL", &cfg.OpenAIBaseURL)
	envStr("CHATDESK_CLASSIFIER_BOT_PHONE", &cfg.BotPhoneIdentity)
	return &cfg, nil
}

// LoadTicketManager reads the ticket manager's config file then overlays env.
func LoadTicketManager(path string) (*TicketManagerConfig, error) {
	cfg := defaultTicketManager()
	if err := readJSON5(path, &cfg); err != nil {
		return nil, err
	}
	envStr("CHATDESK_BUS_ADDR", &cfg.Bus.Addr)
	envStr("CHATDESK_BUS_PASSWORD", &cfg.Bus.Password)
	envStr("CHATDESK_STORE_ADDR", &cfg.Store.Addr)
	envStr("CHATDESK_STORE_PASSWORD", &cfg.Store.Password)
	envStr("CHATDESK_LOG_LEVEL", &cfg.Logging.Level)
	envStr("CHATDESK_TICKETS_HTTP_ADDR", &cfg.HTTPAddr)
	envStr("CHATDESK_TICKETS_BASE_URL", &cfg.HelpdeskBaseURL)
	envStr("CHATDESK_TICKETS_CLIENT_ID", &cfg.HelpdeskClientID)
	envStr("CHATDESK_TICKETS_CLIENT_SECRET", &cfg.HelpdeskSecret)
	envStr("CHATDESK_TICKETS_REDIRECT_URI", &cfg.RedirectURI)
	envStr("CHATDESK_TICKETS_ORG_ID", &cfg.OrgID)
	envInt("CHATDESK_TICKETS_BREAKER_MAX_FAILURES", &cfg.BreakerMaxFailures)
	return &cfg, nil
}

// WatchFile watches path for writes and calls onChange with its (possibly
// new) contents' mtime-triggered reload signal. Only non-secret fields ever
// come from the watched file — secrets remain env-only, matching the
// teacher's DatabaseConfig.PostgresDSN convention of never persisting
// secrets to the config file.
func WatchFile(path string, onChange func()) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: new watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		// A missing config file is fine (env-only deployments); just skip watching.
		if os.IsNotExist(err) {
			return watcher, nil
		}
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					slog.Info("config file changed, reloading", "path", path)
					onChange()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("config watcher error", "error", err)
			}
		}
	}()
	return watcher, nil
}
