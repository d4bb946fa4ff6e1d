package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tOgg1/storechat/internal/auth"
	"github.com/tOgg1/storechat/internal/chatapi"
	"github.com/tOgg1/storechat/internal/chatsync"
	"github.com/tOgg1/storechat/internal/config"
	"github.com/tOgg1/storechat/internal/logging"
)

// app holds state shared by every command of one invocation.
type app struct {
	configFile string
	loader     *config.Loader
	cfg        *config.Config
	logFile    *os.File
	tokens     auth.TokenProvider
}

// flagKeys maps persistent flags to config keys.
var flagKeys = map[string]string{
	"base-url":   "api.base_url",
	"token-file": "auth.token_file",
	"user-id":    "auth.user_id",
	"log-level":  "logging.level",
	"log-format": "logging.format",
	"log-file":   "logging.file",
}

func (a *app) addPersistentFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default $XDG_CONFIG_HOME/storechat/config.yaml)")
	flags.String("base-url", "", "messaging API base URL")
	flags.String("token-file", "", "file holding the bearer token")
	flags.String("user-id", "", "current user id (default: token subject)")
	flags.String("log-level", "", "log level: debug|info|warn|error")
	flags.String("log-format", "", "log format: console|json")
	flags.String("log-file", "", "write logs to this file")
}

// load resolves configuration and initializes logging.
func (a *app) load(cmd *cobra.Command) error {
	a.loader = config.NewLoader()
	if a.configFile != "" {
		a.loader.SetConfigFile(a.configFile)
	}
	for flag, key := range flagKeys {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			a.loader.Set(key, f.Value.String())
		}
	}

	cfg, err := a.loader.Load()
	if err != nil {
		return Exitf(ExitCodeUsage, "%v", err)
	}
	a.cfg = cfg
	return a.initLogging(cmd.ErrOrStderr())
}

func (a *app) initLogging(stderr io.Writer) error {
	out := stderr
	if path := a.cfg.Logging.File; path != "" {
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return Exitf(ExitCodeFailure, "open log file: %v", err)
		}
		a.logFile = file
		out = file
	}
	logging.Init(logging.Config{
		Level:        a.cfg.Logging.Level,
		Format:       a.cfg.Logging.Format,
		Output:       out,
		EnableCaller: a.cfg.Logging.EnableCaller,
	})
	return nil
}

func (a *app) close() {
	if a.logFile != nil {
		_ = a.logFile.Close()
		a.logFile = nil
	}
}

// tokenProvider builds the provider chain: source, offline sentinel, expiry.
func (a *app) tokenProvider() auth.TokenProvider {
	if a.tokens != nil {
		return a.tokens
	}
	var provider auth.TokenProvider
	if a.cfg.Auth.TokenFile != "" {
		provider = &auth.FileTokenProvider{Path: a.cfg.Auth.TokenFile}
	} else {
		provider = auth.NewMemoryTokenProvider(a.cfg.Auth.Token)
	}
	provider = auth.OfflineAware(provider, a.cfg.Auth.OfflineToken)
	a.tokens = auth.ExpiryAware(provider, time.Now)
	return a.tokens
}

func (a *app) newEngine() (*chatsync.Engine, error) {
	tokens := a.tokenProvider()
	client, err := chatapi.NewClient(chatapi.Config{
		BaseURL:           a.cfg.API.BaseURL,
		Timeout:           a.cfg.API.Timeout,
		RequestsPerSecond: a.cfg.API.RequestsPerSecond,
		Burst:             a.cfg.API.Burst,
		Tokens:            tokens,
	})
	if err != nil {
		return nil, Exitf(ExitCodeUsage, "api client: %v", err)
	}
	return chatsync.NewEngine(chatsync.Options{
		Service: client,
		Tokens:  tokens,
		UserID:  a.cfg.Auth.UserID,
		Config: chatsync.Config{
			RosterInterval:       a.cfg.Sync.RosterInterval,
			ThreadInterval:       a.cfg.Sync.ThreadInterval,
			MaxConcurrentFetches: a.cfg.Sync.MaxConcurrentFetches,
			ThreadFetchTTL:       a.cfg.Sync.ThreadFetchTTL,
		},
	})
}

// commandError maps sync errors to exit codes.
func commandError(action string, err error) error {
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	switch {
	case errors.Is(err, auth.ErrNoToken):
		return Exitf(ExitCodeAuth, "%s: not signed in (set auth.token or auth.token_file)", action)
	case auth.IsUnauthorized(err):
		return Exitf(ExitCodeAuth, "%s: session expired, sign in again", action)
	default:
		return &ExitError{Code: ExitCodeFailure, Err: fmt.Errorf("%s: %w", action, err)}
	}
}
