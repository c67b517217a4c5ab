package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/gollm/gollm-chat/internal/api"
	"github.com/gollm/gollm-chat/internal/config"
	"github.com/gollm/gollm-chat/internal/logging"
	"github.com/gollm/gollm-chat/internal/session"
	"github.com/gollm/gollm-chat/internal/storage"
)

func main() {
	// Load .env if present so GOLLM_* overrides work out of the box.
	_ = godotenv.Load()

	ctx := context.Background()

	args := os.Args[1:]
	if len(args) > 0 {
		switch args[0] {
		case "compare":
			if err := runCompareCommand(ctx, args[1:]); err != nil {
				fmt.Fprintf(os.Stderr, "compare failed: %v\n", err)
				os.Exit(1)
			}
			return
		case "templates":
			if err := runTemplatesCommand(ctx, args[1:]); err != nil {
				fmt.Fprintf(os.Stderr, "templates failed: %v\n", err)
				os.Exit(1)
			}
			return
		}
	}

	if err := runChatCommand(ctx, args); err != nil {
		fmt.Fprintf(os.Stderr, "chat failed: %v\n", err)
		os.Exit(1)
	}
}

// runtimeEnv bundles everything a command needs: config, transport and the
// session store, composed explicitly here and passed down.
type runtimeEnv struct {
	cfg    *config.Config
	client *api.Client
	store  *session.Store
	kv     *storage.KV
}

func (r *runtimeEnv) Close() {
	if r.kv != nil {
		_ = r.kv.Close()
	}
}

// commonFlags registers the flags every subcommand shares.
func commonFlags(fs *flag.FlagSet) (baseURL, provider, model, statePath *string, debug *bool) {
	baseURL = fs.String("base-url", "", "gollm backend address (default from config)")
	provider = fs.String("provider", "", "provider name (default from config)")
	model = fs.String("model", "", "model name (default from config)")
	statePath = fs.String("state", "", "path to the session state database")
	debug = fs.Bool("debug", false, "enable debug logging")
	return
}

// prepareRuntimeEnv loads config, sets up logging, opens the state store
// and builds the backend client.
func prepareRuntimeEnv(ctx context.Context, baseURL, provider, model, statePath string, debug bool) (*runtimeEnv, error) {
	mgr, err := config.NewManager()
	if err != nil {
		return nil, err
	}
	cfg, err := mgr.Load()
	if err != nil {
		return nil, err
	}
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if provider != "" {
		cfg.Provider = provider
	}
	if model != "" {
		cfg.Model = model
	}
	if statePath != "" {
		cfg.StatePath = statePath
	}

	logging.Setup(cfg.LogPath, debug)

	if err := os.MkdirAll(mgr.Dir(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config dir: %w", err)
	}

	kv, err := storage.Open(ctx, cfg.StatePath)
	if err != nil {
		return nil, err
	}

	client := api.NewClient(cfg.BaseURL, time.Duration(cfg.TimeoutSeconds)*time.Second)
	store := session.New(ctx, kv, client)

	return &runtimeEnv{cfg: cfg, client: client, store: store, kv: kv}, nil
}
