package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"gosuda.org/portal/sdk"
)

var rootCmd = &cobra.Command{
	Use:   "relay-chat",
	Short: "Room-based chat relay: HTTP send endpoint + per-room pub/sub channels",
	RunE:  runRelay,
}

var (
	flagServerURLs  []string
	flagPort        int
	flagName        string
	flagDBPath      string
	flagHide        bool
	flagDescription string
	flagOwner       string
	flagTags        string
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringSliceVar(&flagServerURLs, "server-url", strings.Split(os.Getenv("RELAY"), ","), "portal relay URL(s); repeat or comma-separated (from env RELAY if set)")
	flags.IntVar(&flagPort, "port", 8093, "local HTTP port (negative to disable)")
	flags.StringVar(&flagName, "name", "relay-chat", "backend display name")
	flags.StringVar(&flagDBPath, "db-path", "", "optional directory to persist room history via PebbleDB")
	flags.BoolVar(&flagHide, "hide", false, "hide this lease from portal listings")
	flags.StringVar(&flagDescription, "description", "Room-based realtime chat relay", "lease description")
	flags.StringVar(&flagOwner, "owner", "Chat", "lease owner")
	flags.StringVar(&flagTags, "tags", "chat", "comma-separated lease tags")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("execute relay-chat command")
	}
}

func runRelay(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store *historyStore
	if flagDBPath != "" {
		s, err := openHistoryStore(flagDBPath)
		if err != nil {
			log.Warn().Err(err).Msg("[relay] open store failed; running in memory only")
		} else {
			store = s
			log.Info().Str("path", flagDBPath).Msg("[relay] room history persistence enabled")
		}
	}

	srv := NewServer(flagName, newHub(store))
	router := srv.Router()

	servers := make([]string, 0, len(flagServerURLs))
	for _, raw := range flagServerURLs {
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			servers = append(servers, trimmed)
		}
	}

	// Optional portal relay listener, as with the other backends.
	var (
		ln     interface{ Close() error }
		client *sdk.RDClient
	)
	if len(servers) > 0 {
		cred := sdk.NewCredential()
		c, err := sdk.NewClient(func(cfg *sdk.RDClientConfig) { cfg.BootstrapServers = servers })
		if err != nil {
			return fmt.Errorf("new client: %w", err)
		}
		listener, err := c.Listen(cred, flagName, []string{"http/1.1"},
			sdk.WithDescription(flagDescription),
			sdk.WithHide(flagHide),
			sdk.WithOwner(flagOwner),
			sdk.WithTags(strings.Split(flagTags, ",")),
		)
		if err != nil {
			_ = c.Close()
			return fmt.Errorf("listen: %w", err)
		}
		client = c
		ln = listener
		go func() {
			if err := http.Serve(listener, router); err != nil && err != http.ErrServerClosed && ctx.Err() == nil {
				log.Error().Err(err).Msg("[relay] portal http error")
			}
		}()
		log.Info().Msg("[relay] portal listener enabled")
	} else {
		log.Info().Msg("[relay] portal disabled; running local mode only")
	}

	var httpSrv *http.Server
	if flagPort >= 0 {
		httpSrv = &http.Server{
			Addr:              fmt.Sprintf(":%d", flagPort),
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		log.Info().Msgf("[relay] serving locally at http://127.0.0.1:%d", flagPort)
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn().Err(err).Msg("[relay] local http stopped")
			}
		}()
	}

	// Shutdown watcher
	go func() {
		<-ctx.Done()
		if ln != nil {
			_ = ln.Close()
		}
		if client != nil {
			_ = client.Close()
		}
		if httpSrv != nil {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := httpSrv.Shutdown(sctx); err != nil && err != context.Canceled {
				log.Error().Err(err).Msg("[relay] http server shutdown error")
			}
		}
	}()

	<-ctx.Done()
	srv.closeAll()
	srv.wait()
	if store != nil {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("[relay] store close error")
		}
	}
	log.Info().Msg("[relay] shutdown complete")
	return nil
}
