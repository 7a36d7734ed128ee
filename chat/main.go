package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gosuda/relay-chat/chatclient"
)

var rootCmd = &cobra.Command{
	Use:   "chat",
	Short: "Terminal client for a relay-chat server",
	RunE:  runChat,
}

var (
	flagRelayURL string
	flagRoom     string
	flagNick     string
	flagStateDir string
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagRelayURL, "relay-url", "http://127.0.0.1:8093", "relay-chat server base URL")
	flags.StringVar(&flagRoom, "room", "general", "room to join")
	flags.StringVar(&flagNick, "nick", "", "display name (persisted; empty keeps the stored one)")
	flags.StringVar(&flagStateDir, "state-dir", "", "directory for the local message cache (empty for in-memory)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("execute chat command")
	}
}

func printLine(m chatclient.Message) {
	ts := m.Timestamp.Time().Format("15:04:05")
	suffix := ""
	if m.Local {
		suffix = " (pending)"
	}
	fmt.Printf("[%s] %s: %s%s\n", ts, m.Username, m.Body, suffix)
}

func runChat(cmd *cobra.Command, args []string) error {
	opts := []chatclient.Option{
		chatclient.WithUpdateHandler(func(room string, _ []chatclient.Message, latest chatclient.Message, outcome chatclient.Outcome) {
			if outcome == chatclient.Appended {
				printLine(latest)
			}
		}),
		chatclient.WithPushHandler(func(room string, n chatclient.Notification) {
			fmt.Printf("*** %s: %s (%s)\n", n.Title, n.Body, n.URL)
		}),
		chatclient.WithPresenceHandler(func(p chatclient.Presence) {
			fmt.Printf("--- %d online in #%s\n", p.Online, p.Room)
		}),
	}
	if flagStateDir != "" {
		storage, err := chatclient.OpenStorage(flagStateDir)
		if err != nil {
			return fmt.Errorf("open state dir: %w", err)
		}
		opts = append(opts, chatclient.WithStorage(storage))
	}

	sess := chatclient.NewSession(flagRelayURL, opts...)
	defer func() {
		if err := sess.Close(); err != nil {
			log.Warn().Err(err).Msg("[chat] close session")
		}
	}()

	if flagNick != "" {
		if err := sess.SetUsername(flagNick); err != nil {
			log.Warn().Err(err).Msg("[chat] persist nickname")
		}
	}

	ctx := context.Background()
	for _, m := range sess.Messages(flagRoom) {
		printLine(m)
	}
	if err := sess.Join(ctx, flagRoom); err != nil {
		return fmt.Errorf("join %q: %w", flagRoom, err)
	}
	fmt.Printf("--- joined #%s as %s (/room, /name, /clear, /quit)\n", flagRoom, sess.Username())

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "/quit":
			return nil
		case strings.HasPrefix(line, "/room "):
			room := strings.TrimSpace(strings.TrimPrefix(line, "/room "))
			if room == "" {
				continue
			}
			if err := sess.Join(ctx, room); err != nil {
				log.Error().Err(err).Str("room", room).Msg("[chat] join failed")
				continue
			}
			for _, m := range sess.Messages(room) {
				printLine(m)
			}
			fmt.Printf("--- joined #%s\n", room)
		case strings.HasPrefix(line, "/name "):
			name := strings.TrimSpace(strings.TrimPrefix(line, "/name "))
			if err := sess.SetUsername(name); err != nil {
				log.Error().Err(err).Msg("[chat] set name failed")
				continue
			}
			fmt.Printf("--- you are now %s\n", sess.Username())
		case line == "/clear":
			if err := sess.ClearRoom(sess.Room()); err != nil {
				log.Error().Err(err).Msg("[chat] clear failed")
			}
		default:
			if err := sess.Send(ctx, sess.Room(), line); err != nil && err != chatclient.ErrEmptyMessage {
				log.Error().Err(err).Msg("[chat] send failed")
			}
		}
	}
	return scanner.Err()
}
