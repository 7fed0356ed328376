// Command chatclient is a terminal client for one conversation. Lines read
// from stdin are sent as messages; "/retry <id>" resends a failed one.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"keikkaduuni/internal/chatclient"
	"keikkaduuni/internal/logging"
)

func main() {
	server := flag.String("server", "http://localhost:5001", "API base URL")
	token := flag.String("token", os.Getenv("KEIKKADUUNI_TOKEN"), "access token")
	conversation := flag.Int64("conversation", 0, "conversation to open")
	interval := flag.Duration("poll", 5*time.Second, "poll interval")
	level := flag.String("log-level", "warn", "log level")
	flag.Parse()

	if *token == "" {
		log.Fatal("missing -token or KEIKKADUUNI_TOKEN")
	}

	logger, err := logging.New(logging.Config{LogLevel: *level, ServiceName: "chatclient", Debug: true})
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := chatclient.NewAPI(*server, *token, nil)
	me, err := api.Me(ctx)
	if errors.Is(err, chatclient.ErrUnauthorized) {
		logger.Fatal("token rejected")
	}
	if err != nil {
		logger.Fatal("failed to reach server", zap.Error(err))
	}

	wsURL := "ws" + strings.TrimPrefix(strings.TrimRight(*server, "/"), "http") + "/ws"
	syncer := chatclient.NewSyncer(api, chatclient.NewSocket(wsURL, *token, logger.Named("socket")), me.ID, *interval, logger)

	done := make(chan error, 1)
	go func() { done <- syncer.Run(ctx) }()

	if *conversation != 0 {
		tl, _, err := syncer.OpenConversation(ctx, *conversation, func() float64 { return 0 }, 0)
		if err != nil {
			logger.Fatal("failed to open conversation", zap.Int64("conversation_id", *conversation), zap.Error(err))
		}
		printTimeline(tl, me.ID)
		go readInput(ctx, syncer, logger)
	}

	for {
		select {
		case err := <-done:
			if err != nil {
				logger.Error("sync stopped", zap.Error(err))
			}
			return
		case u := <-syncer.Updates():
			switch u.Kind {
			case "socket":
				if syncer.PollOnly() {
					fmt.Println("* realtime unavailable, polling")
				} else {
					fmt.Printf("* %s\n", u.Socket)
				}
			case "badges":
				c := syncer.Badges().Counts()
				fmt.Printf("* unread: %d conversations, %d bookings, %d offers\n", c.Conversations, c.Bookings, c.Offers)
			case "timeline":
				if tl := syncer.Open(); tl != nil && u.ConversationID == tl.ConversationID() {
					printTimeline(tl, me.ID)
				}
			}
		}
	}
}

func readInput(ctx context.Context, syncer *chatclient.Syncer, logger *zap.Logger) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
		case strings.HasPrefix(line, "/retry "):
			if !syncer.Retry(ctx, strings.TrimSpace(strings.TrimPrefix(line, "/retry "))) {
				fmt.Println("* nothing to retry")
			}
		default:
			if _, err := syncer.Send(ctx, line, nil); err != nil {
				logger.Warn("send", zap.Error(err))
			}
		}
	}
}

func printTimeline(tl *chatclient.Timeline, viewerID int64) {
	fmt.Print("\033[H\033[2J")
	for _, e := range tl.Entries() {
		who := "them"
		if e.Message.SenderID == viewerID {
			who = "me"
		}
		line := fmt.Sprintf("[%s] %-4s %s", e.Message.CreatedAt.Local().Format("15:04"), who, e.Message.Content)
		switch e.State {
		case chatclient.EntryPending:
			line += "  (sending)"
		case chatclient.EntryFailed:
			line += "  (failed, /retry " + e.TempID + ")"
		}
		fmt.Println(line)
	}
}
