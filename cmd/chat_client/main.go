package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"marketplace_chat_service/internal/chat/domain"
	"marketplace_chat_service/pkg/token"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// inboundEvent 三種 server event 共用
type inboundEvent struct {
	Type     domain.EventType     `json:"type"`
	Messages []domain.MessageView `json:"messages"`
	domain.MessageView
}

// 本機測試用 client:
//
//	go run ./cmd/chat_client -room booking_42 -token <jwt>
//	go run ./cmd/chat_client -room booking_42 -user 1 -secret <jwt secret>
func main() {
	addr := flag.String("addr", "localhost:8083", "chat service host:port")
	room := flag.String("room", "", "room name, booking_<id> or chat_user_<a>_user_<b>")
	tok := flag.String("token", os.Getenv("CHAT_TOKEN"), "access token")
	userID := flag.Int64("user", 0, "mint a token for this user id (needs -secret)")
	secret := flag.String("secret", "", "jwt secret used with -user")
	issuer := flag.String("issuer", "", "jwt issuer used with -user")
	flag.Parse()

	if *room == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *tok == "" && *userID > 0 && *secret != "" {
		t, err := token.NewManager(*secret, *issuer, 0).Generate(*userID, time.Hour)
		if err != nil {
			log.Fatalf("generate token: %v", err)
		}
		*tok = t
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws/chat/" + *room, RawQuery: url.Values{"token": {*tok}}.Encode()}
	c, resp, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		// 被拒絕時 server 不說原因
		if resp != nil {
			log.Fatalf("connect refused: %s", resp.Status)
		}
		log.Fatalf("failed to dial: %v", err)
	}
	defer c.Close(websocket.StatusNormalClosure, "")

	fmt.Printf("Connected to %s\n", *room)

	go func() {
		defer stop()
		for {
			var ev inboundEvent
			if err := wsjson.Read(ctx, c, &ev); err != nil {
				if !errors.Is(err, context.Canceled) {
					log.Printf("Disconnected from server: %v", err)
				}
				return
			}
			printEvent(ev)
		}
	}()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			log.Printf("Error reading from stdin: %v", err)
		}
		close(lines)
	}()

	fmt.Print("> ")
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if strings.TrimSpace(line) == "" {
				fmt.Print("> ")
				continue
			}
			if err := wsjson.Write(ctx, c, map[string]string{"message": line}); err != nil {
				log.Printf("Error sending message: %v", err)
				return
			}
		}
	}
}

func printEvent(ev inboundEvent) {
	switch ev.Type {
	case domain.EventMessageHistory:
		fmt.Printf("\n-- %d earlier messages --\n", len(ev.Messages))
		for _, m := range ev.Messages {
			printMessage(m)
		}
	case domain.EventChatMessage:
		fmt.Println()
		printMessage(ev.MessageView)
	case domain.EventError:
		fmt.Printf("\n[error]: %s\n", ev.Message)
	default:
		fmt.Printf("\n[%s]\n", ev.Type)
	}
	fmt.Print("> ")
}

func printMessage(m domain.MessageView) {
	name := m.SenderUsername
	if m.IsSelf {
		name = "me"
	}
	fmt.Printf("[%s][%s]: %s\n", m.Timestamp, name, m.Message)
}
