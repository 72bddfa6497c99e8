// Command wsprobe mints an access token, connects to the realtime endpoint
// and prints every frame it receives.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"office-realtime/internal/auth"
	"office-realtime/internal/config"

	"github.com/coder/websocket"
	"github.com/tidwall/gjson"
)

func main() {
	endpoint := flag.String("url", "ws://localhost:8080/api/v1/ws", "realtime WebSocket endpoint")
	userID := flag.String("user", "1", "user id placed in the token")
	email := flag.String("email", "probe@studio.local", "email placed in the token")
	role := flag.String("role", "ADMIN", "role placed in the token")
	practices := flag.String("practices", "", "comma separated practice ids to subscribe to")
	clients := flag.String("clients", "", "comma separated client ids to subscribe to")
	duration := flag.Duration("duration", 0, "stop after this long; zero runs until interrupted")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	tokens := auth.NewTokenService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)
	token, err := tokens.IssueAccessToken(*userID, *email, *role)
	if err != nil {
		log.Fatal("Failed to issue token:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	u, err := url.Parse(*endpoint)
	if err != nil {
		log.Fatal("Invalid url:", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		log.Fatal("Failed to connect:", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "probe done")

	subscribe := func(event, ids string) {
		if ids == "" {
			return
		}
		msg, _ := json.Marshal(map[string]any{"event": event, "data": strings.Split(ids, ",")})
		writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := conn.Write(writeCtx, websocket.MessageText, msg); err != nil {
			log.Fatal("Failed to subscribe:", err)
		}
	}
	subscribe("subscribe-practices", *practices)
	subscribe("subscribe-clients", *clients)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return
			}
			fmt.Fprintln(os.Stderr, "read:", err)
			os.Exit(1)
		}
		frame := gjson.ParseBytes(data)
		fmt.Printf("%s %-20s %s\n",
			frame.Get("timestamp").String(),
			frame.Get("event").String(),
			frame.Get("data").Raw,
		)
	}
}
