// Command parlor-client is a line-oriented terminal client. Plain
// input lines are sent to the current room; /login, /join, /leave and
// /quit drive the session.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"parlor/pkg/client"
	"parlor/pkg/status"
)

func main() {
	var (
		serverURL = pflag.StringP("server", "s", "ws://127.0.0.1:5000/ws", "server URL")
		user      = pflag.StringP("user", "u", "", "log in as this user on connect")
		roomName  = pflag.StringP("room", "r", "", "join this room on connect")
		quiet     = pflag.BoolP("quiet", "q", false, "log errors only")
	)
	pflag.Parse()

	level := slog.LevelInfo
	if *quiet {
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	c, err := client.New(*serverURL, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parlor-client: %v\n", err)
		os.Exit(1)
	}
	c.OnMessage = func(user, text string) {
		if user == "" {
			fmt.Printf("* %s\n", text)
			return
		}
		fmt.Printf("<%s> %s\n", user, text)
	}
	c.OnFailure = func(code status.Code) {
		fmt.Printf("! server rejected: %s\n", code)
	}

	ctx := context.Background()
	if err := c.Connect(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "parlor-client: %v\n", err)
		os.Exit(1)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(ctx)
	}()

	if *user != "" {
		c.Login(*user)
	}
	if *roomName != "" {
		c.EnterRoom(*roomName)
	}

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			switch {
			case line == "":
			case line == "/quit":
				c.Close()
				return
			case line == "/leave":
				c.LeaveRoom()
			case strings.HasPrefix(line, "/login "):
				c.Login(strings.TrimSpace(strings.TrimPrefix(line, "/login ")))
			case strings.HasPrefix(line, "/join "):
				c.EnterRoom(strings.TrimSpace(strings.TrimPrefix(line, "/join ")))
			case strings.HasPrefix(line, "/"):
				fmt.Printf("! unknown command %s\n", line)
			default:
				c.Compose(line)
			}
		}
		c.Close()
	}()

	<-done
}
