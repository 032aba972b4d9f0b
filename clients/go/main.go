// Pulse CLI - Command line client for the Pulse chat server
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pulsechat/pulse/clients/go/pulse"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("PULSE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	client := pulse.NewClient(baseURL)
	client.Token = os.Getenv("PULSE_TOKEN")
	cmd := os.Args[1]

	switch cmd {
	case "register":
		if len(os.Args) < 5 {
			fmt.Fprintln(os.Stderr, "Usage: pulse register <name> <email> <password>")
			os.Exit(1)
		}
		resp, err := client.Register(os.Args[2], os.Args[3], os.Args[4])
		exitOnError(err)
		fmt.Printf("Registered as %s\n", resp.User.ID)
		fmt.Printf("export PULSE_TOKEN=%s\n", resp.Token)

	case "login":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: pulse login <email> <password>")
			os.Exit(1)
		}
		resp, err := client.Login(os.Args[2], os.Args[3])
		exitOnError(err)
		fmt.Printf("export PULSE_TOKEN=%s\n", resp.Token)

	case "chats":
		chats, err := client.ListChats()
		exitOnError(err)
		for _, ch := range chats {
			last := ch.LastMessage
			if len(last) > 40 {
				last = last[:40] + "..."
			}
			fmt.Printf("  %s  %-20s %s\n", ch.ID, ch.Name, last)
		}

	case "users":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: pulse users <query>")
			os.Exit(1)
		}
		users, err := client.SearchUsers(os.Args[2])
		exitOnError(err)
		for _, u := range users {
			status := ""
			if u.Online {
				status = " (online)"
			}
			fmt.Printf("  %s  %s <%s>%s\n", u.ID, u.Name, u.Email, status)
		}

	case "read":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: pulse read <chat_id>")
			os.Exit(1)
		}
		resp, err := client.GetMessages(os.Args[2], 20, 0)
		exitOnError(err)
		for _, msg := range resp.Messages {
			printMessage(msg)
		}

	case "chat":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: pulse chat <chat_id>")
			os.Exit(1)
		}
		runChat(client, os.Args[2])

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

// runChat opens a live session on one chat: backlog, incoming messages,
// typing and presence events, and a line-based prompt for sending.
func runChat(client *pulse.Client, chatID string) {
	done := make(chan error, 1)

	session, err := pulse.Connect(client, pulse.Handlers{
		OnMessage: func(id string, msg pulse.Message) {
			if id == chatID {
				printMessage(msg)
			}
		},
		OnTyping: func(ev pulse.TypingEvent) {
			if ev.ChatID == chatID && ev.IsTyping {
				fmt.Printf("  * %s is typing...\n", short(ev.UserID))
			}
		},
		OnStatus: func(ev pulse.StatusEvent) {
			fmt.Printf("  * %s is %s\n", short(ev.UserID), ev.Status)
		},
		OnReconnect: func() {
			fmt.Println("  * reconnected")
		},
		OnClose: func(err error) {
			done <- err
		},
	})
	exitOnError(err)
	defer session.Close()

	timeline, err := session.OpenChat(chatID)
	exitOnError(err)
	for _, msg := range timeline.Messages() {
		printMessage(msg)
	}

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if line == "/quit" {
				done <- nil
				return
			}
			session.Typing(chatID)
			if _, err := session.Send(chatID, line); err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
			}
		}
		done <- nil
	}()

	if err := <-done; err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printMessage(msg pulse.Message) {
	ts := time.UnixMilli(msg.SentAt).Format("2006-01-02 15:04:05")
	name := msg.SenderName
	if name == "" {
		name = short(msg.SenderID)
	}
	fmt.Printf("[%s] %s: %s\n", ts, name, msg.Content)
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func usage() {
	fmt.Println(`Pulse CLI - realtime chat client

Usage: pulse <command> [options]

Commands:
  register <name> <email> <password>  Create an account
  login <email> <password>            Sign in
  chats                               List your chats
  users <query>                       Search users
  read <chat_id>                      Print recent messages
  chat <chat_id>                      Open a live chat session
  help                                Show this help

Environment:
  PULSE_URL     Server URL (default: http://localhost:8080)
  PULSE_TOKEN   Session token from register/login`)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
