package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"

	"atelier-chat/client"
	"atelier-chat/domain/chat"
	"atelier-chat/transport/ws"
)

type Config struct {
	ServerURL string `env:"SERVER_URL,required=true"`
	Token     string `env:"CHAT_TOKEN,required=true"`
	ProjectID string `env:"PROJECT_ID,required=true"`
	LogLevel  string `env:"LOG_LEVEL"`
}

// Interactive terminal client: joins one project room, prints the
// history as a table, then echoes live traffic until EOF.
func main() {
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		log.Fatalf("Config error: %v", err)
	}
	logLevel := config.LogLevel
	if logLevel == "" {
		logLevel = "WARN"
	}
	logger := logs.GetLoggerFromString(logLevel)

	session, err := client.Dial(context.Background(), config.ServerURL, logger)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer session.Close()

	user, err := session.Identify(config.Token)
	if err != nil {
		log.Fatalf("Identification refused: %v", err)
	}
	color.Green.Printf("Connected as %s (%s)\n", user.Name, user.ID)

	history, err := session.Join(config.ProjectID)
	if err != nil {
		log.Fatalf("Cannot join project %s: %v", config.ProjectID, err)
	}
	printHistory(history)

	cancelMessages := session.OnMessage(func(message chat.Message) {
		if message.Sender.ID == user.ID {
			color.Cyan.Printf("[%s] you: %s\n", message.CreatedAt.Format("15:04:05"), message.Content)
			return
		}
		color.Yellow.Printf("[%s] %s: %s\n", message.CreatedAt.Format("15:04:05"), message.Sender.Name, message.Content)
	})
	defer cancelMessages()

	cancelStatus := session.OnStatus(func(status client.Status) {
		if status == client.StatusDisconnected {
			color.Red.Println("Disconnected from server")
		}
	})
	defer cancelStatus()

	cancelErrors := session.OnError(func(code, message string) {
		color.Red.Printf("Server refused: [%s] %s\n", code, message)
	})
	defer cancelErrors()

	fmt.Println("Type a message, /search <query>, /more, or /quit")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return
		case line == "/more":
			page, more, err := session.LoadMore()
			if err != nil {
				color.Red.Printf("Load failed: %v\n", err)
				continue
			}
			printHistory(page)
			if !more {
				fmt.Println("(beginning of history)")
			}
		case strings.HasPrefix(line, "/search "):
			query := strings.TrimPrefix(line, "/search ")
			hits, err := session.Search(query)
			if err != nil {
				color.Red.Printf("Search failed: %v\n", err)
				continue
			}
			printHits(query, hits)
		default:
			if err := session.Send(line); err != nil {
				color.Red.Printf("Send failed: %v\n", err)
			}
		}
	}
}

func printHistory(messages []chat.Message) {
	if len(messages) == 0 {
		fmt.Println("(no messages yet)")
		return
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Time", "From", "Message"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	for _, message := range messages {
		table.Append([]string{
			message.CreatedAt.Format("2006-01-02 15:04:05"),
			message.Sender.Name,
			message.Content,
		})
	}
	table.Render()
}

func printHits(query string, hits []ws.SearchHitResult) {
	fmt.Printf("%d hit(s) for %q\n", len(hits), query)
	for _, hit := range hits {
		fmt.Printf("  %s  %s\n", hit.MessageID, hit.Content)
	}
}
