package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"housing-chat/domain/chat"
	"housing-chat/infrastructure/grpc/chatapi"
	"housing-chat/infrastructure/grpc/client"

	"github.com/gookit/color"
	"github.com/spf13/pflag"
)

const usage = `chatctl talks to a housing-chat server over gRPC.

Usage:
  chatctl <command> [flags]

Commands:
  chat      find or create the chat between --as and --with
  chats     list chats of --as, newest first
  send      send --text into --chat as --as
  history   print every message of --chat
  search    full text search inside --chat
  presence  tell whether the counterpart of --as is online in --chat
  listen    stream presence and deliveries for --as until interrupted
`

type options struct {
	addr  string
	token string
	as    string
	with  string
	chat  string
	text  string
	query string
	limit int
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		color.Error.Println(err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" {
		fmt.Print(usage)
		return nil
	}
	command := args[0]

	var opts options
	flags := pflag.NewFlagSet(command, pflag.ContinueOnError)
	flags.StringVar(&opts.addr, "addr", envOr("CHAT_ADDR", "localhost:50051"), "server gRPC address")
	flags.StringVar(&opts.token, "token", os.Getenv("CHAT_TOKEN"), "bearer token")
	flags.StringVar(&opts.as, "as", "", "identity acting")
	flags.StringVar(&opts.with, "with", "", "counterpart identity")
	flags.StringVar(&opts.chat, "chat", "", "chat id")
	flags.StringVarP(&opts.text, "text", "t", "", "message text")
	flags.StringVarP(&opts.query, "query", "q", "", "search query")
	flags.IntVar(&opts.limit, "limit", 20, "maximum search hits")
	if err := flags.Parse(args[1:]); err != nil {
		return err
	}

	c, err := client.Dial(opts.addr, opts.token)
	if err != nil {
		return fmt.Errorf("dial %s: %w", opts.addr, err)
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch command {
	case "chat":
		return findOrCreate(ctx, c, opts)
	case "chats":
		return listChats(ctx, c, opts)
	case "send":
		return send(ctx, c, opts)
	case "history":
		return history(ctx, c, opts)
	case "search":
		return search(ctx, c, opts)
	case "presence":
		return presence(ctx, c, opts)
	case "listen":
		return listen(ctx, c, opts)
	default:
		return fmt.Errorf("unknown command %q, run chatctl --help", command)
	}
}

func findOrCreate(ctx context.Context, c *client.ChatClient, opts options) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	ch, err := c.FindOrCreateChat(ctx, chat.Identity(opts.as), chat.Identity(opts.with))
	if err != nil {
		return err
	}
	printChat(ch)
	return nil
}

func listChats(ctx context.Context, c *client.ChatClient, opts options) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	chats, err := c.ListChats(ctx, chat.Identity(opts.as))
	if err != nil {
		return err
	}
	if len(chats) == 0 {
		color.Gray.Println("no chats")
	}
	for _, ch := range chats {
		printChat(ch)
	}
	return nil
}

func send(ctx context.Context, c *client.ChatClient, opts options) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	msg, err := c.Send(ctx, chat.ChatID(opts.chat), chat.Identity(opts.as), opts.text)
	if err != nil {
		return err
	}
	printMessage(msg)
	return nil
}

func history(ctx context.Context, c *client.ChatClient, opts options) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	messages, err := c.History(ctx, chat.ChatID(opts.chat))
	if err != nil {
		return err
	}
	for _, msg := range messages {
		printMessage(msg)
	}
	return nil
}

func search(ctx context.Context, c *client.ChatClient, opts options) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	messages, err := c.Search(ctx, chat.ChatID(opts.chat), opts.query, opts.limit)
	if err != nil {
		return err
	}
	color.Gray.Printf("%d hit(s)\n", len(messages))
	for _, msg := range messages {
		printMessage(msg)
	}
	return nil
}

func presence(ctx context.Context, c *client.ChatClient, opts options) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	counterpart, online, err := c.CounterpartOnline(ctx, chat.ChatID(opts.chat), chat.Identity(opts.as))
	if err != nil {
		return err
	}
	if online {
		color.Green.Printf("%s is online\n", counterpart)
	} else {
		color.Gray.Printf("%s is offline\n", counterpart)
	}
	return nil
}

func listen(ctx context.Context, c *client.ChatClient, opts options) error {
	color.Cyan.Printf("listening as %s, ctrl-c to stop\n", opts.as)
	return c.Listen(ctx, chat.Identity(opts.as), func(evt *chatapi.ChatEvent) {
		switch {
		case evt.Presence != nil:
			color.Yellow.Printf("[%s] online: %s\n",
				evt.Presence.At.Format("15:04:05"), strings.Join(evt.Presence.Identities, ", "))
		case evt.Deliver != nil:
			printMessage(evt.Deliver.ToDomain())
		}
	})
}

func printChat(ch chat.Chat) {
	color.Cyan.Printf("%s ", ch.ID)
	fmt.Printf("%s <-> %s (%s)\n", ch.Members[0], ch.Members[1], ch.CreatedAt.Format(time.RFC3339))
}

func printMessage(msg chat.Message) {
	color.Gray.Printf("[%s #%d] ", msg.CreatedAt.Format("15:04:05"), msg.Seq)
	color.Green.Printf("%s: ", msg.SenderID)
	fmt.Println(msg.Text)
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
