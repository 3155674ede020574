package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/ashureev/spendchat/internal/chatclient"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(chatCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := userID()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		out := cmd.OutOrStdout()
		p := &printer{out: out}
		conv := chatclient.NewConversation(newClient(), user, p.onChange)
		return runChat(ctx, cmd.InOrStdin(), out, conv, p)
	},
}

// printer writes the streaming agent reply as it grows.
type printer struct {
	out     io.Writer
	printed int
}

func (p *printer) onChange(s chatclient.State) {
	if s.Streaming == nil {
		return
	}
	if content := s.Streaming.Content; len(content) > p.printed {
		fmt.Fprint(p.out, content[p.printed:])
		p.printed = len(content)
	}
}

func runChat(ctx context.Context, in io.Reader, out io.Writer, conv *chatclient.Conversation, p *printer) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			fmt.Fprint(out, "> ")
			continue
		case "/quit", "/exit":
			return nil
		}

		p.printed = 0
		err := conv.SendMessage(ctx, line)
		switch {
		case err == nil:
			fmt.Fprintln(out)
		case errors.Is(err, context.Canceled):
			return nil
		default:
			if p.printed > 0 {
				fmt.Fprintln(out)
			}
			fmt.Fprintf(out, "error: %s\n", conv.State().Error)
			conv.DismissError()
		}
		fmt.Fprint(out, "> ")
	}
	return scanner.Err()
}
