package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/harun/zombinator/pkg/agent"
	"github.com/harun/zombinator/pkg/gateway"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the agent in the terminal",
	Long: `Start an interactive conversation with the agent on stdin.
Type /new to start a new conversation and /quit (or Ctrl-D) to leave.`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	a, cleanup, err := setup(cmd)
	defer cleanup()
	if err != nil {
		return err
	}

	client, _, err := a.connect()
	if err != nil {
		return err
	}

	return chatLoop(cmd.Context(), client, cmd.InOrStdin(), cmd.OutOrStdout())
}

// chatLoop sends one message per input line on a single session. Errors are
// printed and the loop continues on the same thread.
func chatLoop(ctx context.Context, sender gateway.Sender, in io.Reader, out io.Writer) error {
	sess := agent.NewSession()
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	fmt.Fprintln(out, "Chat with The Zombinator. /new starts over, /quit exits.")
	for {
		fmt.Fprint(out, "you> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/new":
			sess = agent.NewSession()
			fmt.Fprintln(out, "Started a new conversation.")
			continue
		}

		sess.Append(agent.RoleUser, line, time.Now())
		reply, err := sender.Send(ctx, sess, line)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(out, "error: %s\n", gateway.UserMessage(err))
			continue
		}
		sess.Append(agent.RoleAssistant, reply, time.Now())
		fmt.Fprintf(out, "zombinator> %s\n", reply)
	}
}
