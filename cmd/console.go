// File: cmd/console.go
package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/chatbridge/api/schemas"
	"github.com/xkilldash9x/chatbridge/pkg/client"
)

// newConsoleCmd starts an interactive prompt against a running bridge.
// Plain input is sent as a chat message; slash commands manage the
// session.
func newConsoleCmd() *cobra.Command {
	var serverURL string

	consoleCmd := &cobra.Command{
		Use:   "console",
		Short: "Interactive console against a running bridge",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c := client.New(client.WithBaseURL(serverURL))

			fmt.Println("chatbridge console. /new resets, /status shows state, /screenshot saves a capture, /quit exits.")

			scanner := bufio.NewScanner(os.Stdin)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}

				switch {
				case line == "/quit" || line == "/exit":
					return nil

				case line == "/new":
					resp, err := c.ResetSession(ctx)
					if err != nil {
						fmt.Fprintln(os.Stderr, "error:", err)
						continue
					}
					fmt.Println("new conversation:", resp.Conversation)

				case line == "/status":
					st, err := c.Status(ctx)
					if err != nil {
						fmt.Fprintln(os.Stderr, "error:", err)
						continue
					}
					fmt.Printf("state=%s logged_in=%t browser_alive=%t uptime=%.0fs\n",
						st.State, st.LoggedIn, st.BrowserAlive, st.UptimeSeconds)

				case line == "/screenshot":
					img, err := c.Screenshot(ctx)
					if err != nil {
						fmt.Fprintln(os.Stderr, "error:", err)
						continue
					}
					path := fmt.Sprintf("screenshot_%d.png", time.Now().Unix())
					if err := os.WriteFile(path, img, 0o644); err != nil {
						fmt.Fprintln(os.Stderr, "error:", err)
						continue
					}
					fmt.Println("saved", path)

				case strings.HasPrefix(line, "/"):
					fmt.Fprintln(os.Stderr, "unknown command:", line)

				default:
					resp, err := c.Chat(ctx, schemas.ChatRequest{Message: line})
					if err != nil {
						fmt.Fprintln(os.Stderr, "error:", err)
						continue
					}
					if resp.Partial {
						fmt.Println("[partial]", resp.Message)
						continue
					}
					fmt.Println(resp.Message)
				}
			}
		},
	}

	consoleCmd.Flags().StringVar(&serverURL, "server", "http://127.0.0.1:8765", "bridge base URL")
	return consoleCmd
}

func init() {
	rootCmd.AddCommand(newConsoleCmd())
}
