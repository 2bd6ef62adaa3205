package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"marketchat/internal/auth"
	"marketchat/internal/config"
	"marketchat/pkg/chatclient"

	"github.com/spf13/cobra"
)

type sessionFlags struct {
	server string
	token  string
	userID string
}

func (f *sessionFlags) wsURL() string {
	base := strings.TrimRight(f.server, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/api/v1/ws"
}

func (f *sessionFlags) api() *chatclient.API {
	return chatclient.NewAPI(strings.TrimRight(f.server, "/")+"/api/v1", f.token)
}

func (f *sessionFlags) dial(ctx context.Context) (*chatclient.Conn, error) {
	if strings.TrimSpace(f.userID) == "" {
		return nil, fmt.Errorf("--user is required")
	}
	conn, err := chatclient.Dial(ctx, chatclient.Options{
		URL:    f.wsURL(),
		Token:  f.token,
		UserID: f.userID,
	})
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return conn, nil
}

func buildRootCmd() *cobra.Command {
	flags := &sessionFlags{}

	rootCmd := &cobra.Command{
		Use:          "chat",
		Short:        "Terminal client for marketplace chat",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&flags.server, "server", "http://localhost:8080", "Chat server base URL")
	rootCmd.PersistentFlags().StringVar(&flags.token, "token", os.Getenv("MARKETCHAT_TOKEN"), "Bearer token (or set MARKETCHAT_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&flags.userID, "user", os.Getenv("MARKETCHAT_USER"), "Your user id (or set MARKETCHAT_USER)")

	rootCmd.AddCommand(
		buildTokenCmd(),
		buildOpenCmd(flags),
		buildNotificationsCmd(flags),
		buildUnreadCmd(flags),
	)
	return rootCmd
}

func buildTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token <userId>",
		Short: "Mint a development token signed with the server secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			token, err := auth.NewAuthService(cfg.JWT.Secret, cfg.JWT.ExpirationTime).IssueToken(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}

func buildOpenCmd(flags *sessionFlags) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "open <otherUserId>",
		Short: "Open a conversation and chat from stdin",
		Long: `Open a conversation with another user. History is printed first, then
every line typed on stdin is sent as a message. Ctrl-D or Ctrl-C leaves.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runOpen(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), flags, args[0], name)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Display name sent with your messages")
	return cmd
}

func runOpen(ctx context.Context, in io.Reader, out io.Writer, flags *sessionFlags, otherUserID, name string) error {
	conn, err := flags.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	conv, err := chatclient.OpenConversation(ctx, conn, flags.api(), otherUserID)
	if err != nil {
		return err
	}
	defer conv.Close()

	peer := conv.Peer()
	fmt.Fprintf(out, "Chatting with %s <%s>\n", peer.Name, peer.Email)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	printer := &transcript{out: out, self: conn.UserID(), peer: peer.Name}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-conn.Done():
			return fmt.Errorf("connection lost")
		case <-conv.Updates():
			printer.render(conv.Messages(), conv.PeerTyping())
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if _, err := conv.Send(ctx, line, name); err != nil {
				fmt.Fprintf(out, "! not sent: %v\n", err)
			}
		}
	}
}

// transcript prints entries once they are confirmed, so pending lines are
// not printed twice. Rejected sends are reported once.
type transcript struct {
	out     io.Writer
	self    string
	peer    string
	printed map[string]bool
	failed  map[int64]bool
	typing  bool
}

func (t *transcript) render(entries []chatclient.Entry, peerTyping bool) {
	if t.printed == nil {
		t.printed = make(map[string]bool)
		t.failed = make(map[int64]bool)
	}
	for _, e := range entries {
		if e.Status == chatclient.Failed && !t.failed[e.LocalID] {
			t.failed[e.LocalID] = true
			fmt.Fprintf(t.out, "! not delivered: %s\n", e.Content)
			continue
		}
		if e.Status != chatclient.Confirmed || t.printed[e.ID] {
			continue
		}
		t.printed[e.ID] = true
		who := t.peer
		if e.SenderID == t.self {
			who = "you"
		}
		fmt.Fprintf(t.out, "[%s] %s: %s\n", e.CreatedAt.Local().Format(time.Kitchen), who, e.Content)
	}
	if peerTyping && !t.typing {
		fmt.Fprintf(t.out, "%s is typing...\n", t.peer)
	}
	t.typing = peerTyping
}

func buildNotificationsCmd(flags *sessionFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "notifications",
		Short: "Print message notifications as they arrive",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			conn, err := flags.dial(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()

			center := chatclient.NewNotificationCenter()
			go center.Listen(ctx, conn)

			out := cmd.OutOrStdout()
			var lastID int64
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-conn.Done():
					return fmt.Errorf("connection lost")
				case <-center.Changed():
					items := center.Notifications()
					if len(items) == 0 || items[0].ID == lastID {
						continue
					}
					lastID = items[0].ID
					n := items[0]
					fmt.Fprintf(out, "(%d unread) %s: %s\n", center.UnreadCount(), firstNonBlank(n.SenderName, n.SenderID), n.Message)
				}
			}
		},
	}
}

func buildUnreadCmd(flags *sessionFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "unread",
		Short: "Show how many messages are waiting for you",
		RunE: func(cmd *cobra.Command, args []string) error {
			count, err := flags.api().UnreadCount(cmd.Context())
			if err != nil {
				return fmt.Errorf("unread count: %w", err)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "USER\tUNREAD")
			fmt.Fprintf(w, "%s\t%d\n", firstNonBlank(flags.userID, "-"), count)
			return w.Flush()
		},
	}
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
