package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func passwordFlag(cmd *cobra.Command) (string, error) {
	if p, _ := cmd.Flags().GetString("password"); p != "" {
		return p, nil
	}
	return readPassword(cmd.OutOrStdout(), os.Stdin, "Password")
}

func remember(cmd *cobra.Command, server string, sess *Session) error {
	if err := saveCredentials(&credentials{Server: server, Token: sess.Token, UserID: sess.User.UserID, Email: sess.User.Email}); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s (%s)\n", sess.User.Name, sess.User.UserID)
	return nil
}

func signupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signup <email> <name>",
		Short: "Create an account and sign in",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := passwordFlag(cmd)
			if err != nil {
				return err
			}
			server := serverURL(cmd, nil)
			sess, err := NewClient(server, "").Signup(cmd.Context(), args[0], password, args[1])
			if err != nil {
				return err
			}
			return remember(cmd, server, sess)
		},
	}
	cmd.Flags().StringP("password", "p", "", "password (prompted when omitted)")
	return cmd
}

func signinCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signin <email>",
		Short: "Sign in and save the session token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := passwordFlag(cmd)
			if err != nil {
				return err
			}
			server := serverURL(cmd, nil)
			sess, err := NewClient(server, "").Signin(cmd.Context(), args[0], password)
			if err != nil {
				return err
			}
			return remember(cmd, server, sess)
		},
	}
	cmd.Flags().StringP("password", "p", "", "password (prompted when omitted)")
	return cmd
}

func usersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List the other users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := authedClient(cmd)
			if err != nil {
				return err
			}
			users, err := c.Users(cmd.Context())
			if err != nil {
				return err
			}
			return render(cmd, users, func() {
				w := cmd.OutOrStdout()
				for _, u := range users {
					fmt.Fprintf(w, "%s\t%s\t%s\n", u.UserID, u.Name, u.Email)
				}
			})
		},
	}
}

func openCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open <userId>...",
		Short: "Open the conversation with the given users and print its id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := authedClient(cmd)
			if err != nil {
				return err
			}
			chat, err := c.Open(cmd.Context(), args)
			if err != nil {
				return err
			}
			return render(cmd, chat, func() { fmt.Fprintln(cmd.OutOrStdout(), chat.ID) })
		},
	}
}

func sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <chatId> <text>...",
		Short: "Send a text message",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := authedClient(cmd)
			if err != nil {
				return err
			}
			m, err := c.SendText(cmd.Context(), args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), m.ID)
			return nil
		},
	}
}

func sendMediaCmd(use, kind string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <chatId> <file>",
		Short: "Upload a file and send it as an " + kind + " message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := authedClient(cmd)
			if err != nil {
				return err
			}
			m, err := c.SendMedia(cmd.Context(), args[0], kind, args[1])
			if err != nil {
				return err
			}
			url := m.ImageURL
			if kind == "audio" {
				url = m.AudioURL
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", m.ID, url)
			return nil
		},
	}
}

func messagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "messages <chatId>",
		Short: "Print the conversation, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, saved, err := authedClient(cmd)
			if err != nil {
				return err
			}
			msgs, err := c.Messages(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return render(cmd, msgs, func() { printMessages(cmd.OutOrStdout(), saved.UserID, msgs) })
		},
	}
}

func readCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <chatId>",
		Short: "Mark the conversation read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := authedClient(cmd)
			if err != nil {
				return err
			}
			return c.MarkRead(cmd.Context(), args[0])
		},
	}
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <chatId>",
		Short: "Follow the conversation live until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, saved, err := authedClient(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			w := cmd.OutOrStdout()
			seen := make(map[string]bool)
			return c.Watch(ctx, args[0], func(ev Event) {
				if ev.Type != "messages" {
					return
				}
				var fresh []Message
				for _, m := range ev.Messages {
					if !seen[m.ID] {
						seen[m.ID] = true
						fresh = append(fresh, m)
					}
				}
				printMessages(w, saved.UserID, fresh)
			})
		},
	}
}

// printMessages writes msgs (newest first, as served) oldest first.
func printMessages(w io.Writer, self string, msgs []Message) {
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		who := m.User.Name
		if m.User.UserID == self {
			who = "me"
		}
		body := m.Text
		switch {
		case m.ImageURL != "":
			body = "[image] " + m.ImageURL
		case m.AudioURL != "":
			body = "[audio] " + m.AudioURL
		}
		status := ""
		if m.User.UserID == self && m.UnreadCount == 0 {
			status = " ✓"
		}
		fmt.Fprintf(w, "%s  %-12s %s%s\n", m.CreatedAt.Local().Format(time.Kitchen), who, body, status)
	}
}
