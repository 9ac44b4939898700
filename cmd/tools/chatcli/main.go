// Command chatcli drives a user's conversation threads from the terminal,
// against the same snapshot store and inference backend as the server.
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

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/mindwave/backend/internal/bootstrap"
	"github.com/zhouzirui/mindwave/backend/internal/config"
	"github.com/zhouzirui/mindwave/backend/internal/model/chat"
	chatService "github.com/zhouzirui/mindwave/backend/internal/service/chat"
	"github.com/zhouzirui/mindwave/backend/internal/service/session"
	"github.com/zhouzirui/mindwave/backend/internal/store"
)

type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	backend store.Backend
	sess    *session.Session
}

var (
	flagUID      string
	flagStore    string
	flagSQLite   string
	flagRedisURL string

	current = &app{}
)

var rootCmd = &cobra.Command{
	Use:           "chatcli",
	Short:         "Manage Mindwave conversation threads from the terminal",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		_ = godotenv.Load()
		return current.open(cmd.Context())
	},
	PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
		return current.close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagUID, "uid", os.Getenv("MINDWAVE_UID"), "user id whose threads are managed")
	rootCmd.PersistentFlags().StringVar(&flagStore, "store", "", "snapshot backend (memory, sqlite, redis); defaults to STORE_BACKEND or sqlite")
	rootCmd.PersistentFlags().StringVar(&flagSQLite, "dsn", "", "sqlite database path, overrides SQLITE_DSN")
	rootCmd.PersistentFlags().StringVar(&flagRedisURL, "redis-url", "", "redis URL, overrides REDIS_URL")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "view",
			Short: "Print the active thread",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				printView(cmd.OutOrStdout(), current.sess.View())
				return nil
			},
		},
		&cobra.Command{
			Use:   "threads",
			Short: "List threads, newest first",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				printThreads(cmd.OutOrStdout(), current.sess.ActiveID(), current.sess.Threads())
				return nil
			},
		},
		&cobra.Command{
			Use:   "new",
			Short: "Create a thread and make it active",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				thread := current.sess.CreateThread(cmd.Context())
				fmt.Fprintln(cmd.OutOrStdout(), thread.ID)
				return nil
			},
		},
		&cobra.Command{
			Use:   "switch <thread-id>",
			Short: "Make a thread active",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				current.sess.SwitchActive(cmd.Context(), args[0])
				if current.sess.ActiveID() != args[0] {
					return fmt.Errorf("no thread %q", args[0])
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "rename <thread-id> <title>",
			Short: "Set a thread title",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				if !current.sess.RenameThread(cmd.Context(), args[0], strings.Join(args[1:], " ")) {
					return fmt.Errorf("cannot rename thread %q", args[0])
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete <thread-id>",
			Short: "Delete a thread",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				current.sess.DeleteThread(cmd.Context(), args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "send <text>",
			Short: "Send a message to the active thread and print the reply",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				svc, err := current.chatService(cmd.Context())
				if err != nil {
					return err
				}
				reply, err := svc.SendMessage(cmd.Context(), current.sess, strings.Join(args, " "))
				if err != nil {
					return err
				}
				printMessage(cmd.OutOrStdout(), reply)
				return nil
			},
		},
		&cobra.Command{
			Use:   "chat",
			Short: "Interactive conversation on the active thread",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				svc, err := current.chatService(cmd.Context())
				if err != nil {
					return err
				}
				return repl(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), current.sess, svc)
			},
		},
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func (a *app) open(ctx context.Context) error {
	if strings.TrimSpace(flagUID) == "" {
		return errors.New("--uid is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if os.Getenv("STORE_BACKEND") == "" {
		cfg.Store.Backend = config.StoreSQLite
	}
	if flagStore != "" {
		cfg.Store.Backend = strings.ToLower(flagStore)
	}
	if flagSQLite != "" {
		cfg.Store.SQLiteDSN = flagSQLite
	}
	if flagRedisURL != "" {
		cfg.Store.RedisURL = flagRedisURL
	}

	a.cfg = cfg
	a.logger = bootstrap.NewLogger(cfg.Log)

	a.backend, err = bootstrap.OpenStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}

	identity := chat.Identity{UserID: strings.TrimSpace(flagUID), Authenticated: true}
	a.sess = session.Load(ctx, a.backend, identity, session.Options{Logger: a.logger})
	return a.sess.LoadErr()
}

func (a *app) close() error {
	if a.backend == nil {
		return nil
	}
	return a.backend.Close()
}

func (a *app) chatService(ctx context.Context) (*chatService.Service, error) {
	client, err := bootstrap.NewInferenceClient(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, err
	}
	return chatService.NewService(client, chatService.Options{
		HistoryLimit: a.cfg.Inference.HistoryLimit,
		Logger:       a.logger,
	}), nil
}

// repl reads one message per line. Lines starting with a slash are commands.
func repl(ctx context.Context, in io.Reader, out io.Writer, sess *session.Session, svc *chatService.Service) error {
	printView(out, sess.View())
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := scanner.Text()

		switch fields := strings.Fields(line); {
		case len(fields) == 0:
			continue
		case fields[0] == "/quit" || fields[0] == "/exit":
			return nil
		case fields[0] == "/threads":
			printThreads(out, sess.ActiveID(), sess.Threads())
		case fields[0] == "/new":
			sess.CreateThread(ctx)
			printView(out, sess.View())
		case fields[0] == "/switch" && len(fields) == 2:
			sess.SwitchActive(ctx, fields[1])
			printView(out, sess.View())
		case strings.HasPrefix(fields[0], "/"):
			fmt.Fprintln(out, "commands: /threads /new /switch <id> /quit")
		default:
			reply, err := svc.SendMessage(ctx, sess, line)
			if err != nil {
				fmt.Fprintln(out, "error:", err)
				continue
			}
			printMessage(out, reply)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

func printView(out io.Writer, view session.View) {
	fmt.Fprintf(out, "# %s  [%s]  mood: %s\n", view.Title, view.ActiveThreadID, view.Emotion)
	for _, msg := range view.Messages {
		printMessage(out, msg)
	}
}

func printThreads(out io.Writer, activeID string, threads []chat.ThreadSummary) {
	for _, t := range threads {
		marker := " "
		if t.ID == activeID {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %s  %-40s  %s\n", marker, t.ID, t.Title, t.LastUpdated.Local().Format("2006-01-02 15:04"))
	}
}

func printMessage(out io.Writer, msg chat.Message) {
	who := "you"
	if msg.Sender == chat.SenderAI {
		who = "mindwave"
	}
	if msg.Emotion != "" {
		fmt.Fprintf(out, "%s (%s): %s\n", who, msg.Emotion, msg.Text)
		return
	}
	fmt.Fprintf(out, "%s: %s\n", who, msg.Text)
}
