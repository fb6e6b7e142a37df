package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/omochice/hybrid-chat/internal/auth"
	"github.com/omochice/hybrid-chat/internal/client"
	"github.com/omochice/hybrid-chat/internal/config"
	"github.com/omochice/hybrid-chat/internal/logging"
	"github.com/omochice/hybrid-chat/internal/session"
	"github.com/omochice/hybrid-chat/internal/transport/rpc"
	"github.com/omochice/hybrid-chat/internal/transport/ws"
)

type flags struct {
	pushURL   string
	rpcAddr   string
	token     string
	tokenFile string
	user      string
	room      string
	logLevel  string
	logFormat string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:           "chat-client",
		Short:         "Interactive chat client over a push channel and an RPC channel",
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			applyFlags(cmd, f, &cfg)
			if err := logging.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg, f.user)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&f.pushURL, "push-url", "", "push channel URL (CHAT_PUSH_URL)")
	fs.StringVar(&f.rpcAddr, "rpc-addr", "", "RPC service address (CHAT_RPC_ADDR)")
	fs.StringVar(&f.token, "token", "", "bearer token (CHAT_TOKEN)")
	fs.StringVar(&f.tokenFile, "token-file", "", "file holding the bearer token (CHAT_TOKEN_FILE)")
	fs.StringVar(&f.user, "user", "", "user id to use without a token, for local servers")
	fs.StringVar(&f.room, "room", "", "room joined on connect (CHAT_DEFAULT_ROOM)")
	fs.StringVar(&f.logLevel, "log-level", "", "log level (CHAT_LOG_LEVEL)")
	fs.StringVar(&f.logFormat, "log-format", "", "console or json (CHAT_LOG_FORMAT)")
	return cmd
}

// applyFlags overrides environment values with flags set explicitly.
func applyFlags(cmd *cobra.Command, f flags, cfg *config.Config) {
	set := func(name string, dst *string, v string) {
		if cmd.Flags().Changed(name) {
			*dst = v
		}
	}
	set("push-url", &cfg.PushURL, f.pushURL)
	set("rpc-addr", &cfg.RPCAddr, f.rpcAddr)
	set("token", &cfg.Token, f.token)
	set("token-file", &cfg.TokenFile, f.tokenFile)
	set("room", &cfg.DefaultRoom, f.room)
	set("log-level", &cfg.LogLevel, f.logLevel)
	set("log-format", &cfg.LogFormat, f.logFormat)
}

func credential(cfg config.Config, user string) (auth.Credential, error) {
	cred, err := auth.Load(cfg.Token, cfg.TokenFile, time.Now())
	if errors.Is(err, auth.ErrNoCredential) && user != "" {
		return auth.Credential{UserID: user, Username: user}, nil
	}
	if err != nil {
		return auth.Credential{}, errors.Wrap(err, "credential")
	}
	if !cred.ExpiresAt.IsZero() {
		log.Info().Time("expires_at", cred.ExpiresAt).Str("user_id", cred.UserID).Msg("using credential")
	}
	return cred, nil
}

func run(ctx context.Context, cfg config.Config, user string) error {
	cred, err := credential(cfg, user)
	if err != nil {
		return err
	}

	rpcClient, err := rpc.Dial(cfg.RPCAddr, rpc.WithToken(cred.Token))
	if err != nil {
		return err
	}
	defer rpcClient.Close()

	sess := session.New(cfg.Session(cred.UserID, cred.Username), ws.Dialer{Token: cred.Token, Timeout: cfg.RPCTimeout}, rpcClient)
	console := client.NewConsole(sess, os.Stdout, cfg.DefaultRoom)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := sess.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		console.Watch(ctx, sess.Events())
		return nil
	})
	g.Go(func() error {
		defer sess.Close()
		if err := sess.Connect(ctx); err != nil {
			return err
		}
		fmt.Printf("Connecting to %s as %s\n", cfg.PushURL, cred.Username)
		fmt.Println(client.Help)
		return console.Run(ctx, os.Stdin)
	})

	err = g.Wait()
	fmt.Println("Disconnected from server")
	return err
}
