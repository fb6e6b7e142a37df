package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/omochice/hybrid-chat/internal/auth"
	"github.com/omochice/hybrid-chat/internal/chattest"
	"github.com/omochice/hybrid-chat/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		pushAddr string
		rpcAddr  string
		secret   string
		issue    []string
		tokenTTL time.Duration
		logLevel string
	)
	cmd := &cobra.Command{
		Use:          "chat-devserver",
		Short:        "Local push and RPC chat server for trying the client",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := logging.Setup(logLevel, "console"); err != nil {
				return err
			}

			var opts []chattest.Option
			if secret != "" {
				opts = append(opts, chattest.WithSecret([]byte(secret)))
				for _, user := range issue {
					token, err := auth.Issue(user, user, []byte(secret), tokenTTL, time.Now())
					if err != nil {
						return err
					}
					fmt.Printf("token for %s: %s\n", user, token)
				}
			}

			srv := chattest.New(opts...)
			if err := srv.Start(pushAddr, rpcAddr); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()

			log.Info().Str("component", "devserver").Msg("shutting down")
			srv.Stop()
			return nil
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&pushAddr, "push-addr", ":8080", "push channel listen address, served at /ws")
	fs.StringVar(&rpcAddr, "rpc-addr", ":9090", "RPC service listen address")
	fs.StringVar(&secret, "secret", "", "HS256 secret; when set both channels require signed tokens")
	fs.StringSliceVar(&issue, "issue", nil, "print a signed token for each user id (requires --secret)")
	fs.DurationVar(&tokenTTL, "token-ttl", 24*time.Hour, "lifetime of issued tokens")
	fs.StringVar(&logLevel, "log-level", "info", "log level")
	return cmd
}

