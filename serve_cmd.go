package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/rsvp/internal/metrics"
	"github.com/dgnsrekt/rsvp/internal/prosody"
	"github.com/dgnsrekt/rsvp/internal/server"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Serve the prosody API over HTTP",
	Long:    paragraph(fmt.Sprintf("\n%s word timings over HTTP for other readers. Settings are read from the environment and a .env file in the working directory.", keyword("Serve"))),
	Example: paragraph("rsvp serve --addr :8080\nRSVP_ADDR=127.0.0.1:9000 rsvp serve"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		logger := log.NewWithOptions(os.Stderr, log.Options{
			ReportTimestamp: true,
			Prefix:          "rsvp",
			Level:           log.GetLevel(),
		})

		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("unable to load .env", "error", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv := server.New(prosody.NewRegistry(),
			server.WithLogger(logger),
			server.WithMetrics(metrics.New()),
			server.WithVersion(Version),
		)
		return srv.ListenAndServe(ctx, viper.GetString("addr"))
	},
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "address to listen on")
	_ = viper.BindPFlag("addr", serveCmd.Flags().Lookup("addr"))
	viper.SetDefault("addr", ":8080")
}
