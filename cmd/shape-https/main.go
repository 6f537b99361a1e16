// Command shape-https is an HTTP/1.1 origin server over TLS serving static
// files and multipart/form-data uploads.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/shapestone/shape-https/internal/config"
	"github.com/shapestone/shape-https/internal/server"
	"github.com/shapestone/shape-https/internal/site"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "shape-https:", err)
		os.Exit(1)
	}
}

func run(arguments []string) error {
	flags := flag.NewFlagSet("shape-https", flag.ContinueOnError)
	configPath := flags.String("config", "", "path to a YAML configuration file")
	debug := flags.Bool("debug", false, "log every exchange")
	if err := flags.Parse(arguments); err != nil {
		return err
	}

	logger, err := newLogger(*debug)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	tlsConfig, err := server.TLSConfig(cfg.Network.CertFile, cfg.Network.KeyFile)
	if err != nil {
		return err
	}

	root := afero.NewBasePathFs(afero.NewOsFs(), cfg.Site.Root)
	resources := site.New(root, site.Config{
		Gone:       cfg.Site.Gone,
		UploadPath: cfg.Site.UploadPath,
		Multipart:  cfg.MultipartConfig(),
	}, site.WithLogger(logger.Named("site")))

	srv := server.New(server.Config{
		Addr:           cfg.Network.Addr,
		TLS:            tlsConfig,
		ReadTimeout:    cfg.Network.ReadTimeout,
		WriteTimeout:   cfg.Network.WriteTimeout,
		MaxConnections: cfg.Network.MaxConnections,
	}, cfg.HTTP(), resources, site.ErrorHandlers(), server.WithLogger(logger.Named("server")))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger.Info("starting",
		zap.String("addr", cfg.Network.Addr),
		zap.String("server_name", cfg.Network.ServerName),
		zap.String("root", cfg.Site.Root))
	return srv.ListenAndServe(ctx)
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
