package main

import (
	"fmt"

	"github.com/alecthomas/kong"
	"go.uber.org/fx"

	"edge-auth-proxy/internal/app"
	"edge-auth-proxy/internal/config"
	"edge-auth-proxy/internal/handler"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var cli config.CLI
	kong.Parse(&cli,
		kong.Name("edge-auth-proxy"),
		kong.Description("Authenticating, request-signing proxy in front of an IAM-protected origin."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
	)

	fx.New(
		fx.Provide(
			func() *config.CLI { return &cli },
			func() handler.Version { return handler.Version(version) },
			config.Load,
		),
		app.Core,
		app.Server,
	).Run()
}
