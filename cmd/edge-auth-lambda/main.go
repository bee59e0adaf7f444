package main

import (
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/fx"

	"edge-auth-proxy/internal/app"
	"edge-auth-proxy/internal/config"
	"edge-auth-proxy/internal/handler"
)

// Edge functions cannot read environment variables set on the function, so
// configuration comes from the bundled configs/config.toml.
func main() {
	var edge *handler.EdgeHandler

	a := fx.New(
		fx.NopLogger,
		fx.Supply(&config.CLI{}),
		fx.Provide(config.Load, handler.NewEdgeHandler),
		app.Core,
		fx.Populate(&edge),
	)
	if err := a.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "edge-auth-lambda: %v\n", err)
		os.Exit(1)
	}

	lambda.Start(edge.Handle)
}
