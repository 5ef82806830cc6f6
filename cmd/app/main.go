package main

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/bloglyhq/blogly/internal/config"
	"github.com/bloglyhq/blogly/internal/db"
	"github.com/bloglyhq/blogly/internal/service"
	"github.com/bloglyhq/blogly/internal/transport"
)

func main() {
	app := fx.New(
		fx.Provide(
			config.NewConfig,
			db.NewGormClient,
			func() (*zap.SugaredLogger, error) {
				l, err := zap.NewProduction()
				if err != nil {
					return nil, err
				}
				return l.Sugar(), nil
			},
		),
		service.Module,
		transport.Module,
		fx.Invoke(func(server *transport.HTTPServer) {}),
	)

	app.Run()
}
