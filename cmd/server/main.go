package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/xard1993/komun-api/cmd/server/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug   bool `help:"Enable debug mode." env:"KOMUN_DEBUG"`
		Version kong.VersionFlag

		Serve   commands.ServeCmd   `cmd:"" help:"Start the API server"`
		Migrate commands.MigrateCmd `cmd:"" help:"Apply public and tenant schema migrations"`
		Tenant  commands.TenantCmd  `cmd:"" help:"Manage tenants"`
		User    commands.UserCmd    `cmd:"" help:"Manage platform users"`
	}
)

func main() {
	// optional, real environment variables win
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := kong.Parse(&cli,
		kong.Name("komun"),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
