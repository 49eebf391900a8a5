// Command huddle runs the Huddle chat server and its operator tasks.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"huddle/cmd/internal/app"
	"huddle/cmd/internal/auth/token"

	"github.com/urfave/cli/v2"
)

const (
	privateKeyFile = "jwt_private.pem"
	publicKeyFile  = "jwt_public.pem"
)

func main() {
	if err := newCLI().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newCLI() *cli.App {
	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "config file (yaml, json or toml); key a.b maps to HUDDLE_A_B and set env vars override it",
		EnvVars: []string{app.EnvConfigFile},
	}

	return &cli.App{
		Name:  "huddle",
		Usage: "one-to-one chat server",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Run the HTTP and WebSocket server",
				Flags: []cli.Flag{
					configFlag,
					&cli.StringFlag{Name: "addr", Usage: "listen address, overrides http_addr"},
				},
				Action: func(c *cli.Context) error {
					return app.Run(c.String("config"), func(cfg *app.Config) {
						if addr := c.String("addr"); addr != "" {
							cfg.HTTPAddr = addr
						}
					})
				},
			},
			{
				Name:  "migrate",
				Usage: "Create the database schema and tables if missing",
				Flags: []cli.Flag{configFlag},
				Action: func(c *cli.Context) error {
					cfg, err := app.LoadConfig(c.String("config"))
					if err != nil {
						return err
					}
					if cfg.DatabaseURL == "" {
						return errors.New("migrate: HUDDLE_DATABASE_URL is not set")
					}
					ctx, cancel := context.WithTimeout(c.Context, time.Minute)
					defer cancel()

					cfg.DBAutoMigrate = true
					pool, err := app.NewDBPool(ctx, cfg)
					if err != nil {
						return err
					}
					pool.Close()
					fmt.Printf("schema %q is up to date\n", cfg.DBSchema)
					return nil
				},
			},
			{
				Name:  "keygen",
				Usage: "Write a fresh RSA key pair for signing credentials",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "bits", Value: 2048, Usage: "RSA modulus size"},
					&cli.StringFlag{Name: "out-dir", Value: ".", Usage: "directory for the PEM files"},
					&cli.BoolFlag{Name: "force", Usage: "overwrite existing files"},
				},
				Action: func(c *cli.Context) error {
					priv, pub, err := writeKeyPair(c.String("out-dir"), c.Int("bits"), c.Bool("force"))
					if err != nil {
						return err
					}
					fmt.Printf("HUDDLE_JWT_PRIVATE_KEY=%s\nHUDDLE_JWT_PUBLIC_KEY=%s\n", priv, pub)
					return nil
				},
			},
		},
	}
}

// writeKeyPair generates a key pair and stores it under dir, returning the
// two file paths. Existing files are kept unless force is set.
func writeKeyPair(dir string, bits int, force bool) (string, string, error) {
	privPEM, pubPEM, err := token.GenerateRSA(bits)
	if err != nil {
		return "", "", fmt.Errorf("generate key (bits=%d): %w", bits, err)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", "", err
	}

	privPath := filepath.Join(dir, privateKeyFile)
	pubPath := filepath.Join(dir, publicKeyFile)

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !force {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	if err := writeFile(privPath, privPEM, flags, 0o600); err != nil {
		return "", "", err
	}
	if err := writeFile(pubPath, pubPEM, flags, 0o644); err != nil {
		return "", "", err
	}
	return privPath, pubPath, nil
}

func writeFile(path string, data []byte, flags int, perm os.FileMode) error {
	f, err := os.OpenFile(path, flags, perm) // #nosec G304 -- operator supplied output path.
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
