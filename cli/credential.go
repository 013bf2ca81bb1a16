package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/haasonsaas/sitegate/pkg/auth"
	"github.com/haasonsaas/sitegate/pkg/config"
)

var errEmptySecret = errors.New("secret must not be empty")

type credentialOptions struct {
	configPath  string
	dbPath      string
	identifiers []string
	cost        int
	rotate      bool
}

func credentialCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credential",
		Short: "Manage login credentials",
	}
	cmd.AddCommand(credentialAddCmd())
	return cmd
}

func credentialAddCmd() *cobra.Command {
	opts := credentialOptions{}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a credential, or rotate its secret with --rotate",
		Long:  "Reads the secret from stdin so it never appears in shell history.",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := readSecret(cmd.InOrStdin())
			if err != nil {
				return err
			}
			cred, err := addCredential(cmd.Context(), opts, secret)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "credential %s: %s\n", cred.ID, strings.Join(cred.Identifiers, ", "))
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", "sitegate.yaml", "Server config file used to locate the database")
	cmd.Flags().StringVar(&opts.dbPath, "db", "", "Database path (overrides config)")
	cmd.Flags().StringSliceVarP(&opts.identifiers, "identifier", "i", nil, "Identifier such as a username or email (repeatable)")
	cmd.Flags().IntVar(&opts.cost, "cost", 0, "bcrypt cost (defaults to auth.bcrypt_cost)")
	cmd.Flags().BoolVar(&opts.rotate, "rotate", false, "Replace the secret of an existing credential")
	_ = cmd.MarkFlagRequired("identifier")
	return cmd
}

func readSecret(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read secret: %w", err)
	}
	secret := strings.TrimRight(line, "\r\n")
	if secret == "" {
		return "", errEmptySecret
	}
	return secret, nil
}

func addCredential(ctx context.Context, opts credentialOptions, secret string) (*auth.Credential, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.dbPath != "" {
		cfg.Database.Path = opts.dbPath
	}
	if opts.cost != 0 {
		cfg.Auth.BcryptCost = opts.cost
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := gorm.Open(sqlite.Open(cfg.Database.Path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	store := auth.NewGormCredentialStore(db)
	if err := store.Migrate(); err != nil {
		return nil, fmt.Errorf("migrate credentials: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), cfg.Auth.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash secret: %w", err)
	}

	if opts.rotate {
		if len(opts.identifiers) != 1 {
			return nil, errors.New("--rotate takes exactly one identifier")
		}
		return store.SetSecret(ctx, opts.identifiers[0], hash)
	}
	return store.Create(ctx, opts.identifiers, hash)
}
