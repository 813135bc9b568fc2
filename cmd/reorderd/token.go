package main

import (
	"fmt"

	"reorder-service/internal/auth"
	"reorder-service/internal/config"
	"reorder-service/pkg/logger"

	"github.com/spf13/cobra"
)

var tokenUsername string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Generate a short-lived bearer token for the trigger endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if cfg.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is not configured")
		}

		log := logger.New(cfg.Environment)
		defer log.Sync()

		jwtManager := auth.NewJWTManager(cfg.JWTSecret, log)
		token, err := jwtManager.GenerateToken(tokenUsername)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVarP(&tokenUsername, "username", "u", "admin", "subject to embed in the token")
}
