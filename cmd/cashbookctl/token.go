package main

import (
	"fmt"
	"time"

	"cashbook/internal/auth"

	"github.com/spf13/cobra"
)

var (
	flagName string
	flagTTL  time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API token for a user",
	Args:  cobra.NoArgs,
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&flagName, "name", "", "Display name carried in the token")
	tokenCmd.Flags().DurationVar(&flagTTL, "ttl", 0, "Token lifetime (default $JWT_TTL)")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(_ *cobra.Command, _ []string) error {
	if err := requireUser(); err != nil {
		return err
	}
	cfg := loadConfig()
	if len(cfg.JWTSecret) < 16 {
		return fmt.Errorf("JWT_SECRET must be set to at least 16 characters")
	}
	ttl := cfg.JWTTTL
	if flagTTL > 0 {
		ttl = flagTTL
	}
	token, err := auth.NewJWTManager(cfg.JWTSecret, ttl).Generate(flagUser, flagName)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
