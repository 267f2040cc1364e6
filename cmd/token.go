package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"

	"academic-blog-api/auth"
	"academic-blog-api/config"
)

const (
	userIDFlag = "user-id"
	ttlFlag    = "ttl"
)

// NewTokenCommand mints bearer tokens for local development.
func NewTokenCommand() *cobra.Command {
	flags := map[string]cobraflags.Flag{
		envFileFlag: newEnvFileFlag(),
		userIDFlag: &cobraflags.StringFlag{
			Name:  userIDFlag,
			Value: "",
			Usage: "Id of the user the token authenticates (required)",
		},
		ttlFlag: &cobraflags.StringFlag{
			Name:  ttlFlag,
			Value: "24h",
			Usage: "Token lifetime",
		},
	}
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, err := strconv.ParseInt(flags[userIDFlag].GetString(), 10, 64)
			if err != nil || userID <= 0 {
				return fmt.Errorf("--%s must be a positive integer", userIDFlag)
			}
			ttl, err := time.ParseDuration(flags[ttlFlag].GetString())
			if err != nil {
				return fmt.Errorf("--%s: %w", ttlFlag, err)
			}
			cfg, err := loadConfig(flags, config.KeyJWTSecret)
			if err != nil {
				return err
			}
			tok, err := auth.NewTokens(cfg.JWTSecret).Issue(userID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cobraflags.RegisterMap(cmd, flags)
	return cmd
}
