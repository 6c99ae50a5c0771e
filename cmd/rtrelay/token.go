package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/codewandler/rtrelay/relay"
)

func tokenCmd() *cobra.Command {
	var (
		subject  string
		audience string
		ttl      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a gateway token signed with $JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			loadDotEnv(newLogger())

			secret := os.Getenv("JWT_SECRET")
			if secret == "" {
				return errors.New("JWT_SECRET is required")
			}
			if audience == "" {
				audience = os.Getenv("JWT_AUDIENCE")
			}

			token, err := relay.IssueToken([]byte(secret), subject, audience, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "sub", "dev", "token subject")
	cmd.Flags().StringVar(&audience, "aud", "", "token audience (default $JWT_AUDIENCE)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")

	return cmd
}
