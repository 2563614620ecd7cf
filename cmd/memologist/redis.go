package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/memologist/memologist/internal/redisclient"

	"github.com/spf13/cobra"
)

// redisCmd groups Redis-related subcommands.
var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Redis utilities",
}

var redisPingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Ping Redis and print PONG",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !appCfg.Redis.Enabled() {
			return errors.New("redis.addr is not configured")
		}
		rdb := redisclient.New(appCfg.Redis)
		defer rdb.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		res, err := rdb.Ping(ctx).Result()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), res)
		return nil
	},
}

func init() {
	redisCmd.AddCommand(redisPingCmd)
	rootCmd.AddCommand(redisCmd)
}
