package main

import (
	"encoding/json"

	"github.com/memologist/memologist/internal/hot"
	"github.com/memologist/memologist/internal/redisclient"
	"github.com/memologist/memologist/internal/store/sqlite"

	"github.com/spf13/cobra"
)

var hotCmd = &cobra.Command{
	Use:   "hot",
	Short: "Hot ranking maintenance",
}

// hotRunCmd performs one decay pass against the configured database.
var hotRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one hot decay pass and print its stats",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := appCfg
		st, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer st.Close()

		job := &hot.Job{
			Store:    st,
			Logger:   logger,
			Window:   cfg.Hot.Window,
			Interval: cfg.Hot.Interval,
			Location: cfg.Hot.Location(),
		}
		if cfg.Redis.Enabled() {
			rdb := redisclient.New(cfg.Redis)
			defer rdb.Close()
			job.Locker = redisclient.NewLocker(rdb)
		}

		stats, err := job.RunOnce(cmd.Context())
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	},
}

func init() {
	hotCmd.AddCommand(hotRunCmd)
	rootCmd.AddCommand(hotCmd)
}
