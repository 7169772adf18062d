package main

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vx-labs/logbuffer/checkpoint"
	"go.uber.org/zap"
)

func mustOpenCheckpoints(config *viper.Viper) (*checkpoint.Store, *zap.Logger) {
	l := getLogger(config)
	dir := filepath.Join(config.GetString("data-dir"), "checkpoints")
	store, err := checkpoint.Open(dir, l)
	if err != nil {
		l.Fatal("failed to open checkpoint store", zap.String("checkpoint_dir", dir), zap.Error(err))
	}
	return store, l
}

func Checkpoints(config *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoints",
		Short: "Manage consumer checkpoints. termd must be stopped.",
	}
	list := &cobra.Command{
		Use: "ls",
		Run: func(cmd *cobra.Command, _ []string) {
			store, l := mustOpenCheckpoints(config)
			defer store.Close()
			checkpoints, err := store.List()
			if err != nil {
				l.Fatal("failed to list checkpoints", zap.Error(err))
			}
			names := make([]string, 0, len(checkpoints))
			for name := range checkpoints {
				names = append(names, name)
			}
			sort.Strings(names)
			table := getTable([]string{"Consumer", "Offset"}, cmd.OutOrStdout())
			for _, name := range names {
				table.Append([]string{name, fmt.Sprintf("%d", checkpoints[name])})
			}
			table.Render()
		},
	}
	remove := &cobra.Command{
		Use:  "rm [consumer]",
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			store, l := mustOpenCheckpoints(config)
			defer store.Close()
			if err := store.Delete(args[0]); err != nil {
				l.Fatal("failed to delete checkpoint", zap.String("consumer_name", args[0]), zap.Error(err))
			}
			l.Info("checkpoint deleted", zap.String("consumer_name", args[0]))
		},
	}
	cmd.AddCommand(list)
	cmd.AddCommand(remove)
	return cmd
}
