package main

import (
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vx-labs/logbuffer/logbuffer"
	"go.uber.org/zap"
)

const statTemplate = `• {{ .Path | yellow }}
  Capacity:    {{ .Capacity | humanBytes }}
  Tail:        {{ .Tail | humanBytes }} ({{ percent .Tail .Capacity }})
  Frames:      {{ .FrameCount }} ({{ .DataFrameCount }} data, {{ .PaddingFrameCount }} padding)
  Data:        {{ .DataBytes | humanBytes }}
  Padding:     {{ .PaddingBytes | humanBytes }}
  {{- if .Uncommitted }}
  {{ "A claimed frame is not committed yet." | red }}
  {{- end }}`

type termStatistics struct {
	Path string
	logbuffer.Statistics
}

func configDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, "termctl")
}

func mustOpenTerm(config *viper.Viper) (*logbuffer.MappedBuffer, *zap.Logger) {
	l := getLogger(config)
	path := config.GetString("term-file")
	buffer, err := logbuffer.OpenMapped(path)
	if err != nil {
		l.Fatal("failed to open term buffer", zap.String("term_file", path), zap.Error(err))
	}
	return buffer, l.With(zap.String("term_file", path))
}

func main() {
	config := viper.New()
	config.AddConfigPath(configDir())
	config.SetConfigType("yaml")
	config.SetConfigName("config")
	config.SetEnvPrefix("TERMCTL")
	config.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	config.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use: "termctl",
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			config.BindPFlags(cmd.Flags())
			config.BindPFlags(cmd.PersistentFlags())
			if err := config.ReadInConfig(); err != nil {
				if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
					log.Fatal(err)
				}
			}
		},
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Create a new term buffer file",
		Run: func(cmd *cobra.Command, _ []string) {
			l := getLogger(config)
			path := config.GetString("term-file")
			buffer, err := logbuffer.Create(path, config.GetInt("term-length"))
			if err != nil {
				l.Fatal("failed to create term buffer", zap.String("term_file", path), zap.Error(err))
			}
			defer buffer.Close()
			l.Info("term buffer created", zap.String("term_file", path), zap.Int("term_capacity", buffer.Capacity()))
		},
	}
	create.Flags().Int("term-length", 16*logbuffer.TermMinLength, "Term buffer capacity, a power of two.")
	rootCmd.AddCommand(create)

	stat := &cobra.Command{
		Use:   "stat",
		Short: "Verify the term buffer and print its statistics",
		Run: func(cmd *cobra.Command, _ []string) {
			buffer, l := mustOpenTerm(config)
			defer buffer.Close()
			statistics, err := logbuffer.Verify(buffer.Buffer)
			if err != nil {
				l.Error("term buffer verification failed", zap.Error(err))
			}
			tpl := ParseTemplate(config.GetString("format"))
			if err := tpl.Execute(cmd.OutOrStdout(), termStatistics{Path: buffer.FilePath(), Statistics: statistics}); err != nil {
				l.Fatal("failed to render statistics", zap.Error(err))
			}
		},
	}
	stat.Flags().String("format", statTemplate, "Format each stat using Go's template syntax.")
	rootCmd.AddCommand(stat)

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Zero every frame and the tail of the term buffer",
		Run: func(cmd *cobra.Command, _ []string) {
			buffer, l := mustOpenTerm(config)
			defer buffer.Close()
			if !config.GetBool("yes") {
				prompt := promptui.Prompt{
					Label:     "Reset " + buffer.FilePath() + ", losing every frame",
					IsConfirm: true,
				}
				if _, err := prompt.Run(); err != nil {
					l.Info("reset aborted")
					return
				}
			}
			buffer.Reset()
			if err := buffer.Sync(); err != nil {
				l.Fatal("failed to sync term buffer", zap.Error(err))
			}
			l.Info("term buffer reset")
		},
	}
	reset.Flags().BoolP("yes", "y", false, "Do not ask for confirmation. Nothing may use the buffer while it is reset.")
	rootCmd.AddCommand(reset)

	rootCmd.AddCommand(Put(config))
	rootCmd.AddCommand(Read(config))
	rootCmd.AddCommand(Scan(config))
	rootCmd.AddCommand(Frames(config))
	rootCmd.AddCommand(Checkpoints(config))

	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Increase log verbosity.")
	rootCmd.PersistentFlags().StringP("term-file", "f", "/tmp/termd/term.log", "Term buffer file.")
	rootCmd.PersistentFlags().String("data-dir", "/tmp/termd", "Termd data directory, holding consumer checkpoints.")
	rootCmd.Execute()
}
