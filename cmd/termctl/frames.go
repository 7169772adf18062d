package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vx-labs/logbuffer/logbuffer"
	"github.com/vx-labs/logbuffer/stream"
	"go.uber.org/zap"
)

func Put(config *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put [payload...]",
		Short: "Append payloads to the term buffer, one frame each. Reads lines from stdin without arguments.",
		Run: func(cmd *cobra.Command, args []string) {
			buffer, l := mustOpenTerm(config)
			defer buffer.Close()
			appender := logbuffer.NewAppender(buffer.Buffer,
				logbuffer.WithSessionID(int32(config.GetInt("session-id"))),
				logbuffer.WithStreamID(int32(config.GetInt("stream-id"))),
			)
			offer := func(payload []byte) {
				position, err := appender.Offer(payload)
				if err != nil {
					if err == logbuffer.ErrAdminAction || err == logbuffer.ErrMaxPositionExceeded {
						l.Fatal("term buffer is full", zap.Error(err))
					}
					l.Fatal("failed to append payload", zap.Error(err))
				}
				l.Debug("payload appended", zap.Int("term_position", position))
			}
			if len(args) > 0 {
				for _, arg := range args {
					offer([]byte(arg))
				}
				return
			}
			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				offer(scanner.Bytes())
			}
			if err := scanner.Err(); err != nil {
				l.Fatal("failed to read stdin", zap.Error(err))
			}
		},
	}
	cmd.Flags().Int("session-id", 0, "Session ID written in frame headers.")
	cmd.Flags().Int("stream-id", 0, "Stream ID written in frame headers.")
	return cmd
}

func Read(config *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read",
		Short: "Print the payload of every data frame",
		Run: func(cmd *cobra.Command, _ []string) {
			buffer, l := mustOpenTerm(config)
			defer buffer.Close()
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go func() {
				sigc := make(chan os.Signal, 1)
				signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
				<-sigc
				cancel()
			}()
			eof := stream.EOFBehaviourExit
			if config.GetBool("follow") {
				eof = stream.EOFBehaviourPoll
			}
			consumer := stream.NewConsumer(
				stream.FromOffset(config.GetInt("from-offset")),
				stream.WithEOFBehaviour(eof),
				stream.WithIdleStrategy(stream.SleepingIdle{Duration: config.GetDuration("poll-interval")}),
			)
			out := cmd.OutOrStdout()
			err := consumer.Consume(ctx, buffer.Buffer, func(ctx context.Context, batch stream.Batch) error {
				for _, record := range batch.Records {
					fmt.Fprintln(out, string(record))
				}
				return nil
			})
			if err != nil {
				l.Fatal("failed to read term buffer", zap.Error(err))
			}
		},
	}
	cmd.Flags().Int("from-offset", 0, "Start reading at this offset. A negative value starts at the tail.")
	cmd.Flags().Bool("follow", false, "Wait for new frames instead of exiting.")
	cmd.Flags().Duration("poll-interval", 50*time.Millisecond, "Interval between polls when following.")
	return cmd
}

func Scan(config *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Print the batches a sender would emit for an MTU",
		Run: func(cmd *cobra.Command, _ []string) {
			buffer, l := mustOpenTerm(config)
			defer buffer.Close()
			offset := config.GetInt("from-offset")
			if err := buffer.CheckOffset(offset); err != nil {
				l.Fatal("invalid offset", zap.Error(err))
			}
			table := getTable([]string{"Offset", "Available", "Padding"}, cmd.OutOrStdout())
			for offset < buffer.Capacity() {
				outcome := logbuffer.Scan(buffer.Buffer, offset, config.GetInt("mtu"))
				if outcome.Consumed() == 0 {
					break
				}
				table.Append([]string{
					fmt.Sprintf("%d", offset),
					fmt.Sprintf("%d", outcome.Available),
					fmt.Sprintf("%d", outcome.Padding),
				})
				offset += outcome.Consumed()
			}
			table.Render()
		},
	}
	cmd.Flags().Int("from-offset", 0, "Start scanning at this offset.")
	cmd.Flags().Int("mtu", 1408, "Maximum batch length.")
	return cmd
}

func Frames(config *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "frames",
		Short: "List frame headers",
		Run: func(cmd *cobra.Command, _ []string) {
			buffer, l := mustOpenTerm(config)
			defer buffer.Close()
			offset := config.GetInt("from-offset")
			if err := buffer.CheckOffset(offset); err != nil {
				l.Fatal("invalid offset", zap.Error(err))
			}
			limit := config.GetInt("limit")
			table := getTable([]string{"Offset", "Type", "Length", "Flags", "Session", "Stream", "Term", "Reserved"}, cmd.OutOrStdout())
			count := 0
			logbuffer.Frames(buffer.Buffer, offset, func(h logbuffer.Header) bool {
				table.Append([]string{
					fmt.Sprintf("%d", h.Offset()),
					h.Type().String(),
					fmt.Sprintf("%d", h.FrameLength()),
					fmt.Sprintf("%#02x", h.Flags()),
					fmt.Sprintf("%d", h.SessionID()),
					fmt.Sprintf("%d", h.StreamID()),
					fmt.Sprintf("%d", h.TermID()),
					fmt.Sprintf("%d", h.ReservedValue()),
				})
				count++
				return limit <= 0 || count < limit
			})
			table.Render()
		},
	}
	cmd.Flags().Int("from-offset", 0, "Start listing at this offset.")
	cmd.Flags().IntP("limit", "n", 0, "Maximum number of frames to list. 0 lists every frame.")
	return cmd
}
