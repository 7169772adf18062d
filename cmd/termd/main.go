package main

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/oklog/ulid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vx-labs/logbuffer/bridge"
	"github.com/vx-labs/logbuffer/checkpoint"
	"github.com/vx-labs/logbuffer/logbuffer"
	"github.com/vx-labs/logbuffer/stats"
	"github.com/vx-labs/logbuffer/stream"
	"go.uber.org/zap"
)

var _ stream.CheckpointStore = &checkpoint.Store{}

func defaultConsumerName() string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

func openTerm(path string, capacity int) (*logbuffer.MappedBuffer, error) {
	buffer, err := logbuffer.OpenMapped(path)
	if err == logbuffer.ErrBufferDoesNotExist {
		return logbuffer.Create(path, capacity)
	}
	return buffer, err
}

// operations runs named goroutines and waits for all of them on shutdown.
type operations struct {
	wg     sync.WaitGroup
	logger *zap.Logger
}

func (o *operations) Run(name string, f func() error) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.logger.Debug("operation started", zap.String("operation_name", name))
		if err := f(); err != nil {
			o.logger.Error("operation failed", zap.String("operation_name", name), zap.Error(err))
			return
		}
		o.logger.Debug("operation stopped", zap.String("operation_name", name))
	}()
}

func (o *operations) Wait() {
	o.wg.Wait()
}

func main() {
	config := viper.New()
	config.SetEnvPrefix("TERMD")
	config.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	config.AutomaticEnv()
	cmd := cobra.Command{
		Use: "termd",
		PreRun: func(cmd *cobra.Command, _ []string) {
			config.BindPFlags(cmd.Flags())
			if config.GetString("consumer-name") == "" {
				config.Set("consumer-name", defaultConsumerName())
			}
		},
		Run: func(cmd *cobra.Command, _ []string) {
			ctx, cancel := context.WithCancel(context.Background())
			logger := getLogger(config)
			dataDir := config.GetString("data-dir")
			err := os.MkdirAll(dataDir, 0700)
			if err != nil {
				logger.Fatal("failed to create data directory", zap.Error(err))
			}
			termPath := config.GetString("term-file")
			if termPath == "" {
				termPath = filepath.Join(dataDir, "term.log")
			}
			buffer, err := openTerm(termPath, config.GetInt("term-length"))
			if err != nil {
				logger.Fatal("failed to open term buffer", zap.String("term_file", termPath), zap.Error(err))
			}
			logger = logger.With(zap.String("term_file", termPath))
			bufferStats, err := logbuffer.Verify(buffer.Buffer)
			if err != nil {
				logger.Fatal("term buffer is corrupted", zap.Error(err))
			}
			logger.Info("term buffer opened",
				zap.Int("term_capacity", bufferStats.Capacity),
				zap.Int("term_tail", bufferStats.Tail),
				zap.Int("term_data_frame_count", bufferStats.DataFrameCount))
			stats.Gauge("bufferTail").Set(float64(bufferStats.Tail))

			checkpoints, err := checkpoint.Open(filepath.Join(dataDir, "checkpoints"), logger)
			if err != nil {
				logger.Fatal("failed to open checkpoint store", zap.Error(err))
			}

			idle, err := stream.ParseIdleStrategy(config.GetString("idle-strategy"))
			if err != nil {
				logger.Fatal("invalid idle strategy", zap.Error(err))
			}

			if config.GetBool("pprof") {
				address := fmt.Sprintf("%s:%d", config.GetString("pprof-address"), config.GetInt("pprof-port"))
				go func() {
					mux := http.NewServeMux()
					mux.HandleFunc("/debug/pprof/", pprof.Index)
					mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
					mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
					mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
					mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
					panic(http.ListenAndServe(address, mux))
				}()
				logger.Info("started pprof", zap.String("pprof_url", fmt.Sprintf("http://%s/", address)))
			}
			if port := config.GetInt("metrics-port"); port > 0 {
				go func() {
					if err := stats.ListenAndServe(port); err != nil {
						logger.Error("metrics server crashed", zap.Error(err))
					}
				}()
			}

			ops := &operations{logger: logger}

			var processor stream.Processor
			broker := config.GetString("mqtt-broker")
			if broker != "" && config.GetString("mqtt-forward-prefix") != "" {
				publisher, closePublisher, err := bridge.MQTTPublisher(broker, config.GetString("consumer-name"),
					config.GetString("mqtt-username"), config.GetString("mqtt-password"))
				if err != nil {
					logger.Fatal("failed to connect to mqtt broker", zap.Error(err))
				}
				defer closePublisher()
				processor = bridge.Forwarder(publisher, config.GetString("mqtt-forward-prefix"), logger)
			} else {
				processor = bridge.LogForwarder(logger)
			}
			consumerLogger := logger.With(zap.String("consumer_name", config.GetString("consumer-name")))
			consumer := stream.NewConsumer(
				stream.WithName(config.GetString("consumer-name")),
				stream.FromOffset(config.GetInt("from-offset")),
				stream.WithMaxBatchSize(config.GetInt("max-batch-size")),
				stream.WithIdleStrategy(idle),
				stream.WithCheckpoint(checkpoints, config.GetDuration("checkpoint-interval")),
				stream.WithPerformanceLogging(buffer, consumerLogger),
			)
			ops.Run("consumer", func() error {
				return consumer.Consume(ctx, buffer.Buffer, processor)
			})

			if broker != "" && config.GetString("mqtt-collect-topic") != "" {
				collector, err := bridge.MQTTCollector(broker, config.GetString("consumer-name")+"-collector",
					config.GetString("mqtt-username"), config.GetString("mqtt-password"),
					config.GetString("mqtt-collect-topic"), logger)
				if err != nil {
					logger.Fatal("failed to configure mqtt collector", zap.Error(err))
				}
				appender := logbuffer.NewAppender(buffer.Buffer,
					logbuffer.WithSessionID(int32(config.GetInt("session-id"))),
					logbuffer.WithStreamID(int32(config.GetInt("stream-id"))),
				)
				writerIdle, _ := stream.ParseIdleStrategy(config.GetString("idle-strategy"))
				writer := bridge.NewWriter(appender, writerIdle, logger)
				ops.Run("mqtt collector", func() error {
					return collector.Run(ctx, writer)
				})
			}

			if address := config.GetString("send-address"); address != "" {
				conn, err := net.Dial("udp", address)
				if err != nil {
					logger.Fatal("failed to dial sender destination", zap.String("send_address", address), zap.Error(err))
				}
				defer conn.Close()
				sender := stream.NewSender("udp-"+address, buffer.Buffer, conn, config.GetInt("send-mtu"))
				senderIdle, _ := stream.ParseIdleStrategy(config.GetString("idle-strategy"))
				ops.Run("udp sender", func() error {
					return stream.RunAgent(ctx, sender, senderIdle, logger)
				})
			}

			sigc := make(chan os.Signal, 1)
			signal.Notify(sigc,
				syscall.SIGINT,
				syscall.SIGTERM,
				syscall.SIGQUIT)
			<-sigc
			logger.Info("termd shutdown initiated")
			cancel()
			ops.Wait()
			logger.Debug("asynchronous operations stopped")
			if err := checkpoints.Close(); err != nil {
				logger.Error("failed to close checkpoint store", zap.Error(err))
			}
			if err := buffer.Close(); err != nil {
				logger.Error("failed to close term buffer", zap.Error(err))
			}
			logger.Info("termd successfully stopped")
		},
	}
	cmd.Flags().Bool("pprof", false, "Start pprof endpoint.")
	cmd.Flags().Int("pprof-port", 8080, "Profiling (pprof) port.")
	cmd.Flags().String("pprof-address", "127.0.0.1", "Profiling (pprof) port.")
	cmd.Flags().Bool("debug", false, "Use a fancy logger and increase logging level.")
	cmd.Flags().Int("metrics-port", 0, "Start Prometheus HTTP metrics server on this port.")
	cmd.Flags().StringP("data-dir", "d", "/tmp/termd", "Termd persistent data location.")
	cmd.Flags().String("term-file", "", "Term buffer file. Defaults to term.log in the data directory.")
	cmd.Flags().Int("term-length", 16*logbuffer.TermMinLength, "Capacity of the term buffer when it is created.")

	cmd.Flags().String("consumer-name", "", "Consumer name, used to checkpoint its offset. Defaults to a random ULID.")
	cmd.Flags().Int("from-offset", 0, "Start consuming at this offset when no checkpoint exists. A negative value starts at the tail.")
	cmd.Flags().Int("max-batch-size", 32, "Maximum number of frames per consumer batch.")
	cmd.Flags().Duration("checkpoint-interval", time.Second, "Commit the consumer offset at this interval.")
	cmd.Flags().String("idle-strategy", "backoff", "Idle strategy used by polling loops: noop, yielding, sleeping or backoff.")

	cmd.Flags().String("mqtt-broker", "", "MQTT broker URL (tcp:// or tls://).")
	cmd.Flags().String("mqtt-username", "", "MQTT username.")
	cmd.Flags().String("mqtt-password", "", "MQTT password.")
	cmd.Flags().String("mqtt-collect-topic", "", "Append messages published on this topic pattern to the term buffer.")
	cmd.Flags().String("mqtt-forward-prefix", "", "Publish consumed records on their topic under this prefix. Records are logged when empty.")
	cmd.Flags().Int("session-id", 0, "Session ID written in the frames appended by the collector.")
	cmd.Flags().Int("stream-id", 0, "Stream ID written in the frames appended by the collector.")

	cmd.Flags().String("send-address", "", "Send raw frames to this UDP address.")
	cmd.Flags().Int("send-mtu", 1408, "Maximum datagram size used by the UDP sender.")
	cmd.Execute()
}
