package bridge

import (
	"context"
	"crypto/tls"
	"net"
	"net/url"
	"sync"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/vx-labs/logbuffer/logbuffer"
	"github.com/vx-labs/logbuffer/stats"
	"github.com/vx-labs/logbuffer/stream"
	"go.uber.org/zap"
)

// Writer appends records to a term buffer. It serializes callers so the
// underlying Appender keeps a single writer.
type Writer struct {
	mtx      sync.Mutex
	appender *logbuffer.Appender
	idle     stream.IdleStrategy
	logger   *zap.Logger
}

func NewWriter(appender *logbuffer.Appender, idle stream.IdleStrategy, logger *zap.Logger) *Writer {
	return &Writer{appender: appender, idle: idle, logger: logger}
}

func resultLabel(err error) string {
	switch errors.Cause(err) {
	case nil:
		return "ok"
	case logbuffer.ErrBackPressured:
		return "back_pressured"
	case logbuffer.ErrNotConnected:
		return "not_connected"
	case logbuffer.ErrAdminAction:
		return "admin_action"
	case logbuffer.ErrClosed:
		return "closed"
	case logbuffer.ErrMaxPositionExceeded:
		return "max_position_exceeded"
	default:
		return "error"
	}
}

// Append writes the record as one frame. Back pressure and disconnections
// are retried until ctx is done; any other status is returned.
func (w *Writer) Append(ctx context.Context, record Record) error {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	w.idle.Reset()
	for {
		claim, err := w.appender.TryClaim(record.Len())
		stats.CounterVec("appenderResults").WithLabelValues(resultLabel(err)).Inc()
		if err == nil {
			record.MarshalTo(claim.Payload())
			if err := claim.Commit(); err != nil {
				return err
			}
			stats.Gauge("bufferTail").Set(float64(w.appender.Buffer().Tail()))
			return nil
		}
		cause := errors.Cause(err)
		if cause != logbuffer.ErrBackPressured && cause != logbuffer.ErrNotConnected {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		w.idle.Idle(0)
	}
}

type Collector interface {
	Run(context.Context, *Writer) error
}

type mqttCollector struct {
	opts   *MQTT.ClientOptions
	topic  string
	logger *zap.Logger
}

func (m *mqttCollector) Run(ctx context.Context, w *Writer) error {
	m.opts.OnConnect = func(c MQTT.Client) {
		m.logger.Info("subscribing to topic pattern", zap.String("mqtt_topic_pattern", m.topic))
		c.Subscribe(m.topic, 1, func(client MQTT.Client, msg MQTT.Message) {
			if msg.Retained() {
				return
			}
			m.logger.Debug("mqtt message collected",
				zap.String("mqtt_topic", msg.Topic()), zap.Int("mqtt_payload_size", len(msg.Payload())))
			err := w.Append(ctx, Record{Topic: msg.Topic(), Payload: msg.Payload()})
			if err != nil {
				m.logger.Error("failed to append mqtt message", zap.String("mqtt_topic", msg.Topic()), zap.Error(err))
			}
		})
	}
	c := MQTT.NewClient(m.opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	<-ctx.Done()
	c.Disconnect(500)
	return nil
}

func clientOptions(broker, clientID, username, password string) (*MQTT.ClientOptions, error) {
	opts := MQTT.NewClientOptions().AddBroker(broker)
	opts.ClientID = clientID
	opts.Username = username
	opts.Password = password
	brokerURL, err := url.Parse(broker)
	if err != nil {
		return nil, err
	}
	if brokerURL.Scheme == "tls" {
		host, _, _ := net.SplitHostPort(brokerURL.Host)
		opts.TLSConfig = &tls.Config{
			MinVersion:               tls.VersionTLS12,
			CurvePreferences:         []tls.CurveID{tls.CurveP521, tls.CurveP384, tls.CurveP256},
			PreferServerCipherSuites: true,
			CipherSuites: []uint16{
				tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_RSA_WITH_AES_256_GCM_SHA384,
			},
			ServerName: host,
		}
	}
	opts.AutoReconnect = true
	return opts, nil
}

// MQTTCollector subscribes to topic on broker and appends every message it receives.
func MQTTCollector(broker, clientID, username, password, topic string, logger *zap.Logger) (Collector, error) {
	opts, err := clientOptions(broker, clientID, username, password)
	if err != nil {
		return nil, err
	}
	return &mqttCollector{
		opts:   opts,
		topic:  topic,
		logger: logger,
	}, nil
}
