package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// mqttBacklog bounds the status messages waiting for Read.
const mqttBacklog = 32

// MQTTDialer bridges a broker to the byte-stream interface: each message on
// StatusTopic becomes one newline-terminated frame, and each outbound line
// is published to CommandTopic.
type MQTTDialer struct {
	Broker       string
	StatusTopic  string
	CommandTopic string
	ClientID     string
	Timeout      time.Duration
}

func NewMQTTDialer(broker, statusTopic, commandTopic, clientID string, timeout time.Duration) *MQTTDialer {
	if clientID == "" {
		clientID = fmt.Sprintf("mediadash-%d", time.Now().Unix())
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MQTTDialer{
		Broker:       broker,
		StatusTopic:  statusTopic,
		CommandTopic: commandTopic,
		ClientID:     clientID,
		Timeout:      timeout,
	}
}

func (d *MQTTDialer) String() string { return "mqtt://" + d.Broker + "/" + d.StatusTopic }

func (d *MQTTDialer) Dial(ctx context.Context) (io.ReadWriteCloser, error) {
	c := &mqttConn{
		msgs:         make(chan []byte, mqttBacklog),
		done:         make(chan struct{}),
		commandTopic: d.CommandTopic,
		timeout:      d.Timeout,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(d.Broker)
	opts.SetClientID(d.ClientID)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(d.Timeout)
	// The Driver owns reconnection.
	opts.SetAutoReconnect(false)
	opts.SetCleanSession(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("Transport: MQTT connection lost: %v", err)
		c.shut()
	})

	c.client = mqtt.NewClient(opts)
	token := c.client.Connect()
	if err := waitToken(ctx, token, d.Timeout); err != nil {
		return nil, fmt.Errorf("connect mqtt %s: %w", d.Broker, err)
	}
	sub := c.client.Subscribe(d.StatusTopic, 0, c.onMessage)
	if err := waitToken(ctx, sub, d.Timeout); err != nil {
		c.client.Disconnect(0)
		return nil, fmt.Errorf("subscribe %s: %w", d.StatusTopic, err)
	}
	return c, nil
}

func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return fmt.Errorf("timed out after %s", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

type mqttConn struct {
	client       mqtt.Client
	msgs         chan []byte
	done         chan struct{}
	closeOnce    sync.Once
	commandTopic string
	timeout      time.Duration

	pending []byte
	dropped atomic.Uint64
}

// onMessage runs on the paho router goroutine and must not block.
func (c *mqttConn) onMessage(_ mqtt.Client, msg mqtt.Message) {
	payload := msg.Payload()
	frame := make([]byte, 0, len(payload)+1)
	frame = append(frame, payload...)
	if !bytes.HasSuffix(frame, []byte{'\n'}) {
		frame = append(frame, '\n')
	}
	// A full backlog evicts the oldest frame; the newest status wins.
	for {
		select {
		case c.msgs <- frame:
			return
		case <-c.done:
			return
		default:
		}
		select {
		case <-c.msgs:
			c.dropped.Add(1)
		default:
		}
	}
}

func (c *mqttConn) Read(p []byte) (int, error) {
	if len(c.pending) == 0 {
		select {
		case frame := <-c.msgs:
			c.pending = frame
		case <-c.done:
			return 0, ErrClosed
		}
	}
	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

// Write publishes each complete line of p as one message.
func (c *mqttConn) Write(p []byte) (int, error) {
	select {
	case <-c.done:
		return 0, ErrClosed
	default:
	}
	rest := p
	for len(rest) > 0 {
		line := rest
		if i := bytes.IndexByte(rest, '\n'); i >= 0 {
			line, rest = rest[:i], rest[i+1:]
		} else {
			rest = nil
		}
		if len(line) == 0 {
			continue
		}
		token := c.client.Publish(c.commandTopic, 0, false, append([]byte(nil), line...))
		if !token.WaitTimeout(c.timeout) {
			return 0, fmt.Errorf("publish %s: timed out", c.commandTopic)
		}
		if err := token.Error(); err != nil {
			return 0, fmt.Errorf("publish %s: %w", c.commandTopic, err)
		}
	}
	return len(p), nil
}

func (c *mqttConn) shut() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *mqttConn) Close() error {
	c.shut()
	if c.client.IsConnected() {
		c.client.Disconnect(250)
	}
	if n := c.dropped.Load(); n > 0 {
		log.Printf("Transport: MQTT backlog full, dropped %d status messages", n)
	}
	return nil
}
