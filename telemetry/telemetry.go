// Package telemetry publishes viewer stats to an MQTT broker and accepts
// control commands on a topic.
//
// Commands are JSON objects:
//
//	{"command": "set_fps", "id": "42", "params": {"fps": 15}}
//	{"command": "get_status"}
//
// Every command is answered on the replies topic, echoing its id.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
	queueSize      = 8
)

// ErrNotConnected is returned by publishes while the broker is away.
var ErrNotConnected = errors.New("mqtt not connected")

// Config selects the broker and topics.
type Config struct {
	Broker       string // host:port
	ClientID     string
	StatsTopic   string
	ControlTopic string
	RepliesTopic string
	QoS          byte
	Interval     time.Duration
}

// Callbacks connect commands to the host. A nil callback makes its
// command answer with an error.
type Callbacks struct {
	// Status returns a JSON-serialisable snapshot, used for periodic
	// stats and get_status.
	Status func() any
	// SetFPS changes the capture frame rate.
	SetFPS func(fps float64) error
}

// Command is one control message.
type Command struct {
	Command string         `json:"command"`
	ID      string         `json:"id,omitempty"`
	Params  map[string]any `json:"params,omitempty"`
}

// Response answers a Command.
type Response struct {
	CommandAck string    `json:"command_ack"`
	ID         string    `json:"id,omitempty"`
	Status     string    `json:"status"` // success, error
	Data       any       `json:"data,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Stats is a snapshot of client counters.
type Stats struct {
	Connected bool
	Published uint64
	Commands  uint64
	Dropped   uint64 // commands refused because the queue was full
	Errors    uint64
}

// Client is the MQTT side of the viewer.
//
// Lifecycle: New → Start → Stop. Stop is idempotent.
type Client struct {
	cfg Config
	cb  Callbacks
	id  string // instance ID carried in stats messages

	client   mqtt.Client
	commands chan Command

	connected atomic.Bool
	published atomic.Uint64
	handled   atomic.Uint64
	dropped   atomic.Uint64
	errors    atomic.Uint64

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New validates cfg. It does not connect.
func New(cfg Config, cb Callbacks) (*Client, error) {
	switch {
	case cfg.Broker == "":
		return nil, fmt.Errorf("mqtt broker is required")
	case cfg.ClientID == "":
		return nil, fmt.Errorf("mqtt client id is required")
	case cfg.StatsTopic == "" || cfg.ControlTopic == "" || cfg.RepliesTopic == "":
		return nil, fmt.Errorf("mqtt topics are required")
	case cfg.QoS > 2:
		return nil, fmt.Errorf("invalid mqtt qos %d", cfg.QoS)
	case cfg.Interval <= 0:
		return nil, fmt.Errorf("invalid stats interval %v", cfg.Interval)
	}
	return &Client{
		cfg:      cfg,
		cb:       cb,
		id:       uuid.New().String(),
		commands: make(chan Command, queueSize),
	}, nil
}

// Start connects, subscribes to the control topic and begins publishing
// stats. The paho client reconnects on its own after a lost connection;
// the control subscription is renewed on every connect.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return fmt.Errorf("telemetry already started")
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", c.cfg.Broker))
	opts.SetClientID(c.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(cl mqtt.Client) {
		c.connected.Store(true)
		slog.Info("telemetry: mqtt connected", "broker", c.cfg.Broker, "client_id", c.cfg.ClientID)
		token := cl.Subscribe(c.cfg.ControlTopic, c.cfg.QoS, c.onMessage)
		if !token.WaitTimeout(connectTimeout) || token.Error() != nil {
			c.errors.Add(1)
			slog.Error("telemetry: control subscription failed", "topic", c.cfg.ControlTopic, "error", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		c.connected.Store(false)
		slog.Warn("telemetry: mqtt connection lost, will auto-reconnect", "broker", c.cfg.Broker, "error", err)
	}

	c.client = mqtt.NewClient(opts)
	slog.Info("telemetry: connecting to mqtt broker", "broker", c.cfg.Broker)
	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		// ConnectRetry keeps trying in the background.
		slog.Warn("telemetry: mqtt broker not reachable yet, retrying", "broker", c.cfg.Broker)
	} else if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(2)
	go c.publishLoop(ctx)
	go c.processCommands(ctx)
	c.started = true
	return nil
}

// Stop unsubscribes and disconnects. Idempotent.
func (c *Client) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return
	}
	c.started = false

	c.cancel()
	c.wg.Wait()

	if c.client.IsConnected() {
		c.client.Unsubscribe(c.cfg.ControlTopic).WaitTimeout(publishTimeout)
	}
	c.client.Disconnect(250)
	c.connected.Store(false)

	st := c.Stats()
	slog.Info("telemetry: stopped", "published", st.Published, "commands", st.Commands, "errors", st.Errors)
}

// Stats returns current counters.
func (c *Client) Stats() Stats {
	return Stats{
		Connected: c.connected.Load(),
		Published: c.published.Load(),
		Commands:  c.handled.Load(),
		Dropped:   c.dropped.Load(),
		Errors:    c.errors.Load(),
	}
}

func (c *Client) publishLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if c.cb.Status == nil || !c.connected.Load() {
			continue
		}
		if err := c.publishJSON(c.cfg.StatsTopic, statsMessage{
			Instance:  c.id,
			Timestamp: time.Now().UTC(),
			Stats:     c.cb.Status(),
		}); err != nil {
			slog.Debug("telemetry: stats publish failed", "error", err)
		}
	}
}

type statsMessage struct {
	Instance  string    `json:"instance"`
	Timestamp time.Time `json:"timestamp"`
	Stats     any       `json:"stats"`
}

// onMessage runs on the paho router goroutine: it only queues.
func (c *Client) onMessage(_ mqtt.Client, msg mqtt.Message) {
	cmd, err := parseCommand(msg.Payload())
	if err != nil {
		c.reply(Response{CommandAck: "unknown", Status: "error", Error: err.Error()})
		return
	}
	select {
	case c.commands <- cmd:
	default:
		c.dropped.Add(1)
		slog.Warn("telemetry: command queue full, dropping command", "command", cmd.Command)
	}
}

func (c *Client) processCommands(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-c.commands:
			slog.Info("telemetry: command received", "command", cmd.Command, "id", cmd.ID)
			c.reply(c.handle(cmd))
		}
	}
}

func parseCommand(payload []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return Command{}, fmt.Errorf("invalid JSON: %w", err)
	}
	if cmd.Command == "" {
		return Command{}, fmt.Errorf("missing command")
	}
	return cmd, nil
}

// handle executes cmd against the callbacks.
func (c *Client) handle(cmd Command) Response {
	c.handled.Add(1)
	resp := Response{CommandAck: cmd.Command, ID: cmd.ID, Status: "success"}
	fail := func(err error) Response {
		resp.Status = "error"
		resp.Error = err.Error()
		return resp
	}

	switch cmd.Command {
	case "get_status":
		if c.cb.Status == nil {
			return fail(fmt.Errorf("get_status not supported"))
		}
		resp.Data = c.cb.Status()

	case "set_fps":
		if c.cb.SetFPS == nil {
			return fail(fmt.Errorf("set_fps not supported"))
		}
		fps, ok := cmd.Params["fps"].(float64)
		if !ok {
			return fail(fmt.Errorf("missing or invalid 'fps' parameter (expected number)"))
		}
		if err := c.cb.SetFPS(fps); err != nil {
			return fail(err)
		}
		resp.Data = map[string]any{"fps": fps}

	default:
		return fail(fmt.Errorf("unknown command: %s", cmd.Command))
	}
	return resp
}

func (c *Client) reply(resp Response) {
	resp.Timestamp = time.Now().UTC()
	if err := c.publishJSON(c.cfg.RepliesTopic, resp); err != nil {
		slog.Error("telemetry: reply failed", "command_ack", resp.CommandAck, "error", err)
		return
	}
	slog.Debug("telemetry: reply sent", "command_ack", resp.CommandAck, "status", resp.Status)
}

func (c *Client) publishJSON(topic string, v any) error {
	if !c.connected.Load() {
		c.errors.Add(1)
		return ErrNotConnected
	}
	payload, err := json.Marshal(v)
	if err != nil {
		c.errors.Add(1)
		return fmt.Errorf("marshal: %w", err)
	}
	token := c.client.Publish(topic, c.cfg.QoS, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		c.errors.Add(1)
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		c.errors.Add(1)
		return fmt.Errorf("publish failed: %w", err)
	}
	c.published.Add(1)
	return nil
}
