package hermes

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"

	"github.com/oshokin/alarm-clock/internal/config"
	"github.com/oshokin/alarm-clock/internal/engine"
	"github.com/oshokin/alarm-clock/internal/logger"
)

const (
	// topicPlayFinished is the audio server's playback completion topic.
	topicPlayFinished = "hermes/audioServer/+/playFinished"
	// topicHotword matches hotword detection on any site.
	topicHotword = "hermes/hotword/+/detected"
	// topicSessionStarted is the dialogue manager's session open topic.
	topicSessionStarted = "hermes/dialogueManager/sessionStarted"
	// topicSessionEnded is the dialogue manager's session termination topic.
	topicSessionEnded = "hermes/dialogueManager/sessionEnded"
	// topicStartSession asks the dialogue manager to open a session.
	topicStartSession = "hermes/dialogueManager/startSession"
	// topicEndSession asks the dialogue manager to terminate a session.
	topicEndSession = "hermes/dialogueManager/endSession"
	// topicIntents matches every recognized intent.
	topicIntents = "hermes/intent/#"

	// connectTimeout bounds the wait for the initial broker connection.
	connectTimeout = 30 * time.Second

	// eventBufferSize is the inbound event channel capacity. The dispatcher
	// normally keeps up; a full buffer drops the event with a warning.
	eventBufferSize = 64
)

// Client is the notification gateway: it talks the hermes MQTT protocol of
// the voice assistant, translating inbound messages into the engine's typed
// events and outbound engine calls into broker publishes.
type Client struct {
	// cfg holds the broker connection parameters.
	cfg config.MQTTConfig
	// cm manages the broker connection with automatic reconnection.
	cm *autopaho.ConnectionManager
	// events carries inbound notification events to the engine dispatcher.
	events chan engine.Event
	// intents carries recognized intents to the intent handler.
	intents chan Intent
	// logCtx scopes handler logging, since broker callbacks carry no context.
	logCtx context.Context //nolint:containedctx // Callbacks have no context parameter.

	// mu protects ringtones and closed.
	mu sync.RWMutex
	// ringtones caches sound file contents by path.
	ringtones map[string][]byte
	// closed is set by Stop; broker callbacks racing the shutdown must not
	// send on the closed channels.
	closed bool
}

// NewClient creates a gateway bound to the given broker settings.
// Call Start to connect.
func NewClient(cfg config.MQTTConfig) *Client {
	logCtx := logger.WithName(context.Background(), "hermes")
	logCtx = logger.WithKV(logCtx, "client_id", cfg.ClientID)

	return &Client{
		cfg:       cfg,
		events:    make(chan engine.Event, eventBufferSize),
		intents:   make(chan Intent, eventBufferSize),
		logCtx:    logCtx,
		ringtones: make(map[string][]byte),
	}
}

// Start connects to the broker and subscribes to the hermes topics the
// engine consumes. Subscriptions are re-established on every reconnect.
func (c *Client) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(c.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse broker URL: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: c.cfg.Username,
		ConnectPassword: []byte(c.cfg.Password),
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			logger.InfoKV(c.logCtx, "Connected to broker", "broker", c.cfg.Broker)
			c.subscribe(cm)
		},
		OnConnectError: func(err error) {
			logger.WarnKV(c.logCtx, "Broker connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: c.cfg.ClientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				c.route,
			},
		},
	}

	// Enable TLS for mqtts:// or ssl:// schemes.
	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("broker connect: %w", err)
	}

	c.cm = cm

	connCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := cm.AwaitConnection(connCtx); err != nil {
		// autopaho keeps retrying in the background.
		logger.WarnKV(c.logCtx, "Initial broker connection timed out, retrying in background", "error", err)
	}

	return nil
}

// Stop disconnects from the broker and closes the event channels.
// It is safe to call more than once.
func (c *Client) Stop(ctx context.Context) error {
	var err error
	if c.cm != nil {
		err = c.cm.Disconnect(ctx)
	}

	c.mu.Lock()
	if !c.closed {
		c.closed = true

		close(c.events)
		close(c.intents)
	}
	c.mu.Unlock()

	return err
}

// Events returns the channel of inbound notification events.
func (c *Client) Events() <-chan engine.Event {
	return c.events
}

// Intents returns the channel of recognized intents.
func (c *Client) Intents() <-chan Intent {
	return c.intents
}

// PlaySound publishes the sound file to the site's audio server and returns
// the playback token the completion event will carry. The requested volume
// travels as a user property for the audio server to apply.
func (c *Client) PlaySound(ctx context.Context, siteID, resource string, volumePercent int) (string, error) {
	sound, err := c.ringtone(resource)
	if err != nil {
		return "", err
	}

	token := uuid.NewString()
	topic := fmt.Sprintf("hermes/audioServer/%s/playBytes/%s", siteID, token)

	_, err = c.cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		Payload: sound,
		Properties: &paho.PublishProperties{
			User: paho.UserProperties{
				{Key: "volume", Value: strconv.Itoa(volumePercent)},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("publish play request: %w", err)
	}

	return token, nil
}

// StartSession asks the dialogue manager to open an action session that
// prompts the user and listens for the snooze answer intent.
func (c *Client) StartSession(ctx context.Context, siteID, text string) error {
	payload, err := json.Marshal(startSessionPayload{
		SiteID: siteID,
		Init: sessionInit{
			Type:          "action",
			Text:          text,
			CanBeEnqueued: true,
			IntentFilter:  []string{intentAnswerAlarm},
		},
	})
	if err != nil {
		return fmt.Errorf("encode start session: %w", err)
	}

	if _, err = c.cm.Publish(ctx, &paho.Publish{
		Topic:   topicStartSession,
		QoS:     1,
		Payload: payload,
	}); err != nil {
		return fmt.Errorf("publish start session: %w", err)
	}

	return nil
}

// EndSession asks the dialogue manager to terminate a session, speaking the
// given text first when non-empty.
func (c *Client) EndSession(ctx context.Context, sessionID, text string) error {
	payload, err := json.Marshal(endSessionPayload{
		SessionID: sessionID,
		Text:      text,
	})
	if err != nil {
		return fmt.Errorf("encode end session: %w", err)
	}

	if _, err = c.cm.Publish(ctx, &paho.Publish{
		Topic:   topicEndSession,
		QoS:     1,
		Payload: payload,
	}); err != nil {
		return fmt.Errorf("publish end session: %w", err)
	}

	return nil
}

// subscribe establishes the hermes subscriptions on a fresh connection.
func (c *Client) subscribe(cm *autopaho.ConnectionManager) {
	_, err := cm.Subscribe(c.logCtx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{
			{Topic: topicPlayFinished, QoS: 1},
			{Topic: topicHotword, QoS: 1},
			{Topic: topicSessionStarted, QoS: 1},
			{Topic: topicSessionEnded, QoS: 1},
			{Topic: topicIntents, QoS: 1},
		},
	})
	if err != nil {
		logger.ErrorKV(c.logCtx, "Failed to subscribe to hermes topics", "error", err)
	}
}

// route translates one inbound publish into an event or intent.
func (c *Client) route(pr paho.PublishReceived) (bool, error) {
	topic := pr.Packet.Topic

	switch {
	case strings.HasPrefix(topic, "hermes/intent/"):
		intent, err := parseIntent(topic, pr.Packet.Payload)
		if err != nil {
			logger.WarnKV(c.logCtx, "Dropping unreadable intent", "topic", topic, "error", err)

			return true, nil
		}

		c.emitIntent(intent)

	case topic == topicSessionStarted:
		var p sessionPayload
		if c.decode(topic, pr.Packet.Payload, &p) {
			c.emit(engine.SessionStarted{SiteID: p.SiteID, SessionID: p.SessionID})
		}

	case topic == topicSessionEnded:
		var p sessionEndedPayload
		if c.decode(topic, pr.Packet.Payload, &p) {
			c.emit(engine.SessionEnded{
				SiteID:    p.SiteID,
				SessionID: p.SessionID,
				Reason:    p.Termination.Reason,
			})
		}

	case strings.HasSuffix(topic, "/playFinished"):
		var p playFinishedPayload
		if c.decode(topic, pr.Packet.Payload, &p) {
			c.emit(engine.PlaybackFinished{SiteID: p.SiteID, Token: p.ID})
		}

	case strings.HasPrefix(topic, "hermes/hotword/") && strings.HasSuffix(topic, "/detected"):
		var p hotwordPayload
		if c.decode(topic, pr.Packet.Payload, &p) {
			c.emit(engine.HotwordDetected{SiteID: p.SiteID})
		}
	}

	return true, nil
}

// decode unmarshals a JSON payload, logging and reporting failures.
func (c *Client) decode(topic string, payload []byte, v any) bool {
	if err := json.Unmarshal(payload, v); err != nil {
		logger.WarnKV(c.logCtx, "Dropping unreadable message", "topic", topic, "error", err)

		return false
	}

	return true
}

// emit delivers an event without blocking the broker callback.
// The read lock is held across the send so Stop cannot close the channel
// mid-delivery.
func (c *Client) emit(ev engine.Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return
	}

	select {
	case c.events <- ev:
	default:
		logger.WarnKV(c.logCtx, "Event buffer full, dropping event", "site_id", ev.Site())
	}
}

// emitIntent delivers an intent without blocking the broker callback.
func (c *Client) emitIntent(intent Intent) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return
	}

	select {
	case c.intents <- intent:
	default:
		logger.WarnKV(c.logCtx, "Intent buffer full, dropping intent", "intent", intent.Name)
	}
}

// ringtone returns the cached sound file contents, loading them on first use.
func (c *Client) ringtone(resource string) ([]byte, error) {
	c.mu.RLock()
	sound, ok := c.ringtones[resource]
	c.mu.RUnlock()

	if ok {
		return sound, nil
	}

	sound, err := os.ReadFile(resource)
	if err != nil {
		return nil, fmt.Errorf("read ringtone: %w", err)
	}

	c.mu.Lock()
	c.ringtones[resource] = sound
	c.mu.Unlock()

	return sound, nil
}
