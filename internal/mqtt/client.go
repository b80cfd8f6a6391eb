package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"ledbar-controller/internal/config"
	"ledbar-controller/internal/core"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/time/rate"
)

// Client mirrors the animation state to a broker and feeds remote tokens
// into the loop's command queue.
type Client struct {
	client   mqtt.Client
	cfg      *config.Config
	eventBus *core.EventBus
	commands core.CommandChannel
	limiter  *rate.Limiter
	prefix   string
}

// NewClient builds the client. It returns nil when MQTT is disabled.
func NewClient(cfg *config.Config, eb *core.EventBus, commands core.CommandChannel) *Client {
	if !cfg.MQTT.Enabled {
		return nil
	}

	prefix := strings.TrimSuffix(cfg.MQTT.TopicPrefix, "/")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTT.Broker)
	opts.SetClientID(cfg.MQTT.ClientID)
	opts.SetUsername(cfg.MQTT.Username)
	opts.SetPassword(cfg.MQTT.Password)

	opts.SetKeepAlive(10 * time.Second)
	opts.SetPingTimeout(5 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)

	// Keep retrying at boot: the broker may come up after us.
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetOrderMatters(false)

	opts.SetWill(prefix+"/availability", "offline", 1, true)

	c := &Client{
		cfg:      cfg,
		eventBus: eb,
		commands: commands,
		limiter:  rate.NewLimiter(rate.Limit(cfg.MQTT.RateLimit), cfg.MQTT.RateBurst),
		prefix:   prefix,
	}

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Printf("[MQTT] Connection lost: %v. Retrying in background...", err)
	})
	opts.SetReconnectingHandler(func(client mqtt.Client, options *mqtt.ClientOptions) {
		log.Println("[MQTT] Attempting to reconnect...")
	})

	c.client = mqtt.NewClient(opts)
	return c
}

// Connect starts the connection; with ConnectRetry an error here means bad configuration.
func (c *Client) Connect() error {
	if c.client == nil {
		return nil
	}
	log.Printf("[MQTT] Starting connection loop to %s...", c.cfg.MQTT.Broker)

	token := c.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return nil
}

// Run publishes pattern changes until ctx is done.
func (c *Client) Run(ctx context.Context) {
	sub := c.eventBus.Subscribe(core.PatternChangedEvent)
	defer c.eventBus.Unsubscribe(sub, core.PatternChangedEvent)

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-sub:
			c.publishState(event.Snapshot)
		}
	}
}

// Disconnect publishes offline, then closes the socket.
func (c *Client) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		log.Println("[MQTT] Disconnecting...")

		token := c.client.Publish(c.prefix+"/availability", 0, true, "offline")
		if token.WaitTimeout(2 * time.Second) {
			if token.Error() != nil {
				log.Printf("[MQTT] Warning: failed to publish offline status: %v", token.Error())
			}
		} else {
			log.Println("[MQTT] Warning: timed out publishing offline status")
		}

		c.client.Disconnect(250)
		log.Println("[MQTT] Disconnected.")
	}
}

func (c *Client) Publish(subtopic string, payload interface{}, retained bool) {
	if c.client == nil || !c.client.IsConnected() {
		return
	}

	topic := fmt.Sprintf("%s/%s", c.prefix, subtopic)
	token := c.client.Publish(topic, 0, retained, payload)

	go func() {
		if token.WaitTimeout(5 * time.Second) {
			if token.Error() != nil {
				log.Printf("[MQTT] Publish error to %s: %v", topic, token.Error())
			}
		} else {
			log.Printf("[MQTT] Timeout publishing to %s", topic)
		}
	}()
}

func (c *Client) publishState(snap core.Snapshot) {
	c.Publish("pattern/state", snap.Name, true)
	data, err := json.Marshal(snap)
	if err != nil {
		log.Printf("[MQTT] state encode error: %v", err)
		return
	}
	c.Publish("state", data, true)
}

// onConnect runs on a paho goroutine.
func (c *Client) onConnect(client mqtt.Client) {
	log.Println("[MQTT] Connected to broker.")

	topic := c.prefix + "/pattern/set"
	if token := client.Subscribe(topic, 1, c.handlePatternSet); token.Wait() && token.Error() != nil {
		log.Printf("[MQTT] Error subscribing to %s: %v", topic, token.Error())
	} else {
		log.Printf("[MQTT] Subscribed to %s", topic)
	}

	go func() {
		c.Publish("availability", "online", true)
		if c.cfg.MQTT.HADiscoveryEnabled {
			c.PublishHADiscovery()
		}
	}()
}

// handlePatternSet accepts a bare token ("3") or a pattern name ("center_out").
func (c *Client) handlePatternSet(_ mqtt.Client, msg mqtt.Message) {
	payload := strings.TrimSpace(string(msg.Payload()))
	token := TokenFor(payload)

	if !c.limiter.Allow() {
		log.Printf("[MQTT] Rate limit hit, dropping '%s'", payload)
		return
	}
	if !c.commands.TrySend(core.Command{Token: token, Source: "mqtt"}) {
		log.Printf("[MQTT] Command queue full, dropping '%s'", payload)
	}
}

// TokenFor maps a pattern name to its control token; anything else passes through.
func TokenFor(payload string) string {
	name := strings.ToLower(payload)
	if name == core.Stopped.String() || name == "off" {
		return core.StopToken
	}
	for _, p := range core.Patterns {
		if p.String() == name {
			return p.Token()
		}
	}
	return payload
}

// PublishHADiscovery announces the bar as a Home Assistant select entity.
func (c *Client) PublishHADiscovery() {
	safeID := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			return r
		}
		if r == ' ' {
			return '_'
		}
		return -1
	}, c.cfg.MQTT.ClientID)

	discoveryTopic := fmt.Sprintf("%s/select/%s/pattern/config", c.cfg.MQTT.HADiscoveryPrefix, safeID)
	payload, err := json.Marshal(c.discoveryPayload(safeID))
	if err != nil {
		log.Printf("[MQTT] discovery encode error: %v", err)
		return
	}

	token := c.client.Publish(discoveryTopic, 0, true, payload)
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		log.Printf("[MQTT] HA Discovery error: %v", token.Error())
		return
	}
	log.Printf("[MQTT] HA Discovery sent to %s", discoveryTopic)
}

func (c *Client) discoveryPayload(safeID string) map[string]interface{} {
	options := []string{core.Stopped.String()}
	for _, p := range core.Patterns {
		options = append(options, p.String())
	}

	return map[string]interface{}{
		"name":          "Pattern",
		"unique_id":     safeID + "_pattern",
		"object_id":     safeID,
		"icon":          "mdi:led-strip-variant",
		"command_topic": fmt.Sprintf("%s/pattern/set", c.prefix),
		"state_topic":   fmt.Sprintf("%s/pattern/state", c.prefix),
		"options":       options,
		"availability": []map[string]string{
			{
				"topic":                 fmt.Sprintf("%s/availability", c.prefix),
				"payload_available":     "online",
				"payload_not_available": "offline",
			},
		},
		"device": map[string]interface{}{
			"identifiers":  []string{safeID},
			"name":         "LED Bar Controller",
			"manufacturer": "ledbar",
			"model":        "8-line LED bar",
		},
	}
}
