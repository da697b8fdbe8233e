package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/CodedInternet/gorobomotor/onboard"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

const (
	TELEMETRY_INTERVAL = 50 * time.Millisecond
	writeWait          = time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type stateSource interface {
	State() onboard.RobotState
}

// publisher is the part of mqtt.Client used for telemetry.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Telemetry fans robot state out to websocket clients and, when configured, an MQTT topic.
type Telemetry struct {
	source   stateSource
	interval time.Duration

	mqtt  publisher
	topic string

	lock    sync.Mutex
	clients map[*websocket.Conn]bool
}

func NewTelemetry(source stateSource, interval time.Duration) *Telemetry {
	return &Telemetry{
		source:   source,
		interval: interval,
		clients:  make(map[*websocket.Conn]bool),
	}
}

// PublishTo also sends every update to topic.
func (t *Telemetry) PublishTo(client publisher, topic string) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.mqtt = client
	t.topic = topic
}

func (t *Telemetry) Clients() int {
	t.lock.Lock()
	defer t.lock.Unlock()
	return len(t.clients)
}

func (t *Telemetry) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.closeAll()
			return
		case <-ticker.C:
			t.broadcast()
		}
	}
}

func (t *Telemetry) broadcast() {
	t.lock.Lock()
	defer t.lock.Unlock()

	if len(t.clients) == 0 && t.mqtt == nil {
		return
	}

	payload, err := json.Marshal(t.source.State())
	if err != nil {
		glog.Errorf("telemetry: %v", err)
		return
	}

	for client := range t.clients {
		client.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.WriteMessage(websocket.TextMessage, payload); err != nil {
			glog.V(1).Infof("telemetry: dropping client %s: %v", client.RemoteAddr(), err)
			client.Close()
			delete(t.clients, client)
		}
	}

	if t.mqtt != nil {
		// fire and forget, the client queues while reconnecting
		t.mqtt.Publish(t.topic, 0, false, payload)
	}
}

func (t *Telemetry) closeAll() {
	t.lock.Lock()
	defer t.lock.Unlock()
	for client := range t.clients {
		client.Close()
		delete(t.clients, client)
	}
}

// Handler upgrades the request and streams telemetry to it until the client goes away.
func (t *Telemetry) Handler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.Warningf("telemetry: upgrade: %v", err)
		return
	}

	t.lock.Lock()
	t.clients[conn] = true
	t.lock.Unlock()
	glog.V(1).Infof("telemetry: client %s connected", conn.RemoteAddr())

	// Nothing is expected from clients, reading only notices when they leave.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	t.lock.Lock()
	if t.clients[conn] {
		delete(t.clients, conn)
		conn.Close()
	}
	t.lock.Unlock()
}

func setupMQTTClient(broker, clientID string) mqtt.Client {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.OnConnect = func(mqtt.Client) {
		glog.Infof("telemetry: connected to MQTT broker %s", broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		glog.Warningf("telemetry: MQTT connection lost: %v", err)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)

	client := mqtt.NewClient(opts)
	// with connect retry set this returns straight away and keeps trying in the background
	client.Connect()
	return client
}
