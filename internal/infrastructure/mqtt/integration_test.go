//go:build integration

package mqtt

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Integration tests against a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

// watch subscribes a plain paho client to topic and returns received payloads.
func watch(t *testing.T, topic string) <-chan []byte {
	t.Helper()

	opts := pahomqtt.NewClientOptions().
		AddBroker("tcp://127.0.0.1:1883").
		SetClientID("graymedia-watcher-" + t.Name())
	watcher := pahomqtt.NewClient(opts)
	if token := watcher.Connect(); !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		t.Skipf("broker unavailable: %v", token.Error())
	}
	t.Cleanup(func() { watcher.Disconnect(100) })

	received := make(chan []byte, 8)
	token := watcher.Subscribe(topic, 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		received <- msg.Payload()
	})
	if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		t.Fatalf("subscribe %s: %v", topic, token.Error())
	}
	return received
}

// drain discards retained messages delivered on subscribe.
func drain(ch <-chan []byte) {
	for {
		select {
		case <-ch:
		case <-time.After(300 * time.Millisecond):
			return
		}
	}
}

func nextStatus(t *testing.T, ch <-chan []byte) statusPayload {
	t.Helper()
	select {
	case payload := <-ch:
		var p statusPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			t.Fatalf("status payload: %v", err)
		}
		return p
	case <-time.After(5 * time.Second):
		t.Fatal("no status message received")
	}
	return statusPayload{}
}

func TestIntegration_PresenceLifecycle(t *testing.T) {
	client, err := Connect(testConfig(), testDevice())
	if err != nil {
		t.Skipf("broker unavailable: %v", err)
	}
	defer client.Close()

	status := watch(t, Topics{}.DeviceStatus(testUDN))
	drain(status)
	presence := NewPresence(client, func() string { return "http://192.0.2.10:49152/" })

	if err := presence.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if p := nextStatus(t, status); p.Status != StatusOnline || p.PresentationURL != "http://192.0.2.10:49152/" {
		t.Errorf("status after start = %+v", p)
	}

	if err := presence.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if p := nextStatus(t, status); p.Status != StatusOffline || p.Reason != reasonGraceful {
		t.Errorf("status after stop = %+v", p)
	}
}

func TestIntegration_CatalogUpdate(t *testing.T) {
	client, err := Connect(testConfig(), testDevice())
	if err != nil {
		t.Skipf("broker unavailable: %v", err)
	}
	defer client.Close()

	updates := watch(t, Topics{}.CatalogUpdated())
	if err := client.PublishCatalogUpdate(12, []int{0, 4}); err != nil {
		t.Fatalf("PublishCatalogUpdate() error = %v", err)
	}

	select {
	case payload := <-updates:
		var u CatalogUpdate
		if err := json.Unmarshal(payload, &u); err != nil {
			t.Fatalf("update payload: %v", err)
		}
		if u.SystemUpdateID != 12 || len(u.ContainerIDs) != 2 || u.UDN != testUDN {
			t.Errorf("update = %+v", u)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no catalog update received")
	}
}
