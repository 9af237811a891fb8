package mqtt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/qodeinvest/qode-engine/internal/infrastructure/config"
)

// testClient returns a client backed by a paho instance that was never
// connected. Publish validation and state checks work without a broker.
func testClient() *Client {
	cfg := config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "qode-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
	return &Client{
		cfg:    cfg,
		client: pahomqtt.NewClient(pahomqtt.NewClientOptions()),
	}
}

func TestTopics(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"tick", topics.Tick("NSE_Index_NIFTY"), "qode/ticks/NSE_Index_NIFTY"},
		{"all ticks", topics.AllTicks(), "qode/ticks/+"},
		{"system status", topics.SystemStatus(), "qode/system/status"},
		{"feed status", topics.FeedStatus(), "qode/system/feed"},
		{"job completed", topics.JobCompleted("master_rebuild"), "qode/jobs/master_rebuild/completed"},
		{"job failed", topics.JobFailed("daily_ingest"), "qode/jobs/daily_ingest/failed"},
		{"all job events", topics.AllJobEvents(), "qode/jobs/+/+"},
		{"all topics", topics.AllTopics(), "qode/#"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestStatusPayloads(t *testing.T) {
	var online struct {
		Status   string `json:"status"`
		ClientID string `json:"client_id"`
	}
	if err := json.Unmarshal([]byte(buildOnlinePayload("qode-test")), &online); err != nil {
		t.Fatalf("online payload is not valid JSON: %v", err)
	}
	if online.Status != "online" || online.ClientID != "qode-test" {
		t.Errorf("online payload = %+v", online)
	}

	var offline struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(buildOfflinePayload("qode-test")), &offline); err != nil {
		t.Fatalf("offline payload is not valid JSON: %v", err)
	}
	if offline.Status != "offline" || offline.Reason != "graceful_shutdown" {
		t.Errorf("offline payload = %+v", offline)
	}
}

func TestPublishValidation(t *testing.T) {
	c := testClient()

	t.Run("empty topic", func(t *testing.T) {
		err := c.Publish("", []byte("x"), 0, false)
		if !errors.Is(err, ErrInvalidTopic) {
			t.Errorf("Publish() error = %v, want ErrInvalidTopic", err)
		}
	})

	t.Run("invalid qos", func(t *testing.T) {
		err := c.Publish("qode/system/status", []byte("x"), 3, false)
		if !errors.Is(err, ErrInvalidQoS) {
			t.Errorf("Publish() error = %v, want ErrInvalidQoS", err)
		}
	})

	t.Run("oversized payload", func(t *testing.T) {
		payload := bytes.Repeat([]byte("a"), maxPayloadSize+1)
		err := c.Publish("qode/system/status", payload, 0, false)
		if !errors.Is(err, ErrPublishFailed) {
			t.Errorf("Publish() error = %v, want ErrPublishFailed", err)
		}
	})

	t.Run("not connected", func(t *testing.T) {
		err := c.Publish("qode/system/status", []byte("x"), 0, false)
		if !errors.Is(err, ErrNotConnected) {
			t.Errorf("Publish() error = %v, want ErrNotConnected", err)
		}
	})

	t.Run("tick helper not connected", func(t *testing.T) {
		err := c.PublishTick("NSE_Index_NIFTY", []byte(`{"ltp":100}`))
		if !errors.Is(err, ErrNotConnected) {
			t.Errorf("PublishTick() error = %v, want ErrNotConnected", err)
		}
	})
}

func TestPublishJSON_MarshalError(t *testing.T) {
	c := testClient()

	err := c.PublishJSON("qode/system/status", func() {}, 0, false)
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("PublishJSON() error = %v, want ErrPublishFailed", err)
	}
}

func TestHealthCheck_NotConnected(t *testing.T) {
	c := testClient()

	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestHealthCheck_Cancelled(t *testing.T) {
	c := testClient()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() error = %v, want context.Canceled", err)
	}
}

func TestCloseNil(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on zero client error = %v, want nil", err)
	}
}
