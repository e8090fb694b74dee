package pubsub

import (
	"encoding/json"
	"testing"
)

func TestEnvelopeMarshalsTopicAndPayload(t *testing.T) {
	env := Envelope{Topic: "CONSENSUS_TX_UPDATE", Payload: map[string]any{"tx_hash": "abc"}}

	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got["topic"] != "CONSENSUS_TX_UPDATE" {
		t.Errorf("topic = %v, want CONSENSUS_TX_UPDATE", got["topic"])
	}
	payload, ok := got["payload"].(map[string]any)
	if !ok || payload["tx_hash"] != "abc" {
		t.Errorf("payload = %v, want {tx_hash: abc}", got["payload"])
	}
}

func TestHubPublishDoesNotBlockWithNoSubscribers(t *testing.T) {
	h := NewHub()
	go h.Run()

	h.Publish("CONSENSUS_TX_UPDATE", map[string]any{"tx_hash": "deadbeef"})
	h.Publish("CONSENSUS_TX_REMOVED", map[string]any{"tx_hash": "deadbeef"})
}
