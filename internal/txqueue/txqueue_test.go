package txqueue

import (
	"encoding/json"
	"testing"

	goredis "github.com/redis/go-redis/v9"
)

// decodeMessages is exercised directly since it has no network
// dependency — connecting an XReadGroup/XAdd round trip requires a live
// Redis instance, which the metadata/blob packages avoid needing via an
// in-memory or SQLite backend; Redis Streams has no such embeddable
// substitute in this stack.
func TestDecodeMessagesRoundTrip(t *testing.T) {
	raw, err := json.Marshal(Entry{Method: "done", Body: []byte(`{"id":"s1"}`)})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	msgs := []goredis.XMessage{
		{ID: "1-0", Values: map[string]interface{}{"entry": string(raw)}},
	}
	deliveries, err := decodeMessages(msgs)
	if err != nil {
		t.Fatalf("decodeMessages: %v", err)
	}
	if len(deliveries) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(deliveries))
	}
	if deliveries[0].ID != "1-0" || deliveries[0].Entry.Method != "done" {
		t.Fatalf("unexpected delivery: %+v", deliveries[0])
	}
}

func TestDecodeMessagesSkipsEntriesWithoutPayload(t *testing.T) {
	msgs := []goredis.XMessage{
		{ID: "1-0", Values: map[string]interface{}{"other": "x"}},
	}
	deliveries, err := decodeMessages(msgs)
	if err != nil {
		t.Fatalf("decodeMessages: %v", err)
	}
	if len(deliveries) != 0 {
		t.Fatalf("expected no deliveries, got %d", len(deliveries))
	}
}

func TestAlreadyExistsErrMatchesBusyGroup(t *testing.T) {
	if !alreadyExistsErr(errBusyGroup{}) {
		t.Fatalf("expected BUSYGROUP error to be recognized as already-exists")
	}
}

type errBusyGroup struct{}

func (errBusyGroup) Error() string { return "BUSYGROUP Consumer Group name already exists" }
