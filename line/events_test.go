package line

import "testing"

func TestDecodeWebhookRequest_MessageEvent(t *testing.T) {
	body := []byte(`{
		"destination": "U_bot",
		"events": [{
			"type": "message",
			"timestamp": 1714500000000,
			"replyToken": "rt_1",
			"source": {"type": "user", "userId": "U123"},
			"message": {"id": "m1", "type": "text", "text": "hello"}
		}]
	}`)
	req, err := DecodeWebhookRequest(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(req.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(req.Events))
	}
	ev := req.Events[0]
	if !ev.IsText() {
		t.Fatalf("expected text message event")
	}
	if ev.Source.UserID != "U123" || ev.Message.Text != "hello" || ev.ReplyToken != "rt_1" {
		t.Fatalf("unexpected event fields: %+v", ev)
	}
	if err := ev.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestDecodeWebhookRequest_UnknownEventType(t *testing.T) {
	body := []byte(`{"events":[{"type":"memberJoined","source":{"type":"group","groupId":"G1"}}]}`)
	req, err := DecodeWebhookRequest(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	ev := req.Events[0]
	if ev.IsText() {
		t.Fatalf("unknown event must not classify as text")
	}
	if err := ev.Validate(); err != nil {
		t.Fatalf("unknown-but-shaped event should pass validation: %v", err)
	}
}

func TestDecodeWebhookRequest_InvalidJSON(t *testing.T) {
	if _, err := DecodeWebhookRequest([]byte(`not json`)); err == nil {
		t.Fatalf("expected error for invalid json")
	}
}

func TestEventValidate_MessageWithoutPayload(t *testing.T) {
	ev := Event{Type: EventTypeMessage}
	if err := ev.Validate(); err == nil {
		t.Fatalf("expected error for message event without payload")
	}
}

func TestEventRawJSON_RoundTrip(t *testing.T) {
	ev := Event{
		Type:       EventTypeMessage,
		ReplyToken: "rt",
		Source:     Source{Type: "user", UserID: "U1"},
		Message:    &EventMessage{ID: "m1", Type: "text", Text: "hi"},
	}
	raw := ev.RawJSON()
	if raw == "" {
		t.Fatalf("expected non-empty raw snapshot")
	}
	req, err := DecodeWebhookRequest([]byte(`{"events":[` + raw + `]}`))
	if err != nil {
		t.Fatalf("re-decode: %v", err)
	}
	if req.Events[0].Message.Text != "hi" {
		t.Fatalf("raw snapshot lost message text")
	}
}
