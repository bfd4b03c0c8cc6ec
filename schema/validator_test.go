package payloadschema

import (
	"encoding/json"
	"testing"
)

func validPayload() map[string]any {
	return map[string]any{
		"payload_version": "v1",
		"company_id":      "acme",
		"source_type":     "direct_submission",
		"source":          "ops-console",
		"title":           "Acme ships widgets",
		"body_text":       "Acme announced widget availability today.",
	}
}

func marshalPayload(t *testing.T, payload map[string]any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return raw
}

func TestValidateSubmissionPayload_Valid(t *testing.T) {
	t.Parallel()

	sub, err := ValidateSubmissionPayload(marshalPayload(t, validPayload()))
	if err != nil {
		t.Fatalf("expected valid payload, got %v", err)
	}
	if sub.CompanyID != "acme" || sub.SourceType != "direct_submission" {
		t.Fatalf("unexpected decoded payload: %+v", sub)
	}
}

func TestValidateSubmissionPayload_MissingRequired(t *testing.T) {
	t.Parallel()

	for _, field := range []string{"payload_version", "company_id", "source_type", "source"} {
		payload := validPayload()
		delete(payload, field)
		if _, err := ValidateSubmissionPayload(marshalPayload(t, payload)); err == nil {
			t.Fatalf("expected error when %s is missing", field)
		}
	}
}

func TestValidateSubmissionPayload_WrongVersion(t *testing.T) {
	t.Parallel()

	payload := validPayload()
	payload["payload_version"] = "v2"
	if _, err := ValidateSubmissionPayload(marshalPayload(t, payload)); err == nil {
		t.Fatalf("expected error for unsupported payload version")
	}
}

func TestValidateSubmissionPayload_UnknownSourceType(t *testing.T) {
	t.Parallel()

	payload := validPayload()
	payload["source_type"] = "web_scrape"
	if _, err := ValidateSubmissionPayload(marshalPayload(t, payload)); err == nil {
		t.Fatalf("expected error for source type outside the enum")
	}
}

func TestValidateSubmissionPayload_UnknownField(t *testing.T) {
	t.Parallel()

	payload := validPayload()
	payload["surprise"] = true
	if _, err := ValidateSubmissionPayload(marshalPayload(t, payload)); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestValidateSubmissionPayload_EmailRequiresMessageID(t *testing.T) {
	t.Parallel()

	payload := validPayload()
	payload["source_type"] = "email"
	if _, err := ValidateSubmissionPayload(marshalPayload(t, payload)); err == nil {
		t.Fatalf("expected error for email without message_id")
	}

	payload["message_id"] = "<msg-1@example.com>"
	if _, err := ValidateSubmissionPayload(marshalPayload(t, payload)); err != nil {
		t.Fatalf("expected email with message_id to validate, got %v", err)
	}
}

func TestValidateSubmissionPayload_FeedRequiresTitle(t *testing.T) {
	t.Parallel()

	payload := validPayload()
	payload["source_type"] = "periodic_feed"
	delete(payload, "title")
	if _, err := ValidateSubmissionPayload(marshalPayload(t, payload)); err == nil {
		t.Fatalf("expected error for feed item without title")
	}
}

func TestValidateSubmissionPayload_RequiresContent(t *testing.T) {
	t.Parallel()

	payload := validPayload()
	delete(payload, "title")
	delete(payload, "body_text")
	if _, err := ValidateSubmissionPayload(marshalPayload(t, payload)); err == nil {
		t.Fatalf("expected error when both title and body_text are absent")
	}
}

func TestValidateSubmissionPayload_TrailingContent(t *testing.T) {
	t.Parallel()

	raw := append(marshalPayload(t, validPayload()), []byte(` {"second": true}`)...)
	if _, err := ValidateSubmissionPayload(raw); err == nil {
		t.Fatalf("expected error for trailing content")
	}
}

func TestValidateSubmissionPayload_Empty(t *testing.T) {
	t.Parallel()

	if _, err := ValidateSubmissionPayload(json.RawMessage("   ")); err == nil {
		t.Fatalf("expected error for empty payload")
	}
}
