package usecase

import (
	"strings"
	"testing"
	"time"
)

func TestRenderSystemPromptSubstitution(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	out := RenderSystemPrompt("Time: {system_time}, user: {user_name}", "Ada", now)

	if !strings.Contains(out, "2025-03-14T09:26:53Z") {
		t.Errorf("missing ISO-8601 UTC timestamp: %s", out)
	}
	if !strings.Contains(out, "user: Ada") {
		t.Errorf("missing user name: %s", out)
	}
}

func TestRenderSystemPromptUnknownUser(t *testing.T) {
	out := RenderSystemPrompt("user: {user_name}", "", time.Now())
	if !strings.Contains(out, UnknownUserName) {
		t.Errorf("expected %q fallback, got: %s", UnknownUserName, out)
	}
}

func TestRenderSystemPromptDefaultTemplate(t *testing.T) {
	out := RenderSystemPrompt("", "Ada", time.Now())
	if strings.Contains(out, "{system_time}") || strings.Contains(out, "{user_name}") {
		t.Errorf("placeholders not substituted in default template: %s", out)
	}
	if !strings.Contains(out, "Ada") {
		t.Errorf("user name missing from default template: %s", out)
	}
}

func TestRenderSystemPromptLocalTimeNormalized(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*3600)
	now := time.Date(2025, 3, 14, 16, 0, 0, 0, loc)
	out := RenderSystemPrompt("{system_time}", "", now)
	if !strings.Contains(out, "2025-03-14T09:00:00Z") {
		t.Errorf("timestamp not normalized to UTC: %s", out)
	}
}
