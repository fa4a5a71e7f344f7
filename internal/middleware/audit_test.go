package middleware

import (
	"strings"
	"testing"
)

func TestParseRouteInfo(t *testing.T) {
	testCases := []struct {
		route, method  string
		module, action string
	}{
		{"/api/projects", "POST", "projects", "create"},
		{"/api/projects/:id", "PUT", "projects", "update"},
		{"/api/projects/:id", "DELETE", "projects", "delete"},
		{"/api/projects/:id/invitations", "POST", "invitations", "create"},
		{"/api/projects/:id/invitations/:invitationID", "DELETE", "invitations", "delete"},
		{"/api/projects/:id/members/:userID", "PUT", "members", "update"},
		{"/api/projects/:id/leave", "POST", "projects", "leave"},
		{"/api/invitations/:code/accept", "POST", "invitations", "accept"},
		{"/api/invitations/:code/decline", "POST", "invitations", "decline"},
		{"/api/auth/login", "POST", "auth", "login"},
		{"/api/notifications/read-all", "POST", "notifications", "read-all"},
		{"", "POST", "unknown", "create"},
	}

	for _, tc := range testCases {
		module, action := parseRouteInfo(tc.route, tc.method)
		if module != tc.module || action != tc.action {
			t.Errorf("parseRouteInfo(%q, %q) = (%q, %q), expected (%q, %q)",
				tc.route, tc.method, module, action, tc.module, tc.action)
		}
	}
}

func TestMaskBody(t *testing.T) {
	masked := maskBody([]byte(`{"email":"raymond@example.com","password":"hunter22","profile":{"Token":"abc"},"role":"member"}`))

	for _, secret := range []string{"hunter22", `"abc"`} {
		if strings.Contains(masked, secret) {
			t.Errorf("masked body still contains %s: %s", secret, masked)
		}
	}
	for _, kept := range []string{"raymond@example.com", `"role":"member"`} {
		if !strings.Contains(masked, kept) {
			t.Errorf("masked body lost %s: %s", kept, masked)
		}
	}
}

func TestMaskBody_NonJSON(t *testing.T) {
	if got := maskBody([]byte("password=hunter22")); strings.Contains(got, "hunter22") {
		t.Errorf("non-json body must not be logged verbatim: %s", got)
	}
	if got := maskBody(nil); got != "" {
		t.Errorf("empty body should produce empty string, got %q", got)
	}
}

func TestMaskBody_Truncates(t *testing.T) {
	long := `{"message":"` + strings.Repeat("x", 3000) + `"}`
	got := maskBody([]byte(long))
	if !strings.HasSuffix(got, "...[truncated]") {
		t.Error("long bodies should be truncated")
	}
}

func TestFormatAuditMessage(t *testing.T) {
	if got := formatAuditMessage("", "POST", "/api/projects", 201); got != "[Audit] anonymous POST /api/projects -> ok" {
		t.Errorf("unexpected message %q", got)
	}
	if got := formatAuditMessage("alex@example.com", "DELETE", "/api/projects/:id", 403); !strings.HasSuffix(got, "-> failed") {
		t.Errorf("unexpected message %q", got)
	}
}
