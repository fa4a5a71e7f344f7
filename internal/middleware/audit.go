package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/huangang/teamhub/internal/services"
)

const maxAuditBody = 2000

var sensitiveKeys = map[string]bool{
	"password":        true,
	"old_password":    true,
	"new_password":    true,
	"token":           true,
	"code":            true,
	"invitation_code": true,
	"secret":          true,
}

// AuditLog records write operations (POST/PUT/PATCH/DELETE) to system_logs.
// Routes are logged by pattern, so invitation codes in the URL never reach
// the log.
func AuditLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		if method != http.MethodPost && method != http.MethodPut &&
			method != http.MethodPatch && method != http.MethodDelete {
			c.Next()
			return
		}

		var body string
		if c.Request.Body != nil {
			raw, _ := io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(raw))
			body = maskBody(raw)
		}

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		module, action := parseRouteInfo(route, method)

		var uid *uint
		if userID := GetUserID(c); userID > 0 {
			uid = &userID
		}
		var pid *uint
		if id, err := strconv.ParseUint(c.Param("id"), 10, 32); err == nil {
			projectID := uint(id)
			pid = &projectID
		}

		level := "info"
		if status >= 500 {
			level = "error"
		} else if status >= 400 {
			level = "warning"
		}

		services.LogEvent(level, module, action, formatAuditMessage(GetEmail(c), method, route, status), uid, pid,
			map[string]interface{}{
				"method": method,
				"route":  route,
				"status": status,
				"ip":     c.ClientIP(),
				"body":   body,
				"audit":  true,
			})
	}
}

var projectResources = map[string]bool{"members": true, "invitations": true}

// parseRouteInfo derives module and action from a route pattern.
// e.g. "/api/projects/:id/invitations" + "POST" -> module="invitations", action="create"
func parseRouteInfo(route, method string) (module, action string) {
	var segments []string
	for _, seg := range strings.Split(strings.TrimPrefix(route, "/api/"), "/") {
		if seg != "" && !strings.HasPrefix(seg, ":") {
			segments = append(segments, seg)
		}
	}

	module = "unknown"
	if len(segments) > 0 {
		module = segments[0]
	}
	if module == "projects" && len(segments) > 1 && projectResources[segments[1]] {
		module = segments[1]
	}

	last := module
	if len(segments) > 0 {
		last = segments[len(segments)-1]
	}
	switch method {
	case http.MethodPost:
		action = "create"
		if last != module {
			action = last
		}
	case http.MethodPut, http.MethodPatch:
		action = "update"
	case http.MethodDelete:
		action = "delete"
	default:
		action = strings.ToLower(method)
	}
	return module, action
}

func formatAuditMessage(email, method, route string, status int) string {
	outcome := "ok"
	if status >= 400 {
		outcome = "failed"
	}
	if email == "" {
		email = "anonymous"
	}
	return "[Audit] " + email + " " + method + " " + route + " -> " + outcome
}

// maskBody returns a JSON body with sensitive values replaced. Bodies that
// are not JSON objects are dropped rather than logged verbatim.
func maskBody(raw []byte) string {
	if len(bytes.TrimSpace(raw)) == 0 {
		return ""
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "[non-json body omitted]"
	}
	maskValues(payload)

	out, err := json.Marshal(payload)
	if err != nil {
		return "[unencodable body omitted]"
	}
	if len(out) > maxAuditBody {
		return string(out[:maxAuditBody]) + "...[truncated]"
	}
	return string(out)
}

func maskValues(m map[string]interface{}) {
	for k, v := range m {
		if sensitiveKeys[strings.ToLower(k)] {
			m[k] = "***"
			continue
		}
		if nested, ok := v.(map[string]interface{}); ok {
			maskValues(nested)
		}
	}
}
