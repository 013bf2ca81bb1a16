package main

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/haasonsaas/sitegate/pkg/events"
	"github.com/haasonsaas/sitegate/pkg/gateway"
	"github.com/haasonsaas/sitegate/pkg/health"
	"github.com/haasonsaas/sitegate/pkg/ipallow"
)

const (
	messageInvalidCredentials = "Invalid credentials"
	messageInvalidRequest     = "Invalid request"
	maxIdentifierLogLength    = 128
)

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil || req.Identifier == "" || req.Secret == "" {
		gateway.RespondError(c, http.StatusBadRequest, messageInvalidRequest, s.logger)
		return
	}

	result, err := s.auth.Check(c.Request.Context(), req.Identifier, req.Secret)
	s.metrics.ObserveLogin(result.Valid)
	if err != nil || !result.Valid {
		evType := events.CredentialInvalid
		details := map[string]any{"identifier": truncate(req.Identifier, maxIdentifierLogLength)}
		if err != nil {
			evType = events.CredentialStoreError
			details["error"] = err.Error()
		}
		s.events.Record(c.Request.Context(), events.Event{
			Type:      evType,
			IP:        ipallow.ClientIP(c.Request),
			UserAgent: c.Request.UserAgent(),
			Details:   details,
		})
		gateway.RespondError(c, http.StatusUnauthorized, messageInvalidCredentials, s.logger)
		return
	}

	logger := gateway.RequestLogger(c, s.logger)
	logger.Info().Str("credential_id", result.Credential.ID).Msg("login succeeded")
	c.JSON(http.StatusOK, loginResponse{Status: "ok", CredentialID: result.Credential.ID})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, statusResponse{
		Status:    "ok",
		Version:   Version,
		UptimeSec: int64(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	status := health.Check(c.Request.Context(), s.probes, health.DefaultTimeout)
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
		logger := gateway.RequestLogger(c, s.logger)
		logger.Warn().Strs("issues", status.Issues).Msg("readiness check failed")
	}
	c.JSON(code, status)
}

func (s *Server) handleListEvents(c *gin.Context) {
	if s.eventLog == nil {
		gateway.RespondError(c, http.StatusServiceUnavailable, "event log unavailable", s.logger)
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			gateway.RespondError(c, http.StatusBadRequest, messageInvalidRequest, s.logger)
			return
		}
		limit = parsed
	}

	list, err := s.eventLog.Recent(c.Request.Context(), limit, events.Type(c.Query("type")))
	if err != nil {
		logger := gateway.RequestLogger(c, s.logger)
		logger.Error().Err(err).Msg("failed to list security events")
		gateway.RespondError(c, http.StatusInternalServerError, "failed to list events", s.logger)
		return
	}
	c.JSON(http.StatusOK, eventsResponse{Events: list, Count: len(list)})
}

const adminHomePage = `<!doctype html>
<html><head><title>sitegate admin</title></head>
<body><h1>Admin</h1><p><a href="/api/admin/events">Security events</a></p></body></html>`

const adminLoginPage = `<!doctype html>
<html><head><title>sitegate admin login</title></head>
<body><h1>Sign in</h1>%s
<form method="post" action="/api/admin/login">
<input name="identifier" autocomplete="username">
<input name="secret" type="password" autocomplete="current-password">
<button type="submit">Sign in</button>
</form></body></html>`

func (s *Server) handleAdminHome(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(adminHomePage))
}

// handleAdminLogin never reflects the query string; known error codes map to fixed text.
func (s *Server) handleAdminLogin(c *gin.Context) {
	notice := ""
	if c.Query("error") == "unauthorized_ip" {
		notice = "<p>Access from this network is not permitted.</p>"
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(fmt.Sprintf(adminLoginPage, notice)))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
