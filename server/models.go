package main

import "github.com/haasonsaas/sitegate/pkg/events"

// loginRequest accepts JSON or form bodies.
type loginRequest struct {
	Identifier string `json:"identifier" form:"identifier"`
	Secret     string `json:"secret" form:"secret"`
}

type loginResponse struct {
	Status       string `json:"status"`
	CredentialID string `json:"credential_id"`
}

type eventsResponse struct {
	Events []events.Event `json:"events"`
	Count  int            `json:"count"`
}

type statusResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	UptimeSec int64  `json:"uptime_seconds"`
}
