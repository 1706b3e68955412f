package creationqueue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"skimo-var/core/faults"
	"skimo-var/core/reports"
	"skimo-var/core/store"
)

// HTTPSender submits queued reports to the venue server. Status codes map
// back onto the fault taxonomy so Replay can tell a dead uplink from a
// report the server will never accept.
type HTTPSender struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func (s *HTTPSender) client() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return &http.Client{Timeout: 15 * time.Second}
}

func (s *HTTPSender) CreateReport(ctx context.Context, in reports.CreateReportInput) (*store.Report, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, faults.Validation("encode report: %v", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/api/reports", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.Token)

	resp, err := s.client().Do(req)
	if err != nil {
		return nil, faults.Transient(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		var body struct {
			Report *store.Report `json:"report"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Report == nil {
			return nil, faults.Transient(fmt.Errorf("malformed ack: %v", err))
		}
		return body.Report, nil
	}

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	msg := body.Error.Message
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	switch resp.StatusCode {
	case http.StatusBadRequest:
		return nil, faults.Validation("%s", msg)
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, faults.Forbidden("%s", msg)
	case http.StatusNotFound:
		return nil, faults.NotFound("%s", msg)
	case http.StatusConflict:
		return nil, faults.Conflict(body.Error.Code, "%s", msg)
	default:
		return nil, faults.Transient(fmt.Errorf("server status %d: %s", resp.StatusCode, msg))
	}
}
