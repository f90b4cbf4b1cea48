package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"paytx/domain/channel"
)

// Notifier delivers result notifications to the URL each source system
// registered on its order. Any 2xx is a delivery; other statuses are
// well-formed failures the caller retries.
type Notifier struct {
	client *http.Client
}

func NewNotifier(timeout time.Duration) *Notifier {
	return &Notifier{client: &http.Client{Timeout: timeout}}
}

func (n *Notifier) Identify() channel.Tag { return channel.TagNotify }

func (n *Notifier) Execute(ctx context.Context, req channel.Request) (*channel.Response, error) {
	if req.Endpoint == "" {
		return nil, errors.New("notify: no endpoint")
	}
	status, body, err := post(ctx, n.client, req.Endpoint, req)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		msg := string(body)
		if len(msg) > 256 {
			msg = msg[:256]
		}
		return &channel.Response{
			Success:      false,
			ErrorCode:    fmt.Sprintf("HTTP_%d", status),
			ErrorMessage: msg,
			Raw:          body,
		}, nil
	}
	return &channel.Response{Success: true, TraceID: req.RequestID, Raw: body}, nil
}
