package gateway

import (
	"context"
	"sort"

	"paytx/config"
	"paytx/domain/channel"
)

// SimulatedTag is always registered when channels are simulated.
const SimulatedTag channel.Tag = "simulated"

// NewRegistry builds the strategy registry: one HTTP strategy per configured
// endpoint plus the HTTP notifier, or simulated strategies for every
// configured channel code when cfg.Simulated is set.
func NewRegistry(cfg config.ChannelConfig, notify config.NotifyConfig) *channel.Registry {
	reg := channel.NewRegistry()

	codes := make([]string, 0, len(cfg.Endpoints))
	for code := range cfg.Endpoints {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	if cfg.Simulated {
		reg.Register(NewSimulated(SimulatedTag, 0, 0))
		for _, code := range codes {
			reg.Register(NewSimulated(channel.Tag(code), 0, 0))
		}
		reg.Register(&simulatedNotifier{})
		return reg
	}

	opts := HTTPOptions{
		Timeout:          cfg.Timeout,
		Rate:             cfg.Rate,
		Burst:            cfg.Burst,
		FailureThreshold: cfg.Breaker.FailureThreshold,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
		OpenTimeout:      cfg.Breaker.OpenTimeout,
	}
	for _, code := range codes {
		reg.Register(NewHTTPStrategy(channel.Tag(code), cfg.Endpoints[code], opts))
	}
	reg.Register(NewNotifier(notify.Timeout))
	return reg
}

// simulatedNotifier acknowledges notifications without sending them.
type simulatedNotifier struct{}

func (simulatedNotifier) Identify() channel.Tag { return channel.TagNotify }

func (simulatedNotifier) Execute(_ context.Context, req channel.Request) (*channel.Response, error) {
	return &channel.Response{Success: true, TraceID: req.RequestID}, nil
}
