package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/adred-codev/foxbridge/pkg/broker"
	"github.com/adred-codev/foxbridge/pkg/wire"
)

// paramStore is the demo Listener: an in-memory parameter store plus a
// set_bool JSON service. Parameter names starting with "read_only" cannot be
// written.
type paramStore struct {
	broker.NopListener

	log zerolog.Logger

	mu     sync.Mutex
	values map[string]any
}

func newParamStore(logger zerolog.Logger) *paramStore {
	return &paramStore{
		log: logger.With().Str("component", "demo").Logger(),
		values: map[string]any{
			"int_param":        0,
			"str_param":        "asdf",
			"bool_param":       true,
			"int_array_param":  []any{1, 2, 3},
			"read_only_param":  "can't change me",
			"publish_interval": 0.05,
		},
	}
}

// bumpCounter increments int_param and returns its new value, mimicking a
// parameter that changes behind the clients' backs.
func (p *paramStore) bumpCounter() wire.Parameter {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, _ := p.values["int_param"].(int)
	n++
	p.values["int_param"] = n
	return wire.Parameter{Name: "int_param", Value: n}
}

func (p *paramStore) OnSubscribe(_ context.Context, ch wire.ChannelID) error {
	p.log.Info().Uint32("channel_id", uint32(ch)).Msg("First client subscribed")
	return nil
}

func (p *paramStore) OnUnsubscribe(_ context.Context, ch wire.ChannelID) error {
	p.log.Info().Uint32("channel_id", uint32(ch)).Msg("Last client unsubscribed")
	return nil
}

func (p *paramStore) OnClientMessage(_ context.Context, ch wire.ClientChannelID, payload []byte) error {
	p.log.Info().Uint32("client_channel_id", uint32(ch)).Int("bytes", len(payload)).Msg("Client message")
	return nil
}

func (p *paramStore) OnServiceRequest(_ context.Context, serviceID wire.ServiceID, callID uint32, encoding string, payload []byte) ([]byte, error) {
	if encoding != "json" {
		return json.Marshal(map[string]any{"success": false, "error": fmt.Sprintf("Invalid encoding %s", encoding)})
	}
	var request struct {
		Data *bool `json:"data"`
	}
	if err := json.Unmarshal(payload, &request); err != nil || request.Data == nil {
		return json.Marshal(map[string]any{"success": false, "error": "Missing key 'data'"})
	}
	p.log.Info().Uint32("service_id", uint32(serviceID)).Uint32("call_id", callID).
		Bool("data", *request.Data).Msg("Service request")
	return json.Marshal(map[string]any{"success": true})
}

func (p *paramStore) OnGetParameters(_ context.Context, names []string, _ *string) ([]wire.Parameter, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	wanted := make(map[string]struct{}, len(names))
	for _, name := range names {
		wanted[name] = struct{}{}
	}

	var params []wire.Parameter
	for name, value := range p.values {
		if _, ok := wanted[name]; ok || len(names) == 0 {
			params = append(params, wire.Parameter{Name: name, Value: value})
		}
	}
	return params, nil
}

func (p *paramStore) OnSetParameters(_ context.Context, updates []wire.Parameter, _ *string) ([]wire.Parameter, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var result []wire.Parameter
	for _, param := range updates {
		if !strings.HasPrefix(param.Name, "read_only") {
			p.values[param.Name] = param.Value
		}
		if value, ok := p.values[param.Name]; ok {
			result = append(result, wire.Parameter{Name: param.Name, Value: value})
		}
	}
	return result, nil
}

func (p *paramStore) OnParametersSubscribe(_ context.Context, names []string, subscribe bool) error {
	p.log.Info().Strs("names", names).Bool("subscribe", subscribe).Msg("Parameter subscription edge")
	return nil
}

// runDemo publishes a sine wave on a JSON channel, registers the set_bool
// service, pushes periodic parameter updates, and broadcasts server time
// when the capability is enabled.
func runDemo(ctx context.Context, srv *broker.Server, store *paramStore, logger zerolog.Logger, broadcastTime bool) {
	chID := srv.AddChannel(wire.ChannelSpec{
		Topic:          "/sine",
		Encoding:       "json",
		SchemaName:     "SineWave",
		Schema:         `{"type":"object","properties":{"value":{"type":"number"}}}`,
		SchemaEncoding: "jsonschema",
	})

	if _, err := srv.AddService(wire.ServiceSpec{
		Name: "set_bool",
		Type: "set_bool",
		Request: &wire.ServiceMessageDefinition{
			Encoding:       "json",
			SchemaName:     "SetBoolRequest",
			SchemaEncoding: "jsonschema",
			Schema:         `{"type":"object","properties":{"data":{"type":"boolean"}}}`,
		},
		Response: &wire.ServiceMessageDefinition{
			Encoding:       "json",
			SchemaName:     "SetBoolResponse",
			SchemaEncoding: "jsonschema",
			Schema:         `{"type":"object","properties":{"success":{"type":"boolean"}}}`,
		},
	}); err != nil {
		logger.Error().Err(err).Msg("Failed to add demo service")
	}

	publish := time.NewTicker(50 * time.Millisecond)
	defer publish.Stop()

	paramTicker := time.NewTicker(3 * time.Second)
	defer paramTicker.Stop()

	var timeCh <-chan time.Time
	if broadcastTime {
		timeTicker := time.NewTicker(time.Second)
		defer timeTicker.Stop()
		timeCh = timeTicker.C
	}

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-publish.C:
			elapsed := now.Sub(start).Seconds()
			payload, err := json.Marshal(map[string]float64{"value": math.Sin(2 * math.Pi * elapsed / 5)})
			if err != nil {
				continue
			}
			srv.SendMessage(chID, uint64(now.UnixNano()), payload)
		case <-paramTicker.C:
			srv.UpdateParameters([]wire.Parameter{store.bumpCounter()})
		case now := <-timeCh:
			srv.BroadcastTime(uint64(now.UnixNano()))
		}
	}
}
