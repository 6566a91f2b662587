// Package webhook authenticates and normalizes inbound webhook triggers
// before handing them to the dispatch service (spec §4.12).
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/cubicler/cubicler/pkg/agenttransport"
	"github.com/cubicler/cubicler/pkg/config"
	"github.com/cubicler/cubicler/pkg/cubicerrors"
	"github.com/cubicler/cubicler/pkg/dispatch"
	"github.com/cubicler/cubicler/pkg/transform"
)

// InboundWebhook is the inbound payload a webhook HTTP handler builds from
// the request (spec §4.12).
type InboundWebhook struct {
	Identifier string
	AgentID    string
	Payload    map[string]any
	Headers    map[string]string
	Signature  string
}

// TriggerContext is handed to the dispatch service as the synthesized
// conversational turn (spec §4.12 step 5).
type TriggerContext struct {
	Type        string         `json:"type"`
	Identifier  string         `json:"identifier"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	TriggeredAt string         `json:"triggeredAt"`
	Payload     map[string]any `json:"payload"`
}

// Dispatcher is the subset of pkg/dispatch.Service the webhook service
// needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, agentID string, req dispatch.DispatchRequest) (dispatch.DispatchResponse, error)
}

// WebhookLookup resolves a configured webhook by identifier.
type WebhookLookup interface {
	Webhook(identifier string) (config.WebhookConfig, bool)
}

// Service implements the webhook authenticate/transform/trigger pipeline
// (spec §4.12).
type Service struct {
	webhooks   WebhookLookup
	dispatcher Dispatcher
}

// NewService builds a Service over webhooks, handing off to dispatcher once
// a payload is authenticated and transformed.
func NewService(webhooks WebhookLookup, dispatcher Dispatcher) *Service {
	return &Service{webhooks: webhooks, dispatcher: dispatcher}
}

// Handle runs the full pipeline for one inbound webhook call.
func (s *Service) Handle(ctx context.Context, in InboundWebhook) (dispatch.DispatchResponse, error) {
	wh, ok := s.webhooks.Webhook(in.Identifier)
	if !ok {
		return dispatch.DispatchResponse{}, &cubicerrors.NotFoundError{Kind: cubicerrors.KindWebhook, Key: in.Identifier}
	}

	if !allowedAgent(wh.AllowedAgents, in.AgentID) {
		return dispatch.DispatchResponse{}, &cubicerrors.AuthFailureError{Reason: cubicerrors.ReasonAgentNotAuthorized}
	}

	if err := authenticate(wh.Auth, in); err != nil {
		return dispatch.DispatchResponse{}, err
	}

	payload := in.Payload
	if wh.PayloadTransform != nil {
		transformed := transform.Apply(payload, toTransformRules(wh.PayloadTransform))
		if m, ok := transformed.(map[string]any); ok {
			payload = m
		}
	}

	trigger := TriggerContext{
		Type:        "webhook",
		Identifier:  in.Identifier,
		Name:        wh.Name,
		Description: wh.Description,
		TriggeredAt: time.Now().UTC().Format(time.RFC3339),
		Payload:     payload,
	}

	raw, err := json.Marshal(trigger)
	if err != nil {
		return dispatch.DispatchResponse{}, &cubicerrors.BadRequestError{Message: "failed to encode trigger context: " + err.Error()}
	}

	return s.dispatcher.Dispatch(ctx, in.AgentID, dispatch.DispatchRequest{
		Messages: []agenttransport.Message{{Sender: "webhook", Content: string(raw)}},
		Trigger: &dispatch.TriggerMetadata{
			Type:        trigger.Type,
			Identifier:  trigger.Identifier,
			Name:        trigger.Name,
			Description: trigger.Description,
			TriggeredAt: trigger.TriggeredAt,
		},
	})
}

func allowedAgent(allowed []string, agentID string) bool {
	for _, a := range allowed {
		if a == agentID {
			return true
		}
	}
	return false
}

// authenticate enforces spec §4.12 step 3.
func authenticate(auth *config.WebhookAuthConfig, in InboundWebhook) error {
	if auth == nil {
		return nil
	}
	switch auth.Type {
	case config.WebhookAuthSignature:
		return authenticateSignature(auth, in)
	case config.WebhookAuthBearer:
		return authenticateBearer(auth, in)
	default:
		return &cubicerrors.AuthFailureError{Reason: cubicerrors.ReasonMisconfigured}
	}
}

func authenticateSignature(auth *config.WebhookAuthConfig, in InboundWebhook) error {
	if auth.Secret == "" {
		return &cubicerrors.AuthFailureError{Reason: cubicerrors.ReasonMisconfigured}
	}

	provided := in.Headers["x-signature-256"]
	if provided == "" {
		provided = in.Signature
	}
	if provided == "" {
		return &cubicerrors.AuthFailureError{Reason: cubicerrors.ReasonMissingSignature}
	}

	body, err := json.Marshal(in.Payload)
	if err != nil {
		return &cubicerrors.AuthFailureError{Reason: cubicerrors.ReasonMisconfigured}
	}

	mac := hmac.New(sha256.New, []byte(auth.Secret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	if subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) != 1 {
		return &cubicerrors.AuthFailureError{Reason: cubicerrors.ReasonInvalidSignature}
	}
	return nil
}

func authenticateBearer(auth *config.WebhookAuthConfig, in InboundWebhook) error {
	if auth.Token == "" {
		return &cubicerrors.AuthFailureError{Reason: cubicerrors.ReasonMisconfigured}
	}

	header := in.Headers["authorization"]
	if header == "" {
		return &cubicerrors.AuthFailureError{Reason: cubicerrors.ReasonMissingAuthorization}
	}
	token := strings.TrimPrefix(header, "Bearer ")

	if subtle.ConstantTimeCompare([]byte(token), []byte(auth.Token)) != 1 {
		return &cubicerrors.AuthFailureError{Reason: cubicerrors.ReasonInvalidToken}
	}
	return nil
}

func toTransformRules(rules []config.ResponseTransformRule) []transform.Rule {
	out := make([]transform.Rule, len(rules))
	for i, r := range rules {
		out[i] = transform.Rule{
			Path:      r.Path,
			Transform: transform.Kind(r.Transform),
			Map:       r.Map,
			Template:  r.Template,
			Format:    r.Format,
		}
	}
	return out
}
