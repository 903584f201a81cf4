// Package responder is the boundary to the automated assistant: given a
// driver utterance, it produces a reply plus the intent/confidence/escalate
// signals the ingress uses to open tickets. The real classifier is an
// external service; a keyword fallback keeps the assistant answering when no
// classifier is configured.
package responder

import (
	"context"
	"strings"

	"driver-support-chat/pkg/models"
)

// Responder classifies a driver message and produces the assistant's reply.
type Responder interface {
	Respond(ctx context.Context, driverID, text string) (models.Reply, error)
}

// Intent categories recognized by the support assistant.
const (
	IntentSubscription   = "subscription"
	IntentNearestStation = "nearest_station"
	IntentBatterySwap    = "battery_swap"
	IntentInvoice        = "invoice"
	IntentLeave          = "leave"
	IntentEmergency      = "emergency"
	IntentUnrelated      = "unrelated"
)

// KeywordResponder is the local fallback classifier. Emergency and unrelated
// intents always escalate; invoice outranks battery_swap so "battery swap
// invoice" routes to billing.
type KeywordResponder struct{}

func NewKeywordResponder() *KeywordResponder {
	return &KeywordResponder{}
}

type rule struct {
	intent     string
	keywords   []string
	reply      string
	confidence float64
	escalate   bool
}

var rules = []rule{
	{
		intent:     IntentEmergency,
		keywords:   []string{"fire", "smoke", "blast", "explosion", "accident", "injury", "danger"},
		reply:      "This sounds serious. Connecting you to a support agent right away.",
		confidence: 0.95,
		escalate:   true,
	},
	{
		intent:     IntentInvoice,
		keywords:   []string{"invoice", "bill", "receipt", "payment", "charge on my card"},
		reply:      "You can find your latest invoice under Billing in the app. The most recent bill covers your last swap cycle.",
		confidence: 0.85,
	},
	{
		intent:     IntentSubscription,
		keywords:   []string{"subscription", "plan", "renew", "upgrade", "expiry"},
		reply:      "Your subscription details, including the expiry date and renewal options, are in the Plans section of the app.",
		confidence: 0.85,
	},
	{
		intent:     IntentNearestStation,
		keywords:   []string{"station", "nearest", "nearby", "where can i swap"},
		reply:      "The nearest battery station is shown on the map in the app, sorted by distance from you.",
		confidence: 0.8,
	},
	{
		intent:     IntentBatterySwap,
		keywords:   []string{"swap", "battery", "charging", "charge"},
		reply:      "For a swap, dock your battery at any station and follow the on-screen steps. Let me know if a step fails.",
		confidence: 0.75,
	},
	{
		intent:     IntentLeave,
		keywords:   []string{"leave", "holiday", "day off"},
		reply:      "Your leave balance and applications are under Profile > Leave in the app.",
		confidence: 0.8,
	},
}

func (k *KeywordResponder) Respond(ctx context.Context, driverID, text string) (models.Reply, error) {
	lower := strings.ToLower(text)

	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return models.Reply{
					Text:       r.reply,
					Intent:     r.intent,
					Confidence: r.confidence,
					Escalate:   r.escalate,
				}, nil
			}
		}
	}

	return models.Reply{
		Text:       "I couldn't match that to anything I can help with, so I'm looping in a support agent.",
		Intent:     IntentUnrelated,
		Confidence: 0.3,
		Escalate:   true,
	}, nil
}
