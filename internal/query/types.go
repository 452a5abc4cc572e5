// Package query holds the request and result model shared by the dispatcher,
// the aggregator and the renderers, plus the builder that turns raw input into
// a dispatchable Request.
package query

import "strings"

// Mode selects how a request reaches the backend.
type Mode string

const (
	// ModeSingle posts the prompt to one endpoint that answers for one provider.
	ModeSingle Mode = "single"
	// ModeMultiplexed issues one request whose payload is keyed by provider name.
	ModeMultiplexed Mode = "multiplexed"
	// ModeProvider fans out one request per slot to /api/<provider>.
	ModeProvider Mode = "provider"
	// ModeModel fans out one request per slot to /query with the slot's model.
	ModeModel Mode = "model"
)

// ParseMode normalizes a user supplied mode name. The second return is false
// for unknown names.
func ParseMode(s string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeSingle:
		return ModeSingle, true
	case ModeMultiplexed, "multiplex":
		return ModeMultiplexed, true
	case ModeProvider, "fanout", "fan-out":
		return ModeProvider, true
	case ModeModel:
		return ModeModel, true
	default:
		return "", false
	}
}

// FanOut reports whether the mode issues one request per slot.
func (m Mode) FanOut() bool {
	return m == ModeProvider || m == ModeModel || m == ModeSingle
}

// Provider identifies one LLM vendor behind the backend.
type Provider struct {
	Name  string `json:"name"`
	Label string `json:"label"`
}

var providerLabels = map[string]string{
	"anthropic":  "Anthropic",
	"openai":     "OpenAI",
	"gemini":     "Gemini",
	"deepseek":   "DeepSeek",
	"meta-llama": "Meta Llama",
	"llama":      "Llama",
}

// NewProvider builds a Provider with its display label.
func NewProvider(name string) Provider {
	name = strings.ToLower(strings.TrimSpace(name))
	label, ok := providerLabels[name]
	if !ok {
		label = name
	}
	return Provider{Name: name, Label: label}
}

func (p Provider) IsZero() bool { return p.Name == "" }

// Model is one catalog entry.
type Model struct {
	Name     string   `json:"name"`
	Provider Provider `json:"provider"`
}

// SlotID names a rendering slot. Slots outlive submissions; what they are bound
// to may change between submissions.
type SlotID string

// Slot is a slot bound to the provider and/or model it queries for one submission.
type Slot struct {
	ID       SlotID
	Provider Provider
	Model    string
}

// Label is what renderers print next to the slot's output.
func (s Slot) Label() string {
	switch {
	case s.Model != "" && !s.Provider.IsZero():
		return s.Model + " (" + s.Provider.Label + ")"
	case s.Model != "":
		return s.Model
	case !s.Provider.IsZero():
		return s.Provider.Label
	default:
		return string(s.ID)
	}
}

// Request is built once per submission and treated as immutable afterwards.
// Slots is never shared with the Selection it came from.
type Request struct {
	Prompt      string
	Mode        Mode
	Slots       []Slot
	Temperature float64
}

// SlotIDs lists the slot identifiers in request order.
func (r Request) SlotIDs() []SlotID {
	ids := make([]SlotID, len(r.Slots))
	for i, s := range r.Slots {
		ids[i] = s.ID
	}
	return ids
}
