package query

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// DefaultSlotID names the implicit slot of single mode.
	DefaultSlotID SlotID = "response"
	// DefaultTemperature is sent with model-scoped queries when none is selected.
	DefaultTemperature = 50.0
	maxTemperature     = 100
)

// SlotBinding is the user's selection for one slot before validation.
type SlotBinding struct {
	ID       string `yaml:"id" json:"id"`
	Provider string `yaml:"provider" json:"provider"`
	Model    string `yaml:"model" json:"model"`
}

// Selection is the dispatch configuration the builder reads at submit time.
type Selection struct {
	Mode        Mode
	Slots       []SlotBinding
	Temperature *float64
}

// ModelLookup is the read side of the model catalog.
type ModelLookup interface {
	Models() []Model
	Lookup(name string) (Model, bool)
}

// Builder turns raw input plus a Selection into a Request. It has no side effects.
type Builder struct {
	catalog ModelLookup
}

// NewBuilder returns a builder; catalog may be nil when no mode needs it.
func NewBuilder(catalog ModelLookup) *Builder {
	return &Builder{catalog: catalog}
}

// Build validates rawInput and sel. Any failure is a *ValidationError.
func (b *Builder) Build(rawInput string, sel Selection) (Request, error) {
	prompt := strings.TrimSpace(rawInput)
	if prompt == "" {
		return Request{}, invalid("empty prompt")
	}
	mode, ok := ParseMode(string(sel.Mode))
	if !ok {
		return Request{}, invalid(fmt.Sprintf("unknown dispatch mode %q", sel.Mode))
	}
	temperature, err := normalizeTemperature(sel.Temperature, mode)
	if err != nil {
		return Request{}, err
	}
	slots, err := b.buildSlots(mode, sel.Slots)
	if err != nil {
		return Request{}, err
	}
	return Request{
		Prompt:      prompt,
		Mode:        mode,
		Slots:       slots,
		Temperature: temperature,
	}, nil
}

func (b *Builder) buildSlots(mode Mode, bindings []SlotBinding) ([]Slot, error) {
	if mode == ModeSingle {
		switch len(bindings) {
		case 0:
			return []Slot{{ID: DefaultSlotID}}, nil
		case 1:
		default:
			return nil, invalid("single mode takes exactly one slot")
		}
	}
	if len(bindings) == 0 {
		return nil, invalid(fmt.Sprintf("%s mode requires at least one slot", mode))
	}
	out := make([]Slot, 0, len(bindings))
	seen := make(map[SlotID]bool, len(bindings))
	for i, bind := range bindings {
		slot, err := b.bindSlot(mode, i, bind)
		if err != nil {
			return nil, err
		}
		if seen[slot.ID] {
			return nil, invalid(fmt.Sprintf("duplicate slot id %q", slot.ID))
		}
		seen[slot.ID] = true
		out = append(out, slot)
	}
	return out, nil
}

func (b *Builder) bindSlot(mode Mode, idx int, bind SlotBinding) (Slot, error) {
	providerName := strings.TrimSpace(bind.Provider)
	modelName := strings.TrimSpace(bind.Model)
	slot := Slot{Model: modelName}
	if providerName != "" {
		if !validProviderName(providerName) {
			return Slot{}, invalid(fmt.Sprintf("invalid provider name %q", providerName))
		}
		slot.Provider = NewProvider(providerName)
	}

	switch mode {
	case ModeMultiplexed, ModeProvider:
		if slot.Provider.IsZero() {
			return Slot{}, invalid(fmt.Sprintf("slot %d has no provider selected", idx+1))
		}
	case ModeModel:
		m, err := b.resolveModel(idx, modelName)
		if err != nil {
			return Slot{}, err
		}
		slot.Model = m.Name
		if !m.Provider.IsZero() {
			slot.Provider = m.Provider
		}
	}

	slot.ID = SlotID(strings.TrimSpace(bind.ID))
	if slot.ID == "" {
		switch {
		case mode == ModeSingle:
			slot.ID = DefaultSlotID
		case mode != ModeModel && !slot.Provider.IsZero():
			slot.ID = SlotID(slot.Provider.Name)
		default:
			slot.ID = SlotID(fmt.Sprintf("slot-%d", idx+1))
		}
	}
	return slot, nil
}

// resolveModel applies the catalog: an empty selection takes the first catalog
// entry, and a non-empty catalog rejects names it does not list.
func (b *Builder) resolveModel(idx int, name string) (Model, error) {
	var models []Model
	if b.catalog != nil {
		models = b.catalog.Models()
	}
	if name == "" {
		if len(models) == 0 {
			return Model{}, invalid(fmt.Sprintf("slot %d has no model selected", idx+1))
		}
		return models[0], nil
	}
	if len(models) == 0 {
		return Model{Name: name}, nil
	}
	m, ok := b.catalog.Lookup(name)
	if !ok {
		return Model{}, invalid(fmt.Sprintf("unknown model %q", name))
	}
	return m, nil
}

func normalizeTemperature(t *float64, mode Mode) (float64, error) {
	if t == nil {
		if mode == ModeModel {
			return DefaultTemperature, nil
		}
		return 0, nil
	}
	if math.IsNaN(*t) || math.IsInf(*t, 0) {
		return 0, invalid("temperature must be a finite number")
	}
	d := decimal.NewFromFloat(*t).Round(2)
	if d.IsNegative() {
		d = decimal.Zero
	}
	if upper := decimal.NewFromInt(maxTemperature); d.GreaterThan(upper) {
		d = upper
	}
	return d.InexactFloat64(), nil
}

// validProviderName keeps provider names usable as a single URL path segment.
func validProviderName(name string) bool {
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.':
		default:
			return false
		}
	}
	return name != "." && name != ".."
}
