// Package render prints slot results to a terminal.
package render

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"querydeck/internal/aggregate"
	"querydeck/internal/query"

	"github.com/fatih/color"
)

// Terminal writes one line per settled slot and a summary once a round is done.
type Terminal struct {
	mu     sync.Mutex
	w      io.Writer
	pretty bool
}

// NewTerminal returns a renderer writing to w. With pretty unset no colors or
// decorations are written.
func NewTerminal(w io.Writer, pretty bool) *Terminal {
	return &Terminal{w: w, pretty: pretty}
}

// Listen is an aggregate.Listener.
func (t *Terminal) Listen(evt aggregate.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch evt.Kind {
	case aggregate.EventReset:
		if t.pretty {
			fmt.Fprintf(t.w, "%s\n", color.CyanString("Querying %d slot(s)...", len(evt.Snapshot.Slots)))
		}
	case aggregate.EventSettled:
		fmt.Fprint(t.w, t.slotLine(evt.Slot))
		if evt.Snapshot.Done() {
			fmt.Fprint(t.w, t.summary(evt.Snapshot))
		}
	}
}

// Snapshot renders every slot of snap, pending ones included.
func (t *Terminal) Snapshot(snap aggregate.Snapshot) string {
	var sb strings.Builder
	for _, st := range snap.Slots {
		sb.WriteString(t.slotLine(st))
	}
	return sb.String()
}

func (t *Terminal) slotLine(st aggregate.SlotState) string {
	label := "[" + st.Label + "]"
	text := st.Result.Display()
	if !t.pretty {
		return label + " " + text + "\n"
	}
	switch st.Result.State {
	case query.StateSuccess:
		return color.GreenString(label) + " " + text + "\n"
	case query.StateFailure:
		return color.RedString(label) + " " + color.RedString(text) + "\n"
	default:
		return color.HiBlackString(label+" "+text) + "\n"
	}
}

func (t *Terminal) summary(snap aggregate.Snapshot) string {
	ok, failed := 0, 0
	for _, st := range snap.Slots {
		switch st.Result.State {
		case query.StateSuccess:
			ok++
		case query.StateFailure:
			failed++
		}
	}
	line := fmt.Sprintf("%d slot(s): %d ok, %d failed", len(snap.Slots), ok, failed)
	if !t.pretty {
		return line + "\n"
	}
	rule := strings.Repeat("─", 40)
	if failed > 0 {
		return rule + "\n" + color.YellowString(line) + "\n"
	}
	return rule + "\n" + color.GreenString(line) + "\n"
}

// Models formats the catalog as "name (Provider)" lines.
func (t *Terminal) Models(models []query.Model) string {
	if len(models) == 0 {
		return "No models available\n"
	}
	var sb strings.Builder
	if t.pretty {
		sb.WriteString(color.CyanString("Models\n"))
		sb.WriteString(strings.Repeat("─", 40) + "\n")
	}
	for _, m := range models {
		provider := m.Provider.Label
		if provider == "" {
			provider = "unknown"
		}
		if t.pretty {
			fmt.Fprintf(&sb, "%s %s\n", m.Name, color.HiBlackString("("+provider+")"))
			continue
		}
		fmt.Fprintf(&sb, "%s (%s)\n", m.Name, provider)
	}
	return sb.String()
}
