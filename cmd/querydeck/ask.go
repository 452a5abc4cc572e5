package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"querydeck/internal/app"
	"querydeck/internal/query"
	"querydeck/internal/render"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

type askFlags struct {
	mode        string
	providers   []string
	models      []string
	temperature float64
	plain       bool
}

func newAskCmd() *cobra.Command {
	var f askFlags
	cmd := &cobra.Command{
		Use:   "ask [prompt...]",
		Short: "Submit one prompt and print every slot's answer",
		Long: `Submit one prompt using the slot layout and print each slot as it settles.
The prompt is read from the arguments, or from stdin when none are given.
--mode, --provider, --model and --temperature override the layout.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := readPrompt(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			var temperature *float64
			if cmd.Flags().Changed("temperature") {
				t := f.temperature
				temperature = &t
			}
			override, err := f.selectionOverride(temperature)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			term := render.NewTerminal(out, !f.plain)
			a, err := app.NewApp(cfg,
				app.WithoutHTTP(),
				app.WithSelectionOverride(override),
				app.WithAlerter(stderrAlerter{w: cmd.ErrOrStderr()}),
			)
			if err != nil {
				return err
			}
			unsubscribe := a.Aggregator().Subscribe(term.Listen)
			defer unsubscribe()

			snap, err := a.Ask(cmd.Context(), prompt)
			if err != nil {
				return err
			}
			failed := 0
			for _, st := range snap.Slots {
				if st.Result.State == query.StateFailure {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d slot(s) failed", failed, len(snap.Slots))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&f.mode, "mode", "", "dispatch mode: single|multiplexed|provider|model")
	cmd.Flags().StringArrayVar(&f.providers, "provider", nil, "provider for one slot (repeatable)")
	cmd.Flags().StringArrayVar(&f.models, "model", nil, "model for one slot (repeatable)")
	cmd.Flags().Float64Var(&f.temperature, "temperature", query.DefaultTemperature, "temperature on the 0..100 scale for model mode")
	cmd.Flags().BoolVar(&f.plain, "plain", false, "no colors or decorations")
	return cmd
}

// selectionOverride turns the flags into a function applied to the layout's
// selection. Providers without --mode imply provider mode; models imply model mode.
func (f askFlags) selectionOverride(temperature *float64) (func(query.Selection) query.Selection, error) {
	var mode query.Mode
	if strings.TrimSpace(f.mode) != "" {
		m, ok := query.ParseMode(f.mode)
		if !ok {
			return nil, fmt.Errorf("unknown mode %q", f.mode)
		}
		mode = m
	}
	var bindings []query.SlotBinding
	n := max(len(f.providers), len(f.models))
	for i := 0; i < n; i++ {
		var b query.SlotBinding
		if i < len(f.providers) {
			b.Provider = f.providers[i]
		}
		if i < len(f.models) {
			b.Model = f.models[i]
		}
		bindings = append(bindings, b)
	}
	if mode == "" {
		switch {
		case len(f.models) > 0:
			mode = query.ModeModel
		case len(f.providers) > 0:
			mode = query.ModeProvider
		}
	}
	return func(sel query.Selection) query.Selection {
		if mode != "" {
			sel.Mode = mode
		}
		if len(bindings) > 0 {
			sel.Slots = append([]query.SlotBinding(nil), bindings...)
		}
		if temperature != nil {
			sel.Temperature = temperature
		}
		return sel
	}, nil
}

func readPrompt(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	if f, ok := stdin.(*os.File); ok {
		if info, err := f.Stat(); err == nil && info.Mode()&os.ModeCharDevice != 0 {
			return "", fmt.Errorf("no prompt given: pass it as arguments or pipe it on stdin")
		}
	}
	raw, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read prompt from stdin: %w", err)
	}
	return string(raw), nil
}

type stderrAlerter struct {
	w io.Writer
}

func (a stderrAlerter) Alert(message string) {
	fmt.Fprintln(a.w, color.RedString("✗ %s", message))
}
