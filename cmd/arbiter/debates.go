package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/arbiterhq/arbiter/internal/core"
	"github.com/arbiterhq/arbiter/internal/persona"
)

var (
	participantFlags []string
	roundsFlag       int
	formatFlag       string
	followFlag       bool
)

var newCmd = &cobra.Command{
	Use:   "new [topic]",
	Short: "Create a new debate",
	Long: `Create a new debate on the given topic.

Participants are given as provider[/model]:name, or human:name for
human members. Append @persona to give an AI participant one of the
built-in personas (see: arbiter personas). Examples:

  arbiter new "Is AI beneficial?" -p openai:Advocate -p anthropic:Skeptic
  arbiter new "Carbon taxes" -p openai/gpt-4o:Economist@analyst -p human:Alice
  arbiter new "API design" -p mock:A -p mock:B --rounds 2 --run`,
	Args: cobra.MinimumNArgs(1),
	RunE: runNewDebate,
}

func init() {
	newCmd.Flags().StringArrayVarP(&participantFlags, "participant", "p", nil, "Participant spec (provider[/model]:name or human:name)")
	newCmd.Flags().IntVar(&roundsFlag, "rounds", 0, "Number of rounds (default: from config)")
	newCmd.Flags().StringVar(&formatFlag, "format", "", "Debate format (default: from config)")
	newCmd.Flags().BoolVar(&followFlag, "run", false, "Start the debate and follow it live")
}

func runNewDebate(cmd *cobra.Command, args []string) error {
	st, err := buildStack()
	if err != nil {
		return err
	}
	defer st.Close()

	topic := strings.Join(args, " ")
	debate, err := st.service.CreateDebate(cmd.Context(), core.NewDebateConfig{
		Topic:     topic,
		Format:    formatFlag,
		MaxRounds: roundsFlag,
	})
	if err != nil {
		return fmt.Errorf("failed to create debate: %w", err)
	}

	for _, spec := range participantFlags {
		pc, err := parseParticipantSpec(spec)
		if err != nil {
			return err
		}
		if _, err := st.service.AddParticipant(cmd.Context(), debate.ID, pc); err != nil {
			return fmt.Errorf("failed to add participant %q: %w", pc.Name, err)
		}
	}

	debate, err = st.service.GetDebate(cmd.Context(), debate.ID)
	if err != nil {
		return err
	}

	fmt.Printf("\nDebate created: %s\n", debate.Topic)
	fmt.Printf("   ID: %s\n", debate.ID)
	fmt.Printf("   Format: %s | Rounds: %d\n", debate.Format, debate.MaxRounds)
	for _, p := range debate.Participants {
		if p.Kind == core.KindAI {
			fmt.Printf("   - %s (%s/%s)\n", p.Name, p.Provider, p.Model)
		} else {
			fmt.Printf("   - %s (human)\n", p.Name)
		}
	}

	if !followFlag {
		fmt.Printf("\nStart it with: arbiter run %s\n", debate.ID[:8])
		return nil
	}

	return followDebate(cmd.Context(), st, debate.ID)
}

// parseParticipantSpec parses provider[/model]:name[@persona] and
// human:name specs.
func parseParticipantSpec(spec string) (core.NewParticipantConfig, error) {
	backend, name, ok := strings.Cut(spec, ":")
	if !ok || name == "" {
		return core.NewParticipantConfig{}, fmt.Errorf("invalid participant spec %q (want provider[/model]:name)", spec)
	}

	if backend == "human" {
		return core.NewParticipantConfig{Name: name, Kind: core.KindHuman}, nil
	}

	name, personaID, _ := strings.Cut(name, "@")
	var systemHint string
	if personaID != "" {
		p := persona.Get(personaID)
		if p == nil {
			return core.NewParticipantConfig{}, fmt.Errorf("unknown persona %q (available: %s)", personaID, strings.Join(persona.List(), ", "))
		}
		systemHint = p.SystemHint
	}

	providerName, model, _ := strings.Cut(backend, "/")
	if model == "" {
		pc, ok := appConfig.GetProvider(providerName)
		if !ok {
			return core.NewParticipantConfig{}, fmt.Errorf("unknown provider %q in spec %q", providerName, spec)
		}
		model = pc.DefaultModel
		if model == "" && len(pc.Models) > 0 {
			model = pc.Models[0]
		}
	}
	if model == "" {
		return core.NewParticipantConfig{}, fmt.Errorf("no model for provider %q; use %s/<model>:%s", providerName, providerName, name)
	}

	return core.NewParticipantConfig{
		Name:     name,
		Kind:     core.KindAI,
		Provider: providerName,
		Model:    model,
		Params:   core.GenerationParams{SystemHint: systemHint},
	}, nil
}

var runCmd = &cobra.Command{
	Use:   "run [id]",
	Short: "Start a debate and follow it live",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := buildStack()
		if err != nil {
			return err
		}
		defer st.Close()

		id, err := st.resolveDebateID(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return followDebate(cmd.Context(), st, id)
	},
}

// followDebate starts the debate and prints events until it concludes.
func followDebate(parent context.Context, st *stack, debateID string) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Println("\n\nInterrupted. Cancelling debate...")
			st.service.CancelDebate(context.Background(), debateID)
			cancel()
		case <-ctx.Done():
		}
	}()

	// Subscribe before starting so round 1 events are not missed
	eventCh, unsubscribe := st.service.Subscribe(debateID)
	defer unsubscribe()

	debate, err := st.service.StartDebate(ctx, debateID)
	if err != nil {
		return fmt.Errorf("failed to start debate: %w", err)
	}

	names := make(map[string]string, len(debate.Participants))
	for _, p := range debate.Participants {
		names[p.ID] = p.Name
	}

	fmt.Printf("\nDebate started: %s\n", debate.Topic)
	fmt.Println(strings.Repeat("─", 60))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-eventCh:
			if !ok {
				return nil
			}
			printEvent(ev, names)
			if ev.Type == core.EventDebateCompleted || ev.Type == core.EventDebateError {
				printOutcome(ctx, st, debateID)
				return nil
			}
		}
	}
}

func printEvent(ev *core.Event, names map[string]string) {
	switch ev.Type {
	case core.EventRoundStarted:
		if round, ok := ev.Payload.(*core.Round); ok {
			fmt.Printf("\n── Round %d ──\n", round.Number)
		}
	case core.EventResponseSubmitted:
		response, ok := ev.Payload.(*core.Response)
		if !ok {
			return
		}
		name := names[response.ParticipantID]
		if name == "" {
			name = response.ParticipantID
		}
		if response.TimedOut() {
			fmt.Printf("\n%s: (no response, timed out)\n", name)
			return
		}
		fmt.Printf("\n%s:\n%s\n", name, response.Content)
	case core.EventDebateError:
		fmt.Printf("\nError: %v\n", ev.Payload)
	}
}

func printOutcome(ctx context.Context, st *stack, debateID string) {
	debate, err := st.service.GetDebate(ctx, debateID)
	if err != nil {
		return
	}
	fmt.Println(strings.Repeat("═", 60))
	fmt.Printf("Debate %s after %d round(s)\n", debate.Status, len(debate.Rounds))
	fmt.Printf("Export it with: arbiter export %s --format markdown\n", debate.ID[:8])
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all debates",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := buildStack()
		if err != nil {
			return err
		}
		defer st.Close()

		debates, err := st.service.ListDebates(cmd.Context(), 50, 0)
		if err != nil {
			return err
		}

		if len(debates) == 0 {
			fmt.Println("No debates found. Start one with: arbiter new \"Your topic\"")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTOPIC\tSTATUS\tROUND\tMEMBERS\tCREATED")
		for _, d := range debates {
			topic := d.Topic
			if len(topic) > 40 {
				topic = topic[:37] + "..."
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%d\t%s\n",
				d.ID[:8],
				topic,
				d.Status,
				d.CurrentRound,
				d.MaxRounds,
				d.ParticipantCount,
				d.CreatedAt.Format("2006-01-02 15:04"),
			)
		}
		return w.Flush()
	},
}

var showCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show a debate transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := buildStack()
		if err != nil {
			return err
		}
		defer st.Close()

		id, err := st.resolveDebateID(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		debate, err := st.service.GetDebate(cmd.Context(), id)
		if err != nil {
			return err
		}

		names := make(map[string]string, len(debate.Participants))
		fmt.Printf("%s\n", debate.Topic)
		fmt.Printf("Status: %s | Round %d/%d | Created %s\n",
			debate.Status, debate.CurrentRound, debate.MaxRounds,
			debate.CreatedAt.Format("2006-01-02 15:04"))
		fmt.Println("\nParticipants:")
		for _, p := range debate.Participants {
			names[p.ID] = p.Name
			if p.Kind == core.KindAI {
				fmt.Printf("  - %s (%s/%s)\n", p.Name, p.Provider, p.Model)
			} else {
				fmt.Printf("  - %s (human)\n", p.Name)
			}
		}

		for _, round := range debate.Rounds {
			fmt.Printf("\n── Round %d (%s) ──\n", round.Number, round.Status)
			for _, resp := range round.Responses {
				name := names[resp.ParticipantID]
				if resp.TimedOut() {
					fmt.Printf("\n%s: (no response, timed out)\n", name)
					continue
				}
				fmt.Printf("\n%s:\n%s\n", name, resp.Content)
			}
		}
		return nil
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel [id]",
	Short: "Cancel a running debate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := buildStack()
		if err != nil {
			return err
		}
		defer st.Close()

		id, err := st.resolveDebateID(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if _, err := st.service.CancelDebate(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Printf("Debate %s cancelled\n", id[:8])
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a debate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := buildStack()
		if err != nil {
			return err
		}
		defer st.Close()

		id, err := st.resolveDebateID(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if err := st.service.DeleteDebate(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Printf("Debate %s deleted\n", id[:8])
		return nil
	},
}
