package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/casefile/pkg/domain"
)

// Overlay contains call state to visualize on the graph.
type Overlay struct {
	Visited []domain.Step
	Current domain.Step
}

// OverlayFor builds an overlay from a call's history.
func OverlayFor(sc domain.SessionContext) *Overlay {
	return &Overlay{Visited: sc.History, Current: sc.Step}
}

// GenerateMermaid produces a Mermaid flowchart of the step graph.
// Shapes:
// - greeting: ((Circle))
// - steps whose tool calls the gateway: [[Subroutine]]
// - steps that take caller input: [/Parallelogram/]
// - wrap_up: [(Database)], where the call is persisted
// Edges are labelled with the tool that drives them; self-loops are retries.
// The fall-through to wrap_up from every step is omitted.
func GenerateMermaid(overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, step := range domain.Steps {
		opener, closer := "[/", "/]"
		switch step {
		case domain.StepGreeting:
			opener, closer = "((", "))"
		case domain.StepEmailCollection, domain.StepSMSWait, domain.StepEmailValidation, domain.StepAddressValidation:
			opener, closer = "[[", "]]"
		case domain.StepWrapUp:
			opener, closer = "[(", ")]"
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", step, opener, step, closer)

		tool, _ := step.Tool()
		for _, to := range step.Next() {
			arrow := fmt.Sprintf("-- \"%s\" -->", tool)
			if to == step {
				arrow = fmt.Sprintf("-. \"%s retry\" .->", tool)
			}
			fmt.Fprintf(&sb, "    %s %s %s\n", step, arrow, to)
		}
	}
	fmt.Fprintf(&sb, "    %s -- \"done\" --> %s\n", domain.StepAddressValidation, domain.StepWrapUp)

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		seen := make(map[domain.Step]bool)
		for _, s := range overlay.Visited {
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			fmt.Fprintf(&sb, "    class %s visited;\n", s)
		}
		if overlay.Current != "" {
			fmt.Fprintf(&sb, "    class %s current;\n", overlay.Current)
		}
	}

	return sb.String()
}
