package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/axonworks/cortexd/internal/lobe"
)

// LLMArbiter asks the model to confirm or override the preliminary
// lobe. Output is a single lobe name, optionally followed by a reason
// after a colon.
type LLMArbiter struct {
	Runtime lobe.Runtime
}

func (a *LLMArbiter) Arbitrate(ctx context.Context, query string, preliminary lobe.Kind) (lobe.Kind, string, error) {
	prompt := fmt.Sprintf(`You route queries inside a digital brain.
Lobes: frontal (reasoning, planning), temporal (comprehension,
summarizing), parietal (memory recall), occipital (vision).
Preliminary choice: %s
Query: %q
Reply with one lobe name. You may append ": <short reason>".`, preliminary, query)

	out, err := lobe.Complete(ctx, a.Runtime, prompt, nil)
	if err != nil {
		return "", "", err
	}
	name, reason, _ := strings.Cut(strings.TrimSpace(out), ":")
	kind, ok := lobe.ParseKind(strings.ToLower(strings.TrimSpace(name)))
	if !ok {
		return "", "", fmt.Errorf("unusable arbiter output %q", out)
	}
	return kind, strings.TrimSpace(reason), nil
}
