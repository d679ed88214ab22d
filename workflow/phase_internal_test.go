package workflow

import (
	"context"
	"testing"

	"bitbucket.org/mmdatafocus/infusionsync_backend/models"
)

func TestForEachGroupIsolatesPanickingGroup(t *testing.T) {
	groups := map[string][]models.StagedLine{
		"P100": {{PoNumber: "P100"}, {PoNumber: "P100"}},
		"P200": {{PoNumber: "P200"}},
	}
	order := []string{"P100", "P200"}

	total := forEachGroup(context.Background(), nil, 2, groups, order, func(po string, lines []models.StagedLine) Summary {
		if po == "P100" {
			panic("order header vanished")
		}
		return Summary{Created: len(lines)}
	})

	if total.Failed != 2 {
		t.Fatalf("panicking group should fail its own lines, got Failed=%d", total.Failed)
	}
	if total.Created != 1 {
		t.Fatalf("surviving group should still process, got Created=%d", total.Created)
	}
}
