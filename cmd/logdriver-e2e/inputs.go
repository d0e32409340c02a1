package main

import (
	"strings"

	"github.com/kubev2v/logdriver-e2e/internal/models"
)

const partialSuffix = ":partial"

// parseInputs reads --line values; a ":partial" suffix marks a partial fragment.
func parseInputs(lines []string) []models.Input {
	inputs := make([]models.Input, 0, len(lines))
	for _, l := range lines {
		in := models.Input{Text: l}
		if text, ok := strings.CutSuffix(l, partialSuffix); ok {
			in = models.Input{Text: text, Partial: true}
		}
		inputs = append(inputs, in)
	}
	return inputs
}
