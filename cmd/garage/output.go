package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/roelfdiedericks/garage/internal/agent"
	"github.com/roelfdiedericks/garage/internal/llm"
	"github.com/roelfdiedericks/garage/internal/retry"
	"github.com/roelfdiedericks/garage/internal/router"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// printResult prints a header line and v as indented JSON.
func printResult(title, detail string, v any) {
	fmt.Println(headerStyle.Render(title) + " " + dimStyle.Render(detail))
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("%+v\n", v)
		return
	}
	fmt.Println(string(data))
}

// describeError turns a command error into the line shown to the user.
func describeError(err error) string {
	var unroutable *router.UnroutableQueryError
	if errors.As(err, &unroutable) {
		return unroutableHint(unroutable)
	}

	var outErr *agent.OutputError
	if errors.As(err, &outErr) {
		return fmt.Sprintf("The %s agent returned an unusable answer: %v", outErr.Agent, outErr.Err)
	}

	var exhausted *retry.RetriesExhaustedError
	if errors.As(err, &exhausted) {
		return fmt.Sprintf("Gave up after %d attempts. %s", exhausted.Attempts,
			llm.FormatErrorForUser(exhausted.Last.Error(), llm.ErrorTypeOf(exhausted.Last)))
	}

	if t := llm.ErrorTypeOf(err); t != llm.ErrorTypeUnknown {
		return llm.FormatErrorForUser(err.Error(), t)
	}
	return "Error: " + err.Error()
}
