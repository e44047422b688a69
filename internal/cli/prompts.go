package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"

	"github.com/dyike/AnalystCouncil/internal/council"
	"github.com/dyike/AnalystCouncil/internal/quote"
)

// errQuit is returned by prompts when the operator leaves the interactive loop.
var errQuit = errors.New("quit")

// Prompter asks the operator questions. The survey implementation is used on a terminal.
type Prompter interface {
	Input(message, help string) (string, error)
	Confirm(message string, def bool) (bool, error)
	Select(message string, options []string) (int, error)
}

type surveyPrompter struct{}

func (surveyPrompter) Input(message, help string) (string, error) {
	var answer string
	prompt := &survey.Input{Message: message, Help: help}
	err := survey.AskOne(prompt, &answer, survey.WithValidator(func(val interface{}) error {
		str, _ := val.(string)
		if _, err := council.NormalizeSubject(str); err != nil && strings.TrimSpace(str) != "" {
			return err
		}
		return nil
	}))
	return answer, interrupted(err)
}

func (surveyPrompter) Confirm(message string, def bool) (bool, error) {
	answer := def
	err := survey.AskOne(&survey.Confirm{Message: message, Default: def}, &answer)
	return answer, interrupted(err)
}

func (surveyPrompter) Select(message string, options []string) (int, error) {
	var idx int
	err := survey.AskOne(&survey.Select{Message: message, Options: options}, &idx)
	return idx, interrupted(err)
}

func interrupted(err error) error {
	if errors.Is(err, terminal.InterruptErr) {
		return errQuit
	}
	return err
}

// SymbolResolver turns free text into candidate instruments.
type SymbolResolver interface {
	Resolve(ctx context.Context, query string) ([]quote.Match, error)
}

// PromptForSubject asks for a ticker or company name. An empty answer or "exit" quits.
func PromptForSubject(p Prompter) (string, error) {
	answer, err := p.Input(
		"Enter a ticker or company name (e.g. AAPL, Microsoft), or 'exit' to quit:",
		"The council analyses one instrument per session",
	)
	if err != nil {
		return "", err
	}
	answer = strings.TrimSpace(answer)
	switch strings.ToLower(answer) {
	case "", "exit", "quit", "q":
		return "", errQuit
	}
	return answer, nil
}

// ConfirmSubject resolves input to a ticker and asks the operator to confirm it; Enter means yes.
// When the lookup service is unreachable the input is used as typed.
func ConfirmSubject(ctx context.Context, p Prompter, r SymbolResolver, input string) (string, error) {
	input = strings.TrimSpace(input)
	if r == nil {
		return input, nil
	}
	matches, err := r.Resolve(ctx, input)
	if errors.Is(err, quote.ErrUnavailable) {
		return "", fmt.Errorf("no instrument matches %q, try an exact ticker or company name", input)
	}
	if err != nil {
		return input, nil
	}

	best := matches[0]
	ok, err := p.Confirm(fmt.Sprintf("Is '%s (%s)' the instrument you mean?", best.Name(), best.Symbol), true)
	if err != nil {
		return "", err
	}
	if ok {
		return best.Symbol, nil
	}
	if len(matches) == 1 {
		return "", fmt.Errorf("instrument not confirmed")
	}

	options := make([]string, 0, len(matches))
	for _, m := range matches[1:] {
		options = append(options, fmt.Sprintf("%s (%s, %s)", m.Name(), m.Symbol, m.Exchange))
	}
	options = append(options, "None of these")
	idx, err := p.Select("Pick the instrument:", options)
	if err != nil {
		return "", err
	}
	if idx < 0 || idx >= len(matches)-1 {
		return "", fmt.Errorf("instrument not confirmed")
	}
	return matches[idx+1].Symbol, nil
}
