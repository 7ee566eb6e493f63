// Package ui provides interactive prompts for scaffolding commands.
package ui

import (
	"fmt"

	"github.com/manifoldco/promptui"
)

// AskText prompts for text input with a default value.
func AskText(label, defaultValue string, validate func(string) error) (string, error) {
	prompt := promptui.Prompt{
		Label:   label,
		Default: defaultValue,
	}
	if validate != nil {
		prompt.Validate = validate
	}

	result, err := prompt.Run()
	if err != nil {
		return "", fmt.Errorf("prompt cancelled: %w", err)
	}

	return result, nil
}

// AskConfirm prompts for a yes/no confirmation.
func AskConfirm(label string, defaultYes bool) (bool, error) {
	defaultValue := "n"
	if defaultYes {
		defaultValue = "y"
	}

	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
		Default:   defaultValue,
	}

	_, err := prompt.Run()
	if err != nil {
		// promptui reports a declined confirm as ErrAbort.
		if err == promptui.ErrAbort {
			return false, nil
		}
		return false, fmt.Errorf("prompt cancelled: %w", err)
	}

	return true, nil
}

// AskSelect prompts for a single selection from choices.
func AskSelect(label string, choices []string) (int, string, error) {
	prompt := promptui.Select{
		Label: label,
		Items: choices,
	}

	idx, value, err := prompt.Run()
	if err != nil {
		return -1, "", fmt.Errorf("prompt cancelled: %w", err)
	}

	return idx, value, nil
}
