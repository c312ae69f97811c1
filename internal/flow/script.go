// Package flow implements the conversation routing engine for KaraBot.
//
// The engine maps a selection id or inbound text to an ordered list of
// outbound units. Routing is a flat table lookup: built-in states first,
// then the script decision table loaded at startup.
package flow

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/karabot/karabot/internal/models"
)

// ScriptAction is the terminal reply attached to a script option.
type ScriptAction struct {
	Type string `json:"type"`
	Body string `json:"body"`
}

// ScriptOption is one selectable entry inside a script menu. An option with
// an action is a terminal reply; one without expands the submenu whose key
// matches the option id.
type ScriptOption struct {
	ID     string        `json:"id"`
	Title  string        `json:"title"`
	Action *ScriptAction `json:"action,omitempty"`
}

// ScriptMenu is one list menu in the script table.
type ScriptMenu struct {
	Title   string         `json:"title"`
	Body    string         `json:"body"`
	Options []ScriptOption `json:"options"`
}

// Script is the decision table driving script-defined routing. It is
// read-only after load and safe for concurrent use.
type Script struct {
	Greeting string                `json:"greeting,omitempty"`
	Fallback string                `json:"fallback,omitempty"`
	MainMenu *ScriptMenu           `json:"main_menu,omitempty"`
	Menus    map[string]ScriptMenu `json:"menus,omitempty"`
}

// Validate checks structural constraints of the loaded script: every option
// needs an id, action options need a body, and option ids must be unique
// within their menu. Problems surface at startup instead of as silent
// fallbacks at request time.
func (s *Script) Validate() error {
	validateMenu := func(key string, menu ScriptMenu) error {
		seen := make(map[string]bool, len(menu.Options))
		for _, opt := range menu.Options {
			if opt.ID == "" {
				return fmt.Errorf("%w: menu %q has an option without an id", models.ErrInvalidScript, key)
			}
			if seen[opt.ID] {
				return fmt.Errorf("%w: menu %q repeats option id %q", models.ErrInvalidScript, key, opt.ID)
			}
			seen[opt.ID] = true
			if opt.Action != nil && strings.TrimSpace(opt.Action.Body) == "" {
				return fmt.Errorf("%w: option %q has an action without a body", models.ErrInvalidScript, opt.ID)
			}
		}
		return nil
	}

	if s.MainMenu != nil {
		if err := validateMenu("main_menu", *s.MainMenu); err != nil {
			return err
		}
	}
	for key, menu := range s.Menus {
		if err := validateMenu(key, menu); err != nil {
			return err
		}
	}
	return nil
}

// LoadScript reads the script table from a JSON file. A missing or
// unparsable file degrades to an empty script so the built-in flow keeps
// working; a structurally invalid script is returned alongside the error so
// the caller decides whether to refuse startup.
func LoadScript(path string) (Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("Script file not readable, using empty script", "error", err, "path", path)
		return Script{}, nil
	}

	var script Script
	if err := json.Unmarshal(data, &script); err != nil {
		slog.Warn("Script file not valid JSON, using empty script", "error", err, "path", path)
		return Script{}, nil
	}

	if err := script.Validate(); err != nil {
		slog.Error("Script failed validation", "error", err, "path", path)
		return Script{}, err
	}

	slog.Info("Script loaded", "path", path, "menus", len(script.Menus))
	return script, nil
}
