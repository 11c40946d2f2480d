// Copyright (c) 2025 A Bit of Help, Inc.

// Package deps checks that the external tools the pipeline drives are installed.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/abitofhelp/mp3toogg/pkg/config"
	customErrors "github.com/abitofhelp/mp3toogg/pkg/errors"
	"github.com/samber/lo"
)

// Requirement defines an external binary the pipeline relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
}

// Status reports the availability of a requirement.
type Status struct {
	Requirement
	Available bool
	Detail    string
}

// Requirements lists the tools named by cfg.
func Requirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{Name: "tag tool", Command: cfg.TagTool, Description: "reads source tags"},
		{Name: "decoder", Command: cfg.Decoder, Description: "decodes sources to PCM"},
		{Name: "encoder", Command: cfg.Encoder, Description: "encodes PCM to the target format"},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	return lo.Map(requirements, func(req Requirement, _ int) Status {
		status := Status{Requirement: req}
		status.Command = strings.TrimSpace(req.Command)
		switch {
		case status.Command == "":
			status.Detail = "command not configured"
		default:
			if _, err := exec.LookPath(status.Command); err != nil {
				status.Detail = fmt.Sprintf("binary %q not found", status.Command)
			} else {
				status.Available = true
			}
		}
		return status
	})
}

// Missing returns an error naming every unavailable tool, or nil.
func Missing(statuses []Status) error {
	missing := lo.Filter(statuses, func(s Status, _ int) bool { return !s.Available })
	if len(missing) == 0 {
		return nil
	}
	details := lo.Map(missing, func(s Status, _ int) string {
		return fmt.Sprintf("%s (%s)", s.Name, s.Detail)
	})
	return fmt.Errorf("%w: %s", customErrors.ErrToolMissing, strings.Join(details, ", "))
}
