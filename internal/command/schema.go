package command

import (
	"fmt"
	"strconv"
	"strings"
)

// paramSpec describes one parameter a command accepts. Integer parameters
// must parse as positive integers when present.
type paramSpec struct {
	name     string
	required bool
	integer  bool
}

// schemas lists the recognized commands and their parameters. Requests
// are validated against this table before anything touches the session.
var schemas = map[string][]paramSpec{
	"stream": {
		{name: "destination", required: true},
		{name: "timeout", integer: true},
	},
	"record": {
		{name: "duration", required: true, integer: true},
		{name: "filename", required: true},
	},
	"stop": {
		{name: "target"},
	},
	"status": nil,
}

// validateParams checks params against the specs and returns a
// protocol-ready failure message when they do not conform.
func validateParams(specs []paramSpec, params map[string]string) (string, bool) {
	var missing []string
	for _, spec := range specs {
		raw, present := params[spec.name]
		if !present || raw == "" {
			if spec.required {
				missing = append(missing, spec.name)
			}
			continue
		}
		if spec.integer {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return fmt.Sprintf("%s must be an integer", capitalize(spec.name)), false
			}
			if n <= 0 {
				return fmt.Sprintf("%s must be positive", capitalize(spec.name)), false
			}
		}
	}

	switch len(missing) {
	case 0:
		return "", true
	case 1:
		return fmt.Sprintf("Missing required parameter: %s", missing[0]), false
	default:
		return fmt.Sprintf("Missing required parameters: %s", strings.Join(missing, " and/or ")), false
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
