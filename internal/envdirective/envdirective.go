// Package envdirective interprets the environment section of a metric
// configuration. Each entry has the form
//
//	VAR = ACTION | VALUE
//
// where ACTION is one of SET, UNSET, APPEND or PREPEND.
package envdirective

import (
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/jandubois/rsvctl/internal/metricconfig"
)

// Action is an environment mutation.
type Action string

const (
	Set     Action = "SET"
	Unset   Action = "UNSET"
	Append  Action = "APPEND"
	Prepend Action = "PREPEND"
)

// Actions lists the valid actions.
var Actions = []Action{Set, Unset, Append, Prepend}

// InstallRootToken is replaced by the installation root in directive values.
const InstallRootToken = "!!VDT_LOCATION!!"

var (
	separator    = regexp.MustCompile(`\s*\|\s*`)
	installToken = regexp.MustCompile(regexp.QuoteMeta(InstallRootToken))
)

// Directive is a parsed environment mutation.
type Directive struct {
	Variable string `json:"variable"`
	Action   Action `json:"action"`
	Value    string `json:"value"`
}

func (d Directive) String() string {
	return d.Variable + " = " + string(d.Action) + " | " + d.Value
}

func validAction(a Action) bool {
	for _, v := range Actions {
		if v == a {
			return true
		}
	}
	return false
}

func actionNames() string {
	names := make([]string, len(Actions))
	for i, a := range Actions {
		names[i] = string(a)
	}
	return strings.Join(names, " ")
}

// Parse turns the env section of metric into directives keyed by variable.
// Malformed entries are logged and skipped.
func Parse(metric string, env *metricconfig.Section, installRoot string) map[string]Directive {
	directives := make(map[string]Directive)
	section := metricconfig.Env.SectionName(metric)
	if env.Len() == 0 {
		slog.Info("no environment section in metric configuration", "section", section)
		return directives
	}

	for _, variable := range env.Keys() {
		setting, _ := env.Get(variable)
		parts := separator.Split(setting, 2)
		if len(parts) < 2 {
			slog.Warn("invalid environment config setting",
				"section", section,
				"entry", variable+" = "+setting,
				"format", "VAR = ACTION | VALUE",
			)
			continue
		}

		action := Action(strings.ToUpper(strings.TrimSpace(parts[0])))
		if !validAction(action) {
			slog.Warn("invalid environment config setting",
				"section", section,
				"entry", variable+" = "+setting,
				"format", "VAR = ACTION | VALUE",
				"valid_actions", actionNames(),
			)
			continue
		}

		directives[variable] = Directive{
			Variable: variable,
			Action:   action,
			Value:    installToken.ReplaceAllLiteralString(parts[1], installRoot),
		}
	}
	return directives
}

// Apply applies directives to environ, a list of KEY=VALUE strings as
// returned by os.Environ. APPEND and PREPEND join with sep; an empty sep
// concatenates. The result is sorted.
func Apply(environ []string, directives map[string]Directive, sep string) []string {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		env[k] = v
	}

	variables := make([]string, 0, len(directives))
	for v := range directives {
		variables = append(variables, v)
	}
	sort.Strings(variables)

	for _, variable := range variables {
		d := directives[variable]
		current, exists := env[variable]
		switch d.Action {
		case Set:
			env[variable] = d.Value
		case Unset:
			delete(env, variable)
		case Append:
			if exists && current != "" {
				env[variable] = current + sep + d.Value
			} else {
				env[variable] = d.Value
			}
		case Prepend:
			if exists && current != "" {
				env[variable] = d.Value + sep + current
			} else {
				env[variable] = d.Value
			}
		}
	}

	result := make([]string, 0, len(env))
	for k, v := range env {
		result = append(result, k+"="+v)
	}
	sort.Strings(result)
	return result
}

// Sorted returns the directives ordered by variable name.
func Sorted(directives map[string]Directive) []Directive {
	list := make([]Directive, 0, len(directives))
	for _, d := range directives {
		list = append(list, d)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Variable < list[j].Variable })
	return list
}
