// Package control implements the probe state machine: selection of probes
// and the enable, disable, test and full-test transitions.
package control

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoCommand       = errors.New("no command given (use one of --list, --enable, --disable, --test, --full-test)")
	ErrTooManyCommands = errors.New("commands are mutually exclusive")
)

// Command is the single operation requested on the command line.
type Command int

const (
	List Command = iota + 1
	Enable
	Disable
	Test
	FullTest
)

func (c Command) String() string {
	switch c {
	case List:
		return "list"
	case Enable:
		return "enable"
	case Disable:
		return "disable"
	case Test:
		return "test"
	case FullTest:
		return "full-test"
	default:
		return fmt.Sprintf("Command(%d)", int(c))
	}
}

// Mutating reports whether the command changes registrations.
func (c Command) Mutating() bool {
	return c == Enable || c == Disable
}

// Flags are the command switches as given by the user.
type Flags struct {
	List     bool
	Enable   bool
	Disable  bool
	Test     bool
	FullTest bool
}

// SelectCommand returns the one command set in f.
func SelectCommand(f Flags) (Command, error) {
	candidates := []struct {
		set bool
		cmd Command
	}{
		{f.List, List},
		{f.Enable, Enable},
		{f.Disable, Disable},
		{f.Test, Test},
		{f.FullTest, FullTest},
	}

	var selected []Command
	for _, c := range candidates {
		if c.set {
			selected = append(selected, c.cmd)
		}
	}

	switch len(selected) {
	case 0:
		return 0, ErrNoCommand
	case 1:
		return selected[0], nil
	default:
		names := make([]string, len(selected))
		for i, c := range selected {
			names[i] = "--" + c.String()
		}
		return 0, fmt.Errorf("%w: %s", ErrTooManyCommands, strings.Join(names, ", "))
	}
}
