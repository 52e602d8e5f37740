package app

import (
	"fmt"
	"strings"
)

// Handle dispatches one control-socket message. The first string is
// the verb; `profile` verbs carry the profile name second and the
// action third.
func (a *App) Handle(message []string) (bool, string) {
	if len(message) == 0 {
		return false, "empty message"
	}
	switch message[0] {
	case "reload":
		if len(message) > 1 {
			return false, "reload takes no arguments"
		}
		if err := a.Reload(); err != nil {
			return false, fmt.Sprintf("reload failed: %v", err)
		}
		return true, "successfully reloaded all profiles"
	case "get-loaded-profiles":
		if len(message) > 1 {
			return false, "get-loaded-profiles takes no arguments"
		}
		return true, strings.Join(a.Profiles(), "\n")
	case "profile":
		return a.handleProfile(message[1:])
	}
	return false, fmt.Sprintf("unknown message %q", message[0])
}

func (a *App) handleProfile(args []string) (bool, string) {
	if len(args) < 2 {
		return false, "profile requires a name and an action"
	}
	name, action, rest := args[0], args[1], args[2:]
	l, ok := a.lookup(name)
	if !ok {
		return false, fmt.Sprintf("no loaded profile %q", name)
	}
	switch action {
	case "toggle":
		l.ToggleEnabled()
		return true, enabledWord(l.Enabled())
	case "enable":
		l.SetEnabled(true)
		return true, "enabled"
	case "disable":
		l.SetEnabled(false)
		return true, "disabled"
	case "get-loaded-subprofiles":
		return true, strings.Join(l.GetInfo().Subprofiles, "\n")
	case "cycle-subprofiles":
		l.CycleSubprofiles()
		return true, l.GetInfo().CurrentSubprof
	case "set-subprofile":
		if len(rest) != 1 {
			return false, "set-subprofile requires a subprofile name"
		}
		if err := l.SetSubprofile(rest[0]); err != nil {
			return false, err.Error()
		}
		return true, rest[0]
	case "virtual-sustain":
		if len(rest) != 1 {
			return false, "virtual-sustain requires toggle, enable, or disable"
		}
		switch rest[0] {
		case "toggle":
			l.ToggleVirtualPedalDown()
		case "enable":
			l.SetVirtualPedalDown(true)
		case "disable":
			l.SetVirtualPedalDown(false)
		default:
			return false, fmt.Sprintf("unknown virtual-sustain action %q", rest[0])
		}
		return true, enabledWord(l.GetInfo().VirtualSustain)
	}
	return false, fmt.Sprintf("unknown profile action %q", action)
}

func enabledWord(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}
