package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/DoyleJ11/abluka/internal/prefs"
)

// setPref stores one preference from the set command.
func setPref(p *prefs.Store, key, value string) error {
	switch strings.ToLower(key) {
	case "volume":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("volume must be a number between 0 and 1")
		}
		p.SetVolume(v)
	case "muted", "mute":
		b, err := parseSwitch(value)
		if err != nil {
			return err
		}
		p.SetMuted(b)
	case "dark", "darkmode":
		b, err := parseSwitch(value)
		if err != nil {
			return err
		}
		p.SetDarkMode(b)
	case "theme":
		p.SetTheme(strings.TrimSpace(value))
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return nil
}

func parseSwitch(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "on", "yes":
		return true, nil
	case "off", "no":
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("expected on or off, got %q", v)
	}
	return b, nil
}

func describePrefs(p *prefs.Store) string {
	theme := p.Theme()
	if theme == "" {
		theme = "default"
	}
	return fmt.Sprintf("volume %.2f  muted %s  dark %s  theme %s\n",
		p.Volume(), onOff(p.Muted()), onOff(p.DarkMode()), theme)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
