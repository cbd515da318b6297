// Package wizard provides an interactive setup wizard for building a
// Shadowsocks profile, the ssgo analogue of the teacher's config-building
// wizard.
package wizard

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/postalsys/ssgo/internal/cipher"
	"github.com/postalsys/ssgo/internal/profile"
)

// Result is what the wizard produced: the profile itself, plus the two
// decisions that live outside the profile (which role to run it as, and
// whether the server role should auto-ban probing peers).
type Result struct {
	Profile *profile.Profile
	IsLocal bool
	AutoBan bool
}

// Run interactively builds a Profile, starting from existing's fields if
// non-nil (editing an already-loaded profile) or profile.Default().
func Run(existing *profile.Profile) (*Result, error) {
	p := existing
	if p == nil {
		p = profile.Default()
	}

	role := "client"
	if p.LocalAddress == "" {
		role = "server"
	}

	serverPortStr := portString(p.ServerPort)

	basics := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Profile name").
				Description("A label carried into the ss:// URI fragment").
				Value(&p.Name),
			huh.NewSelect[string]().
				Title("Role").
				Description("client runs a local SOCKS5/HTTP front end; server is the public Shadowsocks endpoint").
				Options(huh.NewOptions("client", "server")...).
				Value(&role),
			huh.NewSelect[string]().
				Title("Method").
				Options(methodOptions()...).
				Value(&p.Method),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&p.Password).
				Validate(requireNonEmpty),
		),
	)
	if err := basics.Run(); err != nil {
		return nil, fmt.Errorf("wizard: %w", err)
	}

	network := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Server address").
				Description("The Shadowsocks server's host or IP").
				Value(&p.ServerAddress).
				Validate(requireNonEmpty),
			huh.NewInput().
				Title("Server port").
				Value(&serverPortStr).
				Validate(validatePort),
		),
	)
	if err := network.Run(); err != nil {
		return nil, fmt.Errorf("wizard: %w", err)
	}
	serverPort, _ := strconv.Atoi(serverPortStr)
	p.ServerPort = uint16(serverPort)

	result := &Result{Profile: p, IsLocal: role == "client", AutoBan: true}

	if result.IsLocal {
		if err := askLocalFields(p); err != nil {
			return nil, err
		}
	} else {
		p.LocalAddress = ""
		p.LocalPort = 0
		p.HTTPProxy = false
		if err := askServerFields(result); err != nil {
			return nil, err
		}
	}

	return result, nil
}

func askLocalFields(p *profile.Profile) error {
	if p.LocalAddress == "" {
		p.LocalAddress = "127.0.0.1"
	}
	localPortStr := portString(p.LocalPort)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Local bind address").
				Value(&p.LocalAddress).
				Validate(requireNonEmpty),
			huh.NewInput().
				Title("Local port").
				Description("SOCKS5 (or the HTTP front end, if enabled) listens here").
				Value(&localPortStr).
				Validate(validatePort),
			huh.NewConfirm().
				Title("Also run an HTTP CONNECT proxy front end?").
				Value(&p.HTTPProxy),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("wizard: %w", err)
	}
	localPort, _ := strconv.Atoi(localPortStr)
	p.LocalPort = uint16(localPort)
	return nil
}

func askServerFields(result *Result) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Ban peer IPs after repeated malformed traffic?").
				Value(&result.AutoBan),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("wizard: %w", err)
	}
	return nil
}

func methodOptions() []huh.Option[string] {
	names := cipher.SupportedMethods()
	opts := make([]huh.Option[string], len(names))
	for i, name := range names {
		opts[i] = huh.NewOption(name, name)
	}
	return opts
}

func portString(port uint16) string {
	if port == 0 {
		return ""
	}
	return strconv.Itoa(int(port))
}

func requireNonEmpty(s string) error {
	if s == "" {
		return fmt.Errorf("required")
	}
	return nil
}

func validatePort(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("must be a number")
	}
	if n < 1 || n > 65535 {
		return fmt.Errorf("must be between 1 and 65535")
	}
	return nil
}
