// Package main is the ssgo CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/postalsys/ssgo/internal/cipher"
	"github.com/postalsys/ssgo/internal/controller"
	"github.com/postalsys/ssgo/internal/logging"
	"github.com/postalsys/ssgo/internal/profile"
	"github.com/postalsys/ssgo/internal/wizard"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

var bannerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))

func main() {
	rootCmd := &cobra.Command{
		Use:     "ssgo",
		Short:   "ssgo - a Shadowsocks proxy client and server",
		Version: Version,
	}

	rootCmd.AddCommand(clientCmd())
	rootCmd.AddCommand(serverCmd())
	rootCmd.AddCommand(genURICmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(methodsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// profileFlags are the common flags every profile-consuming subcommand
// accepts: either a config file, or enough individual fields to build one.
type profileFlags struct {
	configPath string
	method     string
	password   string
	server     string
	serverPort uint16
	rateLimit  int64
	logLevel   string
	logFormat  string
}

func (f *profileFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "Path to a profile YAML file")
	cmd.Flags().StringVar(&f.method, "method", "", "Cipher method (overrides config)")
	cmd.Flags().StringVar(&f.password, "password", "", "Password (overrides config)")
	cmd.Flags().StringVar(&f.server, "server", "", "Shadowsocks server host (overrides config)")
	cmd.Flags().Uint16Var(&f.serverPort, "server-port", 0, "Shadowsocks server port (overrides config)")
	cmd.Flags().Int64Var(&f.rateLimit, "rate-limit", 0, "Cap aggregate relay throughput in bytes/sec (0 = unlimited)")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	cmd.Flags().StringVar(&f.logFormat, "log-format", "text", "Log format: text, json")
}

// load builds a Profile from configPath (if set) and then layers any
// explicitly-set override flags on top.
func (f *profileFlags) load() (*profile.Profile, error) {
	p := profile.Default()
	if f.configPath != "" {
		loaded, err := profile.Load(f.configPath)
		if err != nil {
			return nil, fmt.Errorf("load profile: %w", err)
		}
		p = loaded
	}
	if f.method != "" {
		p.Method = f.method
	}
	if f.password != "" {
		p.Password = f.password
	}
	if f.server != "" {
		p.ServerAddress = f.server
	}
	if f.serverPort != 0 {
		p.ServerPort = f.serverPort
	}
	if f.rateLimit != 0 {
		p.RateLimitBytesPerSec = f.rateLimit
	}
	return p, nil
}

func clientCmd() *cobra.Command {
	f := &profileFlags{}
	var localAddr string
	var localPort uint16
	var httpProxy bool

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Run the SOCKS5/HTTP client, tunneling into a Shadowsocks server",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := f.load()
			if err != nil {
				return err
			}
			if localAddr != "" {
				p.LocalAddress = localAddr
			}
			if localPort != 0 {
				p.LocalPort = localPort
			}
			if cmd.Flags().Changed("http-proxy") {
				p.HTTPProxy = httpProxy
			}
			return runController(p, controller.Options{IsLocal: true}, f.logLevel, f.logFormat)
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&localAddr, "local-address", "", "Local bind address (overrides config)")
	cmd.Flags().Uint16Var(&localPort, "local-port", 0, "Local SOCKS5/HTTP port (overrides config)")
	cmd.Flags().BoolVar(&httpProxy, "http-proxy", false, "Also run an HTTP CONNECT proxy front end")
	return cmd
}

func serverCmd() *cobra.Command {
	f := &profileFlags{}
	var autoBan bool

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the public Shadowsocks server endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := f.load()
			if err != nil {
				return err
			}
			return runController(p, controller.Options{IsLocal: false, AutoBan: autoBan}, f.logLevel, f.logFormat)
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&autoBan, "auto-ban", true, "Ban peer IPs after repeated malformed traffic")
	return cmd
}

func runController(p *profile.Profile, opts controller.Options, logLevel, logFormat string) error {
	logger := logging.NewLogger(logLevel, logFormat)
	opts.Logger = logger

	ctl, err := controller.New(p, opts)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ctl.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	defer ctl.Stop()

	role := "server"
	if opts.IsLocal {
		role = "client"
	}
	fmt.Println(bannerStyle.Render(fmt.Sprintf("ssgo %s running: %s", role, ctl.Addr())))
	if ctl.HTTPAddr() != nil {
		fmt.Printf("http proxy front end: %s\n", ctl.HTTPAddr())
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	statusTicker := time.NewTicker(30 * time.Second)
	defer statusTicker.Stop()

	for {
		select {
		case sig := <-sigCh:
			fmt.Printf("\nreceived signal %v, shutting down\n", sig)
			return nil
		case <-statusTicker.C:
			fmt.Printf("received %s, sent %s\n",
				humanize.Bytes(ctl.BytesReceived()), humanize.Bytes(ctl.BytesSent()))
		}
	}
}

func genURICmd() *cobra.Command {
	f := &profileFlags{}
	var sip002 bool

	cmd := &cobra.Command{
		Use:   "genuri",
		Short: "Print an ss:// URI for a profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := f.load()
			if err != nil {
				return err
			}
			if sip002 {
				fmt.Println(p.ToURISIP002())
			} else {
				fmt.Println(p.ToURI())
			}
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&sip002, "sip002", false, "Use the SIP002 URI form instead of the legacy form")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Build or inspect a profile configuration",
	}
	cmd.AddCommand(configWizardCmd())
	cmd.AddCommand(configURICmd())
	return cmd
}

func configWizardCmd() *cobra.Command {
	var configPath string
	var out string

	cmd := &cobra.Command{
		Use:   "wizard",
		Short: "Interactively build a profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			var existing *profile.Profile
			if configPath != "" {
				loaded, err := profile.Load(configPath)
				if err != nil {
					return fmt.Errorf("load existing profile: %w", err)
				}
				existing = loaded
			}

			result, err := wizard.Run(existing)
			if err != nil {
				return err
			}

			if out == "" {
				out = configPath
			}
			if out == "" {
				out = "profile.yaml"
			}
			if err := result.Profile.Save(out); err != nil {
				return fmt.Errorf("save profile: %w", err)
			}

			role := "server"
			if result.IsLocal {
				role = "client"
			}
			fmt.Printf("Saved %s profile to %s\n", role, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Existing profile to edit")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Where to save the profile (defaults to --config, or profile.yaml)")
	return cmd
}

func configURICmd() *cobra.Command {
	var uri string
	var out string

	cmd := &cobra.Command{
		Use:   "from-uri",
		Short: "Build a profile from an ss:// URI",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := profile.FromURI(uri)
			if err != nil {
				return fmt.Errorf("parse uri: %w", err)
			}
			if out == "" {
				out = "profile.yaml"
			}
			if err := p.Save(out); err != nil {
				return fmt.Errorf("save profile: %w", err)
			}
			fmt.Printf("Saved profile to %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&uri, "uri", "", "ss:// URI to parse")
	_ = cmd.MarkFlagRequired("uri")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Where to save the profile (defaults to profile.yaml)")
	return cmd
}

func methodsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "methods",
		Short: "List supported cipher methods",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, m := range cipher.SupportedMethods() {
				fmt.Println(m)
			}
			return nil
		},
	}
}

