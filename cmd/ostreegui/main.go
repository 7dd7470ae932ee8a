package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/steelcutops/ostreegui/logger"
	"github.com/steelcutops/ostreegui/ostreegui/bridge"
	cm "github.com/steelcutops/ostreegui/ostreegui/commandmanager"
	"github.com/steelcutops/ostreegui/ostreegui/config"
	"github.com/steelcutops/ostreegui/ostreegui/host"
	"github.com/steelcutops/ostreegui/ostreegui/inventory"
	pm "github.com/steelcutops/ostreegui/ostreegui/packagemanager"
	"github.com/steelcutops/ostreegui/ostreegui/search"
	"github.com/steelcutops/ostreegui/ostreegui/tui"
)

var version = "0.1.0"

// errFailed is returned when the failure was already printed.
var errFailed = errors.New("operation failed")

type flags struct {
	ConfigFile         string
	PasswordPrompt     bool
	KeyPassPrompt      bool
	SudoPasswordPrompt bool
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	rootCmd := &cobra.Command{
		Use:           "ostreegui",
		Short:         "Manage layered packages on rpm-ostree systems",
		Long:          `ostreegui shows the packages layered on an rpm-ostree deployment and installs, removes and upgrades them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, f)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&f.ConfigFile, "config", "", "config file (default is ~/.config/ostreegui/config.yaml)")
	pf.String("host", "", "target hostname or inventory alias (default localhost)")
	pf.String("user", "", "username for SSH connections")
	pf.String("inventory", "", "INI file with named hosts")
	pf.String("binary", "", "rpm-ostree executable")
	pf.String("index", "", "package name index used by search")
	pf.String("log", "", "log file")
	pf.Bool("debug", false, "enable debug log level")
	pf.BoolVar(&f.PasswordPrompt, "password", false, "prompt for an SSH password")
	pf.BoolVar(&f.KeyPassPrompt, "keypass", false, "prompt for the SSH key passphrase")
	pf.BoolVar(&f.SudoPasswordPrompt, "sudo-password", false, "prompt for the sudo password")

	oneShot := func(use, short string, args cobra.PositionalArgs, action func(b *bridge.Bridge, args []string)) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  args,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runOneShot(cmd, f, func(b *bridge.Bridge) { action(b, args) })
			},
		}
	}

	rootCmd.AddCommand(
		oneShot("status", "Print the layered packages", cobra.NoArgs,
			func(b *bridge.Bridge, _ []string) { b.Refresh() }),
		oneShot("install NAME", "Layer a package", cobra.ExactArgs(1),
			func(b *bridge.Bridge, args []string) { b.Install(args[0]) }),
		oneShot("uninstall NAME...", "Remove layered packages", cobra.MinimumNArgs(1),
			func(b *bridge.Bridge, args []string) { b.Uninstall(args) }),
		oneShot("upgrade", "Upgrade to the latest deployment", cobra.NoArgs,
			func(b *bridge.Bridge, _ []string) { b.Upgrade() }),
		oneShot("apply-live", "Apply the pending deployment to the running system", cobra.NoArgs,
			func(b *bridge.Bridge, _ []string) { b.ApplyLive() }),
		&cobra.Command{
			Use:   "search QUERY",
			Short: "Search the package index",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runSearch(cmd, f, args[0])
			},
		},
		&cobra.Command{
			Use:   "hosts",
			Short: "List the hosts in the inventory",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runHosts(cmd, f)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "ostreegui v%s\n", version)
			},
		},
	)

	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

// loadConfig reads and validates the configuration, then points the logger
// at a file when logToFile is set and at stderr otherwise.
func loadConfig(cmd *cobra.Command, f *flags, logToFile bool) (*config.Config, func(), error) {
	cfg, err := config.Load(f.ConfigFile, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	opts := logger.Options{Debug: cfg.Log.Debug}
	if logToFile || cmd.Flags().Changed("log") {
		opts.File = cfg.Log.File
	}
	closer, err := logger.Configure(opts)
	if err != nil {
		return nil, nil, err
	}
	return cfg, func() { _ = closer.Close() }, nil
}

func connect(ctx context.Context, cfg *config.Config, f *flags) (*host.Host, error) {
	inv, err := inventory.Load(cfg.Target.Inventory)
	if err != nil {
		return nil, err
	}
	hostname := inv.Resolve(cfg.Target.Host)
	if inv.HasAlias(cfg.Target.Host) {
		log.WithFields(log.Fields{"alias": cfg.Target.Host, "host": hostname}).Debug("Resolved inventory alias")
	}

	password, keyPass, sudoPassword := readPasswords(f)
	options := buildHostOptions(cfg, password, keyPass, sudoPassword)

	log.WithField("host", hostname).Debug("Connecting")
	return host.NewHost(ctx, hostname, options...)
}

// runHosts prints every inventory group with its aliases and hostnames.
func runHosts(cmd *cobra.Command, f *flags) error {
	cfg, closeLog, err := loadConfig(cmd, f, false)
	if err != nil {
		return err
	}
	defer closeLog()

	if cfg.Target.Inventory == "" {
		return errors.New("no inventory configured; set --inventory or target.inventory")
	}
	inv, err := inventory.Load(cfg.Target.Inventory)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, group := range inv.Groups() {
		entries := inv.Hosts(group)
		width := 0
		for _, e := range entries {
			width = max(width, len(e.Alias))
		}
		fmt.Fprintf(out, "%s:\n", group)
		for _, e := range entries {
			fmt.Fprintf(out, "  %-*s  %s\n", width, e.Alias, e.Hostname)
		}
	}
	return nil
}

func readPasswords(f *flags) (password, keyPass, sudoPassword string) {
	prompt := func(label string) string {
		fmt.Fprintf(os.Stderr, "Enter the %s: ", label)
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			log.WithError(err).Errorf("Failed to read %s", label)
			return ""
		}
		return string(b)
	}

	if f.PasswordPrompt {
		password = prompt("password")
	}
	if f.KeyPassPrompt {
		keyPass = prompt("key passphrase")
	}
	if f.SudoPasswordPrompt {
		sudoPassword = prompt("sudo password")
	}
	return
}

func buildHostOptions(cfg *config.Config, password, keyPass, sudoPassword string) []host.HostOption {
	options := []host.HostOption{
		host.WithBinary(cfg.Tool.Binary),
		host.WithEscalationHelper(cfg.Tool.EscalationHelper),
		host.WithSSHClient(cm.RealSSHClient{}),
	}
	if cfg.Target.User != "" {
		options = append(options, host.WithUser(cfg.Target.User))
	}
	if password != "" {
		options = append(options, host.WithPassword(password))
	}
	if keyPass != "" {
		options = append(options, host.WithKeyPassphrase(keyPass))
	}
	if sudoPassword != "" {
		options = append(options, host.WithSudoPassword(sudoPassword))
	}
	return options
}

func runTUI(cmd *cobra.Command, f *flags) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("the interactive UI needs a terminal; use a subcommand such as 'ostreegui status'")
	}

	cfg, closeLog, err := loadConfig(cmd, f, true)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	h, err := connect(ctx, cfg, f)
	if err != nil {
		return err
	}
	index, err := search.Load(cfg.Search.Index)
	if err != nil {
		return err
	}

	surface := &tui.ProgramSurface{}
	b := bridge.New(ctx, h.PackageManager, index, surface, bridge.WithHost(h.String()))
	p := tea.NewProgram(tui.NewModel(b, h.String()), tea.WithAltScreen(), tea.WithContext(ctx))
	surface.Attach(p)

	_, err = p.Run()
	// queued actions are dropped; one that already started is waited for
	cancel()
	log.Info("Waiting for running actions to finish")
	b.Wait()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

func runOneShot(cmd *cobra.Command, f *flags, action func(b *bridge.Bridge)) error {
	cfg, closeLog, err := loadConfig(cmd, f, false)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	h, err := connect(ctx, cfg, f)
	if err != nil {
		return err
	}

	return drive(ctx, h.PackageManager, nil, newConsoleSurface(cmd.OutOrStdout(), cmd.ErrOrStderr()), action, bridge.WithHost(h.String()))
}

func runSearch(cmd *cobra.Command, f *flags, query string) error {
	cfg, closeLog, err := loadConfig(cmd, f, false)
	if err != nil {
		return err
	}
	defer closeLog()

	index, err := search.Load(cfg.Search.Index)
	if err != nil {
		return err
	}
	if index == nil {
		log.Warn("No search index configured; set search.index or pass --index")
	}

	return drive(cmd.Context(), nil, index, newConsoleSurface(cmd.OutOrStdout(), cmd.ErrOrStderr()),
		func(b *bridge.Bridge) { b.Search(query) })
}

// drive runs action through a bridge and waits for it and its refresh.
func drive(ctx context.Context, tool pm.PackageManager, index *search.Index, surface *consoleSurface, action func(b *bridge.Bridge), opts ...bridge.Option) error {
	b := bridge.New(ctx, tool, index, surface, opts...)
	action(b)
	b.Wait()
	if surface.Failed() {
		return errFailed
	}
	return nil
}
