package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"drivescope/internal/app"
	"drivescope/internal/config"
	"drivescope/internal/fingerprint"
	"drivescope/internal/inspect"
	"drivescope/internal/model"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an InspectApp. The caller must defer
// app.Close(). operation identifies the CLI command being run.
func newApp(cmd *cobra.Command, operation string) (*app.InspectApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	opts := app.OptionsFromConfig(cfg)
	if f := cmd.Flags(); f != nil {
		if v, err := f.GetBool("no-hash"); err == nil && v {
			opts.NoHash = true
		}
		if v, err := f.GetBool("verify-strong"); err == nil && v {
			opts.VerifyStrong = true
		}
		// Non-interactive runs cannot answer review prompts, so they take
		// the defaults.
		if v, err := f.GetBool("auto-resolve"); err == nil {
			opts.AutoResolve = v || !term.IsTerminal(int(os.Stdin.Fd()))
		}
	}

	a, err := app.NewInspectApp(cfg, operation, opts)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM, so a stage
// interrupted mid-run is left resumable instead of half-recorded.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// parseStage maps a CLI stage argument (ordinal or name) to its ordinal.
func parseStage(arg string) (int, error) {
	for ordinal := 1; ordinal <= 4; ordinal++ {
		if arg == fmt.Sprintf("%d", ordinal) || arg == inspect.StageName(ordinal) {
			return ordinal, nil
		}
	}
	return 0, fmt.Errorf("unknown stage %q (use 1-4 or health, os_identify, metadata_capture, review)", arg)
}

// promptPassphrase reads a passphrase without echo when stdin is a terminal.
func promptPassphrase(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("stdin is not a terminal: cannot prompt for passphrase")
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

var rootCmd = &cobra.Command{
	Use:   "drivescope",
	Short: "Legacy drive inspection workbench",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init STATION_NAME",
	Short: "Initialize configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(args[0], defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		// The ledger and archive expect their directories to exist.
		for _, dir := range []string{cfg.Database.DataDir, cfg.Archive.FSArchiveRoot, cfg.LogDir} {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("creating %s: %w", dir, err)
			}
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Station:  %s\n", cfg.Station)
		fmt.Printf("Base Dir: %s\n", cfg.BaseDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Station:  %s\n", cfg.Station)
		fmt.Printf("Base Dir: %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:  %s\n", cfg.LogDir)
		fmt.Printf("Database: %s (%s)\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Printf("Archive:  %s\n", cfg.Archive.Type)
		return nil
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Initialize the export encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "config-keys")
		if err != nil {
			return err
		}
		defer a.Close()

		passphrase, err := promptPassphrase("Passphrase for new key pair: ")
		if err != nil {
			return err
		}
		confirm, err := promptPassphrase("Confirm passphrase: ")
		if err != nil {
			return err
		}
		if passphrase != confirm {
			return fmt.Errorf("passphrases do not match")
		}

		if err := a.SetupEncryption(passphrase); err != nil {
			return fmt.Errorf("generating key pair: %w", err)
		}

		fmt.Println("Export key pair generated.")
		return nil
	},
}

// inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect DRIVE_PATH [STAGE]",
	Short: "Inspect a mounted drive",
	Long: `Inspect a mounted drive. With a STAGE argument (1-4 or a stage name)
runs that single stage and prints its report as JSON. Without one, runs
every remaining stage in order.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, _ := cmd.Flags().GetString("session")
		trackingRef, _ := cmd.Flags().GetString("tracking-ref")

		a, err := newApp(cmd, "inspect")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signalContext()
		defer stop()

		if len(args) == 2 {
			ordinal, err := parseStage(args[1])
			if err != nil {
				return err
			}

			session, stage, err := a.RunStage(ctx, args[0], ordinal, sessionID, trackingRef)
			if err != nil {
				return err
			}

			fmt.Fprintf(os.Stderr, "Session: %s\nStage %d (%s): %s\n",
				session.ID, stage.Ordinal, stage.Name, stage.Status)
			if stage.Status == model.StageFailed {
				return fmt.Errorf("stage %s: %s", stage.Name, stage.ErrorText)
			}
			fmt.Println(stage.ReportJSON)
			return nil
		}

		session, stages, err := a.RunAll(ctx, args[0], sessionID, trackingRef)
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stderr, "Session: %s\n", session.ID)
		var failed bool
		for _, st := range stages {
			fmt.Fprintf(os.Stderr, "Stage %d (%s): %s\n", st.Ordinal, st.Name, st.Status)
			if st.Status == model.StageFailed {
				fmt.Fprintf(os.Stderr, "  %s\n", st.ErrorText)
				failed = true
			}
		}
		if failed {
			return fmt.Errorf("inspection incomplete: resume with --session %s", session.ID)
		}

		report, err := a.StageReport(session.ID, 4)
		if err != nil {
			return err
		}
		fmt.Println(report)
		return nil
	},
}

// sessions command
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List inspection sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, "sessions")
		if err != nil {
			return err
		}
		defer a.Close()

		sessions, err := a.Sessions(limit)
		if err != nil {
			return err
		}

		if len(sessions) == 0 {
			fmt.Println("No sessions recorded.")
			return nil
		}

		for _, s := range sessions {
			completed := "-"
			if s.CompletedAt != nil {
				completed = s.CompletedAt.Format("2006-01-02 15:04:05")
			}
			fmt.Printf("%s  %s  %-9s  stage %d/4  %s\n",
				s.ID,
				s.StartedAt.Format("2006-01-02 15:04:05"),
				s.Status,
				s.CurrentStage,
				completed,
			)
		}
		return nil
	},
}

// resume command
var resumeCmd = &cobra.Command{
	Use:   "resume SESSION_ID DRIVE_PATH",
	Short: "Resume an interrupted session",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "resume")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signalContext()
		defer stop()

		session, stages, err := a.RunAll(ctx, args[1], args[0], "")
		if err != nil {
			return err
		}

		if len(stages) == 0 {
			fmt.Println("Nothing to do: all stages already finished.")
			return nil
		}
		for _, st := range stages {
			fmt.Printf("Stage %d (%s): %s\n", st.Ordinal, st.Name, st.Status)
			if st.Status == model.StageFailed {
				return fmt.Errorf("stage %s: %s", st.Name, st.ErrorText)
			}
		}
		fmt.Printf("Session %s finished.\n", session.ID)
		return nil
	},
}

// report command
var reportCmd = &cobra.Command{
	Use:   "report SESSION_ID [STAGE]",
	Short: "Print a stored stage report",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "report")
		if err != nil {
			return err
		}
		defer a.Close()

		ordinal := 4
		if len(args) == 2 {
			ordinal, err = parseStage(args[1])
			if err != nil {
				return err
			}
		}

		report, err := a.StageReport(args[0], ordinal)
		if err != nil {
			return err
		}
		fmt.Println(report)
		return nil
	},
}

// decisions command
var decisionsCmd = &cobra.Command{
	Use:   "decisions SESSION_ID",
	Short: "List a session's pending decision points",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "decisions")
		if err != nil {
			return err
		}
		defer a.Close()

		points, err := a.PendingDecisions(args[0])
		if err != nil {
			return err
		}

		if len(points) == 0 {
			fmt.Println("No pending decisions.")
			return nil
		}

		for _, p := range points {
			fmt.Printf("%s: %s\n", p.DecisionID, p.Title)
			fmt.Printf("  %s\n", p.Description)
			for _, o := range p.Options {
				marker := " "
				if o.ID == p.DefaultOption {
					marker = "*"
				}
				fmt.Printf("  %s %-22s %s\n", marker, o.ID, o.Label)
			}
		}
		return nil
	},
}

// resolve command
var resolveCmd = &cobra.Command{
	Use:   "resolve SESSION_ID KEY VALUE",
	Short: "Resolve a decision point",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		notes, _ := cmd.Flags().GetString("notes")

		a, err := newApp(cmd, "resolve")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.ResolveDecision(args[0], args[1], args[2], notes); err != nil {
			return err
		}

		fmt.Printf("Resolved %s = %s\n", args[1], args[2])
		return nil
	},
}

// compare command
var compareCmd = &cobra.Command{
	Use:   "compare FILE_A FILE_B",
	Short: "Compare two files by content fingerprint",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		same, reason, err := fingerprint.Compare(args[0], args[1])
		if err != nil {
			return err
		}
		if !same {
			fmt.Printf("Files differ: %s\n", reason)
			os.Exit(1)
		}
		fmt.Printf("Files are identical: %s\n", reason)
		return nil
	},
}

// export command
var exportCmd = &cobra.Command{
	Use:   "export SESSION_ID",
	Short: "Archive a session's report bundle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		encrypt, _ := cmd.Flags().GetBool("encrypt")

		a, err := newApp(cmd, "export")
		if err != nil {
			return err
		}
		defer a.Close()

		start := time.Now()
		if err := a.Export(args[0], encrypt); err != nil {
			return fmt.Errorf("export failed: %w", err)
		}

		fmt.Printf("Exported session %s in %s\n", args[0], time.Since(start).Truncate(time.Millisecond))
		return nil
	},
}

// fetch command
var fetchCmd = &cobra.Command{
	Use:   "fetch SESSION_ID NAME",
	Short: "Retrieve an archived bundle item to stdout",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		decrypt, _ := cmd.Flags().GetBool("decrypt")

		a, err := newApp(cmd, "fetch")
		if err != nil {
			return err
		}
		defer a.Close()

		var passphrase string
		if decrypt {
			passphrase, err = promptPassphrase("Passphrase: ")
			if err != nil {
				return err
			}
		}

		return a.FetchBundle(args[0], args[1], passphrase, os.Stdout)
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configKeysCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().String("session", "", "Resume an existing session instead of starting a new one")
	inspectCmd.Flags().String("tracking-ref", "", "External ticket reference to attach to a new session")
	inspectCmd.Flags().Bool("no-hash", false, "Catalog files without fingerprinting")
	inspectCmd.Flags().Bool("verify-strong", false, "Confirm duplicate groups with full-content hashes")
	inspectCmd.Flags().Bool("auto-resolve", false, "Resolve review decision points with their defaults")
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.Flags().IntP("limit", "n", 50, "Maximum number of sessions to show")
	rootCmd.AddCommand(resumeCmd)
	resumeCmd.Flags().Bool("no-hash", false, "Catalog files without fingerprinting")
	resumeCmd.Flags().Bool("verify-strong", false, "Confirm duplicate groups with full-content hashes")
	resumeCmd.Flags().Bool("auto-resolve", false, "Resolve review decision points with their defaults")
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(decisionsCmd)
	rootCmd.AddCommand(resolveCmd)
	resolveCmd.Flags().String("notes", "", "Free-form note to record with the resolution")
	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().Bool("encrypt", false, "Encrypt bundle items before upload")
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().Bool("decrypt", false, "Decrypt the item with the export key")
}
