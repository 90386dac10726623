package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"library-circulation/barcode"
	"library-circulation/circulation"
	"library-circulation/internal/auth"
	"library-circulation/internal/config"
	"library-circulation/internal/httpapi"
	"library-circulation/internal/logging"
	"library-circulation/library"
	"library-circulation/scanner"
)

var (
	// Global flags
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "library",
	Short: "Library circulation desk",
	Long: `Library circulation desk: catalog, members and barcode-driven checkout/return.

Run without arguments to start the interactive console.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		logger, err = logging.New(level, cfg.Logging.Development)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConsole(cmd.Context())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the JSON API",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := openManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		api := httpapi.New(newService(mgr), mgr, auth.NewGate(cfg.Staff), cfg.Barcode.Prefix, logger)
		return api.ListenAndServe(ctx, cfg.HTTP.Addr)
	},
}

var (
	scanIntent string
	scanMember int64
	scanActor  string
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Process barcode scanner input from the terminal",
	Long: `Puts the terminal into raw mode and treats fast keystroke bursts ending in
Enter as barcode scans. Tab switches between checkout, return and inventory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		intent, err := circulation.ParseIntent(scanIntent)
		if err != nil {
			return err
		}
		mgr, err := openManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		actor, err := staffLogin(cfg.Staff, scanActor)
		if err != nil {
			return err
		}

		session := &scanSession{
			svc:      newService(mgr),
			out:      os.Stdout,
			intent:   intent,
			memberID: scanMember,
			actor:    actor,
		}
		return runScanSession(cmd.Context(), os.Stdin, session, time.Now,
			scanner.WithSpeedThreshold(cfg.Scanner.SpeedThreshold),
			scanner.WithMinLength(cfg.Scanner.MinLength))
	},
}

var barcodeCmd = &cobra.Command{
	Use:   "barcode",
	Short: "Generate and validate barcodes",
}

var barcodePrefix string

var barcodeGenerateCmd = &cobra.Command{
	Use:   "generate [identifier]",
	Short: "Print a barcode for identifier, or a random one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), barcode.GenerateRandom(barcode.DefaultSource))
			return nil
		}
		prefix := barcodePrefix
		if prefix == "" {
			prefix = cfg.Barcode.Prefix
		}
		fmt.Fprintln(cmd.OutOrStdout(), barcode.GenerateWithPrefix(args[0], prefix))
		return nil
	},
}

var barcodeValidateCmd = &cobra.Command{
	Use:   "validate <code>...",
	Short: "Check barcodes; exits non-zero if any is invalid",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bad := 0
		for _, code := range args {
			c, err := barcode.Parse(code)
			if err != nil {
				bad++
				fmt.Fprintf(cmd.OutOrStdout(), "%-30s invalid (%v)\n", code, err)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-30s ok prefix=%s id=%s checksum=%02d\n", code, c.Prefix, c.Identifier, c.Checksum)
		}
		if bad > 0 {
			return fmt.Errorf("%d of %d barcodes invalid", bad, len(args))
		}
		return nil
	},
}

var staffCmd = &cobra.Command{
	Use:   "staff",
	Short: "Manage the staff allowlist",
}

var staffHashCmd = &cobra.Command{
	Use:   "hash <username>",
	Short: "Print a staff entry for the config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readPassword(fmt.Sprintf("Password for %s: ", args[0]))
		if err != nil {
			return err
		}
		hash, err := auth.HashPassword(password)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "staff:\n  - username: %s\n    password_hash: %q\n", args[0], hash)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "library.yaml", "Path to the YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	scanCmd.Flags().StringVar(&scanIntent, "intent", "inventory", "Initial mode: checkout, return or inventory")
	scanCmd.Flags().Int64Var(&scanMember, "member", 0, "Member ID for checkouts")
	scanCmd.Flags().StringVar(&scanActor, "staff", "", "Staff username (prompted when the allowlist is set)")

	barcodeGenerateCmd.Flags().StringVar(&barcodePrefix, "prefix", "", "Barcode prefix (default from config)")

	barcodeCmd.AddCommand(barcodeGenerateCmd)
	barcodeCmd.AddCommand(barcodeValidateCmd)
	staffCmd.AddCommand(staffHashCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(barcodeCmd)
	rootCmd.AddCommand(staffCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func openManager() (*library.LibraryManager, error) {
	mgr, err := library.NewLibraryManager(cfg.Database.Driver, cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	mgr.SetBarcodePrefix(cfg.Barcode.Prefix)
	return mgr, nil
}

func newService(mgr *library.LibraryManager) *circulation.Service {
	return circulation.NewService(mgr.Database(),
		circulation.WithLoanPeriod(cfg.Circulation.LoanPeriod),
		circulation.WithLogger(logger))
}

// readPassword securely reads a password with masking
func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", err
	}
	fmt.Println() // Add newline after password input
	return strings.TrimSpace(string(bytePassword)), nil
}

// staffLogin checks the desk operator against the allowlist and returns the
// name recorded in the audit log. With no allowlist the given name is used as is.
func staffLogin(accounts []auth.Account, username string) (string, error) {
	gate := auth.NewGate(accounts)
	if gate.Open() {
		return username, nil
	}
	if username == "" {
		fmt.Print("Staff username: ")
		if _, err := fmt.Scanln(&username); err != nil {
			return "", fmt.Errorf("read username: %w", err)
		}
	}
	if !gate.Allowed(username) {
		return "", fmt.Errorf("%q: %w", username, auth.ErrNotAllowed)
	}
	password, err := readPassword("Staff password: ")
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if err := gate.Authorize(username, password); err != nil {
		return "", err
	}
	return username, nil
}
