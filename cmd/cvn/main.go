package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"cvn-go/internal/app"
	"cvn-go/internal/config"
	"cvn-go/internal/database"
	"cvn-go/internal/encryption"
	"cvn-go/internal/tracker"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates a CVNApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Sync", "NotifyDue").
func newApp(operation string) (*app.CVNApp, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewCVNApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

func readConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

var rootCmd = &cobra.Command{
	Use:   "cvn",
	Short: "Course assignment tracker and deadline notifier",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		hostID := uuid.New().String()
		cfg := config.NewConfig(hostID, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Host ID: %s\n", hostID)
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
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
		fmt.Printf("Host ID:      %s\n", cfg.HostID)
		fmt.Printf("Base Dir:     %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:      %s\n", cfg.LogDir)
		fmt.Printf("Remote:       %s\n", cfg.Courseville.BaseURL)
		fmt.Printf("Push channel: %s\n", cfg.Line.Endpoint)
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage credential encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the credential key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		cipher, err := encryption.NewCipherFromConfig(cfg.Encryption)
		if err != nil {
			return fmt.Errorf("creating credential cipher: %w", err)
		}

		if err := cipher.Setup(); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}

		fmt.Printf("Key pair generated:\n")
		fmt.Printf("  public:  %s\n", cfg.Encryption.PublicKeyPath)
		fmt.Printf("  private: %s\n", cfg.Encryption.PrivateKeyPath)
		return nil
	},
}

// user command
var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage tracked users",
}

var userAddCmd = &cobra.Command{
	Use:   "add USER_ID",
	Short: "Register a user for tracking",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		recipient, _ := cmd.Flags().GetString("recipient")
		if recipient == "" {
			return fmt.Errorf("--recipient (LINE user ID) is required")
		}

		userID := args[0]
		creds, err := promptCredentials(userID)
		if err != nil {
			return err
		}

		a, err := newApp("AddUser")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.AddUser(userID, name, recipient, creds); err != nil {
			a.Fail()
			return fmt.Errorf("registering user: %w", err)
		}

		fmt.Printf("Registered user %s\n", userID)
		return nil
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked users",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ListUsers")
		if err != nil {
			return err
		}
		defer a.Close()

		users, err := a.ListUsers()
		if err != nil {
			return err
		}

		if len(users) == 0 {
			fmt.Println("No users registered.")
			return nil
		}

		for _, u := range users {
			name := u.DisplayName
			if name == "" {
				name = "-"
			}
			fmt.Printf("%-12s  %-20s  %s\n", u.ID, name, u.RecipientID)
		}
		return nil
	},
}

var userRmCmd = &cobra.Command{
	Use:   "rm USER_ID",
	Short: "Remove a tracked user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("RemoveUser")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.RemoveUser(args[0]); err != nil {
			a.Fail()
			return fmt.Errorf("removing user: %w", err)
		}

		fmt.Printf("Removed user %s\n", args[0])
		return nil
	},
}

// sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch assignments for all users",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Sync")
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Sync(cmd.Context())
		if err != nil {
			a.Fail()
			return fmt.Errorf("sync failed: %w", err)
		}

		fmt.Printf("Synced %d/%d user(s), %d failed\n", report.Synced, report.Users, report.Failed)
		if report.Failed > 0 {
			a.Fail()
		}
		return nil
	},
}

// notify command
var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Dispatch due-date notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("NotifyDue")
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Notify(cmd.Context())
		if err != nil {
			a.Fail()
			return fmt.Errorf("notify failed: %w", err)
		}

		fmt.Printf("Notified %d/%d user(s), %d failed\n", report.Notified, report.Users, report.Failed)
		if report.Failed > 0 {
			a.Fail()
		}
		return nil
	},
}

// run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a full batch: sync, then notify",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Run")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Run(cmd.Context()); err != nil {
			a.Fail()
			return fmt.Errorf("batch failed: %w", err)
		}

		fmt.Println("Batch complete")
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View batch run history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("History")
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.History(limit)
		if err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Println("No batch runs recorded.")
			return nil
		}

		for _, r := range runs {
			duration := ""
			if r.FinishedAt != nil {
				d := r.FinishedAt.Sub(r.StartedAt)
				duration = d.Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-12s  %s  %-8s  %s\n",
				r.ID,
				r.Operation,
				r.StartedAt.Format("2006-01-02 15:04:05"),
				r.Status,
				duration,
			)
		}
		return nil
	},
}

// backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Upload a database snapshot to the vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Backup")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Backup(); err != nil {
			a.Fail()
			return fmt.Errorf("backup failed: %w", err)
		}

		fmt.Println("Snapshot will be uploaded on close")
		return nil
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the local database",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		// Open the database directly: the app layer refuses to start on an
		// out-of-date schema, which is exactly the state this command fixes.
		db, err := database.NewDatabase(cfg.Database)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()

		if err := db.MigrateUp(); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}

		fmt.Println("Database schema is up to date")
		return nil
	},
}

// promptCredentials reads the remote-site username and password from the
// terminal. The password is read without echo.
func promptCredentials(defaultUsername string) (tracker.Credentials, error) {
	reader := bufio.NewReader(os.Stdin)

	fmt.Printf("Remote username [%s]: ", defaultUsername)
	username, err := reader.ReadString('\n')
	if err != nil {
		return tracker.Credentials{}, fmt.Errorf("reading username: %w", err)
	}
	username = strings.TrimSpace(username)
	if username == "" {
		username = defaultUsername
	}

	fmt.Print("Remote password: ")
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return tracker.Credentials{}, fmt.Errorf("reading password: %w", err)
	}
	if len(password) == 0 {
		return tracker.Credentials{}, fmt.Errorf("password must not be empty")
	}

	return tracker.Credentials{Username: username, Password: string(password)}, nil
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	keysCmd.AddCommand(keysInitCmd)

	userCmd.AddCommand(userAddCmd)
	userAddCmd.Flags().String("name", "", "Display name for the user")
	userAddCmd.Flags().String("recipient", "", "LINE user ID that receives notifications")
	userCmd.AddCommand(userListCmd)
	userCmd.AddCommand(userRmCmd)

	dbCmd.AddCommand(dbMigrateCmd)

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(notifyCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of runs to show")
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(dbCmd)
}
