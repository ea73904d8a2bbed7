// Package app is the application layer between the CLI and the tracker
// service. It constructs all dependencies from config and manages the
// database snapshot lifecycle on Close.
package app

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"

	"cvn-go/internal/config"
	"cvn-go/internal/courseville"
	"cvn-go/internal/database"
	"cvn-go/internal/encryption"
	"cvn-go/internal/line"
	"cvn-go/internal/model"
	"cvn-go/internal/tracker"
	"cvn-go/internal/vault"
)

// CVNApp wires the tracker service from config, exposes the high-level
// operations the CLI invokes, and uploads a database snapshot to the vault
// when a mutating run closes.
type CVNApp struct {
	cfg     *config.Config
	db      *database.SQLiteDatabase
	vault   tracker.Vault // nil when no vault is configured
	cipher  tracker.CredentialCipher
	service *tracker.Service
	logger  tracker.Logger
	op      *BatchOperation
	logFile *os.File
}

// NewCVNApp creates a fully wired CVNApp from the given config.
// operation identifies the CLI command being run (e.g. "Sync", "NotifyDue").
// The caller must call Close when done.
func NewCVNApp(cfg *config.Config, operation string) (*CVNApp, error) {
	db, err := database.NewDatabase(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}

	// In-memory databases get the schema applied directly and carry no
	// migration version to check.
	if cfg.Database.Type == "sqlite" {
		if err := db.CheckMigrations(); err != nil {
			db.Close()
			return nil, fmt.Errorf("database schema out of date: %w", err)
		}
	}

	var v tracker.Vault
	if len(cfg.Vaults) > 0 {
		v, err = vault.NewVaultFromConfig(context.Background(), cfg.Vaults[0])
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("creating vault: %w", err)
		}

		// A remote snapshot newer than the local run history means another
		// host (or a restored install) owns fresher notify state; syncing
		// from here would re-notify users.
		remoteVersion, err := v.SnapshotVersion(context.Background(), cfg.HostID)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("checking remote snapshot version: %w", err)
		}
		localMax, err := latestBatchRunID(db)
		if err != nil {
			db.Close()
			return nil, err
		}
		if remoteVersion > localMax {
			db.Close()
			return nil, fmt.Errorf("local database is behind the vault snapshot (local=%d, remote=%d): restore from vault or re-initialize", localMax, remoteVersion)
		}
	}

	cipher, err := encryption.NewCipherFromConfig(cfg.Encryption)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating credential cipher: %w", err)
	}

	runID := uuid.New().String()[:8]
	slogger, logFile, err := newLogger(cfg.LogDir, runID)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	clock := tracker.RealClock{}
	client := courseville.NewClient(cfg.Courseville, clock, logger)
	notifier := line.NewClient(cfg.Line, logger)

	svc := tracker.NewService(db, client, cipher, notifier, logger, clock,
		tracker.ServiceConfig{
			Workers:          cfg.Notify.Workers,
			NotifyWindowDays: cfg.Notify.WindowDays,
			OpenWindowDays:   cfg.Notify.OpenWindowDays,
			DetailBaseURL:    cfg.Courseville.AppBaseURL,
			Thresholds: tracker.Thresholds{
				Critical: cfg.Notify.CriticalSeconds,
				Warning:  cfg.Notify.WarningSeconds,
			},
		})

	return &CVNApp{
		cfg:     cfg,
		db:      db,
		vault:   v,
		cipher:  cipher,
		service: svc,
		logger:  logger,
		op:      NewBatchOperation(operation),
		logFile: logFile,
	}, nil
}

func latestBatchRunID(db *database.SQLiteDatabase) (int64, error) {
	runs, err := db.ListBatchRuns(1)
	if err != nil {
		return 0, fmt.Errorf("checking local run history: %w", err)
	}
	if len(runs) == 0 {
		return 0, nil
	}
	return runs[0].ID, nil
}

// persistRun saves the batch run to the database, giving it an
// auto-increment ID. Only called for DB-mutating commands.
func (a *CVNApp) persistRun() error {
	if a.op.Persisted() {
		return nil
	}
	run, err := a.db.CreateBatchRun(a.op.Operation)
	if err != nil {
		return fmt.Errorf("persisting batch run: %w", err)
	}
	a.op.ID = run.ID
	return nil
}

// Fail marks the current run as failed in the run history.
func (a *CVNApp) Fail() {
	a.op.Fail()
}

// Sync fetches and persists assignments for every registered user.
func (a *CVNApp) Sync(ctx context.Context) (*tracker.SyncReport, error) {
	if err := a.persistRun(); err != nil {
		return nil, err
	}
	return a.service.SyncAll(ctx)
}

// Notify dispatches due notifications with per-threshold deduplication.
func (a *CVNApp) Notify(ctx context.Context) (*tracker.NotifyReport, error) {
	if err := a.persistRun(); err != nil {
		return nil, err
	}
	return a.service.NotifyDue(ctx)
}

// Run executes a full batch: sync, then notify.
func (a *CVNApp) Run(ctx context.Context) error {
	if err := a.persistRun(); err != nil {
		return err
	}
	return a.service.Run(ctx)
}

// AddUser seals the credentials and registers (or replaces) a user.
func (a *CVNApp) AddUser(userID, displayName, recipientID string, creds tracker.Credentials) error {
	if !a.cipher.IsConfigured() {
		return fmt.Errorf("credential keys not set up (run `cvn keys init` first)")
	}
	if err := a.persistRun(); err != nil {
		return err
	}
	return a.service.RegisterUser(userID, displayName, recipientID, creds)
}

// RemoveUser deletes a user and their assignment links.
func (a *CVNApp) RemoveUser(userID string) error {
	if err := a.persistRun(); err != nil {
		return err
	}
	return a.service.RemoveUser(userID)
}

// ListUsers returns all registered users.
func (a *CVNApp) ListUsers() ([]model.User, error) {
	return a.service.ListUsers()
}

// History returns the most recent batch runs.
func (a *CVNApp) History(limit int) ([]*model.BatchRun, error) {
	return a.db.ListBatchRuns(limit)
}

// Backup forces a snapshot upload on Close by persisting a run.
func (a *CVNApp) Backup() error {
	if a.vault == nil {
		return fmt.Errorf("no vault configured")
	}
	if err := a.vault.ValidateSetup(context.Background()); err != nil {
		return fmt.Errorf("validating vault: %w", err)
	}
	return a.persistRun()
}

// Close finalizes the run and closes all resources. For persisted runs it
// finishes the run record, snapshots the database and uploads the snapshot
// to the vault with version = run ID. Non-mutating runs just close the
// database.
func (a *CVNApp) Close() error {
	var firstErr error

	if a.op.Persisted() {
		if err := a.db.FinishBatchRun(a.op.ID, a.op.Status); err != nil {
			firstErr = fmt.Errorf("finishing batch run: %w", err)
		}

		var tmpPath string
		if a.vault != nil {
			tmpFile, err := os.CreateTemp("", "cvn-db-snapshot-*.db")
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("creating temp file for db snapshot: %w", err)
				}
			} else {
				tmpPath = tmpFile.Name()
				tmpFile.Close()

				if err := a.db.BackupTo(tmpPath); err != nil {
					if firstErr == nil {
						firstErr = fmt.Errorf("snapshotting database: %w", err)
					}
					tmpPath = "" // skip vault upload
				}
			}
		}

		if err := a.db.Close(); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("closing database: %w", err)
			}
		}

		if tmpPath != "" {
			if err := a.uploadSnapshot(tmpPath, a.op.ID); err != nil {
				if firstErr == nil {
					firstErr = err
				}
			}
			os.Remove(tmpPath)
		}
	} else {
		if err := a.db.Close(); err != nil {
			firstErr = fmt.Errorf("closing database: %w", err)
		}
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}

// uploadSnapshot opens the snapshot file and uploads it to the vault.
func (a *CVNApp) uploadSnapshot(path string, version int64) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening db snapshot for upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat db snapshot: %w", err)
	}

	if err := a.vault.PutSnapshot(context.Background(), a.cfg.HostID, f, info.Size(), version); err != nil {
		return fmt.Errorf("uploading snapshot to vault: %w", err)
	}
	return nil
}
