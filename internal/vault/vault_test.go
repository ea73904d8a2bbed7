package vault

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"cvn-go/internal/config"
	"cvn-go/internal/tracker"
)

// vaultFactory builds a fresh vault for the shared behavior tests.
type vaultFactory func(t *testing.T) tracker.Vault

func testVaults() map[string]vaultFactory {
	return map[string]vaultFactory{
		"memory": func(t *testing.T) tracker.Vault {
			return NewMemoryVault("test")
		},
		"filesystem": func(t *testing.T) tracker.Vault {
			v, err := NewFileSystemVault("test", t.TempDir())
			if err != nil {
				t.Fatalf("NewFileSystemVault() error = %v", err)
			}
			return v
		},
	}
}

func TestVault_SnapshotRoundTrip(t *testing.T) {
	for name, factory := range testVaults() {
		t.Run(name, func(t *testing.T) {
			v := factory(t)
			ctx := context.Background()
			data := "sqlite snapshot bytes"

			err := v.PutSnapshot(ctx, "host-1", strings.NewReader(data), int64(len(data)), 7)
			if err != nil {
				t.Fatalf("PutSnapshot() error = %v", err)
			}

			var buf bytes.Buffer
			if err := v.GetSnapshot(ctx, "host-1", &buf); err != nil {
				t.Fatalf("GetSnapshot() error = %v", err)
			}
			if buf.String() != data {
				t.Errorf("got snapshot %q, want %q", buf.String(), data)
			}

			version, err := v.SnapshotVersion(ctx, "host-1")
			if err != nil {
				t.Fatalf("SnapshotVersion() error = %v", err)
			}
			if version != 7 {
				t.Errorf("got version %d, want 7", version)
			}
		})
	}
}

func TestVault_SnapshotOverwrite(t *testing.T) {
	for name, factory := range testVaults() {
		t.Run(name, func(t *testing.T) {
			v := factory(t)
			ctx := context.Background()

			for i, data := range []string{"first", "second"} {
				err := v.PutSnapshot(ctx, "host-1", strings.NewReader(data), int64(len(data)), int64(i+1))
				if err != nil {
					t.Fatalf("PutSnapshot() #%d error = %v", i+1, err)
				}
			}

			var buf bytes.Buffer
			if err := v.GetSnapshot(ctx, "host-1", &buf); err != nil {
				t.Fatalf("GetSnapshot() error = %v", err)
			}
			if buf.String() != "second" {
				t.Errorf("got snapshot %q, want %q", buf.String(), "second")
			}

			version, err := v.SnapshotVersion(ctx, "host-1")
			if err != nil {
				t.Fatalf("SnapshotVersion() error = %v", err)
			}
			if version != 2 {
				t.Errorf("got version %d, want 2", version)
			}
		})
	}
}

func TestVault_UnknownHost(t *testing.T) {
	for name, factory := range testVaults() {
		t.Run(name, func(t *testing.T) {
			v := factory(t)
			ctx := context.Background()

			version, err := v.SnapshotVersion(ctx, "nobody")
			if err != nil {
				t.Fatalf("SnapshotVersion() error = %v", err)
			}
			if version != 0 {
				t.Errorf("got version %d for unknown host, want 0", version)
			}

			var buf bytes.Buffer
			if err := v.GetSnapshot(ctx, "nobody", &buf); err == nil {
				t.Error("GetSnapshot() for unknown host succeeded, want error")
			}
		})
	}
}

func TestVault_SizeMismatch(t *testing.T) {
	for name, factory := range testVaults() {
		t.Run(name, func(t *testing.T) {
			v := factory(t)
			err := v.PutSnapshot(context.Background(), "host-1",
				strings.NewReader("short"), 100, 1)
			if err == nil {
				t.Error("PutSnapshot() with wrong size succeeded, want error")
			}
		})
	}
}

func TestVault_ValidateSetup(t *testing.T) {
	for name, factory := range testVaults() {
		t.Run(name, func(t *testing.T) {
			v := factory(t)
			if err := v.ValidateSetup(context.Background()); err != nil {
				t.Errorf("ValidateSetup() error = %v", err)
			}
		})
	}
}

func TestNewVaultFromConfig(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		v, err := NewVaultFromConfig(ctx, config.VaultConfig{Type: "memory", Name: "m"})
		if err != nil {
			t.Fatalf("NewVaultFromConfig() error = %v", err)
		}
		if _, ok := v.(*MemoryVault); !ok {
			t.Errorf("got %T, want *MemoryVault", v)
		}
	})

	t.Run("filesystem", func(t *testing.T) {
		v, err := NewVaultFromConfig(ctx, config.VaultConfig{
			Type: "filesystem", Name: "fs", FSVaultRoot: t.TempDir(),
		})
		if err != nil {
			t.Fatalf("NewVaultFromConfig() error = %v", err)
		}
		if _, ok := v.(*FileSystemVault); !ok {
			t.Errorf("got %T, want *FileSystemVault", v)
		}
	})

	t.Run("filesystem requires root", func(t *testing.T) {
		if _, err := NewVaultFromConfig(ctx, config.VaultConfig{Type: "filesystem"}); err == nil {
			t.Error("NewVaultFromConfig() without fs_vault_root succeeded, want error")
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		if _, err := NewVaultFromConfig(ctx, config.VaultConfig{Type: "tape"}); err == nil {
			t.Error("NewVaultFromConfig() with unknown type succeeded, want error")
		}
	})
}
