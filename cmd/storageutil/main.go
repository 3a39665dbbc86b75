package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"convexpanel-go/internal/config"
	"convexpanel-go/internal/store"
)

// storageutil moves deploy-key records between credential stores, e.g. when
// switching a workstation from the file store to redis or when backing up
// before reinstalling.

type exportedKey struct {
	Key      string            `json:"key"`
	Metadata store.KeyMetadata `json:"metadata"`
}

type snapshot struct {
	ExportedAt  time.Time              `json:"exported_at"`
	Deployments map[string]exportedKey `json:"deployments"`
}

func main() {
	mode := flag.String("mode", "", "operation mode: export | import | verify")
	filePath := flag.String("file", "", "file path for export/import/verify (default: stdout/stdin)")
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	timeout := flag.Duration("timeout", 30*time.Second, "operation timeout")
	flag.Parse()

	if *mode == "" {
		fail(fmt.Errorf("missing -mode (export|import|verify)"))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fail(errors.New("failed to load configuration"))
	}
	if err := cfg.ValidateAndExpandPaths(); err != nil {
		fail(fmt.Errorf("invalid configuration paths: %w", err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	s, err := buildStore(ctx, cfg)
	if err != nil {
		fail(fmt.Errorf("build credential store: %w", err))
	}
	defer s.Close()

	switch strings.ToLower(*mode) {
	case "export":
		if err := runExport(ctx, s, *filePath); err != nil {
			fail(err)
		}
	case "import":
		if err := runImport(ctx, s, *filePath); err != nil {
			fail(err)
		}
	case "verify":
		matches, err := runVerify(ctx, s, *filePath)
		if err != nil {
			fail(err)
		}
		if !matches {
			os.Exit(1)
		}
	default:
		fail(fmt.Errorf("unknown mode %q (expected export|import|verify)", *mode))
	}
}

func takeSnapshot(ctx context.Context, s store.Store) (snapshot, error) {
	names, err := s.ListDeployments(ctx)
	if err != nil {
		return snapshot{}, fmt.Errorf("list deployments: %w", err)
	}
	snap := snapshot{ExportedAt: time.Now().UTC(), Deployments: make(map[string]exportedKey, len(names))}
	for _, name := range names {
		key, meta, err := s.LoadDeploymentKey(ctx, name)
		if err != nil {
			if store.IsNotFound(err) {
				continue
			}
			return snapshot{}, fmt.Errorf("load key for %s: %w", name, err)
		}
		snap.Deployments[name] = exportedKey{Key: key, Metadata: meta}
	}
	return snap, nil
}

func runExport(ctx context.Context, s store.Store, path string) error {
	snap, err := takeSnapshot(ctx, s)
	if err != nil {
		return err
	}
	var w io.Writer = os.Stdout
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create export directory: %w", err)
		}
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("open export file: %w", err)
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("write export json: %w", err)
	}
	return nil
}

func runImport(ctx context.Context, s store.Store, path string) error {
	snap, err := readSnapshot(path)
	if err != nil {
		return fmt.Errorf("read import json: %w", err)
	}
	for name, entry := range snap.Deployments {
		if err := s.SaveDeploymentKey(ctx, name, entry.Key, entry.Metadata); err != nil {
			return fmt.Errorf("import key for %s: %w", name, err)
		}
	}
	fmt.Printf("imported %d deployment key(s)\n", len(snap.Deployments))
	return nil
}

func runVerify(ctx context.Context, s store.Store, path string) (bool, error) {
	expected, err := readSnapshot(path)
	if err != nil {
		return false, fmt.Errorf("read reference json: %w", err)
	}
	current, err := takeSnapshot(ctx, s)
	if err != nil {
		return false, err
	}
	if deepEqualKeys(expected.Deployments, current.Deployments) {
		fmt.Println("credential store matches reference snapshot")
		return true, nil
	}
	fmt.Println("credential store diverges from reference snapshot")
	return false, nil
}

func readSnapshot(path string) (snapshot, error) {
	var r io.Reader = os.Stdin
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return snapshot{}, err
		}
		defer f.Close()
		r = f
	}
	var snap snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return snapshot{}, err
	}
	return snap, nil
}

func deepEqualKeys(a, b map[string]exportedKey) bool {
	ab, _ := json.Marshal(a)
	bb, _ := json.Marshal(b)
	return string(ab) == string(bb)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "storageutil:", err)
	os.Exit(1)
}

func buildStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.StorageBackend))
	if backend == "" {
		backend = "file"
	}

	switch backend {
	case "file":
		fb := store.NewFileStore(cfg.SecretsDir)
		if err := fb.Initialize(ctx); err != nil {
			return nil, err
		}
		return fb, nil
	case "redis":
		addr := cfg.RedisAddr
		if addr == "" {
			addr = "localhost:6379"
		}
		rb := store.NewRedisStore(addr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix)
		if err := rb.Initialize(ctx); err != nil {
			return nil, err
		}
		return rb, nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", backend)
	}
}
