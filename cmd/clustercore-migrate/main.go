package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/sbdlabs/clustercore/pkg/cache"
	"github.com/sbdlabs/clustercore/pkg/migration"
	"github.com/sbdlabs/clustercore/pkg/storage"
	"github.com/sbdlabs/clustercore/pkg/types"
)

var (
	dataDir     = flag.String("data-dir", "./clustercore-data", "clustercore data directory")
	action      = flag.String("action", "", "export | import | rollback | validate")
	collections = flag.String("collections", "", "comma-separated collection names (default: all)")
	compression = flag.String("compression", "gzip", "none | gzip | bzip2 (bzip2 import-only)")
	encrypt     = flag.Bool("encrypt", false, "encrypt the export package")
	packagePath = flag.String("package", "", "package file path for import/validate")
	migrationID = flag.String("migration-id", "", "migration id for rollback")
	conflict    = flag.String("conflict", "skip", "skip | overwrite | fail (import only)")
	userID      = flag.String("user", "operator", "acting user id, recorded in the audit trail")
	tenantID    = flag.String("tenant", "", "tenant id (empty for the default tenant)")
	confirm     = flag.Bool("confirm", false, "required to perform a rollback")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if *action == "" {
		log.Fatal("--action is required (export | import | rollback | validate)")
	}

	store, err := storage.NewBoltStore(*dataDir)
	if err != nil {
		log.Fatalf("opening store: %v", err)
	}
	defer store.Close()

	localCache := cache.NewMemoryCache()
	lock := migration.NewTenantLock(localCache)
	limiter := migration.NewRateLimiter(localCache, 1)
	audit := migration.NewAuditLogger(store)
	migCfg := migration.DefaultConfig()

	switch *action {
	case "export":
		runExport(store, lock, limiter, audit, migCfg)
	case "import":
		runImport(store, lock, limiter, audit, migCfg, false)
	case "validate":
		runImport(store, lock, limiter, audit, migCfg, true)
	case "rollback":
		runRollback(store, audit, migCfg)
	default:
		log.Fatalf("unknown --action %q", *action)
	}
}

func splitCollections() []string {
	if *collections == "" {
		return nil
	}
	return splitComma(*collections)
}

func splitComma(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func runExport(store storage.Store, lock *migration.TenantLock, limiter *migration.RateLimiter, audit *migration.AuditLogger, cfg migration.Config) {
	exporter := migration.NewExporter(store, nil, lock, limiter, audit, cfg)
	rec, err := exporter.Export(migration.ExportRequest{
		Collections:    splitCollections(),
		IncludeIndexes: true,
		Compression:    types.Compression(*compression),
		Encrypt:        *encrypt,
		Description:    "cli export",
		UserID:         *userID,
		TenantID:       *tenantID,
	})
	if err != nil {
		log.Fatalf("export failed: %v", err)
	}
	printJSON(rec)
}

func runImport(store storage.Store, lock *migration.TenantLock, limiter *migration.RateLimiter, audit *migration.AuditLogger, cfg migration.Config, validateOnly bool) {
	if *packagePath == "" {
		log.Fatal("--package is required")
	}
	raw, err := os.ReadFile(*packagePath)
	if err != nil {
		log.Fatalf("reading package: %v", err)
	}
	importer := migration.NewImporter(store, nil, lock, limiter, audit, cfg)
	rec, err := importer.Import(migration.ImportRequest{
		RawPackage:         raw,
		ContentType:        "application/gzip",
		Collections:        splitCollections(),
		ConflictResolution: migration.ConflictResolution(*conflict),
		CreateRollback:     true,
		ValidateOnly:       validateOnly,
		UserID:             *userID,
		TenantID:           *tenantID,
	})
	if err != nil {
		log.Fatalf("import failed: %v", err)
	}
	if validateOnly {
		fmt.Println("package is valid")
		return
	}
	printJSON(rec)
}

func runRollback(store storage.Store, audit *migration.AuditLogger, cfg migration.Config) {
	if *migrationID == "" {
		log.Fatal("--migration-id is required")
	}
	rb := migration.NewRollbacker(store, nil, audit, cfg)
	if err := rb.Rollback(*migrationID, *confirm, *userID); err != nil {
		log.Fatalf("rollback failed: %v", err)
	}
	fmt.Println("rollback completed")
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
