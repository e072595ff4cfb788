// Command htngctl is the operator CLI for the sync core. Two subcommands
// belong to the core boundary:
//
//	htngctl validate-config [--property ID | --all] [--fix] [--verbose]
//	htngctl cache-config [warm|clear|stats]
//
// validate-config exits 0 when every checked configuration is valid and
// non-zero on any invalid configuration or runtime error. cache-config warms
// or inspects the configuration cache by loading every stored configuration,
// and clears the running daemons' caches by publishing mapping-changed
// invalidation events on the event bus.
package main

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/lib/pq"

	"htngsync/internal/config"
	"htngsync/internal/eventbus"
	"htngsync/internal/mapping"
	"htngsync/internal/model"
)

func main() {
	log.SetFlags(0)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "validate-config":
		os.Exit(runValidateConfig(os.Args[2:]))
	case "cache-config":
		os.Exit(runCacheConfig(os.Args[2:]))
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: htngctl validate-config [--property ID | --all] [--fix] [--verbose]")
	fmt.Fprintln(os.Stderr, "       htngctl cache-config [warm|clear|stats]")
}

func openCredentialStore() (*mapping.CredentialStore, *sql.DB, error) {
	cfg := config.FromEnv()
	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	raw := os.Getenv("HTNG_CREDENTIAL_KEY")
	if raw == "" {
		db.Close()
		return nil, nil, fmt.Errorf("HTNG_CREDENTIAL_KEY must be set")
	}
	sum := sha256.Sum256([]byte(raw))
	store, err := mapping.NewCredentialStore(db, sum[:])
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return store, db, nil
}

func runValidateConfig(args []string) int {
	fs := flag.NewFlagSet("validate-config", flag.ExitOnError)
	propertyID := fs.Int64("property", 0, "validate a single property's configuration")
	all := fs.Bool("all", false, "validate every stored configuration")
	fix := fs.Bool("fix", false, "replace out-of-range sync settings with defaults")
	verbose := fs.Bool("verbose", false, "print every checked configuration, valid or not")
	_ = fs.Parse(args)

	if *propertyID == 0 && !*all {
		fmt.Fprintln(os.Stderr, "validate-config: one of --property ID or --all is required")
		return 2
	}

	store, db, err := openCredentialStore()
	if err != nil {
		log.Printf("htngctl: %v", err)
		return 1
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var configs []model.PropertyConfig
	if *all {
		configs, err = store.ListPropertyConfigs(ctx)
		if err != nil {
			log.Printf("htngctl: %v", err)
			return 1
		}
	} else {
		pc, ok, err := store.FindByPropertyID(ctx, *propertyID)
		if err != nil {
			log.Printf("htngctl: %v", err)
			return 1
		}
		if !ok {
			log.Printf("htngctl: no configuration for property %d", *propertyID)
			return 1
		}
		configs = []model.PropertyConfig{pc}
	}

	invalid := 0
	for _, pc := range configs {
		if *fix {
			if fixes := mapping.FixConfig(&pc); len(fixes) > 0 {
				if err := store.Upsert(ctx, pc); err != nil {
					log.Printf("htngctl: property %d: save fixed config: %v", pc.PropertyID, err)
					return 1
				}
				for _, f := range fixes {
					log.Printf("property %d: fixed %s", pc.PropertyID, f)
				}
			}
		}
		problems := mapping.ValidateConfig(pc)
		if len(problems) == 0 {
			if *verbose {
				log.Printf("property %d: valid", pc.PropertyID)
			}
			continue
		}
		invalid++
		for _, p := range problems {
			log.Printf("property %d: %s", pc.PropertyID, p)
		}
	}

	log.Printf("checked %d configuration(s), %d invalid", len(configs), invalid)
	if invalid > 0 {
		return 1
	}
	return 0
}

func runCacheConfig(args []string) int {
	action := "stats"
	if len(args) > 0 {
		action = args[0]
	}

	store, db, err := openCredentialStore()
	if err != nil {
		log.Printf("htngctl: %v", err)
		return 1
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch action {
	case "warm", "stats":
		// Warming and stats both load every configuration; warming proves each
		// row decrypts and parses so a daemon's first cache miss cannot fail.
		configs, err := store.ListPropertyConfigs(ctx)
		if err != nil {
			log.Printf("htngctl: %v", err)
			return 1
		}
		if action == "warm" {
			cache := mapping.NewConfigCache()
			for _, pc := range configs {
				cache.Put(pc)
			}
			log.Printf("warmed %d configuration(s)", cache.Stats())
		} else {
			log.Printf("%d configuration(s) stored", len(configs))
		}
		return 0

	case "clear":
		// Running daemons hold their own in-process caches; clearing publishes
		// one invalidation event per property on the bus so every subscriber
		// drops its entry.
		cfg := config.FromEnv()
		bus := eventbus.Connect(cfg.NATSURL)
		defer bus.Close()

		configs, err := store.ListPropertyConfigs(ctx)
		if err != nil {
			log.Printf("htngctl: %v", err)
			return 1
		}
		for _, pc := range configs {
			mapping.PublishChanged(bus, mapping.ChangedEvent{
				Kind:               model.KindMappingUpdated,
				InternalPropertyID: pc.PropertyID,
				ExternalHotelCode:  pc.WSSEHotelCode,
				Active:             true,
			})
		}
		log.Printf("published cache invalidation for %d propert(ies)", len(configs))
		return 0

	default:
		fmt.Fprintf(os.Stderr, "cache-config: unknown action %q (want warm, clear, or stats)\n", action)
		return 2
	}
}
