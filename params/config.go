// Package params holds the core's construction-time configuration:
// tree depths, funding-table capacity, storage/log paths, and dispatcher
// admission limits. Loading is out of scope for the core proper (spec.md
// §1 "Configuration loading... out of scope"), but the shape here follows
// the teacher's own params.Config — a struct built by Default() and
// overridable by environment variables via godotenv — applied to this
// settlement core's actual knobs instead of the teacher's consensus ones.
package params

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Trees bundles the two state-tree depths spec.md §4.1 names: 32 for the
// spot tree (notes + order tabs), 16 for the perpetual tree (positions).
type Trees struct {
	SpotDepth uint8
	PerpDepth uint8
}

// Dispatcher bundles the single-threaded actor's channel and admission
// sizing (spec.md §5 "a counting-semaphore permit").
type Dispatcher struct {
	QueueDepth     int
	AdmissionLimit int64
}

// Storage bundles the durable write-intent queue's knobs (spec.md §6
// "Persisted state layout"): where pebble persists, and how often the
// background flusher runs.
type Storage struct {
	PebblePath    string
	FlushInterval string // parsed with time.ParseDuration by the caller
}

// Config is the core's full construction-time parameter set.
type Config struct {
	Trees               Trees
	Dispatcher          Dispatcher
	Storage             Storage
	FundingRingCapacity int
	LogPath             string
	IntrospectAddr      string
}

// Default returns the reference deployment's configuration: spec.md's own
// tree depths, a modest admission limit, and local pebble storage.
func Default() Config {
	return Config{
		Trees: Trees{
			SpotDepth: 32,
			PerpDepth: 16,
		},
		Dispatcher: Dispatcher{
			QueueDepth:     256,
			AdmissionLimit: 64,
		},
		Storage: Storage{
			PebblePath:    "data/core.pebble",
			FlushInterval: "500ms",
		},
		FundingRingCapacity: 4096,
		LogPath:             "",
		IntrospectAddr:      ":8090",
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables, following the teacher's own "ENV > .env file >
// defaults" priority.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("CORE_SPOT_TREE_DEPTH"); v != "" {
		if d, err := strconv.Atoi(v); err == nil && d > 0 && d <= 255 {
			cfg.Trees.SpotDepth = uint8(d)
		}
	}
	if v := os.Getenv("CORE_PERP_TREE_DEPTH"); v != "" {
		if d, err := strconv.Atoi(v); err == nil && d > 0 && d <= 255 {
			cfg.Trees.PerpDepth = uint8(d)
		}
	}
	if v := os.Getenv("CORE_DISPATCHER_QUEUE_DEPTH"); v != "" {
		if d, err := strconv.Atoi(v); err == nil {
			cfg.Dispatcher.QueueDepth = d
		}
	}
	if v := os.Getenv("CORE_DISPATCHER_ADMISSION_LIMIT"); v != "" {
		if d, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Dispatcher.AdmissionLimit = d
		}
	}
	if v := os.Getenv("CORE_PEBBLE_PATH"); v != "" {
		cfg.Storage.PebblePath = v
	}
	if v := os.Getenv("CORE_FLUSH_INTERVAL"); v != "" {
		cfg.Storage.FlushInterval = v
	}
	if v := os.Getenv("CORE_FUNDING_RING_CAPACITY"); v != "" {
		if d, err := strconv.Atoi(v); err == nil {
			cfg.FundingRingCapacity = d
		}
	}
	if v := os.Getenv("CORE_LOG_PATH"); v != "" {
		cfg.LogPath = v
	}
	if v := os.Getenv("CORE_INTROSPECT_ADDR"); v != "" {
		cfg.IntrospectAddr = v
	}

	return cfg
}
