// Command pokerd wires the ledger, the table registry, and a periodic
// clock together into a running poker core. It has no network transport
// of its own: tables are opened from a small config file and driven by
// Tick alone, leaving the job of turning client connections into
// table.Message values to whatever front end embeds this core.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/decred/slog"

	"github.com/holdencore/pokercore/pkg/bot"
	"github.com/holdencore/pokercore/pkg/ledger"
	"github.com/holdencore/pokercore/pkg/table"
)

type tableSpec struct {
	TableID               string  `json:"table_id"`
	Passphrase            string  `json:"passphrase"`
	MaxSeats              int     `json:"max_seats"`
	MinBuyIn              int64   `json:"min_buy_in"`
	MaxBuyIn              int64   `json:"max_buy_in"`
	SmallBlind            int64   `json:"small_blind"`
	BigBlind              int64   `json:"big_blind"`
	BlindIncreaseMinutes  int     `json:"blind_increase_minutes"`
	BlindIncreaseFactor   float64 `json:"blind_increase_factor"`

	AbsoluteChipCap    int64  `json:"absolute_chip_cap"`
	TopUpCooldownHands int    `json:"top_up_cooldown_hands"`
	ActionTimeoutSec   int    `json:"action_timeout_seconds"`
	BotsEnabled        bool   `json:"bots_enabled"`
	TargetBotCount     int    `json:"target_bot_count"`
	BotDifficulty      string `json:"bot_difficulty"`
}

func parseBotDifficulty(s string) bot.Difficulty {
	switch s {
	case "easy":
		return bot.Easy
	case "tag":
		return bot.TAG
	default:
		return bot.Standard
	}
}

func main() {
	var (
		dbPath     string
		tablesPath string
		seed       int64
		tickMs     int
		debugLevel string
	)
	flag.StringVar(&dbPath, "db", "", "path to the sqlite ledger file (created if missing)")
	flag.StringVar(&tablesPath, "tables", "", "path to a JSON array of table configs to open at startup")
	flag.Int64Var(&seed, "seed", 0, "deterministic RNG seed for deals (0 = use POKERCORE_SEED, else time-seeded)")
	flag.IntVar(&tickMs, "tick-ms", 250, "clock tick interval in milliseconds")
	flag.StringVar(&debugLevel, "debuglevel", "info", "logging level: trace, debug, info, warn, error")
	flag.Parse()

	backend := slog.NewBackend(os.Stdout)
	log := backend.Logger("POKERD")
	if lvl, ok := slog.LevelFromString(debugLevel); ok {
		log.SetLevel(lvl)
	}

	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "pokercore.sqlite")
	}
	if seed == 0 {
		if env := os.Getenv("POKERCORE_SEED"); env != "" {
			if v, err := strconv.ParseInt(env, 10, 64); err == nil {
				seed = v
			}
		}
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	store, err := ledger.Open(dbPath, backend.Logger("LEDGER"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "open ledger: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := table.NewRegistry(ctx, store, backend.Logger("TABLE"), time.Now)

	specs, err := loadTables(tablesPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load tables: %v\n", err)
		os.Exit(1)
	}
	for i, spec := range specs {
		cfg := table.Config{
			TableID:               spec.TableID,
			Passphrase:            spec.Passphrase,
			MaxSeats:              spec.MaxSeats,
			MinBuyIn:              spec.MinBuyIn,
			MaxBuyIn:              spec.MaxBuyIn,
			SmallBlind:            spec.SmallBlind,
			BigBlind:              spec.BigBlind,
			BlindIncreaseInterval: time.Duration(spec.BlindIncreaseMinutes) * time.Minute,
			BlindIncreaseFactor:   spec.BlindIncreaseFactor,
			AbsoluteChipCap:       spec.AbsoluteChipCap,
			TopUpCooldownHands:    spec.TopUpCooldownHands,
			ActionTimeout:         time.Duration(spec.ActionTimeoutSec) * time.Second,
			BotsEnabled:           spec.BotsEnabled,
			TargetBotCount:        spec.TargetBotCount,
			BotDifficulty:         parseBotDifficulty(spec.BotDifficulty),
		}
		if _, err := registry.Open(cfg, seed+int64(i)); err != nil {
			log.Errorf("open table %s: %v", spec.TableID, err)
			continue
		}
		log.Infof("table %s open: seats=%d blinds=%d/%d", spec.TableID, spec.MaxSeats, spec.SmallBlind, spec.BigBlind)
	}

	ticker := time.NewTicker(time.Duration(tickMs) * time.Millisecond)
	defer ticker.Stop()

	reconcileTicker := time.NewTicker(10 * time.Minute)
	defer reconcileTicker.Stop()

	log.Infof("pokerd running, db=%s tables=%d", dbPath, len(specs))
	for {
		select {
		case <-ctx.Done():
			log.Infof("shutting down")
			if err := registry.Shutdown(); err != nil {
				log.Errorf("shutdown: %v", err)
			}
			return
		case now := <-ticker.C:
			registry.TickAll(now)
		case <-reconcileTicker.C:
			report, err := store.Reconcile(context.Background())
			if err != nil {
				log.Errorf("reconcile: %v", err)
				continue
			}
			if !report.Clean() {
				log.Errorf("ledger reconciliation mismatch: wallets=%v escrows=%v", report.WalletMismatches, report.EscrowMismatches)
			}
		}
	}
}

func loadTables(path string) ([]tableSpec, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var specs []tableSpec
	if err := json.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return specs, nil
}
