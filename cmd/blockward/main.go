package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"blockward/internal/bulk"
	"blockward/internal/database"
	"blockward/internal/database/boltstore"
	"blockward/internal/database/sqlitestore"
	"blockward/internal/filter"
	"blockward/internal/manager"
	"blockward/internal/page"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Configure zerolog
	// Set log level from environment (default: info)
	logLevel := os.Getenv("LOG_LEVEL")
	switch logLevel {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info", "":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	// Use pretty console logging in development, JSON in production
	if os.Getenv("LOG_FORMAT") == "json" {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}

	log.Info().Msg("Starting Blockward")

	pageURL := os.Getenv("BLOCKWARD_PAGE_URL")
	if pageURL == "" {
		log.Fatal().Msg("BLOCKWARD_PAGE_URL is required (the blocked-users page to manage)")
	}

	store, closeStore := openLockStore()
	defer closeStore()

	// Connect to a running browser when a control URL is given, otherwise
	// launch one. A visible session is the normal mode: the operator keeps
	// working in the table while blockward drives it.
	browser := rod.New()
	if u := os.Getenv("BLOCKWARD_BROWSER_URL"); u != "" {
		browser = browser.ControlURL(u)
	}
	if err := browser.Connect(); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to browser")
	}
	defer browser.Close()

	p, err := browser.Page(proto.TargetCreateTarget{URL: pageURL})
	if err != nil {
		log.Fatal().Err(err).Str("url", pageURL).Msg("Failed to open page")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	table := page.NewTable(p, page.DefaultSelectors())
	if err := table.WaitReady(ctx); err != nil {
		log.Fatal().Err(err).Msg("Blocked-users table never appeared")
	}

	var confirm bulk.Confirmer = promptConfirmer{}
	if os.Getenv("BLOCKWARD_ASSUME_YES") == "true" {
		confirm = bulk.AutoApprove{}
	}

	dateMath := filter.CalendarMath
	if os.Getenv("BLOCKWARD_FIXED_DAY_MATH") == "true" {
		dateMath = filter.FixedDayMath
	}

	mgr := manager.New(manager.Config{
		Store:            store,
		Actions:          table,
		Confirm:          confirm,
		Dialogs:          page.NewDialogAutoConfirm(p),
		DateMath:         dateMath,
		InterActionDelay: envDuration("BLOCKWARD_DELAY_MS", bulk.DefaultInterActionDelay),
		AutoLockTag:      os.Getenv("BLOCKWARD_AUTOLOCK_TAG"),
	})

	g, ctx := errgroup.WithContext(ctx)

	// Metrics endpoint, opt-in
	if addr := os.Getenv("BLOCKWARD_METRICS_ADDR"); addr != "" {
		g.Go(func() error {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			srv := &http.Server{Addr: addr, Handler: mux}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			log.Info().Str("address", addr).Msg("Metrics endpoint listening")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		return run(ctx, mgr, table)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("Blockward exited with error")
	}
	log.Info().Msg("Blockward stopped")
}

// run hydrates the locked set, then keeps the manager's view of the table
// current until the context ends.
func run(ctx context.Context, mgr *manager.Manager, table *page.Table) error {
	mgr.HydrateLocks(ctx)

	refresh := func() error {
		fragment, err := table.RowsHTML(ctx)
		if err != nil {
			return err
		}
		mgr.RefreshFromFragment(fragment)
		v := mgr.View()
		log.Info().
			Int("total", v.Total).
			Int("visible", v.Visible).
			Int("locked", v.Locked).
			Msg("Table refreshed")
		return nil
	}

	if err := refresh(); err != nil {
		return err
	}

	interval := envDuration("BLOCKWARD_REFRESH_MS", 30*time.Second)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := refresh(); err != nil {
				log.Warn().Err(err).Msg("Refresh failed, will retry")
			}
		}
	}
}

// openLockStore picks the persistence backend from the environment. Bolt is
// the default; sqlite is for operators who want to query the audit log with
// regular SQL tooling.
func openLockStore() (database.LockStore, func()) {
	dbPath := os.Getenv("BLOCKWARD_DB_PATH")
	if dbPath == "" {
		dataDir := os.Getenv("XDG_DATA_HOME")
		if dataDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to get home directory")
			}
			dataDir = filepath.Join(home, ".local", "share")
		}
		dbPath = filepath.Join(dataDir, "blockward", "blockward.db")
	}

	if os.Getenv("BLOCKWARD_DB_BACKEND") == "sqlite" {
		ls, err := sqlitestore.Open(dbPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", dbPath).Msg("Failed to open sqlite database")
		}
		log.Info().Str("path", dbPath).Str("backend", "sqlite").Msg("Database opened")
		return ls, func() { ls.Close() }
	}

	store, err := boltstore.Open(boltstore.Options{Path: dbPath})
	if err != nil {
		log.Fatal().Err(err).Str("path", dbPath).Msg("Failed to open database")
	}
	log.Info().Str("path", dbPath).Str("backend", "bolt").Msg("Database opened")
	return store.LockStore(), func() { store.Close() }
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms <= 0 {
		log.Warn().Str("key", key).Str("value", v).Msg("Invalid duration, using default")
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

// promptConfirmer asks on stdin before a bulk batch runs.
type promptConfirmer struct{}

func (promptConfirmer) ConfirmBatch(count int) bool {
	fmt.Printf("Remove %d blocked users? [y/N] ", count)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
