package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/fundingarb/core/internal/bus"
	"github.com/fundingarb/core/internal/capital"
	"github.com/fundingarb/core/internal/config"
	"github.com/fundingarb/core/internal/marketstate"
	"github.com/fundingarb/core/internal/metrics"
	"github.com/fundingarb/core/internal/persistence"
	"github.com/fundingarb/core/internal/persistence/postgres"
	"github.com/fundingarb/core/internal/position"
	"github.com/fundingarb/core/internal/risk"
)

const repoTimeout = 5 * time.Second

// env bundles every long-lived dependency a subcommand may need,
// following the teacher's application package's "construct everything
// once in main, pass narrow interfaces down" shape rather than a global
// container.
type env struct {
	log zerolog.Logger

	db  *sqlx.DB
	bus bus.EventBus

	cfgOpportunity config.OpportunityConfig
	cfgAllocation  config.AllocationConfig
	cfgPosition    config.PositionConfig
	cfgExecution   config.ExecutionConfig
	cfgRisk        config.RiskConfig

	metrics *metrics.Registry

	cache   *marketstate.Cache
	risk    *risk.Controller
	posMgr  *position.Manager
	alloc   *capital.Allocator
	posRepo persistence.PositionsRepo
}

func loadConfigs() (config.OpportunityConfig, config.AllocationConfig, config.PositionConfig, config.ExecutionConfig, config.RiskConfig, error) {
	opp := config.DefaultOpportunityConfig()
	allocCfg := config.DefaultAllocationConfig()
	pos := config.DefaultPositionConfig()
	exec := config.DefaultExecutionConfig()
	riskCfg := config.DefaultRiskConfig()

	for path, out := range map[string]interface{}{
		filepath.Join(flagConfigDir, "opportunity.yaml"): opp,
		filepath.Join(flagConfigDir, "allocation.yaml"):  allocCfg,
		filepath.Join(flagConfigDir, "position.yaml"):    pos,
		filepath.Join(flagConfigDir, "execution.yaml"):   exec,
		filepath.Join(flagConfigDir, "risk.yaml"):        riskCfg,
	} {
		if err := config.Load(path, out); err != nil {
			return *opp, *allocCfg, *pos, *exec, *riskCfg, fmt.Errorf("load %s: %w", path, err)
		}
	}
	return *opp, *allocCfg, *pos, *exec, *riskCfg, nil
}

// buildEnv wires every component's constructor in the dependency order
// this repo's DESIGN.md ledger establishes: C1 (market state) has no
// upstream core dependency, C6 (risk) depends only on the event bus, C5/C3
// depend on C6. The Execution Coordinator (C4) is not constructed here:
// its constructor requires a map[string]venue.Adapter, and venue
// adapters are out of this core's scope per SPEC_FULL.md §E — a
// deployment wires its own adapters and constructs execution.Coordinator
// itself, reusing e.risk, e.bus and the *.Repo values returned here.
func buildEnv(log zerolog.Logger) (*env, error) {
	oppCfg, allocCfg, posCfg, execCfg, riskCfg, err := loadConfigs()
	if err != nil {
		return nil, err
	}

	var db *sqlx.DB
	if flagPostgresDSN != "" {
		db, err = sqlx.Connect("postgres", flagPostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
	}

	eventBus := bus.EventBus(bus.NewStubBus())
	if flagNATSURL != "" {
		eventBus = bus.NewNATSBus(flagNATSURL)
	}

	reg := metrics.NewRegistry(prometheus.DefaultRegisterer)

	cache := marketstate.NewCache(marketstate.DefaultConfig(), log)
	cache.SetMetrics(reg)
	if flagRedisAddr != "" {
		rc := redis.NewClient(&redis.Options{Addr: flagRedisAddr})
		cache.SetMirror(marketstate.NewRedisMirror(rc, 10*time.Minute, log))
	}

	riskCtl := risk.NewController(riskCfg, eventBus, nil, log)
	riskCtl.SetMetrics(reg)

	e := &env{
		log:            log,
		db:             db,
		bus:            eventBus,
		cfgOpportunity: oppCfg,
		cfgAllocation:  allocCfg,
		cfgPosition:    posCfg,
		cfgExecution:   execCfg,
		cfgRisk:        riskCfg,
		metrics:        reg,
		cache:          cache,
		risk:           riskCtl,
	}

	if db != nil {
		e.posRepo = postgres.NewPositionsRepo(db, repoTimeout)
		spreads := postgres.NewSpreadSnapshotsRepo(db, repoTimeout)
		fundings := postgres.NewFundingPaymentsRepo(db, repoTimeout)
		interactions := postgres.NewInteractionsRepo(db, repoTimeout)
		unwinds := postgres.NewAutoUnwindRepo(db, repoTimeout)

		posMgr := position.NewManager(posCfg, cache, riskCtl, e.posRepo, spreads, fundings, interactions, eventBus, nil, log)
		posMgr.SetMetrics(reg)
		e.posMgr = posMgr

		var redisClient *redis.Client
		if flagRedisAddr != "" {
			redisClient = redis.NewClient(&redis.Options{Addr: flagRedisAddr})
		}
		alloc := capital.NewAllocator(allocCfg, riskCtl, e.posRepo, unwinds, capital.NewEdgeTracker(), redisClient, eventBus, nil, log)
		alloc.SetMetrics(reg)
		e.alloc = alloc
	}

	return e, nil
}

func prometheusGatherer() prometheus.Gatherer {
	return prometheus.DefaultGatherer
}

func (e *env) close() {
	if e.db != nil {
		_ = e.db.Close()
	}
}
