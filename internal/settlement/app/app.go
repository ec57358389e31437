// Package app monta o grafo de dependências compartilhado pelos binários de
// liquidação (API e worker).
package app

import (
	"database/sql"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/vs-wager-platform/internal/settlement/domain"
	"github.com/radieske/vs-wager-platform/internal/settlement/ledger"
	"github.com/radieske/vs-wager-platform/internal/settlement/lifecycle"
	"github.com/radieske/vs-wager-platform/internal/settlement/prize"
	"github.com/radieske/vs-wager-platform/internal/settlement/producer"
	"github.com/radieske/vs-wager-platform/internal/settlement/repo"
	"github.com/radieske/vs-wager-platform/internal/shared/config"
	"github.com/radieske/vs-wager-platform/internal/shared/kafka"
)

type Components struct {
	Repo    *repo.Postgres
	Manager *lifecycle.Manager
	Engine  *prize.Engine
}

// Metrics são os contadores injetados como callbacks nos componentes
type Metrics struct {
	Credits  *prometheus.CounterVec // type, status
	Settled  *prometheus.CounterVec // trigger
	Prizes   *prometheus.CounterVec // resumed
	Jobs     *prometheus.CounterVec // job, status
	Requests *prometheus.CounterVec // route, code
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Credits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_credits_total", Help: "créditos USDC por tipo e resultado",
		}, []string{"type", "status"}),
		Settled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_wagers_settled_total", Help: "apostas liquidadas por gatilho",
		}, []string{"trigger"}),
		Prizes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_prize_runs_total", Help: "execuções de prêmio quinzenal",
		}, []string{"resumed"}),
		Jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_jobs_total", Help: "execuções dos jobs agendados",
		}, []string{"job", "status"}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_http_requests_total", Help: "requisições HTTP por rota e status",
		}, []string{"route", "code"}),
	}
	reg.MustRegister(m.Credits, m.Settled, m.Prizes, m.Jobs, m.Requests)
	return m
}

// Build liga repo, applier, manager e engine com a política da config
func Build(cfg config.Config, log *zap.Logger, pg *sql.DB, w kafka.MessageWriter, m *Metrics) (*Components, error) {
	side, err := domain.ParseSide(cfg.DefaultWinningSide)
	if err != nil {
		return nil, fmt.Errorf("DEFAULT_WINNING_SIDE: %w", err)
	}
	policy := lifecycle.Policy{DefaultWinningSide: side, RequireExplicitSide: cfg.RequireExplicitSide}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	store := repo.NewPostgres(pg)
	publ := producer.NewKafkaPublisher(w, cfg.TopicWagerSettled, cfg.TopicPrizeExecuted)

	applier := ledger.NewApplier(log.Named("ledger"), store, cfg.StoreTimeout)
	mgr := lifecycle.NewManager(log.Named("lifecycle"), store, applier, policy, publ, cfg.StoreTimeout)
	eng := prize.NewEngine(log.Named("prize"), store, applier, publ, cfg.StoreTimeout)
	mgr.ResumeGrace = cfg.ResumeGrace
	mgr.OnPredictionsChanged = eng.InvalidatePeriods

	if m != nil {
		applier.OnOutcome = func(t domain.TxType, s ledger.OutcomeStatus) {
			m.Credits.WithLabelValues(string(t), string(s)).Inc()
		}
		mgr.OnSettled = func(trigger string) { m.Settled.WithLabelValues(trigger).Inc() }
		eng.OnExecuted = func(resumed bool) {
			label := "false"
			if resumed {
				label = "true"
			}
			m.Prizes.WithLabelValues(label).Inc()
		}
	}

	return &Components{Repo: store, Manager: mgr, Engine: eng}, nil
}
