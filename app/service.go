// Package app wires the configuration into a running scheduling service.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fleetops/dutyroster/api/report"
	"github.com/fleetops/dutyroster/api/tools"
	"github.com/fleetops/dutyroster/config"
	"github.com/fleetops/dutyroster/core/hos"
	coremetrics "github.com/fleetops/dutyroster/core/metrics"
	"github.com/fleetops/dutyroster/core/scoring"
	"github.com/fleetops/dutyroster/core/session"
	"github.com/fleetops/dutyroster/infra/logger"
	"github.com/fleetops/dutyroster/infra/metrics"
	"github.com/fleetops/dutyroster/infra/notify"
	"github.com/fleetops/dutyroster/infra/scorer"
	"github.com/fleetops/dutyroster/infra/store"
	"github.com/fleetops/dutyroster/internal/eventbus"
)

// Service holds the composed scheduling engine and its HTTP surface.
type Service struct {
	Manager  *session.Manager
	Registry *tools.Registry
	Reports  *report.Service

	cfg      *config.Config
	store    *store.SQLiteStore
	bus      *eventbus.Bus
	sink     coremetrics.Sink
	notifier *notify.Notifier
	log      logger.Logger
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logger.SetGlobalLevel(cfg.Logging.Level)
	logg := logger.New("service")

	st, err := store.New(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	var sinks []coremetrics.Sink
	if cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewPromSink(cfg.Metrics)
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.InfluxEnabled {
		sinks = append(sinks, metrics.NewInfluxSinkWithFallback(cfg.Metrics))
	}
	var sink coremetrics.Sink = coremetrics.NopSink{}
	if len(sinks) == 1 {
		sink = sinks[0]
	} else if len(sinks) > 1 {
		sink = metrics.NewMultiSink(sinks...)
	}

	var sc scoring.PatternScorer = scoring.LocalAnalyzer{}
	if cfg.Scorer.Command != "" {
		sc = scorer.New(cfg.Scorer, logger.New("scorer"))
	}

	bus := eventbus.New()
	limits := cfg.HOS.Limits()
	mgr := session.NewManager(session.Config{
		Store:  st,
		Scorer: sc,
		Limits: limits,
		Log:    logger.New("session"),
		Bus:    bus,
	})

	var notifier *notify.Notifier
	if cfg.Notify.Enabled {
		notifier, err = notify.New(cfg.Notify, nil)
		if err != nil {
			return nil, fmt.Errorf("mqtt notifier: %w", err)
		}
	}

	eval := hos.NewEvaluator(limits, logger.New("hos"))
	svc := &Service{
		Manager:  mgr,
		Registry: tools.New(mgr, logger.New("tools")),
		Reports:  report.NewService(st, eval, sink, logger.New("report")),
		cfg:      cfg,
		store:    st,
		bus:      bus,
		sink:     sink,
		notifier: notifier,
		log:      logg,
	}
	return svc, nil
}

// Handler returns the API routes.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/tools/", tools.NewHandler(s.Registry))
	mux.Handle("/api/compliance", report.NewHandler(s.Reports))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// Run starts the bus consumer and HTTP listeners and blocks until the
// context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	go s.consumeEvents(ctx)

	if s.cfg.Metrics.PrometheusEnabled {
		go func() {
			addr := ":" + s.cfg.Metrics.PrometheusPort
			if err := metrics.StartPromServer(ctx, addr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	srv := &http.Server{Addr: s.cfg.Server.Addr, Handler: s.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("http shutdown: %v", err)
		}
	}()
	s.log.Infof("listening on %s", s.cfg.Server.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// consumeEvents forwards bus events to the metrics sink and the notifier.
func (s *Service) consumeEvents(ctx context.Context) {
	sub := s.bus.Subscribe()
	defer s.bus.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			switch e := ev.(type) {
			case session.DecisionEvent:
				if err := s.sink.RecordDecision(coremetrics.DecisionEvent{
					TenantID:      e.TenantID,
					Action:        string(e.Decision.Action),
					DriverID:      e.Decision.DriverID,
					BlockID:       e.Decision.BlockID,
					CombinedScore: combinedScore(e),
					Time:          e.Decision.Timestamp,
				}); err != nil {
					s.log.Warnf("record decision: %v", err)
				}
				if s.notifier != nil {
					if err := s.notifier.NotifyDecision(e); err != nil {
						s.log.Warnf("notify decision: %v", err)
					}
				}
			case session.BuildEvent:
				if err := s.sink.RecordSessionBuild(coremetrics.SessionBuildEvent{
					TenantID:  e.TenantID,
					WeekStart: e.WeekStart,
					Blocks:    e.Blocks,
					Drivers:   e.Drivers,
					Remaining: e.Remaining,
					Degraded:  e.Degraded,
					Duration:  e.Duration,
					Time:      time.Now().UTC(),
				}); err != nil {
					s.log.Warnf("record session build: %v", err)
				}
			}
		}
	}
}

func combinedScore(e session.DecisionEvent) float64 {
	if e.Decision.Checks == nil {
		return 0
	}
	return e.Decision.Checks.CombinedScore
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	s.bus.Close()
	if s.notifier != nil {
		s.notifier.Close()
	}
	return s.store.Close()
}
