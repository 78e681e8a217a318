// Command pendant runs the six-DOF arm's motion core and operator
// boundary: it loads config, wires the kinematics/motion/program stack to
// the serial motor link (or simulation), optionally attaches Postgres
// persistence and JWT auth, and serves the HTTP/WebSocket API until an
// interrupt or termination signal arrives.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/sixdof/pendant/internal/auth"
	"github.com/sixdof/pendant/internal/broadcast"
	"github.com/sixdof/pendant/internal/config"
	"github.com/sixdof/pendant/internal/motion"
	"github.com/sixdof/pendant/internal/motorlink"
	"github.com/sixdof/pendant/internal/persistence/postgres"
	"github.com/sixdof/pendant/internal/posestate"
	"github.com/sixdof/pendant/internal/program"
	"github.com/sixdof/pendant/internal/telemetry"
	"github.com/sixdof/pendant/internal/transport/httpapi"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (defaults built in if empty)")
	addr := flag.String("addr", "", "HTTP server address (overrides config-derived default)")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics listen address")
	flag.Parse()

	development := os.Getenv("PENDANT_ENV") != "production"
	log := telemetry.NewLogger(development)

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.WithError(err).Fatal("pendant: failed to load config")
		}
		cfg = loaded
	}

	tp, err := telemetry.NewTracerProvider(development)
	if err != nil {
		log.WithError(err).Warn("pendant: tracing disabled")
	}
	if tp != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				log.WithError(err).Warn("pendant: tracer shutdown error")
			}
		}()
	}
	tracer := telemetry.Tracer("pendant/motion")

	telemetry.GlobalMetrics() // force registration before /metrics is served
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		log.WithField("addr", *metricsAddr).Info("pendant: metrics listening")
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Warn("pendant: metrics server error")
		}
	}()

	state := posestate.New(cfg.DefaultPose, cfg.Dimensions)

	bus := broadcast.New(64, log)
	if natsURL := os.Getenv("PENDANT_NATS_URL"); natsURL != "" {
		subject := os.Getenv("PENDANT_NATS_SUBJECT")
		if subject == "" {
			subject = "pendant.events"
		}
		sink, err := broadcast.NewNATSSink(natsURL, subject)
		if err != nil {
			log.WithError(err).Warn("pendant: NATS sink disabled")
		} else {
			bus.AddSink(sink)
			defer sink.Close()
			log.WithField("url", natsURL).Info("pendant: broadcasting to NATS")
		}
	}
	bus.OnDrop(func(id string) {
		log.WithField("subscriber", id).Warn("pendant: event subscriber fell behind, dropped")
	})

	link := buildMotorLink(cfg, bus, log)
	defer link.Close()

	controller := motion.New(cfg, state, link, bus, log, tracer)
	defer controller.Close()

	engine := program.New(controller, state, link, bus, cfg.SimulationMode, log)

	deps := httpapi.Deps{
		Controller: controller,
		Engine:     engine,
		State:      state,
		Bus:        bus,
	}

	if dsn := os.Getenv("PENDANT_POSTGRES_DSN"); dsn != "" {
		db, err := postgres.Open(dsn)
		if err != nil {
			log.WithError(err).Fatal("pendant: postgres connection failed")
		}
		defer db.Close()

		migrateCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = db.Migrate(migrateCtx)
		cancel()
		if err != nil {
			log.WithError(err).Fatal("pendant: postgres migration failed")
		}

		deps.ProgramStore = postgres.NewProgramStore(db)
		deps.PoseStore = postgres.NewSavedPoseStore(db)
		log.Info("pendant: persistence backed by postgres")
	} else {
		log.Warn("pendant: no PENDANT_POSTGRES_DSN set, programs and saved poses are not persisted")
	}

	if passwordHash := os.Getenv("PENDANT_OPERATOR_PASSWORD_HASH"); passwordHash != "" {
		issuer, err := auth.NewIssuer(passwordHash, 12*time.Hour)
		if err != nil {
			log.WithError(err).Fatal("pendant: auth issuer failed to initialize")
		}
		deps.Issuer = issuer
		log.Info("pendant: operator authentication enabled")
	} else {
		log.Warn("pendant: no PENDANT_OPERATOR_PASSWORD_HASH set, operator API is unauthenticated")
	}

	serverCfg := httpapi.DefaultConfig()
	if *addr != "" {
		serverCfg.Addr = *addr
	}
	server := httpapi.NewServer(serverCfg, deps, log)

	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("pendant: http server error")
		}
	}()

	log.WithFields(map[string]interface{}{
		"addr":       serverCfg.Addr,
		"simulation": cfg.SimulationMode,
	}).Info("pendant is ready")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("pendant: shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		log.WithError(err).Warn("pendant: server shutdown error")
	}

	log.Info("pendant: stopped")
}

// buildMotorLink opens the real serial connection to the motor
// controller when not running in simulation mode; in simulation mode the
// link is built with a nil connection, since Link never touches the
// wire once simulationMode is true.
func buildMotorLink(cfg config.Config, bus *broadcast.Bus, log *logrus.Logger) *motorlink.Link {
	if cfg.SimulationMode {
		return motorlink.New(nil, cfg.Serial.CommandDelay, true, log, bus)
	}

	port, err := motorlink.OpenSerialPort(cfg.Serial.Port, cfg.Serial.BaudRate, cfg.Serial.Timeout)
	if err != nil {
		log.WithError(err).Fatal("pendant: failed to open serial port")
	}
	return motorlink.New(port, cfg.Serial.CommandDelay, false, log, bus)
}
