// Command protei-monitoring is the composition root for the passive
// signaling monitor: it wires the config, logger, knowledge
// base, decoder registry, correlation engine, flow reconstructor,
// analysis engine, statistics, durable-output writers, and dispatcher
// together, then runs until asked to shut down.
package main

import (
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/protei/monitoring/internal/logger"
	"github.com/protei/monitoring/pkg/analysis"
	"github.com/protei/monitoring/pkg/cdr"
	"github.com/protei/monitoring/pkg/config"
	"github.com/protei/monitoring/pkg/correlation"
	"github.com/protei/monitoring/pkg/decoder"
	decodercap "github.com/protei/monitoring/pkg/decoder/cap"
	decoderdiameter "github.com/protei/monitoring/pkg/decoder/diameter"
	decodergtp "github.com/protei/monitoring/pkg/decoder/gtp"
	decoderhttp2 "github.com/protei/monitoring/pkg/decoder/http2"
	decoderinap "github.com/protei/monitoring/pkg/decoder/inap"
	decodermap "github.com/protei/monitoring/pkg/decoder/map"
	decodernas "github.com/protei/monitoring/pkg/decoder/nas"
	decoderngap "github.com/protei/monitoring/pkg/decoder/ngap"
	decoderpfcp "github.com/protei/monitoring/pkg/decoder/pfcp"
	decoders1ap "github.com/protei/monitoring/pkg/decoder/s1ap"
	"github.com/protei/monitoring/pkg/dispatcher"
	"github.com/protei/monitoring/pkg/events"
	"github.com/protei/monitoring/pkg/flows"
	"github.com/protei/monitoring/pkg/health"
	"github.com/protei/monitoring/pkg/knowledge"
	"github.com/protei/monitoring/pkg/persistence"
	"github.com/protei/monitoring/pkg/stats"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfgManager, err := config.NewManager(*configPath)
	if err != nil {
		// Initial config failure exits. Logger init and events/CDR writer
		// init failures below also exit; a database open failure is logged
		// and the process continues without persistence.
		os.Stderr.WriteString("fatal: " + err.Error() + "\n")
		os.Exit(1)
	}
	cfg := cfgManager.Current()

	if err := logger.Init(logger.Config{
		Path:       cfg.Logging.Path,
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	}); err != nil {
		os.Stderr.WriteString("fatal: logger init: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.Get()
	zlog := log.Zerolog()

	log.Info("starting protei-monitoring", "workers", cfg.Workers)

	kb := knowledge.NewKnowledgeBase()
	registry := buildRegistry(cfg.Protocols.Enabled)

	var db *sql.DB
	if cfg.Persistence.DSN != "" {
		db, err = sql.Open("postgres", cfg.Persistence.DSN)
		if err != nil {
			log.Error("persistence: failed to open database, continuing without persistence", err)
			db = nil
		}
	}
	persistStore := persistence.NewStore(db, cfg.PersistenceBufferSize, zlog)

	eventsWriter, err := events.NewWriter(cfg.EventsDir, zlog)
	if err != nil {
		log.Fatal("events writer init failed", err)
	}
	cdrWriter, err := cdr.NewWriter(cfg.CDRDir, zlog)
	if err != nil {
		log.Fatal("cdr writer init failed", err)
	}

	flowReconstructor := flows.NewFlowReconstructor()
	onSessionClosed := dispatcher.NewSessionCompletionHandler(flowReconstructor, cdrWriter, zlog)

	corrEngine := correlation.NewEngine(correlation.Config{
		SessionTimeout:  time.Duration(cfg.SessionTimeoutSeconds) * time.Second,
		SweepInterval:   time.Duration(cfg.SessionSweepIntervalSeconds) * time.Second,
		OnSessionClosed: onSessionClosed,
	}, persistStore, zlog)

	statBucket := stats.New()
	analysisEngine := analysis.NewEngine(kb, statBucket, zlog)
	probe := health.NewProbe()

	d := dispatcher.New(dispatcher.Config{
		Workers:         cfg.Workers,
		InputBufferSize: cfg.InputBufferSize,
	}, registry, corrEngine, analysisEngine, statBucket, eventsWriter, probe, zlog)

	d.Start(cfg.Workers)

	go runRetentionSweeps(eventsWriter, cdrWriter, cfg, log)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	log.Info("protei-monitoring ready")

	// The external Source collaborator is responsible for calling
	// d.Submit(dispatcher.Packet{...}) for each captured packet; this
	// process just waits for a shutdown or reload signal.
	for sig := range sigCh {
		switch sig {
		case syscall.SIGHUP:
			if err := cfgManager.Reload(); err != nil {
				log.Error("config reload failed, keeping previous configuration", err)
				continue
			}
			log.Info("configuration reloaded")
		default:
			log.Info("shutting down")
			d.Shutdown()
			persistStore.Close()
			cdrWriter.Close()
			log.Info("shutdown complete")
			return
		}
	}
}

// buildRegistry registers one decoder per enabled protocol, in the fixed
// dispatch order the decoders rely on for CanDecode disambiguation.
func buildRegistry(enabled []string) *decoder.DecoderRegistry {
	want := make(map[string]bool, len(enabled))
	for _, p := range enabled {
		want[p] = true
	}

	registry := decoder.NewRegistry()
	if want["map"] {
		registry.Register(decodermap.NewMAPDecoder([]int{1, 2, 3}))
	}
	if want["cap"] {
		registry.Register(decodercap.NewCAPDecoder([]int{1, 2, 3, 4}))
	}
	if want["inap"] {
		registry.Register(decoderinap.NewINAPDecoder([]int{1, 2}))
	}
	if want["diameter"] {
		registry.Register(decoderdiameter.NewDiameterDecoder(
			[]string{"S6a", "S6d", "Gx", "Gy", "Rx", "Cx"},
			[]string{"3GPP"},
		))
	}
	if want["gtp"] {
		registry.Register(decodergtp.NewGTPDecoder([]int{1, 2}))
	}
	if want["pfcp"] {
		registry.Register(decoderpfcp.NewPFCPDecoder())
	}
	if want["http2"] {
		registry.Register(decoderhttp2.NewHTTP2Decoder())
	}
	if want["ngap"] {
		registry.Register(decoderngap.NewNGAPDecoder())
	}
	if want["s1ap"] {
		registry.Register(decoders1ap.NewS1APDecoder())
	}
	if want["nas"] {
		registry.Register(decodernas.NewNASDecoder([]string{"4G", "5G"}))
	}
	return registry
}

func runRetentionSweeps(ev *events.Writer, cd *cdr.Writer, cfg *config.Config, log *logger.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for range ticker.C {
		now := time.Now()
		ev.RunRetentionSweep(now, cfg.EventRetentionDays)
		cd.RunRetentionSweep(now, cfg.CDRRetentionDays)
		log.Debug("retention sweep complete")
	}
}
