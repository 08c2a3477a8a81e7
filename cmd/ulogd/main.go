package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"

	"example.com/ulogsink/internal/autolog"
	"example.com/ulogsink/internal/common"
	"example.com/ulogsink/internal/mavlink"
	"example.com/ulogsink/internal/reactor"
	"example.com/ulogsink/internal/router"
	"example.com/ulogsink/internal/server"
	"example.com/ulogsink/internal/ulog"
)

type logConfig struct {
	Directory  string `yaml:"directory"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	MaxBackups int    `yaml:"maxBackups"`
	Compress   bool   `yaml:"compress"`
}

type httpConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type config struct {
	LogsDir        string     `yaml:"logsDir"`
	SystemID       uint8      `yaml:"systemID"`
	TargetSystemID uint8      `yaml:"targetSystemID"`
	UDPListen      string     `yaml:"udpListen"`
	AutoLog        bool       `yaml:"autolog"`
	HTTP           httpConfig `yaml:"http"`
	Logs           logConfig  `yaml:"logs"`
}

func loadConfig(path string) (config, error) {
	cfg := config{AutoLog: true}
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, err
	}
	if cfg.LogsDir == "" {
		cfg.LogsDir = filepath.Join(".", "flight-logs")
	}
	if cfg.SystemID == 0 {
		cfg.SystemID = 2
	}
	if cfg.TargetSystemID == 0 {
		cfg.TargetSystemID = 1
	}
	if cfg.UDPListen == "" {
		cfg.UDPListen = "0.0.0.0:14550"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.Logs.Directory == "" {
		cfg.Logs.Directory = filepath.Join(cfg.LogsDir, "diag")
	}
	if cfg.Logs.MaxSizeMB <= 0 {
		cfg.Logs.MaxSizeMB = 25
	}
	if cfg.Logs.MaxAgeDays <= 0 {
		cfg.Logs.MaxAgeDays = 7
	}
	if cfg.Logs.MaxBackups <= 0 {
		cfg.Logs.MaxBackups = 5
	}
	return cfg, nil
}

func setupLogging(cfg config) error {
	if err := os.MkdirAll(cfg.Logs.Directory, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	logFile := filepath.Join(cfg.Logs.Directory, "ulogd.log")
	rotator := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    cfg.Logs.MaxSizeMB,
		MaxAge:     cfg.Logs.MaxAgeDays,
		MaxBackups: cfg.Logs.MaxBackups,
		Compress:   cfg.Logs.Compress,
	}
	sink := io.MultiWriter(os.Stdout, rotator)
	log.SetOutput(sink)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	common.SetOutput(sink)
	return nil
}

// udpFeed is the packet source and return path: datagrams arriving on
// the socket are assumed to each carry one already-framed MAVLink
// packet, and outgoing messages go back to the last peer seen.
type udpFeed struct {
	conn      *net.UDPConn
	peer      *net.UDPAddr
	targetSys uint8
}

func (u *udpFeed) Name() string { return "UDP" }

func (u *udpFeed) AcceptsSystem(sysid uint8) bool {
	return sysid == u.targetSys
}

func (u *udpFeed) Deliver(pkt *mavlink.Packet) int {
	if u.peer == nil {
		return len(pkt.Data)
	}
	if _, err := u.conn.WriteToUDP(pkt.Data, u.peer); err != nil {
		common.Warnf("UDP: send to %s: %v", u.peer, err)
	}
	return len(pkt.Data)
}

func (u *udpFeed) FlushPending() error {
	return router.ErrNotSupported
}

type inbound struct {
	data []byte
	from *net.UDPAddr
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	listen := flag.String("listen", "", "UDP listen address (overrides config)")
	statsInterval := flag.Duration("stats-interval", 0, "print capture statistics at this interval (0 disables)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *listen != "" {
		cfg.UDPListen = *listen
	}
	if err := os.MkdirAll(cfg.LogsDir, 0o755); err != nil {
		log.Fatalf("logs dir: %v", err)
	}
	if err := setupLogging(cfg); err != nil {
		log.Fatalf("setup logging: %v", err)
	}

	addr, err := net.ResolveUDPAddr("udp", cfg.UDPListen)
	if err != nil {
		log.Fatalf("resolve %s: %v", cfg.UDPListen, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		log.Fatalf("listen %s: %v", cfg.UDPListen, err)
	}
	defer conn.Close()

	broker := router.NewBroker()
	sched := reactor.NewScheduler(reactor.NewSystemClock())
	events := common.NewSessionLog(filepath.Join(cfg.LogsDir, "capture-events.jsonl"))

	feed := &udpFeed{conn: conn, targetSys: cfg.TargetSystemID}
	broker.Add(feed)

	epCfg := ulog.Config{
		LogsDir:        cfg.LogsDir,
		SystemID:       cfg.SystemID,
		TargetSystemID: cfg.TargetSystemID,
	}

	var stats server.StatsSource
	var stopCapture func() error
	if cfg.AutoLog {
		auto := autolog.New(epCfg, broker, sched)
		auto.SetSessionLog(events)
		broker.Add(auto)
		stats = &autologStats{auto: auto}
		stopCapture = auto.Stop
		log.Printf("ulogd waiting for PX4 heartbeat from system %d", cfg.TargetSystemID)
	} else {
		ep := ulog.NewEndpoint(epCfg, broker, sched)
		ep.SetSessionLog(events)
		broker.Add(ep)
		stats = ep
		stopCapture = ep.Stop
		if err := ep.Start(); err != nil {
			log.Fatalf("start capture: %v", err)
		}
	}

	var httpServer *http.Server
	if cfg.HTTP.Enabled {
		srv, err := server.NewServer(server.Options{
			LogsDir:    cfg.LogsDir,
			EventsPath: events.Path(),
			Stats:      stats,
		})
		if err != nil {
			log.Fatalf("http server init: %v", err)
		}
		httpServer = &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
			Handler:      server.NewRouter(srv),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		}
		go func() {
			log.Printf("ulogd http listening on %s", httpServer.Addr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("http listen: %v", err)
			}
		}()
	}

	var stopStats func()
	if *statsInterval > 0 {
		stopStats = common.StartStatisticsPrinter(os.Stdout, "ULog", func() common.MetricsSnapshot {
			return stats.Metrics().Snapshot()
		}, *statsInterval)
	}

	packets := make(chan inbound, 64)
	go func() {
		buf := make([]byte, 2048)
		for {
			n, from, err := conn.ReadFromUDP(buf)
			if err != nil {
				close(packets)
				return
			}
			data := make([]byte, n)
			copy(data, buf[:n])
			packets <- inbound{data: data, from: from}
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	log.Printf("ulogd listening on %s, logs in %s", cfg.UDPListen, cfg.LogsDir)

	running := true
	for running {
		// Packets win over timer ticks within one iteration, so an
		// in-flight ack can cancel the retry timer before it fires.
		select {
		case p, ok := <-packets:
			if !ok {
				running = false
				break
			}
			handlePacket(broker, feed, cfg.SystemID, p)
			continue
		default:
		}
		select {
		case p, ok := <-packets:
			if !ok {
				running = false
				break
			}
			handlePacket(broker, feed, cfg.SystemID, p)
		case <-ticker.C:
			sched.Dispatch()
		case <-shutdown:
			running = false
		}
	}

	if stopStats != nil {
		stopStats()
	}
	if err := stopCapture(); err != nil {
		log.Printf("stop capture: %v", err)
	}
	if err := events.Close(); err != nil {
		log.Printf("close session log: %v", err)
	}
	if httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			log.Printf("http shutdown: %v", err)
		}
	}
	log.Println("ulogd stopped")
}

func handlePacket(broker *router.Broker, feed *udpFeed, sysID uint8, p inbound) {
	feed.peer = p.from
	broker.Dispatch(&mavlink.Packet{Data: p.data}, sysID)
}

// autologStats adapts the heartbeat-gated endpoint to the stats
// surface; before a capture exists it reports an idle placeholder.
type autologStats struct {
	auto *autolog.Endpoint
	idle *common.Metrics
}

func (s *autologStats) State() ulog.State {
	if l := s.auto.Logger(); l != nil {
		return l.State()
	}
	return ulog.StateIdle
}

func (s *autologStats) FilePath() string {
	if l := s.auto.Logger(); l != nil {
		return l.FilePath()
	}
	return ""
}

func (s *autologStats) Metrics() *common.Metrics {
	if l := s.auto.Logger(); l != nil {
		return l.Metrics()
	}
	if s.idle == nil {
		s.idle = common.NewMetrics()
	}
	return s.idle
}
