// Package app wires configuration, transport, TAP device, host networking,
// and the packet handler into the single running process described by the
// client/server daemon: initialize, start reading packets, and shut down
// cleanly on signal. It owns no protocol logic of its own; every behavior
// lives in the package it delegates to.
package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/didierodjou/televkvpn/internal/authprompt"
	"github.com/didierodjou/televkvpn/internal/config"
	"github.com/didierodjou/televkvpn/internal/hostnet"
	"github.com/didierodjou/televkvpn/internal/identity"
	"github.com/didierodjou/televkvpn/internal/metrics"
	"github.com/didierodjou/televkvpn/internal/obslog"
	"github.com/didierodjou/televkvpn/internal/statsink"
	"github.com/didierodjou/televkvpn/internal/tapdevice"
	"github.com/didierodjou/televkvpn/internal/transport"
	"github.com/didierodjou/televkvpn/internal/tunnel"
	"github.com/didierodjou/televkvpn/pkg/tunnelcrypto"
)

// Role is which side of the tunnel this process runs as.
type Role string

const (
	RoleClient Role = "client"
	RoleServer Role = "server"
)

// Callbacks lets a UI (or, today, the CLI's plain stdout logging) observe
// the interactive auth prompts (phone, code, password, CAPTCHA) and the
// traffic-started signal without
// this package depending on any particular presentation.
type Callbacks struct {
	OnTrafficStarted func()
	OnAuthPrompt     authprompt.Handler
}

// Application is the fully wired daemon: everything main() needs to start
// and stop a tunnel end.
type Application struct {
	cfg  *config.Config
	role Role
	log  *obslog.Logger

	tap       *tapdevice.Device
	hn        hostnet.HostNet
	tr        transport.Transport
	handler   *tunnel.Handler
	metricsSrv *http.Server
	sink      *statsink.Sink

	callbacks Callbacks

	ctx    context.Context
	cancel context.CancelFunc
}

// New constructs an Application from a loaded configuration. Nothing is
// started yet; call Initialize, then StartReadingPackets.
func New(cfg *config.Config, role Role) (*Application, error) {
	logPath := cfg.Logging.OutputFile
	level := obslog.INFO
	switch cfg.Logging.Level {
	case "debug":
		level = obslog.DEBUG
	case "warn":
		level = obslog.WARN
	case "error":
		level = obslog.ERROR
	}
	log, err := obslog.New(string(role), level, logPath)
	if err != nil {
		return nil, fmt.Errorf("app: init logger: %w", err)
	}

	return &Application{cfg: cfg, role: role, log: log}, nil
}

// SetCallbacks registers the UI hooks; it takes effect only when called
// before Initialize, which hands them to the transport and handler.
func (a *Application) SetCallbacks(cb Callbacks) {
	a.callbacks = cb
}

// Initialize builds every component (TAP, transport, host networking,
// handler) without starting the data plane, so a caller can inspect wiring
// errors (bad credentials, missing TAP driver) before committing to
// bringing the tunnel up.
func (a *Application) Initialize(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	box, err := tunnelcrypto.NewBoxFromSlice([]byte(a.cfg.EncryptionKey))
	if err != nil {
		return fmt.Errorf("app: encryption key: %w", err)
	}

	dedupe, err := a.buildDedupe()
	if err != nil {
		return fmt.Errorf("app: dedupe cache: %w", err)
	}

	a.tr = a.buildTransport(box, dedupe)

	tapName := a.cfg.TAPInterfaceName
	if runtime.GOOS == "windows" {
		discovered, err := tapdevice.Discover("TAP-Windows")
		if err != nil {
			return fmt.Errorf("app: discover TAP adapter: %w", err)
		}
		tapName = discovered
	}

	tap, err := tapdevice.New(tapdevice.Config{Name: tapName, MTU: a.cfg.MTU})
	if err != nil {
		return fmt.Errorf("app: open TAP device: %w", err)
	}
	a.tap = tap

	switch runtime.GOOS {
	case "windows":
		a.hn = hostnet.NewWindows()
	default:
		a.hn = hostnet.NewLinux()
	}

	localIP := net.ParseIP(a.cfg.IPForRole(string(a.role)))
	peerIP := net.ParseIP(a.cfg.ServerIP)
	if a.role == RoleServer {
		peerIP = net.ParseIP(a.cfg.ClientIP)
	}

	handlerCfg := tunnel.Config{
		Mode:         tunnel.Role(a.role),
		TAPIfaceName: tap.Name(),
		LocalIP:      localIP,
		PeerIP:       peerIP,
		MaxFrameSize: a.cfg.MTU,
		Bringup:      a.bringupFunc(tap.Name()),
		Cleanup:      func() error { return a.hn.Cleanup(tap.Name()) },
	}
	a.handler = tunnel.New(handlerCfg, tap, a.hn, a.tr.Send, a.log)
	if a.callbacks.OnTrafficStarted != nil {
		a.handler.SetTrafficStartedCallback(a.callbacks.OnTrafficStarted)
	}

	if a.cfg.Metrics.Enabled {
		a.metricsSrv = metrics.StartHTTP(a.cfg.Metrics.Listen)
	}

	if a.cfg.Postgres.Host != "" {
		sink, err := statsink.New(a.cfg.Postgres)
		if err != nil {
			a.log.Warnf("app: stats sink disabled: %v", err)
		} else {
			a.sink = sink
		}
	}

	return nil
}

func (a *Application) buildDedupe() (transport.Dedupe, error) {
	if a.cfg.Redis.Host == "" {
		return transport.NewLRUDedupe(4096), nil
	}
	return transport.NewRedisDedupe(transport.RedisConfig{
		Host:     a.cfg.Redis.Host,
		Port:     a.cfg.Redis.Port,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
		TTL:      a.cfg.Redis.TTL,
	}, "televkvpn:dedupe")
}

func (a *Application) buildTransport(box *tunnelcrypto.Box, dedupe transport.Dedupe) transport.Transport {
	batchInterval := time.Duration(a.cfg.BatchInterval * float64(time.Second))

	switch a.cfg.TransportType {
	case "vk":
		return transport.NewVKTransport(transport.VKConfig{
			Token:         a.cfg.VK.Token,
			PeerID:        a.cfg.VK.PeerID,
			AppID:         a.cfg.VK.AppID,
			Login:         a.cfg.VK.Login,
			Compression:   a.cfg.CompressionEnabled,
			Key:           box,
			SendQueueCap:  a.cfg.VK.SendQueueCap,
			BatchInterval: batchInterval,
			MaxBatchSize:  a.cfg.MaxBatchSize,
			AuthPrompt:    a.callbacks.OnAuthPrompt,
			Dedupe:        dedupe,
			Log:           a.log,
		})
	default:
		return transport.NewTelegramTransport(transport.TelegramConfig{
			BotToken:      a.cfg.Telegram.BotToken,
			ChatID:        a.cfg.Telegram.ChatID,
			APIID:         a.cfg.Telegram.APIID,
			APIHash:       a.cfg.Telegram.APIHash,
			Compression:   a.cfg.CompressionEnabled,
			Key:           box,
			SendQueueCap:  a.cfg.Telegram.SendQueueCap,
			BatchInterval: batchInterval,
			MaxBatchSize:  a.cfg.MaxBatchSize,
			AuthPrompt:    a.callbacks.OnAuthPrompt,
			Dedupe:        dedupe,
			Log:           a.log,
		})
	}
}

func (a *Application) bringupFunc(iface string) func() error {
	if a.role == RoleServer {
		return func() error {
			return hostnet.SetupServer(a.hn, hostnet.ServerBringup{
				Iface:      iface,
				MTU:        a.cfg.MTU,
				SubnetCIDR: a.cfg.Subnet,
			})
		}
	}
	return func() error {
		return hostnet.SetupClient(a.hn, hostnet.ClientBringup{
			Iface:          iface,
			MTU:            a.cfg.MTU,
			ServerIP:       a.cfg.ServerIP,
			TransportType:  a.cfg.TransportType,
			ExclusionCIDRs: a.cfg.TelegramSubnets,
			DNSServers:     a.cfg.DNSServers,
		})
	}
}

// StartReadingPackets brings the transport and the packet handler up: the
// transport first, since the handler's bring-up needs Send already wired to
// a live session, then TAP and host networking.
func (a *Application) StartReadingPackets() error {
	transportRole := transport.RoleClient
	if a.role == RoleServer {
		transportRole = transport.RoleServer
	}

	if err := a.tr.Init(a.ctx, a.handler.HandleFromTransport, transportRole); err != nil {
		return fmt.Errorf("app: transport init: %w", err)
	}

	if err := a.handler.Start(a.ctx); err != nil {
		_ = a.tr.Disconnect()
		return fmt.Errorf("app: handler start: %w", err)
	}

	if a.sink != nil {
		a.sink.Start(a.ctx)
	}

	a.log.Infof("tunnel up: role=%s transport=%s location=%q", a.role, a.cfg.TransportType, a.cfg.LocationLabel)
	return nil
}

// Shutdown reverses StartReadingPackets/Initialize, in reverse order,
// best-effort at every step.
func (a *Application) Shutdown() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.sink != nil {
		a.sink.Stop()
	}
	if a.handler != nil {
		if err := a.handler.Stop(); err != nil {
			a.log.Warnf("app: handler stop: %v", err)
		}
	}
	if a.tr != nil {
		if err := a.tr.Disconnect(); err != nil {
			a.log.Warnf("app: transport disconnect: %v", err)
		}
	}
	if a.metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.metricsSrv.Shutdown(shutdownCtx)
	}
}

// Run blocks until SIGINT/SIGTERM, then shuts down cleanly. This is the
// daemon's whole steady-state lifetime once StartReadingPackets returns.
func (a *Application) Run() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	<-sigCh
	a.log.Infof("shutdown signal received")
	a.Shutdown()
}

// KeyFingerprint returns a short fingerprint of the tunnel's pre-shared
// key, for display without ever printing the key itself.
func (a *Application) KeyFingerprint() string {
	return identity.KeyFingerprint([]byte(a.cfg.EncryptionKey))
}
