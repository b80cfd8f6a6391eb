package agent

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"ledbar-controller/internal/config"
	"ledbar-controller/internal/core"
	"ledbar-controller/internal/mqtt"
	"ledbar-controller/internal/output"
	"ledbar-controller/internal/router"
	"ledbar-controller/internal/scheduler"
	"ledbar-controller/internal/server"
)

const remoteQueueLen = 8

type Agent struct {
	ctx    context.Context
	cancel context.CancelFunc
	config *config.Config
	wg     sync.WaitGroup

	state          *core.AnimationState
	bank           *output.Bank
	eventBus       *core.EventBus
	commandChannel core.CommandChannel

	router     *router.Router
	homepage   *server.Homepage
	scheduler  *scheduler.Scheduler
	monitor    *server.Monitor
	mqttClient *mqtt.Client
}

func NewAgent(cfg *config.Config) (*Agent, error) {
	ctx, cancel := context.WithCancel(context.Background())

	a := &Agent{
		ctx:            ctx,
		cancel:         cancel,
		config:         cfg,
		state:          core.NewAnimationState(cfg.StepInterval, time.Now()),
		bank:           output.NewBank(output.NewLineDriver(cfg.Output.Pins, cfg.Output.LogFrames)),
		eventBus:       core.NewEventBus(),
		commandChannel: make(core.CommandChannel, remoteQueueLen),
		homepage:       server.NewHomepage(cfg.Server.HomepageFile),
	}

	a.router = router.New(a.state, a.bank, a.eventBus, time.Now)
	a.scheduler = scheduler.NewScheduler(a.commandChannel, cfg.Schedules)

	if cfg.Monitor.Enabled {
		a.monitor = server.NewMonitor(a.eventBus, ":"+cfg.Monitor.Port, cfg.Monitor.AllowedOrigins)
	}

	// nil when disabled
	a.mqttClient = mqtt.NewClient(cfg, a.eventBus, a.commandChannel)

	return a, nil
}

// Start runs the agent in the background. The returned channel yields the
// result of run once the loop exits. The loop is counted in the wait group
// before Start returns, so Shutdown always waits for it.
func (a *Agent) Start() <-chan error {
	errCh := make(chan error, 1)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		errCh <- a.run()
	}()
	return errCh
}

// run binds the control port and blocks in the loop until Shutdown.
// Failing to bind is the only fatal error.
func (a *Agent) run() error {
	ln, err := net.Listen("tcp", ":"+a.config.Server.Port)
	if err != nil {
		return fmt.Errorf("listen on port %s: %w", a.config.Server.Port, err)
	}
	defer ln.Close()
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		return fmt.Errorf("listen on port %s: unexpected listener %T", a.config.Server.Port, ln)
	}
	log.Printf("Agent listening on port %s", a.config.Server.Port)

	if a.monitor != nil {
		a.goRun(a.monitor.Run)
		go func() {
			log.Printf("[Monitor] Serving on port %s", a.config.Monitor.Port)
			if err := a.monitor.ListenAndServe(); err != nil {
				log.Printf("[Monitor] Server error: %v", err)
			}
		}()
	}

	if a.mqttClient != nil {
		a.goRun(a.mqttClient.Run)
		go func() {
			if err := a.mqttClient.Connect(); err != nil {
				log.Printf("[Agent] MQTT Setup Error: %v", err)
			}
		}()
	}

	a.scheduler.Start()

	loop := NewLoop(LoopConfig{
		AcceptWindow: a.config.AcceptWindow,
		ConnDeadline: a.config.ConnDeadline,
		PollInterval: a.config.PollInterval,
		ReadBuffer:   a.config.Server.ReadBuffer,
	}, tcpLn, a.state, a.bank, a.router, a.homepage, a.commandChannel, a.eventBus, time.Now)

	loop.Run(a.ctx)
	a.bank.SetAll(false)
	return nil
}

func (a *Agent) goRun(fn func(context.Context)) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn(a.ctx)
	}()
}

// Shutdown stops the loop first, then the services run started.
func (a *Agent) Shutdown() {
	a.cancel()
	a.wg.Wait()

	a.scheduler.Stop()
	if a.monitor != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = a.monitor.Shutdown(ctx)
		cancel()
	}
	if a.mqttClient != nil {
		a.mqttClient.Disconnect()
	}
}
