package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/VK7KSM/ElfRadio/internal/aiclient"
	"github.com/VK7KSM/ElfRadio/internal/apiserver"
	"github.com/VK7KSM/ElfRadio/internal/audioin"
	"github.com/VK7KSM/ElfRadio/internal/bus"
	"github.com/VK7KSM/ElfRadio/internal/config"
	"github.com/VK7KSM/ElfRadio/internal/elfradio"
	"github.com/VK7KSM/ElfRadio/internal/fanout"
	"github.com/VK7KSM/ElfRadio/internal/hardware"
	"github.com/VK7KSM/ElfRadio/internal/logger"
	"github.com/VK7KSM/ElfRadio/internal/netmon"
	"github.com/VK7KSM/ElfRadio/internal/status"
	"github.com/VK7KSM/ElfRadio/internal/store"
	"github.com/VK7KSM/ElfRadio/internal/task"
	"github.com/VK7KSM/ElfRadio/internal/txqueue"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run())
}

func run() int {
	devMode := flag.Bool("dev", false, "development mode (verbose console logging)")
	flag.Parse()

	// 1. Configuration: layered load, falling back to in-memory
	// defaults when the user layer is unreadable.
	cfg, err := config.Load()
	if err != nil {
		fallback, fbErr := config.DefaultSnapshot()
		if fbErr != nil {
			// Not even the embedded defaults parse; nothing to run with.
			os.Stderr.WriteString("fatal: config unreadable: " + err.Error() + "\n")
			return 1
		}
		cfg = fallback
	}

	// 2. Logging.
	if logErr := logger.Init(cfg.Log, *devMode); logErr != nil {
		os.Stderr.WriteString("fatal: logger init: " + logErr.Error() + "\n")
		return 1
	}
	defer logger.Sync()
	if err != nil {
		logger.L().Warn("user config unreadable, continuing on defaults", zap.Error(err))
	}

	// 3. Task root + persistence. A DB init failure is fatal.
	taskRoot := cfg.TaskRoot
	if taskRoot == "" {
		taskRoot = "tasks"
	}
	if err := os.MkdirAll(taskRoot, 0o755); err != nil {
		logger.L().Error("create task root failed", zap.String("task_root", taskRoot), zap.Error(err))
		return 1
	}
	dsn := cfg.Database.DSN
	if dsn == "" {
		dsn = "file:" + filepath.Join(taskRoot, "elfradio_data.db") + "?_journal_mode=WAL&_foreign_keys=on"
	}
	st, err := store.Open(cfg.Database.Driver, dsn)
	if err != nil {
		logger.L().Error("database init failed", zap.String("dsn", dsn), zap.Error(err))
		return 1
	}

	// 4. Shared state, bus, fan-out.
	state := elfradio.NewAppState(cfg)
	b := bus.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := fanout.New(state, b)
	f.Start(ctx)

	// 5. AI registry slots + startup health publication.
	buildClients(ctx, cfg, state, b)

	// 6. Hardware audio I/O; failure degrades to simulation-only
	// operation rather than aborting startup.
	audioIO, err := hardware.NewAudioIO(nil)
	if err != nil {
		logger.L().Warn("audio backend unavailable, hardware playback/capture disabled", zap.Error(err))
		audioIO = nil
	}

	playbackCh := make(chan []float32, 16)
	go playbackLoop(state, audioIO, cfg, playbackCh)

	captureMsgs := make(chan audioin.Message, 128)
	if audioIO != nil {
		if err := audioIO.StartCapture(cfg.Hardware.InputDevice, cfg.Hardware.InputSampleRate); err != nil {
			logger.L().Warn("audio capture unavailable", zap.Error(err))
		} else {
			go captureBridge(state, audioIO, captureMsgs)
		}
	}

	// 7. Long-lived pipeline tasks.
	tm := task.NewManager(state, st, b, taskRoot)
	tx := txqueue.NewProcessor(state, st, b, playbackCh)
	go tx.Run(ctx)

	rx := audioin.NewProcessor(state, st, b, captureMsgs)
	go rx.Run(ctx)

	nm := netmon.New(b, cfg.NetworkMonitor, state.ShutdownCh)
	go func() {
		// One-shot startup probe, then the periodic loop takes over.
		nm.CheckOnce(ctx)
		nm.Run(ctx)
	}()

	// 8. HTTP/WebSocket surface.
	srv := apiserver.New(state, st, b, f, tm, tx)
	addr := cfg.Server.Addr
	if addr == "" {
		addr = ":8787"
	}
	httpSrv := &http.Server{Addr: addr, Handler: srv.Handler()}

	errCh := make(chan error, 1)
	go func() {
		logger.L().Info("elfradio listening", zap.String("addr", addr))
		errCh <- httpSrv.ListenAndServe()
	}()

	// 9. Shutdown on signal: close the watch channel, stop accepting,
	// let each cooperative task finish its iteration.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.L().Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L().Error("http server failed", zap.Error(err))
			state.Shutdown()
			return 1
		}
	}

	state.Shutdown()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)

	if audioIO != nil {
		_ = audioIO.Close()
	}
	return 0
}

// buildClients constructs both registry slots from the config
// selection and publishes the startup health each slot derives:
// Warning for unselected/incomplete providers, Error for construction
// failures, Ok for a live client.
func buildClients(ctx context.Context, cfg *config.ConfigSnapshot, state *elfradio.AppState, b *bus.Bus) {
	ai, aiResult, err := aiclient.BuildAiClient(cfg)
	switch {
	case err != nil:
		logger.L().Error("primary ai client construction failed", zap.Error(err))
		b.PublishStatus(bus.Service(elfradio.StatusUpdateLlm, elfradio.ServiceStatusError))
	case ai == nil:
		logger.L().Warn("primary ai client not configured", zap.String("reason", aiResult.Warning))
		b.PublishStatus(bus.Service(elfradio.StatusUpdateLlm, elfradio.ServiceStatusWarning))
	default:
		state.SetAiClient(ai)
		b.PublishStatus(bus.Service(elfradio.StatusUpdateLlm, elfradio.ServiceStatusOk))
	}

	aux, auxResult, err := aiclient.BuildAuxClient(ctx, cfg)
	auxStatus := elfradio.ServiceStatusOk
	switch {
	case err != nil:
		logger.L().Error("aux client construction failed", zap.Error(err))
		auxStatus = elfradio.ServiceStatusError
	case aux == nil:
		logger.L().Warn("aux client not configured", zap.String("reason", auxResult.Warning))
		auxStatus = elfradio.ServiceStatusWarning
	default:
		state.SetAuxClient(aux)
	}
	for _, kind := range []status.ServiceKind{status.KindSTT, status.KindTTS, status.KindTranslate} {
		b.PublishStatus(bus.Service(status.UpdateKindFor(kind), auxStatus))
	}
}

// playbackLoop drains the TX processor's playback channel into the
// output device. With no audio backend the samples are consumed and
// dropped so real-mode transmissions still complete their timing.
func playbackLoop(state *elfradio.AppState, audioIO *hardware.AudioIO, cfg *config.ConfigSnapshot, ch <-chan []float32) {
	for {
		select {
		case <-state.ShutdownCh:
			return
		case samples := <-ch:
			if audioIO == nil {
				continue
			}
			if err := audioIO.PlayOnce(cfg.Hardware.OutputDevice, 16000, samples); err != nil {
				logger.L().Error("audio playback failed", zap.Error(err))
			}
		}
	}
}

// captureBridge adapts capture frames into the audio-in processor's
// message union: every frame yields an Rms message (VU meter) and a
// Data message (VAD/STT path).
func captureBridge(state *elfradio.AppState, audioIO *hardware.AudioIO, out chan<- audioin.Message) {
	for {
		select {
		case <-state.ShutdownCh:
			return
		case frame := <-audioIO.CaptureCh:
			select {
			case out <- audioin.Message{Kind: audioin.MessageRms, RMS: frame.RMS}:
			default:
			}
			select {
			case out <- audioin.Message{Kind: audioin.MessageData, Samples: frame.Samples}:
			default:
			}
		}
	}
}
