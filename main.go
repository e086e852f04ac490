package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/arach/scout-sub000/audiocache"
	"github.com/arach/scout-sub000/clipboard"
	"github.com/arach/scout-sub000/doctor"
	"github.com/arach/scout-sub000/events"
	"github.com/arach/scout-sub000/ipc"
	"github.com/arach/scout-sub000/log"
	"github.com/arach/scout-sub000/recording"
)

var version = "dev"

var transcriptCount atomic.Int64

var shutdownOnce sync.Once

func gracefulShutdown() {
	shutdownOnce.Do(func() {
		if n := transcriptCount.Load(); n > 0 {
			log.SessionEnd(int(n))
		}
		log.Close()
		tuiMu.Lock()
		p := tuiProgram
		tuiMu.Unlock()
		if p != nil {
			p.Quit()
		}
		os.Exit(0)
	})
}

func modeLineText(addr string, sounds, copyFlag, ptt bool) string {
	opts := ""
	if ptt {
		opts += " ptt"
	}
	if sounds {
		opts += " sounds"
	}
	if copyFlag {
		opts += " copy"
	}
	return fmt.Sprintf("[%s |%s]", addr, opts)
}

func deviceLineText(device string) string {
	if device == "" || device == recording.DefaultDeviceLabel {
		return "mic: system default"
	}
	return "mic: " + device
}

func cacheLineText(cache *audiocache.Cache) string {
	return fmt.Sprintf("cache: %d clips, %.1f MB", cache.Len(), float64(cache.TotalBytes())/(1024*1024))
}

func reportRecordingError(err error) {
	if err == nil {
		return
	}
	logToTUI("Error recording: %v", err)
	log.Errorf("recording error: %v", err)
}

// transcriptText pulls the text out of a processing-complete payload. The
// payload shape is the engine's; anything unrecognized yields "".
func transcriptText(payload any) string {
	switch p := payload.(type) {
	case string:
		return p
	case json.RawMessage:
		var s string
		if json.Unmarshal(p, &s) == nil {
			return s
		}
		var obj struct {
			Text string `json:"text"`
		}
		if json.Unmarshal(p, &obj) == nil {
			return obj.Text
		}
	}
	return ""
}

func run() {
	addrFlag := flag.String("addr", "ws://127.0.0.1:4765/ipc", "Engine websocket endpoint")
	deviceFlag := flag.String("device", "", "Microphone device label (empty = system default)")
	soundsFlag := flag.Bool("sounds", true, "Play start/stop sounds via the engine")
	copyFlag := flag.Bool("copy", true, "Copy finished transcripts to the clipboard")
	pttFlag := flag.Bool("ptt", true, "React to push-to-talk events from the engine")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	doctorFlag := flag.Bool("doctor", false, "Run engine diagnostics and exit")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	tuiFlag := flag.Bool("tui", true, "Run with terminal UI")
	flag.Parse()

	// Resolve log directory early
	logPath, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)

	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}

	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	}

	if *versionFlag {
		fmt.Printf("scout %s\n", version)
		os.Exit(0)
	}

	if *doctorFlag {
		os.Exit(doctor.Run(*addrFlag))
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}

	bus := events.NewBus()
	defer bus.Close()

	dialCtx, dialCancel := context.WithTimeout(context.Background(), 30*time.Second)
	client, err := ipc.Dial(dialCtx, *addrFlag, bus)
	dialCancel()
	if err != nil {
		log.Errorf("engine dial error: %v", err)
		fmt.Printf("Error connecting to engine: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	log.SessionStart(*addrFlag, *deviceFlag)

	cache := audiocache.Default()
	monCtx, monCancel := context.WithCancel(context.Background())
	defer monCancel()
	cache.Monitor(monCtx)

	// Warm the cache with the finished clip so replaying it later does not
	// go back over IPC. The clip path arrives on recording-progress events.
	var lastClip atomic.Value
	fetcher := audiocache.NewFetcher(cache, client.ReadAudioFile, func(res audiocache.Result) {
		if res.Err != "" {
			log.Warnf("audio prefetch failed for %s: %s", res.Path, res.Err)
		}
	})
	defer fetcher.Close()

	unsubProgress := bus.Subscribe(events.RecordingProgress, func(payload any) {
		if pp, ok := payload.(events.ProgressPayload); ok && pp.Recording != nil && pp.Recording.Filename != "" {
			lastClip.Store(pp.Recording.Filename)
		}
	})
	defer unsubProgress()

	session := recording.NewSession(client, recording.Config{
		Device:        *deviceFlag,
		SoundsEnabled: *soundsFlag,
		OnRecordingStart: func() {
			tuiSend(RecordingStartMsg{})
		},
		OnRecordingComplete: func() {
			tuiSend(RecordingStopMsg{})
			if path, _ := lastClip.Load().(string); path != "" {
				fetcher.SetPath(path)
			}
		},
		OnTranscriptCreated: func(payload any) {
			transcriptCount.Add(1)
			text := transcriptText(payload)
			copied := false
			if text != "" {
				log.TranscriptText(text)
				if *copyFlag {
					if err := clipboard.Copy(text); err != nil {
						log.Warnf("clipboard copy failed: %v", err)
					} else {
						copied = true
					}
				}
			}
			tuiSend(TranscriptMsg{Text: text, Copied: copied})
		},
	})

	detach := session.Attach(context.Background(), bus)
	defer detach()

	if *pttFlag {
		monitor := recording.NewMonitor(session)
		stopPTT := monitor.Start(bus)
		defer stopPTT()
	}

	// Start TUI
	if !*tuiFlag {
		tuiReadyOnce.Do(func() { close(tuiReady) })
	} else {
		tuiMu.Lock()
		tuiProgram = NewTUIProgram()
		tuiMu.Unlock()

		go func() {
			if _, err := tuiProgram.Run(); err != nil {
				log.Errorf("TUI error: %v", err)
				os.Exit(1)
			}
			gracefulShutdown()
		}()

		<-tuiReady
	}

	tuiSend(ModeLineMsg{Text: modeLineText(*addrFlag, *soundsFlag, *copyFlag, *pttFlag)})
	tuiSend(DeviceLineMsg{Text: deviceLineText(*deviceFlag)})

	// Duration and cache status ticks for the UI
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		n := 0
		for range ticker.C {
			if start, ok := session.StartTime(); ok && session.IsRecording() {
				tuiSend(RecordingTickMsg{Duration: time.Since(start).Seconds()})
			}
			if n++; n%10 == 0 {
				tuiSend(CacheLineMsg{Text: cacheLineText(cache)})
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-toggleChan:
			reportRecordingError(session.Toggle(context.Background()))
		case <-cancelChan:
			reportRecordingError(session.Cancel(context.Background()))
			tuiSend(RecordingStopMsg{})
		case <-sigChan:
			gracefulShutdown()
		}
	}
}

func main() {
	run()
}
