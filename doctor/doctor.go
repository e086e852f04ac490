// Package doctor runs connectivity diagnostics against the native engine.
package doctor

import (
	"context"
	"fmt"
	"time"

	"github.com/arach/scout-sub000/clipboard"
	"github.com/arach/scout-sub000/events"
	"github.com/arach/scout-sub000/ipc"
)

const checkTimeout = 10 * time.Second

// Run executes the checks and returns an exit code (0=all pass, 1=any fail).
func Run(addr string) int {
	fmt.Println("scout doctor - engine diagnostics")
	fmt.Println("=================================")

	allPass := true

	client := checkDial(addr)
	if client == nil {
		allPass = false
	} else {
		defer client.Close()
		if !checkStatus(client) {
			allPass = false
		}
	}
	if !checkClipboard() {
		allPass = false
	}

	fmt.Println()
	if allPass {
		fmt.Println("All checks passed!")
		return 0
	}
	fmt.Println("Some checks failed. See details above.")
	return 1
}

func checkDial(addr string) *ipc.Client {
	fmt.Println()
	fmt.Println("[1/3] Engine connection")

	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()

	bus := events.NewBus()
	client, err := ipc.Dial(ctx, addr, bus)
	if err != nil {
		fmt.Printf("  FAIL: could not reach engine at %s: %v\n", addr, err)
		return nil
	}
	fmt.Printf("  PASS: connected to %s\n", addr)
	return client
}

func checkStatus(client *ipc.Client) bool {
	fmt.Println()
	fmt.Println("[2/3] Recording status query")

	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()

	active, err := client.IsRecording(ctx)
	if err != nil {
		fmt.Printf("  FAIL: is_recording: %v\n", err)
		return false
	}
	fmt.Printf("  PASS: engine reports recording=%v\n", active)
	return true
}

func checkClipboard() bool {
	fmt.Println()
	fmt.Println("[3/3] Clipboard")

	const probe = "scout-doctor-probe"
	prev, _ := clipboard.Read()
	if err := clipboard.Copy(probe); err != nil {
		fmt.Printf("  FAIL: copy: %v\n", err)
		return false
	}
	got, err := clipboard.Read()
	if prev != "" {
		clipboard.Copy(prev)
	}
	if err != nil || got != probe {
		fmt.Printf("  FAIL: read back %q (err=%v)\n", got, err)
		return false
	}
	fmt.Println("  PASS: clipboard round trip")
	return true
}
