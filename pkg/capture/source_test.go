package capture

import (
	"context"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/haivivi/edutalk/pkg/audio/pcm"
)

func TestCommandSource(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	// Two frames of silence, then wait to be killed.
	src := &CommandSource{
		Command: []string{"sh", "-c", "head -c 2048 /dev/zero; exec sleep 10"},
		Format:  pcm.L16Mono16K,
		Chunk:   512,
	}

	var mu sync.Mutex
	var frames [][]int16
	got := make(chan struct{}, 8)
	err := src.Start(context.Background(), func(f []int16) {
		mu.Lock()
		frames = append(frames, f)
		mu.Unlock()
		got <- struct{}{}
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := src.Start(context.Background(), func([]int16) {}); err == nil {
		t.Fatal("second Start succeeded")
	}

	for range 2 {
		select {
		case <-got:
		case <-time.After(5 * time.Second):
			t.Fatal("frames not delivered")
		}
	}

	start := time.Now()
	if err := src.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("Stop did not kill the command")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(frames) != 2 || len(frames[0]) != 512 {
		t.Fatalf("frames = %d, first len %d", len(frames), len(frames[0]))
	}
	if err := src.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestCommandSourceMissingBinary(t *testing.T) {
	src := &CommandSource{Command: []string{"edutalk-no-such-recorder"}, Format: pcm.L16Mono16K}
	if err := src.Start(context.Background(), func([]int16) {}); err == nil {
		t.Fatal("Start with missing binary succeeded")
	}
}
