package infra

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BryanGreenaway/RingLight/internal/domain"
)

// writeScript drops an executable shell script into a temp dir.
func writeScript(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755))
	return path
}

func newTestSupervisor(t *testing.T, params domain.OverlayParams, binFor func(screen string) string) *Supervisor {
	t.Helper()
	return NewSupervisorWithCommand(params, zap.NewNop(), func(screen string, args []string) *exec.Cmd {
		return exec.Command(binFor(screen), args...)
	})
}

// TestSupervisor_SpawnAndTerminate covers the basic lifecycle across two screens.
func TestSupervisor_SpawnAndTerminate(t *testing.T) {
	bin := writeScript(t, "fake-overlay", "sleep 30\n")
	params := domain.OverlayParams{Color: 0xFFFFFF, Brightness: 100, Width: 80, Screens: []string{"0", "1"}}
	s := newTestSupervisor(t, params, func(string) string { return bin })

	require.NoError(t, s.Spawn())
	children := s.Children()
	require.Len(t, children, 2)
	assert.Equal(t, "0", children[0].Screen)
	assert.Equal(t, "1", children[1].Screen)
	assert.True(t, s.Active())

	pm := NewProcessManager()
	for _, c := range children {
		assert.True(t, pm.IsRunning(c.PID), "child %d should be alive", c.PID)
	}

	s.Terminate()
	assert.False(t, s.Active())
	assert.Empty(t, s.Children())
	for _, c := range children {
		assert.False(t, pm.IsRunning(c.PID), "child %d should be reaped", c.PID)
	}

	// Second terminate is a no-op.
	s.Terminate()
	assert.Empty(t, s.Children())
}

// TestSupervisor_SpawnIdempotent verifies a second spawn leaves the child set alone.
func TestSupervisor_SpawnIdempotent(t *testing.T) {
	bin := writeScript(t, "fake-overlay", "sleep 30\n")
	s := newTestSupervisor(t, domain.OverlayParams{Screens: []string{"0"}}, func(string) string { return bin })

	require.NoError(t, s.Spawn())
	first := s.Children()
	require.NoError(t, s.Spawn())
	assert.Equal(t, first, s.Children())

	s.Terminate()
}

// TestSupervisor_DefaultScreen verifies one child is spawned when no
// selectors are configured, without a -s argument.
func TestSupervisor_DefaultScreen(t *testing.T) {
	bin := writeScript(t, "fake-overlay", "sleep 30\n")
	s := newTestSupervisor(t, domain.OverlayParams{Color: 0xFFFFFF, Brightness: 100, Width: 80}, func(string) string { return bin })

	require.NoError(t, s.Spawn())
	children := s.Children()
	require.Len(t, children, 1)
	assert.Equal(t, "", children[0].Screen)

	s.Terminate()
}

// TestSupervisor_PartialSpawnFailure verifies one bad selector doesn't abort
// the rest (screens=0,1,2 with the binary missing for selector 1).
func TestSupervisor_PartialSpawnFailure(t *testing.T) {
	bin := writeScript(t, "fake-overlay", "sleep 30\n")
	params := domain.OverlayParams{Screens: []string{"0", "1", "2"}}
	s := newTestSupervisor(t, params, func(screen string) string {
		if screen == "1" {
			return filepath.Join(t.TempDir(), "missing-overlay")
		}
		return bin
	})

	require.NoError(t, s.Spawn())
	children := s.Children()
	require.Len(t, children, 2)
	assert.Equal(t, "0", children[0].Screen)
	assert.Equal(t, "2", children[1].Screen)
	assert.True(t, s.Active())

	s.Terminate()
}

// TestSupervisor_AllSpawnsFail verifies total failure surfaces as ErrSpawnFailure.
func TestSupervisor_AllSpawnsFail(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing-overlay")
	s := newTestSupervisor(t, domain.OverlayParams{Screens: []string{"0"}}, func(string) string { return missing })

	err := s.Spawn()
	assert.ErrorIs(t, err, domain.ErrSpawnFailure)
	assert.False(t, s.Active())
}

// TestSupervisor_KillsStubbornChildren verifies escalation to SIGKILL within
// the terminate deadline.
func TestSupervisor_KillsStubbornChildren(t *testing.T) {
	bin := writeScript(t, "stubborn-overlay", "trap '' TERM\nwhile true; do sleep 1; done\n")
	s := newTestSupervisor(t, domain.OverlayParams{Screens: []string{"0"}}, func(string) string { return bin })

	require.NoError(t, s.Spawn())
	require.True(t, s.Active())

	start := time.Now()
	s.Terminate()
	elapsed := time.Since(start)

	assert.False(t, s.Active())
	assert.Less(t, elapsed, 2*time.Second, "terminate should stay near its 500ms deadline")
}

// TestSupervisor_ActiveDropsExitedChildren verifies a child dying on its own
// reads as inactive so the loop can re-arm.
func TestSupervisor_ActiveDropsExitedChildren(t *testing.T) {
	bin := writeScript(t, "flaky-overlay", "exit 0\n")
	s := newTestSupervisor(t, domain.OverlayParams{Screens: []string{"0"}}, func(string) string { return bin })

	require.NoError(t, s.Spawn())
	assert.Eventually(t, func() bool { return !s.Active() }, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, s.Children())
}

// TestSupervisor_OverlayArgs covers the renderer CLI construction.
func TestSupervisor_OverlayArgs(t *testing.T) {
	s := NewSupervisor(domain.OverlayParams{Color: 0xFFFFFF, Brightness: 100, Width: 80}, zap.NewNop())
	assert.Equal(t, []string{"-c", "FFFFFF", "-b", "100", "-w", "80", "-s", "0"}, s.overlayArgs("0"))
	assert.Equal(t, []string{"-c", "FFFFFF", "-b", "100", "-w", "80"}, s.overlayArgs(""))

	s = NewSupervisor(domain.OverlayParams{Color: 0x11AA22, Brightness: 1, Width: 500, Fullscreen: true}, zap.NewNop())
	assert.Equal(t, []string{"-c", "11AA22", "-b", "1", "-w", "500", "-f", "-s", "DP-1"}, s.overlayArgs("DP-1"))
}
