//go:build integration

package integration

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/BryanGreenaway/RingLight/internal/config"
	"github.com/BryanGreenaway/RingLight/internal/daemon"
	"github.com/BryanGreenaway/RingLight/internal/domain"
	"github.com/BryanGreenaway/RingLight/internal/infra"
)

// settableProbe reports whatever the test last set, like a real device
// going busy and idle under our control.
type settableProbe struct {
	mu   sync.Mutex
	busy bool
}

func (p *settableProbe) set(busy bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.busy = busy
}

func (p *settableProbe) InUse() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.busy
}

var _ = Describe("Monitor lifecycle", func() {
	var (
		tmpDir     string
		overlayBin string
		logger     *zap.Logger
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "ringlight-integration-*")
		Expect(err).NotTo(HaveOccurred())

		overlayBin = filepath.Join(tmpDir, "fake-overlay")
		err = os.WriteFile(overlayBin, []byte("#!/bin/sh\nexec sleep 30\n"), 0755)
		Expect(err).NotTo(HaveOccurred())

		logger = zap.NewNop()
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	newSupervisor := func(params domain.OverlayParams, spawnedArgs *[][]string) *infra.Supervisor {
		return infra.NewSupervisorWithCommand(params, logger, func(screen string, args []string) *exec.Cmd {
			if spawnedArgs != nil {
				*spawnedArgs = append(*spawnedArgs, args)
			}
			return exec.Command(overlayBin, args...)
		})
	}

	Describe("camera mode with a flapping probe", func() {
		It("spawns real children on busy and reaps them on not-busy", func() {
			cfg, err := config.Load("") // defaults
			Expect(err).NotTo(HaveOccurred())
			cfg.Overlay.Screens = []string{"0"}

			var spawnedArgs [][]string
			sup := newSupervisor(cfg.Overlay, &spawnedArgs)
			probe := &settableProbe{}
			pm := infra.NewProcessManager()

			mon := daemon.NewMonitor(
				daemon.MonitorConfig{Mode: domain.ModeCamera, PollInterval: 20 * time.Millisecond},
				nil, nil, probe, sup, pm, logger,
			)

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- mon.Run(ctx) }()

			// Idle probe, nothing spawns.
			Consistently(sup.Active, 100*time.Millisecond, 10*time.Millisecond).Should(BeFalse())

			// Overlay comes up once the probe reads busy.
			probe.set(true)
			Eventually(sup.Active, time.Second, 5*time.Millisecond).Should(BeTrue())
			children := sup.Children()
			Expect(children).To(HaveLen(1))
			Expect(pm.IsRunning(children[0].PID)).To(BeTrue())

			// The renderer CLI matches the configured parameters.
			Expect(spawnedArgs).To(HaveLen(1))
			Expect(spawnedArgs[0]).To(Equal([]string{"-c", "FFFFFF", "-b", "100", "-w", "80", "-s", "0"}))

			// And goes away when the probe clears.
			probe.set(false)
			Eventually(sup.Active, time.Second, 5*time.Millisecond).Should(BeFalse())
			Expect(pm.IsRunning(children[0].PID)).To(BeFalse())

			cancel()
			Eventually(done, 2*time.Second).Should(Receive(BeNil()))
		})
	})

	Describe("multi-screen spawn with one failure", func() {
		It("keeps the successful children and stays lit", func() {
			params := domain.OverlayParams{
				Color:      0xFFFFFF,
				Brightness: 100,
				Width:      80,
				Screens:    []string{"0", "1", "2"},
			}
			missing := filepath.Join(tmpDir, "no-such-overlay")
			sup := infra.NewSupervisorWithCommand(params, logger, func(screen string, args []string) *exec.Cmd {
				if screen == "1" {
					return exec.Command(missing, args...)
				}
				return exec.Command(overlayBin, args...)
			})

			Expect(sup.Spawn()).To(Succeed())
			children := sup.Children()
			Expect(children).To(HaveLen(2))
			Expect(children[0].Screen).To(Equal("0"))
			Expect(children[1].Screen).To(Equal("2"))
			Expect(sup.Active()).To(BeTrue())

			sup.Terminate()
			Expect(sup.Children()).To(BeEmpty())
		})
	})

	Describe("shutdown while lit", func() {
		It("terminates every child and returns within the deadline", func() {
			sup := newSupervisor(domain.OverlayParams{Color: 0xFFFFFF, Brightness: 100, Width: 80}, nil)
			probe := &settableProbe{busy: true}
			pm := infra.NewProcessManager()

			mon := daemon.NewMonitor(
				daemon.MonitorConfig{Mode: domain.ModeCamera, PollInterval: 20 * time.Millisecond},
				nil, nil, probe, sup, pm, logger,
			)

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- mon.Run(ctx) }()

			Eventually(sup.Active, time.Second, 5*time.Millisecond).Should(BeTrue())
			children := sup.Children()
			Expect(children).NotTo(BeEmpty())

			start := time.Now()
			cancel()
			Eventually(done, 2*time.Second).Should(Receive(BeNil()))
			Expect(time.Since(start)).To(BeNumerically("<", time.Second))

			for _, c := range children {
				Expect(pm.IsRunning(c.PID)).To(BeFalse(), "child must be reaped")
			}
		})
	})

	Describe("configuration round trip", func() {
		It("reloads the clamped values identically", func() {
			path := filepath.Join(tmpDir, "config.ini")
			content := "[General]\nmode = camera\ncolor = #ABCDEF\nbrightness = 300\nwidth = 2\npoll_interval = 10\nscreens = 0,1\n"
			Expect(os.WriteFile(path, []byte(content), 0644)).To(Succeed())

			cfg, err := config.Load(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Overlay.Brightness).To(Equal(100))
			Expect(cfg.Overlay.Width).To(Equal(10))
			Expect(cfg.PollInterval).To(Equal(100 * time.Millisecond))

			out := filepath.Join(tmpDir, "out", "config.ini")
			Expect(cfg.Save(out)).To(Succeed())

			reloaded, err := config.Load(out)
			Expect(err).NotTo(HaveOccurred())
			Expect(reloaded).To(Equal(cfg))
		})
	})
})
