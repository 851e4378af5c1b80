// Package supervisor owns the backend process lifecycle: port allocation,
// spawn, the startup health gate, periodic monitoring and shutdown with
// signal escalation. One Supervisor manages at most one child at a time.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/voxkit/voxd/internal/history"
	"github.com/voxkit/voxd/internal/logger"
	"github.com/voxkit/voxd/internal/metrics"
	"github.com/voxkit/voxd/internal/netutil"
)

// Environment variables injected into the backend. The backend reads its
// listen port and writable data root from these instead of flags.
const (
	EnvBackendPort = "VOXD_BACKEND_PORT"
	EnvDataDir     = "VOXD_DATA_DIR"
)

// ErrStartupTimeout is returned by Start when the backend never passed the
// health gate. The child has already been killed when this is returned.
var ErrStartupTimeout = errors.New("backend did not become healthy before the startup deadline")

// IsStartupTimeout reports whether err is a failed startup health gate.
func IsStartupTimeout(err error) bool { return errors.Is(err, ErrStartupTimeout) }

// Config describes how to launch and watch the backend.
type Config struct {
	Name     string
	ExecPath string
	Args     []string
	WorkDir  string
	Env      map[string]string // extra variables, merged over the parent env

	PreferredPort int
	DataDir       string
	HealthPath    string

	StartupTimeout      time.Duration
	StartupPollInterval time.Duration
	MonitorInterval     time.Duration
	StopTimeout         time.Duration

	Capture logger.Config // rotating file capture of child output
	Logger  *slog.Logger
	Sinks   []history.Sink
}

// Supervisor runs the backend as a supervised child process. All exported
// methods are safe for concurrent use.
type Supervisor struct {
	cfg Config
	log *slog.Logger

	mu            sync.Mutex
	cmd           *exec.Cmd
	port          int
	starting      bool
	stopping      bool
	waitDone      chan struct{} // closed by the wait goroutine after state is cleared
	monitorCancel context.CancelFunc
	outCloser     io.WriteCloser
	errCloser     io.WriteCloser

	events chan Event
	client *http.Client
}

func New(cfg Config) *Supervisor {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = 30 * time.Second
	}
	if cfg.StartupPollInterval <= 0 {
		cfg.StartupPollInterval = 500 * time.Millisecond
	}
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = 10 * time.Second
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 5 * time.Second
	}
	if cfg.HealthPath == "" {
		cfg.HealthPath = "/health"
	}
	return &Supervisor{
		cfg:    cfg,
		log:    log,
		events: make(chan Event, eventBuffer),
		client: &http.Client{Timeout: 2 * time.Second},
	}
}

// Events returns the supervisor's event stream. Events are dropped, never
// blocked on, when the consumer falls behind.
func (s *Supervisor) Events() <-chan Event { return s.events }

// IsRunning reports whether a supervised child is currently alive.
func (s *Supervisor) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cmd != nil
}

// Port returns the port the running backend was bound to, or 0.
func (s *Supervisor) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// PID returns the running backend's process id, or 0.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// APIURL returns the base URL of the running backend, or "" when stopped.
func (s *Supervisor) APIURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil || s.port == 0 {
		return ""
	}
	return fmt.Sprintf("http://127.0.0.1:%d", s.port)
}

// Start allocates a port, spawns the backend and blocks until it answers its
// health endpoint. A second Start while the child is alive, or while another
// Start is still in its health gate, is a no-op.
// On a failed health gate the child is killed and ErrStartupTimeout returned.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cmd != nil || s.starting {
		s.mu.Unlock()
		s.log.Debug("backend already running; start ignored", "name", s.cfg.Name)
		return nil
	}
	s.starting = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.starting = false
		s.mu.Unlock()
	}()

	port, err := netutil.FindAvailablePort(s.cfg.PreferredPort)
	if err != nil {
		metrics.IncStartupFailure(s.cfg.Name, "port")
		return fmt.Errorf("allocate backend port: %w", err)
	}

	cmd, err := s.spawn(port)
	if err != nil {
		s.emit(Event{Kind: EventError, Message: err.Error()})
		metrics.IncStartupFailure(s.cfg.Name, "spawn")
		return err
	}

	started := time.Now()
	s.mu.Lock()
	s.cmd = cmd
	s.port = port
	s.stopping = false
	s.waitDone = make(chan struct{})
	waitDone := s.waitDone
	s.mu.Unlock()

	go s.wait(cmd, port)

	s.log.Info("backend started", "name", s.cfg.Name, "pid", cmd.Process.Pid, "port", port)
	s.record(ctx, history.EventStart, cmd.Process.Pid, port, "")
	metrics.IncStart(s.cfg.Name)

	if err := s.awaitHealthy(ctx, port, waitDone); err != nil {
		s.forceStop(waitDone)
		metrics.IncStartupFailure(s.cfg.Name, "health_gate")
		return err
	}
	metrics.ObserveStartupDuration(s.cfg.Name, time.Since(started).Seconds())
	s.log.Info("backend healthy", "name", s.cfg.Name, "port", port,
		"after", time.Since(started).Round(time.Millisecond))

	mctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.monitorCancel = cancel
	s.mu.Unlock()
	go s.monitor(mctx, port, waitDone)
	return nil
}

// spawn builds and starts the child process with the injected environment,
// its own process group and line-forwarded output pipes.
func (s *Supervisor) spawn(port int) (*exec.Cmd, error) {
	cmd := exec.Command(s.cfg.ExecPath, s.cfg.Args...)
	cmd.Dir = s.cfg.WorkDir

	env := os.Environ()
	for k, v := range s.cfg.Env {
		env = append(env, k+"="+v)
	}
	env = append(env,
		fmt.Sprintf("%s=%d", EnvBackendPort, port),
		EnvDataDir+"="+s.cfg.DataDir,
	)
	cmd.Env = env
	configureSysProcAttr(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	var outW, errW io.WriteCloser
	if s.cfg.Capture.Dir != "" || s.cfg.Capture.StdoutPath != "" || s.cfg.Capture.StderrPath != "" {
		if s.cfg.Capture.Dir != "" {
			_ = os.MkdirAll(s.cfg.Capture.Dir, 0o750)
		}
		outW, errW, _ = s.cfg.Capture.Writers(s.cfg.Name)
	}

	if err := cmd.Start(); err != nil {
		if outW != nil {
			_ = outW.Close()
		}
		if errW != nil {
			_ = errW.Close()
		}
		return nil, fmt.Errorf("start backend: %w", err)
	}

	s.mu.Lock()
	s.outCloser = outW
	s.errCloser = errW
	s.mu.Unlock()

	go s.forward(stdout, "info", outW)
	go s.forward(stderr, "error", errW)
	return cmd, nil
}

// forward turns one output pipe into log events and tees it into the capture
// writer. It ends when the pipe closes with the child.
func (s *Supervisor) forward(r io.Reader, level string, w io.Writer) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if w != nil {
			_, _ = w.Write(append([]byte(line), '\n'))
		}
		s.emit(Event{Kind: EventLog, Level: level, Message: line})
	}
}

// wait reaps the child, clears the running state and closes waitDone. It is
// the only place where cmd.Wait is called.
func (s *Supervisor) wait(cmd *exec.Cmd, port int) {
	err := cmd.Wait()
	code := 0
	if err != nil {
		code = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
	}

	s.mu.Lock()
	stopping := s.stopping
	s.cmd = nil
	s.port = 0
	if s.outCloser != nil {
		_ = s.outCloser.Close()
		s.outCloser = nil
	}
	if s.errCloser != nil {
		_ = s.errCloser.Close()
		s.errCloser = nil
	}
	waitDone := s.waitDone
	s.waitDone = nil
	s.mu.Unlock()

	if stopping {
		s.log.Info("backend stopped", "name", s.cfg.Name, "exit_code", code)
	} else {
		s.log.Warn("backend exited", "name", s.cfg.Name, "exit_code", code)
	}
	s.emit(Event{Kind: EventExit, ExitCode: code})
	s.record(context.Background(), history.EventExit, cmd.Process.Pid, port,
		fmt.Sprintf("exit_code=%d", code))

	if waitDone != nil {
		close(waitDone)
	}
}

// awaitHealthy polls the health endpoint until it answers 2xx, the child
// exits, the deadline passes or ctx is cancelled.
func (s *Supervisor) awaitHealthy(ctx context.Context, port int, waitDone chan struct{}) error {
	url := fmt.Sprintf("http://127.0.0.1:%d%s", port, s.cfg.HealthPath)
	deadline := time.After(s.cfg.StartupTimeout)
	ticker := time.NewTicker(s.cfg.StartupPollInterval)
	defer ticker.Stop()

	for {
		if s.probe(ctx, url) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-waitDone:
			return fmt.Errorf("backend exited during startup: %w", ErrStartupTimeout)
		case <-deadline:
			s.emit(Event{Kind: EventError, Message: "startup health gate timed out"})
			return fmt.Errorf("%w (%s)", ErrStartupTimeout, s.cfg.StartupTimeout)
		case <-ticker.C:
		}
	}
}

func (s *Supervisor) probe(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	// Any 2xx means ready; non-2xx and transport errors alike mean "not yet".
	return resp.StatusCode/100 == 2
}

// monitor probes the health endpoint at a fixed interval for the lifetime of
// one child. Failures are reported, never acted on: a backend that is slow
// under load must not be killed by its own watchdog.
func (s *Supervisor) monitor(ctx context.Context, port int, waitDone chan struct{}) {
	url := fmt.Sprintf("http://127.0.0.1:%d%s", port, s.cfg.HealthPath)
	ticker := time.NewTicker(s.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-waitDone:
			return
		case <-ticker.C:
			if s.probe(ctx, url) {
				continue
			}
			s.log.Warn("backend health probe failed", "name", s.cfg.Name, "port", port)
			s.emit(Event{Kind: EventUnhealthy, Message: "health probe failed"})
			s.record(ctx, history.EventUnhealthy, s.PID(), port, url)
			metrics.IncHealthFailure(s.cfg.Name)
		}
	}
}

// Stop shuts the backend down: the monitor is cancelled first so a dying
// child does not produce spurious unhealthy events, then the process group
// gets SIGTERM, a grace period and finally SIGKILL. Stop on a stopped
// supervisor, or while another Stop is in progress, returns immediately.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.cmd == nil {
		s.mu.Unlock()
		return nil
	}
	if s.stopping {
		s.mu.Unlock()
		return nil
	}
	s.stopping = true
	pid := s.cmd.Process.Pid
	port := s.port
	waitDone := s.waitDone
	cancel := s.monitorCancel
	s.monitorCancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	s.log.Info("stopping backend", "name", s.cfg.Name, "pid", pid)
	if err := terminateGroup(pid); err != nil {
		s.log.Debug("terminate signal failed", "pid", pid, "error", err)
	}

	select {
	case <-waitDone:
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.cfg.StopTimeout):
		s.log.Warn("backend ignored terminate; killing group", "name", s.cfg.Name, "pid", pid)
		_ = killGroup(pid)
		select {
		case <-waitDone:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.record(ctx, history.EventStop, pid, port, "")
	metrics.IncStop(s.cfg.Name)
	return nil
}

// forceStop kills a child that failed the startup gate. The stopping flag
// keeps the exit from being logged as a crash.
func (s *Supervisor) forceStop(waitDone chan struct{}) {
	s.mu.Lock()
	if s.cmd == nil {
		s.mu.Unlock()
		return
	}
	s.stopping = true
	pid := s.cmd.Process.Pid
	s.mu.Unlock()

	_ = killGroup(pid)
	select {
	case <-waitDone:
	case <-time.After(s.cfg.StopTimeout):
	}
}

// record fans one lifecycle event out to the configured history sinks.
// pid and port are passed explicitly so exit records keep the child's real
// values, which the running state no longer holds by the time it is reaped.
func (s *Supervisor) record(ctx context.Context, t history.EventType, pid, port int, detail string) {
	if len(s.cfg.Sinks) == 0 {
		return
	}
	e := history.Event{
		Type:       t,
		OccurredAt: time.Now(),
		Record: history.Record{
			Name:   s.cfg.Name,
			PID:    pid,
			Port:   port,
			Detail: detail,
		},
	}
	for _, sink := range s.cfg.Sinks {
		if err := sink.Send(ctx, e); err != nil {
			s.log.Warn("history sink rejected event", "type", t, "error", err)
		}
	}
}
