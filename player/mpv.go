package player

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"net"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/livewatch-cli/livewatch/filesystem"
	"github.com/livewatch-cli/livewatch/log"
	"github.com/samber/mo"
)

const (
	socketWaitRetries = 10
	socketWaitDelay   = 300 * time.Millisecond
	quitTimeout       = 3 * time.Second
)

var (
	// ErrNotStarted is returned by commands issued before Load spawned the player process.
	ErrNotStarted = errors.New("mpv is not running")

	// ErrNoFrame is returned by Snapshot when nothing has been rendered yet.
	ErrNoFrame = errors.New("no frame to capture")

	// ErrDestroyed is returned by Load once Destroy has been called.
	ErrDestroyed = errors.New("mpv handle destroyed")
)

// MPV implements Handle by spawning one mpv process per handle and talking to it over JSON-IPC.
type MPV struct {
	Emitter

	binary  string
	surface Surface
	opts    Options

	// startMu is held for the whole of start so Destroy never races a half-spawned process.
	startMu sync.Mutex
	// procMu guards the process fields below.
	procMu     sync.Mutex
	socketPath string
	cmd        *exec.Cmd
	exited     chan struct{}
	listener   *eventListener

	ipcMu       sync.Mutex
	destroyed   chan struct{}
	destroyOnce sync.Once

	mu          sync.Mutex
	status      State
	rendered    bool
	qualityMode bool
	tier        int
	tiers       int

	// applied on start when set before the process runs
	volume     float64
	renderMode RenderMode
	width      int
	height     int
}

// NewMPV creates a handle; the process is spawned lazily on the first Load.
func NewMPV(binary string, surface Surface, opts Options) *MPV {
	if binary == "" {
		binary = "mpv"
	}

	return &MPV{
		binary:    binary,
		surface:   surface,
		opts:      opts,
		status:    StateStopped,
		destroyed: make(chan struct{}),
		width:     surface.Width,
		height:    surface.Height,
	}
}

// NewFactory returns a Factory producing mpv handles with the given options.
func NewFactory(binary string, opts Options) Factory {
	return FactoryFunc(func(surface Surface) (Handle, error) {
		return NewMPV(binary, surface, opts), nil
	})
}

// args builds the mpv command line. Playback starts paused so that Play controls the start.
func (m *MPV) args() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	verbosity := m.opts.LogVerbosity
	if verbosity == "" {
		verbosity = "warn"
	}

	args := []string{
		"--no-terminal",
		"--idle=yes",
		"--force-window=yes",
		"--pause=yes",
		fmt.Sprintf("--volume=%s", strconv.FormatFloat(m.volume, 'f', -1, 64)),
		fmt.Sprintf("--input-ipc-server=%s", m.socket()),
		fmt.Sprintf("--msg-level=all=%s", verbosity),
	}

	if m.opts.LowLatency {
		args = append(args, "--profile=low-latency", "--untimed=no")
	}

	if m.opts.MaxLatency > 0 {
		secs := strconv.FormatFloat(m.opts.MaxLatency.Seconds(), 'f', -1, 64)
		args = append(args,
			fmt.Sprintf("--cache-secs=%s", secs),
			fmt.Sprintf("--demuxer-readahead-secs=%s", secs),
		)
	}

	if m.surface.ID != "" {
		args = append(args, fmt.Sprintf("--wid=%s", m.surface.ID))
	}

	if m.width > 0 && m.height > 0 {
		args = append(args, fmt.Sprintf("--geometry=%dx%d", m.width, m.height))
	}

	for _, p := range renderProperties(m.renderMode) {
		args = append(args, fmt.Sprintf("--%s=%v", p.name, p.value))
	}

	return args
}

// start spawns mpv, waits for its IPC socket and attaches the event listener.
// The caller holds startMu.
func (m *MPV) start() error {
	select {
	case <-m.destroyed:
		return ErrDestroyed
	default:
	}

	m.procMu.Lock()
	if m.socketPath == "" {
		randomBytes := make([]byte, 4)
		if _, err := rand.Read(randomBytes); err != nil {
			m.procMu.Unlock()
			return fmt.Errorf("generate socket name: %w", err)
		}
		m.socketPath = filepath.Join(os.TempDir(), fmt.Sprintf("livewatch-%x.sock", randomBytes))
	}
	m.procMu.Unlock()

	cmd := exec.Command(m.binary, m.args()...)
	cmd.SysProcAttr = sysProcAttr()
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start mpv: %w", err)
	}

	exited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(exited)
	}()

	m.procMu.Lock()
	m.cmd, m.exited = cmd, exited
	m.procMu.Unlock()

	if err := m.waitForSocket(exited); err != nil {
		select {
		case <-exited:
		default:
			log.Warnf("killing mpv: %v", err)
			_ = killProcess(cmd)
			<-exited
		}
		return fmt.Errorf("mpv socket not ready: %w", err)
	}

	listener, err := startEventListener(m.socket(), m.handleMessage)
	if err != nil {
		_ = killProcess(cmd)
		<-exited
		return err
	}

	m.procMu.Lock()
	m.listener = listener
	m.procMu.Unlock()

	return nil
}

// waitForSocket polls until the mpv IPC socket is accepting connections.
// It gives up as soon as the process exits or the handle is destroyed.
func (m *MPV) waitForSocket(exited <-chan struct{}) error {
	path := m.socket()

	for i := 0; i < socketWaitRetries; i++ {
		select {
		case <-exited:
			return errors.New("mpv exited before socket was ready")
		case <-m.destroyed:
			return ErrDestroyed
		case <-time.After(socketWaitDelay):
		}

		conn, err := net.Dial("unix", path)
		if err == nil {
			conn.Close()
			return nil
		}
	}
	return fmt.Errorf("socket %s not ready after %d attempts", path, socketWaitRetries)
}

func (m *MPV) socket() string {
	m.procMu.Lock()
	defer m.procMu.Unlock()
	return m.socketPath
}

func (m *MPV) running() bool {
	m.procMu.Lock()
	cmd, exited := m.cmd, m.exited
	m.procMu.Unlock()

	if cmd == nil || exited == nil {
		return false
	}

	select {
	case <-exited:
		return false
	default:
		return true
	}
}

func (m *MPV) command(args ...any) (any, error) {
	if !m.running() {
		return nil, ErrNotStarted
	}
	return m.sendCommand(args...)
}

func (m *MPV) setStatus(s State) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}

// Load implements Handle.
func (m *MPV) Load(rawURL string) error {
	target, err := sanitizeMediaTarget(rawURL)
	if err != nil {
		return fmt.Errorf("invalid media target: %w", err)
	}

	m.startMu.Lock()
	if !m.running() {
		if err := m.start(); err != nil {
			m.startMu.Unlock()
			return err
		}
	}
	m.startMu.Unlock()

	m.mu.Lock()
	m.status = StateLoading
	m.rendered = false
	m.mu.Unlock()

	if _, err := m.command("loadfile", target, "replace"); err != nil {
		m.setStatus(StateStopped)
		return fmt.Errorf("loadfile: %w", err)
	}
	return nil
}

// Play implements Handle.
func (m *MPV) Play() error {
	if _, err := m.command("set_property", "pause", false); err != nil {
		return fmt.Errorf("unpause: %w", err)
	}

	m.mu.Lock()
	if m.status != StatePlayed {
		m.status = StatePlaying
	}
	m.mu.Unlock()
	return nil
}

// Stop implements Handle.
func (m *MPV) Stop() error {
	if !m.running() {
		m.setStatus(StateStopped)
		return nil
	}

	if _, err := m.command("stop"); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	m.setStatus(StateStopped)
	return nil
}

// Destroy implements Handle. A Load still spawning the process is aborted first.
func (m *MPV) Destroy() error {
	m.setStatus(StateDestroying)
	defer func() {
		m.Emitter.Clear()
		m.setStatus(StateDestroyed)
	}()

	m.destroyOnce.Do(func() { close(m.destroyed) })

	// wait for an in-flight start to notice
	m.startMu.Lock()
	defer m.startMu.Unlock()

	m.procMu.Lock()
	cmd, exited, listener, socketPath := m.cmd, m.exited, m.listener, m.socketPath
	m.listener = nil
	m.procMu.Unlock()

	if cmd == nil || exited == nil {
		return nil
	}

	if listener != nil {
		listener.Stop()
	}

	_, _ = m.command("quit")

	var err error
	select {
	case <-exited:
	case <-time.After(quitTimeout):
		err = killProcess(cmd)
		<-exited
	}

	_ = os.Remove(socketPath)
	return err
}

// Resume implements Handle.
func (m *MPV) Resume() error {
	_, err := m.command("set_property", "pause", false)
	return err
}

// SetVolume implements Handle. v is a linear gain where 1 is full volume.
func (m *MPV) SetVolume(v float64) error {
	percent := math.Max(0, math.Min(v, 1)) * 100

	m.mu.Lock()
	m.volume = percent
	m.mu.Unlock()

	if !m.running() {
		return nil
	}
	_, err := m.command("set_property", "volume", percent)
	return err
}

type property struct {
	name  string
	value any
}

func renderProperties(mode RenderMode) []property {
	switch mode {
	case RenderCover:
		return []property{{"keepaspect", "yes"}, {"panscan", 1.0}}
	case RenderFill:
		return []property{{"keepaspect", "no"}, {"panscan", 0.0}}
	default:
		return []property{{"keepaspect", "yes"}, {"panscan", 0.0}}
	}
}

// SetRenderMode implements Handle.
func (m *MPV) SetRenderMode(mode RenderMode) error {
	if mode < RenderContain || mode > RenderFill {
		return fmt.Errorf("unsupported render mode %s", mode)
	}

	m.mu.Lock()
	m.renderMode = mode
	m.mu.Unlock()

	if !m.running() {
		return nil
	}
	for _, p := range renderProperties(mode) {
		if _, err := m.command("set_property", p.name, p.value); err != nil {
			return err
		}
	}
	return nil
}

// Resize implements Handle.
func (m *MPV) Resize(width, height int) error {
	m.mu.Lock()
	m.width, m.height = width, height
	m.mu.Unlock()

	if !m.running() {
		return nil
	}
	_, err := m.command("set_property", "geometry", fmt.Sprintf("%dx%d", width, height))
	return err
}

// Snapshot implements Handle by asking mpv to write the current video frame to a file next to its socket.
func (m *MPV) Snapshot(format string, quality int) ([]byte, error) {
	if !m.hasFrame() {
		return nil, ErrNoFrame
	}

	if _, err := m.command("set_property", "screenshot-format", format); err != nil {
		return nil, err
	}

	switch format {
	case "jpeg", "jpg":
		if _, err := m.command("set_property", "screenshot-jpeg-quality", quality); err != nil {
			return nil, err
		}
	case "webp":
		if _, err := m.command("set_property", "screenshot-webp-quality", quality); err != nil {
			return nil, err
		}
	}

	path := fmt.Sprintf("%s.%s", m.socket(), format)
	if _, err := m.command("screenshot-to-file", path, "video"); err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	defer func() { _ = filesystem.API().Remove(path) }()

	return filesystem.API().ReadFile(path)
}

// ConfigQualityMode implements Handle. mpv does not switch tiers itself, it only reports stutter
// once it knows the active tier.
func (m *MPV) ConfigQualityMode(current, total int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.qualityMode = true
	m.tier = current
	m.tiers = total
	return nil
}

// hasFrame reports whether the current file got past its first playback-restart.
// Play alone moves the status to playing before anything is on screen.
func (m *MPV) hasFrame() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rendered && m.status.Renders()
}

// Status implements Handle.
func (m *MPV) Status() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// handleMessage maps mpv IPC events onto handle status and emitted events.
func (m *MPV) handleMessage(msg ipcMessage) {
	var out []Event

	m.mu.Lock()
	switch msg.Event {
	case "file-loaded":
		m.status = StateLoaded
	case "seek":
		if m.rendered {
			m.status = StateSeeking
		}
	case "playback-restart":
		if !m.rendered {
			m.rendered = true
			m.status = StatePlayed
			out = append(out, Event{Kind: EventFirstFrame})
		} else {
			m.status = StatePlaying
		}
	case "end-file":
		switch msg.Reason {
		case "eof":
			m.status = StateStopped
			out = append(out, Event{Kind: EventEnded})
		case "error":
			m.status = StateStopped
			reason := msg.FileError
			if reason == "" {
				reason = "unknown error"
			}
			out = append(out, Event{Kind: EventError, Err: fmt.Errorf("mpv: %s", reason)})
		}
	case "property-change":
		out = m.propertyChanged(msg.Name, msg.Data)
	}
	m.mu.Unlock()

	for _, ev := range out {
		m.Emitter.Emit(ev)
	}
}

// propertyChanged must be called with m.mu held.
func (m *MPV) propertyChanged(name string, data any) []Event {
	switch name {
	case "pause":
		if paused, ok := data.(bool); ok && m.rendered {
			if paused {
				m.status = StatePaused
			} else {
				m.status = StatePlaying
			}
		}
	case "idle-active":
		if idle, ok := data.(bool); ok && idle && m.rendered {
			m.rendered = false
			m.status = StateStopped
			return []Event{{Kind: EventStopped}}
		}
	case "frame-drop-count":
		drops, ok := data.(float64)
		if !ok || !m.qualityMode {
			return nil
		}
		return []Event{{
			Kind: EventQualityChange,
			Quality: QualityChange{
				Target:  mo.None[int](),
				Current: m.tier,
				Total:   m.tiers,
				Stutter: int(drops),
			},
		}}
	}
	return nil
}

// sanitizeMediaTarget validates that a URL is safe to pass to mpv.
func sanitizeMediaTarget(link string) (string, error) {
	l := strings.TrimSpace(link)
	if l == "" {
		return "", fmt.Errorf("empty URL")
	}

	if strings.ContainsAny(l, "\x00\n\r") {
		return "", fmt.Errorf("invalid control characters in URL")
	}

	// URLs must not look like flags
	if strings.HasPrefix(l, "-") {
		return "", fmt.Errorf("url must not start with '-' (looks like a flag)")
	}

	if strings.Contains(l, "://") {
		u, err := url.Parse(l)
		if err != nil {
			return "", fmt.Errorf("invalid URL: %w", err)
		}
		switch strings.ToLower(u.Scheme) {
		case "http", "https", "rtmp", "rtsp", "srt", "udp":
			return l, nil
		default:
			return "", fmt.Errorf("unsupported URL scheme: %s", u.Scheme)
		}
	}

	return filepath.Clean(l), nil
}
