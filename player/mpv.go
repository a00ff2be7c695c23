package player

import (
	"context"
	"crypto/rand"
	"encoding/json"
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

	"github.com/xmedia/xmedia/config"
	"github.com/xmedia/xmedia/constant"
	"github.com/xmedia/xmedia/log"
	"github.com/xmedia/xmedia/network"
	"github.com/xmedia/xmedia/source"
)

const (
	socketWaitRetries = 10
	socketWaitDelay   = 300 * time.Millisecond
)

// MPV implements Engine on top of an idle mpv process driven over JSON IPC.
type MPV struct {
	opts       Options
	socketPath string
	cmd        *exec.Cmd
	exited     chan struct{}
	events     *eventListener
	proxy      *Proxy
	ipcMu      sync.Mutex

	mu          sync.Mutex
	listener    func(Event)
	descriptor  *source.Descriptor
	loaded      bool
	paused      bool
	playing     bool
	phase       Phase
	durationMs  int64
	positionMs  int64
	volume      float64
	tracks      Tracks
	lastFailure error
	released    bool
}

// NewMPV starts an idle mpv process and connects to its IPC socket.
func NewMPV(opts Options) (*MPV, error) {
	if opts.Binary == "" {
		opts.Binary = "mpv"
	}

	m := &MPV{
		opts:   opts,
		exited: make(chan struct{}),
		paused: true,
		volume: 1,
	}

	randomBytes := make([]byte, 4)
	if _, err := rand.Read(randomBytes); err != nil {
		return nil, fmt.Errorf("generate socket name: %w", err)
	}
	m.socketPath = filepath.Join(os.TempDir(), fmt.Sprintf("%s-%x.sock", constant.XMedia, randomBytes))

	m.proxy = NewProxy(network.NewUpstream(opts.Meter), m.onTransferDone)
	if err := m.proxy.Start(); err != nil {
		return nil, err
	}

	m.cmd = exec.Command(opts.Binary, buildArgs(m.socketPath, opts)...)
	// Detach from the parent process group so terminal signals are not forwarded to mpv.
	m.cmd.SysProcAttr = sysProcAttr()
	m.cmd.Stdout = nil
	m.cmd.Stderr = nil
	m.cmd.Stdin = nil

	if err := m.cmd.Start(); err != nil {
		_ = m.proxy.Close()
		return nil, fmt.Errorf("start %s: %w", opts.Binary, err)
	}

	// Reap the process to prevent zombies
	go func() {
		_ = m.cmd.Wait()
		close(m.exited)
	}()

	if err := m.waitForSocket(); err != nil {
		m.kill()
		_ = m.proxy.Close()
		return nil, fmt.Errorf("mpv socket not ready: %w", err)
	}

	m.events = newEventListener(m.socketPath, m.handleMessage)
	if err := m.events.start(); err != nil {
		m.kill()
		_ = m.proxy.Close()
		return nil, err
	}

	return m, nil
}

// NewMPVFactory returns a Factory building mpv engines.
func NewMPVFactory() Factory {
	return func(opts Options) (Engine, error) {
		return NewMPV(opts)
	}
}

// buildArgs translates engine options into mpv flags. The user's mpv.conf is still honoured.
func buildArgs(socketPath string, opts Options) []string {
	b := opts.Buffering

	args := []string{
		"--no-terminal",
		"--really-quiet",
		fmt.Sprintf("--input-ipc-server=%s", socketPath),
		"--idle=yes",
		"--force-window=yes",
		"--keep-open=yes",
		"--pause=yes",
		"--cache=yes",
	}

	if b.MaxBufferMs > 0 {
		args = append(args, fmt.Sprintf("--demuxer-readahead-secs=%s", seconds(b.MaxBufferMs)))
		args = append(args, fmt.Sprintf("--cache-secs=%s", seconds(b.MaxBufferMs)))
	}
	// reading pauses at the max buffer and resumes once less than the min is left
	if b.MinBufferMs > 0 && b.MinBufferMs < b.MaxBufferMs {
		args = append(args, fmt.Sprintf("--demuxer-hysteresis-secs=%s", seconds(b.MinBufferMs)))
	}
	if b.BufferForPlaybackAfterRebufferMs > 0 {
		args = append(args, fmt.Sprintf("--cache-pause-wait=%s", seconds(b.BufferForPlaybackAfterRebufferMs)))
	}
	if b.BufferForPlaybackMs > 0 {
		args = append(args, "--cache-pause-initial=yes")
	}

	if lang := strings.TrimSpace(opts.Audio.PreferredLanguage); lang != "" {
		args = append(args, fmt.Sprintf("--alang=%s", lang))
	}

	var estimate int64
	if opts.Estimate != nil {
		estimate = opts.Estimate()
	}
	args = append(args, fmt.Sprintf("--hls-bitrate=%s", hlsBitrate(opts.Selection, estimate)))

	return args
}

func seconds(ms int64) string {
	return strconv.FormatFloat(float64(ms)/1000, 'f', -1, 64)
}

// hlsBitrate picks mpv's initial HLS variant: forced extremes first, then the
// tighter of the configured cap and the usable share of the bandwidth estimate.
func hlsBitrate(sel config.Selection, estimate int64) string {
	switch {
	case sel.ForceLowestBitrate:
		return "min"
	case sel.ForceHighestSupportedBitrate:
		return "max"
	}

	limit := sel.MaxVideoBitrate
	if estimate > 0 && sel.BandwidthFraction > 0 {
		usable := int64(float64(estimate) * sel.BandwidthFraction)
		if limit <= 0 || usable < limit {
			limit = usable
		}
	}

	if limit <= 0 {
		return "max"
	}
	return strconv.FormatInt(limit, 10)
}

// waitForSocket polls until the mpv IPC socket is accepting connections.
func (m *MPV) waitForSocket() error {
	for i := 0; i < socketWaitRetries; i++ {
		time.Sleep(socketWaitDelay)

		select {
		case <-m.exited:
			return errors.New("mpv exited before socket was ready")
		default:
		}

		conn, err := net.Dial("unix", m.socketPath)
		if err == nil {
			conn.Close()
			return nil
		}
	}
	return fmt.Errorf("socket %s not ready after %d attempts", m.socketPath, socketWaitRetries)
}

func (m *MPV) SetListener(listener func(Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listener = listener
}

func (m *MPV) emit(e Event) {
	m.mu.Lock()
	listener := m.listener
	m.mu.Unlock()

	if listener != nil {
		listener(e)
	}
}

// SetSource binds d to the proxy; Prepare loads it.
func (m *MPV) SetSource(_ context.Context, d source.Descriptor) error {
	if _, err := sanitizeMediaTarget(d.URL); err != nil {
		return fmt.Errorf("invalid media target: %w", err)
	}

	m.proxy.Bind(d)

	m.mu.Lock()
	m.descriptor = &d
	m.lastFailure = nil
	m.mu.Unlock()

	if m.opts.Estimate != nil {
		_ = m.set("hls-bitrate", hlsBitrate(m.opts.Selection, m.opts.Estimate()))
	}
	return nil
}

func (m *MPV) ClearSource() error {
	m.proxy.Unbind()

	m.mu.Lock()
	m.descriptor = nil
	m.mu.Unlock()

	return m.Stop()
}

// loadTarget is what mpv is told to open for d.
func (m *MPV) loadTarget(d source.Descriptor) string {
	if path, ok := strings.CutPrefix(d.URL, "file://"); ok {
		return filepath.Clean(path)
	}
	return m.proxy.Rewrite(d.URL)
}

func (m *MPV) Prepare() error {
	m.mu.Lock()
	d := m.descriptor
	m.mu.Unlock()

	if d == nil {
		return errors.New("no source set")
	}

	if err := m.set("pause", true); err != nil {
		return err
	}
	if _, err := m.sendCommand("loadfile", m.loadTarget(*d), "replace"); err != nil {
		return err
	}

	m.setPhase(PhaseBuffering)
	return nil
}

func (m *MPV) Play() error {
	return m.set("pause", false)
}

func (m *MPV) Pause() error {
	return m.set("pause", true)
}

func (m *MPV) SeekTo(ms int64) error {
	if ms < 0 {
		ms = 0
	}
	_, err := m.sendCommand("seek", float64(ms)/1000, "absolute")
	if err == nil {
		m.mu.Lock()
		m.positionMs = ms
		m.mu.Unlock()
	}
	return err
}

func (m *MPV) Stop() error {
	_, err := m.sendCommand("stop")

	m.mu.Lock()
	m.loaded = false
	m.positionMs = 0
	m.durationMs = 0
	m.mu.Unlock()

	m.updatePlaying()
	m.setPhase(PhaseIdle)
	return err
}

func (m *MPV) IsPlaying() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playing
}

func (m *MPV) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

func (m *MPV) Duration() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.durationMs
}

// Position asks mpv for time-pos, falling back to the last known value.
func (m *MPV) Position() int64 {
	if raw, err := m.sendCommand("get_property", "time-pos"); err == nil {
		var pos float64
		if json.Unmarshal(raw, &pos) == nil && pos >= 0 {
			m.mu.Lock()
			m.positionMs = int64(math.Floor(pos * 1000))
			m.mu.Unlock()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.positionMs
}

func (m *MPV) Volume() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volume
}

func (m *MPV) SetVolume(v float64) error {
	v = math.Max(0, math.Min(1, v))
	if err := m.set("volume", v*100); err != nil {
		return err
	}

	m.mu.Lock()
	m.volume = v
	m.mu.Unlock()
	return nil
}

func (m *MPV) Tracks() Tracks {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tracks
}

func (m *MPV) SelectTrack(group, track int) error {
	format, ok := m.Tracks().Format(group, track)
	if !ok {
		return fmt.Errorf("no track at (%d, %d)", group, track)
	}

	property := "aid"
	if m.Tracks().Groups[group].Video {
		property = "vid"
	}

	id, err := strconv.Atoi(format.ID)
	if err != nil {
		return fmt.Errorf("track id %q: %w", format.ID, err)
	}
	return m.set(property, id)
}

func (m *MPV) ClearTrackOverride() error {
	return m.set("vid", "auto")
}

func (m *MPV) SetRepeat(repeat bool) error {
	value := "no"
	if repeat {
		value = "inf"
	}
	return m.set("loop-file", value)
}

// Release quits mpv, force-killing it if it does not exit in time.
func (m *MPV) Release() error {
	m.mu.Lock()
	if m.released {
		m.mu.Unlock()
		return nil
	}
	m.released = true
	m.listener = nil
	m.mu.Unlock()

	_, _ = m.sendCommand("quit")

	select {
	case <-m.exited:
	case <-time.After(3 * time.Second):
		m.kill()
	}

	m.events.stop()
	_ = os.Remove(m.socketPath)
	return m.proxy.Close()
}

func (m *MPV) kill() {
	if m.cmd == nil || m.cmd.Process == nil {
		return
	}
	select {
	case <-m.exited:
	default:
		log.Warnf("killing %s", m.opts.Binary)
		_ = killProcess(m.cmd)
	}
}

func (m *MPV) set(property string, value any) error {
	_, err := m.sendCommand("set_property", property, value)
	return err
}

func (m *MPV) setPhase(p Phase) {
	m.mu.Lock()
	changed := m.phase != p
	m.phase = p
	m.mu.Unlock()

	if changed {
		m.emit(PhaseChanged{Phase: p})
	}
}

// updatePlaying recomputes whether media is advancing and emits on change.
func (m *MPV) updatePlaying() {
	m.mu.Lock()
	playing := m.loaded && !m.paused && m.phase != PhaseEnded && m.phase != PhaseBuffering
	changed := playing != m.playing
	m.playing = playing
	m.mu.Unlock()

	if changed {
		m.emit(PlayingChanged{Playing: playing})
	}
}

// onTransferDone records data path failures so a later end-file error can be
// attributed to them, and reports the transfer.
func (m *MPV) onTransferDone(url string, err error) {
	if err != nil {
		m.mu.Lock()
		m.lastFailure = err
		m.mu.Unlock()
	}
	m.emit(TransferEnded{URL: url})
}

// handleMessage turns mpv events and property changes into engine events.
func (m *MPV) handleMessage(msg mpvMessage) {
	switch msg.Event {
	case "property-change":
		m.handleProperty(msg.Name, msg.Data)
	case "file-loaded":
		m.mu.Lock()
		m.loaded = true
		m.mu.Unlock()
		m.setPhase(PhaseReady)
		m.updatePlaying()
	case "playback-restart":
		m.emit(FirstFrameRendered{})
	case "end-file":
		if msg.Reason != "error" {
			return
		}
		m.mu.Lock()
		m.loaded = false
		cause := m.lastFailure
		m.mu.Unlock()
		m.updatePlaying()

		code := endFileErrorCode(msg.FileError)
		if cause != nil {
			code = TransferErrorCode(cause)
		}
		m.emit(ErrorEvent{Code: code, Message: msg.FileError, Cause: cause})
	}
}

func (m *MPV) handleProperty(name string, data json.RawMessage) {
	switch name {
	case "pause":
		var paused bool
		if json.Unmarshal(data, &paused) != nil {
			return
		}
		m.mu.Lock()
		m.paused = paused
		m.mu.Unlock()
		m.updatePlaying()

	case "paused-for-cache":
		var stalled bool
		if json.Unmarshal(data, &stalled) != nil {
			return
		}
		m.mu.Lock()
		loaded := m.loaded
		m.mu.Unlock()
		if !loaded {
			return
		}
		if stalled {
			m.setPhase(PhaseBuffering)
		} else {
			m.setPhase(PhaseReady)
		}
		m.updatePlaying()

	case "duration":
		var secs float64
		if json.Unmarshal(data, &secs) != nil {
			return
		}
		m.mu.Lock()
		m.durationMs = int64(math.Floor(secs * 1000))
		m.mu.Unlock()

	case "eof-reached":
		var eof bool
		if json.Unmarshal(data, &eof) != nil || !eof {
			return
		}
		m.setPhase(PhaseEnded)
		m.updatePlaying()

	case "idle-active":
		var idle bool
		if json.Unmarshal(data, &idle) != nil || !idle {
			return
		}
		m.setPhase(PhaseIdle)

	case "track-list":
		tracks := parseTrackList(data)
		m.mu.Lock()
		m.tracks = tracks
		m.mu.Unlock()
		m.emit(TracksChanged{Tracks: tracks})
	}
}

// mpvTrack is one entry of mpv's track-list property.
type mpvTrack struct {
	ID           int     `json:"id"`
	Type         string  `json:"type"`
	Codec        string  `json:"codec"`
	AlbumArt     bool    `json:"albumart"`
	Image        bool    `json:"image"`
	DemuxW       int     `json:"demux-w"`
	DemuxH       int     `json:"demux-h"`
	HLSBitrate   int64   `json:"hls-bitrate"`
	DemuxBitrate int64   `json:"demux-bitrate"`
	Lang         string  `json:"lang"`
	DemuxFPS     float64 `json:"demux-fps"`
}

// parseTrackList groups mpv tracks into one video group and one audio group.
// Cover art and still images are reported as unsupported video tracks.
func parseTrackList(data json.RawMessage) Tracks {
	var list []mpvTrack
	if err := json.Unmarshal(data, &list); err != nil {
		return Tracks{}
	}

	video := Group{Video: true, Supported: true}
	art := Group{Video: true, Supported: false}
	audio := Group{Video: false, Supported: true}

	for _, t := range list {
		bitrate := t.HLSBitrate
		if bitrate <= 0 {
			bitrate = t.DemuxBitrate
		}

		f := Format{
			ID:      strconv.Itoa(t.ID),
			Codec:   t.Codec,
			Width:   t.DemuxW,
			Height:  t.DemuxH,
			Bitrate: bitrate,
		}

		switch t.Type {
		case "video":
			if t.AlbumArt || t.Image {
				art.Formats = append(art.Formats, f)
			} else {
				video.Formats = append(video.Formats, f)
			}
		case "audio":
			audio.Formats = append(audio.Formats, f)
		}
	}

	var tracks Tracks
	for _, g := range []Group{video, audio, art} {
		if len(g.Formats) > 0 {
			tracks.Groups = append(tracks.Groups, g)
		}
	}
	return tracks
}

// sanitizeMediaTarget validates that a URL is safe to pass to mpv. It prevents flag injection.
func sanitizeMediaTarget(link string) (string, error) {
	l := strings.TrimSpace(link)
	if l == "" {
		return "", errors.New("empty URL")
	}
	if strings.ContainsAny(l, "\x00\n\r") {
		return "", errors.New("invalid control characters in URL")
	}
	if strings.HasPrefix(l, "-") {
		return "", errors.New("url must not start with '-' (looks like a flag)")
	}

	if strings.Contains(l, "://") {
		u, err := url.Parse(l)
		if err != nil {
			return "", fmt.Errorf("invalid URL: %w", err)
		}
		switch strings.ToLower(u.Scheme) {
		case "http", "https", "file":
			return l, nil
		default:
			return "", fmt.Errorf("unsupported URL scheme: %s", u.Scheme)
		}
	}

	return filepath.Clean(l), nil
}
