// Package ui provides the terminal reader for rsvp.
package ui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/rsvp/internal/document"
	"github.com/dgnsrekt/rsvp/internal/playback"
	"github.com/dgnsrekt/rsvp/internal/settings"
	"github.com/dgnsrekt/rsvp/internal/store"
	"github.com/muesli/reflow/indent"
	te "github.com/muesli/termenv"
)

const (
	statusMessageTimeout = time.Second * 3 // how long to show status messages like "copied"
	shutdownTimeout      = time.Second * 5
	ellipsis             = "…"
)

// Session is an opened document and the word source reading it.
type Session struct {
	Doc    *document.Document
	Reader document.Reader
}

// Loader opens the document again, for reloads after it changes on disk.
type Loader func() (*Session, error)

// Deps are the collaborators the reader drives.
type Deps struct {
	Scheduler *playback.Scheduler
	Store     *store.Store // optional
	Session   *Session
	Load      Loader // optional
	Logger    *log.Logger
}

// NewProgram returns a new Tea program. The scheduler must already have
// the session loaded.
func NewProgram(cfg Config, deps Deps) *tea.Program {
	if cfg.NoColor {
		lipgloss.SetColorProfile(te.Ascii)
	}
	m := newModel(cfg, deps)
	return tea.NewProgram(m, tea.WithAltScreen())
}

type (
	frameMsg                time.Time
	reloadMsg               struct{}
	statusMessageTimeoutMsg struct{ seq int }
	settingSavedMsg         struct{ err error }
	sessionLoadedMsg        struct {
		session *Session
		err     error
	}
)

// state is the top-level application state.
type state int

const (
	stateReading state = iota
	stateJumping
)

func (s state) String() string {
	return map[state]string{
		stateReading: "reading",
		stateJumping: "jumping to section",
	}[s]
}

// Common stuff we'll need to access in all models.
type commonModel struct {
	cfg    Config
	width  int
	height int

	// start is the origin of the monotonic clock fed to the scheduler.
	start  time.Time
	ctx    context.Context
	cancel context.CancelFunc
	watch  <-chan struct{}
}

type model struct {
	common   *commonModel
	deps     Deps
	logger   *log.Logger
	state    state
	fatalErr error

	session *Session
	snap    playback.Snapshot
	elapsed time.Duration

	showHelp      bool
	statusMessage string
	statusSeq     int

	// Sub-models
	spinner  spinner.Model
	progress progress.Model
	jump     jumpModel
}

func newModel(cfg Config, deps Deps) model {
	if cfg.FPS <= 0 {
		cfg.FPS = 60
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	common := commonModel{
		cfg:    cfg,
		start:  time.Now(),
		ctx:    ctx,
		cancel: cancel,
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = pivotStyle

	m := model{
		common:   &common,
		deps:     deps,
		logger:   logger,
		state:    stateReading,
		session:  deps.Session,
		spinner:  sp,
		progress: progress.New(progress.WithSolidFill(pink.Dark), progress.WithoutPercentage()),
		jump:     newJumpModel(),
	}

	if deps.Scheduler == nil || deps.Session == nil {
		m.fatalErr = errors.New("no document loaded")
		return m
	}
	m.snap = deps.Scheduler.Snapshot()

	if cfg.Watch && cfg.Path != "" && deps.Load != nil {
		watch, err := document.Watch(ctx, cfg.Path, logger)
		if err != nil {
			logger.Warn("unable to watch document", "file", cfg.Path, "error", err)
		}
		common.watch = watch
	}
	return m
}

func (m model) Init() tea.Cmd {
	if m.fatalErr != nil {
		return nil
	}
	return tea.Batch(m.frameTick(), m.spinner.Tick, m.watchFile())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// If there's been an error, any key exits
	if m.fatalErr != nil {
		if _, ok := msg.(tea.KeyMsg); ok {
			return m, tea.Quit
		}
		return m, nil
	}

	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Ctrl+C always quits no matter where in the application you are.
		if msg.String() == "ctrl+c" {
			m.shutdown()
			return m, tea.Quit
		}
		if m.state == stateJumping {
			return m.updateJump(msg)
		}
		return m.updateReading(msg)

	case frameMsg:
		m.elapsed = time.Time(msg).Sub(m.common.start)
		m.deps.Scheduler.Tick(m.elapsed)
		m.snap = m.deps.Scheduler.Snapshot()
		cmds = append(cmds, m.frameTick())

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	// Window size is received when starting up and on every resize
	case tea.WindowSizeMsg:
		m.common.width = msg.Width
		m.common.height = msg.Height
		m.progress.Width = msg.Width
		m.jump.width = msg.Width

	case reloadMsg:
		cmds = append(cmds, m.reload())

	case sessionLoadedMsg:
		cmds = append(cmds, m.swapSession(msg), m.watchFile())

	case settingSavedMsg:
		if msg.err != nil {
			m.logger.Warn("unable to save setting", "error", msg.err)
		}

	case statusMessageTimeoutMsg:
		if msg.seq == m.statusSeq {
			m.statusMessage = ""
		}
	}

	return m, tea.Batch(cmds...)
}

func (m model) updateReading(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	sched := m.deps.Scheduler
	var cmd tea.Cmd

	switch msg.String() {
	case "q":
		m.shutdown()
		return m, tea.Quit

	case "ctrl+z":
		return m, tea.Suspend

	case " ":
		if err := sched.Toggle(m.common.ctx); err != nil {
			m.logger.Warn("unable to save position", "error", err)
		}

	case "left", "h":
		sched.Step(-1)

	case "right", "l":
		sched.Step(1)

	case "home":
		sched.Seek(0)

	case "end":
		sched.Seek(m.snap.Total - 1)

	case "up", "k":
		cmd = m.changeWPM(settings.WPMStep)

	case "down", "j":
		cmd = m.changeWPM(-settings.WPMStep)

	case "[":
		m.toggleScrub(-1)

	case "]":
		m.toggleScrub(1)

	case "esc":
		m.exitScrub()

	case "g":
		if err := sched.Pause(m.common.ctx); err != nil {
			m.logger.Warn("unable to save position", "error", err)
		}
		m.state = stateJumping
		cmd = m.jump.open(m.session.Reader.Segments())

	case "y":
		if !m.snap.HasWord {
			break
		}
		text := m.snap.Word.Text
		if err := clipboard.WriteAll(text); err != nil {
			cmd = m.showStatusMessage("copy failed: " + err.Error())
			break
		}
		cmd = m.showStatusMessage("copied " + text)

	case "?":
		m.showHelp = !m.showHelp
	}

	m.snap = sched.Snapshot()
	return m, cmd
}

func (m model) updateJump(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.jump.close()
		m.state = stateReading
		return m, nil

	case "enter":
		if seg, ok := m.jump.selected(); ok {
			m.deps.Scheduler.Seek(seg.StartWord)
			m.snap = m.deps.Scheduler.Snapshot()
		}
		m.jump.close()
		m.state = stateReading
		return m, nil

	case "up", "ctrl+p", "shift+tab":
		m.jump.move(-1)
		return m, nil

	case "down", "ctrl+n", "tab":
		m.jump.move(1)
		return m, nil
	}

	var cmd tea.Cmd
	m.jump, cmd = m.jump.update(msg)
	return m, cmd
}

func (m *model) changeWPM(delta int) tea.Cmd {
	wpm := m.deps.Scheduler.SetWPM(m.snap.WPM+delta, m.elapsed)
	return tea.Batch(
		m.showStatusMessage(fmt.Sprintf("%d wpm", wpm)),
		saveWPM(m.common.ctx, m.deps.Store, wpm),
	)
}

// toggleScrub starts scrubbing in dir, or stops if already scrubbing that way.
func (m *model) toggleScrub(dir int) {
	if m.snap.Phase == playback.Scrubbing && m.snap.Scrub == dir {
		m.exitScrub()
		return
	}
	m.deps.Scheduler.EnterScrub(dir, m.elapsed)
}

func (m *model) exitScrub() {
	if err := m.deps.Scheduler.ExitScrub(m.common.ctx); err != nil {
		m.logger.Warn("unable to save position", "error", err)
	}
}

func (m *model) showStatusMessage(msg string) tea.Cmd {
	m.statusMessage = msg
	m.statusSeq++
	seq := m.statusSeq
	return tea.Tick(statusMessageTimeout, func(time.Time) tea.Msg {
		return statusMessageTimeoutMsg{seq: seq}
	})
}

// reload opens the document again off the UI goroutine.
func (m *model) reload() tea.Cmd {
	load := m.deps.Load
	if load == nil {
		return nil
	}
	m.logger.Debug("reloading document", "file", m.common.cfg.Path)
	return func() tea.Msg {
		s, err := load()
		return sessionLoadedMsg{session: s, err: err}
	}
}

// swapSession hands a reloaded document to the scheduler at the current
// position. The scheduler closes the previous reader.
func (m *model) swapSession(msg sessionLoadedMsg) tea.Cmd {
	if msg.err != nil {
		m.logger.Warn("unable to reload document", "error", msg.err)
		return m.showStatusMessage("reload failed: " + msg.err.Error())
	}

	next := msg.session
	if err := m.deps.Scheduler.Load(next.Reader, next.Doc.ID, m.snap.Index); err != nil {
		m.logger.Warn("unable to load reloaded document", "error", err)
		_ = next.Reader.Close()
		_ = next.Doc.Close()
		return m.showStatusMessage("reload failed: " + err.Error())
	}

	prev := m.session
	m.session = next
	m.snap = m.deps.Scheduler.Snapshot()
	if prev != nil && prev.Doc != nil {
		if err := prev.Doc.Close(); err != nil {
			m.logger.Debug("unable to close previous document", "error", err)
		}
	}
	return m.showStatusMessage("reloaded")
}

func (m *model) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := m.deps.Scheduler.Close(ctx); err != nil {
		m.logger.Warn("unable to close scheduler", "error", err)
	}
	if m.session != nil && m.session.Doc != nil {
		if err := m.session.Doc.Close(); err != nil {
			m.logger.Debug("unable to close document", "error", err)
		}
	}
	m.common.cancel()
}

func (m model) View() string {
	if m.fatalErr != nil {
		return errorView(m.fatalErr, true)
	}

	var footer strings.Builder
	footer.WriteString(m.progress.ViewAs(m.percent()) + "\n")
	m.statusBarView(&footer)
	if m.showHelp {
		footer.WriteString("\n" + m.helpView())
	}
	foot := footer.String()
	height := max(m.common.height-lipgloss.Height(foot), 0)

	if m.state == stateJumping {
		return lipgloss.PlaceVertical(height, lipgloss.Top, m.jump.view()) + "\n" + foot
	}
	return lipgloss.PlaceVertical(height, lipgloss.Center, m.readerView()) + "\n" + foot
}

func (m model) readerView() string {
	width := m.common.width
	if !m.snap.HasWord {
		return strings.Repeat(" ", max(width/2-1, 0)) + m.spinner.View()
	}
	return guideLine(width) + "\n" +
		renderWord(m.snap.Word, width) + "\n" +
		guideLine(width)
}

func (m model) percent() float64 {
	if m.snap.Total == 0 {
		return 0
	}
	return float64(m.snap.Index+1) / float64(m.snap.Total)
}

func errorView(err error, fatal bool) string {
	exitMsg := "press any key to "
	if fatal {
		exitMsg += "exit"
	} else {
		exitMsg += "return"
	}
	s := fmt.Sprintf("%s\n\n%v\n\n%s",
		errorTitleStyle.Render("ERROR"),
		err,
		subtleStyle.Render(exitMsg),
	)
	return "\n" + indent.String(s, 3)
}

// COMMANDS

func (m model) frameTick() tea.Cmd {
	return tea.Tick(time.Second/time.Duration(m.common.cfg.FPS), func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}

func (m model) watchFile() tea.Cmd {
	watch := m.common.watch
	if watch == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-watch; !ok {
			return nil
		}
		return reloadMsg{}
	}
}

func saveWPM(ctx context.Context, st *store.Store, wpm int) tea.Cmd {
	if st == nil {
		return nil
	}
	return func() tea.Msg {
		return settingSavedMsg{err: st.SetSetting(ctx, settings.KeyWPM, strconv.Itoa(wpm))}
	}
}
