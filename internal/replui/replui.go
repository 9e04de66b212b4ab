// Package replui implements the status view behind "esl exec --interactive":
// a scrollable pane of the running program's print output, with a live
// thread/heap status line redrawn on a ticker, laid out with bubbletea the
// way the teacher's internal/ui package wires progress.Model/spinner.Model
// over a pipeline event channel.
package replui

import (
	"bufio"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"golang.org/x/text/width"

	"github.com/Antony1060/ESL/internal/natives"
	"github.com/Antony1060/ESL/internal/value"
	"github.com/Antony1060/ESL/internal/vm"
)

const tickInterval = 200 * time.Millisecond

var statusStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("0")).
	Background(lipgloss.Color("6")).
	Padding(0, 1)

// Run drives fn() (normally machine.Run) to completion while a bubbletea
// program shows its print output scrolling in a viewport and a status line
// reporting live thread/future and heap usage. The VM's "print" native is
// redirected to feed the viewport for the duration of the call and restored
// before Run returns.
func Run(machine *vm.VM, fn func() (value.Value, error)) (value.Value, error) {
	pr, pw := io.Pipe()
	prevOutput := natives.Output
	natives.Output = pw
	defer func() { natives.Output = prevOutput }()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(pr)
		for scanner.Scan() {
			lines <- normalizeLine(scanner.Text())
		}
		close(lines)
	}()

	resultCh := make(chan runResult, 1)
	go func() {
		v, err := fn()
		pw.Close()
		resultCh <- runResult{v, err}
	}()

	m := newModel(machine, lines, resultCh)
	p := tea.NewProgram(m)
	final, progErr := p.Run()
	if progErr != nil {
		return value.Nil, progErr
	}
	fm := final.(*model)
	return fm.result.v, fm.result.err
}

// normalizeLine folds East-Asian width variants to their canonical form
// before the line is laid into the viewport, so a viewport line built from
// mixed-width program output lays out consistently regardless of which
// width variant a given codepoint arrived as.
func normalizeLine(s string) string {
	return width.Fold.String(s)
}

type lineMsg string
type linesClosedMsg struct{}
type tickMsg time.Time
type doneMsg struct {
	v   value.Value
	err error
}

type runResult struct {
	v   value.Value
	err error
}

type model struct {
	machine *vm.VM
	lines   <-chan string
	results <-chan runResult
	vp      viewport.Model
	content string
	width   int
	height  int
	done    bool
	result  runResult
}

func newModel(machine *vm.VM, lines <-chan string, results <-chan runResult) *model {
	vp := viewport.New(80, 20)
	return &model{machine: machine, lines: lines, results: results, vp: vp, width: 80, height: 20}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(m.waitForLine(), m.waitForResult(), m.tick())
}

func (m *model) waitForLine() tea.Cmd {
	return func() tea.Msg {
		line, ok := <-m.lines
		if !ok {
			return linesClosedMsg{}
		}
		return lineMsg(line)
	}
}

func (m *model) waitForResult() tea.Cmd {
	return func() tea.Msg {
		r := <-m.results
		return doneMsg{v: r.v, err: r.err}
	}
}

func (m *model) tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.vp.Width = msg.Width
		m.vp.Height = msg.Height - 2
		return m, nil
	case lineMsg:
		m.content += string(msg) + "\n"
		m.vp.SetContent(m.content)
		m.vp.GotoBottom()
		return m, m.waitForLine()
	case linesClosedMsg:
		return m, nil
	case tickMsg:
		if m.done {
			return m, nil
		}
		return m, m.tick()
	case doneMsg:
		m.done = true
		m.result = runResult{v: msg.v, err: msg.err}
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.vp, cmd = m.vp.Update(msg)
	return m, cmd
}

func (m *model) View() string {
	status := m.statusLine()
	return fmt.Sprintf("%s\n%s", statusStyle.Render(runewidth.Truncate(status, m.width, "")), m.vp.View())
}

func (m *model) statusLine() string {
	threads := m.machine.ThreadCount()
	used := m.machine.Heap.BytesAllocated()
	threshold := m.machine.Heap.Threshold()
	state := "running"
	if m.done {
		state = "done"
	}
	return fmt.Sprintf(" %d futures pending, heap %dB/%dB, state: %s ", threads, used, threshold, state)
}
