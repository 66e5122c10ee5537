package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"room-chat/internal/client"
	"room-chat/internal/models"

	"github.com/gookit/color"
	"github.com/samber/lo"
)

type commandKind int

const (
	cmdNone commandKind = iota
	cmdSay
	cmdName
	cmdPrivate
	cmdList
	cmdStatus
	cmdHelp
	cmdQuit
	cmdInvalid
)

type command struct {
	kind   commandKind
	text   string
	target string
}

const helpText = `/name <nombre>      cambia tu nombre
/pm <id> <mensaje>  mensaje privado
/list               participantes conectados
/status             estado de la conexión
/quit               salir`

// parseCommand turns one input line into a command. Anything that is not a
// slash command is chat text.
func parseCommand(line string) command {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{kind: cmdNone}
	}
	if !strings.HasPrefix(line, "/") {
		return command{kind: cmdSay, text: line}
	}

	verb, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	switch verb {
	case "/quit", "/exit":
		return command{kind: cmdQuit}
	case "/list":
		return command{kind: cmdList}
	case "/status":
		return command{kind: cmdStatus}
	case "/help":
		return command{kind: cmdHelp}
	case "/name":
		if rest == "" {
			return command{kind: cmdInvalid, text: "uso: /name <nombre>"}
		}
		return command{kind: cmdName, text: rest}
	case "/pm":
		target, text, _ := strings.Cut(rest, " ")
		if target == "" || strings.TrimSpace(text) == "" {
			return command{kind: cmdInvalid, text: "uso: /pm <id> <mensaje>"}
		}
		return command{kind: cmdPrivate, target: target, text: strings.TrimSpace(text)}
	default:
		return command{kind: cmdInvalid, text: "comando desconocido " + verb + ", prueba /help"}
	}
}

// console renders chat events. Writes are serialized because handlers run on
// the session's read loop while the prompt runs on main.
type console struct {
	mu     sync.Mutex
	out    io.Writer
	colors bool
}

func newConsole(out io.Writer, colors bool) *console {
	return &console{out: out, colors: colors}
}

func (c *console) paint(style color.Style, s string) string {
	if !c.colors {
		return s
	}
	return style.Render(s)
}

func (c *console) println(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, s)
}

func (c *console) message(m models.Message) {
	c.println(c.formatMessage(m))
}

func (c *console) formatMessage(m models.Message) string {
	at := m.Timestamp.Local().Format(time.TimeOnly)
	switch m.Kind {
	case models.MessageKindJoin:
		return c.paint(color.New(color.FgGreen), fmt.Sprintf("[%s] → %s", at, m.Text))
	case models.MessageKindLeave:
		return c.paint(color.New(color.FgYellow), fmt.Sprintf("[%s] ← %s", at, m.Text))
	case models.MessageKindSystem:
		return c.paint(color.New(color.FgCyan), fmt.Sprintf("[%s] * %s", at, m.Text))
	default:
		name := c.paint(color.New(color.FgMagenta, color.OpBold), m.SenderName)
		return fmt.Sprintf("[%s] %s: %s", at, name, m.Text)
	}
}

func (c *console) roster(ps []models.Participant) {
	c.println(c.formatRoster(ps))
}

func (c *console) formatRoster(ps []models.Participant) string {
	if len(ps) == 0 {
		return c.paint(color.New(color.FgCyan), "* No hay nadie conectado")
	}
	lines := lo.Map(ps, func(p models.Participant, _ int) string {
		return fmt.Sprintf("  %s (%s)", p.Name, p.ID)
	})
	header := c.paint(color.New(color.FgCyan), fmt.Sprintf("* Conectados (%d):", len(ps)))
	return header + "\n" + strings.Join(lines, "\n")
}

func (c *console) status(st client.Status) {
	c.println(c.formatStatus(st))
}

func (c *console) formatStatus(st client.Status) string {
	line := fmt.Sprintf("* Estado: %s", st.State)
	if st.RetryCount > 0 {
		line += fmt.Sprintf(" (reintentos: %d)", st.RetryCount)
	}
	if st.UsingFallback {
		line += fmt.Sprintf(" (modo alternativo, intento %d)", st.FallbackAttempts)
	}
	if st.LastError != "" {
		line += " - " + st.LastError
	}

	style := color.New(color.FgCyan)
	switch st.State {
	case client.StateConnected:
		style = color.New(color.FgGreen)
	case client.StateFailed:
		style = color.New(color.FgRed, color.OpBold)
	case client.StateReconnecting, client.StateFallbackPolling:
		style = color.New(color.FgYellow)
	}
	return c.paint(style, line)
}

func (c *console) errorf(format string, args ...any) {
	c.println(c.paint(color.New(color.FgRed), fmt.Sprintf(format, args...)))
}
