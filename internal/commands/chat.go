package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"calassist/internal/dispatch"
	"calassist/internal/tui"
	"calassist/internal/ui"
)

const turnTimeout = 90 * time.Second

// RunChat starts an interactive conversation: the TUI on a terminal unless
// plain is set, otherwise a line-oriented REPL on stdin/stdout.
func RunChat(plain bool) error {
	interactive := term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
	useTUI := interactive && !plain

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, appOptions{quietLog: useTUI, needClassifier: true})
	if err != nil {
		return err
	}
	defer a.Close()

	if useTUI {
		st := a.status()
		return tui.Run(tui.Options{
			Handler: a.dispatcher,
			Status: tui.Status{
				Classifier:  st.Classifier,
				Timezone:    st.Timezone,
				Credentials: st.Credentials,
			},
			TurnTimeout: turnTimeout,
			Logger:      a.logger.Named("tui"),
		})
	}
	return runREPL(ctx, a.dispatcher, os.Stdin, os.Stdout, interactive)
}

// runREPL reads one utterance per line. /reset starts a new conversation and
// /quit or EOF ends the session.
func runREPL(ctx context.Context, h tui.Handler, in io.Reader, out io.Writer, prompt bool) error {
	conv := dispatch.NewConversation()
	scanner := bufio.NewScanner(in)

	if prompt {
		fmt.Fprintf(out, "calassist %s. Type /reset for a new conversation, /quit to exit.\n", Version)
	}
	for {
		if prompt {
			fmt.Fprint(out, "> ")
		}
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/reset":
			conv = dispatch.NewConversation()
			ui.ShowInfo(out, "Started a new conversation.")
			continue
		}

		turnCtx, cancel := context.WithTimeout(ctx, turnTimeout)
		reply := h.Handle(turnCtx, conv, line)
		cancel()
		fmt.Fprintln(out, reply.Text)
		if ctx.Err() != nil {
			return nil
		}
	}
	return scanner.Err()
}
