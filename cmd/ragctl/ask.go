package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ragconsole/internal/backend"
	"ragconsole/internal/clarify"
	"ragconsole/internal/config"
	"ragconsole/internal/conversation"
	"ragconsole/internal/interpret"
	"ragconsole/internal/store"
)

const askHelp = `Commands:
  :reset          start a new conversation
  :debug on|off   toggle the debug panel (admin/debug roles or --ui-mode debug)
  :source N       preview source N of the latest answer
  :quit           leave
When asked to clarify, answer with the option number (0 cancels).`

func newAskCmd(o *rootOptions) *cobra.Command {
	var transcript string
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask questions interactively",
		Long:  "Starts a conversation. A question given as arguments is sent first.\n\n" + askHelp,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := o.client(cmd.Context())
			if err != nil {
				return err
			}
			profile, err := config.LoadProfile(o.cfg.ProfilePath)
			if err != nil {
				return err
			}
			sess := conversation.NewSession(o.identity(), c,
				conversation.WithEngine(clarifyEngine(profile)),
				conversation.WithDepthBound(profile.Clarification.DepthBound),
				conversation.WithLogger(o.log),
			)
			r := &repl{
				sess: sess,
				out:  cmd.OutOrStdout(),
				ctx:  cmd.Context(),
			}
			if transcript != "" {
				r.transcript = store.NewFileTranscriptStore(transcript)
				r.tenant = o.tenant
			}
			if len(args) > 0 {
				if err := r.handle(strings.Join(args, " ")); err != nil {
					return err
				}
			}
			return r.run(cmd.InOrStdin())
		},
	}
	cmd.Flags().StringVar(&transcript, "transcript", "", "save the conversation to this JSON file after every turn")
	return cmd
}

var errQuit = errors.New("quit")

type repl struct {
	sess       *conversation.Session
	out        io.Writer
	ctx        context.Context
	transcript *store.FileTranscriptStore
	tenant     string
	printed    int
}

func (r *repl) run(in io.Reader) error {
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(r.out, r.prompt())
		if !sc.Scan() {
			fmt.Fprintln(r.out)
			return sc.Err()
		}
		if err := r.handle(sc.Text()); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			return err
		}
	}
}

func (r *repl) prompt() string {
	if r.sess.Snapshot().State == conversation.StateAwaitingClarification {
		return "choose> "
	}
	return "> "
}

// handle processes one input line. Only errQuit and transcript failures end
// the loop; operation errors are printed.
func (r *repl) handle(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	snap := r.sess.Snapshot()

	var err error
	switch {
	case line == ":quit" || line == ":q":
		return errQuit
	case line == ":help":
		fmt.Fprintln(r.out, askHelp)
		return nil
	case line == ":reset":
		snap = r.sess.Reset()
		r.printed = 0
		fmt.Fprintln(r.out, "(new conversation)")
	case strings.HasPrefix(line, ":debug"):
		arg := strings.TrimSpace(strings.TrimPrefix(line, ":debug"))
		if arg != "on" && arg != "off" {
			fmt.Fprintln(r.out, "usage: :debug on|off")
			return nil
		}
		snap = r.sess.SetDebug(arg == "on")
		if !snap.CanShowDebug {
			fmt.Fprintln(r.out, "(debug output is not available for your roles)")
		}
	case strings.HasPrefix(line, ":source"):
		n, convErr := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, ":source")))
		if convErr != nil {
			fmt.Fprintln(r.out, "usage: :source N")
			return nil
		}
		snap, err = r.sess.SelectCitation(n - 1)
		if err == nil {
			r.printPreview(snap)
		}
	case snap.State == conversation.StateAwaitingClarification && isNumber(line):
		n, _ := strconv.Atoi(line)
		if n == 0 {
			snap, err = r.sess.CancelClarification()
			if err == nil {
				fmt.Fprintln(r.out, "(clarification cancelled)")
			}
			break
		}
		if n < 1 || n > len(snap.Options) {
			fmt.Fprintf(r.out, "choose 1-%d, or 0 to cancel\n", len(snap.Options))
			return nil
		}
		snap, err = r.sess.SelectClarification(r.ctx, snap.Options[n-1])
	default:
		snap, err = r.sess.Submit(r.ctx, line)
	}
	if err != nil {
		fmt.Fprintf(r.out, "! %v\n", err)
		return nil
	}
	r.render(snap)
	return r.save(snap)
}

func (r *repl) render(snap conversation.Snapshot) {
	view := snap.ForView()
	for _, m := range view.Messages[r.printed:] {
		switch m.Role {
		case conversation.RoleAssistant:
			r.printAnswer(m, view.ShowDebug())
		case conversation.RoleError:
			fmt.Fprintf(r.out, "! %s\n", m.Text)
		}
	}
	r.printed = len(view.Messages)

	if view.State == conversation.StateAwaitingClarification {
		fmt.Fprintln(r.out, "Your question can be read several ways:")
		for i, opt := range view.Options {
			fmt.Fprintf(r.out, "  %d) %s\n", i+1, opt)
		}
		fmt.Fprintln(r.out, "  0) cancel")
	}
}

func (r *repl) printAnswer(m conversation.Message, debug bool) {
	if m.Assistant == nil {
		// embedded refusal
		fmt.Fprintln(r.out, m.Text)
		return
	}
	fmt.Fprintln(r.out, m.Assistant.Details)
	if len(m.Assistant.Sources) > 0 {
		fmt.Fprintln(r.out, "Sources:")
		for i, c := range m.Assistant.Sources {
			fmt.Fprintf(r.out, "  [%d] %s  %s\n", i+1, c.Title, c.URL)
		}
	}
	if debug && m.Assistant.Debug != nil {
		d := m.Assistant.Debug
		fmt.Fprintf(r.out, "debug: chunks=%d coverage=%.2f confidence=%.2f window=%d\n",
			d.ChunksUsed, d.CoverageRatio, d.Confidence, d.ModelContextWindow)
		for _, step := range d.AgentTrace {
			fmt.Fprintf(r.out, "  %-14s %8.1f ms\n", step.Stage, step.LatencyMS)
		}
	}
}

func (r *repl) printPreview(snap conversation.Snapshot) {
	c := snap.Preview
	if c == nil {
		return
	}
	fmt.Fprintf(r.out, "%s\n%s\n\n%s\n", c.Title, c.URL, c.Snippet)
	if c.FilePath != "" {
		fmt.Fprintf(r.out, "file: %s\n", c.FilePath)
	}
	if len(c.HeadingsPath) > 0 {
		fmt.Fprintf(r.out, "section: %s\n", strings.Join(c.HeadingsPath, " > "))
	}
}

func (r *repl) save(snap conversation.Snapshot) error {
	if r.transcript == nil {
		return nil
	}
	if len(snap.Messages) == 0 {
		return r.transcript.Clear()
	}
	return r.transcript.Write(&store.Transcript{
		TenantID: r.tenant,
		SavedAt:  time.Now().UTC(),
		Messages: snap.ForView().Messages,
	})
}

func isNumber(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}

func clarifyEngine(p config.Profile) *clarify.Engine {
	return clarify.NewEngine(p.Clarification.Markers, p.Clarification.MaxOptions)
}

// friendly rewrites backend failures the way the conversation shows them.
// Input errors pass through unchanged.
func friendly(err error) error {
	var (
		terr *backend.TransportError
		verr *backend.ValidationError
	)
	if errors.As(err, &terr) || errors.As(err, &verr) || errors.Is(err, context.DeadlineExceeded) {
		return errors.New(interpret.FriendlyMessage(err))
	}
	return err
}
