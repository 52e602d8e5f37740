// Package worker implements the script invocation worker: one
// long-lived worker per Script, lazily started on first queued
// invocation, draining an unbounded FIFO queue under the
// DEBOUNCE/BLOCK/BACKGROUND/KILL/LOCK/SCRIPT_PATH_AS_ENV_VAR policy its
// Script carries.
package worker

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"

	"github.com/midi-macros/midi-macros/internal/locks"
	"github.com/midi-macros/midi-macros/internal/macro"
	"github.com/midi-macros/midi-macros/internal/mmlog"
	"github.com/midi-macros/midi-macros/internal/predicate"
)

// Invocation is one candidate argument tuple handed to a worker by the
// trie: exactly one of Notes or MIDI is meaningful, matching the
// Script's ArgumentDefinition kind.
type Invocation struct {
	Notes []macro.PlayedNote
	MIDI  *macro.MIDIMessage
}

type item struct {
	inv      Invocation
	sentinel bool
}

// queue is the unbounded MPSC FIFO each worker owns exclusively.
type queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []item
	closed bool
}

func newQueue() *queue {
	q := &queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *queue) push(it item) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, it)
	q.cond.Signal()
}

func (q *queue) drain() (batch []item, closedEmpty bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	batch, q.items = q.items, nil
	return batch, q.closed && len(batch) == 0
}

func (q *queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// Worker owns one Script's invocation queue and, for BACKGROUND
// scripts, its single long-lived child process.
type Worker struct {
	script *macro.Script
	locks  *locks.Registry

	q       *queue
	startMu sync.Mutex
	started bool
	done    chan struct{}

	bgMu    sync.Mutex
	bgCmd   *exec.Cmd
	bgStdin io.WriteCloser

	tempFiles []string
	tempMu    sync.Mutex
}

// New returns a Worker for script. The worker goroutine is not started
// until the first call to Queue.
func New(script *macro.Script, registry *locks.Registry) *Worker {
	return &Worker{script: script, locks: registry, q: newQueue(), done: make(chan struct{})}
}

// Queue appends an invocation; it never blocks.
func (w *Worker) Queue(ctx context.Context, inv Invocation) {
	w.startMu.Lock()
	if !w.started {
		w.started = true
		go w.run(ctx)
	}
	w.startMu.Unlock()
	w.q.push(item{inv: inv})
}

// Shutdown enqueues a sentinel, waits for the worker to drain
// everything already queued and exit, then tears down any BACKGROUND
// child and temp files. If Queue was never called there is no worker
// goroutine to join and Shutdown only closes the queue.
func (w *Worker) Shutdown() {
	w.startMu.Lock()
	started := w.started
	w.started = true // a Queue racing with Shutdown must not start a fresh goroutine
	w.startMu.Unlock()
	w.q.push(item{sentinel: true})
	w.q.close()
	if started {
		<-w.done
	}
}

func (w *Worker) run(ctx context.Context) {
	defer func() {
		w.teardownBackground()
		w.removeTempFiles()
		close(w.done)
	}()
	for {
		batch, closedEmpty := w.q.drain()
		if closedEmpty {
			return
		}
		var invs []Invocation
		sentinelSeen := false
		for _, it := range batch {
			if it.sentinel {
				sentinelSeen = true
				continue
			}
			invs = append(invs, it.inv)
		}
		if w.script.Flags.Has(macro.FlagDebounce) && len(invs) > 1 {
			invs = invs[len(invs)-1:]
		}
		for _, inv := range invs {
			w.invoke(ctx, inv)
		}
		if sentinelSeen {
			return
		}
	}
}

func (w *Worker) logCtx(ctx context.Context) context.Context {
	return mmlog.With(ctx, w.script.Profile, w.script.Subprofile)
}

// invoke runs (or, for BACKGROUND, feeds) the script once. Any failure
// is logged; the worker keeps running.
func (w *Worker) invoke(ctx context.Context, inv Invocation) {
	ctx = w.logCtx(ctx)

	var release func()
	if len(w.script.Locks) > 0 {
		lockCtx := locks.NewOwner(ctx)
		r, err := w.locks.Acquire(lockCtx, w.script.Locks)
		if err != nil {
			mmlog.Errorf(ctx, "lock acquisition failed: %v", err)
			return
		}
		release = r
		defer release()
	}

	argString, finalText, usesStdin, err := w.renderInvocation(inv)
	if err != nil {
		mmlog.Errorf(ctx, "argument rendering failed: %v", err)
		return
	}

	if w.script.Flags.Has(macro.FlagBackground) {
		w.feedBackground(ctx, argString)
		return
	}

	if err := w.spawn(ctx, finalText, argString, usesStdin); err != nil {
		mmlog.Errorf(ctx, "script spawn failed: %v", err)
	}
}

// renderInvocation prepares one invocation's argument string and final
// script text: no arguments at all means the script runs verbatim;
// otherwise the
// argument definition's processor renders either a single argument
// string (a joiner, fed to the child's stdin) or a set of
// (token, rendered) substitutions applied directly into the script
// text (a ScriptPreprocessor), in which case no argument string flows
// over stdin at all.
func (w *Worker) renderInvocation(inv Invocation) (argString, finalText string, usesStdin bool, err error) {
	def := w.script.ArgumentDefinition
	if def == nil {
		def = macro.ZeroArgumentDefinition
	}
	finalText = w.script.Text

	noArgs := def.Kind == macro.ArgZero && w.script.InvocationFormat == nil
	if noArgs {
		return "", finalText, false, nil
	}

	proc := def.Processor
	if proc != nil && proc.IsPreprocessor() {
		for _, rep := range proc.Replacements {
			rendered := renderJoiner(rep.Processor, inv)
			finalText = strings.ReplaceAll(finalText, rep.Token, rendered)
		}
		return "", finalText, false, nil
	}

	argString = renderJoiner(proc, inv)
	if w.script.InvocationFormat != nil {
		argString, err = renderInvocationFormat(w.script.InvocationFormat, inv, argString)
		if err != nil {
			return "", "", false, err
		}
	}
	return argString, finalText, true, nil
}

func renderJoiner(proc *macro.ArgumentProcessor, inv Invocation) string {
	if inv.MIDI != nil {
		if proc == nil {
			return fmt.Sprintf("%d %d %d", inv.MIDI.StatusNibble, inv.MIDI.Data1, inv.MIDI.Data2)
		}
		return proc.RenderMIDI(*inv.MIDI)
	}
	if proc == nil {
		parts := make([]string, len(inv.Notes))
		for i, n := range inv.Notes {
			parts[i] = fmt.Sprintf("%d", n.Note)
		}
		return strings.Join(parts, " ")
	}
	parts := make([]string, len(inv.Notes))
	for i, n := range inv.Notes {
		parts[i] = proc.RenderNote(n)
	}
	return strings.Join(parts, proc.Separator)
}

// renderInvocationFormat evaluates an INVOCATION_FORMAT f-string
// against the same variable environment the trigger matcher uses for
// the invocation's notes or MIDI message, with ARGS bound to the
// processor's already-rendered argument string.
func renderInvocationFormat(f *macro.FormatExpr, inv Invocation, argString string) (string, error) {
	env := invocationEnv(inv, argString)
	var b strings.Builder
	for _, part := range f.Parts {
		if part.Expr == nil {
			b.WriteString(part.Literal)
			continue
		}
		v, err := part.Expr.Eval(env)
		if err != nil {
			return "", err
		}
		b.WriteString(v.String())
	}
	return b.String(), nil
}

func invocationEnv(inv Invocation, argString string) predicate.Env {
	env := predicate.Env{"ARGS": predicate.StringValue(argString)}
	if inv.MIDI != nil {
		m := inv.MIDI
		env["s"] = predicate.NumberValue(float64(m.StatusNibble))
		env["STATUS"] = predicate.NumberValue(float64(m.StatusNibble))
		env["d1"] = predicate.NumberValue(float64(m.Data1))
		env["DATA_1"] = predicate.NumberValue(float64(m.Data1))
		env["d2"] = predicate.NumberValue(float64(m.Data2))
		env["DATA_2"] = predicate.NumberValue(float64(m.Data2))
		env["c"] = predicate.NumberValue(float64(m.Channel))
		env["CHANNEL"] = predicate.NumberValue(float64(m.Channel))
		env["t"] = predicate.NumberValue(float64(m.Time))
		env["TIME"] = predicate.NumberValue(float64(m.Time))
		return env
	}
	if len(inv.Notes) > 0 {
		last := inv.Notes[len(inv.Notes)-1]
		env["VELOCITY"] = predicate.NumberValue(float64(last.Velocity))
		env["v"] = predicate.NumberValue(float64(last.Velocity))
		env["TIME"] = predicate.NumberValue(float64(last.Time))
		env["t"] = predicate.NumberValue(float64(last.Time))
		env["CHANNEL"] = predicate.NumberValue(float64(last.Channel))
		env["c"] = predicate.NumberValue(float64(last.Channel))
	}
	return env
}

// spawn runs finalText once, synchronously if BLOCK is set; waiting on
// the child blocks only this worker goroutine, never the listener.
func (w *Worker) spawn(ctx context.Context, finalText, argString string, usesStdin bool) error {
	cmd, cleanup, err := w.buildCommand(finalText, argString, usesStdin)
	if err != nil {
		return err
	}
	defer cleanup()

	if w.script.Flags.Has(macro.FlagBlock) {
		return cmd.Run()
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			mmlog.Errorf(ctx, "script exited: %v", err)
		}
	}()
	return nil
}

// buildCommand applies the SCRIPT_PATH_AS_ENV_VAR / interpreter-stdin
// rules: a temp file + MM_SCRIPT env var is used whenever the
// flag is set, or whenever an interpreter is declared and the rendered
// argument also needs stdin (the two cannot share one pipe); otherwise
// an interpreter is fed the script text directly over its stdin, and a
// bare script runs through the system shell with the argument string
// (if any) on its stdin.
func (w *Worker) buildCommand(finalText, argString string, usesStdin bool) (*exec.Cmd, func(), error) {
	noop := func() {}
	forceTempFile := w.script.Flags.Has(macro.FlagScriptPathAsEnvVar) ||
		(w.script.Interpreter != "" && usesStdin)

	if forceTempFile {
		path, err := w.writeTempFile(finalText)
		if err != nil {
			return nil, noop, err
		}
		shellLine := `"$MM_SCRIPT"`
		if w.script.Interpreter != "" {
			shellLine = fmt.Sprintf(`%s "$MM_SCRIPT"`, w.script.Interpreter)
		}
		cmd := exec.Command("sh", "-c", shellLine)
		cmd.Env = append(os.Environ(), "MM_SCRIPT="+path)
		if usesStdin {
			cmd.Stdin = strings.NewReader(argString)
		}
		return cmd, noop, nil
	}

	if w.script.Interpreter != "" {
		cmd := exec.Command(w.script.Interpreter)
		cmd.Stdin = strings.NewReader(finalText)
		return cmd, noop, nil
	}

	cmd := exec.Command("sh", "-c", finalText)
	if usesStdin {
		cmd.Stdin = strings.NewReader(argString)
	}
	return cmd, noop, nil
}

func (w *Worker) writeTempFile(text string) (string, error) {
	f, err := os.CreateTemp("", "midi-macros-script-*")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.WriteString(text); err != nil {
		return "", err
	}
	w.tempMu.Lock()
	w.tempFiles = append(w.tempFiles, f.Name())
	w.tempMu.Unlock()
	return f.Name(), nil
}

func (w *Worker) removeTempFiles() {
	w.tempMu.Lock()
	files := w.tempFiles
	w.tempFiles = nil
	w.tempMu.Unlock()
	for _, path := range files {
		// Best-effort: a leaked temp file is never fatal.
		_ = os.Remove(path)
	}
}

// feedBackground lazily spawns the single long-lived BACKGROUND child
// on first invocation, then writes the rendered argument string to its
// stdin.
func (w *Worker) feedBackground(ctx context.Context, argString string) {
	w.bgMu.Lock()
	defer w.bgMu.Unlock()
	if w.bgCmd == nil {
		if err := w.startBackground(); err != nil {
			mmlog.Errorf(ctx, "background script failed to start: %v", err)
			return
		}
	}
	if _, err := io.WriteString(w.bgStdin, argString+"\n"); err != nil {
		mmlog.Errorf(ctx, "background script stdin write failed: %v", err)
	}
}

func (w *Worker) startBackground() error {
	var cmd *exec.Cmd
	if w.script.Interpreter != "" {
		cmd = exec.Command(w.script.Interpreter)
	} else {
		cmd = exec.Command("sh", "-c", w.script.Text)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	w.bgCmd = cmd
	w.bgStdin = stdin
	return nil
}

// teardownBackground closes stdin (ending the child normally) unless
// KILL is set, in which case SIGKILL is sent instead.
func (w *Worker) teardownBackground() {
	w.bgMu.Lock()
	cmd, stdin := w.bgCmd, w.bgStdin
	w.bgMu.Unlock()
	if cmd == nil {
		return
	}
	if w.script.Flags.Has(macro.FlagKill) {
		if cmd.Process != nil {
			_ = cmd.Process.Signal(syscall.SIGKILL)
		}
	} else if stdin != nil {
		_ = stdin.Close()
	}
	_ = cmd.Wait()
}
