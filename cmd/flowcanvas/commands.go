package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/c360/flowcanvas/binder"
	"github.com/c360/flowcanvas/editor"
	flowengine "github.com/c360/flowcanvas/engine"
	"github.com/c360/flowcanvas/engineclient"
	"github.com/c360/flowcanvas/errors"
	"github.com/c360/flowcanvas/flowgraph"
	"github.com/c360/flowcanvas/flowstore"
)

// archiveExt marks files written by export.
const archiveExt = ".fca"

func (a *app) dispatch(ctx context.Context, cli *CLIConfig, out io.Writer) error {
	switch cli.Command {
	case "health":
		return a.health(ctx, out)
	case "catalogue":
		return a.listCatalogue(ctx, out)
	case "check":
		return a.check(ctx, cli.Args[0], out)
	case "run":
		return a.run(ctx, cli, cli.Args[0], out)
	case "save":
		return a.save(ctx, cli.Args[0], false, out)
	case "import":
		return a.save(ctx, cli.Args[0], true, out)
	case "list":
		return a.list(ctx, out)
	case "delete":
		if err := a.store.Delete(ctx, cli.Args[0]); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "deleted %s\n", cli.Args[0])
		return nil
	case "export":
		return a.export(ctx, cli.Args[0], cli.Args[1], out)
	case "history":
		return a.listHistory(ctx, cli.Args[0], out)
	default:
		return fmt.Errorf("unknown command: %s", cli.Command)
	}
}

func (a *app) health(ctx context.Context, out io.Writer) error {
	status := a.checker().Check(ctx)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "%s\t%s\n", status.Component, status.Status)
	for _, sub := range status.SubStatuses {
		_, _ = fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", sub.Component, sub.Status,
			sub.Latency.Round(time.Millisecond), sub.Message)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if status.IsUnhealthy() {
		return errors.WrapTransient(fmt.Errorf("%s is unhealthy", appName), "app", "health", "dependency check")
	}
	return nil
}

func (a *app) listCatalogue(ctx context.Context, out io.Writer) error {
	categories, err := a.catalogue.Categories(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, c := range categories {
		_, _ = fmt.Fprintf(tw, "%s\t(%d)\n", c.Name, len(c.Items))
		for _, inst := range c.Items {
			_, _ = fmt.Fprintf(tw, "  %s\t%s\t%d params\n", inst.ID, inst.Name, len(inst.Params))
		}
	}
	return tw.Flush()
}

// readFlow reads a JSON flow file or an archive.
func (a *app) readFlow(path string) (*flowstore.FlowDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read flow: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), archiveExt) {
		codec, err := flowstore.NewArchiveCodec()
		if err != nil {
			return nil, err
		}
		defer codec.Close()
		return codec.Decode(data)
	}
	return flowstore.Decode(data)
}

// open loads doc into a fresh session and reports what could not be
// restored.
func (a *app) open(ctx context.Context, doc *flowstore.FlowDocument, out io.Writer) (*editor.Session, error) {
	sess, err := a.newSession()
	if err != nil {
		return nil, err
	}
	report, err := sess.Open(ctx, doc)
	if err != nil {
		sess.Close()
		return nil, err
	}
	printReport(out, report)
	return sess, nil
}

func printReport(out io.Writer, report flowstore.LoadReport) {
	for _, id := range report.Unresolved {
		_, _ = fmt.Fprintf(out, "warning: node %s uses an unknown instruction\n", id)
	}
	for _, id := range report.DroppedNodes {
		_, _ = fmt.Fprintf(out, "warning: dropped node %s\n", id)
	}
	for _, e := range report.DroppedEdges {
		_, _ = fmt.Fprintf(out, "warning: dropped edge %s: %s\n", e.EdgeID, e.Reason)
	}
}

// printAnalysis prints connectivity warnings. They are advisory: the
// engine decides at submit time.
func printAnalysis(out io.Writer, analysis flowgraph.Analysis) {
	for _, issue := range analysis.Issues {
		if issue.Code == flowgraph.IssueUnresolved {
			continue
		}
		line := "warning: " + issue.Code + ": " + issue.Message
		if len(issue.NodeIDs) > 0 {
			line += " [" + strings.Join(issue.NodeIDs, ", ") + "]"
		}
		_, _ = fmt.Fprintln(out, line)
	}
}

func printFieldErrors(out io.Writer, errs binder.FieldErrors) {
	for _, fe := range errs {
		_, _ = fmt.Fprintf(out, "  %s\t%s\t%s\n", fe.NodeID, fe.Code, fe.Message)
	}
}

func (a *app) check(ctx context.Context, path string, out io.Writer) error {
	doc, err := a.readFlow(path)
	if err != nil {
		return err
	}
	sess, err := a.open(ctx, doc, out)
	if err != nil {
		return err
	}
	defer sess.Close()

	printAnalysis(out, sess.Analyze())
	if errs := sess.Validate(); len(errs) > 0 {
		_, _ = fmt.Fprintf(out, "%d problem(s):\n", len(errs))
		printFieldErrors(out, errs)
		return errs
	}
	_, _ = fmt.Fprintf(out, "ok: %d nodes, %d edges\n", sess.Graph().NodeCount(), sess.Graph().EdgeCount())
	return nil
}

// run executes a flow file, or a stored flow when no such file exists, and
// waits for the run to finish.
func (a *app) run(ctx context.Context, cli *CLIConfig, target string, out io.Writer) error {
	var sess *editor.Session
	if _, statErr := os.Stat(target); statErr == nil {
		doc, err := a.readFlow(target)
		if err != nil {
			return err
		}
		s, err := a.open(ctx, doc, out)
		if err != nil {
			return err
		}
		sess = s
	} else {
		s, err := a.newSession()
		if err != nil {
			return err
		}
		report, err := s.Load(ctx, target)
		if err != nil {
			s.Close()
			return err
		}
		printReport(out, report)
		sess = s
	}
	defer sess.Close()

	hub, err := a.newHub()
	if err != nil {
		return err
	}
	if hub != nil {
		defer sess.Orchestrator().Subscribe(hub)()
	}

	return a.serveWhile(ctx, hub, cli.ShutdownTimeout, func(ctx context.Context) error {
		if cli.RunTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cli.RunTimeout)
			defer cancel()
		}
		return a.execute(ctx, sess, cli.ShutdownTimeout, out)
	})
}

// execute submits the session's flow and prints every transition until
// the run ends. Cancelling ctx terminates the run.
func (a *app) execute(ctx context.Context, sess *editor.Session, shutdownTimeout time.Duration, out io.Writer) error {
	updates := make(chan flowengine.Snapshot, 64)
	unsubscribe := sess.Orchestrator().Subscribe(flowengine.ObserverFunc(func(s flowengine.Snapshot) {
		select {
		case updates <- s:
		default:
			a.logger.Debug("Dropped run update", "state", s.State)
		}
	}))
	defer unsubscribe()

	started, err := sess.Run(ctx)
	if err != nil {
		var fieldErrs binder.FieldErrors
		if stderrors.As(err, &fieldErrs) {
			_, _ = fmt.Fprintf(out, "refused, %d problem(s):\n", len(fieldErrs))
			printFieldErrors(out, fieldErrs)
		}
		return err
	}
	if !started {
		return errors.WrapInvalid(errors.ErrRunInProgress, "app", "execute", "submit")
	}

	for {
		select {
		case snap := <-updates:
			printSnapshot(out, snap)
			if snap.State.Terminal() {
				return runOutcome(snap)
			}
		case <-ctx.Done():
			a.logger.Warn("Terminating run", "reason", ctx.Err())
			termCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := sess.Terminate(termCtx); err != nil {
				a.logger.Warn("Terminate failed", "error", err)
			}
			return ctx.Err()
		}
	}
}

func printSnapshot(out io.Writer, snap flowengine.Snapshot) {
	line := fmt.Sprintf("run %d: %s", snap.RunID, snap.State)
	if snap.FlowID != "" {
		line += " flow=" + snap.FlowID
	}
	if snap.Result != nil && snap.Result.Message != "" {
		line += " message=" + snap.Result.Message
	}
	if !snap.StartedAt.IsZero() && !snap.FinishedAt.IsZero() {
		line += " took=" + snap.FinishedAt.Sub(snap.StartedAt).Round(time.Millisecond).String()
	}
	_, _ = fmt.Fprintln(out, line)
	if f := snap.Failure; f != nil {
		_, _ = fmt.Fprintf(out, "  %s: %s\n", f.Kind, f.Message)
		for _, issue := range f.Issues {
			_, _ = fmt.Fprintf(out, "  %s\t%s\t%s\n", issue.NodeID, issue.Code, issue.Message)
		}
	}
}

func runOutcome(snap flowengine.Snapshot) error {
	if snap.State != flowengine.StateFailed {
		return nil
	}
	msg := "run failed"
	if snap.Failure != nil {
		msg = fmt.Sprintf("run failed (%s): %s", snap.Failure.Kind, snap.Failure.Message)
	}
	return errors.WrapFatal(stderrors.New(msg), "app", "execute", "run outcome")
}

// save stores a flow file. An import always creates a new flow.
func (a *app) save(ctx context.Context, path string, asNew bool, out io.Writer) error {
	doc, err := a.readFlow(path)
	if err != nil {
		return err
	}
	if asNew {
		doc.ID = ""
		doc.Version = 0
		doc.CreatedAt = time.Time{}
		doc.UpdatedAt = time.Time{}
	}
	sess, err := a.open(ctx, doc, out)
	if err != nil {
		return err
	}
	defer sess.Close()

	id, err := sess.Save(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "saved %s (version %d)\n", id, sess.Meta().Version)
	return nil
}

func (a *app) list(ctx context.Context, out io.Writer) error {
	items, err := a.store.List(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tNODES\tVERSION\tUPDATED")
	for _, s := range items {
		updated := "-"
		if !s.UpdatedAt.IsZero() {
			updated = s.UpdatedAt.Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", s.ID, s.Name, s.NodeCount, s.Version, updated)
	}
	return tw.Flush()
}

func (a *app) listHistory(ctx context.Context, id string, out io.Writer) error {
	if a.history == nil {
		return errors.WrapInvalid(fmt.Errorf("%w: no engine history", errors.ErrNotInitialized), "app", "history", "engine check")
	}
	entries, err := a.history.History(ctx, id)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		_, _ = fmt.Fprintf(out, "no runs recorded for %s\n", id)
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "EXECUTED\tSUCCESS\tSECONDS\tERROR")
	for _, e := range entries {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			historyField(e, "executed_at"), historyField(e, "success"),
			historyField(e, "execution_time"), historyField(e, "error_message"))
	}
	return tw.Flush()
}

// historyField renders one engine-reported value, "-" when absent.
func historyField(e engineclient.HistoryEntry, key string) string {
	v, ok := e[key]
	if !ok || v == nil || v == "" {
		return "-"
	}
	if f, ok := v.(float64); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

func (a *app) export(ctx context.Context, id, path string, out io.Writer) error {
	if !strings.EqualFold(filepath.Ext(path), archiveExt) {
		return errors.WrapInvalid(fmt.Errorf("archive must end in %s: %s", archiveExt, path), "app", "export", "path check")
	}
	doc, err := a.store.Load(ctx, id)
	if err != nil {
		return err
	}
	codec, err := flowstore.NewArchiveCodec()
	if err != nil {
		return err
	}
	defer codec.Close()

	data, err := codec.Encode(doc)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write archive: %w", err)
	}
	_, _ = fmt.Fprintf(out, "exported %s to %s (%d bytes)\n", id, path, len(data))
	return nil
}
