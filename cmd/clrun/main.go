package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/compute-runtime/backend"
	"github.com/wippyai/compute-runtime/compute"
)

func main() {
	var (
		list        = flag.Bool("list", false, "List platforms and devices and exit")
		n           = flag.Int("n", 1024, "Number of elements")
		ooo         = flag.Bool("ooo", false, "Use an out-of-order queue")
		profile     = flag.Bool("profile", true, "Record profiling timestamps")
		fail        = flag.Bool("fail", false, "Inject a device fault into the vadd kernel")
		poll        = flag.Bool("poll", false, "Simulate a device without event callbacks")
		latency     = flag.Duration("latency", 0, "Simulated latency per command")
		verbose     = flag.Bool("v", false, "Log runtime diagnostics to stderr")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *n <= 0 {
		fmt.Fprintln(os.Stderr, "Usage: clrun [-n elements] [-ooo] [-profile] [-fail] [-poll] [-latency d]")
		fmt.Fprintln(os.Stderr, "       clrun -list")
		fmt.Fprintln(os.Stderr, "       clrun -i  (interactive mode)")
		os.Exit(1)
	}
	if *verbose {
		logger, err := zap.NewDevelopment()
		if err == nil {
			compute.SetLogger(logger)
			defer logger.Sync()
		}
	}

	opts := options{n: *n, ooo: *ooo, profile: *profile, fail: *fail, poll: *poll, latency: *latency}

	if *interactive {
		if opts.latency == 0 {
			opts.latency = 150 * time.Millisecond
		}
		if err := runInteractive(opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(opts, *list); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type styles struct {
	title, header, ok, bad, dim lipgloss.Style
}

func newStyles(color bool) styles {
	if !color {
		plain := lipgloss.NewStyle()
		return styles{title: plain, header: plain, ok: plain, bad: plain, dim: plain}
	}
	return styles{
		title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1),
		header: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#87CEEB")),
		ok:     lipgloss.NewStyle().Foreground(lipgloss.Color("#90EE90")),
		bad:    lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")),
		dim:    lipgloss.NewStyle().Foreground(lipgloss.Color("#666666")),
	}
}

func run(opts options, listOnly bool) error {
	st := newStyles(term.IsTerminal(int(os.Stdout.Fd())))

	p, err := newPipeline(opts)
	if err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	defer p.Close()

	if err := printDevices(st, p); err != nil {
		return err
	}
	if listOnly {
		return nil
	}

	steps, out, release, err := p.run(nil)
	if err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	defer release()
	if err := p.queue.Finish(); err != nil {
		return fmt.Errorf("finish: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	events := make([]*compute.Event, len(steps))
	for i, s := range steps {
		events[i] = s.event
	}
	if err := compute.WaitAll(ctx, events...); err != nil {
		return fmt.Errorf("wait: %w", err)
	}

	fmt.Printf("\n%s queue=%s n=%d\n\n", st.title.Render("Timeline"), p.queue.Properties(), opts.n)
	fmt.Println(st.header.Render(fmt.Sprintf("%-3s %-14s %-40s %12s %12s", "#", "command", "status", "start", "duration")))
	origin := firstQueued(steps)
	failed := false
	for i, s := range steps {
		r := rowFor(i, s, origin)
		status := r.status.String()
		style := st.ok
		if r.status.IsAborted() {
			style = st.bad
			failed = true
		}
		fmt.Printf("%-3d %-14s %s %12s %12s\n", r.index, r.name, style.Render(fmt.Sprintf("%-40s", status)), fmtDur(r.started), fmtDur(r.duration))
	}
	fmt.Println()

	if failed {
		fmt.Println(st.bad.Render("pipeline aborted; result not verified"))
		return nil
	}
	if err := verify(out); err != nil {
		return err
	}
	fmt.Println(st.ok.Render(fmt.Sprintf("verified %d elements", len(out))))
	return nil
}

func printDevices(st styles, p *pipeline) error {
	platforms, err := compute.Platforms(p.sim)
	if err != nil {
		return err
	}
	for _, pl := range platforms {
		info := pl.Info()
		fmt.Printf("%s %s (%s, %s)\n", st.title.Render("Platform"), info.Name, info.Vendor, info.Version)
		if len(info.Extensions) > 0 {
			fmt.Println(st.dim.Render("  extensions: " + strings.Join(info.Extensions, " ")))
		}
		devices, err := pl.Devices(backend.DeviceAll)
		if err != nil {
			return err
		}
		for _, d := range devices {
			di := d.Info()
			fmt.Printf("  %s %s units=%d wg=%d mem=%dMiB ooo=%v profiling=%v callbacks=%v\n",
				st.header.Render(di.Type.String()), di.Name, di.MaxComputeUnits, di.MaxWorkGroupSize,
				di.GlobalMemSize>>20, di.OutOfOrder, di.Profiling, di.EventCallbacks)
		}
	}
	return nil
}

func firstQueued(steps []step) uint64 {
	var origin uint64
	for _, s := range steps {
		if p, err := s.event.Profile(); err == nil && (origin == 0 || p.Queued < origin) {
			origin = p.Queued
		}
	}
	return origin
}

func fmtDur(d time.Duration) string {
	if d == 0 {
		return "-"
	}
	return d.Round(time.Microsecond).String()
}
