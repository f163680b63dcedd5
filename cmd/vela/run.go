package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"vela/internal/bytecode"
	"vela/internal/config"
	"vela/internal/observ"
	"vela/internal/vm"
)

var (
	runUIFlag      string
	runTrace       bool
	runTimings     bool
	runShowStats   bool
	runGCThreshold int
	runStackLimit  int
)

func init() {
	runCmd.Flags().StringVar(&runUIFlag, "ui", "", "live run view (auto|on|off)")
	runCmd.Flags().BoolVar(&runTrace, "trace", false, "write an instruction and heap trace")
	runCmd.Flags().BoolVar(&runTimings, "timings", false, "show per-module timing information")
	runCmd.Flags().BoolVar(&runShowStats, "stats", false, "print heap statistics after each module")
	runCmd.Flags().IntVar(&runGCThreshold, "gc-threshold", 0, "suspect buffer size that triggers a collection (0 = default)")
	runCmd.Flags().IntVar(&runStackLimit, "stack-limit", 0, "operand stack entry limit per frame (0 = default)")
}

var runCmd = &cobra.Command{
	Use:   "run <module.vbc>...",
	Short: "Execute compiled modules",
	Long:  "Loads, validates and executes .vbc modules. Several modules run in parallel, one interpreter each.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := config.Discover(".")
		if err != nil {
			return err
		}
		if !cmd.Flags().Changed("trace") {
			runTrace = cfg.Run.Trace
		}
		if runGCThreshold == 0 {
			runGCThreshold = cfg.VM.GCThreshold
		}
		if runStackLimit == 0 {
			runStackLimit = cfg.VM.StackLimit
		}
		uiValue := runUIFlag
		if uiValue == "" {
			uiValue = cfg.Run.UI
		}
		mode, err := readUIMode(uiValue)
		if err != nil {
			return err
		}
		return runModules(cmd, args, mode)
	},
}

// moduleRun is one module's execution: its captured output and outcome.
// Output is buffered so parallel modules never interleave on stdout.
type moduleRun struct {
	path   string
	output bytes.Buffer
	value  string
	stats  vm.Stats
	timer  *observ.Timer
	err    error
}

func runModules(cmd *cobra.Command, paths []string, mode uiMode) error {
	runs := make([]*moduleRun, len(paths))
	for i, p := range paths {
		runs[i] = &moduleRun{path: p, timer: observ.NewTimer()}
	}

	if shouldUseTUI(mode) {
		title := fmt.Sprintf("vela run (%d modules)", len(runs))
		if err := runModulesWithUI(title, runs, executeModule); err != nil {
			return err
		}
	} else {
		g := new(errgroup.Group)
		g.SetLimit(runtime.GOMAXPROCS(0))
		for _, r := range runs {
			g.Go(func() error {
				executeModule(r, nil)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	return reportRuns(cmd, runs)
}

// executeModule loads and runs one module. The observer, when set, receives
// the interpreter's advisory run events.
func executeModule(r *moduleRun, observer vm.RunObserver) {
	loadPhase := r.timer.Begin("load")
	mod, _, err := bytecode.LoadModule(r.path)
	if err != nil {
		r.timer.End(loadPhase, "")
		r.err = err
		if observer != nil {
			observer(vm.RunEvent{Kind: vm.RunFailed, Err: err.Error()})
		}
		return
	}
	r.timer.End(loadPhase, fmt.Sprintf("%d bytes of code", len(mod.Code)))

	opts := vm.Options{
		GCThreshold: runGCThreshold,
		StackLimit:  runStackLimit,
		Hosts:       vm.DefaultHosts(&r.output),
		Observer:    observer,
	}
	if runTrace {
		opts.Tracer = vm.NewTracer(&r.output)
	}
	machine := vm.NewWithOptions(opts)

	execPhase := r.timer.Begin("execute")
	result, verr := machine.Execute(mod)
	r.timer.End(execPhase, fmt.Sprintf("%d instructions", machine.InstructionCount()))
	if verr != nil {
		machine.Close()
		r.stats = machine.Heap().Stats()
		r.err = verr
		return
	}
	r.value = machine.Heap().Format(result)
	machine.ReleaseValue(result)
	machine.Close()
	r.stats = machine.Heap().Stats()
}

func reportRuns(cmd *cobra.Command, runs []*moduleRun) error {
	quiet, _ := cmd.Flags().GetBool("quiet")
	errColor := color.New(color.FgRed, color.Bold)
	okColor := color.New(color.FgGreen)
	failed := 0

	for _, r := range runs {
		os.Stdout.Write(r.output.Bytes())
		name := filepath.Base(r.path)
		if r.err != nil {
			failed++
			errColor.Fprintf(os.Stderr, "%s: %v\n", name, r.err)
		} else if !quiet {
			fmt.Fprintf(os.Stdout, "%s => %s\n", okColor.Sprint(name), r.value)
		}
		if runShowStats {
			printStats(os.Stdout, r.stats)
		}
		if runTimings {
			fmt.Fprint(os.Stdout, r.timer.Summary())
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d modules failed", failed, len(runs))
	}
	return nil
}

func printStats(out *os.File, s vm.Stats) {
	label := color.New(color.FgCyan)
	fmt.Fprintf(out, "  %s allocations=%d freed=%d collections=%d live=%d peak=%d suspects=%d\n",
		label.Sprint("heap:"), s.Allocations, s.FreedTotal, s.Collections, s.Live, s.PeakLive, s.SuspectLen)
}
