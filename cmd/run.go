package cmd

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/pkg/profile"

	"github.com/ethereum-optimism/optimism/op-service/jsonutil"

	"github.com/cairovm/cairovm/felt"
	"github.com/cairovm/cairovm/runner"
)

var (
	RunInputFlag = &cli.PathFlag{
		Name:      "input",
		Usage:     "path of the compiled program to run",
		TakesFile: true,
		Required:  true,
	}
	RunOutputFlag = &cli.PathFlag{
		Name:      "output",
		Usage:     "path to write the final machine state to, as JSON",
		TakesFile: true,
	}
	RunMaxStepsFlag = &cli.Uint64Flag{
		Name:  "max-steps",
		Usage: "halt with an error after this many steps (0 = unbounded)",
	}
	RunReturnsFlag = &cli.Uint64Flag{
		Name:  "returns",
		Usage: "number of return values to read off the stack and log",
	}
	RunPProfCPU = &cli.BoolFlag{
		Name:  "pprof.cpu",
		Usage: "enable pprof cpu profiling",
	}
)

var OutFilePerm = os.FileMode(0o755)

func Run(ctx *cli.Context) error {
	if ctx.Bool(RunPProfCPU.Name) {
		defer profile.Start(profile.NoShutdownHook, profile.ProfilePath("."), profile.CPUProfile).Stop()
	}

	l := Logger(os.Stderr, log.LevelInfo)

	prog, err := jsonutil.LoadJSON[runner.Program](ctx.Path(RunInputFlag.Name))
	if err != nil {
		return fmt.Errorf("failed to load program: %w", err)
	}

	r, err := runner.NewRunner(prog, l)
	if err != nil {
		return err
	}
	l.Info("program loaded",
		"words", len(prog.Data),
		"entrypoint", prog.Entrypoint,
		"pc", r.Machine.Ctx.Pc,
	)

	if err := r.Run(ctx.Context, ctx.Uint64(RunMaxStepsFlag.Name)); err != nil {
		return fmt.Errorf("run failed at step %d (pc %v): %w",
			r.Machine.StepCount, r.Machine.Ctx.Pc, err)
	}

	if n := ctx.Uint64(RunReturnsFlag.Name); n > 0 {
		vals, err := r.FeltReturnValues(n)
		if err != nil {
			return fmt.Errorf("failed to read return values: %w", err)
		}
		for i := range vals {
			l.Info("return value", "index", i, "value", felt.Hex(&vals[i]))
		}
	}

	if outPath := ctx.Path(RunOutputFlag.Name); outPath != "" {
		if err := jsonutil.WriteJSON(outPath, r.Machine, OutFilePerm); err != nil {
			return fmt.Errorf("failed to write final state: %w", err)
		}
	}
	return nil
}

var RunCommand = &cli.Command{
	Name:        "run",
	Usage:       "Run a compiled program to completion",
	Description: "Runs a compiled program until its entry function returns, and writes the final machine state",
	Action:      Run,
	Flags: []cli.Flag{
		RunInputFlag,
		RunOutputFlag,
		RunMaxStepsFlag,
		RunReturnsFlag,
		RunPProfCPU,
	},
}
