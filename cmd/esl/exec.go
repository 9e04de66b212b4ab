package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Antony1060/ESL/internal/bytecode"
	"github.com/Antony1060/ESL/internal/compiler"
	"github.com/Antony1060/ESL/internal/config"
	"github.com/Antony1060/ESL/internal/gc"
	"github.com/Antony1060/ESL/internal/natives"
	"github.com/Antony1060/ESL/internal/replui"
	"github.com/Antony1060/ESL/internal/vm"
)

var execCmd = &cobra.Command{
	Use:   "exec <out.eslc>",
	Short: "Run a previously compiled program snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runExec,
}

func init() {
	execCmd.Flags().Bool("interactive", false, "show a live thread/heap status view while running")
}

func runExec(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}

	cfgPath, _ := cmd.Flags().GetString("config")
	tuning, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	heap := gc.NewHeapWithTuning(tuning.GC.InitialThresholdBytes, tuning.GC.GrowthFactor)

	program, mainClosure, err := bytecode.UnmarshalProgram(data, heap)
	if err != nil {
		return fmt.Errorf("decode %s: %w", args[0], err)
	}

	globals := make([]compiler.Global, len(program.Globals))
	for i, v := range program.Globals {
		globals[i] = compiler.Global{Value: v, Defined: true}
	}
	result := compiler.Result{Code: program.Code, Main: mainClosure, Globals: globals}

	machine := vm.NewWithTuning(heap, natives.DefaultTable(), result, tuning)

	interactive, _ := cmd.Flags().GetBool("interactive")
	errCol := errorColor(cmd)

	var runErr error
	if interactive {
		_, runErr = replui.Run(machine, machine.Run)
	} else {
		_, runErr = machine.Run()
	}
	if runErr != nil {
		if vmErr, ok := runErr.(*vm.VMError); ok {
			fmt.Fprintln(os.Stderr, errCol("%s", vmErr.PrintTrace()))
		} else {
			fmt.Fprintln(os.Stderr, errCol("%s", runErr.Error()))
		}
		os.Exit(1)
	}
	return nil
}
