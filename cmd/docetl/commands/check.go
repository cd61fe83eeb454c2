package commands

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/linxule/docetl/internal/config"
)

// ErrCheckFailed is returned when the config syntax check rejects the file.
var ErrCheckFailed = errors.New("config check failed")

// NewCheckCommand creates the check command: run the eager config syntax
// check and report the operation's shape without touching any dataset.
func NewCheckCommand() *cobra.Command {
	var noColor bool

	cmd := &cobra.Command{
		Use:   "check <config.yaml>",
		Short: "Validate an operation config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if noColor {
				color.NoColor = true //nolint:reassign // intentional override of library global
			}

			return checkConfig(args[0])
		},
	}

	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")

	return cmd
}

func checkConfig(path string) error {
	file, err := config.Load(path)
	if err != nil {
		color.New(color.FgRed).Fprintf(os.Stdout, "Config check failed (%s)\n", path)
		color.New(color.FgRed).Fprintf(os.Stdout, "  - %v\n", err)

		return ErrCheckFailed
	}

	checkErr := file.Operation.Check()
	if checkErr != nil {
		color.New(color.FgRed).Fprintf(os.Stdout, "Config check failed (%s)\n", path)
		color.New(color.FgRed).Fprintf(os.Stdout, "  - %v\n", checkErr)

		return ErrCheckFailed
	}

	color.New(color.FgGreen).Fprintf(os.Stdout, "Config is valid (%s)\n", path)
	printShape(&file.Operation)

	return nil
}

// printShape summarizes the operation the way it will actually execute, so a
// surprising strategy shows up here instead of mid-run.
func printShape(op *config.Operation) {
	fmt.Fprintf(os.Stdout, "  Type:     %s\n", op.Type)

	if op.Type == config.TypeReduce {
		fmt.Fprintf(os.Stdout, "  Key:      %s\n", op.ReduceKey)
		fmt.Fprintf(os.Stdout, "  Strategy: %s\n", strategyName(op))
	}

	fields := make([]string, 0, len(op.Output.Schema))
	for field := range op.Output.Schema {
		fields = append(fields, field)
	}

	sort.Strings(fields)

	fmt.Fprintf(os.Stdout, "  Output:   %d field(s)\n", len(fields))

	for _, field := range fields {
		color.New(color.FgCyan).Fprintf(os.Stdout, "    - %s: %s\n", field, op.Output.Schema[field])
	}
}

func strategyName(op *config.Operation) string {
	switch {
	case op.MergePrompt != "":
		return "parallel fold-merge"
	case op.FoldPrompt != "":
		return "incremental fold"
	default:
		return "batch"
	}
}
