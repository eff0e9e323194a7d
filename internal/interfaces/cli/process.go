package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pillchecker/medlabel/internal/domain/medication"
	"github.com/pillchecker/medlabel/pkg/errors"
)

// NewProcessCmd creates the process command, which structures label text given
// as an argument, read from a file, or piped on stdin.
func NewProcessCmd() *cobra.Command {
	var inputFile string

	cmd := &cobra.Command{
		Use:   "process [text]",
		Short: "Structure medication-label text into a medication record",
		Long:  "Process runs the full structuring pipeline on OCR text from a medication\nlabel. The text comes from the positional argument, --file, or stdin.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(cmd, args, inputFile)
		},
	}

	cmd.Flags().StringVarP(&inputFile, "file", "f", "", "read label text from file (\"-\" for stdin)")

	return cmd
}

func runProcess(cmd *cobra.Command, args []string, inputFile string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}

	text, err := readInput(cmd, args, inputFile)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return errors.InvalidInput("no label text given; pass it as an argument, via --file, or on stdin")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cliCtx.Timeout)
	defer cancel()

	record := cliCtx.Service.Process(ctx, text)

	if strings.ToLower(cliCtx.OutputFormat) == "text" {
		printRecord(cmd, record)
		return nil
	}
	return PrintResult(cmd, record)
}

// readInput resolves the label text source: positional argument, file, or
// stdin when input is piped.
func readInput(cmd *cobra.Command, args []string, inputFile string) (string, error) {
	if len(args) == 1 && inputFile != "" {
		return "", errors.InvalidInput("pass the text either as an argument or via --file, not both")
	}
	if len(args) == 1 {
		return args[0], nil
	}
	if inputFile == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", errors.Wrap(err, errors.ErrCodeInternal, "failed to read stdin")
		}
		return string(data), nil
	}
	if inputFile != "" {
		data, err := os.ReadFile(inputFile)
		if err != nil {
			return "", errors.Wrap(err, errors.ErrCodeInvalidInput, fmt.Sprintf("failed to read input file %q", inputFile))
		}
		return string(data), nil
	}

	// No argument and no file: fall back to stdin so piping just works.
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "failed to read stdin")
	}
	return string(data), nil
}

// printRecord renders a medication record for human consumption.
func printRecord(cmd *cobra.Command, record *medication.StructuredMedication) {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "Title:              %s\n", orDash(record.Title))
	fmt.Fprintf(out, "Active ingredients: %s\n", orDash(record.ActiveIngredients))
	fmt.Fprintf(out, "Dosage:             %s\n", orDash(record.Dosage))

	if len(record.PrescriptionDetails) == 0 {
		fmt.Fprintln(out, "Prescription:       -")
		return
	}
	fmt.Fprintln(out, "Prescription:")
	for _, key := range []string{
		medication.DetailKeyFrequency,
		medication.DetailKeyTiming,
		medication.DetailKeyExpiryDate,
		medication.DetailKeyRelatedConditions,
		medication.DetailKeyCUIIdentifiers,
	} {
		value, ok := record.PrescriptionDetails[key]
		if !ok {
			continue
		}
		switch v := value.(type) {
		case []string:
			fmt.Fprintf(out, "  %-20s%s\n", key+":", strings.Join(v, ", "))
		default:
			fmt.Fprintf(out, "  %-20s%v\n", key+":", v)
		}
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
