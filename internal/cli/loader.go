package cli

import (
	"errors"
	"fmt"

	"github.com/veneer-dev/veneer/internal/compiler"
	"github.com/veneer-dev/veneer/internal/table"
)

// loadTable reads a CUE rule-table file and compiles it into its immutable
// runtime form. Any load or compile failure is fatal; there is no partial
// table.
func loadTable(path string) (*table.Table, *compiler.Source, error) {
	src, err := compiler.Load(path)
	if err != nil {
		return nil, nil, err
	}
	tbl, err := table.Compile(src.Flags, src.Rules)
	if err != nil {
		return nil, nil, err
	}
	return tbl, src, nil
}

// reportTableErrors prints compile or validation failures in the configured
// format and returns the exit error the command should surface.
//
// Parse failures carry a single CUE position; validation failures come as a
// collected list with stable codes.
func reportTableErrors(formatter *OutputFormatter, err error) error {
	var verrs compiler.ValidationErrors
	if errors.As(err, &verrs) {
		if formatter.Format == "json" {
			cliErrors := make([]CLIError, len(verrs))
			for i, ve := range verrs {
				cliErrors[i] = CLIError{Code: ve.Code, Message: fmt.Sprintf("%s: %s", ve.Field, ve.Message)}
			}
			response := CLIResponse{
				Status: "error",
				Error:  &cliErrors[0],
				Data:   cliErrors,
			}
			if encodeErr := encodeJSON(formatter, response); encodeErr != nil {
				return encodeErr
			}
			return NewExitError(ExitFailure, fmt.Sprintf("table invalid with %d error(s)", len(verrs)))
		}

		fmt.Fprintln(formatter.Writer, "✗ Table invalid")
		fmt.Fprintln(formatter.Writer)
		for _, ve := range verrs {
			fmt.Fprintf(formatter.Writer, "  %s %s: %s\n", ve.Code, ve.Field, ve.Message)
		}
		return NewExitError(ExitFailure, fmt.Sprintf("table invalid with %d error(s)", len(verrs)))
	}

	var cerr *compiler.CompileError
	if errors.As(err, &cerr) {
		if formatter.Format == "json" {
			_ = formatter.Error("parse", cerr.Error(), nil)
			return NewExitError(ExitFailure, "table failed to parse")
		}
		if cerr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n", cerr.Pos.Filename(), cerr.Pos.Line(), cerr.Pos.Column())
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n", cerr.Field, cerr.Message)
		return NewExitError(ExitFailure, "table failed to parse")
	}

	// File-system problems and other unexpected failures are command errors.
	_ = formatter.Error("load", err.Error(), nil)
	return WrapExitError(ExitCommandError, "failed to load rule table", err)
}
