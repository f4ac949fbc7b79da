package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/thediveo/enumflag/v2"

	"github.com/flo-mic/vmdeck/internal/view"
)

type OutputFormat enumflag.Flag

const (
	OutputTable OutputFormat = iota
	OutputJSON
	OutputYAML
)

var OutputFormatIds = map[OutputFormat][]string{
	OutputTable: {"table"},
	OutputJSON:  {"json"},
	OutputYAML:  {"yaml", "yml"},
}

func addOutputFlag(cmd *cobra.Command) {
	var format OutputFormat
	cmd.Flags().VarP(enumflag.New(&format, "output", OutputFormatIds, enumflag.EnumCaseInsensitive),
		"output", "o", "output format: table, json or yaml")
}

// outputFormat reads the --output flag registered by addOutputFlag.
func outputFormat(cmd *cobra.Command) OutputFormat {
	f := cmd.Flags().Lookup("output")
	if f == nil {
		return OutputTable
	}
	for format, ids := range OutputFormatIds {
		for _, id := range ids {
			if id == f.Value.String() {
				return format
			}
		}
	}
	return OutputTable
}

func render(w io.Writer, format OutputFormat, rows []view.Row, color bool) error {
	switch format {
	case OutputJSON:
		return view.RenderJSON(w, rows)
	case OutputYAML:
		return view.RenderYAML(w, rows)
	case OutputTable:
		return view.RenderTable(w, rows, view.TableOptions{Color: color})
	default:
		return fmt.Errorf("unknown output format %d", format)
	}
}
