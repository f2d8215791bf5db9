package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/comalice/hsm"
	"github.com/comalice/hsm/internal/primitives"
	"github.com/comalice/hsm/internal/production"
	"github.com/comalice/hsm/lifecycle"
)

var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Print the compiled life cycle machine",
	Long:  `Compiles the service life cycle machine and prints it as a tree, a Graphviz DOT graph, JSON or YAML. The initial states are highlighted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		model, err := hsm.Compile(lifecycle.Definition())
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), format, model, model.InitialActive())
	},
}

func init() {
	rootCmd.AddCommand(describeCmd)
	describeCmd.Flags().StringP("format", "f", "tree", "Output format (tree, dot, json, yaml)")
}

func render(w io.Writer, format string, model *hsm.Model, active []primitives.NodeID) error {
	v := &production.DefaultVisualizer{}
	switch format {
	case "tree":
		_, err := io.WriteString(w, v.ExportTree(model, active))
		return err
	case "dot":
		_, err := io.WriteString(w, v.ExportDOT(model, active))
		return err
	case "json":
		data, err := v.ExportJSON(model, active)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case "yaml":
		data, err := v.ExportYAML(model, active)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
