package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"mcu-image-pipeline/cmd/util"
	"mcu-image-pipeline/internal/algorithms"
	"mcu-image-pipeline/internal/core"
	"mcu-image-pipeline/internal/metrics"
	"mcu-image-pipeline/internal/transport"
)

// NewListCommand prints the configured stages, the workspace layout, the
// registered operations and the host's quality metrics.
func NewListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show stages, workspace layout, operations and metrics",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}

	flags := cmd.Flags()
	bindings := deviceFlags(flags)
	cmd.PreRun = func(cmd *cobra.Command, _ []string) {
		util.BindAll(cmd.Flags(), bindings)
	}

	return cmd
}

func runList(cmd *cobra.Command, _ []string) error {
	cfg, _, err := readConfig()
	if err != nil {
		return err
	}

	quiet := logrus.New()
	quiet.SetOutput(io.Discard)
	controller, err := core.NewController(cfg.Controller(), transport.NewLoopback(), quiet, nil)
	if err != nil {
		return fmt.Errorf("create controller: %w", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)

	fmt.Fprintln(w, "STAGE\tRECEIVE\tSTEPS\tTRANSMIT")
	for _, plan := range controller.Plans() {
		steps := make([]string, 0, len(plan.Steps))
		for _, step := range plan.Steps {
			steps = append(steps, fmt.Sprintf("%s(%s->%s)", step.Algorithm, step.Input, step.Output))
		}
		fmt.Fprintf(w, "%s\t%s %s\t%s\t%s\n", plan.Stage, plan.Receive, plan.Encoding(), strings.Join(steps, " "), plan.Transmit)
	}

	fmt.Fprintln(w, "\nSLOT\tENCODING\tBYTES")
	total := 0
	for _, slot := range controller.Layout() {
		fmt.Fprintf(w, "%s\t%s\t%d\n", slot.Name, slot.Encoding, slot.Capacity)
		total += slot.Capacity
	}
	fmt.Fprintf(w, "total\t\t%d\n", total)

	registry := algorithms.NewDefaultRegistry(nil)
	categories := algorithms.GetAlgorithmsByCategory()
	names := make([]string, 0, len(categories))
	for name := range categories {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w, "\nCATEGORY\tOPERATION\tPARAMETERS\tDESCRIPTION")
	for _, category := range names {
		for _, name := range categories[category] {
			alg, ok := registry.Get(name)
			if !ok {
				continue
			}
			var params []string
			for _, p := range alg.GetParameterInfo() {
				params = append(params, fmt.Sprintf("%s=%v [%v..%v]", p.Name, p.Default, p.Min, p.Max))
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", category, name, strings.Join(params, " "), alg.GetDescription())
		}
	}

	evaluator := metrics.NewEvaluator()
	info := evaluator.GetMetricInfo()
	fmt.Fprintln(w, "\nMETRIC\tRANGE\tBETTER\tDESCRIPTION")
	for _, name := range evaluator.Names() {
		m := info[name]
		better := "lower"
		if m.HigherBetter {
			better = "higher"
		}
		fmt.Fprintf(w, "%s\t%g..%g\t%s\t%s\n", name, m.Range[0], m.Range[1], better, m.Description)
	}

	return w.Flush()
}
