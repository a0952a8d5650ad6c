package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newJobsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect job definitions",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List the loaded job definitions",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				return a.listJobs()
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Resolve the callback graph of every job",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				return a.validateJobs()
			},
		},
	)

	return cmd
}

func (a *app) listJobs() error {
	registry, err := a.registry()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tMETHOD\tURL\tSTATUS\tREQUIRED\tCALLBACKS")
	for _, name := range registry.Names() {
		def, err := registry.Get(name)
		if err != nil {
			return err
		}
		callbacks := make([]string, 0, 3)
		for _, cb := range def.Callbacks() {
			callbacks = append(callbacks, fmt.Sprintf("%s=%s", cb.Slot, cb.Name))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			def.Name,
			def.RequestMethod(),
			def.BaseURL(),
			def.SuccessStatus,
			dashIfEmpty(strings.Join(def.RequiredKeys, ",")),
			dashIfEmpty(strings.Join(callbacks, ",")),
		)
	}

	return w.Flush()
}

func (a *app) validateJobs() error {
	registry, err := a.registry()
	if err != nil {
		return err
	}

	failed := 0
	for _, name := range registry.Names() {
		def, err := registry.Get(name)
		if err != nil {
			return err
		}
		resolved, err := registry.Resolve(def)
		if err != nil {
			failed++
			fmt.Fprintf(a.out, "FAIL %s: %v\n", name, err)

			continue
		}
		fmt.Fprintf(a.out, "ok   %s (%d jobs)\n", name, resolved.Size())
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d jobs failed validation", failed, registry.Len())
	}

	return nil
}

func dashIfEmpty(s string) string {
	if s == "" {
		return "-"
	}

	return s
}
