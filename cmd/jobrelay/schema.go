package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/velmie/jobrelay/mysql"
)

func newSchemaCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the MySQL job message table DDL",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			ddl, err := mysql.Schema(a.v.GetString("table"))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(a.out, ddl)

			return err
		},
	}
}
