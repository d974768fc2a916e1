package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shivanandmn/wingman/agent/declarative"
)

func newValidateCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load a definitions directory and report every problem found",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			sources, err := declarative.LoadDir(dir)
			if err != nil {
				return err
			}
			snap, err := declarative.Load(sources...)
			if err != nil {
				fmt.Fprintf(out, "%s: invalid\n", dir)
				for _, e := range unwrapJoined(err) {
					fmt.Fprintf(out, "  - %v\n", e)
				}
				return errors.New("definitions are invalid")
			}
			fmt.Fprintf(out, "%s: ok (%d agents, %d tasks, %d crews, checksum %s)\n",
				dir, len(snap.Agents()), len(snap.Tasks()), len(snap.CrewIDs()), snap.Checksum()[:12])
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "definitions", "d", "configs", "Definitions directory")
	return cmd
}

// unwrapJoined flattens errors.Join trees, including ones wrapped in a
// types.Error, into their leaves.
func unwrapJoined(err error) []error {
	if multi, ok := err.(interface{ Unwrap() []error }); ok {
		var out []error
		for _, e := range multi.Unwrap() {
			out = append(out, unwrapJoined(e)...)
		}
		return out
	}
	if inner := errors.Unwrap(err); inner != nil {
		if _, ok := inner.(interface{ Unwrap() []error }); ok {
			return unwrapJoined(inner)
		}
	}
	return []error{err}
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of definition files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := declarative.Schema()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}
}
