package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/swcache"
	"github.com/unkn0wn-root/swcache/internal/config"
)

type namespaceDump struct {
	Name string   `json:"name"`
	Keys []string `json:"keys"`
}

func newInspectCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "inspect [namespace...]",
		Short: "List cache namespaces and their request keys",
		Long: `List the namespaces in the configured store and the request keys in each.

Only shared stores (redis) outlive the serving process; the in-process
providers always come up empty.`,
		Example: `  swcache inspect -c swcache.yaml
  swcache inspect -c swcache.yaml dovini-cache-v1 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			st, err := config.OpenStorage(ctx, cfg.Storage, nil, nil)
			if err != nil {
				return err
			}
			defer st.Close(ctx)

			dump, err := collect(cmd, st, args)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(dump)
			}
			return printDump(cmd.OutOrStdout(), dump)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func collect(cmd *cobra.Command, st swcache.CacheStorage, only []string) ([]namespaceDump, error) {
	ctx := cmd.Context()
	names := only
	if len(names) == 0 {
		var err error
		if names, err = st.ListNamespaces(ctx); err != nil {
			return nil, fmt.Errorf("list namespaces: %w", err)
		}
	}
	out := make([]namespaceDump, 0, len(names))
	for _, n := range names {
		keys, err := st.Keys(ctx, n)
		if err != nil {
			return nil, fmt.Errorf("keys %s: %w", n, err)
		}
		out = append(out, namespaceDump{Name: n, Keys: keys})
	}
	return out, nil
}

func printDump(w io.Writer, dump []namespaceDump) error {
	if len(dump) == 0 {
		_, err := fmt.Fprintln(w, "no namespaces")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAMESPACE\tENTRIES\tKEY")
	for _, d := range dump {
		if len(d.Keys) == 0 {
			fmt.Fprintf(tw, "%s\t0\t-\n", d.Name)
			continue
		}
		for i, k := range d.Keys {
			if i == 0 {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", d.Name, len(d.Keys), k)
				continue
			}
			fmt.Fprintf(tw, "\t\t%s\n", k)
		}
	}
	return tw.Flush()
}
