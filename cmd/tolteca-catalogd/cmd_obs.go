package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/toltec-astro/tolteca-catalog/internal/obsquery"
)

var (
	obsMaster          string
	obsRaiseOnMultiple bool
	obsRaiseOnEmpty    bool
	obsLatestMaster    string
	obsLatestIface     string
)

var obsCmd = &cobra.Command{
	Use:   "obs",
	Short: "Query raw observation sources by obs-spec",
}

var obsGetCmd = &cobra.Command{
	Use:   "get [spec]",
	Short: "Resolve an obs-spec string to its matching source rows",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		spec := ""
		if len(args) == 1 {
			spec = args[0]
		}
		q := newObsQuery()
		filter := obsquery.Filter{RaiseOnMultiple: obsRaiseOnMultiple, RaiseOnEmpty: obsRaiseOnEmpty}
		if obsMaster != "" {
			filter.Master, filter.HasMaster = obsMaster, true
		}
		rows, err := q.GetRawObsInfoTable(cmd.Context(), spec, filter)
		if err != nil {
			return err
		}
		printSourceInfoTable(rows)
		return nil
	},
}

var obsLatestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Resolve the most recent observation matching master/interface",
	RunE: func(cmd *cobra.Command, args []string) error {
		q := newObsQuery()
		rows, err := q.GetRawObsLatest(cmd.Context(), obsLatestMaster, obsLatestIface)
		if err != nil {
			return err
		}
		printSourceInfoTable(rows)
		return nil
	},
}

func newObsQuery() *obsquery.Query {
	return obsquery.NewQuery(store,
		obsquery.WithLocationLabel(cfg.LocationLabel),
		obsquery.WithSliceBounds(cfg.SubobsnumSliceBound, cfg.ScannumSliceBound))
}

func printSourceInfoTable(rows []obsquery.SourceInfo) {
	fmt.Printf("%-6s %-10s %-6s %-6s %-6s %-10s %s\n", "master", "interface", "obsnum", "subobs", "scan", "uid_obs", "source")
	for _, r := range rows {
		fmt.Printf("%-6s %-10s %-6d %-6d %-6d %-10s %s\n",
			r.Master, r.Interface, r.Obsnum, r.Subobsnum, r.Scannum, r.UIDObs, r.Source)
	}
}

func init() {
	obsGetCmd.Flags().StringVar(&obsMaster, "master", "", "filter by observation master")
	obsGetCmd.Flags().BoolVar(&obsRaiseOnMultiple, "raise-on-multiple", false, "fail if more than one source matches")
	obsGetCmd.Flags().BoolVar(&obsRaiseOnEmpty, "raise-on-empty", false, "fail if no source matches")

	obsLatestCmd.Flags().StringVar(&obsLatestMaster, "master", "", "filter by observation master")
	obsLatestCmd.Flags().StringVar(&obsLatestIface, "interface", "", "filter by ROACH interface")

	obsCmd.AddCommand(obsGetCmd, obsLatestCmd)
}
