package cli

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/harun/zombinator/pkg/maps"
	"github.com/spf13/cobra"
)

var routePlan bool

var routeCmd = &cobra.Command{
	Use:   "route <origin> <destination>",
	Short: "Look up directions between two addresses",
	Long: `Geocode both addresses with Azure Maps and print the route.
By default the raw route response is printed; --plan prints the summary the
agent's route tool returns.`,
	Args: cobra.ExactArgs(2),
	RunE: runRoute,
}

func init() {
	routeCmd.Flags().BoolVar(&routePlan, "plan", false, "print the summarised route plan")
	rootCmd.AddCommand(routeCmd)
}

func runRoute(cmd *cobra.Command, args []string) error {
	a, cleanup, err := setup(cmd)
	defer cleanup()
	if err != nil {
		return err
	}

	client, err := maps.New(a.mapsConfig())
	if err != nil {
		return err
	}

	var out []byte
	if routePlan {
		plan, err := client.PlanRoute(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		out, err = json.MarshalIndent(plan, "", "  ")
		if err != nil {
			return err
		}
	} else {
		raw, err := client.Directions(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		var buf bytes.Buffer
		if err := json.Indent(&buf, raw, "", "  "); err != nil {
			out = raw
		} else {
			out = buf.Bytes()
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
