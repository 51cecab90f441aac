package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.bug.st/serial"

	"GroundLink/internal/models"
)

var linksCmd = &cobra.Command{
	Use:   "links",
	Short: "List configured links",
	Long: `List the links of the configuration file with their URIs.

For serial links the device is looked up among the serial ports present
on this machine.`,
	RunE: runLinks,
}

func init() {
	rootCmd.AddCommand(linksCmd)
}

func runLinks(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ports, err := serial.GetPortsList()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list serial ports: %v\n", err)
	}
	present := make(map[string]bool, len(ports))
	for _, p := range ports {
		present[p] = true
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tURI\tVERSION\tAUTOCONNECT\tDEVICE")
	for _, l := range cfg.Links {
		desc, err := l.LinkDescription()
		if err != nil {
			return err
		}
		device := "-"
		if desc.Protocol.Kind == models.LinkSerial {
			device = "missing"
			if present[desc.Protocol.Device] {
				device = "present"
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n", l.ID, l.Name, l.URI, l.Version, l.Autoconnect, device)
	}
	return w.Flush()
}
