package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var formatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "Show which capture formats this machine supports",
	Long: `Probe the local ffmpeg for muxers and encoders and show which
catalog format recordings will use, and whether it needs conversion.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closeEngine := newService(cmd)
		defer closeEngine()

		report := svc.Formats()
		fmt.Printf("=== CAPTURE FORMATS ===\n")
		for i, f := range report.Formats {
			supported := "unsupported"
			if f.Supported {
				supported = "supported"
			}
			conversion := "native voice note"
			if f.RequiresConversion {
				conversion = "needs conversion"
			}
			fmt.Printf("%d. %-20s %-28s %s, %s\n", i+1, f.DisplayName, f.MimeType, supported, conversion)
		}

		fmt.Printf("\nselected: %s (%s)\n", report.Selected.DisplayName, report.Selected.MimeType)
		return nil
	},
}
