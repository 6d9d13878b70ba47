// Package devices implements the capture device listing command.
package devices

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jupiter-voice/jupiter/internal/audiocore"
	"github.com/jupiter-voice/jupiter/internal/audiocore/sources/malgo"
	"github.com/jupiter-voice/jupiter/internal/logger"
)

// Command creates the devices command.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio capture devices",
		Long:  "Print the index, name and capabilities of every capture device the audio backend can open.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return List(cmd.OutOrStdout(), OpenBackend)
		},
	}
}

// Lister enumerates capture devices.
type Lister interface {
	Devices() ([]audiocore.DeviceInfo, error)
}

// OpenBackend opens the miniaudio backend as a Lister.
func OpenBackend() (Lister, error) {
	b, err := malgo.NewBackend()
	if err != nil {
		return nil, err
	}
	return b, nil
}

// List prints the device table from the Lister that open returns. A backend
// that cannot be opened or enumerated is reported on w and is not an error.
func List(w io.Writer, open func() (Lister, error)) error {
	l, err := open()
	var devs []audiocore.DeviceInfo
	if err == nil {
		devs, err = l.Devices()
	}
	if err != nil {
		logger.Global().Module("cli").Warn("audio device listing failed", logger.Error(err))
		_, werr := fmt.Fprintf(w, "Unable to list audio capture devices: %v\n", err)
		return werr
	}
	return PrintDevices(w, devs)
}

// PrintDevices writes devs as an aligned table.
func PrintDevices(w io.Writer, devs []audiocore.DeviceInfo) error {
	if len(devs) == 0 {
		_, err := fmt.Fprintln(w, "No audio capture devices found")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tNAME\tCHANNELS\tRATE\tDEFAULT")
	for _, d := range devs {
		def := ""
		if d.IsDefault {
			def = "*"
		}
		rate := "-"
		if d.DefaultSampleRate > 0 {
			rate = fmt.Sprintf("%d Hz", d.DefaultSampleRate)
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n", d.Index, d.Name, d.Channels, rate, def)
	}
	return tw.Flush()
}
