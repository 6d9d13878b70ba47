package devices

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jupiter-voice/jupiter/internal/audiocore"
	"github.com/jupiter-voice/jupiter/internal/errors"
)

func TestPrintDevices(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	err := PrintDevices(&buf, []audiocore.DeviceInfo{
		{Index: 0, Name: "Built-in Microphone", Channels: 2, DefaultSampleRate: 48000, IsDefault: true},
		{Index: 2, Name: "USB Audio", Channels: 1},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "INDEX"))
	assert.Contains(t, lines[1], "Built-in Microphone")
	assert.Contains(t, lines[1], "48000 Hz")
	assert.True(t, strings.HasSuffix(lines[1], "*"))
	assert.Contains(t, lines[2], "USB Audio")
	assert.Contains(t, lines[2], "-")
}

func TestPrintDevicesEmpty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, PrintDevices(&buf, nil))
	assert.Equal(t, "No audio capture devices found\n", buf.String())
}

type fakeLister struct {
	devs []audiocore.DeviceInfo
	err  error
}

func (f fakeLister) Devices() ([]audiocore.DeviceInfo, error) {
	return f.devs, f.err
}

func TestListReportsFailuresWithoutError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		open func() (Lister, error)
		want string
	}{
		{
			name: "backend unavailable",
			open: func() (Lister, error) { return nil, errors.NewStd("no audio backend for platform") },
			want: "Unable to list audio capture devices: no audio backend for platform",
		},
		{
			name: "enumeration fails",
			open: func() (Lister, error) { return fakeLister{err: errors.NewStd("device busy")}, nil },
			want: "Unable to list audio capture devices: device busy",
		},
		{
			name: "no devices",
			open: func() (Lister, error) { return fakeLister{}, nil },
			want: "No audio capture devices found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			require.NoError(t, List(&buf, tt.open))
			assert.Contains(t, buf.String(), tt.want)
		})
	}
}

func TestListPrintsTable(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	open := func() (Lister, error) {
		return fakeLister{devs: []audiocore.DeviceInfo{{Index: 0, Name: "USB Mic", Channels: 1, IsDefault: true}}}, nil
	}
	require.NoError(t, List(&buf, open))
	assert.Contains(t, buf.String(), "USB Mic")
}
