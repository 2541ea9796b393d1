package main

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/MrWong99/voxshift/internal/pipeline"
	"github.com/MrWong99/voxshift/pkg/audio"
	"github.com/MrWong99/voxshift/pkg/provider/tts"
)

var (
	accent = lipgloss.Color("#00ff9f")
	dim    = lipgloss.Color("#6e7681")

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(accent).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	dimStyle    = lipgloss.NewStyle().Foreground(dim)
	labelStyle  = lipgloss.NewStyle().Bold(true).Foreground(accent)
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(accent)).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...)
}

// renderDevices formats devices as a table. Host defaults are marked with
// "in" and "out" in the last column.
func renderDevices(devices []audio.Device) string {
	t := newTable("#", "Name", "Direction", "In", "Out", "Rate", "Default")
	for _, d := range devices {
		var def []string
		if d.IsDefaultInput {
			def = append(def, "in")
		}
		if d.IsDefaultOutput {
			def = append(def, "out")
		}
		t.Row(
			strconv.Itoa(d.Index),
			d.Name,
			d.Direction.String(),
			strconv.Itoa(d.InputChannels),
			strconv.Itoa(d.OutputChannels),
			fmt.Sprintf("%.0f", d.DefaultSampleRate),
			strings.Join(def, ","),
		)
	}
	return t.Render()
}

// renderVoices formats voices as a table, metadata keys sorted.
func renderVoices(voices []tts.VoiceProfile) string {
	t := newTable("ID", "Name", "Details")
	for _, v := range voices {
		keys := make([]string, 0, len(v.Metadata))
		for k := range v.Metadata {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		details := make([]string, 0, len(keys))
		for _, k := range keys {
			details = append(details, k+"="+v.Metadata[k])
		}
		t.Row(v.ID, v.Name, strings.Join(details, " "))
	}
	return t.Render()
}

// consoleObserver prints state changes and transcriptions for interactive
// runs.
type consoleObserver struct {
	w io.Writer
}

var _ pipeline.Observer = consoleObserver{}

func (c consoleObserver) OnStateChange(s pipeline.State) {
	fmt.Fprintln(c.w, dimStyle.Render("["+s.String()+"]"))
}

func (c consoleObserver) OnTranscription(text string) {
	fmt.Fprintln(c.w, labelStyle.Render("»")+" "+text)
}

func (c consoleObserver) OnError(err error) {
	fmt.Fprintln(c.w, dimStyle.Render("error: "+err.Error()))
}
