package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/voxshift/internal/app"
)

var listDevicesCmd = &cobra.Command{
	Use:   "list-devices",
	Short: "List audio devices",
	Long: `List the capture and playback devices of the configured audio backend.

Use the index column with --input-device / --output-device, the
input_device / output_device options of providers.audio, or the
INPUT_DEVICE_INDEX / OUTPUT_DEVICE_INDEX environment variables.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		lc, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		backend, err := newRegistry().CreateAudio(lc.cfg.Providers.Audio)
		if err != nil {
			return err
		}
		if backend.Devices == nil {
			return fmt.Errorf("audio backend %q cannot list devices", lc.cfg.Providers.Audio.Name)
		}
		devices, err := backend.Devices.Devices()
		if err != nil {
			return err
		}
		if len(devices) == 0 {
			return errors.New("no audio devices found")
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderDevices(devices))
		return nil
	},
}

var listVoicesCmd = &cobra.Command{
	Use:   "list-voices",
	Short: "List synthesis voices",
	Long: `List the voices offered by the configured text-to-speech provider,
falling back to tts_fallbacks when the primary cannot answer.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		lc, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		pc, err := pipelineConfig(lc.cfg)
		if err != nil {
			return err
		}
		p, err := app.BuildTTS(newRegistry(), lc.cfg.Providers.TTS, lc.cfg.Providers.TTSFallbacks, pc)
		if err != nil {
			return err
		}
		defer app.CloseIfCloser(p)

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		voices, err := p.ListVoices(ctx)
		if err != nil {
			return fmt.Errorf("list voices: %w", err)
		}
		if len(voices) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("no voices available"))
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderVoices(voices))
		return nil
	},
}
