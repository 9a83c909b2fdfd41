package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/LeonardoBeccarini/trackside_sim/internal/config"
	sensorSimulator "github.com/LeonardoBeccarini/trackside_sim/internal/sensor-simulator"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [target]",
		Short: "Play a scenario against a pin bank",
		Long: `Play a scenario against a pin bank until it completes, fails or is
interrupted.

The target is the gpio-sim chip number for the gpiosim sink, or the target
name used in MQTT topics for the mqtt sink. It may also come from the config
file or SIM_TARGET.

Examples:
  trackside-sim run 1
  trackside-sim run 1 --scenario straight-speedup --mode decay --min-wait 500ms
  trackside-sim run layout-a --sink mqtt --scenario quick-write --trigger http --http-addr :8080`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				cfg.Target = args[0]
			}
			if err := applyRunFlags(cmd, cfg); err != nil {
				return err
			}
			logger := cfg.Logger(cmd.ErrOrStderr())

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			sim, err := sensorSimulator.NewSensorSimulator(ctx, cfg, logger,
				sensorSimulator.WithVersion(version),
				sensorSimulator.WithStdio(cmd.InOrStdin(), cmd.OutOrStdout()),
			)
			if err != nil {
				return err
			}
			defer sim.Close()
			return sim.Start(ctx)
		},
	}

	cmd.Flags().String("sink", "", "Pin sink: gpiosim or mqtt")
	cmd.Flags().String("scenario", "", "Built-in scenario name or scenario file")
	cmd.Flags().Int("pins", 0, "Bank size (default: from the scenario)")
	cmd.Flags().String("gpiosim-root", "", "gpio-sim sysfs directory")
	cmd.Flags().String("mode", "", "Playback mode: fixed, decay or step (default: from the scenario)")
	cmd.Flags().Float64("ratio", 0, "Decay ratio per iteration, in (0,1)")
	cmd.Flags().Duration("min-wait", 0, "Floor for decayed waits (0 = none)")
	cmd.Flags().Int("iterations", 0, "Stop after this many cycles (0 = loop forever)")
	cmd.Flags().String("trigger", "", "Step trigger: stdin, http or mqtt")
	cmd.Flags().String("http-addr", "", "Serve the control API and /metrics on this address")
	cmd.Flags().String("grpc-addr", "", "Serve gRPC health on this address")
	cmd.Flags().Bool("influx", false, "Journal transitions to InfluxDB")
	return cmd
}

// applyRunFlags overrides cfg with the flags set on the command line.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	var errs []error
	str := func(name string, dst *string) {
		if f.Changed(name) {
			v, err := f.GetString(name)
			errs = append(errs, err)
			*dst = v
		}
	}
	integer := func(name string, dst *int) {
		if f.Changed(name) {
			v, err := f.GetInt(name)
			errs = append(errs, err)
			*dst = v
		}
	}

	str("sink", &cfg.Sink)
	str("scenario", &cfg.Scenario)
	integer("pins", &cfg.Pins)
	str("gpiosim-root", &cfg.GPIOSim.Root)
	str("mode", &cfg.Playback.Mode)
	integer("iterations", &cfg.Playback.Iterations)
	str("trigger", &cfg.Trigger.Source)
	str("http-addr", &cfg.Control.HTTPAddr)
	str("grpc-addr", &cfg.Control.GRPCAddr)

	if f.Changed("ratio") {
		v, err := f.GetFloat64("ratio")
		errs = append(errs, err)
		cfg.Playback.DecayRatio = v
	}
	if f.Changed("min-wait") {
		v, err := f.GetDuration("min-wait")
		errs = append(errs, err)
		cfg.Playback.MinWait = v
	}
	if f.Changed("influx") {
		v, err := f.GetBool("influx")
		errs = append(errs, err)
		cfg.Influx.Enabled = v
	}
	return errors.Join(errs...)
}
