package config

// Default returns the built-in configuration. Simulator physics defaults
// approximate a 127-couple bismuth telluride module on a 60 W heating pad.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:   "~/.local/share/seebeck",
			LogDir:    "~/.local/share/seebeck/logs",
			ReportDir: "~/.local/share/seebeck/reports",
			APIBind:   "127.0.0.1:7575",
		},
		Instrument: Instrument{
			Driver:           "sim",
			SampleIntervalMS: 250,
			HeaterMaxWatts:   60,
			CoolerMaxWatts:   40,
			Sim: Sim{
				StepSeconds:      0.25,
				SeebeckVPerK:     0.051,
				InternalOhms:     2.4,
				ConductanceWPerK: 0.4,
				HotMassJPerK:     180,
				ColdMassJPerK:    220,
				AmbientC:         25,
				ConvectiveWPerK:  0.04,
				Emissivity:       0.9,
				SurfaceAreaM2:    0.0025,
				NoiseStddevC:     0,
				NoiseSeed:        1,
			},
		},
		Control: Control{
			HotSetpointC:      85,
			ColdSetpointC:     25,
			Hot:               PIDGains{Kp: 6.0, Ki: 0.25, Kd: 1.5},
			Cold:              PIDGains{Kp: 4.0, Ki: 0.20, Kd: 1.0},
			SettleBandC:       0.5,
			SettleWindowS:     30,
			StabilizeTimeoutS: 1800,
			TickMS:            250,
		},
		Sweep: Sweep{
			LoadOhms:        []float64{1.0, 1.6, 2.2, 2.4, 2.7, 3.3, 4.7, 6.8, 10.0},
			SamplesPerPoint: 20,
			SettleDelayS:    5,
			OpenHotStepsC:   []float64{45, 55, 65, 75, 85},
		},
		Analysis: Analysis{
			R2Threshold:       0.95,
			LossFractionLimit: 0.15,
			ConvectiveWPerK:   0.04,
			Emissivity:        0.9,
			SurfaceAreaM2:     0.0025,
		},
		Workflow: Workflow{
			QueuePollInterval:  2,
			ErrorRetryInterval: 5,
			HeartbeatInterval:  5,
			HeartbeatTimeout:   60,
		},
		Logging: Logging{
			Format: "console",
			Level:  "info",
		},
	}
}
