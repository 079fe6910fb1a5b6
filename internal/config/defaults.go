package config

const (
	defaultDataDir = "~/.local/share/courtside"
	defaultLogDir  = "~/.local/share/courtside/logs"

	defaultWorkerCount      = 4
	defaultWorkerBinary     = "courtside-worker"
	defaultStartupTimeout   = 10
	defaultAcquireTimeoutMS = 200
	defaultResponseTimeout  = 500
	defaultHealthIntervalMS = 5000
	defaultHealthTimeoutMS  = 250
	defaultFailureThreshold = 3
	defaultRestartBackoffMS = 1000
	defaultDrainTimeout     = 10
	defaultTargetLatencyMS  = 100

	defaultDriftWindow           = 10
	defaultMinSamples            = 5
	defaultCorrectionGain        = 0.35
	defaultCorrectionThresholdMS = 5.0
	defaultMaxDriftMS            = 50.0
	defaultTargetPrecisionMS     = 10.0
	defaultDriftRingCapacity     = 64

	defaultMinConfidence       = 0.6
	defaultPatternRingCapacity = 128
	defaultCorrelationWindowMS = 100

	defaultLogFormat   = "console"
	defaultLogLevel    = "info"
	defaultMetricsBind = "127.0.0.1:9370"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Pool: Pool{
			WorkerCount:      defaultWorkerCount,
			WorkerBinary:     defaultWorkerBinary,
			StartupTimeout:   defaultStartupTimeout,
			AcquireTimeoutMS: defaultAcquireTimeoutMS,
			ResponseTimeout:  defaultResponseTimeout,
			HealthIntervalMS: defaultHealthIntervalMS,
			HealthTimeoutMS:  defaultHealthTimeoutMS,
			FailureThreshold: defaultFailureThreshold,
			RestartBackoffMS: defaultRestartBackoffMS,
			DrainTimeout:     defaultDrainTimeout,
			TargetLatencyMS:  defaultTargetLatencyMS,
		},
		Timing: Timing{
			DriftWindow:           defaultDriftWindow,
			MinSamples:            defaultMinSamples,
			CorrectionGain:        defaultCorrectionGain,
			CorrectionThresholdMS: defaultCorrectionThresholdMS,
			MaxDriftMS:            defaultMaxDriftMS,
			TargetPrecisionMS:     defaultTargetPrecisionMS,
			RingCapacity:          defaultDriftRingCapacity,
		},
		Correlation: Correlation{
			MinConfidence:       defaultMinConfidence,
			PatternRingCapacity: defaultPatternRingCapacity,
			DefaultWindowMS:     defaultCorrelationWindowMS,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Metrics: Metrics{
			Bind: defaultMetricsBind,
		},
	}
}
