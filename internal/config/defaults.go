package config

const (
	defaultConfigPath = "~/.config/vets/config.toml"

	defaultAddr     = ":8000"
	defaultTickRate = 60.0
	defaultLockPath = "~/.local/state/vets/vets.lock"
	defaultWSRate   = 10

	defaultOCREndpoint       = "https://vision.googleapis.com/v1/images:annotate"
	defaultTranslateEndpoint = "https://api-free.deepl.com/v2/translate"
	defaultTargetLang        = "EN"
	defaultServiceTimeout    = 15
	defaultServiceRetries    = 2
	defaultTranslateRate     = 5.0
	defaultTranslateBurst    = 5

	defaultQueueOrder     = "fifo"
	defaultRunTimeout     = 60
	defaultWorkers        = 2
	defaultDedupeDistance = 0

	defaultFont     = "Noto Sans CJK JP"
	defaultFontSize = 18

	defaultHistoryPath       = "~/.local/share/vets/history.db"
	defaultHistoryMaxEntries = 500
	defaultHistoryFlushMS    = 500
	defaultHistoryBatchSize  = 16
)

// Default returns a Config populated with built-in defaults.
func Default() Config {
	return Config{
		Server: Server{
			Addr:        defaultAddr,
			TickRate:    defaultTickRate,
			LockPath:    defaultLockPath,
			WSRateLimit: defaultWSRate,
		},
		OCR: OCR{
			Endpoint:       defaultOCREndpoint,
			TimeoutSeconds: defaultServiceTimeout,
			MaxRetries:     defaultServiceRetries,
		},
		Translation: Translation{
			Endpoint:       defaultTranslateEndpoint,
			TargetLang:     defaultTargetLang,
			TimeoutSeconds: defaultServiceTimeout,
			MaxRetries:     defaultServiceRetries,
			RatePerSecond:  defaultTranslateRate,
			Burst:          defaultTranslateBurst,
		},
		Pipeline: Pipeline{
			QueueOrder:        defaultQueueOrder,
			FilterNonTarget:   true,
			RunTimeoutSeconds: defaultRunTimeout,
			Workers:           defaultWorkers,
			Dedupe:            false,
			DedupeDistance:    defaultDedupeDistance,
		},
		Presentation: Presentation{
			Font:       defaultFont,
			FontSize:   defaultFontSize,
			ShowRomaji: true,
		},
		History: History{
			Enabled:         true,
			Path:            defaultHistoryPath,
			MaxEntries:      defaultHistoryMaxEntries,
			FlushIntervalMS: defaultHistoryFlushMS,
			BatchSize:       defaultHistoryBatchSize,
		},
		Logging: Logging{
			Level:  "info",
			Format: "auto",
		},
	}
}
