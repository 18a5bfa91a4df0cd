package config

const (
	defaultConfigPath             = "~/.config/zapvoice/config.toml"
	defaultDataDir                = "~/.local/share/zapvoice"
	defaultLogDir                 = "~/.local/share/zapvoice/logs"
	defaultStaticDir              = "~/.local/share/zapvoice/static"
	defaultBind                   = "127.0.0.1:3000"
	defaultRateLimitRPS           = 1.0
	defaultRateLimitBurst         = 5
	defaultMinSatoshi             = 21
	defaultMaxTextLength          = 200
	defaultSettlementPollInterval = 5
	defaultSettlementTimeout      = 3600
	defaultQueryTimeout           = 10
	defaultNotifyAudioURL         = "/static/notification.mp3"
	defaultQueueCheckInterval     = 3000
	defaultDisplayDelay           = 2000
	defaultHideDelay              = 5000
	defaultLookbackSeconds        = 36000
	defaultStepTimeout            = 60
	defaultPlayerCommand          = "ffplay"
	defaultTTSBaseURL             = "http://127.0.0.1:8000"
	defaultTTSVoice               = "en-US-AriaNeural"
	defaultTTSFormat              = "audio-24khz-48kbitrate-mono-mp3"
	defaultTTSVolume              = 100
	defaultTTSTimeoutSeconds      = 30
	defaultAlbyBaseURL            = "https://api.getalby.com"
	defaultAlbyTimeoutSeconds     = 10
	defaultNtfyRequestTimeout     = 10
	defaultLogFormat              = "auto"
	defaultLogLevel               = "info"
)

var defaultRelays = []string{
	"wss://relay.damus.io",
	"wss://nos.lol",
	"wss://relay.snort.social",
	"wss://nostr.wine",
	"wss://wot.nostr.net",
	"wss://relay.nostr.net",
}

var defaultPlayerArgs = []string{"-nodisp", "-autoexit", "-loglevel", "quiet"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:   defaultDataDir,
			LogDir:    defaultLogDir,
			StaticDir: defaultStaticDir,
		},
		Server: Server{
			Bind:           defaultBind,
			RateLimitRPS:   defaultRateLimitRPS,
			RateLimitBurst: defaultRateLimitBurst,
		},
		Pledge: Pledge{
			MinSatoshi:             defaultMinSatoshi,
			MaxTextLength:          defaultMaxTextLength,
			SettlementPollInterval: defaultSettlementPollInterval,
			SettlementTimeout:      defaultSettlementTimeout,
		},
		Nostr: Nostr{
			Relays:       append([]string(nil), defaultRelays...),
			QueryTimeout: defaultQueryTimeout,
		},
		Widget: Widget{
			NotifyAudioURL:     defaultNotifyAudioURL,
			QueueCheckInterval: defaultQueueCheckInterval,
			DisplayDelay:       defaultDisplayDelay,
			HideDelay:          defaultHideDelay,
			LookbackSeconds:    defaultLookbackSeconds,
			StepTimeout:        defaultStepTimeout,
			PlayerCommand:      defaultPlayerCommand,
			PlayerArgs:         append([]string(nil), defaultPlayerArgs...),
		},
		TTS: TTS{
			BaseURL:        defaultTTSBaseURL,
			Voice:          defaultTTSVoice,
			Format:         defaultTTSFormat,
			Volume:         defaultTTSVolume,
			TimeoutSeconds: defaultTTSTimeoutSeconds,
		},
		Alby: Alby{
			BaseURL:        defaultAlbyBaseURL,
			TimeoutSeconds: defaultAlbyTimeoutSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyRequestTimeout,
			PledgeSettled:  true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Metrics: Metrics{
			Enabled: true,
		},
	}
}
