package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Paths      PathsConfig      `mapstructure:"paths"`
	Runtime    RuntimeConfig    `mapstructure:"runtime"`
	Server     ServerConfig     `mapstructure:"server"`
	TTS        TTSConfig        `mapstructure:"tts"`
	Phonemizer PhonemizerConfig `mapstructure:"phonemizer"`
	LogLevel   string           `mapstructure:"log_level"`
	Log        LogConfig        `mapstructure:"log"`
}

type PathsConfig struct {
	ModelPath  string `mapstructure:"model_path"`
	VoicesPath string `mapstructure:"voices_path"`
}

type RuntimeConfig struct {
	ORTLibraryPath string `mapstructure:"ort_library_path"`
	ORTVersion     string `mapstructure:"ort_version"`
	ORTAPIVersion  int    `mapstructure:"ort_api_version"`
}

type ServerConfig struct {
	ListenAddr      string `mapstructure:"listen_addr"`
	MaxTextBytes    int    `mapstructure:"max_text_bytes"`
	Workers         int    `mapstructure:"workers"`
	RequestTimeout  int    `mapstructure:"request_timeout"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"`
}

type TTSConfig struct {
	Voice         string  `mapstructure:"voice"`
	Speed         float64 `mapstructure:"speed"`
	SampleRate    int     `mapstructure:"sample_rate"`
	MaxChunkChars int     `mapstructure:"max_chunk_chars"`
}

type PhonemizerConfig struct {
	Backend    string `mapstructure:"backend"`
	ESpeakPath string `mapstructure:"espeak_path"`
	Language   string `mapstructure:"language"`
}

type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		Paths: PathsConfig{
			ModelPath:  "model/kitten_tts_nano_v0_1.onnx",
			VoicesPath: "model/voices.json",
		},
		Runtime: RuntimeConfig{
			ORTLibraryPath: "",
			ORTVersion:     "",
			ORTAPIVersion:  23,
		},
		Server: ServerConfig{
			ListenAddr:      ":8080",
			MaxTextBytes:    4096,
			Workers:         1,
			RequestTimeout:  60,
			ShutdownTimeout: 30,
		},
		TTS: TTSConfig{
			Voice:         "",
			Speed:         1.0,
			SampleRate:    24000,
			MaxChunkChars: 300,
		},
		Phonemizer: PhonemizerConfig{
			Backend:    PhonemizerESpeak,
			ESpeakPath: "espeak-ng",
			Language:   "en-us",
		},
		LogLevel: "info",
		Log: LogConfig{
			File:       "",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("paths-model-path", defaults.Paths.ModelPath, "Path to ONNX model")
	fs.String("paths-voices-path", defaults.Paths.VoicesPath, "Path to voices.json embedding table")
	fs.String("runtime-ort-library-path", defaults.Runtime.ORTLibraryPath, "Path to ONNX Runtime shared library")
	fs.String("ort-lib", defaults.Runtime.ORTLibraryPath, "Path to ONNX Runtime shared library (alias for --runtime-ort-library-path)")
	fs.String("runtime-ort-version", defaults.Runtime.ORTVersion, "Expected ONNX Runtime version")
	fs.Int("runtime-ort-api-version", defaults.Runtime.ORTAPIVersion, "ONNX Runtime C API version")
	fs.String("server-listen-addr", defaults.Server.ListenAddr, "HTTP listen address")
	fs.Int("server-max-text-bytes", defaults.Server.MaxTextBytes, "Maximum request text size in bytes")
	fs.Int("server-workers", defaults.Server.Workers, "Maximum concurrent synthesis requests")
	fs.Int("server-request-timeout", defaults.Server.RequestTimeout, "Per-request synthesis timeout in seconds")
	fs.Int("server-shutdown-timeout", defaults.Server.ShutdownTimeout, "Graceful shutdown timeout in seconds")
	fs.String("tts-voice", defaults.TTS.Voice, "Default voice name from the voices file")
	fs.Float64("tts-speed", defaults.TTS.Speed, "Default speaking speed")
	fs.Int("tts-sample-rate", defaults.TTS.SampleRate, "Output WAV sample rate in Hz")
	fs.Int("tts-max-chunk-chars", defaults.TTS.MaxChunkChars, "Maximum characters per chunk in streaming mode")
	fs.String("phonemizer-backend", defaults.Phonemizer.Backend, "Phonemizer backend (espeak|rules)")
	fs.String("phonemizer-espeak-path", defaults.Phonemizer.ESpeakPath, "Path to espeak-ng executable")
	fs.String("phonemizer-language", defaults.Phonemizer.Language, "espeak-ng voice/language")
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
	fs.String("log-file", defaults.Log.File, "Optional rotating log file")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := v.BindPFlags(opts.Cmd.Flags()); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}
	registerAliases(v)

	v.SetEnvPrefix("KITTENTTS")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	if err := v.BindEnv("runtime.ort_library_path", "KITTENTTS_ORT_LIB", "ORT_LIBRARY_PATH"); err != nil {
		return Config{}, fmt.Errorf("bind ort env vars: %w", err)
	}
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("kittentts")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	backend, err := NormalizePhonemizerBackend(cfg.Phonemizer.Backend)
	if err != nil {
		return Config{}, err
	}
	cfg.Phonemizer.Backend = backend

	return cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("paths.model_path", c.Paths.ModelPath)
	v.SetDefault("paths.voices_path", c.Paths.VoicesPath)
	v.SetDefault("runtime.ort_library_path", c.Runtime.ORTLibraryPath)
	v.SetDefault("runtime.ort_version", c.Runtime.ORTVersion)
	v.SetDefault("runtime.ort_api_version", c.Runtime.ORTAPIVersion)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.max_text_bytes", c.Server.MaxTextBytes)
	v.SetDefault("server.workers", c.Server.Workers)
	v.SetDefault("server.request_timeout", c.Server.RequestTimeout)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
	v.SetDefault("tts.voice", c.TTS.Voice)
	v.SetDefault("tts.speed", c.TTS.Speed)
	v.SetDefault("tts.sample_rate", c.TTS.SampleRate)
	v.SetDefault("tts.max_chunk_chars", c.TTS.MaxChunkChars)
	v.SetDefault("phonemizer.backend", c.Phonemizer.Backend)
	v.SetDefault("phonemizer.espeak_path", c.Phonemizer.ESpeakPath)
	v.SetDefault("phonemizer.language", c.Phonemizer.Language)
	v.SetDefault("log_level", c.LogLevel)
	v.SetDefault("log.file", c.Log.File)
	v.SetDefault("log.max_size_mb", c.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", c.Log.MaxBackups)
	v.SetDefault("log.max_age_days", c.Log.MaxAgeDays)
}

func registerAliases(v *viper.Viper) {
	v.RegisterAlias("paths.model_path", "paths-model-path")
	v.RegisterAlias("paths.voices_path", "paths-voices-path")
	v.RegisterAlias("runtime.ort_library_path", "runtime-ort-library-path")
	v.RegisterAlias("runtime.ort_library_path", "ort-lib")
	v.RegisterAlias("runtime.ort_version", "runtime-ort-version")
	v.RegisterAlias("runtime.ort_api_version", "runtime-ort-api-version")
	v.RegisterAlias("server.listen_addr", "server-listen-addr")
	v.RegisterAlias("server.max_text_bytes", "server-max-text-bytes")
	v.RegisterAlias("server.workers", "server-workers")
	v.RegisterAlias("server.request_timeout", "server-request-timeout")
	v.RegisterAlias("server.shutdown_timeout", "server-shutdown-timeout")
	v.RegisterAlias("tts.voice", "tts-voice")
	v.RegisterAlias("tts.speed", "tts-speed")
	v.RegisterAlias("tts.sample_rate", "tts-sample-rate")
	v.RegisterAlias("tts.max_chunk_chars", "tts-max-chunk-chars")
	v.RegisterAlias("phonemizer.backend", "phonemizer-backend")
	v.RegisterAlias("phonemizer.espeak_path", "phonemizer-espeak-path")
	v.RegisterAlias("phonemizer.language", "phonemizer-language")
	v.RegisterAlias("log_level", "log-level")
	v.RegisterAlias("log.file", "log-file")
}
