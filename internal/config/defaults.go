package config

// DefaultLogLevel is the default log level.
const DefaultLogLevel = "info"

// DefaultConfigFilename is the name of the config file.
const DefaultConfigFilename = "resolvr.toml"

// DefaultCacheSize is the default number of memoized resolutions.
const DefaultCacheSize = 1024

// DefaultTracingExporter is the default tracing exporter type.
const DefaultTracingExporter = "otlp-grpc"

// DefaultTracingEndpoint is the default OTLP collector endpoint.
const DefaultTracingEndpoint = "localhost:4317"

// DefaultTracingServiceName is the default service name for traces.
const DefaultTracingServiceName = "resolvr"

// DefaultTracingSampleRate is the default sampling rate (1.0 = 100%).
const DefaultTracingSampleRate = 1.0

// ValidLogLevels lists the allowed log level values.
var ValidLogLevels = []string{"trace", "debug", "info", "warn", "error", "fatal"}

// ValidExporters lists the allowed tracing exporters.
var ValidExporters = []string{"stdout", "otlp-grpc", "otlp-http"}

// ValidCases lists the allowed format case transforms.
var ValidCases = []string{"", "upper", "lower"}

// DefaultConfig returns a Config populated with all default values: a root
// scope mapping style names to formats, and a docs scope nested under it.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Pretty: false,
		},
		Engine: EngineConfig{
			PassModifiedRequest: false,
		},
		Cache: CacheConfig{
			Enabled: true,
			Size:    DefaultCacheSize,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Exporter:    DefaultTracingExporter,
			Endpoint:    DefaultTracingEndpoint,
			ServiceName: DefaultTracingServiceName,
			SampleRate:  DefaultTracingSampleRate,
			Insecure:    false,
		},
		Formats: map[string]FormatConfig{
			"shout": {Suffix: "!", Case: "upper"},
		},
		Scopes: []ScopeConfig{
			{
				Name: "root",
				Middleware: []MiddlewareConfig{
					{Name: "match", Params: map[string]any{"request": "bold", "format": "bold"}},
					{Name: "match", Params: map[string]any{"request": "italic", "format": "italic"}},
					{Name: "lookup"},
					{Name: "default", Params: map[string]any{"format": "plain"}},
				},
			},
			{
				Name:   "docs",
				Parent: "root",
				Tags:   []string{"docs"},
				Middleware: []MiddlewareConfig{
					{Name: "prefix", Params: map[string]any{"prefix": "code:", "format": "code"}},
					{Name: "match", Params: map[string]any{"request": "emphasis", "format": "italic"}},
					{Name: "tag", Params: map[string]any{"request": "note"}},
				},
			},
		},
	}
}
