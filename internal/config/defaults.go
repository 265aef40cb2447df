package config

const (
	DefaultHost        = "0.0.0.0"
	DefaultPort        = 8000
	DefaultEnvironment = "development"
	DefaultAPIPrefix   = "/api/v1"
	DefaultLogLevel    = "info"

	DefaultRateLimitPerMinute = 60

	DefaultBackend          = "postgres"
	DefaultBigQueryLocation = "US"

	DefaultAnthropicModel = "claude-sonnet-4-6"

	DefaultAmbiguityMargin        = 0.20
	DefaultMaxClarificationRounds = 3
	DefaultMaxInteractions        = 20
	DefaultHistoryWindow          = 10
	DefaultMaxRegenerations       = 2
	DefaultCompletionRetries      = 2
	DefaultCompletionTimeoutSec   = 60
	DefaultExecutionTimeoutSec    = 60
	DefaultPageSize               = 50
	DefaultMaxWorkers             = 8

	DefaultMaxQuestionLength = 2000
)

var DefaultCORSOrigins = []string{
	"http://localhost:3000",
	"http://localhost:8080",
}

// DefaultUnambiguousShapes names the question shapes the resolver treats as
// inherently unambiguous even though they imply multi-step SQL.
var DefaultUnambiguousShapes = []string{
	"percentage_of_total",
	"relative_to_average",
	"versus_comparison",
}
