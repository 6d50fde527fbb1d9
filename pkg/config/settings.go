package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	defaultMaxPayloadSize  = 256_000
	defaultDispatchWorkers = 16
	defaultWorkDelay       = time.Second
)

// Settings holds the environment configuration shared by the lambdas and the CLI.
type Settings struct {
	TableName        string
	TopicArn         string
	IncidentQueueURL string
	WorkFunctionName string
	WorkDelay        time.Duration
	MaxPayloadSize   int
	DispatchWorkers  int
	DispatchRate     float64
	RowSchema        string
}

// Load reads Settings from the environment, falling back to defaults for unset
// or unparsable values.
func Load() Settings {
	return Settings{
		TableName:        os.Getenv("TABLE_NAME"),
		TopicArn:         os.Getenv("TOPIC_ARN"),
		IncidentQueueURL: os.Getenv("INCIDENT_QUEUE_URL"),
		WorkFunctionName: os.Getenv("WORK_FUNCTION_NAME"),
		WorkDelay:        lookupDuration("WORK_DELAY", defaultWorkDelay),
		MaxPayloadSize:   lookupInt("MAX_PAYLOAD_SIZE", defaultMaxPayloadSize),
		DispatchWorkers:  lookupInt("DISPATCH_WORKERS", defaultDispatchWorkers),
		DispatchRate:     lookupFloat("DISPATCH_RATE", 0),
		RowSchema:        os.Getenv("ROW_SCHEMA"),
	}
}

// Required returns the value of key or an error if it is not provided.
func Required(key string) (string, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return "", fmt.Errorf("%s was not provided", key)
	}
	return value, nil
}

func lookupInt(key string, fallback int) int {
	setting, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value, err := strconv.Atoi(setting)
	if err != nil || value <= 0 {
		log.WithFields(log.Fields{"key": key, "value": setting}).Warn("ignoring invalid setting")
		return fallback
	}
	return value
}

func lookupFloat(key string, fallback float64) float64 {
	setting, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value, err := strconv.ParseFloat(setting, 64)
	if err != nil || value < 0 {
		log.WithFields(log.Fields{"key": key, "value": setting}).Warn("ignoring invalid setting")
		return fallback
	}
	return value
}

// lookupDuration accepts Go durations ("1500ms") or a plain number of seconds.
func lookupDuration(key string, fallback time.Duration) time.Duration {
	setting, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	if d, err := time.ParseDuration(setting); err == nil && d >= 0 {
		return d
	}
	if seconds, err := strconv.Atoi(setting); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	log.WithFields(log.Fields{"key": key, "value": setting}).Warn("ignoring invalid setting")
	return fallback
}
