package logging

import (
	"os"

	log "github.com/sirupsen/logrus"
)

// Init configures the JSON formatter and the level from LOG_LEVEL, defaulting to info.
func Init() {
	log.SetFormatter(&log.JSONFormatter{})
	ll, err := log.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		log.SetLevel(log.InfoLevel)
	} else {
		log.SetLevel(ll)
	}
}
