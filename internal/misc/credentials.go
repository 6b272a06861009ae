package misc

import (
	"strings"

	log "github.com/sirupsen/logrus"
)

// Separator used to visually group related log lines.
var credentialSeparator = strings.Repeat("-", 67)

// LogSavingCredentials emits a consistent log message when persisting auth material.
func LogSavingCredentials(service, store string) {
	if service == "" {
		return
	}
	log.WithField("service", service).Infof("Saving credentials to %s store", store)
}

// LogCredentialSeparator adds a visual separator to group auth processing logs.
func LogCredentialSeparator() {
	log.Debug(credentialSeparator)
}
