package timezone

import (
	"os"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// isoLayout entspricht datetime.isoformat() ohne Zeitzone, mit Mikrosekunden
const isoLayout = "2006-01-02T15:04:05.000000"

var (
	currentLocation *time.Location
	locationMutex   sync.RWMutex
)

// Initialize setzt die Zeitzone für Zeitfenster und Dateinamen.
// Reihenfolge: übergebener Name, TZ-Umgebungsvariable, lokale Systemzeit.
func Initialize(tzName string) {
	if tzName == "" {
		tzName = os.Getenv("TZ")
	}
	if tzName == "" {
		tzName = "Local"
	}

	loc, err := time.LoadLocation(tzName)
	if err != nil {
		log.Warnf("Failed to load timezone %s: %v. Falling back to local time.", tzName, err)
		loc = time.Local
	} else {
		log.Infof("Timezone set to %s", tzName)
	}

	locationMutex.Lock()
	currentLocation = loc
	locationMutex.Unlock()
}

func location() *time.Location {
	locationMutex.RLock()
	loc := currentLocation
	locationMutex.RUnlock()
	if loc == nil {
		Initialize("")
		return location()
	}
	return loc
}

// Now gibt die aktuelle Zeit in der konfigurierten Zeitzone zurück
func Now() time.Time {
	return time.Now().In(location())
}

// Format formatiert ein time.Time-Objekt mit der konfigurierten Zeitzone
func Format(t time.Time, layout string) string {
	return t.In(location()).Format(layout)
}

// ISO8601 formatiert die Zeit wie der Zeitstempel in Anhangsnamen, z.B. 2020-05-01T12:34:56.123456
func ISO8601(t time.Time) string {
	return Format(t, isoLayout)
}
