package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

type ReconciliationConfig struct {
	Location        *time.Location
	WithdrawalQueue string
	MaxRetries      int
	RetryBaseDelay  time.Duration
	UPIPayeeVPA     string
	UPIPayeeName    string
	QRCodeTTL       time.Duration
}

// LoadReconciliationConfig reads engine settings from the environment. The
// timezone is explicit: calendar-day windows are resolved against exactly
// one location, never the host locale.
func LoadReconciliationConfig() *ReconciliationConfig {
	tz := getEnv("APP_TIMEZONE", "Asia/Kolkata")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("Unknown timezone %q, falling back to UTC: %v", tz, err)
		loc = time.UTC
	}

	return &ReconciliationConfig{
		Location:        loc,
		WithdrawalQueue: getEnv("WITHDRAWAL_QUEUE", "withdrawal_events"),
		MaxRetries:      getEnvAsInt("RECON_MAX_RETRIES", 3),
		RetryBaseDelay:  getEnvAsDuration("RECON_RETRY_BASE_DELAY", 50*time.Millisecond),
		UPIPayeeVPA:     getEnv("UPI_PAYEE_VPA", "collections@upi"),
		UPIPayeeName:    getEnv("UPI_PAYEE_NAME", "Collections Desk"),
		QRCodeTTL:       getEnvAsDuration("QR_CODE_TTL", 5*time.Minute),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}
