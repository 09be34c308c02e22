package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Env struct {
	AppAddr string
	GinMode string

	StoreDriver   string
	DBDSN         string
	DBAutoMigrate bool

	QueueDriver   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret   string
	CORSOrigins []string
	Timezone    string

	HoldTimeout           time.Duration
	PendingPaymentTimeout time.Duration
	ExpirySweepSpec       string
	ReturnSweepSpec       string
	DepartureDelay        time.Duration

	Mpesa MpesaEnv
}

type MpesaEnv struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	CallbackURL    string
	// CallbackToken must accompany every result callback as ?token=. It is
	// read from MPESA_CALLBACK_TOKEN or from the token parameter of
	// MPESA_CALLBACK_URL.
	CallbackToken string
}

// Enabled reports whether enough credentials are present to call Daraja.
func (m MpesaEnv) Enabled() bool {
	return m.ConsumerKey != "" && m.ConsumerSecret != "" && m.ShortCode != ""
}

var defaultOrigins = []string{
	"http://localhost:3000",
	"http://127.0.0.1:3000",
	"http://localhost:5173",
	"http://127.0.0.1:5173",
}

// LoadEnv reads .env when present, then the process environment.
func LoadEnv() Env {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("warning: .env not loaded: %v", err)
	}

	env := Env{
		AppAddr:       str("APP_ADDR", ":8080"),
		GinMode:       str("GIN_MODE", ""),
		StoreDriver:   strings.ToLower(str("STORE_DRIVER", "mysql")),
		DBAutoMigrate: boolean("DB_AUTO_MIGRATE", true),
		QueueDriver:   strings.ToLower(str("QUEUE_DRIVER", "memory")),
		RedisAddr:     str("REDIS_ADDR", "localhost:6379"),
		RedisPassword: str("REDIS_PASSWORD", ""),
		RedisDB:       integer("REDIS_DB", 0),
		JWTSecret:     str("JWT_SECRET", "change-me"),
		CORSOrigins:   list("CORS_ALLOWED_ORIGINS", defaultOrigins),
		Timezone:      str("APP_TIMEZONE", "Africa/Nairobi"),

		HoldTimeout:           duration("HOLD_TIMEOUT", 5*time.Minute),
		PendingPaymentTimeout: duration("PENDING_PAYMENT_TIMEOUT", 15*time.Minute),
		ExpirySweepSpec:       str("EXPIRY_SWEEP_SPEC", "@every 5m"),
		ReturnSweepSpec:       str("RETURN_SWEEP_SPEC", "@every 1m"),
		DepartureDelay:        duration("DISPATCH_DEPARTURE_DELAY", 5*time.Minute),

		Mpesa: MpesaEnv{
			BaseURL:        str("MPESA_BASE_URL", "https://sandbox.safaricom.co.ke"),
			ConsumerKey:    str("MPESA_CONSUMER_KEY", ""),
			ConsumerSecret: str("MPESA_CONSUMER_SECRET", ""),
			ShortCode:      str("MPESA_SHORTCODE", ""),
			Passkey:        str("MPESA_PASSKEY", ""),
			CallbackURL:    str("MPESA_CALLBACK_URL", ""),
			CallbackToken:  str("MPESA_CALLBACK_TOKEN", ""),
		},
	}
	if env.Mpesa.CallbackToken == "" {
		env.Mpesa.CallbackToken = tokenParam(env.Mpesa.CallbackURL)
	}

	env.DBDSN = str("DB_DSN", "")
	if env.DBDSN == "" {
		env.DBDSN = fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true&loc=UTC&charset=utf8mb4&timeout=5s&readTimeout=30s&writeTimeout=30s",
			str("DB_USER", "root"),
			str("DB_PASSWORD", ""),
			str("DB_HOST", "127.0.0.1:3306"),
			str("DB_NAME", "matsched"),
		)
	}
	if env.PendingPaymentTimeout < env.HoldTimeout {
		env.PendingPaymentTimeout = env.HoldTimeout
	}
	return env
}

func tokenParam(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		log.Printf("warning: MPESA_CALLBACK_URL is not a URL: %v", err)
		return ""
	}
	return u.Query().Get("token")
}

func str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func integer(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("warning: %s=%q is not an integer, using %d", key, v, def)
		return def
	}
	return n
}

func boolean(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("warning: %s=%q is not a duration, using %s", key, v, def)
		return def
	}
	return d
}

func list(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
