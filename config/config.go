package config

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// AppConfig holds environment driven configuration values.
// Sensitive data should never have defaults inside code and must be provided via env files or the environment.
type AppConfig struct {
	AppPort   string
	AppURL    string
	JWTSecret string
	// Token lifetimes in minutes
	AccessTokenTTLMinutes  int
	RefreshTokenTTLMinutes int
	// Database: DBDriver is "mysql" or "sqlite"
	DBDriver    string
	DatabaseURI string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	SQLitePath  string
	// Redis for permission cache, token blacklist and captcha; empty host means in-memory
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	// SMTP for newsletter and password reset mails
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string
	SMTPTLS      bool
	// Token windows for mailed links
	NewsletterTokenTTLMinutes int
	PasswordResetTTLMinutes   int
	// Media uploads
	UploadDir       string
	UploadURLPrefix string
	UploadMaxMB     int
	// HTTP
	RateLimitPerMinute     int
	AllowedOrigins         []string
	RegisterCaptchaEnabled bool
	// Proxies allowed to set X-Forwarded-For; empty means the socket peer is the client
	TrustedProxies []string
	// Per-IP registration throttling
	RegisterCooldownSeconds int
	RegisterMaxPerIPPerDay  int
	RegisterFailMaxPerHour  int
	RegisterTempBanMinutes  int
	// OAuth login
	GitHubClientID     string
	GitHubClientSecret string
	GoogleClientID     string
	GoogleClientSecret string
	OAuthRedirectBase  string
	// Background work
	EventWorkers             int
	EventQueueSize           int
	SchedulerIntervalSeconds int
	// Gin framework configuration
	GinMode string
	GinPath string
	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
}

var cfg AppConfig
var loaded bool

// Load loads the application configuration. It should be called once during boot.
func Load() AppConfig {
	if loaded {
		return cfg
	}

	// Precedence: config/config.json -> defaults -> .env -> environment variable overrides
	if err := loadJSONConfig(filepath.Join("config", "config.json"), &cfg); err != nil {
		log.Printf("ignoring invalid config/config.json: %v", err)
	}

	applyDefaults(&cfg)

	// .env never overrides variables already exported by the process
	_ = godotenv.Load()
	applyEnvOverrides(&cfg)

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set in environment variables")
	}

	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	if !loaded {
		return Load()
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// loadJSONConfig reads the grouped JSON file into out if present. Returns error only for invalid JSON.
func loadJSONConfig(path string, out *AppConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return nil // silently ignore missing file
	}
	defer f.Close()

	var raw map[string]any
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return err
	}

	getString := func(m map[string]any, key string) string {
		if s, ok := m[key].(string); ok {
			return s
		}
		return ""
	}
	getInt := func(m map[string]any, key string) int {
		switch t := m[key].(type) {
		case float64:
			return int(t)
		case int:
			return t
		}
		return 0
	}
	getBool := func(m map[string]any, key string) bool {
		b, _ := m[key].(bool)
		return b
	}
	getStringSlice := func(m map[string]any, key string) []string {
		arr, ok := m[key].([]any)
		if !ok {
			return nil
		}
		res := make([]string, 0, len(arr))
		for _, it := range arr {
			if s, ok := it.(string); ok {
				res = append(res, s)
			}
		}
		return res
	}

	if app, ok := raw["app"].(map[string]any); ok {
		out.AppPort = getString(app, "AppPort")
		out.AppURL = getString(app, "AppURL")
		out.JWTSecret = getString(app, "JWTSecret")
		out.AccessTokenTTLMinutes = getInt(app, "AccessTokenTTLMinutes")
		out.RefreshTokenTTLMinutes = getInt(app, "RefreshTokenTTLMinutes")
		out.RateLimitPerMinute = getInt(app, "RateLimitPerMinute")
		out.AllowedOrigins = getStringSlice(app, "AllowedOrigins")
		out.TrustedProxies = getStringSlice(app, "TrustedProxies")
		out.RegisterCaptchaEnabled = getBool(app, "RegisterCaptchaEnabled")
		out.RegisterCooldownSeconds = getInt(app, "RegisterCooldownSeconds")
		out.RegisterMaxPerIPPerDay = getInt(app, "RegisterMaxPerIPPerDay")
		out.RegisterFailMaxPerHour = getInt(app, "RegisterFailMaxPerHour")
		out.RegisterTempBanMinutes = getInt(app, "RegisterTempBanMinutes")
		out.NewsletterTokenTTLMinutes = getInt(app, "NewsletterTokenTTLMinutes")
		out.PasswordResetTTLMinutes = getInt(app, "PasswordResetTTLMinutes")
		out.EventWorkers = getInt(app, "EventWorkers")
		out.EventQueueSize = getInt(app, "EventQueueSize")
		out.SchedulerIntervalSeconds = getInt(app, "SchedulerIntervalSeconds")
	}

	if dbs, ok := raw["database"].(map[string]any); ok {
		out.DBDriver = getString(dbs, "Driver")
		out.DatabaseURI = getString(dbs, "DatabaseURI")
		out.DBHost = getString(dbs, "DBHost")
		out.DBPort = getString(dbs, "DBPort")
		out.DBUser = getString(dbs, "DBUser")
		out.DBPassword = getString(dbs, "DBPassword")
		out.DBName = getString(dbs, "DBName")
		out.SQLitePath = getString(dbs, "SQLitePath")
	}

	if rds, ok := raw["redis"].(map[string]any); ok {
		out.RedisHost = getString(rds, "RedisHost")
		out.RedisPort = getInt(rds, "RedisPort")
		out.RedisDB = getInt(rds, "RedisDB")
		out.RedisPassword = getString(rds, "RedisPassword")
	}

	if sm, ok := raw["smtp"].(map[string]any); ok {
		out.SMTPHost = getString(sm, "SMTPHost")
		out.SMTPPort = getInt(sm, "SMTPPort")
		out.SMTPUsername = getString(sm, "SMTPUsername")
		out.SMTPPassword = getString(sm, "SMTPPassword")
		out.SMTPFrom = getString(sm, "SMTPFrom")
		out.SMTPFromName = getString(sm, "SMTPFromName")
		out.SMTPTLS = getBool(sm, "SMTPTLS")
	}

	if up, ok := raw["uploads"].(map[string]any); ok {
		out.UploadDir = getString(up, "Dir")
		out.UploadURLPrefix = getString(up, "URLPrefix")
		out.UploadMaxMB = getInt(up, "MaxMB")
	}

	if oa, ok := raw["oauth"].(map[string]any); ok {
		out.GitHubClientID = getString(oa, "GitHubClientID")
		out.GitHubClientSecret = getString(oa, "GitHubClientSecret")
		out.GoogleClientID = getString(oa, "GoogleClientID")
		out.GoogleClientSecret = getString(oa, "GoogleClientSecret")
		out.OAuthRedirectBase = getString(oa, "RedirectBase")
	}

	if lg, ok := raw["log"].(map[string]any); ok {
		out.LogLevel = getString(lg, "Level")
		out.LogPath = getString(lg, "Path")
		out.GinMode = getString(lg, "GinMode")
		out.GinPath = getString(lg, "GinPath")
		out.LogMaxSizeMB = getInt(lg, "MaxSizeMB")
		out.LogMaxBackups = getInt(lg, "MaxBackups")
		out.LogMaxAgeDays = getInt(lg, "MaxAgeDays")
		out.LogCompress = getBool(lg, "Compress")
	}

	return nil
}

// applyDefaults sets sane defaults for zero-value fields.
func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "8080"
	}
	if c.AppURL == "" {
		c.AppURL = "http://localhost:" + c.AppPort
	}
	if c.AccessTokenTTLMinutes == 0 {
		c.AccessTokenTTLMinutes = 24 * 60
	}
	if c.RefreshTokenTTLMinutes == 0 {
		c.RefreshTokenTTLMinutes = 7 * 24 * 60
	}
	if c.DBDriver == "" {
		c.DBDriver = "mysql"
	}
	if c.DBHost == "" {
		c.DBHost = "127.0.0.1"
	}
	if c.DBPort == "" {
		c.DBPort = "3306"
	}
	if c.DBUser == "" {
		c.DBUser = "root"
	}
	if c.DBName == "" {
		c.DBName = "inkwell"
	}
	if c.SQLitePath == "" {
		c.SQLitePath = "data/inkwell.db"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.SMTPPort == 0 {
		c.SMTPPort = 587
	}
	if c.SMTPFromName == "" {
		c.SMTPFromName = "Inkwell"
	}
	if c.NewsletterTokenTTLMinutes == 0 {
		c.NewsletterTokenTTLMinutes = 24 * 60
	}
	if c.PasswordResetTTLMinutes == 0 {
		c.PasswordResetTTLMinutes = 60
	}
	if c.UploadDir == "" {
		c.UploadDir = filepath.Join("static", "uploads")
	}
	if c.UploadURLPrefix == "" {
		c.UploadURLPrefix = "/static/uploads"
	}
	if c.UploadMaxMB == 0 {
		c.UploadMaxMB = 20
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 60
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.RegisterCooldownSeconds == 0 {
		c.RegisterCooldownSeconds = 5
	}
	if c.RegisterMaxPerIPPerDay == 0 {
		c.RegisterMaxPerIPPerDay = 20
	}
	if c.RegisterFailMaxPerHour == 0 {
		c.RegisterFailMaxPerHour = 10
	}
	if c.RegisterTempBanMinutes == 0 {
		c.RegisterTempBanMinutes = 60
	}
	if c.OAuthRedirectBase == "" {
		c.OAuthRedirectBase = c.AppURL
	}
	if c.EventWorkers == 0 {
		c.EventWorkers = 4
	}
	if c.EventQueueSize == 0 {
		c.EventQueueSize = 256
	}
	if c.SchedulerIntervalSeconds == 0 {
		c.SchedulerIntervalSeconds = 60
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/gin.log"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
}

// applyEnvOverrides maps known environment variables onto config values when present.
func applyEnvOverrides(c *AppConfig) {
	stringVars := map[string]*string{
		"APP_PORT":             &c.AppPort,
		"APP_URL":              &c.AppURL,
		"JWT_SECRET":           &c.JWTSecret,
		"DB_DRIVER":            &c.DBDriver,
		"DATABASE_URI":         &c.DatabaseURI,
		"DB_HOST":              &c.DBHost,
		"DB_PORT":              &c.DBPort,
		"DB_USER":              &c.DBUser,
		"DB_PASSWORD":          &c.DBPassword,
		"DB_NAME":              &c.DBName,
		"SQLITE_PATH":          &c.SQLitePath,
		"REDIS_HOST":           &c.RedisHost,
		"REDIS_PASSWORD":       &c.RedisPassword,
		"SMTP_HOST":            &c.SMTPHost,
		"SMTP_USERNAME":        &c.SMTPUsername,
		"SMTP_PASSWORD":        &c.SMTPPassword,
		"SMTP_FROM":            &c.SMTPFrom,
		"SMTP_FROM_NAME":       &c.SMTPFromName,
		"UPLOAD_DIR":           &c.UploadDir,
		"UPLOAD_URL_PREFIX":    &c.UploadURLPrefix,
		"GITHUB_CLIENT_ID":     &c.GitHubClientID,
		"GITHUB_CLIENT_SECRET": &c.GitHubClientSecret,
		"GOOGLE_CLIENT_ID":     &c.GoogleClientID,
		"GOOGLE_CLIENT_SECRET": &c.GoogleClientSecret,
		"OAUTH_REDIRECT_BASE":  &c.OAuthRedirectBase,
		"GIN_MODE":             &c.GinMode,
		"GIN_PATH":             &c.GinPath,
		"LOG_LEVEL":            &c.LogLevel,
		"LOG_PATH":             &c.LogPath,
	}
	for key, dst := range stringVars {
		if v := getEnv(key, ""); v != "" {
			*dst = v
		}
	}

	intVars := map[string]*int{
		"ACCESS_TOKEN_TTL_MINUTES":     &c.AccessTokenTTLMinutes,
		"REFRESH_TOKEN_TTL_MINUTES":    &c.RefreshTokenTTLMinutes,
		"REDIS_PORT":                   &c.RedisPort,
		"REDIS_DB":                     &c.RedisDB,
		"SMTP_PORT":                    &c.SMTPPort,
		"NEWSLETTER_TOKEN_TTL_MINUTES": &c.NewsletterTokenTTLMinutes,
		"PASSWORD_RESET_TTL_MINUTES":   &c.PasswordResetTTLMinutes,
		"UPLOAD_MAX_MB":                &c.UploadMaxMB,
		"RATE_LIMIT_PER_MINUTE":        &c.RateLimitPerMinute,
		"REGISTER_COOLDOWN_SECONDS":    &c.RegisterCooldownSeconds,
		"REGISTER_MAX_PER_IP_PER_DAY":  &c.RegisterMaxPerIPPerDay,
		"REGISTER_FAIL_MAX_PER_HOUR":   &c.RegisterFailMaxPerHour,
		"REGISTER_TEMP_BAN_MINUTES":    &c.RegisterTempBanMinutes,
		"EVENT_WORKERS":                &c.EventWorkers,
		"EVENT_QUEUE_SIZE":             &c.EventQueueSize,
		"SCHEDULER_INTERVAL_SECONDS":   &c.SchedulerIntervalSeconds,
		"LOG_MAX_SIZE_MB":              &c.LogMaxSizeMB,
		"LOG_MAX_BACKUPS":              &c.LogMaxBackups,
		"LOG_MAX_AGE_DAYS":             &c.LogMaxAgeDays,
	}
	for key, dst := range intVars {
		if v := getEnv(key, ""); v != "" {
			*dst = mustParseInt(v)
		}
	}

	if v := getEnv("SMTP_TLS", ""); v != "" {
		c.SMTPTLS = v == "true"
	}
	if v := getEnv("LOG_COMPRESS", ""); v != "" {
		c.LogCompress = v == "true"
	}
	if v := getEnv("REGISTER_CAPTCHA_ENABLED", ""); v != "" {
		c.RegisterCaptchaEnabled = v == "true"
	}
	if v := getEnv("CORS_ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = readListEnv("CORS_ALLOWED_ORIGINS", c.AllowedOrigins)
	}
	c.TrustedProxies = readListEnv("TRUSTED_PROXIES", c.TrustedProxies)
}

func mustParseInt(val string) int {
	i, err := strconv.Atoi(val)
	if err != nil {
		log.Fatalf("invalid integer value %s: %v", val, err)
	}
	return i
}

func readListEnv(key string, defaults []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return defaults
	}
	items := []string{}
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
