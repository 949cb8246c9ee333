package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPPort     string
	InferenceURL string
	CORSOrigins  string

	MaxUploadMB    int
	MaxImageWidth  int
	DiffThreshold  int
	AlertThreshold int
	LogLevel       string
	Environment    string

	DBName     string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBSSLMode  string
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

// DSNForLog renders the DSN without the password for logging.
func (c *Config) DSNForLog() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=*** dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBName, c.DBSSLMode)
}

func (c *Config) IsDev() bool {
	return c.Environment == "dev"
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := &Config{
		HTTPPort:       getEnv("HTTP_PORT", "8080"),
		InferenceURL:   getEnv("INFERENCE_SERVICE_URL", "localhost:50051"),
		CORSOrigins:    getEnv("CORS_ORIGINS", "*"),
		MaxUploadMB:    getEnvInt("MAX_UPLOAD_MB", 20),
		MaxImageWidth:  getEnvInt("MAX_IMAGE_WIDTH", 1024),
		DiffThreshold:  getEnvInt("DIFF_THRESHOLD", 30),
		AlertThreshold: getEnvInt("ALERT_THRESHOLD", 5),
		LogLevel:       getEnv("LOG_LEVEL", "INFO"),
		Environment:    getEnv("ENVIRONMENT", "production"),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "sandguard"),
		DBSSLMode:      getEnv("DB_SSLMODE", "disable"),
	}

	if cfg.DBPassword == "" {
		fmt.Println("WARNING: DB_PASSWORD is not set!")
	}
	if cfg.DiffThreshold < 0 || cfg.DiffThreshold > 255 {
		fmt.Println("WARNING: DIFF_THRESHOLD out of [0,255], using default: 30")
		cfg.DiffThreshold = 30
	}

	return cfg
}

func getEnv(key string, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if intVal, err := strconv.Atoi(v); err == nil {
			return intVal
		}
	}
	return defaultVal
}
