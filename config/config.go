package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
// Facilitator credentials and access-control knobs are supplied through the
// environment; everything else has simple development defaults.
type Config struct {
	ServerAddr string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis配置（会话缓存，可选）
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	UploadDir      string // Base directory for all uploaded assets
	AudioUploadDir string // Subdirectory for audio files: UploadDir/audio
	CoverUploadDir string // Subdirectory for cover art: UploadDir/covers

	// MinIO 对象存储（原始文件镜像，可选）
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool

	// x402 支付配置
	FacilitatorURL    string
	FacilitatorAPIKey string
	ServerWallet      string
	PaymentNetwork    string

	// 流会话访问控制
	StreamTTL        time.Duration // Session validity window from issuance
	AccessTokenBytes int           // Random bytes per access token (hex-encoded on the wire)
	AllowedOrigins   []string      // Referer hosts permitted to reach the stream endpoint
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// Attempt to load .env file. godotenv.Load() will not override existing env vars.
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	uploadBase := getEnv("UPLOAD_DIR", "uploads")

	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"), // For password, better not to have a hardcoded default
		DBName:     getEnv("DB_NAME", "x402fm"),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		UploadDir:      uploadBase,
		AudioUploadDir: filepath.Join(uploadBase, "audio"),
		CoverUploadDir: filepath.Join(uploadBase, "covers"),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "x402fm"),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", true),

		FacilitatorURL:    getEnv("FACILITATOR_URL", "https://x402.org/facilitator"),
		FacilitatorAPIKey: os.Getenv("FACILITATOR_API_KEY"),
		ServerWallet:      getEnv("SERVER_WALLET_ADDRESS", ""),
		PaymentNetwork:    getEnv("PAYMENT_NETWORK", "arbitrum"),

		StreamTTL:        time.Duration(getEnvInt("STREAM_TTL_SECONDS", 600)) * time.Second,
		AccessTokenBytes: getEnvInt("ACCESS_TOKEN_BYTES", 32),
		AllowedOrigins:   splitList(getEnv("ALLOWED_ORIGINS", "x402music.live,localhost:3000,127.0.0.1:3000")),
	}
}

// splitList 解析逗号分隔的配置项
func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
