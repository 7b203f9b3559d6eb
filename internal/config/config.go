package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage drivers accepted by STORAGE_DRIVER.
const (
	DriverCloudinary = "cloudinary"
	DriverMinIO      = "minio"
)

// DatabaseConfig holds PostgreSQL database connection settings.
// Upload history is disabled when Host is empty.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// Enabled reports whether a database has been configured.
func (c DatabaseConfig) Enabled() bool {
	return c.Host != ""
}

// CloudinaryConfig holds credentials for the Cloudinary upload API.
type CloudinaryConfig struct {
	CloudName      string
	APIKey         string
	APISecret      string
	Folder         string
	Transformation string
}

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	Bucket     string
	UseSSL     bool
	PublicURL  string
	PresignTTL time.Duration
}

// ImageConfig controls normalization and input limits.
type ImageConfig struct {
	Size           int
	Quality        int
	MaxUploadBytes int64
	MaxFiles       int
	FetchTimeout   time.Duration
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables and an optional config file.
type AppConfig struct {
	Port          string
	LogLevel      string
	StorageDriver string
	Database      DatabaseConfig
	Cloudinary    CloudinaryConfig
	MinIO         MinIOConfig
	Image         ImageConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// If CONFIG_FILE points to a readable file it is merged underneath the environment.
func Load() *AppConfig {
	v := newViper()

	return &AppConfig{
		Port:          v.GetString("PORT"),
		LogLevel:      v.GetString("LOG_LEVEL"),
		StorageDriver: strings.ToLower(v.GetString("STORAGE_DRIVER")),
		Database: DatabaseConfig{
			Host:               v.GetString("DB_HOST"),
			Port:               v.GetString("DB_PORT"),
			User:               v.GetString("DB_USER"),
			Password:           v.GetString("DB_PASSWORD"),
			Name:               v.GetString("DB_NAME"),
			SSLMode:            v.GetString("DB_SSLMODE"),
			MaxOpenConns:       v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:       v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetimeSec: v.GetInt("DB_CONN_MAX_LIFETIME_SEC"),
		},
		Cloudinary: CloudinaryConfig{
			CloudName:      v.GetString("CLOUDINARY_CLOUD_NAME"),
			APIKey:         v.GetString("CLOUDINARY_API_KEY"),
			APISecret:      v.GetString("CLOUDINARY_API_SECRET"),
			Folder:         v.GetString("CLOUDINARY_FOLDER"),
			Transformation: v.GetString("CLOUDINARY_TRANSFORMATION"),
		},
		MinIO: MinIOConfig{
			Endpoint:   v.GetString("MINIO_ENDPOINT"),
			AccessKey:  v.GetString("MINIO_ACCESS_KEY"),
			SecretKey:  v.GetString("MINIO_SECRET_KEY"),
			Bucket:     v.GetString("MINIO_BUCKET"),
			UseSSL:     v.GetBool("MINIO_USE_SSL"),
			PublicURL:  strings.TrimRight(v.GetString("MINIO_PUBLIC_URL"), "/"),
			PresignTTL: v.GetDuration("MINIO_PRESIGN_TTL"),
		},
		Image: ImageConfig{
			Size:           v.GetInt("IMAGE_SIZE"),
			Quality:        v.GetInt("IMAGE_QUALITY"),
			MaxUploadBytes: v.GetInt64("MAX_UPLOAD_BYTES"),
			MaxFiles:       v.GetInt("MAX_FILES"),
			FetchTimeout:   v.GetDuration("FETCH_TIMEOUT"),
		},
	}
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("PORT", "3000")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORAGE_DRIVER", DriverCloudinary)

	v.SetDefault("DB_HOST", "")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "")
	v.SetDefault("DB_PASSWORD", "")
	v.SetDefault("DB_NAME", "")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME_SEC", 300)

	v.SetDefault("CLOUDINARY_CLOUD_NAME", "")
	v.SetDefault("CLOUDINARY_API_KEY", "")
	v.SetDefault("CLOUDINARY_API_SECRET", "")
	v.SetDefault("CLOUDINARY_FOLDER", "")
	v.SetDefault("CLOUDINARY_TRANSFORMATION", "c_fill,h_500,w_500/q_auto")

	v.SetDefault("MINIO_ENDPOINT", "")
	v.SetDefault("MINIO_ACCESS_KEY", "")
	v.SetDefault("MINIO_SECRET_KEY", "")
	v.SetDefault("MINIO_BUCKET", "")
	v.SetDefault("MINIO_USE_SSL", false)
	v.SetDefault("MINIO_PUBLIC_URL", "")
	v.SetDefault("MINIO_PRESIGN_TTL", 7*24*time.Hour)

	v.SetDefault("IMAGE_SIZE", 500)
	v.SetDefault("IMAGE_QUALITY", 85)
	v.SetDefault("MAX_UPLOAD_BYTES", 10*1024*1024)
	v.SetDefault("MAX_FILES", 10)
	v.SetDefault("FETCH_TIMEOUT", 10*time.Second)

	v.AutomaticEnv()

	// Real environment variables take precedence over the file.
	if path := v.GetString("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		_ = v.ReadInConfig()
	}

	return v
}
