package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ssm"
	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port     string
	AppEnv   string
	Timezone *time.Location

	// State persistence
	StateBackend string // file, redis, mysql
	StateDir     string
	SeedDemo     bool

	// Database (mysql backend)
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis (redis backend)
	RedisHost      string
	RedisPort      string
	RedisPassword  string
	RedisKeyPrefix string

	// Owner login
	JWTSecret         string
	JWTExpiresIn      time.Duration
	OwnerPasswordHash string
	OwnerPassword     string

	// Gemini
	GeminiAPIKey string
	GeminiModel  string

	// Google Sheets
	GoogleClientSecret string
	GoogleRedirectURL  string
	SheetRange         string

	// AWS S3
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	S3BucketName       string

	// LINE
	LineChannelSecret string
	LineChannelToken  string

	// Scheduler
	StatusRefreshCron string
	BackupCron        string

	// Uploads
	MaxFileSize int64

	// Logging
	LogLevel string
	LogFile  string
}

func (c *Config) GetDSN() string {
	return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName + "?charset=utf8mb4&parseTime=True&loc=Local"
}

func (c *Config) RedisAddr() string {
	return c.RedisHost + ":" + c.RedisPort
}

func (c *Config) IsProduction() bool {
	return strings.ToLower(c.AppEnv) == "production"
}

var AppConfig *Config

// LoadConfig reads .env (or SSM when USE_SSM=true), fills AppConfig and returns it.
func LoadConfig() *Config {
	useSSM := getEnv("USE_SSM", "false") == "true"

	var paramMap map[string]string

	basePath := strings.TrimRight(getEnv("SSM_BASE_PATH", "/tuitionflow"), "/")
	stage := getEnv("STAGE", getEnv("APP_ENV", "production"))
	prefix := basePath + "/" + stage

	if useSSM {
		sess, err := session.NewSession(&aws.Config{Region: aws.String(getEnv("AWS_REGION", "ap-south-1"))})
		if err != nil {
			log.Fatal("Failed to create AWS session:", err)
		}
		log.Printf("Using AWS SSM Parameter Store (prefix=%s)", prefix)
		paramMap = fetchSSMParameters(ssm.New(sess), prefix)
	} else {
		if err := godotenv.Load(); err != nil {
			log.Println("Warning: .env file not found, using environment variables")
		}
	}

	cfg, err := build(func(key, def string) string {
		if useSSM {
			if v, ok := paramMap[strings.ToUpper(key)]; ok && v != "" {
				return v
			}
		}
		return getEnv(strings.ToUpper(key), def)
	})
	if err != nil {
		log.Fatal(err)
	}
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("%v (SSM=%v)", err, useSSM)
	}

	AppConfig = cfg
	return cfg
}

// build assembles a Config from a key lookup; split out of LoadConfig for tests.
func build(getVal func(key, def string) string) (*Config, error) {
	jwtExpires, err := parseDuration(getVal("JWT_EXPIRES_IN", "7d"))
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_EXPIRES_IN: %w", err)
	}

	maxFileSize, err := strconv.ParseInt(getVal("MAX_FILE_SIZE", "5242880"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_FILE_SIZE: %w", err)
	}

	tz, err := time.LoadLocation(getVal("APP_TIMEZONE", "Asia/Kolkata"))
	if err != nil {
		return nil, fmt.Errorf("invalid APP_TIMEZONE: %w", err)
	}

	backend := strings.ToLower(getVal("STATE_BACKEND", "file"))
	switch backend {
	case "file", "redis", "mysql":
	default:
		return nil, fmt.Errorf("invalid STATE_BACKEND %q (file, redis, mysql)", backend)
	}

	port := getVal("PORT", "3000")

	return &Config{
		Port:     port,
		AppEnv:   getVal("APP_ENV", "development"),
		Timezone: tz,

		StateBackend: backend,
		StateDir:     getVal("STATE_DIR", "data"),
		SeedDemo:     strings.ToLower(getVal("SEED_DEMO", "false")) == "true",

		DBHost:     getVal("DB_HOST", "localhost"),
		DBPort:     getVal("DB_PORT", "3306"),
		DBUser:     getVal("DB_USER", "root"),
		DBPassword: getVal("DB_PASSWORD", ""),
		DBName:     getVal("DB_NAME", "tuitionflow"),

		RedisHost:      getVal("REDIS_HOST", "localhost"),
		RedisPort:      getVal("REDIS_PORT", "6379"),
		RedisPassword:  getVal("REDIS_PASSWORD", ""),
		RedisKeyPrefix: getVal("REDIS_KEY_PREFIX", "tuitionflow:"),

		JWTSecret:         getVal("JWT_SECRET", "change_me_tuitionflow_secret"),
		JWTExpiresIn:      jwtExpires,
		OwnerPasswordHash: getVal("OWNER_PASSWORD_HASH", ""),
		OwnerPassword:     getVal("OWNER_PASSWORD", ""),

		GeminiAPIKey: getVal("GEMINI_API_KEY", ""),
		GeminiModel:  getVal("GEMINI_MODEL", "gemini-2.5-flash"),

		GoogleClientSecret: getVal("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getVal("GOOGLE_REDIRECT_URL", "http://localhost:"+port+"/api/settings/sheets/callback"),
		SheetRange:         getVal("SHEET_RANGE", "Sheet1!A:D"),

		AWSRegion:          getVal("AWS_REGION", "ap-south-1"),
		AWSAccessKeyID:     getVal("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getVal("AWS_SECRET_ACCESS_KEY", ""),
		S3BucketName:       getVal("S3_BUCKET_NAME", ""),

		LineChannelSecret: getVal("LINE_CHANNEL_SECRET", ""),
		LineChannelToken:  getVal("LINE_CHANNEL_ACCESS_TOKEN", ""),

		StatusRefreshCron: getVal("STATUS_REFRESH_CRON", "5 0 * * *"),
		BackupCron:        getVal("BACKUP_CRON", "30 1 * * *"),

		MaxFileSize: maxFileSize,

		LogLevel: getVal("LOG_LEVEL", "info"),
		LogFile:  getVal("LOG_FILE", "logs/app.log"),
	}, nil
}

// parseDuration accepts Go durations plus the shorthand "7d" and "2w".
func parseDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}
	s = strings.TrimSpace(strings.ToLower(s))
	if len(s) > 1 {
		if n, convErr := strconv.Atoi(s[:len(s)-1]); convErr == nil {
			switch s[len(s)-1] {
			case 'd':
				return time.Duration(n) * 24 * time.Hour, nil
			case 'w':
				return time.Duration(n*7) * 24 * time.Hour, nil
			}
		}
	}
	return 0, err
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// fetchSSMParameters reads all parameters under prefix and returns them keyed by UPPERCASE last path segment.
func fetchSSMParameters(client *ssm.SSM, prefix string) map[string]string {
	out := make(map[string]string)
	var next *string
	for {
		in := &ssm.GetParametersByPathInput{
			Path:           aws.String(prefix),
			WithDecryption: aws.Bool(true),
			Recursive:      aws.Bool(true),
			NextToken:      next,
		}
		resp, err := client.GetParametersByPath(in)
		if err != nil {
			log.Printf("Warning: unable to fetch SSM parameters for prefix %s: %v", prefix, err)
			break
		}
		for _, p := range resp.Parameters {
			if p.Name == nil || p.Value == nil {
				continue
			}
			name := *p.Name
			if idx := strings.LastIndex(name, "/"); idx >= 0 {
				name = name[idx+1:]
			}
			if name != "" {
				out[strings.ToUpper(name)] = *p.Value
			}
		}
		if resp.NextToken == nil || *resp.NextToken == "" {
			break
		}
		next = resp.NextToken
	}
	return out
}

func validateConfig(c *Config) error {
	if !c.IsProduction() {
		return nil
	}
	if strings.TrimSpace(c.OwnerPasswordHash) == "" {
		return fmt.Errorf("missing required secret OWNER_PASSWORD_HASH in production")
	}
	if len(c.JWTSecret) < 16 {
		return fmt.Errorf("JWT_SECRET too short (min 16 chars)")
	}
	if c.StateBackend == "mysql" && strings.TrimSpace(c.DBPassword) == "" {
		return fmt.Errorf("missing required secret DB_PASSWORD for mysql state backend")
	}
	return nil
}
