package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

type MQConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type JWTConfig struct {
	Secret string `yaml:"secret"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

// MailerConfig 外部邮件投递服务配置
type MailerConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKey      string `yaml:"api_key"`
	FromAddress string `yaml:"from_address"`
}

// BillingConfig 里程碑开票相关配置
type BillingConfig struct {
	AdminRecipients []string `yaml:"admin_recipients"`
	FinalDueDays    int      `yaml:"final_due_days"`
	CompanyName     string   `yaml:"company_name"`
	Currency        string   `yaml:"currency"`
}

type Config struct {
	DB      DBConfig      `yaml:"db"`
	MQ      MQConfig      `yaml:"mq"`
	Redis   RedisConfig   `yaml:"redis"`
	JWT     JWTConfig     `yaml:"jwt"`
	Server  ServerConfig  `yaml:"server"`
	Mailer  MailerConfig  `yaml:"mailer"`
	Billing BillingConfig `yaml:"billing"`
}

func Load() *Config {
	return LoadFile("config.yaml")
}

func LoadFile(path string) *Config {
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("failed to open %s: %v", path, err)
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		log.Fatalf("failed to decode %s: %v", path, err)
	}

	// 环境变量覆盖（生产环境使用）
	overrideFromEnv(&cfg)

	if cfg.Billing.FinalDueDays == 0 {
		cfg.Billing.FinalDueDays = 30
	}

	return &cfg
}

func overrideFromEnv(cfg *Config) {
	// DB配置
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.DB.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.DB.Port = p
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.DB.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.DB.Password = password
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.DB.Name = name
	}

	// MQ配置
	if url := os.Getenv("MQ_URL"); url != "" {
		cfg.MQ.URL = url
	}

	// Redis配置
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}

	// JWT配置
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.JWT.Secret = secret
	}

	// Server配置
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Server.Port = port
	}

	// Mailer配置
	if url := os.Getenv("MAILER_BASE_URL"); url != "" {
		cfg.Mailer.BaseURL = url
	}
	if key := os.Getenv("MAILER_API_KEY"); key != "" {
		cfg.Mailer.APIKey = key
	}
	if from := os.Getenv("MAILER_FROM"); from != "" {
		cfg.Mailer.FromAddress = from
	}

	// Billing配置
	if recipients := os.Getenv("BILLING_ADMIN_RECIPIENTS"); recipients != "" {
		cfg.Billing.AdminRecipients = strings.Split(recipients, ",")
	}
	if days := os.Getenv("BILLING_FINAL_DUE_DAYS"); days != "" {
		if d, err := strconv.Atoi(days); err == nil {
			cfg.Billing.FinalDueDays = d
		}
	}
}
