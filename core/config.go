package core

import (
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Env          string
	Build        string
	Debug        bool
	TestMode     bool
	AppName      string
	SecretKey    string
	RollbarToken string

	Server struct {
		Host               string
		DebugHost          string
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
	}

	Database struct {
		Engine        string // postgres | sqlite3
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		Path          string // sqlite3 only
	}

	Storage struct {
		CloudinaryURL string
		Folder        string
	}

	Fees struct {
		Currency string
	}
}

func (c *Config) DatabaseAddress() string {
	return net.JoinHostPort(c.Database.Host, c.Database.Port)
}

// NewConfig loads the configuration from defaults, the optional `config/.env.<env>` file and the environment.
func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	v.SetDefault("build", "develop")
	v.SetDefault("debug", true)
	v.SetDefault("appName", "Feedesk")
	v.SetDefault("secretKey", "h7c!d2x&q9+ve(z=0k4wmr^s8t#y1uj3b6n*lg5p$fa)o")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("serverHost", "0.0.0.0:8000")
	v.SetDefault("serverDebugHost", "0.0.0.0:4000")
	v.SetDefault("serverShutdownTimeout", 5*time.Second)
	v.SetDefault("jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("dbEngine", "postgres")
	v.SetDefault("dbHost", "localhost")
	v.SetDefault("dbPort", "5432")
	v.SetDefault("dbName", "feedesk")
	v.SetDefault("dbUser", "feedesk")
	v.SetDefault("dbPassword", "feedesk")
	v.SetDefault("dbAdminUser", "postgres")
	v.SetDefault("dbAdminPassword", "postgres")
	v.SetDefault("dbDisableTLS", true)
	v.SetDefault("dbPath", "feedesk.db")
	v.SetDefault("cloudinaryURL", "")
	v.SetDefault("storageFolder", "feedesk")
	v.SetDefault("currency", "INR")

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}
	if env == "TEST" {
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	if wd, err := os.Getwd(); err == nil {
		dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
		if _, err := os.Stat(dotEnvPath); err == nil {
			if err := godotenv.Load(dotEnvPath); err != nil {
				log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
			}
		} else if !os.IsNotExist(err) {
			log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
		}
	}
	v.AutomaticEnv()

	conf := &Config{
		Env:          env,
		Build:        v.GetString("build"),
		Debug:        v.GetBool("debug"),
		TestMode:     v.GetBool("testMode"),
		AppName:      v.GetString("appName"),
		SecretKey:    v.GetString("secretKey"),
		RollbarToken: v.GetString("rollbarToken"),
	}
	conf.Server.Host = v.GetString("serverHost")
	conf.Server.DebugHost = v.GetString("serverDebugHost")
	conf.Server.ShutdownTimeout = v.GetDuration("serverShutdownTimeout")
	conf.Server.JWTExpirationDelta = v.GetDuration("jwtExpirationDelta")

	conf.Database.Engine = v.GetString("dbEngine")
	conf.Database.Host = v.GetString("dbHost")
	conf.Database.Port = v.GetString("dbPort")
	conf.Database.Name = v.GetString("dbName")
	conf.Database.User = v.GetString("dbUser")
	conf.Database.Password = v.GetString("dbPassword")
	conf.Database.AdminUser = v.GetString("dbAdminUser")
	conf.Database.AdminPassword = v.GetString("dbAdminPassword")
	conf.Database.DisableTLS = v.GetBool("dbDisableTLS")
	conf.Database.Path = v.GetString("dbPath")

	conf.Storage.CloudinaryURL = v.GetString("cloudinaryURL")
	conf.Storage.Folder = v.GetString("storageFolder")
	conf.Fees.Currency = v.GetString("currency")
	return conf
}
