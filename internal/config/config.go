package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

type Config struct {
	App struct {
		Env            string
		Timezone       string
		LowStockFactor float64 `mapstructure:"low_stock_factor"`
	} `mapstructure:"app"`

	Telegram struct {
		Token       string
		AdminChatID int64 `mapstructure:"admin_chat_id"`
		Timeout     int
	} `mapstructure:"telegram"`

	HTTP struct {
		Addr string
	} `mapstructure:"http"`

	Postgres struct {
		DSN string
	} `mapstructure:"postgres"`

	Redis struct {
		Enabled bool
		Addr    string
	} `mapstructure:"redis"`

	Metrics struct {
		Enabled bool
	} `mapstructure:"metrics"`

	Auth struct {
		JWTSecret string        `mapstructure:"jwt_secret"`
		TokenTTL  time.Duration `mapstructure:"token_ttl"`

		// учётка админа для HTTP API, создаётся при старте, если задана
		AdminLogin    string `mapstructure:"admin_login"`
		AdminPassword string `mapstructure:"admin_password"`
	} `mapstructure:"auth"`

	Bootstrap struct {
		Workbook string
		Required bool
	} `mapstructure:"bootstrap"`
}

// Load читает YAML-конфиг; переменные окружения APP_* перекрывают значения из файла.
// .env рядом с бинарником подхватывается, если он есть.
func Load(path string) (Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("app.env", "prod")
	v.SetDefault("app.timezone", "America/Sao_Paulo")
	v.SetDefault("app.low_stock_factor", 1.2)
	v.SetDefault("telegram.timeout", 30)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("auth.token_ttl", "12h")

	var c Config
	if err := v.ReadInConfig(); err != nil {
		return c, err
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	return c, nil
}

// Location возвращает часовой пояс, в котором показываются отметки времени.
// В базе всё хранится в UTC.
func (c Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.App.Timezone)
}
