package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// DefaultCategoryLimits — лимиты квот по категориям маршрутов по умолчанию.
// Переопределяются секцией quota.category_limits, читает их только tracker.
var DefaultCategoryLimits = map[string]int{
	"main-loop":   70,
	"loop-branch": 35,
	"alternate":   35,
	"diverse":     40,
	"default":     30,
}

type Config struct {
	App struct {
		Env string
	} `mapstructure:"app"`

	Telegram struct {
		Token       string
		AdminChatID int64         `mapstructure:"admin_chat_id"`
		PollTimeout int           `mapstructure:"poll_timeout"` // секунды long polling
		SendTimeout time.Duration `mapstructure:"send_timeout"`
	} `mapstructure:"telegram"`

	HTTP struct {
		Addr string
	} `mapstructure:"http"`

	Postgres struct {
		DSN string
	} `mapstructure:"postgres"`

	Metrics struct {
		Enabled bool
	} `mapstructure:"metrics"`

	Storage struct {
		Driver string // postgres | memory
	} `mapstructure:"storage"`

	Survey struct {
		DefinitionsPath string `mapstructure:"definitions_path"`
	} `mapstructure:"survey"`

	Quota struct {
		CategoryLimits map[string]int `mapstructure:"category_limits"`
	} `mapstructure:"quota"`

	Admission struct {
		Timeout  time.Duration
		Attempts int
		Backoff  time.Duration
	} `mapstructure:"admission"`

	Admin struct {
		Token string
	} `mapstructure:"admin"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "prod")
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.admin_chat_id", 0)
	v.SetDefault("telegram.poll_timeout", 60)
	v.SetDefault("telegram.send_timeout", 5*time.Second)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("storage.driver", "postgres")
	v.SetDefault("survey.definitions_path", "config/surveys.yaml")
	v.SetDefault("quota.category_limits", DefaultCategoryLimits)
	v.SetDefault("admission.timeout", 2*time.Second)
	v.SetDefault("admission.attempts", 3)
	v.SetDefault("admission.backoff", 50*time.Millisecond)
	v.SetDefault("admin.token", "")
}

func Load(path string) (Config, error) {
	// .env необязателен
	if err := gotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var c Config
	if err := v.ReadInConfig(); err != nil {
		return c, err
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	return c, nil
}
