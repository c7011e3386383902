// Package config собирает настройки: умолчания → файл (JSON/YAML) → BACKOFFICE_* env → флаги.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix - префикс переменных окружения.
const EnvPrefix = "BACKOFFICE_"

type Config struct {
	// админка
	Port          string `json:"port"`
	FormsDir      string `json:"formsDir"`
	CodesDir      string `json:"codesDir"`
	LocalesDir    string `json:"localesDir"`
	Locale        string `json:"locale"`
	BackendURL    string `json:"backendUrl"`
	BackendToken  string `json:"backendToken"`
	SessionSecret string `json:"sessionSecret"`
	SecureCookie  bool   `json:"secureCookie"` // за HTTPS-прокси
	WatchForms    bool   `json:"watchForms"`
	UploadMaxSize int64  `json:"uploadMaxSize"`
	LogLevel      string `json:"logLevel"`

	// dev-бэкенд (stub)
	StubPort    string `json:"stubPort"`
	StubToken   string `json:"stubToken"`
	PublicURL   string `json:"publicUrl"` // внешний адрес stub для ссылок на файлы
	DBURL       string `json:"dbUrl"`     // пусто = in-memory
	DBSchema    string `json:"dbSchema"`
	AutoMigrate bool   `json:"autoMigrate"`
	FilesRoot   string `json:"filesRoot"`
}

func Default() Config {
	return Config{
		Port:          "8080",
		FormsDir:      "forms",
		CodesDir:      "reference/codes",
		LocalesDir:    "reference/locales",
		Locale:        "en",
		BackendURL:    "http://localhost:8081",
		WatchForms:    true,
		UploadMaxSize: 20 << 20,
		LogLevel:      "info",

		StubPort:  "8081",
		DBSchema:  "backoffice",
		FilesRoot: "uploads",
	}
}

// defaults - Default() в ключах koanf.
func defaults() map[string]any {
	d := Default()
	return map[string]any{
		"port":          d.Port,
		"formsDir":      d.FormsDir,
		"codesDir":      d.CodesDir,
		"localesDir":    d.LocalesDir,
		"locale":        d.Locale,
		"backendUrl":    d.BackendURL,
		"backendToken":  d.BackendToken,
		"sessionSecret": d.SessionSecret,
		"secureCookie":  d.SecureCookie,
		"watchForms":    d.WatchForms,
		"uploadMaxSize": d.UploadMaxSize,
		"logLevel":      d.LogLevel,

		"stubPort":    d.StubPort,
		"stubToken":   d.StubToken,
		"publicUrl":   d.PublicURL,
		"dbUrl":       d.DBURL,
		"dbSchema":    d.DBSchema,
		"autoMigrate": d.AutoMigrate,
		"filesRoot":   d.FilesRoot,
	}
}

// flagKeys: имя флага → ключ конфига.
var flagKeys = map[string]string{
	"port":           "port",
	"forms":          "formsDir",
	"codes":          "codesDir",
	"locales":        "localesDir",
	"locale":         "locale",
	"backend":        "backendUrl",
	"backend-token":  "backendToken",
	"session-secret": "sessionSecret",
	"secure-cookie":  "secureCookie",
	"watch":          "watchForms",
	"upload-max":     "uploadMaxSize",
	"log-level":      "logLevel",

	"stub-port":    "stubPort",
	"stub-token":   "stubToken",
	"public-url":   "publicUrl",
	"db":           "dbUrl",
	"db-schema":    "dbSchema",
	"auto-migrate": "autoMigrate",
	"files-root":   "filesRoot",
}

// envKeys: BACKOFFICE_STUB_PORT → stubPort. Строится из ключей конфига.
var envKeys = func() map[string]string {
	out := make(map[string]string, len(flagKeys))
	for key := range defaults() {
		out[EnvPrefix+snakeUpper(key)] = key
	}
	return out
}()

// snakeUpper: uploadMaxSize → UPLOAD_MAX_SIZE, dbUrl → DB_URL.
func snakeUpper(key string) string {
	var b strings.Builder
	for i, r := range key {
		if r >= 'A' && r <= 'Z' && i > 0 {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	return strings.ToUpper(b.String())
}

// BindFlags регистрирует флаги с умолчаниями. Значения применяются в Load,
// только если флаг задан явно.
func BindFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("config", "config.json", "Path to config file (.json, .yaml)")
	fs.String("port", d.Port, "HTTP port of the admin console")
	fs.String("forms", d.FormsDir, "Path to screen DSL directory")
	fs.String("codes", d.CodesDir, "Path to code lists directory")
	fs.String("locales", d.LocalesDir, "Path to locale files directory")
	fs.String("locale", d.Locale, "UI language")
	fs.String("backend", d.BackendURL, "REST backend base URL")
	fs.String("backend-token", d.BackendToken, "Bearer token for the REST backend")
	fs.String("session-secret", d.SessionSecret, "Cookie signing secret (empty = random per run)")
	fs.Bool("secure-cookie", d.SecureCookie, "Mark the session cookie Secure (HTTPS only)")
	fs.Bool("watch", d.WatchForms, "Reload forms on change")
	fs.Int64("upload-max", d.UploadMaxSize, "Max upload size in bytes")
	fs.String("log-level", d.LogLevel, "Log level (debug/info/warn/error)")

	fs.String("stub-port", d.StubPort, "HTTP port of the dev backend")
	fs.String("stub-token", d.StubToken, "Bearer token required by the dev backend")
	fs.String("public-url", d.PublicURL, "Public base URL of the dev backend")
	fs.String("db", d.DBURL, "Postgres URL (empty = in-memory)")
	fs.String("db-schema", d.DBSchema, "Postgres schema for records")
	fs.Bool("auto-migrate", d.AutoMigrate, "Create records table on start")
	fs.String("files-root", d.FilesRoot, "Local files root")
}

// configPath: --config, иначе BACKOFFICE_CONFIG, иначе config.json. explicit -
// путь указан явно и файл обязан существовать.
func configPath(fs *pflag.FlagSet) (path string, explicit bool) {
	if fs != nil {
		if f := fs.Lookup("config"); f != nil && f.Changed {
			return f.Value.String(), true
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvPrefix + "CONFIG")); v != "" {
		return v, false
	}
	return "config.json", false
}

func parserFor(path string) koanf.Parser {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser()
	default:
		return json.Parser()
	}
}

// Load читает конфиг. fs может быть nil - тогда только файл и окружение.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func Load(fs *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load defaults: %w", err)
	}

	// файл (если существует; явно указанный обязан существовать)
	path, explicit := configPath(fs)
	if st, err := os.Stat(path); err == nil && !st.IsDir() {
		if err := k.Load(file.Provider(path), parserFor(path)); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	} else if explicit {
		return Config{}, fmt.Errorf("config %s: not found", path)
	}

	// BACKOFFICE_* поверх файла; пустые значения и неизвестные имена пропускаются
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", func(name, value string) (string, any) {
		key, ok := envKeys[name]
		value = strings.TrimSpace(value)
		if !ok || value == "" {
			return "", nil
		}
		return key, value
	}), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load env vars: %w", err)
	}

	// только явно заданные флаги
	if fs != nil {
		if err := k.Load(posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		}), nil); err != nil {
			return Config{}, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return Config{}, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.trim()
	return cfg, cfg.validate()
}

func (c *Config) trim() {
	for _, s := range []*string{
		&c.Port, &c.FormsDir, &c.CodesDir, &c.LocalesDir, &c.Locale,
		&c.BackendURL, &c.BackendToken, &c.LogLevel,
		&c.StubPort, &c.StubToken, &c.PublicURL, &c.DBURL, &c.DBSchema, &c.FilesRoot,
	} {
		*s = strings.TrimSpace(*s)
	}
}

func (c Config) validate() error {
	if c.UploadMaxSize <= 0 {
		return fmt.Errorf("uploadMaxSize must be positive, got %d", c.UploadMaxSize)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel переводит logLevel в slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return lvl, nil
}
