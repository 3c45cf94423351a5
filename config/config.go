package config

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tcriess/clubchat/globals"
)

const (
	defaultAddr            = "localhost:8000"
	defaultLogLevel        = "INFO"
	defaultPersistenceType = "buntdb"
	defaultPersistenceDSN  = ":memory:"
	defaultMongoDatabase   = "clubchat"
	defaultNotifier        = "local"
	defaultRedisChannel    = "clubchat:chats"
	defaultSubscriberQueue = 16
	defaultChatCacheSize   = 1024
	defaultSuperFilter     = `Participant.Role == "superadmin"`
	defaultManageFilter    = `Participant.Id == Chat.CreatorId`
	defaultRetentionCron   = "@daily"
)

// Config is the global configuration object which is filled via the configuration file, the
// command line flags and CLUBCHAT_* environment variables.
type Config struct {
	Addr                  string            `mapstructure:"addr"`
	LogLevel              string            `mapstructure:"log_level"`
	SuperUsers            []string          `mapstructure:"super_users"`
	AllowInsecureIdentity bool              `mapstructure:"allow_insecure_identity"`
	ChatCacheSize         int               `mapstructure:"chat_cache_size"`
	OIDCConfigs           []OIDCConfig      `mapstructure:"oidc"`
	PersistenceConfig     PersistenceConfig `mapstructure:"persistence"`
	FeedConfig            FeedConfig        `mapstructure:"feed"`
	AccessConfig          AccessConfig      `mapstructure:"access"`
	RetentionConfig       RetentionConfig   `mapstructure:"retention"`
}

// An OIDCConfig  object configures an OpenID Connect provider that is used to authenticate users. Users provide
// an ID token and the name of the provider, the authentication is then performed via verification of the token.
type OIDCConfig struct {
	Name        string `mapstructure:"name"`
	ClientId    string `mapstructure:"client_id"`
	ProviderUrl string `mapstructure:"provider_url"` // f.e. "https://accounts.google.com", this is used to construct the discovery url and subsequently discover the openid endpoints
}

// PersistenceConfig selects the storage backend. Type is one of buntdb, sqlite, postgres or mongo.
// For buntdb the DSN is a file name (or ":memory:"), for mongo it is the connection URI and
// Database names the database.
type PersistenceConfig struct {
	Type      string `mapstructure:"type"`
	DSN       string `mapstructure:"dsn"`
	Database  string `mapstructure:"database"`
	FlockPath string `mapstructure:"flock_path"`
}

// FeedConfig configures how chat changes are propagated to subscribers. With the redis notifier,
// several server processes sharing one database see each other's writes.
type FeedConfig struct {
	Notifier        string `mapstructure:"notifier"`
	RedisAddr       string `mapstructure:"redis_addr"`
	RedisPassword   string `mapstructure:"redis_password"`
	RedisDB         int    `mapstructure:"redis_db"`
	RedisChannel    string `mapstructure:"redis_channel"`
	SubscriberQueue int    `mapstructure:"subscriber_queue"`
}

// AccessConfig holds the expr rules deciding super-privileged participants and who may manage a chat.
type AccessConfig struct {
	SuperFilter  string `mapstructure:"super_filter"`
	ManageFilter string `mapstructure:"manage_filter"`
}

// RetentionConfig configures the purge of closed chats. A zero ClosedChatTTL disables the purge.
type RetentionConfig struct {
	Cron          string        `mapstructure:"cron"`
	ClosedChatTTL time.Duration `mapstructure:"closed_chat_ttl"`
}

func GetFlagSet() *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("configuration", pflag.ContinueOnError)
	flagSet.String("addr", defaultAddr, "service address (including port)")
	flagSet.String("log-level", defaultLogLevel, "log level (TRACE, DEBUG, INFO, WARN, ERROR)")
	flagSet.StringSlice("super-users", nil, "ids of super-privileged participants")
	return flagSet
}

// wordSepNormalizeFunc allows for normalization of the flag names (which use - as a separator)
func wordSepNormalizeFunc(f *pflag.FlagSet, name string) pflag.NormalizedName {
	from := "-"
	to := "_"
	name = strings.Replace(name, from, to, -1)
	return pflag.NormalizedName(name)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", defaultAddr)
	v.SetDefault("log_level", defaultLogLevel)
	v.SetDefault("chat_cache_size", defaultChatCacheSize)
	v.SetDefault("persistence.type", defaultPersistenceType)
	v.SetDefault("persistence.dsn", defaultPersistenceDSN)
	v.SetDefault("persistence.database", defaultMongoDatabase)
	v.SetDefault("feed.notifier", defaultNotifier)
	v.SetDefault("feed.redis_channel", defaultRedisChannel)
	v.SetDefault("feed.subscriber_queue", defaultSubscriberQueue)
	v.SetDefault("access.super_filter", defaultSuperFilter)
	v.SetDefault("access.manage_filter", defaultManageFilter)
	v.SetDefault("retention.cron", defaultRetentionCron)
	v.SetDefault("retention.closed_chat_ttl", time.Duration(0))
}

// ReadConfiguration reads and parses the configuration located at configPath, which can either point to a single TOML
// file or to a directory, in which case all *.toml files in this directory are concatenated. It returns a Config
// object. flagSet may be nil.
func ReadConfiguration(configPath string, flagSet *pflag.FlagSet) (*Config, error) {
	cfg := Config{}
	v := viper.New()
	setDefaults(v)
	if flagSet != nil {
		flagSet.SetNormalizeFunc(wordSepNormalizeFunc)
		err := v.BindPFlags(flagSet)
		if err != nil {
			globals.AppLogger.Error("could not bind flags (ignored)", "error", err)
		}
	}
	v.SetEnvPrefix("CLUBCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if configPath != "" {
		fi, err := os.Stat(configPath)
		if err != nil {
			return nil, err
		}
		contents := make([]byte, 0)
		files := []string{configPath}
		if fi.IsDir() {
			files, err = filepath.Glob(filepath.Join(configPath, "*.toml"))
			if err != nil {
				return nil, err
			}
		}
		for _, configFile := range files {
			fileContents, err := ioutil.ReadFile(configFile)
			if err != nil {
				return nil, err
			}
			contents = append(contents, fileContents...)
			contents = append(contents, '\n')
		}
		v.SetConfigType("toml")
		err = v.ReadConfig(bytes.NewBuffer(contents))
		if err != nil {
			return nil, err
		}
	}
	err := v.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	globals.AppLogger.Debug("config", "cfg", cfg)
	return &cfg, nil
}

// IsSuperUser reports whether participantId is listed in super_users.
func (c *Config) IsSuperUser(participantId string) bool {
	for _, id := range c.SuperUsers {
		if id == participantId {
			return true
		}
	}
	return false
}
