package config

import (
	"os"
	"reflect"
	"strings"

	"github.com/disgoorg/snowflake/v2"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// ChannelID is the channel whose visible members are exported.
const ChannelID snowflake.ID = 1355211248131641506

const (
	DefaultOutputDir = "obsidian_notes"
	DefaultEnvFile   = ".env"
)

var ErrMissingToken = errors.New("DISCORD_USER_TOKEN not found in environment variables")

type Configuration struct {
	Token     string       `mapstructure:"discord_user_token"`
	GuildID   snowflake.ID `mapstructure:"discord_guild_id"`
	OutputDir string       `mapstructure:"output_dir"`
}

// Validate reports configuration problems that must stop the program
// before any connection is attempted.
func (c Configuration) Validate() error {
	if c.Token == "" {
		return ErrMissingToken
	}
	return nil
}

// Load reads the configuration. The environment wins over the optional
// YAML config file, which wins over values found in envFile.
func Load(v *viper.Viper, envFile, configFile string) (Configuration, error) {
	var c Configuration

	v.SetDefault("discord_guild_id", "0")
	v.SetDefault("output_dir", DefaultOutputDir)

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yml")
		if err := v.ReadInConfig(); err != nil {
			return c, errors.Wrapf(err, "reading config file %q", configFile)
		}
	}

	if envFile != "" {
		vals, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			for k, val := range vals {
				v.SetDefault(strings.ToLower(k), val)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return c, errors.Wrapf(err, "reading env file %q", envFile)
		}
	}

	for _, key := range []string{"discord_user_token", "discord_guild_id", "output_dir"} {
		if err := v.BindEnv(key, strings.ToUpper(key)); err != nil {
			return c, err
		}
	}

	err := v.Unmarshal(&c, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		snowflakeHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
	)))
	if err != nil {
		return c, errors.Wrap(err, "decoding configuration")
	}
	return c, nil
}

func snowflakeHookFunc() mapstructure.DecodeHookFuncType {
	idType := reflect.TypeOf(snowflake.ID(0))
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if t != idType {
			return data, nil
		}
		switch d := data.(type) {
		case string:
			d = strings.TrimSpace(d)
			if d == "" {
				return snowflake.ID(0), nil
			}
			id, err := snowflake.Parse(d)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid snowflake %q", d)
			}
			return id, nil
		case int:
			if d < 0 {
				return nil, errors.Errorf("invalid snowflake %d", d)
			}
			return snowflake.ID(d), nil
		case uint64:
			return snowflake.ID(d), nil
		}
		return data, nil
	}
}
