package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/spf13/pflag"
	"gopkg.in/ini.v1"

	"github.com/MimeLyc/ytscribe/pkg/log"
)

// optionEnv maps config file options that have an environment variable to it,
// so they rank below the environment.
var optionEnv = map[string]string{
	"replicate-api-token": "REPLICATE_API_TOKEN",
	"token":               "REPLICATE_API_TOKEN",
	"debug":               "DEBUG",
	"retries":             "YTDLP_RETRIES",
	"fragment-retries":    "YTDLP_FRAGMENT_RETRIES",
	"language":            "TRANSCRIBE_LANGUAGE",
}

var envNamePattern = regexp.MustCompile(`^[A-Z_][A-Z0-9_]*$`)

// fileSettings holds the values of a config file.
//
// The file uses long option names ("replicate-api-token = r8_..."), and also accepts
// environment variable names ("REPLICATE_API_TOKEN=r8_...").
type fileSettings struct {
	env     map[string]string
	options map[string]string
}

// readConfigFile parses path. A missing file is only an error when required is set.
func readConfigFile(path string, required bool) (*fileSettings, error) {
	settings := &fileSettings{env: map[string]string{}, options: map[string]string{}}
	if path == "" {
		return settings, nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return settings, nil
		}
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	file, err := ini.LoadSources(ini.LoadOptions{
		AllowBooleanKeys:        true,
		SkipUnrecognizableLines: true,
	}, path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	// sections carry no meaning, keys are read from all of them
	for _, section := range file.Sections() {
		for _, key := range section.Keys() {
			name, value := splitKey(key.Name(), key.String())
			switch {
			case optionEnv[name] != "":
				settings.env[optionEnv[name]] = value
			case envNamePattern.MatchString(name):
				settings.env[name] = value
			default:
				settings.options[name] = value
			}
		}
	}

	log.Debug("Loaded %d values from %s", len(settings.env)+len(settings.options), path)
	return settings, nil
}

// splitKey handles "--name" keys and the "name value" form, which the parser reads
// as a boolean key.
func splitKey(name, value string) (string, string) {
	name = strings.TrimPrefix(strings.TrimSpace(name), "--")
	if i := strings.IndexFunc(name, unicode.IsSpace); i > 0 && value == "true" {
		return name[:i], strings.TrimSpace(name[i:])
	}
	return name, value
}

// applyOptions sets flags from config file options unless given on the command line.
func (s *fileSettings) applyOptions(flags *pflag.FlagSet, path string) error {
	names := make([]string, 0, len(s.options))
	for name := range s.options {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		flag := flags.Lookup(name)
		if flag == nil || name == "config" {
			log.Warn("Ignoring unknown option %q in %s", name, path)
			continue
		}
		if flag.Changed {
			continue
		}

		value := s.options[name]
		if flag.Value.Type() == "bool" {
			var on Switch
			if err := on.UnmarshalText([]byte(value)); err != nil {
				return fmt.Errorf("config file %s: option %s: %w", path, name, err)
			}
			value = strconv.FormatBool(bool(on))
		}
		if err := flags.Set(name, value); err != nil {
			return fmt.Errorf("config file %s: option %s: %w", path, name, err)
		}
	}
	return nil
}
