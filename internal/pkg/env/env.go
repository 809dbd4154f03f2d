package env

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

func String(key, def string) string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return def
	}

	return val
}

func Int(key string, def int) int {
	valStr, ok := os.LookupEnv(key)
	if !ok {
		return def
	}

	var val int
	_, err := fmt.Sscanf(valStr, "%d", &val)
	if err != nil {
		return def
	}

	return val
}

func Int64(key string, def int64) int64 {
	valStr, ok := os.LookupEnv(key)
	if !ok {
		return def
	}

	var val int64
	_, err := fmt.Sscanf(valStr, "%d", &val)
	if err != nil {
		return def
	}

	return val
}

func Bool(key string, def bool) bool {
	valStr, ok := os.LookupEnv(key)
	if !ok {
		return def
	}

	switch valStr {
	case "true", "1":
		return true
	case "false", "0":
		return false
	}

	return def
}

func Duration(key string, def time.Duration) time.Duration {
	valStr, ok := os.LookupEnv(key)
	if !ok {
		return def
	}

	val, err := time.ParseDuration(valStr)
	if err != nil {
		return def
	}

	return val
}

func Url(key string, def *url.URL) *url.URL {
	val, ok := os.LookupEnv(key)
	if !ok {
		return def
	}

	parsed, err := url.Parse(val)
	if err != nil {
		return def
	}

	return parsed
}

// OneOf returns the value of key if it is one of allowed, def otherwise.
func OneOf(key, def string, allowed ...string) string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return def
	}

	for _, a := range allowed {
		if strings.EqualFold(val, a) {
			return a
		}
	}

	return def
}

// Files returns the comma separated list of paths stored in key.
func Files(key string) []string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}

	var files []string
	for _, f := range strings.Split(val, ",") {
		if f = strings.TrimSpace(f); f != "" {
			files = append(files, f)
		}
	}

	return files
}
