package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Env returns the trimmed value of k, or def when unset or blank.
func Env(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}

// MustEnv returns the trimmed value of k and panics when it is blank.
func MustEnv(k string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		panic("missing env: " + k)
	}
	return v
}

func envString(k string, dst *string) {
	if v := Env(k, ""); v != "" {
		*dst = v
	}
}

func envList(k string, dst *[]string) {
	v := Env(k, "")
	if v == "" {
		return
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	*dst = out
}

func envBool(k string, dst *bool) error {
	v := Env(k, "")
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", k, err)
	}
	*dst = b
	return nil
}

func envInt(k string, dst *int) error {
	v := Env(k, "")
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", k, err)
	}
	*dst = n
	return nil
}

func envFloat(k string, dst *float64) error {
	v := Env(k, "")
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", k, err)
	}
	*dst = f
	return nil
}

func envDuration(k string, dst *time.Duration) error {
	v := Env(k, "")
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", k, err)
	}
	*dst = d
	return nil
}

type envErrors []error

func (e *envErrors) add(err error) {
	if err != nil {
		*e = append(*e, err)
	}
}

func (e envErrors) err() error {
	return errors.Join(e...)
}
