// Package validate holds the input checks shared by the API and the queue.
package validate

import (
	"net/url"
	"strings"

	"renderhub/internal/pkg/errors"
)

// Required fails when value is blank.
func Required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return errors.ValidationField(field, field+" is required")
	}
	return nil
}

// URL fails unless value is an absolute URL with a scheme and a host.
func URL(field, value string) error {
	if err := Required(field, value); err != nil {
		return err
	}
	u, err := url.Parse(strings.TrimSpace(value))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.ValidationField(field, field+" must be a valid URL")
	}
	return nil
}

// HTTPURL is URL restricted to the http and https schemes.
func HTTPURL(field, value string) error {
	if err := URL(field, value); err != nil {
		return err
	}
	u, _ := url.Parse(strings.TrimSpace(value))
	if s := strings.ToLower(u.Scheme); s != "http" && s != "https" {
		return errors.ValidationField(field, field+" must use http or https")
	}
	return nil
}
