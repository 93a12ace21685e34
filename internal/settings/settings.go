// Package settings holds the persisted job settings an operator provides
// before the first run, stored next to the cursor in the kv store.
package settings

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"mailbatch/internal/kv"
)

const (
	KeyBatchSize   = "BATCH_SIZE"
	KeyTargetEmail = "TARGET_SEND_TO_EMAIL"
	KeySubject     = "EMAIL_SUBJECT"

	ImageSuffix = "-img"
	Placeholder = "put value here"
)

var ErrMissingSettings = errors.New("missing required settings")

var settingsValidator = validator.New(validator.WithRequiredStructEnabled())

// Required lists the mandatory keys in the order they are reported.
var Required = []string{KeyTargetEmail, KeySubject, KeyBatchSize}

var descriptions = map[string]string{
	KeyTargetEmail: "the main email address to send to",
	KeySubject:     "subject line",
	KeyBatchSize:   "how many emails get sent per batch",
}

type ConfigurationError struct {
	Invalid []string
}

func (e *ConfigurationError) Error() string {
	parts := make([]string, 0, len(Required))
	for _, key := range Required {
		parts = append(parts, fmt.Sprintf("%s (%s)", key, descriptions[key]))
	}

	return fmt.Sprintf(
		"missing required settings to run the email job: %s. Please set these settings before running: %s",
		strings.Join(e.Invalid, ", "),
		strings.Join(parts, ", "),
	)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrMissingSettings
}

type Settings struct {
	BatchSize   int    `validate:"gt=0"`
	TargetEmail string `validate:"required,email"`
	Subject     string `validate:"required"`
	// Images maps a content id such as "logo-img" to an asset identifier.
	Images map[string]string
}

var fieldKeys = map[string]string{
	"BatchSize":   KeyBatchSize,
	"TargetEmail": KeyTargetEmail,
	"Subject":     KeySubject,
}

// Load reads and validates the settings. A *ConfigurationError is returned
// when any required setting is absent or unusable.
func Load(ctx context.Context, store kv.Store) (Settings, error) {
	all, err := store.List(ctx, "")
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read settings: %w", err)
	}

	s := Settings{
		TargetEmail: strings.TrimSpace(all[KeyTargetEmail]),
		Subject:     strings.TrimSpace(all[KeySubject]),
		Images:      map[string]string{},
	}
	// A BATCH_SIZE that does not parse stays zero and fails validation.
	s.BatchSize, _ = strconv.Atoi(strings.TrimSpace(all[KeyBatchSize]))

	for key, value := range all {
		if strings.HasSuffix(key, ImageSuffix) && strings.TrimSpace(value) != "" {
			s.Images[key] = strings.TrimSpace(value)
		}
	}

	if err := s.validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s Settings) validate() error {
	var invalid []string

	if err := settingsValidator.Struct(s); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			return err
		}
		for _, fe := range validationErrors {
			invalid = append(invalid, fieldKeys[fe.Field()])
		}
	}

	// The seeded placeholder passes "required" but is never a usable subject.
	if s.Subject == Placeholder {
		invalid = append(invalid, KeySubject)
	}
	if len(invalid) == 0 {
		return nil
	}
	sort.Slice(invalid, func(i, j int) bool {
		return requiredPosition(invalid[i]) < requiredPosition(invalid[j])
	})

	return &ConfigurationError{Invalid: invalid}
}

func requiredPosition(key string) int {
	for i, k := range Required {
		if k == key {
			return i
		}
	}
	return len(Required)
}

// ImageKeys returns the configured content ids in a stable order.
func (s Settings) ImageKeys() []string {
	keys := make([]string, 0, len(s.Images))
	for key := range s.Images {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Seed writes the placeholder value for every required key that is absent
// and returns the keys it wrote.
func Seed(ctx context.Context, store kv.Store) ([]string, error) {
	var seeded []string
	for _, key := range Required {
		value, err := store.Get(ctx, key)
		if err != nil && !errors.Is(err, kv.ErrNotFound) {
			return seeded, fmt.Errorf("failed to read setting %s: %w", key, err)
		}
		if value != "" {
			continue
		}

		if err := store.Set(ctx, key, Placeholder); err != nil {
			return seeded, fmt.Errorf("failed to seed setting %s: %w", key, err)
		}
		seeded = append(seeded, key)
	}
	return seeded, nil
}

// Set writes a single setting. Only the required keys and image keys are accepted.
func Set(ctx context.Context, store kv.Store, key string, value string) error {
	if !IsSettingKey(key) {
		return fmt.Errorf("unknown setting %q: expected one of %s or a key ending in %q",
			key, strings.Join(Required, ", "), ImageSuffix)
	}
	return store.Set(ctx, key, value)
}

func IsSettingKey(key string) bool {
	if strings.HasSuffix(key, ImageSuffix) && len(key) > len(ImageSuffix) {
		return true
	}
	return requiredPosition(key) < len(Required)
}
