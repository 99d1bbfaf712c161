package hydrate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDecoderFromFixtures(t *testing.T) {
	fx := loadFixture(t, "decode_cases.yaml")

	for _, tc := range fx.Cases {
		tc := tc
		t.Run(tc.Name, func(t *testing.T) {
			decoder := NewDecoder[notificationSettings](buildOptions(tc)...)

			result, err := decoder.Decode(Context{Selector: tc.Selector}, tc.Input)

			if tc.ExpectErr != "" {
				if err == nil {
					t.Fatalf("expected error %q, got nil", tc.ExpectErr)
				}
				if !strings.Contains(err.Error(), tc.ExpectErr) {
					t.Fatalf("expected error containing %q, got %v", tc.ExpectErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected decode error: %v", err)
			}
			if !reflect.DeepEqual(tc.Expect, result) {
				t.Fatalf("decoded value mismatch:\nwant: %#v\n got: %#v", tc.Expect, result)
			}
		})
	}
}

func TestDecoderDoesNotMutateInput(t *testing.T) {
	input := map[string]any{"quietHours": "01:00-02:00"}
	decoder := NewDecoder[notificationSettings](WithPreHook[notificationSettings](quietHoursPreHook))

	if _, err := decoder.Decode(Context{}, input); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if input["quietHours"] != "01:00-02:00" {
		t.Fatalf("expected input untouched, got %v", input["quietHours"])
	}
}

func TestDecoderBuiltInTimeHooks(t *testing.T) {
	type window struct {
		Cooldown time.Duration `json:"cooldown"`
		Since    time.Time     `json:"since"`
	}
	decoder := NewDecoder[window]()

	got, err := decoder.Decode(Context{}, map[string]any{
		"cooldown": "90s",
		"since":    "2024-01-02T03:04:05Z",
	})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Cooldown != 90*time.Second {
		t.Fatalf("expected 90s cooldown, got %v", got.Cooldown)
	}
	if !got.Since.Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Fatalf("unexpected since %v", got.Since)
	}
}

func TestDecoderScalarTarget(t *testing.T) {
	got, err := NewDecoder[int](WithWeaklyTypedInput[int]()).Decode(Context{}, "12")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != 12 {
		t.Fatalf("expected 12, got %d", got)
	}
}

func buildOptions(tc fixtureCase) []DecoderOption[notificationSettings] {
	options := []DecoderOption[notificationSettings]{}

	for _, optName := range tc.Options {
		switch optName {
		case "weak":
			options = append(options, WithWeaklyTypedInput[notificationSettings]())
		case "error_unused":
			options = append(options, WithErrorUnused[notificationSettings]())
		}
	}
	for _, hookName := range tc.PreHooks {
		if hookName == "quiet_hours_split" {
			options = append(options, WithPreHook[notificationSettings](quietHoursPreHook))
		}
	}
	for _, hookName := range tc.PostHooks {
		if hookName == "ensure_tag" {
			options = append(options, WithPostHook[notificationSettings](ensureTagPostHook))
		}
	}
	if tc.CustomDecoder == "snapshot_string" {
		options = append(options, WithCustomDecoder[notificationSettings](snapshotStringDecoder))
	}
	return options
}

func quietHoursPreHook(_ Context, value any) (any, error) {
	payload, ok := value.(map[string]any)
	if !ok {
		return value, nil
	}
	raw, ok := payload["quietHours"].(string)
	if !ok || raw == "" {
		return payload, nil
	}
	parts := strings.Split(raw, "-")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid quiet hours payload %q", raw)
	}
	payload["quietHours"] = map[string]any{
		"start": strings.TrimSpace(parts[0]),
		"end":   strings.TrimSpace(parts[1]),
	}
	return payload, nil
}

func ensureTagPostHook(ctx Context, settings *notificationSettings) error {
	if settings == nil {
		return errors.New("settings is nil")
	}
	if len(settings.Tags) > 0 {
		return nil
	}
	settings.Tags = []string{"selected:" + ctx.Selector}
	return nil
}

func snapshotStringDecoder(_ Context, value any) (notificationSettings, error) {
	var out notificationSettings
	payload, _ := value.(map[string]any)
	raw, ok := payload["snapshot"].(string)
	if !ok || raw == "" {
		return out, errors.New("missing snapshot string")
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	err := dec.Decode(&out)
	return out, err
}

type fixture struct {
	Description string        `yaml:"description"`
	Cases       []fixtureCase `yaml:"cases"`
}

type fixtureCase struct {
	Name          string               `yaml:"name"`
	Selector      string               `yaml:"selector"`
	Input         any                  `yaml:"input"`
	Expect        notificationSettings `yaml:"expect"`
	ExpectErr     string               `yaml:"expectErr"`
	PreHooks      []string             `yaml:"preHooks"`
	PostHooks     []string             `yaml:"postHooks"`
	Options       []string             `yaml:"options"`
	CustomDecoder string               `yaml:"customDecoder"`
}

type notificationSettings struct {
	Enabled    bool            `json:"enabled" yaml:"enabled"`
	QuietHours quietHours      `json:"quietHours" yaml:"quietHours"`
	Channels   channelSettings `json:"channels" yaml:"channels"`
	Limits     limits          `json:"limits" yaml:"limits"`
	Tags       []string        `json:"tags" yaml:"tags"`
}

type quietHours struct {
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
}

type channelSettings struct {
	Email channel `json:"email" yaml:"email"`
	Push  channel `json:"push" yaml:"push"`
}

type channel struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Frequency string `json:"frequency" yaml:"frequency"`
	Threshold int    `json:"threshold" yaml:"threshold"`
}

type limits struct {
	Daily   int `json:"daily" yaml:"daily"`
	Monthly int `json:"monthly" yaml:"monthly"`
}

func loadFixture(t *testing.T, name string) fixture {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("failed to read hydrate fixture %q: %v", name, err)
	}
	var fx fixture
	if err := yaml.Unmarshal(raw, &fx); err != nil {
		t.Fatalf("failed to unmarshal hydrate fixture %q: %v", name, err)
	}
	return fx
}
