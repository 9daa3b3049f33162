package gcs

import (
	"errors"
	"testing"
)

func clearStorageEnv(t *testing.T) {
	t.Helper()
	t.Setenv("OBJECT_STORAGE_MODE", "")
	t.Setenv("STORAGE_EMULATOR_HOST", "")
	t.Setenv("LOCAL_STORAGE_ROOT", "")
}

func TestResolveObjectStorageConfigFromEnv(t *testing.T) {
	cases := []struct {
		name         string
		mode         string
		emulatorHost string
		localRoot    string
		wantMode     ObjectStorageMode
		wantFallback bool
	}{
		{name: "default is gcs", wantMode: ObjectStorageModeGCS},
		{name: "explicit gcs", mode: "gcs", wantMode: ObjectStorageModeGCS},
		{name: "explicit emulator", mode: "gcs_emulator", emulatorHost: "http://fake-gcs:4443", wantMode: ObjectStorageModeGCSEmulator},
		{name: "explicit local", mode: "local", localRoot: "/tmp/blobs", wantMode: ObjectStorageModeLocal},
		{name: "mode is case insensitive", mode: "LOCAL", localRoot: "/tmp/blobs", wantMode: ObjectStorageModeLocal},
		{name: "emulator host implies emulator", emulatorHost: "http://fake-gcs:4443", wantMode: ObjectStorageModeGCSEmulator, wantFallback: true},
		{name: "local root implies local", localRoot: "/tmp/blobs", wantMode: ObjectStorageModeLocal, wantFallback: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearStorageEnv(t)
			t.Setenv("OBJECT_STORAGE_MODE", tc.mode)
			t.Setenv("STORAGE_EMULATOR_HOST", tc.emulatorHost)
			t.Setenv("LOCAL_STORAGE_ROOT", tc.localRoot)

			cfg, err := ResolveObjectStorageConfigFromEnv()
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if cfg.Mode != tc.wantMode {
				t.Fatalf("mode: want=%s got=%s", tc.wantMode, cfg.Mode)
			}
			if cfg.CompatibilityFallback != tc.wantFallback {
				t.Fatalf("fallback: want=%v got=%v", tc.wantFallback, cfg.CompatibilityFallback)
			}
		})
	}
}

func TestResolveLocalModeDefaultsRoot(t *testing.T) {
	clearStorageEnv(t)
	t.Setenv("OBJECT_STORAGE_MODE", "local")

	cfg, err := ResolveObjectStorageConfigFromEnv()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.LocalRoot != "data/blobs" {
		t.Fatalf("local root default: %q", cfg.LocalRoot)
	}
}

func TestResolveObjectStorageConfigErrors(t *testing.T) {
	cases := []struct {
		name         string
		mode         string
		emulatorHost string
		wantCode     ObjectStorageConfigErrorCode
	}{
		{name: "unknown mode", mode: "s3", wantCode: ObjectStorageConfigErrorInvalidMode},
		{name: "emulator without host", mode: "gcs_emulator", wantCode: ObjectStorageConfigErrorMissingEmulatorHost},
		{name: "emulator with bad host", mode: "gcs_emulator", emulatorHost: "fake-gcs:4443", wantCode: ObjectStorageConfigErrorInvalidEmulatorHost},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearStorageEnv(t)
			t.Setenv("OBJECT_STORAGE_MODE", tc.mode)
			t.Setenv("STORAGE_EMULATOR_HOST", tc.emulatorHost)

			_, err := ResolveObjectStorageConfigFromEnv()
			var cfgErr *ObjectStorageConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("want ObjectStorageConfigError, got %v", err)
			}
			if cfgErr.Code != tc.wantCode {
				t.Fatalf("code: want=%s got=%s", tc.wantCode, cfgErr.Code)
			}
		})
	}
}

func TestValidateObjectStorageConfigMissingLocalRoot(t *testing.T) {
	err := ValidateObjectStorageConfig(ObjectStorageConfig{Mode: ObjectStorageModeLocal})
	var cfgErr *ObjectStorageConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Code != ObjectStorageConfigErrorMissingLocalRoot {
		t.Fatalf("want missing_local_root, got %v", err)
	}
}
