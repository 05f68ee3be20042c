package configs

import (
	"strings"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ENGINE_TIMEOUT", "")
	t.Setenv("TESSERACT_LANGUAGES", "")
	t.Setenv("SEGMENTATION_MASK_THRESHOLD", "")
	LoadConfig()

	if ENGINE_TIMEOUT != 30*time.Second {
		t.Fatalf("ENGINE_TIMEOUT = %s", ENGINE_TIMEOUT)
	}
	if MAX_SOURCE_DIMENSION != 2000 || MAX_UPLOAD_BYTES != 10<<20 {
		t.Fatalf("dimension/upload defaults = %d/%d", MAX_SOURCE_DIMENSION, MAX_UPLOAD_BYTES)
	}
	if len(TESSERACT_LANGUAGES) != 1 || TESSERACT_LANGUAGES[0] != "eng" {
		t.Fatalf("TESSERACT_LANGUAGES = %v", TESSERACT_LANGUAGES)
	}
	if SEGMENTATION_MASK_THRESHOLD != 0.3 {
		t.Fatalf("SEGMENTATION_MASK_THRESHOLD = %v", SEGMENTATION_MASK_THRESHOLD)
	}
	if MISTRAL_ENABLED {
		t.Fatalf("mistral must be off by default")
	}
	if err := Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("ENGINE_TIMEOUT", "45")
	t.Setenv("TESSERACT_LANGUAGES", "eng+tha, jpn")
	t.Setenv("ENABLE_ADVANCED_PREPROCESSING", "false")
	t.Setenv("MASK_CACHE_TTL", "2m")
	LoadConfig()

	if ENGINE_TIMEOUT != 45*time.Second {
		t.Fatalf("ENGINE_TIMEOUT = %s", ENGINE_TIMEOUT)
	}
	if strings.Join(TESSERACT_LANGUAGES, ",") != "eng,tha,jpn" {
		t.Fatalf("TESSERACT_LANGUAGES = %v", TESSERACT_LANGUAGES)
	}
	if r := RunnerSettings(); r.EnableAdvancedPreprocessing || r.EngineTimeout != 45*time.Second {
		t.Fatalf("RunnerSettings = %+v", r)
	}
	t.Setenv("SEGMENTATION_MASK_THRESHOLD", "0")
	LoadConfig()
	if i := IsolatorSettings(); i.CacheTTL != 2*time.Minute || i.MaskThreshold != 0 {
		t.Fatalf("IsolatorSettings = %+v", i)
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	LoadConfig()
	ENGINE_TIMEOUT = 0
	MAX_PARALLEL_ATTEMPTS = 0
	LOG_FORMAT = "xml"
	SEGMENTATION_MASK_THRESHOLD = 1.5
	defer LoadConfig()

	err := Validate()
	if err == nil {
		t.Fatalf("expected validation errors")
	}
	for _, key := range []string{"ENGINE_TIMEOUT", "MAX_PARALLEL_ATTEMPTS", "LOG_FORMAT", "SEGMENTATION_MASK_THRESHOLD"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("error %q does not mention %s", err, key)
		}
	}
}
