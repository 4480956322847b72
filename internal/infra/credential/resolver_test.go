package credential

import "testing"

func TestEnvResolver(t *testing.T) {
	t.Setenv("KEY_weather", "s3cret")
	t.Setenv("KEY_empty", "")

	r := NewEnvResolver("")

	if v, ok := r.Resolve("weather"); !ok || v != "s3cret" {
		t.Errorf("expected s3cret, got %q %v", v, ok)
	}
	if _, ok := r.Resolve("empty"); ok {
		t.Error("empty value must count as not found")
	}
	if _, ok := r.Resolve("billing"); ok {
		t.Error("expected billing to be unknown")
	}
	if _, ok := r.Resolve(""); ok {
		t.Error("expected empty function name to be unknown")
	}
}

func TestEnvResolver_ReadsAtCallTime(t *testing.T) {
	r := NewEnvResolver("FN_")
	if _, ok := r.Resolve("weather"); ok {
		t.Fatal("expected unknown before the variable exists")
	}

	t.Setenv("FN_weather", "rotated")
	if v, ok := r.Resolve("weather"); !ok || v != "rotated" {
		t.Errorf("expected value set after construction, got %q %v", v, ok)
	}
}

func TestMapResolver_CopiesInput(t *testing.T) {
	keys := map[string]string{"weather": "a"}
	r := NewMapResolver(keys)
	keys["weather"] = "b"

	if v, _ := r.Resolve("weather"); v != "a" {
		t.Errorf("resolver must not observe later writes, got %q", v)
	}
}

func TestChain(t *testing.T) {
	t.Setenv("KEY_weather", "from-env")

	r := Chain(NewEnvResolver(""), NewMapResolver(map[string]string{
		"weather":     "from-file",
		"syncCompany": "file-only",
	}))

	if v, _ := r.Resolve("weather"); v != "from-env" {
		t.Errorf("expected env to win, got %q", v)
	}
	if v, _ := r.Resolve("syncCompany"); v != "file-only" {
		t.Errorf("expected file fallback, got %q", v)
	}
	if _, ok := r.Resolve("billing"); ok {
		t.Error("expected billing to be unknown")
	}
}
