package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Game.MaxParticipants != 20 {
		t.Fatalf("expected default participant bound 20, got %d", cfg.Game.MaxParticipants)
	}
	if cfg.Game.DefaultSynthesis != "mock" || cfg.Game.DefaultRecognition != "mock" {
		t.Fatalf("expected mock backend defaults, got %q/%q", cfg.Game.DefaultSynthesis, cfg.Game.DefaultRecognition)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ECHOTRAIL_GAME_MAX_PARTICIPANTS", "8")
	t.Setenv("ECHOTRAIL_GAME_DEFAULT_PARTICIPANTS", "2")
	t.Setenv("ECHOTRAIL_GAME_DEFAULT_SYNTHESIS", "edge")
	t.Setenv("ECHOTRAIL_GAME_DEFAULT_RECOGNITION", "whisper-exec")
	t.Setenv("ECHOTRAIL_STT_COMMAND", "whisper-cli")
	t.Setenv("ECHOTRAIL_TTS_CACHE_ENABLED", "true")
	t.Setenv("ECHOTRAIL_TTS_CACHE_PATH", "./tmp/clips.db")
	t.Setenv("ECHOTRAIL_HTTP_ALLOWED_ORIGINS", "https://one.test, https://two.test")
	t.Setenv("ECHOTRAIL_BUS_ENABLED", "true")
	t.Setenv("ECHOTRAIL_BUS_SERVERS", "nats://one:4222, nats://two:4222")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Game.MaxParticipants != 8 || cfg.Game.DefaultParticipants != 2 {
		t.Fatalf("expected game overrides, got %+v", cfg.Game)
	}
	if cfg.Game.DefaultSynthesis != "edge" || cfg.Game.DefaultRecognition != "whisper-exec" {
		t.Fatalf("expected backend key overrides, got %+v", cfg.Game)
	}
	if cfg.STT.Command != "whisper-cli" {
		t.Fatalf("expected stt command override, got %q", cfg.STT.Command)
	}
	if !cfg.TTS.Cache.Enabled || cfg.TTS.Cache.Path != "./tmp/clips.db" {
		t.Fatalf("expected cache overrides, got %+v", cfg.TTS.Cache)
	}
	if len(cfg.HTTP.AllowedOrigins) != 2 {
		t.Fatalf("expected 2 origins, got %v", cfg.HTTP.AllowedOrigins)
	}
	if !cfg.Bus.Enabled || len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected bus overrides, got %+v", cfg.Bus)
	}
}

func TestValidateRejectsBadParticipants(t *testing.T) {
	t.Setenv("ECHOTRAIL_GAME_MAX_PARTICIPANTS", "0")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for zero participant bound")
	}
}

func TestValidateRejectsDefaultAboveBound(t *testing.T) {
	t.Setenv("ECHOTRAIL_GAME_MAX_PARTICIPANTS", "3")
	t.Setenv("ECHOTRAIL_GAME_DEFAULT_PARTICIPANTS", "4")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for default above bound")
	}
}
