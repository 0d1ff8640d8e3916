package config

import (
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "FRONTEND_ORIGIN", "DATABASE_URL", "FAQ_DATABASE_URL", "PERSONA_SEED_FILE",
		"QNA_FAQ_TOP_K", "QNA_TERMS_TOP_K", "QNA_REFRESH_CRON",
		"ANSWER_BACKEND", "LLM_SERVER_URL", "MCP_SERVER_URL", "ANSWER_TIMEOUT_SECONDS",
		"ARK_API_KEY", "ARK_ACCESS_KEY", "ARK_SECRET_KEY", "Model",
		"ARK_TEMPERATURE", "ARK_TOP_P", "ARK_MAX_TOKENS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_SERVER_URL", "http://llm.internal:8000/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if cfg.Server.Addr != ":8080" || cfg.Server.FrontendOrigin != "*" {
		t.Fatalf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Database.URL != "sqlite://chat-relay.db" || cfg.Database.FAQURL != "" {
		t.Fatalf("unexpected database config: %+v", cfg.Database)
	}
	if cfg.QnA.FAQTopK != 3 || cfg.QnA.TermsTopK != 6 {
		t.Fatalf("unexpected qna config: %+v", cfg.QnA)
	}
	if cfg.Answer.Backend != BackendHTTP || cfg.Answer.Timeout != 30*time.Second {
		t.Fatalf("unexpected answer config: %+v", cfg.Answer)
	}
	if cfg.Answer.LLMServerURL != "http://llm.internal:8000" {
		t.Fatalf("trailing slash should be trimmed, got %q", cfg.Answer.LLMServerURL)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("LLM_SERVER_URL", "http://llm")
	t.Setenv("MCP_SERVER_URL", "http://mcp")
	t.Setenv("QNA_FAQ_TOP_K", "5")
	t.Setenv("QNA_REFRESH_CRON", "*/10 * * * *")
	t.Setenv("ANSWER_TIMEOUT_SECONDS", "12")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9000" {
		t.Fatalf("unexpected addr %q", cfg.Server.Addr)
	}
	if cfg.QnA.FAQTopK != 5 || cfg.QnA.RefreshCron != "*/10 * * * *" {
		t.Fatalf("unexpected qna config: %+v", cfg.QnA)
	}
	if cfg.Answer.MCPServerURL != "http://mcp" || cfg.Answer.Timeout != 12*time.Second {
		t.Fatalf("unexpected answer config: %+v", cfg.Answer)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"bad port", map[string]string{"PORT": "80 80", "LLM_SERVER_URL": "http://llm"}},
		{"bad top k", map[string]string{"QNA_TERMS_TOP_K": "zero", "LLM_SERVER_URL": "http://llm"}},
		{"negative top k", map[string]string{"QNA_FAQ_TOP_K": "-1", "LLM_SERVER_URL": "http://llm"}},
		{"unknown backend", map[string]string{"ANSWER_BACKEND": "grpc", "LLM_SERVER_URL": "http://llm"}},
		{"missing llm url", map[string]string{}},
		{"ark without credentials", map[string]string{"ANSWER_BACKEND": "ark"}},
		{"bad temperature", map[string]string{"ARK_TEMPERATURE": "hot", "LLM_SERVER_URL": "http://llm"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestLoadArkBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("ANSWER_BACKEND", "ARK")
	t.Setenv("ARK_API_KEY", "key")
	t.Setenv("Model", "doubao-pro")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if cfg.Answer.Backend != BackendArk || !cfg.AI.Enabled() {
		t.Fatalf("unexpected config: %+v %+v", cfg.Answer, cfg.AI)
	}
}
