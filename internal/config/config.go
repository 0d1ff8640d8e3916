package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Answer backends.
const (
	BackendHTTP = "http"
	BackendArk  = "ark"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	QnA      QnAConfig
	Answer   AnswerConfig
	AI       AIConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	qna, err := loadQnAConfig()
	if err != nil {
		return nil, err
	}

	answer, err := loadAnswerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}
	if answer.Backend == BackendArk && !ai.Enabled() {
		return nil, fmt.Errorf("ANSWER_BACKEND=ark requires ARK_API_KEY (or ARK_ACCESS_KEY/ARK_SECRET_KEY) and Model")
	}

	return &Config{
		Server:   server,
		Database: LoadDatabase(),
		QnA:      qna,
		Answer:   answer,
		AI:       ai,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr           string
	FrontendOrigin string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	origin := getEnvOrDefault("FRONTEND_ORIGIN", "*")

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, FrontendOrigin: origin}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, FrontendOrigin: origin}, nil
}

// DatabaseConfig 描述存储配置。FAQURL 为空时不启用 QnA 缓存。
type DatabaseConfig struct {
	URL             string
	FAQURL          string
	PersonaSeedFile string
}

// LoadDatabase 只读取存储相关配置，供 migrate 命令使用。
func LoadDatabase() DatabaseConfig {
	return DatabaseConfig{
		URL:             getEnvOrDefault("DATABASE_URL", "sqlite://chat-relay.db"),
		FAQURL:          strings.TrimSpace(os.Getenv("FAQ_DATABASE_URL")),
		PersonaSeedFile: strings.TrimSpace(os.Getenv("PERSONA_SEED_FILE")),
	}
}

// QnAConfig 描述 FAQ/术语缓存配置。
type QnAConfig struct {
	FAQTopK     int
	TermsTopK   int
	RefreshCron string
}

func loadQnAConfig() (QnAConfig, error) {
	faqTopK, err := parsePositiveIntEnv("QNA_FAQ_TOP_K", 3)
	if err != nil {
		return QnAConfig{}, err
	}

	termsTopK, err := parsePositiveIntEnv("QNA_TERMS_TOP_K", 6)
	if err != nil {
		return QnAConfig{}, err
	}

	return QnAConfig{
		FAQTopK:     faqTopK,
		TermsTopK:   termsTopK,
		RefreshCron: strings.TrimSpace(os.Getenv("QNA_REFRESH_CRON")),
	}, nil
}

// AnswerConfig 描述回答服务配置。
type AnswerConfig struct {
	Backend      string
	LLMServerURL string
	MCPServerURL string
	Timeout      time.Duration
}

func loadAnswerConfig() (AnswerConfig, error) {
	backend := strings.ToLower(getEnvOrDefault("ANSWER_BACKEND", BackendHTTP))
	if backend != BackendHTTP && backend != BackendArk {
		return AnswerConfig{}, fmt.Errorf("invalid ANSWER_BACKEND value %q: want %q or %q", backend, BackendHTTP, BackendArk)
	}

	timeoutSeconds, err := parsePositiveIntEnv("ANSWER_TIMEOUT_SECONDS", 30)
	if err != nil {
		return AnswerConfig{}, err
	}

	llmURL := strings.TrimRight(strings.TrimSpace(os.Getenv("LLM_SERVER_URL")), "/")
	if backend == BackendHTTP && llmURL == "" {
		return AnswerConfig{}, fmt.Errorf("LLM_SERVER_URL is required when ANSWER_BACKEND=%s", BackendHTTP)
	}

	return AnswerConfig{
		Backend:      backend,
		LLMServerURL: llmURL,
		MCPServerURL: strings.TrimRight(strings.TrimSpace(os.Getenv("MCP_SERVER_URL")), "/"),
		Timeout:      time.Duration(timeoutSeconds) * time.Second,
	}, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("Model")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

// parsePositiveIntEnv 读取正整数，未设置时返回默认值。
func parsePositiveIntEnv(key string, defaultValue int) (int, error) {
	val, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if val == nil {
		return defaultValue, nil
	}
	if *val < 1 {
		return 0, fmt.Errorf("invalid %s value %d: must be positive", key, *val)
	}
	return *val, nil
}
