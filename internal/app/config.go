package app

import (
	"strings"
	"time"

	"github.com/inkmark/inkmark-backend/internal/logger"
	"github.com/inkmark/inkmark-backend/internal/utils"
)

type Config struct {
	Port            string
	ServiceName     string
	PersistenceMode string // postgres | sqlite | jsonfile | memory
	JSONStorePath   string
	JWTSecretKey    string
	ConverterPython string
	ConverterScript string
	ConverterMethod string // docling | tesseract
	WorkerTimeout   time.Duration
	WorkRoot        string
	LinkerPolicy    string
	TracingEnabled  bool
	AllowOrigins    []string
}

func LoadConfig(log *logger.Logger) Config {
	timeoutSeconds := utils.GetEnvAsInt("CONVERTER_TIMEOUT_SECONDS", 600, log)
	rawOrigins := utils.GetEnv("CORS_ALLOW_ORIGINS", "", log)
	var origins []string
	for _, o := range strings.Split(rawOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return Config{
		Port:            utils.GetEnv("PORT", "8080", log),
		ServiceName:     utils.GetEnv("SERVICE_NAME", "inkmark-backend", log),
		PersistenceMode: strings.ToLower(utils.GetEnv("PERSISTENCE_MODE", "postgres", log)),
		JSONStorePath:   utils.GetEnv("JSON_STORE_PATH", "data/conversions.json", log),
		JWTSecretKey:    utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log),
		ConverterPython: utils.GetEnv("CONVERTER_PYTHON", "python3", log),
		ConverterScript: utils.GetEnv("CONVERTER_SCRIPT", "server/pdf_converter.py", log),
		ConverterMethod: utils.GetEnv("CONVERTER_METHOD", "tesseract", log),
		WorkerTimeout:   time.Duration(timeoutSeconds) * time.Second,
		WorkRoot:        utils.GetEnv("CONVERTER_WORK_ROOT", "", log),
		LinkerPolicy:    utils.GetEnv("LINKER_POLICY", "page_proximity", log),
		TracingEnabled:  utils.GetEnvAsBool("OTEL_ENABLED", false, log),
		AllowOrigins:    origins,
	}
}
