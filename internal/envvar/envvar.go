package envvar

const (
	// ModelwebEnv selects the runtime environment (development or production).
	ModelwebEnv = "MODELWEB_ENV"

	// ModelwebModelsPath overrides the directory remote sources are downloaded into.
	ModelwebModelsPath = "MODELWEB_MODELS_PATH"

	// ModelwebLogFile enables file logging to the given path.
	ModelwebLogFile = "MODELWEB_LOG_FILE"

	// ModelwebConfig is the default config file for the run command.
	ModelwebConfig = "MODELWEB_CONFIG"
)
