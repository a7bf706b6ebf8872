package config

// injected configurations
var (
	APP_NAME    string = "brewery-docstore"
	APP_VERSION string = "0.0.1"
)

// env prefix for every DOCSTORE_* setting
const ENV_PREFIX = "docstore"

// value changed by paramaters from config
var (
	DOCSTORE_ENGINE               string = "log"
	DOCSTORE_DIR                  string = "./data"
	DOCSTORE_DB                   string = "default.couch"
	DOCSTORE_LAYOUT               string = "btree"
	DOCSTORE_CACHE_SIZE           int64  = 64 << 20
	DOCSTORE_DURABILITY           string = "safe"
	DOCSTORE_COMPACTION           string = "auto"
	DOCSTORE_COMPACTION_THRESHOLD int    = 30 // percent of stale bytes
	DOCSTORE_COMPRESS             bool   = false
	DOCSTORE_LOG_LEVEL            string = "info"
	DOCSTORE_METRICS_ADDR         string = "" // empty disables the endpoint
)
