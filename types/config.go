package types

import "time"

// Config is a struct to hold the configuration data
type Config struct {
	Logging struct {
		OutputLevel  string `yaml:"outputLevel" envconfig:"LOGGING_OUTPUT_LEVEL"`
		OutputStderr bool   `yaml:"outputStderr" envconfig:"LOGGING_OUTPUT_STDERR"`

		FilePath  string `yaml:"filePath" envconfig:"LOGGING_FILE_PATH"`
		FileLevel string `yaml:"fileLevel" envconfig:"LOGGING_FILE_LEVEL"`
	} `yaml:"logging"`

	Server struct {
		Port string `yaml:"port" envconfig:"SERVER_PORT"`
		Host string `yaml:"host" envconfig:"SERVER_HOST"`

		HttpReadTimeout  time.Duration `yaml:"httpReadTimeout" envconfig:"SERVER_HTTP_READ_TIMEOUT"`
		HttpWriteTimeout time.Duration `yaml:"httpWriteTimeout" envconfig:"SERVER_HTTP_WRITE_TIMEOUT"`
		HttpIdleTimeout  time.Duration `yaml:"httpIdleTimeout" envconfig:"SERVER_HTTP_IDLE_TIMEOUT"`
		Pprof            bool          `yaml:"pprof" envconfig:"SERVER_PPROF"`
	} `yaml:"server"`

	Chain struct {
		Backend       string        `yaml:"backend" envconfig:"CHAIN_BACKEND"` // devnet, upstream
		ChainID       uint64        `yaml:"chainId" envconfig:"CHAIN_ID"`
		Bech32Prefix  string        `yaml:"bech32Prefix" envconfig:"CHAIN_BECH32_PREFIX"`
		BlockInterval time.Duration `yaml:"blockInterval" envconfig:"CHAIN_BLOCK_INTERVAL"` // 0 = seal one block per transaction
		GasPerCall    uint64        `yaml:"gasPerCall" envconfig:"CHAIN_GAS_PER_CALL"`
	} `yaml:"chain"`

	Gateway struct {
		StandardNamespace   string `yaml:"standardNamespace" envconfig:"GATEWAY_STANDARD_NAMESPACE"`
		ExtendedNamespace   string `yaml:"extendedNamespace" envconfig:"GATEWAY_EXTENDED_NAMESPACE"`
		SyntheticInStandard string `yaml:"syntheticInStandard" envconfig:"GATEWAY_SYNTHETIC_IN_STANDARD"` // none, receipts, all
		MaxBlockRange       uint64 `yaml:"maxBlockRange" envconfig:"GATEWAY_MAX_BLOCK_RANGE"`
		MaxBatchSize        int    `yaml:"maxBatchSize" envconfig:"GATEWAY_MAX_BATCH_SIZE"`
		LogRequests         bool   `yaml:"logRequests" envconfig:"GATEWAY_LOG_REQUESTS"`
	} `yaml:"gateway"`

	RateLimit struct {
		Enabled    bool `yaml:"enabled" envconfig:"RATELIMIT_ENABLED"`
		ProxyCount uint `yaml:"proxyCount" envconfig:"RATELIMIT_PROXY_COUNT"`
		Rate       uint `yaml:"rate" envconfig:"RATELIMIT_RATE"`
		Burst      uint `yaml:"burst" envconfig:"RATELIMIT_BURST"`
	} `yaml:"rateLimit"`

	Registry struct {
		Engine          string `yaml:"engine" envconfig:"REGISTRY_ENGINE"` // memory, db
		VerifyContracts bool   `yaml:"verifyContracts" envconfig:"REGISTRY_VERIFY_CONTRACTS"`
	} `yaml:"registry"`

	LogIndex struct {
		Engine         string `yaml:"engine" envconfig:"LOGINDEX_ENGINE"` // memory, db, pebble
		InMemoryBlocks uint64 `yaml:"inMemoryBlocks" envconfig:"LOGINDEX_IN_MEMORY_BLOCKS"`
	} `yaml:"logIndex"`

	Native struct {
		Contract       string `yaml:"contract" envconfig:"NATIVE_CONTRACT"` // instantiated and registered on startup if set
		ContractName   string `yaml:"contractName" envconfig:"NATIVE_CONTRACT_NAME"`
		ContractSymbol string `yaml:"contractSymbol" envconfig:"NATIVE_CONTRACT_SYMBOL"`
		Minter         string `yaml:"minter" envconfig:"NATIVE_MINTER"`
	} `yaml:"native"`

	Upstream struct {
		Endpoint string             `yaml:"endpoint" envconfig:"UPSTREAM_ENDPOINT"`
		Headers  map[string]string  `yaml:"headers"`
		Ssh      *EndpointSshConfig `yaml:"ssh"`
		Timeout  time.Duration      `yaml:"timeout" envconfig:"UPSTREAM_TIMEOUT"`
	} `yaml:"upstream"`

	Cache struct {
		Enabled     bool          `yaml:"enabled" envconfig:"CACHE_ENABLED"`
		LocalSize   int           `yaml:"localSize" envconfig:"CACHE_LOCAL_SIZE"` // MB
		RedisAddr   string        `yaml:"redisAddr" envconfig:"CACHE_REDIS_ADDR"`
		RedisPrefix string        `yaml:"redisPrefix" envconfig:"CACHE_REDIS_PREFIX"`
		TTL         time.Duration `yaml:"ttl" envconfig:"CACHE_TTL"`
	} `yaml:"cache"`

	Metrics struct {
		Enabled bool   `yaml:"enabled" envconfig:"METRICS_ENABLED"`
		Public  bool   `yaml:"public" envconfig:"METRICS_PUBLIC"`
		Host    string `yaml:"host" envconfig:"METRICS_HOST"`
		Port    string `yaml:"port" envconfig:"METRICS_PORT"`
	} `yaml:"metrics"`

	Database DatabaseConfig `yaml:"database"`

	Pebble PebbleConfig `yaml:"pebble"`
}

type EndpointSshConfig struct {
	Host       string `yaml:"host"`
	Port       string `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	Keyfile    string `yaml:"keyfile"`
	KnownHosts string `yaml:"knownHosts"`
}

type DatabaseConfig struct {
	Engine      string                     `yaml:"engine" envconfig:"DATABASE_ENGINE"`
	Sqlite      *SqliteDatabaseConfig      `yaml:"sqlite"`
	Pgsql       *PgsqlDatabaseConfig       `yaml:"pgsql"`
	PgsqlWriter *PgsqlWriterDatabaseConfig `yaml:"pgsqlWriter"`
}

type SqliteDatabaseConfig struct {
	File         string `yaml:"file" envconfig:"DATABASE_SQLITE_FILE"`
	MaxOpenConns int    `yaml:"maxOpenConns" envconfig:"DATABASE_SQLITE_MAX_OPEN_CONNS"`
	MaxIdleConns int    `yaml:"maxIdleConns" envconfig:"DATABASE_SQLITE_MAX_IDLE_CONNS"`
}

type PgsqlDatabaseConfig struct {
	Username     string `yaml:"user" envconfig:"DATABASE_PGSQL_USERNAME"`
	Password     string `yaml:"password" envconfig:"DATABASE_PGSQL_PASSWORD"`
	Name         string `yaml:"name" envconfig:"DATABASE_PGSQL_NAME"`
	Host         string `yaml:"host" envconfig:"DATABASE_PGSQL_HOST"`
	Port         string `yaml:"port" envconfig:"DATABASE_PGSQL_PORT"`
	MaxOpenConns int    `yaml:"maxOpenConns" envconfig:"DATABASE_PGSQL_MAX_OPEN_CONNS"`
	MaxIdleConns int    `yaml:"maxIdleConns" envconfig:"DATABASE_PGSQL_MAX_IDLE_CONNS"`
}

type PgsqlWriterDatabaseConfig struct {
	Username     string `yaml:"user" envconfig:"DATABASE_PGSQL_WRITER_USERNAME"`
	Password     string `yaml:"password" envconfig:"DATABASE_PGSQL_WRITER_PASSWORD"`
	Name         string `yaml:"name" envconfig:"DATABASE_PGSQL_WRITER_NAME"`
	Host         string `yaml:"host" envconfig:"DATABASE_PGSQL_WRITER_HOST"`
	Port         string `yaml:"port" envconfig:"DATABASE_PGSQL_WRITER_PORT"`
	MaxOpenConns int    `yaml:"maxOpenConns" envconfig:"DATABASE_PGSQL_WRITER_MAX_OPEN_CONNS"`
	MaxIdleConns int    `yaml:"maxIdleConns" envconfig:"DATABASE_PGSQL_WRITER_MAX_IDLE_CONNS"`
}

type PebbleConfig struct {
	Path      string `yaml:"path" envconfig:"PEBBLE_PATH"` // empty = in-memory
	CacheSize int    `yaml:"cacheSize" envconfig:"PEBBLE_CACHE_SIZE"`
}
