package db

import (
	"embed"
	"fmt"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/pointerbridge/dbtypes"
	"github.com/ethpandaops/pointerbridge/types"
	"github.com/ethpandaops/pointerbridge/utils"

	_ "github.com/jackc/pgx/v4/stdlib"
)

//go:embed schema/pgsql/*.sql
var EmbedPgsqlSchema embed.FS

//go:embed schema/sqlite/*.sql
var EmbedSqliteSchema embed.FS

// DbEngine is the engine of the open database
var DbEngine dbtypes.DBEngineType
var ReaderDb *sqlx.DB
var writerDb *sqlx.DB
var writerMutex sync.Mutex

var logger = logrus.StandardLogger().WithField("module", "db")

func checkDbConn(dbConn *sqlx.DB, dataBaseName string) error {
	// The golang sql driver does not properly implement PingContext
	// therefore we use a timer to catch db connection timeouts
	dbConnectionTimeout := time.NewTimer(15 * time.Second)

	go func() {
		<-dbConnectionTimeout.C
		logger.Fatalf("timeout while connecting to %s", dataBaseName)
	}()

	err := dbConn.Ping()
	dbConnectionTimeout.Stop()
	if err != nil {
		return fmt.Errorf("unable to ping %s: %w", dataBaseName, err)
	}

	return nil
}

func initSqlite(config *types.SqliteDatabaseConfig) (*sqlx.DB, *sqlx.DB, error) {
	if config.MaxOpenConns == 0 {
		config.MaxOpenConns = 50
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 10
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)", config.File)
	if config.File == ":memory:" {
		// every connection would get its own in-memory database
		config.MaxOpenConns = 1
		dsn = config.File
	}
	if config.MaxOpenConns < config.MaxIdleConns {
		config.MaxIdleConns = config.MaxOpenConns
	}

	logger.Infof("initializing sqlite connection to %v with %v/%v conn limit", config.File, config.MaxIdleConns, config.MaxOpenConns)
	dbConn, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("error opening sqlite database: %w", err)
	}

	if err := checkDbConn(dbConn, "database"); err != nil {
		return nil, nil, err
	}
	dbConn.SetConnMaxIdleTime(0)
	dbConn.SetConnMaxLifetime(0)
	dbConn.SetMaxOpenConns(config.MaxOpenConns)
	dbConn.SetMaxIdleConns(config.MaxIdleConns)

	return dbConn, dbConn, nil
}

func initPgsql(writer *types.PgsqlDatabaseConfig, reader *types.PgsqlDatabaseConfig) (*sqlx.DB, *sqlx.DB, error) {
	openConn := func(config *types.PgsqlDatabaseConfig, name string) (*sqlx.DB, error) {
		if config.MaxOpenConns == 0 {
			config.MaxOpenConns = 50
		}
		if config.MaxIdleConns == 0 {
			config.MaxIdleConns = 10
		}
		if config.MaxOpenConns < config.MaxIdleConns {
			config.MaxIdleConns = config.MaxOpenConns
		}

		logger.Infof("initializing pgsql %v connection to %v with %v/%v conn limit", name, config.Host, config.MaxIdleConns, config.MaxOpenConns)
		dbConn, err := sqlx.Open("pgx", fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", config.Username, config.Password, config.Host, config.Port, config.Name))
		if err != nil {
			return nil, fmt.Errorf("error getting pgsql %v database: %w", name, err)
		}

		if err := checkDbConn(dbConn, name+" database"); err != nil {
			return nil, err
		}
		dbConn.SetConnMaxIdleTime(time.Second * 30)
		dbConn.SetConnMaxLifetime(time.Second * 60)
		dbConn.SetMaxOpenConns(config.MaxOpenConns)
		dbConn.SetMaxIdleConns(config.MaxIdleConns)
		return dbConn, nil
	}

	dbConnWriter, err := openConn(writer, "writer")
	if err != nil {
		return nil, nil, err
	}
	dbConnReader, err := openConn(reader, "reader")
	if err != nil {
		dbConnWriter.Close()
		return nil, nil, err
	}
	return dbConnWriter, dbConnReader, nil
}

// InitDB opens the configured database and applies the embedded schema.
func InitDB(config *types.DatabaseConfig) error {
	var err error
	switch config.Engine {
	case "sqlite":
		if config.Sqlite == nil {
			return fmt.Errorf("missing sqlite database config")
		}
		DbEngine = dbtypes.DBEngineSqlite
		writerDb, ReaderDb, err = initSqlite(config.Sqlite)
	case "pgsql":
		if config.Pgsql == nil {
			return fmt.Errorf("missing pgsql database config")
		}
		readerConfig := config.Pgsql
		writerConfig := readerConfig
		if config.PgsqlWriter != nil && config.PgsqlWriter.Host != "" {
			writerConfig = (*types.PgsqlDatabaseConfig)(config.PgsqlWriter)
		}
		DbEngine = dbtypes.DBEnginePgsql
		writerDb, ReaderDb, err = initPgsql(writerConfig, readerConfig)
	default:
		return fmt.Errorf("unknown database engine type: %s", config.Engine)
	}
	if err != nil {
		return err
	}

	err = ApplyEmbeddedDbSchema(-2)
	if err != nil {
		return fmt.Errorf("error applying db schema: %w", err)
	}
	return nil
}

func MustInitDB() {
	err := InitDB(&utils.Config.Database)
	if err != nil {
		utils.LogFatal(err, "error initializing database", 0)
	}
}

func MustCloseDB() {
	if writerDb == nil {
		return
	}
	err := writerDb.Close()
	if err != nil {
		logger.Errorf("Error closing writer db connection: %v", err)
	}
	if ReaderDb != writerDb {
		err = ReaderDb.Close()
		if err != nil {
			logger.Errorf("Error closing reader db connection: %v", err)
		}
	}
	writerDb = nil
	ReaderDb = nil
}

func RunDBTransaction(handler func(tx *sqlx.Tx) error) error {
	if DbEngine == dbtypes.DBEngineSqlite {
		writerMutex.Lock()
		defer writerMutex.Unlock()
	}

	tx, err := writerDb.Beginx()
	if err != nil {
		return fmt.Errorf("error starting db transactions: %v", err)
	}

	defer tx.Rollback()

	err = handler(tx)
	if err != nil {
		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("error committing db transaction: %v", err)
	}

	return nil
}

func ApplyEmbeddedDbSchema(version int64) error {
	var engineDialect string
	var schemaDirectory string
	switch DbEngine {
	case dbtypes.DBEnginePgsql:
		goose.SetBaseFS(EmbedPgsqlSchema)
		engineDialect = "postgres"
		schemaDirectory = "schema/pgsql"
	case dbtypes.DBEngineSqlite:
		goose.SetBaseFS(EmbedSqliteSchema)
		engineDialect = "sqlite3"
		schemaDirectory = "schema/sqlite"
	default:
		return fmt.Errorf("unknown database engine")
	}
	if err := goose.SetDialect(engineDialect); err != nil {
		return err
	}
	goose.SetLogger(logger)

	if version == -2 {
		if err := goose.Up(writerDb.DB, schemaDirectory, goose.WithAllowMissing()); err != nil {
			return err
		}
	} else if version == -1 {
		if err := goose.UpByOne(writerDb.DB, schemaDirectory, goose.WithAllowMissing()); err != nil {
			return err
		}
	} else {
		if err := goose.UpTo(writerDb.DB, schemaDirectory, version, goose.WithAllowMissing()); err != nil {
			return err
		}
	}

	return nil
}

func EngineQuery(queryMap map[dbtypes.DBEngineType]string) string {
	if queryMap[DbEngine] != "" {
		return queryMap[DbEngine]
	}
	return queryMap[dbtypes.DBEngineAny]
}
