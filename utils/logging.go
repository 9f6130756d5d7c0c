package utils

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	logger "github.com/sirupsen/logrus"
)

// LogWriter owns the optional log file opened by InitLogger.
type LogWriter struct {
	mutex sync.Mutex
	file  *os.File
}

// Dispose closes the log file, if any.
func (lw *LogWriter) Dispose() {
	lw.mutex.Lock()
	defer lw.mutex.Unlock()
	if lw.file != nil {
		lw.file.Close()
		lw.file = nil
	}
}

// fileHook mirrors entries at or above its level into a file with a text formatter.
type fileHook struct {
	writer    io.Writer
	levels    []logger.Level
	formatter logger.Formatter
}

func (hook *fileHook) Levels() []logger.Level {
	return hook.levels
}

func (hook *fileHook) Fire(entry *logger.Entry) error {
	line, err := hook.formatter.Format(entry)
	if err != nil {
		return err
	}
	_, err = hook.writer.Write(line)
	return err
}

// InitLogger configures the standard logrus logger from Config.Logging.
func InitLogger() (*LogWriter, *logger.Logger) {
	log := logger.StandardLogger()
	logWriter := &LogWriter{}

	if Config == nil {
		return logWriter, log
	}

	outputLevel := parseLogLevel(Config.Logging.OutputLevel, logger.InfoLevel)
	log.SetLevel(outputLevel)
	if Config.Logging.OutputStderr {
		log.SetOutput(os.Stderr)
	} else {
		log.SetOutput(os.Stdout)
	}

	if Config.Logging.FilePath != "" {
		file, err := os.OpenFile(Config.Logging.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.WithError(err).Errorf("could not open log file %v", Config.Logging.FilePath)
		} else {
			logWriter.file = file
			fileLevel := parseLogLevel(Config.Logging.FileLevel, outputLevel)
			if fileLevel > log.GetLevel() {
				// the logger drops entries above its own level before hooks fire
				log.SetLevel(fileLevel)
			}
			levels := []logger.Level{}
			for _, lvl := range logger.AllLevels {
				if lvl <= fileLevel {
					levels = append(levels, lvl)
				}
			}
			log.AddHook(&fileHook{
				writer:    file,
				levels:    levels,
				formatter: &logger.TextFormatter{DisableColors: true, FullTimestamp: true},
			})
		}
	}

	return logWriter, log
}

func parseLogLevel(level string, fallback logger.Level) logger.Level {
	if level == "" {
		return fallback
	}
	parsed, err := logger.ParseLevel(level)
	if err != nil {
		return fallback
	}
	return parsed
}

// LogFatal logs a fatal error with callstack info that skips callerSkip many levels with arbitrarily many additional infos.
// callerSkip equal to 0 gives you info directly where LogFatal is called.
func LogFatal(err error, errorMsg interface{}, callerSkip int, additionalInfos ...map[string]interface{}) {
	logErrorInfo(err, callerSkip, additionalInfos...).Fatal(errorMsg)
}

// LogError logs an error with callstack info that skips callerSkip many levels with arbitrarily many additional infos.
// callerSkip equal to 0 gives you info directly where LogError is called.
func LogError(err error, errorMsg interface{}, callerSkip int, additionalInfos ...map[string]interface{}) {
	logErrorInfo(err, callerSkip, additionalInfos...).Error(errorMsg)
}

func logErrorInfo(err error, callerSkip int, additionalInfos ...map[string]interface{}) *logger.Entry {
	logFields := logger.NewEntry(logger.StandardLogger())

	pc, fullFilePath, line, ok := runtime.Caller(callerSkip + 2)
	if ok {
		logFields = logFields.WithFields(logger.Fields{
			"_file":     filepath.Base(fullFilePath),
			"_function": runtime.FuncForPC(pc).Name(),
			"_line":     line,
		})
	} else {
		logFields = logFields.WithField("runtime", "Callstack cannot be read")
	}

	// unwrap chain: every level that adds context becomes its own field
	errChain := []string{}
	for next := err; next != nil; next = errors.Unwrap(next) {
		errChain = append(errChain, next.Error())
	}
	for idx := 0; idx < len(errChain)-1; idx++ {
		context := strings.TrimSuffix(strings.TrimSuffix(errChain[idx], errChain[idx+1]), ": ")
		logFields = logFields.WithField(fmt.Sprintf("errInfo_%v", idx), context)
	}

	if err != nil {
		logFields = logFields.WithField("errType", fmt.Sprintf("%T", err)).WithError(err)
	}

	for _, infoMap := range additionalInfos {
		for name, info := range infoMap {
			logFields = logFields.WithField(name, info)
		}
	}

	return logFields
}
