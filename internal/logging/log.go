/*
 * Copyright 2024, 2025 Hewlett Packard Enterprise Development LP
 * Other additional copyright holders may be indicated within.
 *
 * The entirety of this work is licensed under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 *
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package logging

import (
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	log "github.com/sirupsen/logrus"
)

// EnvLogLevel names the environment variable holding the log level.
const EnvLogLevel = "LOG_LEVEL"

// ParseLevel maps a level name to a logrus level; unknown names are Info.
func ParseLevel(level string) log.Level {
	switch strings.ToUpper(level) {
	case "TRACE":
		return log.TraceLevel
	case "DEBUG":
		return log.DebugLevel
	case "INFO":
		return log.InfoLevel
	case "WARN":
		return log.WarnLevel
	case "ERROR":
		return log.ErrorLevel
	case "FATAL":
		return log.FatalLevel
	case "PANIC":
		return log.PanicLevel
	default:
		return log.InfoLevel
	}
}

// Setup configures the standard logger to write to out at the level named by
// LOG_LEVEL. Colors are used only when out is a terminal.
func Setup(out io.Writer) {
	Configure(log.StandardLogger(), out, ParseLevel(os.Getenv(EnvLogLevel)))
}

func Configure(logger *log.Logger, out io.Writer, level log.Level) {
	color := false
	if f, ok := out.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}

	logger.SetOutput(out)
	logger.SetFormatter(&log.TextFormatter{
		FullTimestamp: false,
		ForceColors:   color,
		DisableColors: !color,
	})
	logger.SetReportCaller(false)
	logger.SetLevel(level)

	logger.WithFields(log.Fields{"LogLevel": level}).Debug("Logging Initialized")
}
