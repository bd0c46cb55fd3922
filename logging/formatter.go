package logging

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/muesli/termenv"
	"github.com/sirupsen/logrus"
)

var levelColors = map[logrus.Level]string{
	logrus.TraceLevel: "8",
	logrus.DebugLevel: "8",
	logrus.InfoLevel:  "12",
	logrus.WarnLevel:  "11",
	logrus.ErrorLevel: "9",
	logrus.FatalLevel: "9",
	logrus.PanicLevel: "9",
}

// TextFormatter is a custom logrus formatter.
type TextFormatter struct {
	Config FormatConfig
}

// Format renders a single log entry.
func (f *TextFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b strings.Builder
	profile := termenv.Ascii
	if f.Config.Colors {
		profile = termenv.ANSI
	}

	if !f.Config.DisableTimestamp {
		b.WriteString(entry.Time.Format("2006-01-02 15:04:05"))
		b.WriteString(" ")
	}

	// Map logrus level strings to shorter versions for consistency
	levelStr := entry.Level.String()
	if levelStr == "warning" {
		levelStr = "warn"
	}
	level := fmt.Sprintf("[%s]", strings.ToUpper(levelStr))
	b.WriteString(profile.String(level).Foreground(profile.Color(levelColors[entry.Level])).String())

	if component, ok := entry.Data["component"]; ok && !f.Config.DisableComponent {
		componentStr := profile.String(fmt.Sprintf("%v", component)).Foreground(profile.Color("14")).String()
		b.WriteString(fmt.Sprintf(" [%s]", componentStr))
	}

	if entry.HasCaller() {
		fileName := filepath.Base(entry.Caller.File)
		funcName := filepath.Base(entry.Caller.Function)
		b.WriteString(fmt.Sprintf(" [%s:%d %s]", fileName, entry.Caller.Line, funcName))
	}

	b.WriteString(" ")
	b.WriteString(entry.Message)

	// Append remaining fields in a stable order
	keys := make([]string, 0, len(entry.Data))
	for key := range entry.Data {
		if key != "component" {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		b.WriteString(fmt.Sprintf(" %s=%v", key, entry.Data[key]))
	}

	b.WriteString("\n")
	return []byte(b.String()), nil
}
