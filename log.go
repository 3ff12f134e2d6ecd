package replica

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// Logger tees everything written through the stdlib log package to the
// console and to log/latest.txt. The previous session's file survives
// as log/last.txt.
type Logger struct {
	file *os.File
}

// StartLog routes the stdlib log output through a new Logger. Callers
// that don't care about log files can skip this entirely.
func StartLog(dir string) (*Logger, error) {
	if dir == "" {
		dir = "log"
	}
	os.Mkdir(dir, 0777)

	os.Rename(filepath.Join(dir, "latest.txt"), filepath.Join(dir, "last.txt"))

	f, err := os.OpenFile(filepath.Join(dir, "latest.txt"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0666)
	if err != nil {
		return nil, err
	}

	l := &Logger{file: f}
	log.SetOutput(l)

	return l, nil
}

func (l *Logger) Write(p []byte) (int, error) {
	fmt.Print(string(p))
	l.file.Write(p)

	return len(p), nil
}

func (l *Logger) Close() error {
	log.SetOutput(os.Stderr)
	return l.file.Close()
}
