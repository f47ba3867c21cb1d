package schedule

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// TaskName is the name the sweep appears under in the Windows task
// scheduler.
const TaskName = "ADSweep"

// TaskManager wraps schtasks.exe for installs that prefer a native scheduled
// task over a resident daemon.
type TaskManager struct {
	logger *zap.Logger
}

func NewTaskManager(logger *zap.Logger) *TaskManager {
	return &TaskManager{logger: logger}
}

// Register creates or replaces the daily scheduled task. startTime uses the
// 24h HH:MM form schtasks expects.
func (t *TaskManager) Register(binaryPath string, args []string, startTime string) error {
	if runtime.GOOS != "windows" {
		return errors.New("scheduled task registration requires Windows")
	}

	cmd := exec.Command("schtasks.exe",
		"/Create",
		"/TN", TaskName,
		"/SC", "DAILY",
		"/ST", startTime,
		"/RU", "SYSTEM",
		"/TR", taskCommand(binaryPath, args),
		"/F",
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return errors.Wrapf(err, "schtasks create failed: %s", strings.TrimSpace(string(output)))
	}

	t.logger.Info("registered scheduled task",
		zap.String("task", TaskName),
		zap.String("start_time", startTime),
	)
	return nil
}

// Unregister removes the scheduled task.
func (t *TaskManager) Unregister() error {
	if runtime.GOOS != "windows" {
		return errors.New("scheduled task removal requires Windows")
	}

	cmd := exec.Command("schtasks.exe", "/Delete", "/TN", TaskName, "/F")
	if output, err := cmd.CombinedOutput(); err != nil {
		return errors.Wrapf(err, "schtasks delete failed: %s", strings.TrimSpace(string(output)))
	}

	t.logger.Info("removed scheduled task", zap.String("task", TaskName))
	return nil
}

// taskCommand builds the /TR command line, quoting the binary path because
// install directories usually contain spaces.
func taskCommand(binaryPath string, args []string) string {
	parts := []string{fmt.Sprintf("\"%s\"", binaryPath)}
	parts = append(parts, args...)
	return strings.Join(parts, " ")
}
