package lock

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// NewHolderID строит идентификатор процесса вида "host:pid:xxxxxxxx".
// Суффикс из UUID различает процессы с одинаковым pid в разных контейнерах.
func NewHolderID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s:%d:%s", host, os.Getpid(), uuid.NewString()[:8])
}
