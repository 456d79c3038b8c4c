package kiira

import (
	"os"
	"strconv"
)

func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o600)
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
